package ingestion

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateKlineOK(t *testing.T) {
	raw := json.RawMessage(`{"symbol":"btcusdt","open_time":1,"o":"100","h":"101","l":"99","c":"100.5","base_vol":"10","quote_vol":"1000","closed":true}`)
	k, err := ValidateKline(60, raw)
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", k.Symbol)
	assert.Equal(t, 100.5, k.Close)
	assert.True(t, k.Closed)
}

func TestValidateKlineRejectsNonNumeric(t *testing.T) {
	raw := json.RawMessage(`{"symbol":"btcusdt","o":"oops","h":"1","l":"1","c":"1"}`)
	_, err := ValidateKline(60, raw)
	require.Error(t, err)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestValidateKlineRejectsNonFinite(t *testing.T) {
	for _, c := range []string{"NaN", "Inf", "+Inf", "-Inf"} {
		raw := json.RawMessage(`{"symbol":"btcusdt","o":"` + c + `","h":"1","l":"1","c":"1"}`)
		_, err := ValidateKline(60, raw)
		require.Error(t, err, "value %q should be rejected", c)
		var verr *ValidationError
		assert.ErrorAs(t, err, &verr)
	}
}

func TestValidateForceOrderRejectsBadSide(t *testing.T) {
	raw := json.RawMessage(`{"symbol":"ethusdt","side":"HOLD","price":"1","qty":"1"}`)
	_, err := ValidateForceOrder(raw)
	require.Error(t, err)
}

func TestValidateDepthOK(t *testing.T) {
	raw := json.RawMessage(`{"bids":[["100","50"]],"asks":[["100.1","5"]]}`)
	d, err := ValidateDepth("btcusdt", raw)
	require.NoError(t, err)
	require.Len(t, d.Bids, 1)
	assert.Equal(t, 50.0, d.Bids[0].Size)
}
