package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	c := Load()
	assert.Equal(t, 300, c.PrimaryTimeframe)
	assert.Equal(t, 3600, c.SignalMaxTTL)
	assert.False(t, c.AIEnabled)
	assert.Greater(t, len(c.Symbols), 100)
}

func TestParseTFsSkipsInvalid(t *testing.T) {
	c := &Config{Timeframes: "60, 300,bogus,900"}
	assert.Equal(t, []int{60, 300, 900}, c.ParseTFs())
}

func TestGetEnvCSVUppercasesAndTrims(t *testing.T) {
	os.Setenv("SYMBOLS_TEST_KEY", " btcusdt, ethusdt ,,solusdt")
	defer os.Unsetenv("SYMBOLS_TEST_KEY")
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}, getEnvCSV("SYMBOLS_TEST_KEY", nil))
}

func TestGetEnvIntFallsBackOnInvalid(t *testing.T) {
	os.Setenv("INT_TEST_KEY", "not-a-number")
	defer os.Unsetenv("INT_TEST_KEY")
	assert.Equal(t, 42, getEnvInt("INT_TEST_KEY", 42))
}
