package config

import (
	"log"
	"os"
	"strconv"
	"strings"
)

// defaultSymbols mirrors original_source/app/core/config.py's 110-symbol
// perpetual-futures universe.
var defaultSymbols = []string{
	"BTCUSDT", "ETHUSDT", "BNBUSDT", "SOLUSDT", "XRPUSDT",
	"DOGEUSDT", "ADAUSDT", "AVAXUSDT", "DOTUSDT", "LINKUSDT",
	"MATICUSDT", "UNIUSDT", "LTCUSDT", "ATOMUSDT", "NEARUSDT",
	"APTUSDT", "ARBUSDT", "OPUSDT", "FILUSDT", "INJUSDT",
	"SUIUSDT", "SEIUSDT", "TIAUSDT", "JUPUSDT", "WLDUSDT",
	"STXUSDT", "IMXUSDT", "RUNEUSDT", "FETUSDT", "GRTUSDT",
	"AAVEUSDT", "MKRUSDT", "SNXUSDT", "LDOUSDT", "PENDLEUSDT",
	"THETAUSDT", "ALGOUSDT", "FTMUSDT", "SANDUSDT", "MANAUSDT",
	"GALAUSDT", "AXSUSDT", "APEUSDT", "DYDXUSDT", "GMXUSDT",
	"CRVUSDT", "COMPUSDT", "ENSUSDT", "SSVUSDT", "BLURUSDT",
	"CFXUSDT", "ACHUSDT", "AGLDUSDT", "LQTYUSDT", "RDNTUSDT",
	"MASKUSDT", "ILVUSDT", "WOOUSDT", "MAGICUSDT", "TUSDT",
	"XAIUSDT", "MANTAUSDT", "ONDOUSDT", "PYTHUSDT", "JITOUSDT",
	"WUSDT", "ENAUSDT", "ETHFIUSDT", "BOMEUSDT", "REZUSDT",
	"ZROUSDT", "IOUSDT", "ZKUSDT", "LISTAUSDT", "RENDERUSDT",
	"KASUSDT", "CELOUSDT", "SKLUSDT", "ZILUSDT", "QNTUSDT",
	"ICPUSDT", "VETUSDT", "EOSUSDT", "XTZUSDT", "FLOWUSDT",
	"MINAUSDT", "KAVAUSDT", "ROSEUSDT", "ONEUSDT", "IOTAUSDT",
	"XLMUSDT", "HBARUSDT", "EGLDUSDT", "NEOUSDT", "CHZUSDT",
	"ENJUSDT", "LRCUSDT", "BATUSDT", "COTIUSDT", "SUSHIUSDT",
	"1INCHUSDT", "BANDUSDT", "BALUSDT", "KNCUSDT", "BNTUSDT",
	"ANKRUSDT", "RVNUSDT", "REEFUSDT", "CELRUSDT", "MTLUSDT",
}

// Config holds all application configuration loaded from environment
// variables, covering every key spec.md §6.4 names.
type Config struct {
	// Symbol universe and timeframes
	Symbols          []string
	Timeframes       string // comma-separated seconds, e.g. "60,300,900,3600"
	PrimaryTimeframe int

	// Feature engine windows/thresholds
	ATRPeriod            int
	StructureLookback    int
	EMAFast              int
	VWAPPeriod           int
	OIDeltaWindow        int
	FundingZScoreWindow  int
	LiqRatioWindow       int
	WallPressureThreshold float64
	FeatureFallbackSeconds int

	// Event engine thresholds
	EventQueueMaxSize        int
	LiqSpikeThreshold        float64
	OIExpansionThreshold     float64
	ATRExpansionThreshold    float64
	ImbalanceFlipThreshold   float64
	FundingExtremeThreshold  float64

	// Signal engine
	SignalScoreThreshold  float64
	MTFMinAligned         int
	MTFAlignmentRequired  bool
	SignalCooldownSeconds int

	// Tracker
	TPAtrMultiplier    float64
	SLAtrMultiplier    float64
	SignalMaxTTL       int
	PriceCheckInterval float64

	// Transport
	WSBaseURL           string
	WSMaxStreamsPerConn int
	WSReconnectDelay    float64
	WSPingInterval      float64
	RESTBaseURL         string
	FundingPollInterval float64

	// Update bus
	UpdateBusMaxLen int

	// AI overlay
	AIEnabled             bool
	AIConfidenceThreshold float64

	// Storage and transport infra
	RedisAddr     string
	RedisPassword string
	SQLitePath    string
	MetricsAddr   string

	// Notification
	TelegramBotToken string
	TelegramChatID   string
	WebhookURL       string
}

// Load reads configuration from environment variables with sensible
// defaults; nothing here is mustEnv-required since every ingested stream
// is public exchange market data with no account credentials involved.
func Load() *Config {
	return &Config{
		Symbols:          getEnvCSV("SYMBOLS", defaultSymbols),
		Timeframes:       getEnv("TIMEFRAMES", "60,300,900,3600"),
		PrimaryTimeframe: getEnvInt("PRIMARY_TIMEFRAME", 300),

		ATRPeriod:              getEnvInt("ATR_PERIOD", 14),
		StructureLookback:      getEnvInt("STRUCTURE_LOOKBACK", 20),
		EMAFast:                getEnvInt("EMA_FAST", 9),
		VWAPPeriod:             getEnvInt("VWAP_PERIOD", 20),
		OIDeltaWindow:          getEnvInt("OI_DELTA_WINDOW", 10),
		FundingZScoreWindow:    getEnvInt("FUNDING_ZSCORE_WINDOW", 50),
		LiqRatioWindow:         getEnvInt("LIQ_RATIO_WINDOW", 20),
		WallPressureThreshold:  getEnvFloat("WALL_PRESSURE_THRESHOLD", 5.0),
		FeatureFallbackSeconds: getEnvInt("FEATURE_FALLBACK_SECONDS", 30),

		EventQueueMaxSize:       getEnvInt("EVENT_QUEUE_MAXSIZE", 10000),
		LiqSpikeThreshold:       getEnvFloat("LIQ_SPIKE_THRESHOLD", 2.0),
		OIExpansionThreshold:    getEnvFloat("OI_EXPANSION_THRESHOLD", 1.5),
		ATRExpansionThreshold:   getEnvFloat("ATR_EXPANSION_THRESHOLD", 1.5),
		ImbalanceFlipThreshold:  getEnvFloat("IMBALANCE_FLIP_THRESHOLD", 0.2),
		FundingExtremeThreshold: getEnvFloat("FUNDING_EXTREME_THRESHOLD", 2.5),

		SignalScoreThreshold:  getEnvFloat("SIGNAL_SCORE_THRESHOLD", 0.50),
		MTFMinAligned:         getEnvInt("MTF_MIN_ALIGNED", 2),
		MTFAlignmentRequired:  getEnvBool("MTF_ALIGNMENT_REQUIRED", true),
		SignalCooldownSeconds: getEnvInt("SIGNAL_COOLDOWN_SECONDS", 300),

		TPAtrMultiplier:    getEnvFloat("TP_ATR_MULTIPLIER", 2.0),
		SLAtrMultiplier:    getEnvFloat("SL_ATR_MULTIPLIER", 1.0),
		SignalMaxTTL:       getEnvInt("SIGNAL_MAX_TTL", 3600),
		PriceCheckInterval: getEnvFloat("PRICE_CHECK_INTERVAL", 1.0),

		WSBaseURL:           getEnv("WS_BASE_URL", "wss://fstream.binance.com"),
		WSMaxStreamsPerConn: getEnvInt("WS_MAX_STREAMS_PER_CONN", 200),
		WSReconnectDelay:    getEnvFloat("WS_RECONNECT_DELAY", 3.0),
		WSPingInterval:      getEnvFloat("WS_PING_INTERVAL", 20.0),
		RESTBaseURL:         getEnv("REST_BASE_URL", "https://fapi.binance.com"),
		FundingPollInterval: getEnvFloat("FUNDING_POLL_INTERVAL", 120.0),

		UpdateBusMaxLen: getEnvInt("UPDATE_BUS_MAXLEN", 10000),

		AIEnabled:             getEnvBool("AI_ENABLED", false),
		AIConfidenceThreshold: getEnvFloat("AI_CONFIDENCE_THRESHOLD", 0.50),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/signalengine.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
		WebhookURL:       getEnv("WEBHOOK_URL", ""),
	}
}

// ParseTFs parses Timeframes into a slice of second-granularity periods,
// logging and skipping invalid entries rather than failing startup.
func (c *Config) ParseTFs() []int {
	parts := strings.Split(c.Timeframes, ",")
	tfs := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil || n <= 0 {
			log.Printf("[config] skipping invalid timeframe value: %q", p)
			continue
		}
		tfs = append(tfs, n)
	}
	return tfs
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvCSV(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid int for %s=%q, using default %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[config] invalid float for %s=%q, using default %v", key, v, fallback)
		return fallback
	}
	return f
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("[config] invalid bool for %s=%q, using default %v", key, v, fallback)
		return fallback
	}
	return b
}
