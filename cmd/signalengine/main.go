package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"signalengine/config"
	"signalengine/internal/ai"
	"signalengine/internal/event"
	"signalengine/internal/feature"
	"signalengine/internal/ingestion"
	"signalengine/internal/logger"
	"signalengine/internal/metrics"
	"signalengine/internal/model"
	"signalengine/internal/notification"
	"signalengine/internal/rawstore"
	signalengine "signalengine/internal/signal"
	"signalengine/internal/sink"
	"signalengine/internal/tracker"
	"signalengine/internal/updatebus"
)

const version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:   "signalengine",
	Short: "Real-time perpetual-futures market-signal engine",
	Long: `signalengine ingests Binance USDT-M perpetual futures streams, derives
per-symbol features across multiple timeframes, detects discrete market
events, scores multi-timeframe confluence signals, and tracks their
TP/SL outcomes end to end.`,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the signal engine pipeline",
	RunE:  runEngine,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version and exit",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("signalengine " + version)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runEngine(cmd *cobra.Command, args []string) error {
	logger.Init("signalengine", slog.LevelInfo)
	slog.Info("signalengine: starting")

	cfg := config.Load()
	tfs := cfg.ParseTFs()
	slog.Info("signalengine: loaded config", "symbols", len(cfg.Symbols), "timeframes", tfs)

	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	health.SetSymbols(cfg.Symbols)
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	store := rawstore.New()

	// ---- Persistence Sink ----
	os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755)
	persistence, err := sink.New(sink.Config{DBPath: cfg.SQLitePath})
	if err != nil {
		return fmt.Errorf("sink init: %w", err)
	}
	defer persistence.Close()
	health.SetSinkOK(true)
	slog.Info("signalengine: sink ready", "path", cfg.SQLitePath)

	// ---- Update Bus ----
	bus, err := updatebus.New(updatebus.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		MaxLen:   int64(cfg.UpdateBusMaxLen),
	})
	if err != nil {
		return fmt.Errorf("update bus init: %w", err)
	}
	defer bus.Close()
	bus.Dropped = func() { prom.IngestionDroppedTotal.WithLabelValues("bus_publish").Inc() }
	health.SetUpdateBusConnected(true)
	slog.Info("signalengine: update bus ready")

	health.StartLivenessChecker(ctx, bus.Client(), persistence.DB(), 10*time.Second)

	// ---- AI overlay ----
	var predictor model.Predictor = ai.AlwaysAbstain{}

	// ---- Notification ----
	var backends []notification.Notifier
	backends = append(backends, notification.NewLogNotifier(), notification.NewRedisNotifier(bus.Client()))
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		backends = append(backends, notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID))
	}
	if cfg.WebhookURL != "" {
		backends = append(backends, notification.NewWebhookNotifier(cfg.WebhookURL))
	}
	dispatcher := notification.NewDispatcher(backends...)
	dispatcher.Dropped = func(count int64) { prom.NotificationDroppedTotal.Inc() }
	go dispatcher.Run(ctx)

	// ---- Tracker ----
	tr := tracker.New(tracker.Config{
		TPAtrMultiplier:    cfg.TPAtrMultiplier,
		SLAtrMultiplier:    cfg.SLAtrMultiplier,
		DefaultTTLSeconds:  int64(cfg.SignalMaxTTL),
		PriceCheckInterval: time.Duration(cfg.PriceCheckInterval * float64(time.Second)),
		PrimaryTimeframe:   cfg.PrimaryTimeframe,
	}, store, persistence)
	if err := tr.RecoverOnStartup(); err != nil {
		slog.Warn("signalengine: tracker recovery failed", "err", err)
	}
	go tr.RunPriceMonitor(ctx)

	// ---- Event Engine ----
	eventQueue := event.NewQueue(cfg.EventQueueMaxSize)
	eventQueue.Dropped = func(eventType string) { prom.EventsDroppedTotal.Inc() }

	eventEngine := event.New(event.Config{
		Symbols:                cfg.Symbols,
		ScanInterval:           2 * time.Second,
		LiqSpikeThreshold:      cfg.LiqSpikeThreshold,
		OIExpansionThreshold:   cfg.OIExpansionThreshold,
		ATRExpansionThreshold:  cfg.ATRExpansionThreshold,
		ImbalanceFlipThreshold: cfg.ImbalanceFlipThreshold,
		FundingExtremeThresh:   cfg.FundingExtremeThreshold,
	}, store, eventQueue)
	go eventEngine.Run(ctx)

	// ---- Feature Engine ----
	featureEngine := feature.New(feature.Config{
		Symbols:            cfg.Symbols,
		Timeframes:         tfs,
		PrimaryTimeframe:    cfg.PrimaryTimeframe,
		StructureLookback:  cfg.StructureLookback,
		ATRPeriod:          cfg.ATRPeriod,
		EMAFast:            cfg.EMAFast,
		VWAPPeriod:         cfg.VWAPPeriod,
		OIDeltaWindow:      cfg.OIDeltaWindow,
		FundingZWindow:     cfg.FundingZScoreWindow,
		LiqRatioWindow:     cfg.LiqRatioWindow,
		WallPressureThresh: cfg.WallPressureThreshold,
		FallbackInterval:   time.Duration(cfg.FeatureFallbackSeconds) * time.Second,
	}, store, bus)
	featureEngine.OnComputed = func(symbol string, tf int) { prom.FeaturesComputedTotal.Inc() }
	go featureEngine.RunStreamConsumer(ctx)
	go featureEngine.RunFallback(ctx)

	// ---- Signal Engine ----
	signalEngine := signalengine.New(signalengine.Config{
		Symbols:               cfg.Symbols,
		Timeframes:            tfs,
		PrimaryTimeframe:      cfg.PrimaryTimeframe,
		SignalCooldown:        time.Duration(cfg.SignalCooldownSeconds) * time.Second,
		MTFAlignmentRequired:  cfg.MTFAlignmentRequired,
		MTFMinAligned:         cfg.MTFMinAligned,
		SignalScoreThreshold:  cfg.SignalScoreThreshold,
		AIEnabled:             cfg.AIEnabled,
		AIConfidenceThreshold: cfg.AIConfidenceThreshold,
	}, store, eventQueue, tr, persistence, dispatcher, predictor)
	go signalEngine.Run(ctx)

	// ---- Ingestion: handlers shared by collectors and poller ----
	handlers := &ingestion.Handlers{
		Store: store,
		Bus:   bus,
		Metric: &ingestion.Metrics{
			ValidationDropped: func(kind string) { prom.ValidationFailuresTotal.WithLabelValues(kind).Inc() },
			BusPublishDropped: func() { prom.IngestionDroppedTotal.WithLabelValues("bus_publish").Inc() },
		},
	}

	streams := buildStreams(cfg.Symbols, tfs)
	chunks := ingestion.ChunkStreams(streams, cfg.WSMaxStreamsPerConn)
	slog.Info("signalengine: starting collectors", "chunks", len(chunks), "streams", len(streams))
	for _, chunk := range chunks {
		collector := ingestion.NewCollector(ingestion.CollectorConfig{
			BaseWSURL:         cfg.WSBaseURL,
			Streams:           chunk,
			PingInterval:      time.Duration(cfg.WSPingInterval * float64(time.Second)),
			ReconnectDelay:    time.Duration(cfg.WSReconnectDelay * float64(time.Second)),
			MaxReconnectDelay: 30 * time.Second,
		}, handlers)
		collector.OnReconnect = func() {
			prom.WSReconnectsTotal.Inc()
			health.SetIngestionConnected(true)
			health.SetLastMessageTime(time.Now())
		}
		go func() {
			if err := collector.Run(ctx); err != nil && ctx.Err() == nil {
				slog.Error("signalengine: collector exited", "err", err)
			}
		}()
	}
	health.SetIngestionConnected(true)

	poller := ingestion.NewPoller(ingestion.PollerConfig{
		BaseRESTURL:         cfg.RESTBaseURL,
		Symbols:             cfg.Symbols,
		FundingPollInterval: time.Duration(cfg.FundingPollInterval * float64(time.Second)),
		OIHistoryCap:        cfg.OIDeltaWindow * 3,
		OIHistoryTTL:        int64(cfg.FundingPollInterval * 10),
		FundingHistoryCap:   cfg.FundingZScoreWindow * 2,
		FundingHistoryTTL:   int64(cfg.FundingPollInterval * 20),
	}, handlers)
	poller.OnRequestError = func(endpoint string) { prom.IngestionDroppedTotal.WithLabelValues(endpoint).Inc() }
	go poller.RunOpenInterest(ctx)
	go poller.RunFunding(ctx)

	slog.Info("signalengine: pipeline ready")

	<-sigCh
	slog.Info("signalengine: shutdown signal received, cleaning up")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Stop(shutdownCtx)

	slog.Info("signalengine: shutdown complete")
	return nil
}

// buildStreams expands the symbol/timeframe universe into Binance combined
// stream names: klines for every enabled timeframe plus depth, mark price
// and liquidation streams per symbol.
func buildStreams(symbols []string, tfs []int) []string {
	streams := make([]string, 0, len(symbols)*(len(tfs)+3))
	for _, sym := range symbols {
		lower := strings.ToLower(sym)
		for _, tf := range tfs {
			suffix := tfSuffix(tf)
			if suffix == "" {
				continue
			}
			streams = append(streams, lower+"@kline_"+suffix)
		}
		streams = append(streams, lower+"@depth10@100ms")
		streams = append(streams, lower+"@markPrice@1s")
		streams = append(streams, lower+"@forceOrder")
	}
	return streams
}

// tfSuffix maps a timeframe in seconds to the Binance kline interval token.
// Unsupported timeframes are skipped rather than guessed.
func tfSuffix(tf int) string {
	switch tf {
	case 60:
		return "1m"
	case 300:
		return "5m"
	case 900:
		return "15m"
	case 3600:
		return "1h"
	default:
		return ""
	}
}
