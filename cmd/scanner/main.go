package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Melashkevich/MarketScan/config"
	"github.com/Melashkevich/MarketScan/internal/analytics"
	"github.com/Melashkevich/MarketScan/internal/broker/capital"
	"github.com/Melashkevich/MarketScan/internal/ensemble"
	"github.com/Melashkevich/MarketScan/internal/notify"
	"github.com/Melashkevich/MarketScan/internal/report"
	"github.com/Melashkevich/MarketScan/internal/scanner"
	"github.com/Melashkevich/MarketScan/internal/schedule"
	"github.com/Melashkevich/MarketScan/internal/strategy"
	"github.com/Melashkevich/MarketScan/models"
)

func init() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg(".env file not found, relying on actual environment variables")
	}
}

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)
	log.Info().Msg("Starting market scanner daemon")
	printConfig(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	setupSignalHandling(cancel)

	broker := capital.NewClient(cfg)
	if err := login(ctx, broker); err != nil {
		log.Fatal().Err(err).Msg("Broker login failed")
	}

	store := report.NewFileStore(cfg.ReportFile)
	notifier := buildNotifier(cfg)

	var history *analytics.Store
	if cfg.DBHost != "" {
		var err error
		history, err = analytics.New(analytics.ConnectionParams{
			Host:     cfg.DBHost,
			Port:     cfg.DBPort,
			User:     cfg.DBUser,
			Password: cfg.DBPassword,
			DBName:   cfg.DBName,
			SSLMode:  cfg.DBSSLMode,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize analytics store")
		}
		defer history.Close()
	} else {
		log.Info().Msg("DB_HOST not set, strategy win-rate tracking disabled")
	}

	engine := ensemble.New(strategy.DefaultRegistry(cfg), config.ActiveStrategies(cfg))
	scan := scanner.New(broker, store, cfg)

	job := func(ctx context.Context) error {
		return runScan(ctx, scan, engine, history, notifier)
	}

	sched := schedule.New(cfg.ScanHour, cfg.ScanMinute, job)
	if err := sched.Run(ctx); err != nil && err != context.Canceled {
		log.Fatal().Err(err).Msg("Scheduler stopped")
	}
}

// runScan executes one full daily cycle: the rule scan with auto-trading
// and the persisted report, then the ensemble pass that scores yesterday's
// votes and records today's.
func runScan(ctx context.Context, scan *scanner.Scanner, engine *ensemble.Engine, history *analytics.Store, notifier models.Notifier) error {
	rep, err := scan.RunCycle(ctx)
	if err != nil {
		if nerr := notifier.Notify(ctx, fmt.Sprintf("⚠️ Daily scan failed: %v", err)); nerr != nil {
			log.Error().Err(nerr).Msg("Failed to deliver failure alert")
		}
		return err
	}

	side := ensemble.SideChannels{}
	if history != nil {
		if rates, err := history.BacktestWinRates(ctx); err != nil {
			log.Warn().Err(err).Msg("Backtest win rates unavailable, skipping adjustment")
		} else {
			side.BacktestWinRates = rates
		}
		if recent, err := history.RecentPerformance(ctx, 14*24*time.Hour); err != nil {
			log.Warn().Err(err).Msg("Recent performance unavailable, skipping adjustment")
		} else {
			side.RecentPerformance = recent
		}
	}

	ranked, realized, err := scan.EnsembleScan(ctx, engine, side)
	if err != nil {
		log.Error().Err(err).Msg("Ensemble scan failed")
	} else if history != nil {
		if day, perr := time.Parse("2006-01-02", rep.Date); perr == nil {
			yesterday := day.AddDate(0, 0, -1).Format("2006-01-02")
			if err := history.ResolveDay(ctx, yesterday, realized); err != nil {
				log.Warn().Err(err).Msg("Failed to score yesterday's signals")
			}
		}
		if err := history.RecordEnsemble(ctx, rep.Date, ranked); err != nil {
			log.Warn().Err(err).Msg("Failed to record ensemble signals")
		}
	}

	summary := fmt.Sprintf("📊 Daily scan %s: %d assets flagged, %d auto trades",
		rep.Date, len(rep.Assets), len(rep.AutoTrades))
	if err := notifier.Notify(ctx, summary); err != nil {
		log.Error().Err(err).Msg("Failed to deliver scan summary")
	}
	return nil
}

// login handles both single-step and two-step broker sessions. A pending
// one-time password challenge is completed from the BROKER_OTP variable.
func login(ctx context.Context, client *capital.Client) error {
	challenge, err := client.Login(ctx)
	if err != nil {
		return err
	}
	if challenge == nil {
		return nil
	}
	otp := os.Getenv("BROKER_OTP")
	if otp == "" {
		return fmt.Errorf("broker requires a one-time password, set BROKER_OTP")
	}
	return client.CompleteLogin(ctx, challenge, otp)
}

func buildNotifier(cfg *models.Config) models.Notifier {
	if cfg.TelegramToken == "" || cfg.TelegramChatID == 0 {
		log.Info().Msg("Telegram not configured, notifications disabled")
		return notify.Noop{}
	}
	notifier, err := notify.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID)
	if err != nil {
		log.Warn().Err(err).Msg("Telegram init failed, notifications disabled")
		return notify.Noop{}
	}
	return notifier
}

// setupSignalHandling configures signal handling for graceful shutdown
func setupSignalHandling(cancel context.CancelFunc) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		log.Info().Msg("Shutdown signal received, exiting...")
		cancel()
	}()
}

// setupLogging configures the logger
func setupLogging(logLevel string) {
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log.Logger = log.Output(output)

	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log.Logger = log.Logger.Level(level)
}

func printConfig(cfg *models.Config) {
	log.Info().
		Str("Timeframe", cfg.ScanTimeframe).
		Int("HistoryCount", cfg.HistoryCount).
		Int("TopN", cfg.TopN).
		Bool("AutoTrade", cfg.AutoTrade).
		Float64("TradeSize", cfg.TradeSize).
		Int("FetchWorkers", cfg.FetchWorkers).
		Int("ScanHour", cfg.ScanHour).
		Int("ScanMinute", cfg.ScanMinute).
		Str("Strategies", cfg.Strategies).
		Int("RSIPeriod", cfg.RSIPeriod).
		Int("FastSMAPeriod", cfg.FastSMAPeriod).
		Int("SlowSMAPeriod", cfg.SlowSMAPeriod).
		Msg("Configuration loaded")
}
