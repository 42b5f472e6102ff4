package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Melashkevich/MarketScan/config"
	"github.com/Melashkevich/MarketScan/internal/broker/capital"
	"github.com/Melashkevich/MarketScan/internal/report"
)

// Builds the human-oriented daily summary (trades, major asset moves,
// watch list) and prints it to stdout.
func init() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg(".env file not found, relying on actual environment variables")
	}
}

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	broker := capital.NewClient(cfg)
	if challenge, err := broker.Login(ctx); err != nil {
		log.Fatal().Err(err).Msg("Broker login failed")
	} else if challenge != nil {
		otp := os.Getenv("BROKER_OTP")
		if otp == "" {
			log.Fatal().Msg("Broker requires a one-time password, set BROKER_OTP")
		}
		if err := broker.CompleteLogin(ctx, challenge, otp); err != nil {
			log.Fatal().Err(err).Msg("One-time password rejected")
		}
	}

	summary, err := report.NewSummaryBuilder(broker).Build(ctx, time.Now())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build daily summary")
	}

	out, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to encode summary")
	}
	fmt.Println(string(out))
}

func setupLogging(logLevel string) {
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log.Logger = log.Output(output)

	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log.Logger = log.Logger.Level(level)
}
