package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/Melashkevich/MarketScan/models"
)

// Load builds the runtime configuration from environment variables,
// falling back to defaults for anything unset or unparsable.
func Load() *models.Config {
	cfg := &models.Config{
		BrokerBaseURL:    getEnv("BROKER_BASE_URL", "https://demo-api-capital.backend-capital.com"),
		BrokerAPIKey:     os.Getenv("BROKER_API_KEY"),
		BrokerIdentifier: os.Getenv("BROKER_IDENTIFIER"),
		BrokerPassword:   os.Getenv("BROKER_PASSWORD"),
		RequestTimeout:   getEnvInt("REQUEST_TIMEOUT", 30),
		ScanTimeframe:    getEnv("SCAN_TIMEFRAME", "1h"),
		HistoryCount:     getEnvInt("HISTORY_COUNT", 100),
		TopN:             getEnvInt("TOP_N", 10),
		AutoTrade:        getEnvBool("AUTO_TRADE", true),
		TradeSize:        getEnvFloat("TRADE_SIZE", 1.0),
		FetchWorkers:     getEnvInt("FETCH_WORKERS", 4),
		ScanHour:         getEnvInt("SCAN_HOUR", 0),
		ScanMinute:       getEnvInt("SCAN_MINUTE", 10),
		ReportFile:       getEnv("REPORT_FILE", "latest_daily_report.json"),
		Strategies:       getEnv("STRATEGIES", "rsi_reversal,sma_crossover"),
		RSIPeriod:        getEnvInt("RSI_PERIOD", 14),
		FastSMAPeriod:    getEnvInt("FAST_SMA_PERIOD", 9),
		SlowSMAPeriod:    getEnvInt("SLOW_SMA_PERIOD", 21),
		VolWindow:        getEnvInt("VOL_WINDOW", 10),
		DBHost:           os.Getenv("DB_HOST"),
		DBPort:           getEnv("DB_PORT", "5432"),
		DBUser:           os.Getenv("DB_USER"),
		DBPassword:       os.Getenv("DB_PASSWORD"),
		DBName:           os.Getenv("DB_NAME"),
		DBSSLMode:        getEnv("DB_SSLMODE", "disable"),
		TelegramToken:    os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:   getEnvInt64("TELEGRAM_CHAT_ID", 0),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
	}
	return cfg
}

// ActiveStrategies splits the configured strategy list.
func ActiveStrategies(cfg *models.Config) []string {
	var names []string
	for _, name := range strings.Split(cfg.Strategies, ",") {
		name = strings.TrimSpace(name)
		if name != "" {
			names = append(names, name)
		}
	}
	return names
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "true" || v == "1" || v == "yes"
	}
	return fallback
}
