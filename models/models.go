package models

import (
	"encoding/json"
)

// Direction is a directional call produced by a strategy or the ensemble.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
	DirectionHold  Direction = "hold"
)

// Side is the order side sent to the broker.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

type Config struct {
	BrokerBaseURL    string  `env:"BROKER_BASE_URL" envDefault:"https://demo-api-capital.backend-capital.com"`
	BrokerAPIKey     string  `env:"BROKER_API_KEY" envDefault:"-"`
	BrokerIdentifier string  `env:"BROKER_IDENTIFIER" envDefault:"-"`
	BrokerPassword   string  `env:"BROKER_PASSWORD" envDefault:"-"`
	RequestTimeout   int     `env:"REQUEST_TIMEOUT" envDefault:"30"` // seconds
	ScanTimeframe    string  `env:"SCAN_TIMEFRAME" envDefault:"1h"`
	HistoryCount     int     `env:"HISTORY_COUNT" envDefault:"100"`
	TopN             int     `env:"TOP_N" envDefault:"10"`
	AutoTrade        bool    `env:"AUTO_TRADE" envDefault:"true"`
	TradeSize        float64 `env:"TRADE_SIZE" envDefault:"1.0"`
	FetchWorkers     int     `env:"FETCH_WORKERS" envDefault:"4"`
	ScanHour         int     `env:"SCAN_HOUR" envDefault:"0"`
	ScanMinute       int     `env:"SCAN_MINUTE" envDefault:"10"`
	ReportFile       string  `env:"REPORT_FILE" envDefault:"latest_daily_report.json"`
	Strategies       string  `env:"STRATEGIES" envDefault:"rsi_reversal,sma_crossover"`
	RSIPeriod        int     `env:"RSI_PERIOD" envDefault:"14"`
	FastSMAPeriod    int     `env:"FAST_SMA_PERIOD" envDefault:"9"`
	SlowSMAPeriod    int     `env:"SLOW_SMA_PERIOD" envDefault:"21"`
	VolWindow        int     `env:"VOL_WINDOW" envDefault:"10"`
	DBHost           string  `env:"DB_HOST" envDefault:""`
	DBPort           string  `env:"DB_PORT" envDefault:"5432"`
	DBUser           string  `env:"DB_USER" envDefault:""`
	DBPassword       string  `env:"DB_PASSWORD" envDefault:""`
	DBName           string  `env:"DB_NAME" envDefault:""`
	DBSSLMode        string  `env:"DB_SSLMODE" envDefault:"disable"`
	TelegramToken    string  `env:"TELEGRAM_BOT_TOKEN" envDefault:""`
	TelegramChatID   int64   `env:"TELEGRAM_CHAT_ID" envDefault:"0"`
	LogLevel         string  `env:"LOG_LEVEL" envDefault:"info"`
}

// Candle represents a single price candle
type Candle struct {
	Datetime string  `json:"datetime"`
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	Volume   float64 `json:"volume,omitempty"`
}

// Asset is one tradable instrument from the broker's universe.
type Asset struct {
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
	Type   string `json:"type,omitempty"`
}

// StrategyResult is the raw output of one strategy for one asset.
type StrategyResult struct {
	Direction  Direction `json:"signal"`
	Confidence float64   `json:"raw_confidence"`
}

// StrategyBreakdown is a StrategyResult plus the adjustments applied
// by the ensemble engine.
type StrategyBreakdown struct {
	Signal          Direction `json:"signal"`
	RawConfidence   float64   `json:"raw_confidence"`
	BacktestWinRate *float64  `json:"backtest_win_rate,omitempty"`
	RecentWinRate   *float64  `json:"recent_win_rate,omitempty"`
	FinalConfidence float64   `json:"final_confidence"`
}

// EnsembleResult is the fused signal for one symbol over one scan cycle.
type EnsembleResult struct {
	Symbol           string                       `json:"symbol"`
	Signal           Direction                    `json:"signal"`
	Confidence       float64                      `json:"confidence"`
	Agreement        float64                      `json:"agreement"`
	VolatilityFactor float64                      `json:"volatility_factor"`
	PerStrategy      map[string]StrategyBreakdown `json:"per_strategy"`
}

// AssetSignalRecord holds the triggered-rule descriptions for one asset
// from the threshold-rule scanner.
type AssetSignalRecord struct {
	Symbol  string   `json:"symbol"`
	Signals []string `json:"signals"`
}

// TradeAttempt records one auto-submitted order. The broker response is
// passed through opaque; the engine never interprets success or failure.
type TradeAttempt struct {
	Symbol   string          `json:"symbol"`
	Side     Side            `json:"side"`
	Response json.RawMessage `json:"response"`
}

// DailyReport is the single-slot report document produced once per cycle.
// Field names match the persisted file format the reporting endpoint reads.
type DailyReport struct {
	Date       string              `json:"date"`
	Assets     []AssetSignalRecord `json:"assets"`
	AutoTrades []TradeAttempt      `json:"auto_trades"`
}

// OrderRequest describes one order submission.
type OrderRequest struct {
	Symbol     string
	Side       Side
	Size       float64
	TakeProfit *float64
	StopLoss   *float64
}

// OrderResult carries the broker's answer to an order submission.
// Rejections live in Status/Reason, not in an error.
type OrderResult struct {
	Status        string          `json:"status"`
	DealReference string          `json:"deal_reference,omitempty"`
	Reason        string          `json:"reason,omitempty"`
	Raw           json.RawMessage `json:"raw,omitempty"`
}

// TradeRecord is one closed trade from the broker's history.
type TradeRecord struct {
	Date   string  `json:"date"`
	Symbol string  `json:"symbol,omitempty"`
	Profit float64 `json:"profit"`
}

// AccountInfo is the broker account snapshot.
type AccountInfo struct {
	AccountID string  `json:"account_id"`
	Balance   float64 `json:"balance"`
	Currency  string  `json:"currency"`
}

// AssetReport is the per-asset analytics block of the daily summary.
// Pointer fields distinguish "no data" from a numeric zero.
type AssetReport struct {
	Symbol        string   `json:"symbol"`
	Name          string   `json:"name"`
	PercentChange *float64 `json:"percent_change"`
	Volatility    *float64 `json:"volatility"`
	RSI           *float64 `json:"rsi"`
}

// WatchedAsset is an AssetReport flagged as worth watching, with the
// reason it was selected.
type WatchedAsset struct {
	AssetReport
	Signal string `json:"signal"` // "RSI" or "Move"
}

// DailySummary is the richer same-day report served to users on demand.
type DailySummary struct {
	Date           string         `json:"date"`
	NumTrades      int            `json:"num_trades"`
	TotalProfit    float64        `json:"total_profit"`
	Wins           int            `json:"wins"`
	Losses         int            `json:"losses"`
	Trades         []TradeRecord  `json:"trades"`
	MarketInsights string         `json:"market_insights"`
	AssetsToWatch  []WatchedAsset `json:"assets_to_watch"`
}
