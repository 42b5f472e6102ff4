package models

import (
	"context"
	"time"
)

// BrokerClient is the single stable contract the engine consumes. All
// historical shapes of the broker API are collapsed behind it.
type BrokerClient interface {
	// Login opens a session. A non-nil challenge means the broker
	// demands a second factor; complete it with CompleteLogin.
	Login(ctx context.Context) (*TwoFactorChallenge, error)
	CompleteLogin(ctx context.Context, challenge *TwoFactorChallenge, otp string) error
	AccountInfo(ctx context.Context) (*AccountInfo, error)
	ListAssets(ctx context.Context) ([]Asset, error)
	// GetHistory returns candles oldest-first. An empty result is not
	// an error.
	GetHistory(ctx context.Context, symbol, timeframe string, count int) ([]Candle, error)
	// SubmitOrder reports rejections inside OrderResult; the error is
	// reserved for transport-level failures.
	SubmitOrder(ctx context.Context, req OrderRequest) (*OrderResult, error)
	GetTradeHistory(ctx context.Context, from, to time.Time) ([]TradeRecord, error)
}

// ReportStore persists the single-slot daily report. Save must be atomic
// with respect to concurrent Load calls.
type ReportStore interface {
	Save(report *DailyReport) error
	Load() (*DailyReport, error)
}

// Notifier delivers operator-facing messages.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}
