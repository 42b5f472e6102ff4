package scanner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Melashkevich/MarketScan/internal/ensemble"
	"github.com/Melashkevich/MarketScan/internal/strategy"
	"github.com/Melashkevich/MarketScan/models"
)

type fakeBroker struct {
	assets  []models.Asset
	listErr error
	history map[string][]models.Candle
	histErr map[string]error
	orders  []models.OrderRequest
}

func (f *fakeBroker) Login(context.Context) (*models.TwoFactorChallenge, error) { return nil, nil }
func (f *fakeBroker) CompleteLogin(context.Context, *models.TwoFactorChallenge, string) error {
	return nil
}
func (f *fakeBroker) AccountInfo(context.Context) (*models.AccountInfo, error) { return nil, nil }

func (f *fakeBroker) ListAssets(context.Context) ([]models.Asset, error) {
	return f.assets, f.listErr
}

func (f *fakeBroker) GetHistory(_ context.Context, symbol, _ string, _ int) ([]models.Candle, error) {
	if err, ok := f.histErr[symbol]; ok {
		return nil, err
	}
	return f.history[symbol], nil
}

func (f *fakeBroker) SubmitOrder(_ context.Context, req models.OrderRequest) (*models.OrderResult, error) {
	f.orders = append(f.orders, req)
	return &models.OrderResult{Status: "OPEN", DealReference: "ref-1"}, nil
}

func (f *fakeBroker) GetTradeHistory(context.Context, time.Time, time.Time) ([]models.TradeRecord, error) {
	return nil, nil
}

type fakeStore struct {
	saved *models.DailyReport
}

func (f *fakeStore) Save(r *models.DailyReport) error  { f.saved = r; return nil }
func (f *fakeStore) Load() (*models.DailyReport, error) { return f.saved, nil }

func testConfig() *models.Config {
	return &models.Config{
		ScanTimeframe: "1h",
		HistoryCount:  100,
		TopN:          10,
		AutoTrade:     true,
		TradeSize:     1.0,
		FetchWorkers:  2,
		RSIPeriod:     14,
		FastSMAPeriod: 9,
		SlowSMAPeriod: 21,
		VolWindow:     10,
	}
}

func candlesFrom(closes []float64) []models.Candle {
	candles := make([]models.Candle, len(closes))
	for i, c := range closes {
		candles[i] = models.Candle{Close: c, Open: c, High: c + 1, Low: c - 1}
	}
	return candles
}

// Linear decline: RSI hits 0 (oversold), the fast average never crosses
// back above the slow one and volatility stays flat.
func decliningCloses(n int) []float64 {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = 200 - float64(i)
	}
	return closes
}

// Gentle sawtooth uptrend (+2, -1): RSI settles near 67, the fast average
// stays above the slow one, no volatility spike. Zero signals.
func quietCloses(n int) []float64 {
	closes := make([]float64, 0, n)
	v := 100.0
	for len(closes) < n {
		v += 2
		closes = append(closes, v)
		if len(closes) < n {
			v -= 1
			closes = append(closes, v)
		}
	}
	return closes
}

func TestAnalyzeOversold(t *testing.T) {
	s := New(&fakeBroker{}, &fakeStore{}, testConfig())
	signals, action := s.Analyze(decliningCloses(100))

	if len(signals) != 1 || signals[0] != "RSI oversold (potential bounce)" {
		t.Fatalf("signals = %v", signals)
	}
	if action == nil || *action != models.SideBuy {
		t.Errorf("action = %v, want BUY", action)
	}
}

func TestAnalyzeQuietSeries(t *testing.T) {
	s := New(&fakeBroker{}, &fakeStore{}, testConfig())
	signals, action := s.Analyze(quietCloses(100))

	if len(signals) != 0 {
		t.Errorf("signals = %v, want none", signals)
	}
	if action != nil {
		t.Errorf("action = %v, want nil", *action)
	}
}

func TestAnalyzeEmptySeries(t *testing.T) {
	s := New(&fakeBroker{}, &fakeStore{}, testConfig())
	signals, action := s.Analyze(nil)
	if signals != nil || action != nil {
		t.Errorf("expected nothing from empty input, got %v / %v", signals, action)
	}
}

func TestAnalyzeCrossoverOutranksRSI(t *testing.T) {
	// Rising seed window (RSI 100, wants SELL), then a flat stretch and a
	// final jump that produces a bullish crossover (wants BUY). The
	// crossover's priority must win.
	closes := make([]float64, 0, 101)
	for i := 1; i <= 15; i++ {
		closes = append(closes, float64(i))
	}
	for len(closes) < 100 {
		closes = append(closes, 100)
	}
	closes = append(closes, 130)

	s := New(&fakeBroker{}, &fakeStore{}, testConfig())
	signals, action := s.Analyze(closes)

	if !contains(signals, "RSI overbought (potential reversal)") {
		t.Errorf("missing overbought signal: %v", signals)
	}
	if !contains(signals, "Bullish SMA crossover") {
		t.Errorf("missing crossover signal: %v", signals)
	}
	if action == nil || *action != models.SideBuy {
		t.Errorf("action = %v, want BUY from the crossover", action)
	}
}

func TestAnalyzeVolatilitySpikeNeverTrades(t *testing.T) {
	closes := quietCloses(80)
	closes = append(closes, closes[len(closes)-1]+60)

	s := New(&fakeBroker{}, &fakeStore{}, testConfig())
	signals, action := s.Analyze(closes)

	if !contains(signals, "Volatility spike") {
		t.Fatalf("expected a volatility spike, got %v", signals)
	}
	if action != nil {
		t.Errorf("action = %v, want nil for a spike alone", *action)
	}
}

func TestRankOutcomesStable(t *testing.T) {
	mk := func(symbol string, n int) assetOutcome {
		signals := make([]string, n)
		for i := range signals {
			signals[i] = "signal"
		}
		return assetOutcome{record: models.AssetSignalRecord{Symbol: symbol, Signals: signals}}
	}
	outcomes := []assetOutcome{mk("A", 2), mk("B", 2), mk("C", 3), mk("D", 0)}

	ranked := rankOutcomes(outcomes, 3)
	got := make([]string, len(ranked))
	for i, o := range ranked {
		got[i] = o.record.Symbol
	}
	want := []string{"C", "A", "B"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ranking = %v, want %v", got, want)
		}
	}
}

func TestRunCycleSurvivesSingleAssetFailure(t *testing.T) {
	broker := &fakeBroker{
		assets: []models.Asset{
			{Symbol: "QUIET"}, {Symbol: "DOWN"}, {Symbol: "BROKEN"},
		},
		history: map[string][]models.Candle{
			"QUIET": candlesFrom(quietCloses(100)),
			"DOWN":  candlesFrom(decliningCloses(100)),
		},
		histErr: map[string]error{"BROKEN": errors.New("connection reset")},
	}
	store := &fakeStore{}
	s := New(broker, store, testConfig())

	report, err := s.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	if len(report.Assets) != 1 || report.Assets[0].Symbol != "DOWN" {
		t.Fatalf("ranked assets = %+v, want only DOWN", report.Assets)
	}
	if len(report.AutoTrades) != 1 || report.AutoTrades[0].Side != models.SideBuy {
		t.Fatalf("auto trades = %+v, want one BUY", report.AutoTrades)
	}
	if len(broker.orders) != 1 || broker.orders[0].Symbol != "DOWN" {
		t.Fatalf("submitted orders = %+v", broker.orders)
	}
	if store.saved == nil {
		t.Fatal("report was not persisted")
	}
}

func TestRunCycleAutoTradeDisabled(t *testing.T) {
	broker := &fakeBroker{
		assets:  []models.Asset{{Symbol: "DOWN"}},
		history: map[string][]models.Candle{"DOWN": candlesFrom(decliningCloses(100))},
	}
	cfg := testConfig()
	cfg.AutoTrade = false
	s := New(broker, &fakeStore{}, cfg)

	report, err := s.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	if len(report.AutoTrades) != 0 {
		t.Errorf("auto trades = %+v, want none", report.AutoTrades)
	}
	if len(broker.orders) != 0 {
		t.Errorf("orders submitted with auto-trade off: %+v", broker.orders)
	}
}

func TestRunCycleUniverseFailureIsFatal(t *testing.T) {
	broker := &fakeBroker{listErr: errors.New("session expired")}
	store := &fakeStore{}
	s := New(broker, store, testConfig())

	if _, err := s.RunCycle(context.Background()); err == nil {
		t.Fatal("expected an error when the universe cannot be fetched")
	}
	if store.saved != nil {
		t.Error("no report may be persisted for an aborted cycle")
	}
}

func TestEnsembleScanRanksAndScores(t *testing.T) {
	broker := &fakeBroker{
		assets: []models.Asset{{Symbol: "QUIET"}, {Symbol: "DOWN"}},
		history: map[string][]models.Candle{
			"DOWN":  candlesFrom(decliningCloses(100)),
			"QUIET": candlesFrom(quietCloses(100)),
		},
	}
	cfg := testConfig()
	s := New(broker, &fakeStore{}, cfg)
	engine := ensemble.New(strategy.DefaultRegistry(cfg), []string{"rsi_reversal", "sma_crossover"})

	ranked, realized, err := s.EnsembleScan(context.Background(), engine, ensemble.SideChannels{})
	if err != nil {
		t.Fatalf("EnsembleScan() error = %v", err)
	}
	if len(ranked) != 2 {
		t.Fatalf("ranked = %d results, want 2", len(ranked))
	}
	// The declining asset carries a full-confidence long vote from the
	// oversold strategy and outranks the quiet sawtooth.
	if ranked[0].Symbol != "DOWN" {
		t.Errorf("top ranked = %s, want DOWN", ranked[0].Symbol)
	}
	if ranked[0].Signal != models.DirectionLong {
		t.Errorf("DOWN signal = %s, want long", ranked[0].Signal)
	}
	if ranked[0].Confidence <= ranked[1].Confidence {
		t.Errorf("confidence not descending: %.2f <= %.2f", ranked[0].Confidence, ranked[1].Confidence)
	}
	if got := realized["DOWN"]; got != models.DirectionShort {
		t.Errorf("realized[DOWN] = %s, want short", got)
	}
	if got := realized["QUIET"]; got != models.DirectionLong {
		t.Errorf("realized[QUIET] = %s, want long", got)
	}
}

func TestEnsembleScanSkipsFailedHistory(t *testing.T) {
	broker := &fakeBroker{
		assets:  []models.Asset{{Symbol: "DOWN"}, {Symbol: "BROKEN"}},
		history: map[string][]models.Candle{"DOWN": candlesFrom(decliningCloses(100))},
		histErr: map[string]error{"BROKEN": errors.New("503")},
	}
	cfg := testConfig()
	s := New(broker, &fakeStore{}, cfg)
	engine := ensemble.New(strategy.DefaultRegistry(cfg), []string{"rsi_reversal"})

	ranked, _, err := s.EnsembleScan(context.Background(), engine, ensemble.SideChannels{})
	if err != nil {
		t.Fatalf("EnsembleScan() error = %v", err)
	}
	if len(ranked) != 1 || ranked[0].Symbol != "DOWN" {
		t.Errorf("ranked = %+v, want only DOWN", ranked)
	}
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
