package scanner

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Melashkevich/MarketScan/internal/ensemble"
	"github.com/Melashkevich/MarketScan/internal/indicators"
	"github.com/Melashkevich/MarketScan/models"
)

// Trade-action priority. When several rules fire for the same asset the
// highest-priority action wins: a fresh crossover outranks an RSI
// extreme, and a volatility spike alone never trades.
const (
	priorityRSI       = 1
	priorityCrossover = 2
)

type actionCandidate struct {
	side     models.Side
	priority int
}

// Scanner runs one scheduled scan cycle over the asset universe.
type Scanner struct {
	broker models.BrokerClient
	store  models.ReportStore
	cfg    *models.Config
	logger zerolog.Logger
}

func New(broker models.BrokerClient, store models.ReportStore, cfg *models.Config) *Scanner {
	return &Scanner{
		broker: broker,
		store:  store,
		cfg:    cfg,
		logger: log.With().Str("component", "scanner").Logger(),
	}
}

// Analyze applies the threshold rules to one close-price series and
// returns the triggered signal descriptions plus the resolved trade
// action, nil when no rule wants to trade. Insufficient data yields no
// signals rather than an error.
func (s *Scanner) Analyze(closes []float64) ([]string, *models.Side) {
	if len(closes) == 0 {
		return nil, nil
	}

	var signals []string
	var action *actionCandidate

	propose := func(side models.Side, priority int) {
		if action == nil || priority >= action.priority {
			action = &actionCandidate{side: side, priority: priority}
		}
	}

	if rsi, ok := indicators.RSI(closes, s.cfg.RSIPeriod); ok {
		if rsi < 30 {
			signals = append(signals, "RSI oversold (potential bounce)")
			propose(models.SideBuy, priorityRSI)
		}
		if rsi > 70 {
			signals = append(signals, "RSI overbought (potential reversal)")
			propose(models.SideSell, priorityRSI)
		}
	}

	fast := indicators.SMASeries(closes, s.cfg.FastSMAPeriod)
	slow := indicators.SMASeries(closes, s.cfg.SlowSMAPeriod)
	if len(fast) >= 2 && len(slow) >= 2 {
		prevFast, lastFast := fast[len(fast)-2], fast[len(fast)-1]
		prevSlow, lastSlow := slow[len(slow)-2], slow[len(slow)-1]
		if prevFast <= prevSlow && lastFast > lastSlow {
			signals = append(signals, "Bullish SMA crossover")
			propose(models.SideBuy, priorityCrossover)
		}
		if prevFast >= prevSlow && lastFast < lastSlow {
			signals = append(signals, "Bearish SMA crossover")
			propose(models.SideSell, priorityCrossover)
		}
	}

	if vols := indicators.RollingStd(closes, s.cfg.VolWindow); len(vols) > 0 {
		var mean float64
		for _, v := range vols {
			mean += v
		}
		mean /= float64(len(vols))
		if vols[len(vols)-1] > mean*2 {
			signals = append(signals, "Volatility spike")
		}
	}

	if action == nil {
		return signals, nil
	}
	side := action.side
	return signals, &side
}

type assetOutcome struct {
	record models.AssetSignalRecord
	action *models.Side
}

// rankOutcomes keeps assets with at least one signal, sorts them by
// signal count descending and truncates to topN. The sort is stable over
// the universe order, so ties always resolve the same way regardless of
// how the per-asset fetches interleaved.
func rankOutcomes(outcomes []assetOutcome, topN int) []assetOutcome {
	flagged := make([]assetOutcome, 0, len(outcomes))
	for _, o := range outcomes {
		if len(o.record.Signals) > 0 {
			flagged = append(flagged, o)
		}
	}
	sort.SliceStable(flagged, func(i, j int) bool {
		return len(flagged[i].record.Signals) > len(flagged[j].record.Signals)
	})
	if topN > 0 && len(flagged) > topN {
		flagged = flagged[:topN]
	}
	return flagged
}

// RunCycle executes one complete scan: universe fetch, per-asset
// analysis, ranking, optional auto-trading, and the atomic report write.
// Per-asset failures are absorbed; only an unreachable universe or a
// failed persist aborts the cycle, leaving the previous report in place.
func (s *Scanner) RunCycle(ctx context.Context) (*models.DailyReport, error) {
	started := time.Now()
	assets, err := s.broker.ListAssets(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching asset universe: %w", err)
	}
	s.logger.Info().Int("assets", len(assets)).Msg("Scan cycle started")

	outcomes := s.analyzeUniverse(ctx, assets)

	flagged := rankOutcomes(outcomes, s.cfg.TopN)

	report := &models.DailyReport{
		Date:       started.UTC().Format("2006-01-02"),
		Assets:     make([]models.AssetSignalRecord, 0, len(flagged)),
		AutoTrades: []models.TradeAttempt{},
	}
	for _, o := range flagged {
		report.Assets = append(report.Assets, o.record)
		if s.cfg.AutoTrade && o.action != nil {
			report.AutoTrades = append(report.AutoTrades, s.submitTrade(ctx, o.record.Symbol, *o.action))
		}
	}

	if err := s.store.Save(report); err != nil {
		return nil, fmt.Errorf("persisting daily report: %w", err)
	}

	s.logger.Info().
		Int("flagged", len(report.Assets)).
		Int("trades", len(report.AutoTrades)).
		Dur("elapsed", time.Since(started)).
		Msg("Scan cycle finished")
	return report, nil
}

// analyzeUniverse fetches and analyzes every asset with bounded
// concurrency. Results come back indexed by universe position, so
// fetch-completion order never leaks into the ranking.
func (s *Scanner) analyzeUniverse(ctx context.Context, assets []models.Asset) []assetOutcome {
	workers := s.cfg.FetchWorkers
	if workers < 1 {
		workers = 1
	}

	outcomes := make([]assetOutcome, len(assets))
	jobs := make(chan int)
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				outcomes[i] = s.analyzeAsset(ctx, assets[i])
			}
		}()
	}
	for i := range assets {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return outcomes
}

func (s *Scanner) analyzeAsset(ctx context.Context, asset models.Asset) assetOutcome {
	outcome := assetOutcome{record: models.AssetSignalRecord{Symbol: asset.Symbol}}
	if asset.Symbol == "" {
		return outcome
	}

	candles, err := s.broker.GetHistory(ctx, asset.Symbol, s.cfg.ScanTimeframe, s.cfg.HistoryCount)
	if err != nil {
		s.logger.Warn().Err(err).Str("symbol", asset.Symbol).Msg("History fetch failed, skipping asset")
		return outcome
	}

	closes := make([]float64, 0, len(candles))
	for _, c := range candles {
		closes = append(closes, c.Close)
	}
	outcome.record.Signals, outcome.action = s.Analyze(closes)
	return outcome
}

// submitTrade sends one fixed-size order and records the attempt. Broker
// errors become part of the record instead of failing the cycle.
func (s *Scanner) submitTrade(ctx context.Context, symbol string, side models.Side) models.TradeAttempt {
	attempt := models.TradeAttempt{Symbol: symbol, Side: side}

	result, err := s.broker.SubmitOrder(ctx, models.OrderRequest{
		Symbol: symbol,
		Side:   side,
		Size:   s.cfg.TradeSize,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("symbol", symbol).Msg("Order submission failed")
		attempt.Response, _ = json.Marshal(map[string]string{"error": err.Error()})
		return attempt
	}

	raw, err := json.Marshal(result)
	if err != nil {
		raw, _ = json.Marshal(map[string]string{"error": "unencodable broker response"})
	}
	attempt.Response = raw
	return attempt
}

// EnsembleScan evaluates the whole universe through the weighted
// strategy ensemble. It returns results ranked by confidence, ties
// keeping universe order, plus the direction each symbol actually moved
// over the trailing day so callers can score earlier predictions. When
// the caller supplies no volatility side channel it is derived from the
// fetched history.
func (s *Scanner) EnsembleScan(ctx context.Context, engine *ensemble.Engine, side ensemble.SideChannels) ([]models.EnsembleResult, map[string]models.Direction, error) {
	assets, err := s.broker.ListAssets(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("fetching asset universe: %w", err)
	}

	prices := make(map[string][]float64, len(assets))
	order := make([]string, 0, len(assets))
	for _, asset := range assets {
		if asset.Symbol == "" {
			continue
		}
		candles, err := s.broker.GetHistory(ctx, asset.Symbol, s.cfg.ScanTimeframe, s.cfg.HistoryCount)
		if err != nil {
			s.logger.Warn().Err(err).Str("symbol", asset.Symbol).Msg("History fetch failed, skipping asset")
			continue
		}
		closes := make([]float64, 0, len(candles))
		for _, c := range candles {
			closes = append(closes, c.Close)
		}
		prices[asset.Symbol] = closes
		order = append(order, asset.Symbol)
	}

	if side.Volatility == nil {
		side.Volatility = make(map[string]float64, len(prices))
		for symbol, closes := range prices {
			side.Volatility[symbol] = indicators.Volatility(closes)
		}
	}

	bySymbol := engine.Evaluate(prices, side)

	ranked := make([]models.EnsembleResult, 0, len(order))
	realized := make(map[string]models.Direction, len(order))
	for _, symbol := range order {
		ranked = append(ranked, bySymbol[symbol])
		realized[symbol] = realizedDirection(prices[symbol], s.cfg.ScanTimeframe)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Confidence > ranked[j].Confidence
	})
	return ranked, realized, nil
}

// Moves inside this band count as flat.
const flatMovePct = 0.1

// realizedDirection classifies the trailing day's move of a close
// series.
func realizedDirection(closes []float64, timeframe string) models.Direction {
	day := models.CandlesPerDay(timeframe)
	if len(closes) > day {
		closes = closes[len(closes)-day:]
	}
	pc := indicators.PercentChange(closes)
	switch {
	case pc > flatMovePct:
		return models.DirectionLong
	case pc < -flatMovePct:
		return models.DirectionShort
	default:
		return models.DirectionHold
	}
}
