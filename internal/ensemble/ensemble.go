package ensemble

import (
	"math"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Melashkevich/MarketScan/internal/strategy"
	"github.com/Melashkevich/MarketScan/models"
)

// SideChannels carries the optional historical context supplied by the
// caller for one evaluation. The engine never caches any of it.
type SideChannels struct {
	// BacktestWinRates maps symbol -> strategy -> historical win rate.
	BacktestWinRates map[string]map[string]float64
	// RecentPerformance maps symbol -> strategy -> recent live win rate.
	RecentPerformance map[string]map[string]float64
	// Volatility maps symbol -> cross-asset comparable volatility.
	Volatility map[string]float64
}

// Engine fuses the votes of the active strategies into one signal per
// symbol. It is stateless between calls.
type Engine struct {
	registry *strategy.Registry
	active   []string
	logger   zerolog.Logger
}

func New(registry *strategy.Registry, active []string) *Engine {
	return &Engine{
		registry: registry,
		active:   active,
		logger:   log.With().Str("component", "ensemble").Logger(),
	}
}

// Evaluate produces one EnsembleResult per symbol in prices. Active
// strategy names missing from the registry are skipped; they still count
// toward the agreement denominator so a partially deployed strategy set
// reads as weaker consensus rather than disappearing silently.
func (e *Engine) Evaluate(prices map[string][]float64, side SideChannels) map[string]models.EnsembleResult {
	results := make(map[string]models.EnsembleResult, len(prices))
	for symbol, series := range prices {
		results[symbol] = e.evaluateSymbol(symbol, series, side)
	}
	return results
}

func (e *Engine) evaluateSymbol(symbol string, prices []float64, side SideChannels) models.EnsembleResult {
	details := make(map[string]models.StrategyBreakdown, len(e.active))
	counts := map[models.Direction]int{}
	confByDir := map[models.Direction][]float64{}

	for _, name := range e.active {
		strat, ok := e.registry.Get(name)
		if !ok {
			e.logger.Debug().Str("strategy", name).Msg("strategy not registered, skipping")
			continue
		}
		raw := strat.GenerateSignal(prices)
		breakdown := models.StrategyBreakdown{
			Signal:        raw.Direction,
			RawConfidence: raw.Confidence,
		}

		conf := raw.Confidence
		if wr, ok := lookup(side.BacktestWinRates, symbol, name); ok {
			conf *= 0.6 + 0.4*wr
			breakdown.BacktestWinRate = &wr
		}
		if wr, ok := lookup(side.RecentPerformance, symbol, name); ok {
			conf *= 0.7 + 0.3*wr
			breakdown.RecentWinRate = &wr
		}
		breakdown.FinalConfidence = conf
		details[name] = breakdown

		counts[raw.Direction]++
		confByDir[raw.Direction] = append(confByDir[raw.Direction], conf)
	}

	majority := majorityDirection(counts)

	agreement := 0.0
	if len(e.active) > 0 {
		agreement = float64(counts[majority]) / float64(len(e.active))
	}

	meanConf := 0.0
	if votes := confByDir[majority]; len(votes) > 0 {
		var sum float64
		for _, c := range votes {
			sum += c
		}
		meanConf = sum / float64(len(votes))
	}

	volFactor := volatilityFactor(side.Volatility, symbol)

	return models.EnsembleResult{
		Symbol:           symbol,
		Signal:           majority,
		Confidence:       round2(agreement * meanConf * volFactor),
		Agreement:        agreement,
		VolatilityFactor: volFactor,
		PerStrategy:      details,
	}
}

// majorityDirection picks the direction with the highest vote count.
// Ties resolve in the fixed order long, short, hold so the outcome never
// depends on map iteration order.
func majorityDirection(counts map[models.Direction]int) models.Direction {
	best := models.DirectionHold
	bestCount := -1
	for _, dir := range []models.Direction{models.DirectionLong, models.DirectionShort, models.DirectionHold} {
		if counts[dir] > bestCount {
			best = dir
			bestCount = counts[dir]
		}
	}
	return best
}

// volatilityFactor penalizes relatively volatile symbols, floored at 0.7
// so one noisy asset can never zero out its confidence. Missing data
// means no penalty.
func volatilityFactor(volatility map[string]float64, symbol string) float64 {
	vol, ok := volatility[symbol]
	if !ok {
		return 1.0
	}
	maxVol := 0.0
	for _, v := range volatility {
		if v > maxVol {
			maxVol = v
		}
	}
	if maxVol == 0 {
		return 1.0
	}
	return math.Max(0.7, 1.0-0.3*(vol/maxVol))
}

func lookup(m map[string]map[string]float64, symbol, name string) (float64, bool) {
	if m == nil {
		return 0, false
	}
	inner, ok := m[symbol]
	if !ok {
		return 0, false
	}
	v, ok := inner[name]
	return v, ok
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
