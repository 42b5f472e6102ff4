package strategy

import (
	"math"

	"github.com/Melashkevich/MarketScan/internal/indicators"
	"github.com/Melashkevich/MarketScan/models"
)

// Strategy turns a chronological close-price series into one directional
// call with a confidence in [0,1].
type Strategy interface {
	GenerateSignal(prices []float64) models.StrategyResult
}

// RSIReversal goes long on oversold readings and short on overbought
// ones; confidence scales with the distance past the threshold.
type RSIReversal struct {
	Period int
}

func NewRSIReversal(period int) *RSIReversal {
	if period <= 0 {
		period = 14
	}
	return &RSIReversal{Period: period}
}

func (s *RSIReversal) GenerateSignal(prices []float64) models.StrategyResult {
	rsi, ok := indicators.RSI(prices, s.Period)
	if !ok {
		return models.StrategyResult{Direction: models.DirectionHold, Confidence: 0}
	}

	switch {
	case rsi < 30:
		return models.StrategyResult{
			Direction:  models.DirectionLong,
			Confidence: clamp01((30 - rsi) / 30),
		}
	case rsi > 70:
		return models.StrategyResult{
			Direction:  models.DirectionShort,
			Confidence: clamp01((rsi - 70) / 30),
		}
	default:
		// Neutral zone: conviction in "nothing happening" peaks at RSI 50.
		return models.StrategyResult{
			Direction:  models.DirectionHold,
			Confidence: clamp01(1 - math.Abs(rsi-50)/20),
		}
	}
}

// SMACrossover goes long when the fast average crosses above the slow one
// between the last two points, short on the opposite cross; confidence
// scales with the size of the new gap relative to price.
type SMACrossover struct {
	FastPeriod int
	SlowPeriod int
}

func NewSMACrossover(fast, slow int) *SMACrossover {
	if fast <= 0 {
		fast = 9
	}
	if slow <= fast {
		slow = fast + 12
	}
	return &SMACrossover{FastPeriod: fast, SlowPeriod: slow}
}

func (s *SMACrossover) GenerateSignal(prices []float64) models.StrategyResult {
	fast := indicators.SMASeries(prices, s.FastPeriod)
	slow := indicators.SMASeries(prices, s.SlowPeriod)
	if len(fast) < 2 || len(slow) < 2 {
		return models.StrategyResult{Direction: models.DirectionHold, Confidence: 0}
	}

	prevFast, lastFast := fast[len(fast)-2], fast[len(fast)-1]
	prevSlow, lastSlow := slow[len(slow)-2], slow[len(slow)-1]

	if prevFast <= prevSlow && lastFast > lastSlow {
		return models.StrategyResult{
			Direction:  models.DirectionLong,
			Confidence: crossoverConfidence(lastFast, lastSlow),
		}
	}
	if prevFast >= prevSlow && lastFast < lastSlow {
		return models.StrategyResult{
			Direction:  models.DirectionShort,
			Confidence: crossoverConfidence(lastFast, lastSlow),
		}
	}
	return models.StrategyResult{Direction: models.DirectionHold, Confidence: 0.5}
}

// crossoverConfidence maps the relative gap between the averages onto
// [0,1]; a 1% gap saturates at full confidence.
func crossoverConfidence(fast, slow float64) float64 {
	if slow == 0 {
		return 0
	}
	return clamp01(math.Abs(fast-slow) / math.Abs(slow) * 100)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
