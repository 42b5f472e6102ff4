package indicators

import "math"

// PercentChange returns the percentage move from the first to the last
// price. Fewer than two points or a zero first price yields 0.
func PercentChange(prices []float64) float64 {
	if len(prices) < 2 {
		return 0
	}
	first := prices[0]
	if first == 0 {
		return 0
	}
	return (prices[len(prices)-1] - first) / first * 100
}

// Volatility returns the population standard deviation of the whole
// supplied window. Fewer than two points yields 0.
func Volatility(prices []float64) float64 {
	if len(prices) < 2 {
		return 0
	}
	mean := average(prices)
	var variance float64
	for _, p := range prices {
		variance += math.Pow(p-mean, 2)
	}
	return math.Sqrt(variance / float64(len(prices)))
}

// RSI computes the relative strength index from the first `period` price
// deltas. The second return value is false when the series is too short
// to produce a value; callers must not read the index in that case.
//
// A window with zero average loss yields 100, including the flat-series
// case where there are no gains either. Downstream thresholds depend on
// this, so it is kept as-is.
func RSI(prices []float64, period int) (float64, bool) {
	if period <= 0 || len(prices) < period+1 {
		return 0, false
	}

	var up, down float64
	for i := 1; i <= period; i++ {
		delta := prices[i] - prices[i-1]
		if delta > 0 {
			up += delta
		} else {
			down -= delta
		}
	}
	up /= float64(period)
	down /= float64(period)

	if down == 0 {
		return 100, true
	}
	rs := up / down
	return 100 - 100/(1+rs), true
}

// SMA returns the trailing simple moving average over the last `length`
// prices. False until `length` points are available.
func SMA(prices []float64, length int) (float64, bool) {
	if length <= 0 || len(prices) < length {
		return 0, false
	}
	return average(prices[len(prices)-length:]), true
}

// SMASeries returns the full simple moving average series: element i is
// the mean of the window ending at prices[i+length-1]. Empty when the
// series is shorter than the window.
func SMASeries(prices []float64, length int) []float64 {
	if length <= 0 || len(prices) < length {
		return nil
	}
	out := make([]float64, 0, len(prices)-length+1)
	var sum float64
	for i, p := range prices {
		sum += p
		if i >= length {
			sum -= prices[i-length]
		}
		if i >= length-1 {
			out = append(out, sum/float64(length))
		}
	}
	return out
}

// RollingStd returns the rolling population standard deviation: element i
// covers the window ending at prices[i+window-1]. Empty when the series
// is shorter than the window.
func RollingStd(prices []float64, window int) []float64 {
	if window <= 0 || len(prices) < window {
		return nil
	}
	out := make([]float64, 0, len(prices)-window+1)
	for i := window; i <= len(prices); i++ {
		out = append(out, Volatility(prices[i-window:i]))
	}
	return out
}

func average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
