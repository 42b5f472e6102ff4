package models

// CandlesPerDay returns how many candles of the given timeframe fit in one
// trading day. Used to size history requests that need a day of bars.
func CandlesPerDay(timeframe string) int {
	switch timeframe {
	case "1min":
		return 24 * 60
	case "5min":
		return 24 * 12
	case "15min":
		return 24 * 4
	case "30min":
		return 24 * 2
	case "1h":
		return 24
	case "2h":
		return 12
	case "4h":
		return 6
	case "1day":
		return 1
	default:
		return 24
	}
}
