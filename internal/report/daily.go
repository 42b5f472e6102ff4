package report

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Melashkevich/MarketScan/internal/indicators"
	"github.com/Melashkevich/MarketScan/models"
)

// The majors shown in the daily summary when present in the universe.
var majorSymbols = map[string]bool{
	"EURUSD": true,
	"GBPUSD": true,
	"USDJPY": true,
	"BTCUSD": true,
	"ETHUSD": true,
	"GOLD":   true,
}

const (
	summaryTimeframe = "1h"
	watchLimit       = 3
	bigMovePct       = 0.5
)

// SummaryBuilder assembles the on-demand same-day summary from broker
// data. It layers on the same indicator primitives as the scanner and
// never touches the persisted report.
type SummaryBuilder struct {
	broker models.BrokerClient
	logger zerolog.Logger
}

func NewSummaryBuilder(broker models.BrokerClient) *SummaryBuilder {
	return &SummaryBuilder{
		broker: broker,
		logger: log.With().Str("component", "daily_summary").Logger(),
	}
}

// Build produces the summary for the calendar day containing now (UTC).
func (b *SummaryBuilder) Build(ctx context.Context, now time.Time) (*models.DailySummary, error) {
	today := now.UTC().Truncate(24 * time.Hour)
	trades := b.todayTrades(ctx, today)

	var totalProfit float64
	wins, losses := 0, 0
	for _, t := range trades {
		totalProfit += t.Profit
		if t.Profit > 0 {
			wins++
		} else if t.Profit < 0 {
			losses++
		}
	}

	assets, err := b.broker.ListAssets(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching assets for summary: %w", err)
	}
	majors := make([]models.Asset, 0, len(majorSymbols))
	for _, a := range assets {
		if majorSymbols[a.Symbol] {
			majors = append(majors, a)
		}
	}
	if len(majors) == 0 && len(assets) > 0 {
		if len(assets) > 6 {
			assets = assets[:6]
		}
		majors = assets
	}

	reports := make([]models.AssetReport, 0, len(majors))
	for _, asset := range majors {
		reports = append(reports, b.assetReport(ctx, asset))
	}

	return &models.DailySummary{
		Date:           today.Format("2006-01-02"),
		NumTrades:      len(trades),
		TotalProfit:    math.Round(totalProfit*100) / 100,
		Wins:           wins,
		Losses:         losses,
		Trades:         trades,
		MarketInsights: marketInsights(reports),
		AssetsToWatch:  assetsToWatch(reports),
	}, nil
}

// todayTrades fetches the broker trade history for the day and keeps the
// records whose date parses onto it. History failures degrade to an
// empty day rather than failing the summary.
func (b *SummaryBuilder) todayTrades(ctx context.Context, today time.Time) []models.TradeRecord {
	from := today
	to := today.Add(24 * time.Hour)
	records, err := b.broker.GetTradeHistory(ctx, from, to)
	if err != nil {
		b.logger.Warn().Err(err).Msg("Trade history unavailable for summary")
		return []models.TradeRecord{}
	}

	trades := make([]models.TradeRecord, 0, len(records))
	for _, r := range records {
		ts, ok := parseTradeDate(r.Date)
		if !ok {
			continue
		}
		if ts.UTC().Truncate(24 * time.Hour).Equal(today) {
			trades = append(trades, r)
		}
	}
	return trades
}

func (b *SummaryBuilder) assetReport(ctx context.Context, asset models.Asset) models.AssetReport {
	rep := models.AssetReport{Symbol: asset.Symbol, Name: asset.Name}

	candles, err := b.broker.GetHistory(ctx, asset.Symbol, summaryTimeframe, models.CandlesPerDay(summaryTimeframe))
	if err != nil {
		b.logger.Warn().Err(err).Str("symbol", asset.Symbol).Msg("Price history unavailable for summary")
		return rep
	}
	closes := make([]float64, 0, len(candles))
	for _, c := range candles {
		closes = append(closes, c.Close)
	}
	if len(closes) == 0 {
		return rep
	}

	pc := round3(indicators.PercentChange(closes))
	vol := round3(indicators.Volatility(closes))
	rep.PercentChange = &pc
	rep.Volatility = &vol
	if rsi, ok := indicators.RSI(closes, 14); ok {
		r := math.Round(rsi*100) / 100
		rep.RSI = &r
	}
	return rep
}

// assetsToWatch selects up to three assets, biggest absolute move first:
// RSI out of the 30–70 band flags "RSI", otherwise a move larger than
// 0.5% flags "Move".
func assetsToWatch(reports []models.AssetReport) []models.WatchedAsset {
	sorted := make([]models.AssetReport, len(reports))
	copy(sorted, reports)
	sort.SliceStable(sorted, func(i, j int) bool {
		return absMove(sorted[i]) > absMove(sorted[j])
	})

	watch := []models.WatchedAsset{}
	for _, a := range sorted {
		if len(watch) >= watchLimit {
			break
		}
		switch {
		case a.RSI != nil && (*a.RSI < 30 || *a.RSI > 70):
			watch = append(watch, models.WatchedAsset{AssetReport: a, Signal: "RSI"})
		case a.PercentChange != nil && math.Abs(*a.PercentChange) > bigMovePct:
			watch = append(watch, models.WatchedAsset{AssetReport: a, Signal: "Move"})
		}
	}
	return watch
}

// marketInsights joins one short trend sentence per moving asset.
func marketInsights(reports []models.AssetReport) string {
	var trends []string
	for _, a := range reports {
		if a.PercentChange == nil {
			continue
		}
		pc := *a.PercentChange
		if pc > bigMovePct {
			trends = append(trends, fmt.Sprintf("%s is up %s%%", a.Symbol, formatPct(pc)))
		} else if pc < -bigMovePct {
			trends = append(trends, fmt.Sprintf("%s is down %s%%", a.Symbol, formatPct(pc)))
		}
	}
	if len(trends) == 0 {
		return "Most major assets are flat today."
	}
	return strings.Join(trends, " | ")
}

func absMove(a models.AssetReport) float64 {
	if a.PercentChange == nil {
		return 0
	}
	return math.Abs(*a.PercentChange)
}

func parseTradeDate(value string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func formatPct(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
