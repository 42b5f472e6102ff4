package capital

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/Melashkevich/MarketScan/models"
)

const (
	sessionTokenHeader  = "X-SECURITY-TOKEN"
	clientTokenHeader   = "CST"
	apiKeyHeader        = "X-CAP-API-KEY"
	challengeTTL        = 5 * time.Minute
	defaultRetryTimeout = 30 * time.Second
)

// Client talks to a Capital.com-style REST API. It is the single
// implementation of models.BrokerClient; every historical variation of
// the broker contract is normalized here.
type Client struct {
	baseURL    string
	apiKey     string
	identifier string
	password   string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     zerolog.Logger

	clientToken   string
	securityToken string
}

// NewClient creates a new broker client with rate limiting
func NewClient(cfg *models.Config) *Client {
	return &Client{
		baseURL:    cfg.BrokerBaseURL,
		apiKey:     cfg.BrokerAPIKey,
		identifier: cfg.BrokerIdentifier,
		password:   cfg.BrokerPassword,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.RequestTimeout) * time.Second,
		},
		limiter: rate.NewLimiter(rate.Every(time.Second), 5), // 5 requests per second
		logger:  log.With().Str("component", "broker_client").Logger(),
	}
}

type sessionResponse struct {
	Status         string `json:"status"`
	ChallengeToken string `json:"challengeToken"`
}

// Login opens a session. When the broker demands a second factor the
// returned challenge must be completed with CompleteLogin; it is valid
// once, for a few minutes.
func (c *Client) Login(ctx context.Context) (*models.TwoFactorChallenge, error) {
	payload := map[string]any{
		"identifier": c.identifier,
		"password":   c.password,
	}
	resp, body, err := c.post(ctx, "/api/v1/session", payload)
	if err != nil {
		return nil, fmt.Errorf("session request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("session rejected: status %d: %s", resp.StatusCode, string(body))
	}

	var session sessionResponse
	if err := json.Unmarshal(body, &session); err == nil && session.Status == "OTP_REQUIRED" {
		c.logger.Info().Msg("Broker requested a second factor")
		return models.NewTwoFactorChallenge(session.ChallengeToken, challengeTTL), nil
	}

	c.adoptTokens(resp)
	if c.securityToken == "" {
		return nil, fmt.Errorf("session response carried no %s header", sessionTokenHeader)
	}
	c.logger.Info().Msg("Broker session established")
	return nil, nil
}

// CompleteLogin finishes a two-step login. The challenge is consumed
// exactly once; reusing or outliving it fails without a broker call.
func (c *Client) CompleteLogin(ctx context.Context, challenge *models.TwoFactorChallenge, otp string) error {
	token, err := challenge.Consume(time.Now())
	if err != nil {
		return err
	}

	payload := map[string]any{
		"challengeToken": token,
		"otp":            otp,
	}
	resp, body, err := c.post(ctx, "/api/v1/session/otp", payload)
	if err != nil {
		return fmt.Errorf("otp request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("otp rejected: status %d: %s", resp.StatusCode, string(body))
	}

	c.adoptTokens(resp)
	if c.securityToken == "" {
		return fmt.Errorf("otp response carried no %s header", sessionTokenHeader)
	}
	c.logger.Info().Msg("Broker session established after second factor")
	return nil
}

func (c *Client) adoptTokens(resp *http.Response) {
	if cst := resp.Header.Get(clientTokenHeader); cst != "" {
		c.clientToken = cst
	}
	if sec := resp.Header.Get(sessionTokenHeader); sec != "" {
		c.securityToken = sec
	}
}

func (c *Client) AccountInfo(ctx context.Context) (*models.AccountInfo, error) {
	body, err := c.get(ctx, "/api/v1/accounts")
	if err != nil {
		return nil, err
	}

	var data struct {
		Accounts []struct {
			AccountID string  `json:"accountId"`
			Balance   float64 `json:"balance"`
			Currency  string  `json:"currency"`
		} `json:"accounts"`
	}
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("parsing accounts: %w", err)
	}
	if len(data.Accounts) == 0 {
		return nil, fmt.Errorf("broker returned no accounts")
	}
	a := data.Accounts[0]
	return &models.AccountInfo{AccountID: a.AccountID, Balance: a.Balance, Currency: a.Currency}, nil
}

func (c *Client) ListAssets(ctx context.Context) ([]models.Asset, error) {
	body, err := c.get(ctx, "/api/v1/markets")
	if err != nil {
		return nil, err
	}

	var data struct {
		Markets []struct {
			Epic           string `json:"epic"`
			Symbol         string `json:"symbol"`
			InstrumentName string `json:"instrumentName"`
			InstrumentType string `json:"instrumentType"`
		} `json:"markets"`
	}
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("parsing markets: %w", err)
	}

	assets := make([]models.Asset, 0, len(data.Markets))
	for _, m := range data.Markets {
		symbol := m.Symbol
		if symbol == "" {
			symbol = m.Epic
		}
		if symbol == "" {
			continue
		}
		assets = append(assets, models.Asset{
			Symbol: symbol,
			Name:   m.InstrumentName,
			Type:   m.InstrumentType,
		})
	}
	c.logger.Debug().Int("count", len(assets)).Msg("Fetched asset universe")
	return assets, nil
}

// GetHistory fetches candles oldest-first. Candles whose close price does
// not coerce to a number are dropped; an empty answer is not an error.
func (c *Client) GetHistory(ctx context.Context, symbol, timeframe string, count int) ([]models.Candle, error) {
	path := fmt.Sprintf("/api/v1/prices/%s?resolution=%s&max=%d", symbol, timeframe, count)
	body, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}

	var data struct {
		Candles []map[string]any `json:"candles"`
	}
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("parsing candles: %w", err)
	}

	candles := make([]models.Candle, 0, len(data.Candles))
	for _, raw := range data.Candles {
		closePrice, ok := toFloat(raw["close"])
		if !ok {
			continue
		}
		candle := models.Candle{Close: closePrice}
		candle.Datetime, _ = raw["datetime"].(string)
		candle.Open, _ = toFloat(raw["open"])
		candle.High, _ = toFloat(raw["high"])
		candle.Low, _ = toFloat(raw["low"])
		candle.Volume, _ = toFloat(raw["volume"])
		candles = append(candles, candle)
	}

	// Sort candles by datetime (oldest first for proper calculations)
	sort.SliceStable(candles, func(i, j int) bool {
		return candles[i].Datetime < candles[j].Datetime
	})

	c.logger.Debug().Str("symbol", symbol).Int("count", len(candles)).Msg("Fetched candles")
	return candles, nil
}

// SubmitOrder places one order. Rejections come back inside the result;
// the error is reserved for transport failures.
func (c *Client) SubmitOrder(ctx context.Context, req models.OrderRequest) (*models.OrderResult, error) {
	payload := map[string]any{
		"epic":      req.Symbol,
		"direction": string(req.Side),
		"size":      req.Size,
	}
	if req.TakeProfit != nil {
		payload["profitLevel"] = *req.TakeProfit
	}
	if req.StopLoss != nil {
		payload["stopLevel"] = *req.StopLoss
	}

	resp, body, err := c.post(ctx, "/api/v1/positions", payload)
	if err != nil {
		return nil, fmt.Errorf("order request: %w", err)
	}

	result := &models.OrderResult{Raw: json.RawMessage(body)}
	var parsed struct {
		Status        string `json:"status"`
		DealReference string `json:"dealReference"`
		ErrorCode     string `json:"errorCode"`
	}
	_ = json.Unmarshal(body, &parsed)
	result.DealReference = parsed.DealReference

	if resp.StatusCode != http.StatusOK {
		result.Status = "REJECTED"
		result.Reason = parsed.ErrorCode
		if result.Reason == "" {
			result.Reason = fmt.Sprintf("status %d", resp.StatusCode)
		}
		c.logger.Warn().Str("symbol", req.Symbol).Str("reason", result.Reason).Msg("Order rejected")
		return result, nil
	}

	result.Status = parsed.Status
	if result.Status == "" {
		result.Status = "OPEN"
	}
	c.logger.Info().Str("symbol", req.Symbol).Str("side", string(req.Side)).Msg("Order submitted")
	return result, nil
}

func (c *Client) GetTradeHistory(ctx context.Context, from, to time.Time) ([]models.TradeRecord, error) {
	path := fmt.Sprintf(
		"/api/v1/history/transactions?from=%s&to=%s",
		from.UTC().Format(time.RFC3339),
		to.UTC().Format(time.RFC3339),
	)
	body, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}

	var data struct {
		Transactions []map[string]any `json:"transactions"`
	}
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("parsing transactions: %w", err)
	}

	records := make([]models.TradeRecord, 0, len(data.Transactions))
	for _, raw := range data.Transactions {
		record := models.TradeRecord{}
		record.Date, _ = raw["date"].(string)
		record.Symbol, _ = raw["symbol"].(string)
		record.Profit, _ = toFloat(raw["profit"])
		if record.Date == "" {
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

// get performs an authenticated GET with rate limiting and exponential
// backoff, mirroring the market-data client this grew out of.
func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}

	var body []byte
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("creating request: %w", err))
		}
		c.authorize(req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("HTTP request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			io.Copy(io.Discard, resp.Body)
			return fmt.Errorf("non-200 status code: %d", resp.StatusCode)
		}
		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("reading response body: %w", err)
		}
		return nil
	}

	backoffStrategy := backoff.NewExponentialBackOff()
	backoffStrategy.MaxElapsedTime = defaultRetryTimeout

	if err := backoff.Retry(operation, backoff.WithContext(backoffStrategy, ctx)); err != nil {
		return nil, fmt.Errorf("after retries: %w", err)
	}
	return body, nil
}

// post sends one JSON request without retries: order and session calls
// are not safe to repeat blindly.
func (c *Client) post(ctx context.Context, path string, payload any) (*http.Response, []byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, nil, fmt.Errorf("rate limiter error: %w", err)
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("encoding payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return nil, nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("reading response body: %w", err)
	}
	return resp, body, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}
	if c.clientToken != "" {
		req.Header.Set(clientTokenHeader, c.clientToken)
	}
	if c.securityToken != "" {
		req.Header.Set(sessionTokenHeader, c.securityToken)
	}
}

// toFloat coerces the loosely typed numeric fields brokers send (plain
// numbers or numeric strings). Anything else is reported as absent.
func toFloat(v any) (float64, bool) {
	switch value := v.(type) {
	case float64:
		return value, true
	case string:
		var f float64
		if _, err := fmt.Sscanf(value, "%g", &f); err == nil {
			return f, true
		}
		return 0, false
	case json.Number:
		f, err := value.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
