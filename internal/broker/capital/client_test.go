package capital

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Melashkevich/MarketScan/models"
)

func testClient(baseURL string) *Client {
	return NewClient(&models.Config{
		BrokerBaseURL:    baseURL,
		BrokerAPIKey:     "key",
		BrokerIdentifier: "user@example.com",
		BrokerPassword:   "secret",
		RequestTimeout:   5,
	})
}

func TestLoginSingleStep(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/session" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get(apiKeyHeader) != "key" {
			t.Error("missing API key header")
		}
		w.Header().Set(clientTokenHeader, "cst-1")
		w.Header().Set(sessionTokenHeader, "sec-1")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	challenge, err := c.Login(context.Background())
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if challenge != nil {
		t.Fatal("expected no challenge")
	}
	if c.securityToken != "sec-1" || c.clientToken != "cst-1" {
		t.Errorf("tokens not adopted: %q %q", c.securityToken, c.clientToken)
	}
}

func TestLoginTwoStep(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/session":
			json.NewEncoder(w).Encode(map[string]string{
				"status":         "OTP_REQUIRED",
				"challengeToken": "ch-42",
			})
		case "/api/v1/session/otp":
			var payload map[string]string
			json.NewDecoder(r.Body).Decode(&payload)
			if payload["challengeToken"] != "ch-42" || payload["otp"] != "123456" {
				t.Errorf("unexpected otp payload: %v", payload)
			}
			w.Header().Set(sessionTokenHeader, "sec-2")
			w.WriteHeader(http.StatusOK)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	challenge, err := c.Login(context.Background())
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if challenge == nil {
		t.Fatal("expected a two-factor challenge")
	}

	if err := c.CompleteLogin(context.Background(), challenge, "123456"); err != nil {
		t.Fatalf("CompleteLogin() error = %v", err)
	}
	if c.securityToken != "sec-2" {
		t.Error("session token not adopted after second factor")
	}

	// The challenge is single-use.
	if err := c.CompleteLogin(context.Background(), challenge, "123456"); err != models.ErrChallengeConsumed {
		t.Errorf("second consume error = %v, want ErrChallengeConsumed", err)
	}
}

func TestChallengeExpires(t *testing.T) {
	ch := models.NewTwoFactorChallenge("tok", -time.Second)
	if _, err := ch.Consume(time.Now()); err != models.ErrChallengeExpired {
		t.Errorf("error = %v, want ErrChallengeExpired", err)
	}
}

func TestGetHistoryDropsUnparsableCloses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candles":[
			{"datetime":"2026-09-01T02:00:00","open":"1.10","close":"1.12"},
			{"datetime":"2026-09-01T03:00:00","open":1.12,"close":null},
			{"datetime":"2026-09-01T01:00:00","open":1.08,"close":1.10,"volume":100},
			{"datetime":"2026-09-01T04:00:00","close":"n/a"}
		]}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	candles, err := c.GetHistory(context.Background(), "EURUSD", "1h", 100)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(candles) != 2 {
		t.Fatalf("candles = %+v, want the two parsable ones", candles)
	}
	// Oldest first despite response order.
	if candles[0].Close != 1.10 || candles[1].Close != 1.12 {
		t.Errorf("ordering wrong: %+v", candles)
	}
	if candles[1].Open != 1.10 {
		t.Errorf("string open not coerced: %+v", candles[1])
	}
}

func TestGetHistoryEmptyIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candles":[]}`))
	}))
	defer srv.Close()

	candles, err := testClient(srv.URL).GetHistory(context.Background(), "XYZ", "1h", 10)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(candles) != 0 {
		t.Errorf("candles = %+v, want none", candles)
	}
}

func TestListAssets(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(sessionTokenHeader) != "sec" {
			t.Error("authenticated request missing session token")
		}
		w.Write([]byte(`{"markets":[
			{"epic":"EURUSD","instrumentName":"Euro / US Dollar","instrumentType":"CURRENCIES"},
			{"symbol":"GOLD","instrumentName":"Gold Spot"},
			{"instrumentName":"nameless"}
		]}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	c.securityToken = "sec"
	assets, err := c.ListAssets(context.Background())
	if err != nil {
		t.Fatalf("ListAssets() error = %v", err)
	}
	if len(assets) != 2 {
		t.Fatalf("assets = %+v", assets)
	}
	if assets[0].Symbol != "EURUSD" || assets[1].Symbol != "GOLD" {
		t.Errorf("assets = %+v", assets)
	}
}

func TestSubmitOrderRejectionIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"errorCode":"error.invalid.size"}`))
	}))
	defer srv.Close()

	result, err := testClient(srv.URL).SubmitOrder(context.Background(), models.OrderRequest{
		Symbol: "EURUSD",
		Side:   models.SideBuy,
		Size:   1,
	})
	if err != nil {
		t.Fatalf("SubmitOrder() error = %v, rejections must not be errors", err)
	}
	if result.Status != "REJECTED" || result.Reason != "error.invalid.size" {
		t.Errorf("result = %+v", result)
	}
}

func TestSubmitOrderSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		json.NewDecoder(r.Body).Decode(&payload)
		if payload["direction"] != "BUY" || payload["epic"] != "EURUSD" {
			t.Errorf("payload = %v", payload)
		}
		w.Write([]byte(`{"dealReference":"deal-7","status":"OPEN"}`))
	}))
	defer srv.Close()

	result, err := testClient(srv.URL).SubmitOrder(context.Background(), models.OrderRequest{
		Symbol: "EURUSD",
		Side:   models.SideBuy,
		Size:   1,
	})
	if err != nil {
		t.Fatalf("SubmitOrder() error = %v", err)
	}
	if result.Status != "OPEN" || result.DealReference != "deal-7" {
		t.Errorf("result = %+v", result)
	}
}

func TestGetTradeHistory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"transactions":[
			{"date":"2026-09-01T10:00:00Z","symbol":"EURUSD","profit":"3.5"},
			{"symbol":"GOLD","profit":1},
			{"date":"2026-09-01T11:00:00Z","symbol":"GOLD","profit":-2}
		]}`))
	}))
	defer srv.Close()

	records, err := testClient(srv.URL).GetTradeHistory(context.Background(), time.Now().Add(-24*time.Hour), time.Now())
	if err != nil {
		t.Fatalf("GetTradeHistory() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %+v, want dateless entry dropped", records)
	}
	if records[0].Profit != 3.5 || records[1].Profit != -2 {
		t.Errorf("records = %+v", records)
	}
}
