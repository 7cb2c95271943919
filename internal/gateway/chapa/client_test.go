package chapa

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"sms-gateway/internal/apperr"
	"sms-gateway/internal/config"
	"sms-gateway/internal/funding"
	"sms-gateway/pkg/resilience"

	"github.com/shopspring/decimal"
)

func newTestClient(t *testing.T, h http.HandlerFunc, breaker *resilience.Breaker) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(config.ChapaConfig{
		APIURL:      srv.URL + "/",
		SecretKey:   "CHASECK-test",
		CallbackURL: "https://api.example.com/api/payments/callback",
		ReturnURL:   "https://app.example.com/payments/",
		Timeout:     2 * time.Second,
	}, breaker, nil)
}

func TestInitialize_SendsCheckoutRequest(t *testing.T) {
	var got initializeRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/transaction/initialize" {
			t.Fatalf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer CHASECK-test" {
			t.Fatalf("authorization = %q", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		_, _ = w.Write([]byte(`{"status":"success","message":"Hosted Link","data":{"checkout_url":"https://checkout.chapa.co/checkout/payment/123"}}`))
	}, nil)

	res, err := c.Initialize(context.Background(), funding.InitRequest{
		TxRef: "TX123", Amount: decimal.RequireFromString("100"), Currency: "ETB",
	})
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if res.CheckoutURL != "https://checkout.chapa.co/checkout/payment/123" {
		t.Fatalf("checkout url = %q", res.CheckoutURL)
	}
	if got.TxRef != "TX123" || got.Amount != "100.00" || got.Currency != "ETB" {
		t.Fatalf("request = %+v", got)
	}
	if got.Email != defaultEmail || got.PhoneNumber != defaultPhone {
		t.Fatalf("defaults not applied: %+v", got)
	}
	if got.ReturnURL != "https://app.example.com/payments/TX123" {
		t.Fatalf("return url = %q", got.ReturnURL)
	}
}

func TestInitialize_RejectedIsUpstream(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"failed","message":"Invalid Key"}`))
	}, nil)

	_, err := c.Initialize(context.Background(), funding.InitRequest{TxRef: "TX123", Amount: decimal.NewFromInt(100), Currency: "ETB"})
	if apperr.KindOf(err) != apperr.KindUpstream || !errors.Is(err, ErrRejected) {
		t.Fatalf("err = %v, want upstream rejection", err)
	}
}

func TestInitialize_StructuredMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"status":"failed","message":{"email":["The email must be a valid email address."]},"data":null}`))
	}, nil)

	_, err := c.Initialize(context.Background(), funding.InitRequest{TxRef: "TX1", Amount: decimal.NewFromInt(1), Email: "bad"})
	if err == nil || apperr.KindOf(err) != apperr.KindUpstream {
		t.Fatalf("err = %v, want upstream", err)
	}
}

func TestVerify(t *testing.T) {
	cases := []struct {
		name        string
		code        int
		body        string
		wantOverall string
		wantPayment string
		wantErr     bool
	}{
		{"success", 200, `{"status":"success","message":"Payment details","data":{"status":"success","reference":"TX123","amount":100}}`, "success", "success", false},
		{"pending", 200, `{"status":"success","data":{"status":"pending"}}`, "success", "pending", false},
		{"not found parsed", 404, `{"status":"failed","message":"Invalid transaction or Transaction not found","data":null}`, "failed", "", false},
		{"server error", 500, ``, "", "", true},
		{"garbage", 200, `<html>`, "", "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/v1/transaction/verify/TX123" {
					t.Fatalf("path = %q", r.URL.Path)
				}
				w.WriteHeader(tc.code)
				_, _ = w.Write([]byte(tc.body))
			}, nil)

			res, err := c.Verify(context.Background(), "TX123")
			if tc.wantErr {
				if apperr.KindOf(err) != apperr.KindUpstream {
					t.Fatalf("err = %v, want upstream", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Verify: %v", err)
			}
			if res.OverallStatus != tc.wantOverall || res.PaymentStatus != tc.wantPayment {
				t.Fatalf("result = %+v", res)
			}
		})
	}
}

func TestBreakerOpensOnServerErrorsOnly(t *testing.T) {
	calls := 0
	code := http.StatusNotFound
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(code)
		_, _ = w.Write([]byte(`{"status":"failed","data":null}`))
	}, resilience.NewBreaker(2, time.Minute))
	ctx := context.Background()

	for range 3 {
		if _, err := c.Verify(ctx, "TX123"); err != nil {
			t.Fatalf("4xx should not trip the breaker: %v", err)
		}
	}

	code = http.StatusBadGateway
	for range 2 {
		_, _ = c.Verify(ctx, "TX123")
	}
	_, err := c.Verify(ctx, "TX123")
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("err = %v, want open circuit", err)
	}
	if calls != 5 {
		t.Fatalf("server saw %d calls, want 5", calls)
	}
}
