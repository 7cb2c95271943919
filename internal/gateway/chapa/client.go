// Package chapa talks to the Chapa hosted checkout API.
package chapa

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"sms-gateway/internal/apperr"
	"sms-gateway/internal/config"
	"sms-gateway/internal/funding"
	"sms-gateway/internal/metrics"
	"sms-gateway/pkg/resilience"

	"golang.org/x/sync/semaphore"
)

const (
	defaultEmail = "customer@fastsms.dev"
	defaultPhone = "0900000000"

	maxResponseBody = 1 << 20
)

var (
	ErrRejected    = errors.New("chapa rejected the request")
	ErrBadResponse = errors.New("chapa returned an unreadable response")
)

// serverError marks failures that count against the circuit breaker.
type serverError struct{ err error }

func (e serverError) Error() string { return e.err.Error() }
func (e serverError) Unwrap() error { return e.err }

// Client implements funding.Gateway.
type Client struct {
	cfg      config.ChapaConfig
	http     *http.Client
	inflight *semaphore.Weighted
	breaker  *resilience.Breaker
	metrics  *metrics.Metrics
}

var _ funding.Gateway = (*Client)(nil)

func NewClient(cfg config.ChapaConfig, breaker *resilience.Breaker, m *metrics.Metrics) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 16
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	return &Client{
		cfg:      cfg,
		http:     &http.Client{Timeout: cfg.Timeout},
		inflight: semaphore.NewWeighted(int64(cfg.MaxInFlight)),
		breaker:  breaker,
		metrics:  m,
	}
}

type customization struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type initializeRequest struct {
	Amount        string        `json:"amount"`
	Currency      string        `json:"currency"`
	Email         string        `json:"email"`
	FirstName     string        `json:"first_name"`
	LastName      string        `json:"last_name"`
	PhoneNumber   string        `json:"phone_number"`
	TxRef         string        `json:"tx_ref"`
	CallbackURL   string        `json:"callback_url,omitempty"`
	ReturnURL     string        `json:"return_url,omitempty"`
	Customization customization `json:"customization"`
}

// Chapa sends message either as a string or as a field -> errors object.
type envelope struct {
	Status  string          `json:"status"`
	Message json.RawMessage `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (e envelope) message() string {
	var s string
	if err := json.Unmarshal(e.Message, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(e.Message))
}

type initializeData struct {
	CheckoutURL string `json:"checkout_url"`
}

type verifyData struct {
	Status    string `json:"status"`
	Reference string `json:"reference"`
	TxRef     string `json:"tx_ref"`
}

func (c *Client) Initialize(ctx context.Context, req funding.InitRequest) (funding.InitResult, error) {
	email := strings.TrimSpace(req.Email)
	if email == "" {
		email = defaultEmail
	}
	phone := strings.TrimSpace(req.Phone)
	if phone == "" {
		phone = defaultPhone
	}
	body := initializeRequest{
		Amount:      req.Amount.StringFixed(2),
		Currency:    req.Currency,
		Email:       email,
		FirstName:   "SMS",
		LastName:    "Customer",
		PhoneNumber: phone,
		TxRef:       req.TxRef,
		CallbackURL: c.cfg.CallbackURL,
		Customization: customization{
			Title:       "SMS Credits",
			Description: "Prepaid SMS credit top-up",
		},
	}
	if c.cfg.ReturnURL != "" {
		body.ReturnURL = c.cfg.ReturnURL + req.TxRef
	}

	env, status, err := c.do(ctx, "initialize", http.MethodPost, "/v1/transaction/initialize", body)
	if err != nil {
		return funding.InitResult{}, err
	}
	if status >= 300 || !strings.EqualFold(env.Status, "success") {
		return funding.InitResult{}, apperr.Upstream(ErrRejected, "chapa initialize failed: %s", env.message())
	}

	var data initializeData
	if err := json.Unmarshal(env.Data, &data); err != nil || data.CheckoutURL == "" {
		return funding.InitResult{}, apperr.Upstream(ErrBadResponse, "chapa initialize returned no checkout url")
	}
	return funding.InitResult{CheckoutURL: data.CheckoutURL, Status: env.Status}, nil
}

// Verify reports the payment's state. A 4xx body is still parsed since Chapa
// answers unknown or unpaid references with a failed envelope.
func (c *Client) Verify(ctx context.Context, txRef string) (funding.VerifyResult, error) {
	env, _, err := c.do(ctx, "verify", http.MethodGet, "/v1/transaction/verify/"+url.PathEscape(txRef), nil)
	if err != nil {
		return funding.VerifyResult{}, err
	}

	res := funding.VerifyResult{OverallStatus: env.Status, Message: env.message()}
	if len(env.Data) > 0 && string(env.Data) != "null" {
		var data verifyData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return funding.VerifyResult{}, apperr.Upstream(ErrBadResponse, "chapa verify: decode data: %v", err)
		}
		res.PaymentStatus = data.Status
	}
	return res, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, payload any) (envelope, int, error) {
	if err := c.inflight.Acquire(ctx, 1); err != nil {
		return envelope{}, 0, apperr.Upstream(err, "chapa %s: %v", op, err)
	}
	defer c.inflight.Release(1)

	var (
		env    envelope
		status int
	)
	start := time.Now()
	call := func() error {
		var err error
		env, status, err = c.roundTrip(ctx, method, path, payload)
		return err
	}
	var err error
	if c.breaker != nil {
		err = c.breaker.Execute(call, func(err error) bool {
			var se serverError
			return !errors.As(err, &se)
		})
	} else {
		err = call()
	}
	c.metrics.GatewayCall(ctx, op, time.Since(start).Seconds(), err != nil)

	if err != nil {
		if apperr.KindOf(err) != apperr.KindUnknown {
			return envelope{}, status, err
		}
		return envelope{}, status, apperr.Upstream(err, "chapa %s: %v", op, err)
	}
	return env, status, nil
}

func (c *Client) roundTrip(ctx context.Context, method, path string, payload any) (envelope, int, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return envelope{}, 0, err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.APIURL+path, body)
	if err != nil {
		return envelope{}, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.SecretKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return envelope{}, 0, serverError{err}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if resp.StatusCode >= 500 {
		return envelope{}, resp.StatusCode, serverError{fmt.Errorf("unexpected status code: %d body=%q", resp.StatusCode, string(raw))}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return envelope{}, resp.StatusCode, apperr.Upstream(ErrBadResponse, "failed to decode json: %v body=%q", err, string(raw))
	}
	return env, resp.StatusCode, nil
}
