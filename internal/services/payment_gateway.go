package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// IntentStatusSucceeded единственный статус, который считается успешной оплатой
const IntentStatusSucceeded = "succeeded"

// PaymentIntent намерение оплаты на стороне шлюза
type PaymentIntent struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// CardDetails непрозрачный токен способа оплаты от клиента. Данные карты к нам не попадают
type CardDetails struct {
	PaymentMethod string `json:"payment_method"`
}

// PaymentGateway внешний платежный шлюз
type PaymentGateway interface {
	CreateIntent(ctx context.Context, amount int64, currency, idempotencyKey string) (*PaymentIntent, error)
	Confirm(ctx context.Context, intentID string, details CardDetails) (*PaymentIntent, error)
	Cancel(ctx context.Context, intentID string) error
}

// HTTPGateway REST клиент шлюза в стиле Stripe
type HTTPGateway struct {
	baseURL string
	secret  string
	client  *http.Client
}

// NewHTTPGateway создает клиент платежного шлюза
func NewHTTPGateway(baseURL, secret string, timeout time.Duration) *HTTPGateway {
	return &HTTPGateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  secret,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type gatewayErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// CreateIntent создает намерение оплаты на сумму в минимальных единицах валюты
func (g *HTTPGateway) CreateIntent(ctx context.Context, amount int64, currency, idempotencyKey string) (*PaymentIntent, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(amount, 10))
	form.Set("currency", currency)
	return g.post(ctx, "/v1/payment_intents", form, idempotencyKey)
}

// Confirm подтверждает намерение с токеном способа оплаты
func (g *HTTPGateway) Confirm(ctx context.Context, intentID string, details CardDetails) (*PaymentIntent, error) {
	form := url.Values{}
	form.Set("payment_method", details.PaymentMethod)
	return g.post(ctx, "/v1/payment_intents/"+url.PathEscape(intentID)+"/confirm", form, "")
}

// Cancel отменяет намерение оплаты
func (g *HTTPGateway) Cancel(ctx context.Context, intentID string) error {
	_, err := g.post(ctx, "/v1/payment_intents/"+url.PathEscape(intentID)+"/cancel", url.Values{}, "")
	return err
}

func (g *HTTPGateway) post(ctx context.Context, path string, form url.Values, idempotencyKey string) (*PaymentIntent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+g.secret)
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway request %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read gateway response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var gwErr gatewayErrorResponse
		if json.Unmarshal(body, &gwErr) == nil && gwErr.Error.Message != "" {
			return nil, fmt.Errorf("gateway error (status %d, %s): %s", resp.StatusCode, gwErr.Error.Type, gwErr.Error.Message)
		}
		return nil, fmt.Errorf("gateway error (status %d): %s", resp.StatusCode, string(body))
	}

	var intent PaymentIntent
	if err := json.Unmarshal(body, &intent); err != nil {
		return nil, fmt.Errorf("failed to unmarshal gateway response: %w", err)
	}
	return &intent, nil
}
