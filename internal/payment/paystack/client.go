// Package paystack implements the payment.Gateway against the Paystack API.
package paystack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"catcher/internal/payment"
	"catcher/internal/platform/config"
)

// Client calls the Paystack transaction API. It holds the secret key, so it
// must only ever run server-side.
type Client struct {
	baseURL   string
	secretKey string
	http      *http.Client
}

// New constructs a Paystack client from config.
func New(cfg config.Paystack) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:   cfg.BaseURL,
		secretKey: cfg.SecretKey,
		http:      &http.Client{Timeout: timeout},
	}
}

// envelope is Paystack's response wrapper. Status false means the API call
// itself failed, independent of the transaction's own status.
type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type initializeData struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

type verifyData struct {
	Status    string           `json:"status"`
	Reference string           `json:"reference"`
	Amount    int64            `json:"amount"`
	PaidAt    string           `json:"paid_at"`
	Metadata  payment.Metadata `json:"metadata"`
}

// InitializeTransaction starts a payment session with the staged registration
// attached as metadata.
func (c *Client) InitializeTransaction(ctx context.Context, req payment.InitializeRequest) (payment.InitializeResult, error) {
	body, err := json.Marshal(map[string]any{
		"email":        req.Email,
		"amount":       req.AmountKobo,
		"reference":    req.Reference,
		"callback_url": req.CallbackURL,
		"metadata":     req.Metadata,
	})
	if err != nil {
		return payment.InitializeResult{}, fmt.Errorf("marshal initialize request: %w", err)
	}

	env, err := c.do(ctx, http.MethodPost, "/transaction/initialize", bytes.NewReader(body))
	if err != nil {
		return payment.InitializeResult{}, err
	}
	if !env.Status {
		return payment.InitializeResult{}, fmt.Errorf("paystack initialize rejected: %s", env.Message)
	}

	var data initializeData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return payment.InitializeResult{}, fmt.Errorf("decode initialize response: %w", err)
	}
	return payment.InitializeResult{
		AuthorizationURL: data.AuthorizationURL,
		AccessCode:       data.AccessCode,
		Reference:        data.Reference,
	}, nil
}

// VerifyTransaction fetches the gateway's record for a reference. An envelope
// rejection is reported as ErrUnknownReference so the workflow can treat a
// fabricated reference the same as a failed payment.
func (c *Client) VerifyTransaction(ctx context.Context, reference string) (payment.VerifyResult, error) {
	env, err := c.do(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil)
	if err != nil {
		return payment.VerifyResult{}, err
	}
	if !env.Status {
		return payment.VerifyResult{}, fmt.Errorf("paystack verify %q: %s: %w", reference, env.Message, payment.ErrUnknownReference)
	}

	var data verifyData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return payment.VerifyResult{}, fmt.Errorf("decode verify response: %w", err)
	}
	return payment.VerifyResult{
		Reference:  data.Reference,
		Status:     data.Status,
		AmountKobo: data.Amount,
		PaidAt:     data.PaidAt,
		Metadata:   data.Metadata,
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, body *bytes.Reader) (envelope, error) {
	var reader io.Reader
	if body != nil {
		reader = body
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return envelope{}, fmt.Errorf("build paystack request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return envelope{}, fmt.Errorf("call paystack: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return envelope{}, fmt.Errorf("paystack returned %d", resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return envelope{}, fmt.Errorf("decode paystack response: %w", err)
	}
	return env, nil
}
