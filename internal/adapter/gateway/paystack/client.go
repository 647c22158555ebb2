package paystack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"custodial-wallet-backend/config"
	"custodial-wallet-backend/internal/core/ports"
	"custodial-wallet-backend/pkg/apperror"

	"github.com/rs/zerolog"
)

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client implements ports.PaymentGateway against the Paystack REST API.
// It is constructed once at startup and injected; nothing in this package
// holds global state.
type Client struct {
	secretKey  string
	baseURL    string
	httpClient HTTPClient
	log        zerolog.Logger
}

// NewClient creates a Paystack API client. Pass nil for httpClient to use a
// default client bounded by the configured timeout.
func NewClient(cfg config.PaystackConfig, httpClient HTTPClient, log zerolog.Logger) *Client {
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		secretKey:  cfg.SecretKey,
		baseURL:    cfg.BaseURL,
		httpClient: httpClient,
		log:        log,
	}
}

type initializeRequest struct {
	Email       string `json:"email"`
	Amount      int64  `json:"amount"` // kobo
	Reference   string `json:"reference"`
	CallbackURL string `json:"callback_url,omitempty"`
	Currency    string `json:"currency,omitempty"`
}

type apiEnvelope struct {
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
	Reference string     `json:"reference"`
	Status    string     `json:"status"`
	Amount    int64      `json:"amount"` // kobo
	Currency  string     `json:"currency"`
	PaidAt    *time.Time `json:"paid_at"`
	Channel   string     `json:"channel"`
}

// InitializeTransaction starts a hosted checkout session.
func (c *Client) InitializeTransaction(ctx context.Context, req ports.InitializeTransactionRequest) (*ports.InitializeTransactionResponse, error) {
	body := initializeRequest{
		Email:       req.Email,
		Amount:      req.AmountKobo,
		Reference:   req.Reference,
		CallbackURL: req.CallbackURL,
		Currency:    req.Currency,
	}

	var data initializeData
	if err := c.post(ctx, "/transaction/initialize", body, &data); err != nil {
		return nil, err
	}

	c.log.Debug().
		Str("reference", data.Reference).
		Msg("paystack transaction initialized")

	return &ports.InitializeTransactionResponse{
		AuthorizationURL: data.AuthorizationURL,
		AccessCode:       data.AccessCode,
		Reference:        data.Reference,
	}, nil
}

// VerifyTransaction fetches the gateway's settled view of a transaction.
func (c *Client) VerifyTransaction(ctx context.Context, reference string) (*ports.GatewayTransaction, error) {
	var data verifyData
	if err := c.get(ctx, "/transaction/verify/"+reference, &data); err != nil {
		return nil, err
	}

	return &ports.GatewayTransaction{
		Reference:  data.Reference,
		Status:     data.Status,
		AmountKobo: data.Amount,
		Currency:   data.Currency,
		PaidAt:     data.PaidAt,
		Channel:    data.Channel,
	}, nil
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return apperror.ErrGatewayFailure(fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return apperror.ErrGatewayFailure(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return apperror.ErrGatewayFailure(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperror.ErrGatewayFailure(fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return apperror.ErrGatewayFailure(fmt.Errorf("read response: %w", err))
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return apperror.ErrGatewayFailure(fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !envelope.Status {
		c.log.Warn().
			Int("status_code", resp.StatusCode).
			Str("message", envelope.Message).
			Str("path", req.URL.Path).
			Msg("paystack request rejected")
		return apperror.ErrGatewayFailure(fmt.Errorf("gateway rejected request: %s", envelope.Message))
	}

	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return apperror.ErrGatewayFailure(fmt.Errorf("decode response data: %w", err))
		}
	}
	return nil
}
