// Package yookassa is a thin HTTP client for the card gateway. The backend
// only needs two outbound calls: charging a stored mandate on renewal and
// disabling a mandate when a subscription is superseded or canceled.
package yookassa

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dkoroteev/genbot-backend/pkg/config"
	"github.com/dkoroteev/genbot-backend/pkg/enums"
	"github.com/dkoroteev/genbot-backend/pkg/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	errShopIDRequired = errors.New("yookassa shop id is required")
	errSecretRequired = errors.New("yookassa secret key is required")
)

// Client talks to the gateway's payments API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	shopID     string
	secretKey  string
}

// ChargeParams describes a mandate-based auto charge.
type ChargeParams struct {
	MandateID   string
	Amount      decimal.Decimal
	Currency    enums.Currency
	Description string
	// IdempotenceKey dedupes retried submissions gateway-side. Generated
	// fresh per call when empty.
	IdempotenceKey string
	// Metadata is echoed back on the webhook so the reconciler can correlate.
	Metadata map[string]string
}

// ChargeResult is the synchronous acknowledgement; the final outcome arrives
// on the webhook.
type ChargeResult struct {
	ID     string
	Status string
}

// NewClient builds a gateway client from configuration.
func NewClient(ctx context.Context, cfg config.YooKassaConfig, logg *logger.Logger) (*Client, error) {
	shopID := strings.TrimSpace(cfg.ShopID)
	if shopID == "" {
		return nil, errShopIDRequired
	}
	secret := strings.TrimSpace(cfg.SecretKey)
	if secret == "" {
		return nil, errSecretRequired
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if logg != nil {
		logg.Info(ctx, "yookassa client initialized")
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		shopID:     shopID,
		secretKey:  secret,
	}, nil
}

type chargeRequest struct {
	Amount struct {
		Value    string `json:"value"`
		Currency string `json:"currency"`
	} `json:"amount"`
	Capture         bool              `json:"capture"`
	PaymentMethodID string            `json:"payment_method_id"`
	Description     string            `json:"description,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

type chargeResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Charge debits a stored mandate. The final outcome of the payment arrives
// asynchronously on the webhook.
func (c *Client) Charge(ctx context.Context, params ChargeParams) (*ChargeResult, error) {
	if strings.TrimSpace(params.MandateID) == "" {
		return nil, errors.New("mandate id is required")
	}
	if params.Amount.Sign() <= 0 {
		return nil, errors.New("charge amount must be positive")
	}

	body := chargeRequest{
		Capture:         true,
		PaymentMethodID: params.MandateID,
		Description:     params.Description,
		Metadata:        params.Metadata,
	}
	body.Amount.Value = params.Amount.StringFixed(2)
	body.Amount.Currency = string(params.Currency)

	var decoded chargeResponse
	if err := c.post(ctx, "/payments", params.IdempotenceKey, body, &decoded); err != nil {
		return nil, err
	}
	return &ChargeResult{ID: decoded.ID, Status: decoded.Status}, nil
}

// RevokeMandate turns off provider-side auto-renew for the stored mandate.
// The gateway treats revoking an already-revoked mandate as a no-op.
func (c *Client) RevokeMandate(ctx context.Context, mandateID string) error {
	if strings.TrimSpace(mandateID) == "" {
		return errors.New("mandate id is required")
	}
	return c.post(ctx, fmt.Sprintf("/payment_methods/%s/revoke", mandateID), "", struct{}{}, nil)
}

func (c *Client) post(ctx context.Context, path, idempotenceKey string, payload any, out any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode gateway request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("build gateway request: %w", err)
	}
	req.SetBasicAuth(c.shopID, c.secretKey)
	req.Header.Set("Content-Type", "application/json")
	if idempotenceKey == "" {
		idempotenceKey = uuid.NewString()
	}
	req.Header.Set("Idempotence-Key", idempotenceKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return fmt.Errorf("gateway responded %d: %s %s", resp.StatusCode, apiErr.Code, apiErr.Description)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode gateway response: %w", err)
	}
	return nil
}
