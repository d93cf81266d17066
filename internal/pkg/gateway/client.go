package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/loadway/Loadway/internal/pkg/env"
)

const defaultGatewayBaseURL = "https://api.paygate.io/v1"

// Client talks to the external payment gateway. Only the checkout-create
// call is consumed; the gateway itself is an external system whose contract
// is not re-implemented here.
type Client struct {
	KeyID      string
	KeySecret  string
	BaseURL    string
	ThemeColor string

	HTTPClient *http.Client
}

func NewClientFromEnv() *Client {
	return &Client{
		KeyID:      strings.TrimSpace(env.GetEnv("PAYGATE_KEY_ID", "")),
		KeySecret:  strings.TrimSpace(env.GetEnv("PAYGATE_KEY_SECRET", "")),
		BaseURL:    strings.TrimRight(env.GetEnv("PAYGATE_BASE_URL", defaultGatewayBaseURL), "/"),
		ThemeColor: env.GetEnv("PAYGATE_THEME_COLOR", "#1A74E8"),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// PrefillIdentity holds the contact fields the gateway sheet is seeded with.
type PrefillIdentity struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Contact string `json:"contact"`
}

// CheckoutRequest describes one gateway checkout. The order path (amount +
// order id) and the subscription path are mutually exclusive.
type CheckoutRequest struct {
	Reference        string
	AmountMinorUnits int64
	OrderID          string
	SubscriptionID   string
	Prefill          PrefillIdentity
	Notes            map[string]string
}

// CheckoutOptions is what the mobile SDK needs to open the payment sheet.
type CheckoutOptions struct {
	CheckoutID       string          `json:"checkout_id"`
	KeyID            string          `json:"key_id"`
	AmountMinorUnits int64           `json:"amount_minor_units,omitempty"`
	OrderID          string          `json:"order_id,omitempty"`
	SubscriptionID   string          `json:"subscription_id,omitempty"`
	ThemeColor       string          `json:"theme_color"`
	Prefill          PrefillIdentity `json:"prefill"`
}

// CreateCheckout registers a checkout with the gateway and returns the
// options for the device SDK. Exactly one gateway request is issued per call.
func (c *Client) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutOptions, error) {
	if strings.TrimSpace(c.KeyID) == "" || strings.TrimSpace(c.KeySecret) == "" {
		return nil, errors.New("PAYGATE_KEY_ID/PAYGATE_KEY_SECRET are not configured")
	}
	hasOrder := req.SubscriptionID == "" && req.OrderID != ""
	hasSubscription := req.SubscriptionID != ""
	if hasOrder == hasSubscription {
		return nil, errors.New("checkout request needs either an order or a subscription reference")
	}
	if hasOrder && req.AmountMinorUnits <= 0 {
		return nil, errors.New("order checkout requires a positive amount")
	}

	payload := map[string]interface{}{
		"reference": req.Reference,
		"theme":     map[string]string{"color": c.ThemeColor},
		"prefill":   req.Prefill,
	}
	if len(req.Notes) > 0 {
		payload["notes"] = req.Notes
	}
	if hasSubscription {
		payload["subscription_id"] = req.SubscriptionID
	} else {
		payload["order_id"] = req.OrderID
		payload["amount"] = req.AmountMinorUnits
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/checkouts", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.SetBasicAuth(c.KeyID, c.KeySecret)

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("gateway checkout create failed: status=%d body=%s", resp.StatusCode, string(body))
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.ID) == "" {
		return nil, errors.New("gateway checkout create returned empty id")
	}

	return &CheckoutOptions{
		CheckoutID:       strings.TrimSpace(out.ID),
		KeyID:            c.KeyID,
		AmountMinorUnits: req.AmountMinorUnits,
		OrderID:          req.OrderID,
		SubscriptionID:   req.SubscriptionID,
		ThemeColor:       c.ThemeColor,
		Prefill:          req.Prefill,
	}, nil
}
