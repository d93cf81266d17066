package upstream

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

const defaultPlatformAPIBaseURL = "https://api.loadway.app/v2"

// ErrAuthInvalid signals that the platform API rejected the caller's bearer
// token (401/403). It must be passed through to the surface, never swallowed.
var ErrAuthInvalid = errors.New("platform api rejected credentials")

// APIError is a non-2xx platform API response with its decoded error body.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("platform api error: status=%d code=%s message=%s", e.Status, e.Code, e.Message)
}

// Client talks to the platform backend (plans, subscriptions, orders). All
// calls attach the caller's bearer token and share one fixed timeout.
type Client struct {
	BaseURL string

	HTTPClient *http.Client
}

func NewClientFromEnv() *Client {
	return &Client{
		BaseURL: strings.TrimRight(env.GetEnv("PLATFORM_API_BASE_URL", defaultPlatformAPIBaseURL), "/"),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// RawPlan is the wire shape of a plan record before normalization. Amount is
// declared in major currency units by the backend.
type RawPlan struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Amount    float64  `json:"amount"`
	Recurring bool     `json:"recurring"`
	Benefits  []string `json:"benefits"`
	CTALabel  string   `json:"cta"`
}

// RawSubscription is the wire shape of an active subscription record. Legacy
// records carry the amount in major units ("amount"), newer ones in minor
// units ("amount_minor"); the minor field wins when present.
type RawSubscription struct {
	Amount      float64 `json:"amount"`
	AmountMinor int64   `json:"amount_minor"`
	EndAt       *int64  `json:"end_at"`
}

// AmountMinorUnits canonicalizes the dual-field amount into minor units.
func (s RawSubscription) AmountMinorUnits() int64 {
	if s.AmountMinor > 0 {
		return s.AmountMinor
	}
	return int64(s.Amount*100 + 0.5)
}

// Profile identifies the bearer-token holder.
type Profile struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
	Role  string `json:"role"`
}

type subscriptionCreateResponse struct {
	SubscriptionID string `json:"subscription_id"`
}

type orderCreateResponse struct {
	OrderID string `json:"order_id"`
}

// GetProfile resolves the bearer token to the caller's identity.
func (c *Client) GetProfile(ctx context.Context, token string) (*Profile, error) {
	var out Profile
	if err := c.do(ctx, http.MethodGet, "/me", token, nil, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.ID) == "" {
		return nil, errors.New("profile response missing user id")
	}
	return &out, nil
}

// ListPlans fetches the raw plan records for a caller role.
func (c *Client) ListPlans(ctx context.Context, token, role string) ([]RawPlan, error) {
	var out struct {
		Plans []RawPlan `json:"plans"`
	}
	path := "/billing/plans?role=" + strings.TrimSpace(role)
	if err := c.do(ctx, http.MethodGet, path, token, nil, &out); err != nil {
		return nil, err
	}
	return out.Plans, nil
}

// GetSubscriptions fetches the caller's subscription records. An empty list
// is the normal "no subscription" state, not an error.
func (c *Client) GetSubscriptions(ctx context.Context, token string) ([]RawSubscription, error) {
	body, err := c.doRaw(ctx, http.MethodGet, "/billing/subscription", token, nil)
	if err != nil {
		return nil, err
	}

	// The endpoint historically returns either a single object or a list.
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var subs []RawSubscription
		if err := json.Unmarshal(trimmed, &subs); err != nil {
			return nil, err
		}
		return subs, nil
	}
	var sub RawSubscription
	if err := json.Unmarshal(trimmed, &sub); err != nil {
		return nil, err
	}
	return []RawSubscription{sub}, nil
}

// CreateSubscription asks the backend for a recurring-subscription intent.
func (c *Client) CreateSubscription(ctx context.Context, token, planID string) (string, error) {
	var out subscriptionCreateResponse
	payload := map[string]string{"plan_id": planID}
	if err := c.do(ctx, http.MethodPost, "/billing/subscriptions", token, payload, &out); err != nil {
		return "", err
	}
	return strings.TrimSpace(out.SubscriptionID), nil
}

// CreateOrder asks the backend for a one-time-order intent.
func (c *Client) CreateOrder(ctx context.Context, token string, amountMinorUnits int64, planID string) (string, error) {
	var out orderCreateResponse
	payload := map[string]interface{}{
		"amount":  amountMinorUnits,
		"plan_id": planID,
	}
	if err := c.do(ctx, http.MethodPost, "/billing/orders", token, payload, &out); err != nil {
		return "", err
	}
	return strings.TrimSpace(out.OrderID), nil
}

func (c *Client) do(ctx context.Context, method, path, token string, payload, out interface{}) error {
	body, err := c.doRaw(ctx, method, path, token, payload)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}

func (c *Client) doRaw(ctx context.Context, method, path, token string, payload interface{}) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if t := strings.TrimSpace(token); t != "" {
		req.Header.Set("Authorization", "Bearer "+t)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("status=%d: %w", resp.StatusCode, ErrAuthInvalid)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, decodeAPIError(resp.StatusCode, body)
	}
	return body, nil
}

func decodeAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status}
	var decoded struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &decoded); err == nil {
		apiErr.Code = decoded.Error
		apiErr.Message = decoded.Message
	}
	if apiErr.Message == "" {
		apiErr.Message = string(bytes.TrimSpace(body))
	}
	return apiErr
}
