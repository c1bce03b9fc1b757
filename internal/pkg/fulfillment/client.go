package fulfillment

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

	"github.com/pressline/insiderhub/internal/pkg/env"
)

// Request carries the customer shipping snapshot for a new magazine
// fulfillment.
type Request struct {
	SubscriptionRef    string     `json:"subscription_ref"`
	Tier               string     `json:"tier"`
	BillingInterval    string     `json:"billing_interval"`
	StartedAt          *time.Time `json:"started_at,omitempty"`
	ShippingName       string     `json:"shipping_name"`
	ShippingStreet     string     `json:"shipping_street"`
	ShippingCity       string     `json:"shipping_city"`
	ShippingPostalCode string     `json:"shipping_postal_code"`
	ShippingCountry    string     `json:"shipping_country"`
}

// Cancellation tells the collaborator to stop delivery.
type Cancellation struct {
	SubscriptionRef string `json:"subscription_ref"`
	Reason          string `json:"reason,omitempty"`
}

// Client is the outbound fulfillment collaborator. Calls are fire-and-forget
// from the billing side: failures are persisted as retry-pending records,
// never surfaced into the reconciliation transaction.
type Client interface {
	RequestFulfillment(ctx context.Context, req Request) error
	CancelFulfillment(ctx context.Context, c Cancellation) error
}

// HTTPClient talks to the fulfillment collaborator's HTTP API.
type HTTPClient struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClientFromEnv builds the client from FULFILLMENT_* settings.
func NewClientFromEnv() *HTTPClient {
	return &HTTPClient{
		BaseURL: strings.TrimRight(env.GetEnv("FULFILLMENT_BASE_URL", ""), "/"),
		APIKey:  strings.TrimSpace(env.GetEnv("FULFILLMENT_API_KEY", "")),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (c *HTTPClient) RequestFulfillment(ctx context.Context, req Request) error {
	return c.post(ctx, "/fulfillments", req)
}

func (c *HTTPClient) CancelFulfillment(ctx context.Context, cancel Cancellation) error {
	return c.post(ctx, "/fulfillments/"+cancel.SubscriptionRef+"/cancel", cancel)
}

func (c *HTTPClient) post(ctx context.Context, path string, payload interface{}) error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return errors.New("FULFILLMENT_BASE_URL is not configured")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("fulfillment request failed: status=%d body=%s", resp.StatusCode, string(respBody))
	}
	return nil
}
