package fulfillment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(server *httptest.Server) *HTTPClient {
	return &HTTPClient{
		BaseURL:    server.URL,
		APIKey:     "test-key",
		HTTPClient: &http.Client{Timeout: 2 * time.Second},
	}
}

func TestRequestFulfillment(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody Request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decoding request body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := newTestClient(server)
	err := client.RequestFulfillment(context.Background(), Request{
		SubscriptionRef: "sub_1",
		Tier:            "insider",
		BillingInterval: "month",
		ShippingName:    "Reader One",
		ShippingCity:    "Berlin",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPath != "/fulfillments" {
		t.Fatalf("unexpected path: %q", gotPath)
	}
	if gotAuth != "Bearer test-key" {
		t.Fatalf("unexpected auth header: %q", gotAuth)
	}
	if gotBody.SubscriptionRef != "sub_1" || gotBody.ShippingCity != "Berlin" {
		t.Fatalf("unexpected body: %+v", gotBody)
	}
}

func TestCancelFulfillment(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestClient(server)
	err := client.CancelFulfillment(context.Background(), Cancellation{
		SubscriptionRef: "sub_1",
		Reason:          "tier_downgrade",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPath != "/fulfillments/sub_1/cancel" {
		t.Fatalf("unexpected path: %q", gotPath)
	}
}

func TestRequestFulfillment_NonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
	}))
	defer server.Close()

	client := newTestClient(server)
	if err := client.RequestFulfillment(context.Background(), Request{SubscriptionRef: "sub_1"}); err == nil {
		t.Fatalf("expected error for non-2xx response")
	}
}

func TestRequestFulfillment_MissingBaseURL(t *testing.T) {
	client := &HTTPClient{HTTPClient: http.DefaultClient}
	if err := client.RequestFulfillment(context.Background(), Request{SubscriptionRef: "sub_1"}); err == nil {
		t.Fatalf("expected error when base url is not configured")
	}
}
