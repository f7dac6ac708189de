// Package payments tracks card-payment attempts against the external
// provider and reconciles their outcomes with the local order state.
package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Status is the provider-reported state of one payment attempt.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusCanceled  Status = "canceled"
	StatusExpired   Status = "expired"
)

// Intent tracks one external payment attempt against the cart snapshot
// amount it was created for. Lines added afterwards are not covered.
type Intent struct {
	ID              string
	Phone           string
	Amount          int
	Status          Status
	ConfirmationURL string
	CreatedAt       time.Time
}

// Provider is the external payment API surface the coordinator needs.
type Provider interface {
	Create(ctx context.Context, amount int, description string) (*Intent, error)
	Find(ctx context.Context, id string) (Status, error)
	Cancel(ctx context.Context, id string) error
}

// Client talks to a YooKassa-compatible payments API. Requests carry shop
// credentials via basic auth and an Idempotence-Key header so retried
// creates and cancels stay safe.
type Client struct {
	baseURL   string
	shopID    string
	secretKey string
	returnURL string
	http      *http.Client
}

// NewClient creates a payment API client.
func NewClient(baseURL, shopID, secretKey, returnURL string) *Client {
	return &Client{
		baseURL:   baseURL,
		shopID:    shopID,
		secretKey: secretKey,
		returnURL: returnURL,
		http:      &http.Client{Timeout: 15 * time.Second},
	}
}

type paymentResponse struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	Confirmation struct {
		ConfirmationURL string `json:"confirmation_url"`
	} `json:"confirmation"`
}

// Create starts a payment for the given amount of whole currency units.
func (c *Client) Create(ctx context.Context, amount int, description string) (*Intent, error) {
	body := map[string]interface{}{
		"amount": map[string]string{
			"value":    fmt.Sprintf("%d.00", amount),
			"currency": "RUB",
		},
		"confirmation": map[string]string{
			"type":       "redirect",
			"return_url": c.returnURL,
		},
		"capture":     true,
		"description": description,
	}

	var resp paymentResponse
	if err := c.call(ctx, http.MethodPost, c.baseURL+"/payments", body, &resp); err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}

	return &Intent{
		ID:              resp.ID,
		Amount:          amount,
		Status:          Status(resp.Status),
		ConfirmationURL: resp.Confirmation.ConfirmationURL,
		CreatedAt:       time.Now(),
	}, nil
}

// Find queries the current status of a payment.
func (c *Client) Find(ctx context.Context, id string) (Status, error) {
	var resp paymentResponse
	if err := c.call(ctx, http.MethodGet, c.baseURL+"/payments/"+id, nil, &resp); err != nil {
		return "", fmt.Errorf("find payment %s: %w", id, err)
	}
	return Status(resp.Status), nil
}

// Cancel asks the provider to cancel a still-pending payment.
func (c *Client) Cancel(ctx context.Context, id string) error {
	var resp paymentResponse
	if err := c.call(ctx, http.MethodPost, c.baseURL+"/payments/"+id+"/cancel", struct{}{}, &resp); err != nil {
		return fmt.Errorf("cancel payment %s: %w", id, err)
	}
	return nil
}

func (c *Client) call(ctx context.Context, method, url string, body, out interface{}) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.SetBasicAuth(c.shopID, c.secretKey)
	req.Header.Set("Content-Type", "application/json")
	if method != http.MethodGet {
		req.Header.Set("Idempotence-Key", uuid.NewString())
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
