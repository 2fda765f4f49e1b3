package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/xavierca1/lead-relay/internal/entity"
	"github.com/xavierca1/lead-relay/internal/usecase"
)

// WebhookPayload is the body the CRM endpoint expects.
type WebhookPayload struct {
	Name           string `json:"name"`
	Phone          string `json:"phone"`
	Email          string `json:"email"`
	PreferredClass string `json:"preferredClass"`
}

// Client posts new leads to a CRM webhook. Any 2xx is a success.
type Client struct {
	url        string
	httpClient *http.Client
}

func NewClient(url string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) Send(ctx context.Context, lead entity.Lead) usecase.SendResult {
	if err := c.post(ctx, lead); err != nil {
		log.Printf("[CRM] ❌ webhook failed for lead %s: %v", lead.ID, err)
		return usecase.Failed(err.Error())
	}
	log.Printf("[CRM] ✅ webhook delivered for lead %s", lead.ID)
	return usecase.Sent()
}

func (c *Client) post(ctx context.Context, lead entity.Lead) error {
	if c.url == "" {
		return fmt.Errorf("crm: CRM_URL not configured")
	}

	payload, err := json.Marshal(WebhookPayload{
		Name:           lead.FullName,
		Phone:          lead.Phone,
		Email:          lead.Email,
		PreferredClass: lead.PreferredClass,
	})
	if err != nil {
		return fmt.Errorf("crm: encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("crm: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("crm: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("crm webhook returned status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
