package kommo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/xavierca1/lead-relay/internal/entity"
	"github.com/xavierca1/lead-relay/internal/usecase"
)

var errContactNotFound = errors.New("kommo: contact not found")

// Client pushes leads into a Kommo pipeline. It is the CRM_WEBHOOK sender when a token is configured.
type Client struct {
	apiToken   string
	baseURL    string
	statusID   int
	httpClient *http.Client
}

func NewClient(baseURL, apiToken string, statusID int, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		apiToken:   apiToken,
		baseURL:    strings.TrimRight(baseURL, "/"),
		statusID:   statusID,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) Send(ctx context.Context, lead entity.Lead) usecase.SendResult {
	_, err := c.CreateLead(ctx, CreateLeadInput{
		Name:      lead.FullName,
		Phone:     lead.Phone,
		Email:     lead.Email,
		ClassName: lead.PreferredClass,
	})
	if err != nil {
		return usecase.Failed(err.Error())
	}
	return usecase.Sent()
}

func (c *Client) CreateLead(ctx context.Context, input CreateLeadInput) (int, error) {
	if c.apiToken == "" {
		log.Println("[KOMMO] ⚠️ KOMMO_API_TOKEN not configured")
		return 0, fmt.Errorf("kommo not configured")
	}

	contactID, err := c.findOrCreateContact(ctx, input)
	if err != nil {
		return 0, fmt.Errorf("kommo contact: %w", err)
	}

	lead := map[string]any{
		"name": fmt.Sprintf("%s - %s", input.Name, input.ClassName),
		"_embedded": map[string]any{
			"tags": []map[string]any{
				{"name": "site_inquiry"},
			},
			"contacts": []map[string]any{
				{"id": contactID},
			},
		},
	}
	if c.statusID > 0 {
		lead["status_id"] = c.statusID
	}

	var result embeddedLeads
	if err := c.do(ctx, http.MethodPost, "/leads", []map[string]any{lead}, &result); err != nil {
		return 0, fmt.Errorf("kommo create lead: %w", err)
	}
	if len(result.Embedded.Leads) == 0 {
		return 0, fmt.Errorf("kommo: lead not created")
	}

	leadID := result.Embedded.Leads[0].ID
	log.Printf("[KOMMO] ✅ lead #%d created for %s (%s)", leadID, input.Name, input.ClassName)
	return leadID, nil
}

func (c *Client) findOrCreateContact(ctx context.Context, input CreateLeadInput) (int, error) {
	contactID, err := c.findContactByPhone(ctx, input.Phone)
	if err == nil {
		log.Printf("[KOMMO] existing contact %d", contactID)
		return contactID, nil
	}
	if !errors.Is(err, errContactNotFound) {
		return 0, err
	}
	return c.createContact(ctx, input)
}

func (c *Client) findContactByPhone(ctx context.Context, phone string) (int, error) {
	var result embeddedContacts
	if err := c.do(ctx, http.MethodGet, "/contacts?query="+url.QueryEscape(phone), nil, &result); err != nil {
		return 0, err
	}
	if len(result.Embedded.Contacts) == 0 {
		return 0, errContactNotFound
	}
	return result.Embedded.Contacts[0].ID, nil
}

func (c *Client) createContact(ctx context.Context, input CreateLeadInput) (int, error) {
	contact := []map[string]any{
		{
			"name": input.Name,
			"custom_fields_values": []map[string]any{
				{
					"field_code": "PHONE",
					"values": []map[string]any{
						{"value": input.Phone, "enum_code": "WORK"},
					},
				},
				{
					"field_code": "EMAIL",
					"values": []map[string]any{
						{"value": input.Email, "enum_code": "WORK"},
					},
				},
			},
		},
	}

	var result embeddedContacts
	if err := c.do(ctx, http.MethodPost, "/contacts", contact, &result); err != nil {
		return 0, err
	}
	if len(result.Embedded.Contacts) == 0 {
		return 0, fmt.Errorf("kommo: created contact has no id")
	}

	contactID := result.Embedded.Contacts[0].ID
	log.Printf("[KOMMO] ✅ contact %d created", contactID)
	return contactID, nil
}

// do sends one API call. Kommo answers 204 on an empty search, which decodes to nothing.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	c.addAuthHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	switch {
	case resp.StatusCode == http.StatusNoContent:
		return nil
	case resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated:
		return fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(respBody))
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	return json.Unmarshal(respBody, out)
}

func (c *Client) addAuthHeaders(req *http.Request) {
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiToken))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
}
