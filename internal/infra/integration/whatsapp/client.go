package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/xavierca1/lead-relay/internal/entity"
	"github.com/xavierca1/lead-relay/internal/usecase"
)

// Client sends staff notifications as WhatsApp Cloud API template messages.
type Client struct {
	accessToken  string
	phoneID      string
	baseURL      string
	staffPhone   string
	templateName string
	language     string
	httpClient   *http.Client
}

func NewClient(baseURL, accessToken, phoneID, staffPhone, templateName string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		accessToken:  accessToken,
		phoneID:      phoneID,
		baseURL:      strings.TrimRight(baseURL, "/"),
		staffPhone:   staffPhone,
		templateName: templateName,
		language:     "en_US",
		httpClient:   &http.Client{Timeout: timeout},
	}
}

func (c *Client) Send(ctx context.Context, lead entity.Lead) usecase.SendResult {
	err := c.SendMessage(ctx, SendMessageInput{
		PhoneNumber:  c.staffPhone,
		TemplateName: c.templateName,
		Parameters:   []string{lead.FullName, lead.Phone, lead.Email, lead.PreferredClass},
	})
	if err != nil {
		return usecase.Failed(err.Error())
	}
	return usecase.Sent()
}

func (c *Client) SendMessage(ctx context.Context, input SendMessageInput) error {
	if c.accessToken == "" || c.phoneID == "" || input.PhoneNumber == "" {
		log.Println("[WHATSAPP] ⚠️ WHATSAPP_ACCESS_TOKEN, WHATSAPP_PHONE_ID or staff phone not configured")
		return fmt.Errorf("whatsapp not configured")
	}

	payload := map[string]any{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                input.PhoneNumber,
		"type":              "template",
		"template": map[string]any{
			"name": input.TemplateName,
			"language": map[string]string{
				"code": c.language,
			},
			"components": []map[string]any{
				{
					"type":       "body",
					"parameters": convertParametersToAPI(input.Parameters),
				},
			},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/%s/messages", c.baseURL, c.phoneID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.accessToken))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("[WHATSAPP] ❌ request failed: %v", err)
		return fmt.Errorf("whatsapp: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	var result SendMessageResponse
	_ = json.Unmarshal(respBody, &result)

	if result.Error != nil {
		log.Printf("[WHATSAPP] ❌ API error: %s (code %d)", result.Error.Message, result.Error.Code)
		return fmt.Errorf("whatsapp: %s", result.Error.Message)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		log.Printf("[WHATSAPP] ❌ API returned status %d", resp.StatusCode)
		return fmt.Errorf("whatsapp api error: %d", resp.StatusCode)
	}

	log.Printf("[WHATSAPP] ✅ message sent to %s", input.PhoneNumber)
	return nil
}

func convertParametersToAPI(params []string) []map[string]string {
	result := make([]map[string]string, 0, len(params))
	for _, param := range params {
		result = append(result, map[string]string{
			"type": "text",
			"text": param,
		})
	}
	return result
}
