package telegram

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

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// Client posts staff notifications to a Telegram chat through the Bot API.
type Client struct {
	botToken   string
	chatID     string
	apiURL     string
	httpClient *http.Client
}

func NewClient(apiURL, botToken, chatID string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		botToken:   botToken,
		chatID:     chatID,
		apiURL:     strings.TrimRight(apiURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) Send(ctx context.Context, lead entity.Lead) usecase.SendResult {
	if err := c.SendMessage(ctx, StaffMessage(lead)); err != nil {
		log.Printf("[TELEGRAM] ❌ staff message failed for lead %s: %v", lead.ID, err)
		return usecase.Failed(err.Error())
	}
	log.Printf("[TELEGRAM] ✅ staff notified of lead %s", lead.ID)
	return usecase.Sent()
}

func (c *Client) SendMessage(ctx context.Context, text string) error {
	if c.botToken == "" || c.chatID == "" {
		return fmt.Errorf("telegram bot not configured")
	}

	payload, err := json.Marshal(SendMessageRequest{ChatID: c.chatID, Text: text, ParseMode: "HTML"})
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", c.apiURL, c.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// the URL carries the token
		return fmt.Errorf("telegram: request failed: %s", strings.ReplaceAll(err.Error(), c.botToken, "***"))
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	var result APIResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("telegram: status %d: unreadable response", resp.StatusCode)
	}
	if !result.OK {
		return fmt.Errorf("telegram: %d %s", result.ErrorCode, result.Description)
	}
	return nil
}

// StaffMessage renders the HTML staff notification. Lead fields are escaped.
func StaffMessage(lead entity.Lead) string {
	var b strings.Builder
	b.WriteString("🏋️ <b>New Gym Inquiry</b>\n\n")
	fmt.Fprintf(&b, "👤 <b>Name:</b> %s\n", htmlEscaper.Replace(lead.FullName))
	fmt.Fprintf(&b, "📞 <b>Phone:</b> %s\n", htmlEscaper.Replace(lead.Phone))
	fmt.Fprintf(&b, "📧 <b>Email:</b> %s\n", htmlEscaper.Replace(lead.Email))
	fmt.Fprintf(&b, "🎯 <b>Interested in:</b> %s\n\n", htmlEscaper.Replace(lead.PreferredClass))
	fmt.Fprintf(&b, "⏰ <b>Received:</b> %s\n\n", lead.CreatedAt.Format("2006-01-02 15:04 MST"))
	b.WriteString("💡 <b>Action Required:</b> Please follow up within 24 hours.")
	return b.String()
}
