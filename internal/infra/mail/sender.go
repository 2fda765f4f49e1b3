package mail

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"log"
	"time"

	"gopkg.in/gomail.v2"

	"github.com/xavierca1/lead-relay/internal/entity"
	"github.com/xavierca1/lead-relay/internal/usecase"
)

//go:embed templates/*.html
var templateFS embed.FS

var leadTemplate = template.Must(template.ParseFS(templateFS, "templates/lead_notification.html"))

// Dialer delivers one message and must give up when ctx ends.
type Dialer interface {
	DialAndSend(ctx context.Context, m *gomail.Message) error
}

// EmailSender notifies the front desk inbox of a new lead over SMTP.
type EmailSender struct {
	Dialer  Dialer
	From    string
	To      string
	Brand   string
	Timeout time.Duration
}

func NewEmailSender(host string, port int, user, password, from, to string) *EmailSender {
	if from == "" {
		from = user
	}
	return &EmailSender{
		Dialer:  NewSMTPDialer(host, port, user, password),
		From:    from,
		To:      to,
		Brand:   "Forge Fitness",
		Timeout: 10 * time.Second,
	}
}

func (s *EmailSender) Send(ctx context.Context, lead entity.Lead) usecase.SendResult {
	if s.To == "" {
		return usecase.Failed("email: NOTIFICATION_EMAIL not configured")
	}

	m, err := s.buildMessage(lead)
	if err != nil {
		return usecase.Failed(err.Error())
	}

	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	if err := s.Dialer.DialAndSend(ctx, m); err != nil {
		log.Printf("[EMAIL] ❌ send failed for lead %s: %v", lead.ID, err)
		return usecase.Failed(fmt.Sprintf("smtp: %v", err))
	}
	log.Printf("[EMAIL] ✅ notification sent for lead %s", lead.ID)
	return usecase.Sent()
}

func (s *EmailSender) buildMessage(lead entity.Lead) (*gomail.Message, error) {
	body, err := s.renderBody(lead)
	if err != nil {
		return nil, err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.From)
	m.SetHeader("To", s.To)
	m.SetHeader("Subject", fmt.Sprintf("🏋️ New Gym Inquiry from %s", lead.FullName))
	m.SetHeader("Reply-To", lead.Email)
	m.SetBody("text/html", body)
	return m, nil
}

func (s *EmailSender) renderBody(lead entity.Lead) (string, error) {
	data := LeadNotificationData{
		Brand:          s.Brand,
		FullName:       lead.FullName,
		Phone:          lead.Phone,
		Email:          lead.Email,
		PreferredClass: lead.PreferredClass,
		ReceivedAt:     lead.CreatedAt.Format(time.RFC1123),
	}

	var body bytes.Buffer
	if err := leadTemplate.Execute(&body, data); err != nil {
		return "", fmt.Errorf("email template: %w", err)
	}
	return body.String(), nil
}
