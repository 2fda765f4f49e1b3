// Package notify builds the channel senders from configuration.
package notify

import (
	"log"

	"github.com/xavierca1/lead-relay/internal/config"
	"github.com/xavierca1/lead-relay/internal/entity"
	"github.com/xavierca1/lead-relay/internal/infra/integration/crm"
	"github.com/xavierca1/lead-relay/internal/infra/integration/kommo"
	"github.com/xavierca1/lead-relay/internal/infra/integration/telegram"
	"github.com/xavierca1/lead-relay/internal/infra/integration/whatsapp"
	"github.com/xavierca1/lead-relay/internal/infra/mail"
	"github.com/xavierca1/lead-relay/internal/infra/queue"
	"github.com/xavierca1/lead-relay/internal/usecase"
)

// Senders maps every channel to its sender. A channel with no usable
// configuration is left out, so attempts on it fail with a clear error.
// publisher is only used when STAFF_TRANSPORT=amqp.
func Senders(cfg *config.Config, publisher queue.Publisher) map[entity.Channel]usecase.ChannelSender {
	timeout := cfg.SendTimeout()
	senders := map[entity.Channel]usecase.ChannelSender{}

	if cfg.SMTPHost != "" && cfg.NotificationEmail != "" {
		senders[entity.ChannelEmail] = mail.NewEmailSender(
			cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.MailFrom, cfg.NotificationEmail,
		)
	} else {
		log.Println("⚠️ SMTP not configured, EMAIL deliveries will fail")
	}

	switch {
	case cfg.KommoAPIToken != "" && cfg.KommoBaseURL != "":
		senders[entity.ChannelCRMWebhook] = kommo.NewClient(cfg.KommoBaseURL, cfg.KommoAPIToken, cfg.KommoStatusID, timeout)
	case cfg.CRMURL != "":
		senders[entity.ChannelCRMWebhook] = crm.NewClient(cfg.CRMURL, timeout)
	default:
		log.Println("⚠️ CRM not configured, CRM_WEBHOOK deliveries will fail")
	}

	if staff := StaffSender(cfg, publisher); staff != nil {
		senders[entity.ChannelStaffMessage] = staff
	} else {
		log.Printf("⚠️ staff transport %q not configured, STAFF_MESSAGE deliveries will fail", cfg.StaffTransport)
	}

	return senders
}

// StaffSender picks the staff channel transport. Returns nil when it lacks credentials.
func StaffSender(cfg *config.Config, publisher queue.Publisher) usecase.ChannelSender {
	switch cfg.StaffTransport {
	case config.StaffTransportAMQP:
		if publisher == nil {
			return nil
		}
		return queue.NewStaffPublisher(publisher)
	case config.StaffTransportWhatsApp:
		if cfg.WhatsAppAccessToken == "" || cfg.WhatsAppPhoneID == "" || cfg.WhatsAppStaffPhone == "" {
			return nil
		}
		return whatsapp.NewClient(cfg.WhatsAppBaseURL, cfg.WhatsAppAccessToken, cfg.WhatsAppPhoneID, cfg.WhatsAppStaffPhone, cfg.WhatsAppTemplate, cfg.SendTimeout())
	default:
		if tg := Telegram(cfg); tg != nil {
			return tg
		}
		return nil
	}
}

// Telegram is the direct staff transport, and the final hop of the AMQP one.
func Telegram(cfg *config.Config) *telegram.Client {
	if cfg.TelegramBotToken == "" || cfg.StaffChannelID == "" {
		return nil
	}
	return telegram.NewClient(cfg.TelegramAPIURL, cfg.TelegramBotToken, cfg.StaffChannelID, cfg.SendTimeout())
}
