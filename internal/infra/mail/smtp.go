package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/gomail.v2"
)

// SMTPDialer delivers gomail messages over a connection whose deadline follows ctx. When ctx
// ends the socket is cut, so a message the server has not yet accepted is dropped rather than
// delivered after the attempt was already recorded as failed.
type SMTPDialer struct {
	Host     string
	Port     int
	Username string
	Password string
	// SSL is implicit TLS (port 465). Otherwise STARTTLS is used when offered.
	SSL       bool
	TLSConfig *tls.Config
}

func NewSMTPDialer(host string, port int, username, password string) *SMTPDialer {
	return &SMTPDialer{
		Host:     host,
		Port:     port,
		Username: username,
		Password: password,
		SSL:      port == 465,
	}
}

func (d *SMTPDialer) DialAndSend(ctx context.Context, m *gomail.Message) error {
	var nd net.Dialer
	conn, err := nd.DialContext(ctx, "tcp", net.JoinHostPort(d.Host, strconv.Itoa(d.Port)))
	if err != nil {
		return err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	if d.SSL {
		conn = tls.Client(conn, d.tlsConfig())
	}

	c, err := smtp.NewClient(conn, d.Host)
	if err != nil {
		return withCause(ctx, err)
	}
	defer c.Close()

	if !d.SSL {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(d.tlsConfig()); err != nil {
				return withCause(ctx, err)
			}
		}
	}

	if d.Username != "" {
		if ok, mechs := c.Extension("AUTH"); ok {
			if err := c.Auth(d.auth(mechs)); err != nil {
				return withCause(ctx, err)
			}
		}
	}

	err = gomail.Send(gomail.SendFunc(func(from string, to []string, msg io.WriterTo) error {
		if err := c.Mail(from); err != nil {
			return err
		}
		for _, addr := range to {
			if err := c.Rcpt(addr); err != nil {
				return err
			}
		}
		w, err := c.Data()
		if err != nil {
			return err
		}
		if _, err := msg.WriteTo(w); err != nil {
			_ = w.Close()
			return err
		}
		return w.Close()
	}), m)
	if err != nil {
		return withCause(ctx, err)
	}

	// the message is accepted once DATA closes; a failed QUIT does not undo that
	_ = c.Quit()
	return nil
}

func (d *SMTPDialer) auth(mechs string) smtp.Auth {
	if strings.Contains(mechs, "CRAM-MD5") {
		return smtp.CRAMMD5Auth(d.Username, d.Password)
	}
	return smtp.PlainAuth("", d.Username, d.Password, d.Host)
}

func (d *SMTPDialer) tlsConfig() *tls.Config {
	if d.TLSConfig == nil {
		return &tls.Config{ServerName: d.Host}
	}
	return d.TLSConfig
}

// withCause reports the context error when the deadline is what broke the conversation.
// The socket deadline can fire a moment before ctx records it.
func withCause(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %v", ctxErr, err)
	}
	if deadline, ok := ctx.Deadline(); ok && !time.Now().Before(deadline) {
		return fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
	}
	return err
}
