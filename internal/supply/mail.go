// Package supply sends the "we are out of bags" request to the collection
// company by e-mail.
package supply

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/wneessen/go-mail"

	logx "gstaldergeist/pkg/logx"
)

var ErrNotConfigured = errors.New("supply mail not configured")

const (
	subject    = "Request for new bags"
	toName     = "We Recycle"
	defaultSSL = 465
)

type Config struct {
	SMTPHost    string
	SMTPPort    int
	Username    string
	Password    string
	FromName    string
	FromAddress string
	To          string
	// Address is the pickup address written into the request.
	Address string
}

// Sender delivers a prepared message. *mail.Client implements it.
type Sender interface {
	DialAndSendWithContext(ctx context.Context, msgs ...*mail.Msg) error
}

type Mailer struct {
	cfg    Config
	sender Sender
	log    logx.Logger
}

// New builds a Mailer that talks implicit TLS to cfg.SMTPHost.
func New(cfg Config, log logx.Logger) (*Mailer, error) {
	if cfg.SMTPHost == "" || cfg.FromAddress == "" || cfg.To == "" {
		return nil, ErrNotConfigured
	}
	if cfg.SMTPPort <= 0 {
		cfg.SMTPPort = defaultSSL
	}
	if cfg.Username == "" {
		cfg.Username = cfg.FromAddress
	}
	client, err := mail.NewClient(cfg.SMTPHost,
		mail.WithPort(cfg.SMTPPort),
		mail.WithSSL(),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(cfg.Username),
		mail.WithPassword(cfg.Password),
	)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return NewWithSender(cfg, client, log), nil
}

func NewWithSender(cfg Config, s Sender, log logx.Logger) *Mailer {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Mailer{cfg: cfg, sender: s, log: log}
}

// RequestBags sends one bag request.
func (m *Mailer) RequestBags(ctx context.Context) error {
	msg, err := m.message()
	if err != nil {
		return err
	}
	if err := m.sender.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send bag request: %w", err)
	}
	m.log.Info("bag request sent", logx.String("to", m.cfg.To))
	return nil
}

func (m *Mailer) message() (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.FromFormat(m.cfg.FromName, m.cfg.FromAddress); err != nil {
		return nil, fmt.Errorf("from: %w", err)
	}
	if err := msg.AddToFormat(toName, m.cfg.To); err != nil {
		return nil, fmt.Errorf("to: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, PlainBody(m.cfg.FromName, m.cfg.Address))
	msg.AddAlternativeString(mail.TypeTextHTML, HTMLBody(m.cfg.FromName, m.cfg.Address))
	return msg, nil
}

func PlainBody(name, address string) string {
	return fmt.Sprintf("Hi!\n"+
		"My name is %s and my address is %s\n"+
		"Unfortunately It looks like we do not have any bags anymore ?\n"+
		"Could you please send us some new ones ?\n"+
		"Thank you very much !\n"+
		"%s", name, address, name)
}

func HTMLBody(name, address string) string {
	lines := strings.Split(PlainBody(html.EscapeString(name), html.EscapeString(address)), "\n")
	return "<html><body><p>" + strings.Join(lines, "<br>\n") + "</p></body></html>"
}
