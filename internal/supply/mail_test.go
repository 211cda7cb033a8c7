package supply

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/wneessen/go-mail"

	logx "gstaldergeist/pkg/logx"
)

type captureSender struct {
	msgs []*mail.Msg
	err  error
}

func (c *captureSender) DialAndSendWithContext(_ context.Context, msgs ...*mail.Msg) error {
	c.msgs = append(c.msgs, msgs...)
	return c.err
}

func testConfig() Config {
	return Config{
		SMTPHost:    "smtp.example.org",
		FromName:    "Anna Muster",
		FromAddress: "anna@example.org",
		To:          "bags@werecycle.example",
		Address:     "Zürichstrasse 1, 8134 Adliswil",
	}
}

func TestMailer_RequestBags(t *testing.T) {
	t.Parallel()
	s := &captureSender{}
	m := NewWithSender(testConfig(), s, logx.Nop())

	if err := m.RequestBags(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(s.msgs) != 1 {
		t.Fatalf("messages = %d", len(s.msgs))
	}
	msg := s.msgs[0]
	if got := msg.GetGenHeader(mail.HeaderSubject); len(got) != 1 || got[0] != subject {
		t.Fatalf("subject = %v", got)
	}
	var buf bytes.Buffer
	if _, err := msg.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}
	raw := buf.String()
	for _, want := range []string{"We Recycle", "bags@werecycle.example", "text/plain", "text/html"} {
		if !strings.Contains(raw, want) {
			t.Errorf("message lacks %q", want)
		}
	}
}

func TestMailer_SendError(t *testing.T) {
	t.Parallel()
	s := &captureSender{err: errors.New("auth failed")}
	m := NewWithSender(testConfig(), s, logx.Nop())
	if err := m.RequestBags(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestNew_RequiresServerAndAddresses(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{SMTPHost: "smtp.example.org"}, logx.Nop()); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("err = %v", err)
	}
	if _, err := New(testConfig(), logx.Nop()); err != nil {
		t.Fatalf("New: %v", err)
	}
}

func TestBodies(t *testing.T) {
	t.Parallel()
	plain := PlainBody("Anna", "Main St 1")
	if !strings.HasPrefix(plain, "Hi!\nMy name is Anna and my address is Main St 1\n") || !strings.HasSuffix(plain, "\nAnna") {
		t.Fatalf("plain = %q", plain)
	}
	h := HTMLBody("A<b>", "x")
	if strings.Contains(h, "A<b>") || !strings.Contains(h, "A&lt;b&gt;") {
		t.Fatalf("html not escaped: %q", h)
	}
}
