package tgui

import (
	"strings"
	"testing"
)

func TestDataRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		scope, action, payload string
		want                   string
	}{
		{"duty", "confirm", "", "duty:confirm"},
		{" bags ", " sure ", "", "bags:sure"},
		{"duty", "decline", "a:b", "duty:decline:a:b"},
	}
	for _, tt := range tests {
		got := Data(tt.scope, tt.action, tt.payload)
		if got != tt.want {
			t.Fatalf("Data = %q, want %q", got, tt.want)
		}
		s, a, p, ok := ParseData(got)
		if !ok || s != strings.TrimSpace(tt.scope) || a != strings.TrimSpace(tt.action) || p != tt.payload {
			t.Fatalf("ParseData(%q) = %q %q %q %v", got, s, a, p, ok)
		}
	}
}

func TestParseDataRejectsMalformed(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "duty", ":confirm", "duty:"} {
		if _, _, _, ok := ParseData(in); ok {
			t.Fatalf("ParseData(%q) accepted", in)
		}
	}
}

func TestCheckData(t *testing.T) {
	t.Parallel()

	if err := CheckData("duty:confirm"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := CheckData(strings.Repeat("x", MaxCallbackDataLen+1)); err != ErrCallbackDataTooLong {
		t.Fatalf("err = %v", err)
	}
}

func TestInlineRows(t *testing.T) {
	t.Parallel()

	kb := NewInline().
		Row(Btn("Done", "duty:confirm"), Btn("Can't", "duty:decline")).
		Row(Btn("Out of bags", "bags:request"))
	if kb.Rows() != 2 {
		t.Fatalf("rows = %d", kb.Rows())
	}
	rm := kb.Markup()
	if len(rm.InlineKeyboard) != 2 || len(rm.InlineKeyboard[0]) != 2 {
		t.Fatalf("keyboard = %+v", rm.InlineKeyboard)
	}
	if rm.InlineKeyboard[1][0].Data != "bags:request" {
		t.Fatalf("data = %q", rm.InlineKeyboard[1][0].Data)
	}
}

func TestHTMLEscaping(t *testing.T) {
	t.Parallel()

	if got := B("<x>"); got != "<b>&lt;x&gt;</b>" {
		t.Fatalf("B = %q", got)
	}
	if got := Mention("A&B", 42); got != `<a href="tg://user?id=42">A&amp;B</a>` {
		t.Fatalf("Mention = %q", got)
	}
	if got := JoinH(" ", B("a"), "", I("b")); got != "<b>a</b> <i>b</i>" {
		t.Fatalf("JoinH = %q", got)
	}
}
