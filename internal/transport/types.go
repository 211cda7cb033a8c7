// Package transport holds the chat-platform neutral types shared by the
// adapter, the router and the notifier.
package transport

import "context"

// Adapter is one chat platform connection.
type Adapter interface {
	// Start begins delivering inbound updates to out until Stop or ctx ends.
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	// EditText replaces the text of a sent message. A nil ReplyMarkupAdapter removes its buttons.
	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
	AnswerCallback(ctx context.Context, callbackID string, text string) error
}

// ChatResolver looks up a human-readable name for a chat or user id.
type ChatResolver interface {
	ChatName(ctx context.Context, chatID int64) (string, error)
}

// CommandMenuUpdater is implemented by adapters that can publish a command menu.
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}

type BotCommand struct {
	Command     string
	Description string
}

type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdateCallback UpdateKind = "callback"
)

// Update carries exactly one of Message or Callback, selected by Kind.
type Update struct {
	Kind     UpdateKind
	Message  *Message
	Callback *Callback
}

// Message is an inbound text message. Only commands are routed.
type Message struct {
	ID       int
	ChatID   int64
	ThreadID int // forum topic, 0 if none
	FromID   int64
	Text     string
}

func (m *Message) Target() ChatTarget { return ChatTarget{ChatID: m.ChatID, ThreadID: m.ThreadID} }

// Callback is a button press on a message the bot sent.
type Callback struct {
	ID        string
	FromID    int64
	ChatID    int64
	ThreadID  int
	MessageID int
	Data      string
}

func (c *Callback) Target() ChatTarget { return ChatTarget{ChatID: c.ChatID, ThreadID: c.ThreadID} }

// Ref points at the message that carried the pressed button.
func (c *Callback) Ref() MessageRef {
	return MessageRef{ChatID: c.ChatID, ThreadID: c.ThreadID, MessageID: c.MessageID}
}

// ChatTarget addresses a chat, or a topic inside a forum chat.
// For a private chat ChatID equals the member's user id.
type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

func (t ChatTarget) IsZero() bool { return t.ChatID == 0 }

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

func (r MessageRef) Target() ChatTarget { return ChatTarget{ChatID: r.ChatID, ThreadID: r.ThreadID} }

type SendOptions struct {
	ParseMode      string // "" for plain text, "HTML"
	DisablePreview bool
	// ReplyMarkupAdapter is adapter-specific markup (Telegram: *telebot.ReplyMarkup).
	ReplyMarkupAdapter any
}
