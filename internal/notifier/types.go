package notifier

import "time"

type Config struct {
	RatePerSec    int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	SendTimeout   time.Duration
}

// Callback scopes and actions.
const (
	ScopeDuty = "duty"
	ScopeBags = "bags"

	BagsRequest = "request"
	BagsSure    = "sure"
	BagsEnough  = "enough"
)

type HistoryItem struct {
	At     time.Time
	ChatID int64
	Kind   string
	Text   string
}

// NotificationEvent is published on the bus after each delivery attempt.
type NotificationEvent struct {
	Kind   string    `json:"kind"`
	ChatID int64     `json:"chat_id"`
	At     time.Time `json:"at"`
	Error  string    `json:"error,omitempty"`
}
