package config

// Config is the on-disk configuration (JSON or YAML).
//
// All durations are Go duration strings (e.g. "90s", "1h").
type Config struct {
	Telegram TelegramConfig  `json:"telegram"`
	Logging  LoggingConfig   `json:"logging"`
	Duty     DutyConfig      `json:"duty"`
	Sources  SourcesConfig   `json:"sources"`
	Notifier *NotifierConfig `json:"notifier,omitempty"`
	Storage  *StorageConfig  `json:"storage,omitempty"`
	Email    *EmailConfig    `json:"email,omitempty"`
	HTTP     *HTTPConfig     `json:"http,omitempty"`

	// Language selects the message catalog ("en" or "de").
	Language string `json:"language,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// HouseholdChatID receives broadcasts and shame notices.
	HouseholdChatID   int64   `json:"household_chat_id"`
	HouseholdThreadID int     `json:"household_thread_id,omitempty"`
	OwnerUserIDs      []int64 `json:"owner_user_ids,omitempty"`
	PollTimeout       string  `json:"poll_timeout,omitempty"`
	Workers           int     `json:"workers,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingTelegram forwards log lines to an operator chat.
type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ChatID     int64  `json:"chat_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// DutyConfig drives the rotation and the reminder engine.
//
// Defaults (when fields are omitted/zero):
//   - offset: 1 (shifts the rotation by whole weeks to match an existing one)
//   - reminder_interval: "1h"
//   - max_reminders: 2
//   - rotation_day: "sunday"
//   - check_schedule: "0 18 * * *"
//   - timezone: "Europe/Zurich"
//   - poll_interval: "1m"
//   - retry_backoff: "5m"
//   - fetch_timeout: "30s"
type DutyConfig struct {
	Members          []int64 `json:"members"`
	Offset           *int    `json:"offset,omitempty"`
	ReminderInterval string  `json:"reminder_interval,omitempty"`
	MaxReminders     int     `json:"max_reminders,omitempty"`
	RotationDay      string  `json:"rotation_day,omitempty"`
	CheckSchedule    string  `json:"check_schedule,omitempty"`
	Timezone         string  `json:"timezone,omitempty"`
	PollInterval     string  `json:"poll_interval,omitempty"`
	RetryBackoff     string  `json:"retry_backoff,omitempty"`
	FetchTimeout     string  `json:"fetch_timeout,omitempty"`
}

type SourcesConfig struct {
	Adliswil  *AdliswilSource  `json:"adliswil,omitempty"`
	WeRecycle *WeRecycleSource `json:"werecycle,omitempty"`
	Calendar  *CalendarSource  `json:"calendar,omitempty"`
}

// AdliswilSource reads the municipal waste calendar JSON API.
type AdliswilSource struct {
	Enabled  bool   `json:"enabled"`
	Required bool   `json:"required"`
	BaseURL  string `json:"base_url,omitempty"`
}

// WeRecycleSource scrapes the pickup PDF of a private collection service.
type WeRecycleSource struct {
	Enabled  bool   `json:"enabled"`
	Required bool   `json:"required"`
	PageURL  string `json:"page_url,omitempty"`
	Region   string `json:"region,omitempty"`
}

// CalendarSource reads collection days from a Google Calendar.
// Mapping maps an event summary (case-insensitive) to an item tag;
// unmapped summaries are used verbatim.
type CalendarSource struct {
	Enabled         bool              `json:"enabled"`
	Required        bool              `json:"required"`
	CalendarID      string            `json:"calendar_id"`
	CredentialsFile string            `json:"credentials_file,omitempty"`
	APIKey          string            `json:"api_key,omitempty"`
	Mapping         map[string]string `json:"mapping,omitempty"`
}

// NotifierConfig controls outbound delivery.
type NotifierConfig struct {
	RatePerSec    int    `json:"rate_per_sec"`
	RetryMax      int    `json:"retry_max"`
	RetryBase     string `json:"retry_base"`
	RetryMaxDelay string `json:"retry_max_delay"`
}

// StorageConfig controls the optional sqlite history store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./gstaldergeist.db" }
type StorageConfig struct {
	Driver           string `json:"driver"`
	Path             string `json:"path"`
	BusyTimeout      string `json:"busy_timeout,omitempty"`
	HistoryRetention string `json:"history_retention,omitempty"`
	PruneSchedule    string `json:"prune_schedule,omitempty"`
}

// EmailConfig configures the supply request mail.
type EmailConfig struct {
	Enabled     bool   `json:"enabled"`
	SMTPHost    string `json:"smtp_host"`
	SMTPPort    int    `json:"smtp_port,omitempty"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	FromName    string `json:"from_name"`
	FromAddress string `json:"from_address"`
	To          string `json:"to"`
	// PickupAddress is the household address included in the request.
	PickupAddress string `json:"pickup_address"`
}

// HTTPConfig controls the read-only status API.
type HTTPConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default: "127.0.0.1:8089"
}
