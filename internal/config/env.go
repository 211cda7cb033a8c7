package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// envOverrides are the environment variables that take precedence over the file.
type envOverrides struct {
	TelegramToken   string  `env:"TELEGRAM_BOT_TOKEN"`
	HouseholdChatID int64   `env:"TELEGRAM_CHANNEL_ID"`
	Members         []int64 `env:"TELEGRAM_FLATMATES" envSeparator:","`
	LogLevel        string  `env:"GSTALDERGEIST_LOG_LEVEL"`
	Language        string  `env:"GSTALDERGEIST_LANGUAGE"`

	SMTPHost      string `env:"EMAIL_SMTP_SERVER"`
	EmailAddress  string `env:"EMAIL_ADDRESS"`
	EmailPassword string `env:"EMAIL_PASSWORD"`
	EmailName     string `env:"EMAIL_NAME"`
	PickupAddress string `env:"ADDRESS"`
	EmailTo       string `env:"TO_EMAIL"`
}

// ApplyEnv overlays set environment variables onto cfg.
func ApplyEnv(cfg *Config) error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("%w: parse env: %v", ErrConfiguration, err)
	}
	o.apply(cfg)
	return nil
}

func (o envOverrides) apply(cfg *Config) {
	setString(&cfg.Telegram.Token, o.TelegramToken)
	if o.HouseholdChatID != 0 {
		cfg.Telegram.HouseholdChatID = o.HouseholdChatID
	}
	if len(o.Members) > 0 {
		cfg.Duty.Members = o.Members
	}
	setString(&cfg.Logging.Level, o.LogLevel)
	setString(&cfg.Language, o.Language)

	if o.SMTPHost == "" && o.EmailAddress == "" && o.EmailPassword == "" &&
		o.EmailName == "" && o.PickupAddress == "" && o.EmailTo == "" {
		return
	}
	if cfg.Email == nil {
		// Env-only setups enable the mail flow implicitly.
		cfg.Email = &EmailConfig{Enabled: true}
	}
	e := cfg.Email
	setString(&e.SMTPHost, o.SMTPHost)
	setString(&e.FromAddress, o.EmailAddress)
	if o.EmailAddress != "" && e.Username == "" {
		e.Username = o.EmailAddress
	}
	setString(&e.Password, o.EmailPassword)
	setString(&e.FromName, o.EmailName)
	setString(&e.PickupAddress, o.PickupAddress)
	setString(&e.To, o.EmailTo)
}

func setString(dst *string, v string) {
	if strings.TrimSpace(v) != "" {
		*dst = strings.TrimSpace(v)
	}
}
