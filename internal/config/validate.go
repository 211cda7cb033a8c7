package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	logx "gstaldergeist/pkg/logx"
)

// ErrConfiguration marks invalid startup configuration. It is fatal at startup.
var ErrConfiguration = errors.New("configuration error")

const (
	DefaultReminderInterval = time.Hour
	DefaultMaxReminders     = 2
	DefaultCheckSchedule    = "0 18 * * *"
	DefaultTimezone         = "Europe/Zurich"
	DefaultPollInterval     = time.Minute
	DefaultRetryBackoff     = 5 * time.Minute
	DefaultFetchTimeout     = 30 * time.Second
	DefaultHTTPAddr         = "127.0.0.1:8089"
)

// Duty is the resolved, typed form of DutyConfig.
type Duty struct {
	Members          []int64
	Offset           int
	ReminderInterval time.Duration
	MaxReminders     int
	RotationDay      time.Weekday
	CheckSchedule    cron.Schedule
	CheckSpec        string
	Location         *time.Location
	PollInterval     time.Duration
	RetryBackoff     time.Duration
	FetchTimeout     time.Duration
}

// ResolveDuty applies defaults and parses every duty field.
func ResolveDuty(c DutyConfig) (Duty, error) {
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	d := Duty{Members: append([]int64(nil), c.Members...), Offset: 1, MaxReminders: c.MaxReminders}
	if c.Offset != nil {
		d.Offset = *c.Offset
	}
	if len(d.Members) == 0 {
		add(errors.New("duty.members: at least one member is required"))
	}
	seen := map[int64]bool{}
	for _, id := range d.Members {
		if id == 0 {
			add(errors.New("duty.members: member id must not be 0"))
		}
		if seen[id] {
			add(fmt.Errorf("duty.members: duplicate member %d", id))
		}
		seen[id] = true
	}
	if d.MaxReminders == 0 {
		d.MaxReminders = DefaultMaxReminders
	}
	if d.MaxReminders < 0 {
		add(errors.New("duty.max_reminders: must be > 0"))
	}

	var err error
	d.ReminderInterval, err = ParseDurationOrDefault("duty.reminder_interval", c.ReminderInterval, DefaultReminderInterval)
	add(err)
	d.PollInterval, err = ParseDurationOrDefault("duty.poll_interval", c.PollInterval, DefaultPollInterval)
	add(err)
	d.RetryBackoff, err = ParseDurationOrDefault("duty.retry_backoff", c.RetryBackoff, DefaultRetryBackoff)
	add(err)
	d.FetchTimeout, err = ParseDurationOrDefault("duty.fetch_timeout", c.FetchTimeout, DefaultFetchTimeout)
	add(err)

	d.RotationDay, err = parseWeekday(c.RotationDay)
	add(err)

	tz := strings.TrimSpace(c.Timezone)
	if tz == "" {
		tz = DefaultTimezone
	}
	d.Location, err = time.LoadLocation(tz)
	if err != nil {
		add(fmt.Errorf("duty.timezone: %w", err))
	}

	d.CheckSpec = strings.TrimSpace(c.CheckSchedule)
	if d.CheckSpec == "" {
		d.CheckSpec = DefaultCheckSchedule
	}
	spec := d.CheckSpec
	if d.Location != nil && !strings.HasPrefix(spec, "CRON_TZ=") && !strings.HasPrefix(spec, "TZ=") {
		spec = "CRON_TZ=" + d.Location.String() + " " + spec
	}
	d.CheckSchedule, err = cron.ParseStandard(spec)
	if err != nil {
		add(fmt.Errorf("duty.check_schedule: %w", err))
	}

	if len(errs) > 0 {
		return Duty{}, fmt.Errorf("%w: %w", ErrConfiguration, errors.Join(errs...))
	}
	return d, nil
}

func parseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return time.Sunday, nil
	}
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		name := strings.ToLower(wd.String())
		if s == name || s == name[:3] {
			return wd, nil
		}
	}
	return 0, fmt.Errorf("duty.rotation_day: unknown weekday %q", s)
}

// Validate checks the whole config. Errors wrap ErrConfiguration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: config is nil", ErrConfiguration)
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		add(errors.New("telegram.token: required"))
	}
	if cfg.Telegram.HouseholdChatID == 0 {
		add(errors.New("telegram.household_chat_id: required"))
	}
	_, err := ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout)
	add(err)

	if !logx.ValidLevel(cfg.Logging.Level) {
		add(fmt.Errorf("logging.level: unknown level %q", cfg.Logging.Level))
	}
	if !logx.ValidLevel(cfg.Logging.Telegram.MinLevel) {
		add(fmt.Errorf("logging.telegram.min_level: unknown level %q", cfg.Logging.Telegram.MinLevel))
	}

	_, err = ResolveDuty(cfg.Duty)
	add(err)

	s := cfg.Sources
	enabled := 0
	if s.Adliswil != nil && s.Adliswil.Enabled {
		enabled++
	}
	if s.WeRecycle != nil && s.WeRecycle.Enabled {
		enabled++
	}
	if c := s.Calendar; c != nil && c.Enabled {
		enabled++
		if strings.TrimSpace(c.CalendarID) == "" {
			add(errors.New("sources.calendar.calendar_id: required"))
		}
		if strings.TrimSpace(c.CredentialsFile) == "" && strings.TrimSpace(c.APIKey) == "" {
			add(errors.New("sources.calendar: credentials_file or api_key required"))
		}
	}
	if enabled == 0 {
		add(errors.New("sources: at least one collection source must be enabled"))
	}

	if n := cfg.Notifier; n != nil {
		_, err := ParseDurationField("notifier.retry_base", n.RetryBase)
		add(err)
		_, err = ParseDurationField("notifier.retry_max_delay", n.RetryMaxDelay)
		add(err)
	}

	if st := cfg.Storage; st != nil {
		switch strings.ToLower(strings.TrimSpace(st.Driver)) {
		case "", "none":
		case "sqlite":
			if strings.TrimSpace(st.Path) == "" {
				add(errors.New("storage.path: required for sqlite"))
			}
		default:
			add(fmt.Errorf("storage.driver: unsupported driver %q", st.Driver))
		}
		_, err := ParseDurationField("storage.busy_timeout", st.BusyTimeout)
		add(err)
		_, err = ParseDurationField("storage.history_retention", st.HistoryRetention)
		add(err)
		if spec := strings.TrimSpace(st.PruneSchedule); spec != "" {
			if _, err := cron.ParseStandard(spec); err != nil {
				add(fmt.Errorf("storage.prune_schedule: %w", err))
			}
		}
	}

	if e := cfg.Email; e != nil && e.Enabled {
		for name, v := range map[string]string{
			"email.smtp_host":    e.SMTPHost,
			"email.from_address": e.FromAddress,
			"email.to":           e.To,
		} {
			if strings.TrimSpace(v) == "" {
				add(fmt.Errorf("%s: required when email is enabled", name))
			}
		}
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Language)) {
	case "", "en", "de":
	default:
		add(fmt.Errorf("language: unsupported %q", cfg.Language))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrConfiguration, errors.Join(errs...))
	}
	return nil
}
