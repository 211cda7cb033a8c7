package scheduler

import (
	"context"
	"time"
)

type Config struct {
	Timezone       string // IANA name, e.g. "Europe/Zurich"
	DefaultTimeout time.Duration
}

type Job func(ctx context.Context) error

type ScheduleInfo struct {
	Name    string
	Spec    string
	Timeout time.Duration
	Next    time.Time
	Prev    time.Time
	LastErr string
	Runs    uint64
}

type Snapshot struct {
	Timezone  string
	Running   bool
	Schedules []ScheduleInfo
}
