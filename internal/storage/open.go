package storage

import (
	"errors"
	"fmt"
	"strings"

	logx "gstaldergeist/pkg/logx"
)

var ErrUnknownDriver = errors.New("unknown storage driver")

var drivers = map[string]func(Config, logx.Logger) (Store, error){
	"sqlite":  openSQLite,
	"sqlite3": openSQLite,
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if name == "" || name == "none" {
		return nil, nil
	}
	open, ok := drivers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return open(cfg, log)
}
