package duty

import (
	"errors"

	"gstaldergeist/internal/collection"
)

var (
	// ErrTransientData: the aggregator failed or timed out. Retried, state untouched.
	ErrTransientData = collection.ErrTransientData
	// ErrDelivery: a notification could not be sent. The transition stands.
	ErrDelivery = errors.New("notification delivery failed")
	// ErrStaleTransition: a conditional transition found another phase or cycle. Not a fault.
	ErrStaleTransition = errors.New("stale transition rejected")
)
