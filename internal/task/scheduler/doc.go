// Package scheduler runs named cron jobs for housekeeping work such as
// pruning the collection history.
//
// Jobs never overlap with themselves, panics are recovered, and each run is
// bounded by its timeout.
package scheduler
