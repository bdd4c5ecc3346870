// Package dedup tracks recently seen quote fingerprints so that repeated
// submissions inside a short window are neither processed nor emailed twice.
package dedup

import (
	"context"
	"strings"
	"time"
)

const (
	DefaultWindow        = 15 * time.Second
	DefaultSweepInterval = 60 * time.Second
)

// Status is the outcome of CheckAndReserve.
type Status int

const (
	StatusNew Status = iota
	StatusInProgress
	StatusAlreadySent
)

func (s Status) String() string {
	switch s {
	case StatusNew:
		return "new"
	case StatusInProgress:
		return "in_progress"
	case StatusAlreadySent:
		return "already_sent"
	default:
		return "unknown"
	}
}

// Store holds the three records kept per fingerprint: the recent-request
// reservation, the sent record and the set of recipients already notified.
type Store interface {
	// CheckAndReserve atomically classifies fp and, when it is new, reserves it.
	CheckAndReserve(ctx context.Context, fp string) (Status, error)
	// Release drops a reservation whose job never made it into the queue.
	Release(ctx context.Context, fp string) error
	NotifiedRecipients(ctx context.Context, fp string) (map[string]struct{}, error)
	MarkNotified(ctx context.Context, fp, address string) error
	MarkCompleted(ctx context.Context, fp string) error
	// Sweep drops expired records. Backends with native expiry may do nothing.
	Sweep(ctx context.Context) error
	Backend() string
}

// NormalizeAddress is the key recipients are tracked under.
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}
