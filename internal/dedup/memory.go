package dedup

import (
	"context"
	"sync"
	"time"

	"quote-service/internal/common/clock"
	"quote-service/internal/common/logger"
)

// MemoryStore keeps all records in process memory. One mutex guards the three
// maps, so a sweep never interleaves with a job's mutation.
type MemoryStore struct {
	mu         sync.Mutex
	window     time.Duration
	clock      clock.Clock
	logger     logger.Logger
	recent     map[string]time.Time
	sent       map[string]time.Time
	recipients map[string]map[string]struct{}
}

func NewMemoryStore(window time.Duration, clk clock.Clock, log logger.Logger) *MemoryStore {
	if window <= 0 {
		window = DefaultWindow
	}
	if clk == nil {
		clk = clock.NewRealClock()
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &MemoryStore{
		window:     window,
		clock:      clk,
		logger:     log,
		recent:     make(map[string]time.Time),
		sent:       make(map[string]time.Time),
		recipients: make(map[string]map[string]struct{}),
	}
}

func (s *MemoryStore) Backend() string {
	return "memory"
}

func (s *MemoryStore) CheckAndReserve(_ context.Context, fp string) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if ts, ok := s.recent[fp]; ok && now.Sub(ts) < s.window {
		return StatusInProgress, nil
	}
	if ts, ok := s.sent[fp]; ok && now.Sub(ts) < s.window {
		return StatusAlreadySent, nil
	}
	// Recipient sets are left to Sweep: a job from an earlier reservation may
	// still be dispatching.
	s.recent[fp] = now
	return StatusNew, nil
}

func (s *MemoryStore) Release(_ context.Context, fp string) error {
	s.mu.Lock()
	delete(s.recent, fp)
	s.mu.Unlock()
	return nil
}

// NotifiedRecipients returns a copy; callers may not mutate the store through it.
func (s *MemoryStore) NotifiedRecipients(_ context.Context, fp string) (map[string]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]struct{}, len(s.recipients[fp]))
	for addr := range s.recipients[fp] {
		out[addr] = struct{}{}
	}
	return out, nil
}

func (s *MemoryStore) MarkNotified(_ context.Context, fp, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.recipients[fp]
	if !ok {
		set = make(map[string]struct{})
		s.recipients[fp] = set
	}
	set[NormalizeAddress(address)] = struct{}{}
	return nil
}

func (s *MemoryStore) MarkCompleted(_ context.Context, fp string) error {
	s.mu.Lock()
	s.sent[fp] = s.clock.Now()
	s.mu.Unlock()
	return nil
}

// Sweep removes records older than the window, then every recipient set whose
// sent record is gone. A set still covered by a live reservation belongs to a
// dispatch in flight and is kept until that reservation expires.
func (s *MemoryStore) Sweep(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	var purgedRecent, purgedSent, purgedRecipients int
	for fp, ts := range s.recent {
		if now.Sub(ts) > s.window {
			delete(s.recent, fp)
			purgedRecent++
		}
	}
	for fp, ts := range s.sent {
		if now.Sub(ts) > s.window {
			delete(s.sent, fp)
			purgedSent++
		}
	}
	for fp := range s.recipients {
		_, sent := s.sent[fp]
		_, reserved := s.recent[fp]
		if !sent && !reserved {
			delete(s.recipients, fp)
			purgedRecipients++
		}
	}

	if purgedRecent+purgedSent+purgedRecipients > 0 {
		s.logger.Debug("Duplicate store swept", map[string]interface{}{
			"recent":     purgedRecent,
			"sent":       purgedSent,
			"recipients": purgedRecipients,
		})
	}
	return nil
}

// Run sweeps every interval until ctx is done.
func (s *MemoryStore) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = s.Sweep(ctx)
		}
	}
}

// Len reports the number of fingerprints held in each record kind.
func (s *MemoryStore) Len() (recent, sent, recipients int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.recent), len(s.sent), len(s.recipients)
}
