package syncclient

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"github.com/MimeLyc/presentation-params/internal/params"
	"github.com/MimeLyc/presentation-params/pkg/icron"
	"github.com/MimeLyc/presentation-params/pkg/log"
)

const DefaultRetrySchedule = "@every 5s"

type State string

const (
	StateIdle         State = "idle"
	StateSaved        State = "saved"
	StateSavedOffline State = "saved_offline"
)

type Pusher interface {
	Push(ctx context.Context, snap params.Snapshot) (*SaveResult, error)
}

// PendingStore persists the single pending slot.
type PendingStore interface {
	LoadPending(ctx context.Context) (params.Snapshot, bool, error)
	SavePending(ctx context.Context, snap params.Snapshot) error
	ClearPending(ctx context.Context) error
}

// Source is what Save reads the current snapshot from; cache.Session
// satisfies it.
type Source interface {
	Snapshot() params.Snapshot
	Persist(ctx context.Context) error
}

type Option func(*Syncer)

func WithSchedule(expr string) Option {
	return func(s *Syncer) {
		if expr != "" {
			s.schedule = expr
		}
	}
}

func WithCron(c *cron.Cron) Option {
	return func(s *Syncer) {
		s.cron = c
	}
}

// Syncer delivers snapshots and keeps the most recent undelivered one in a
// single pending slot. A newer failed save replaces the slot; it is not a
// queue. At most one push is in flight at any time: an explicit Save waits
// for a running retry, while a retry tick that finds a push in flight is
// skipped.
type Syncer struct {
	pusher   Pusher
	store    PendingStore
	schedule string

	pushMu sync.Mutex
	group  singleflight.Group

	mu      sync.Mutex
	slot    *params.Snapshot
	state   State
	lastErr error

	cron    *cron.Cron
	entryID cron.EntryID
	started bool
}

func NewSyncer(pusher Pusher, store PendingStore, opts ...Option) *Syncer {
	s := &Syncer{
		pusher:   pusher,
		store:    store,
		schedule: DefaultRetrySchedule,
		state:    StateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.hydrateFromStore(context.Background())
	return s
}

// Save mirrors the source to its local cache and attempts one delivery. It
// never fails from the caller's point of view: an undelivered snapshot is
// staged and StateSavedOffline is returned.
func (s *Syncer) Save(ctx context.Context, src Source) State {
	snap := src.Snapshot()
	if err := src.Persist(ctx); err != nil {
		log.Warn("Failed to write params for %s to local cache: %v", snap.ImageDir, err)
	}

	s.pushMu.Lock()
	defer s.pushMu.Unlock()

	if _, err := s.pusher.Push(ctx, snap); err != nil {
		log.Warn("Saving params for %s failed, kept for retry: %v", snap.ImageDir, err)
		s.stage(ctx, snap, err)
		return StateSavedOffline
	}
	s.clear(ctx)
	log.Info("Saved params for %s (%d items)", snap.ImageDir, len(snap.Items))
	return StateSaved
}

// Tick makes at most one delivery attempt for the pending slot and reports
// whether it was delivered. Concurrent ticks collapse into one attempt.
func (s *Syncer) Tick(ctx context.Context) bool {
	v, _, _ := s.group.Do("retry", func() (any, error) {
		return s.retryOnce(ctx), nil
	})
	delivered, _ := v.(bool)
	return delivered
}

func (s *Syncer) retryOnce(ctx context.Context) bool {
	if !s.pushMu.TryLock() {
		log.Debug("Push already in flight, skipping retry tick")
		return false
	}
	defer s.pushMu.Unlock()

	snap, ok := s.Pending()
	if !ok {
		return false
	}
	if _, err := s.pusher.Push(ctx, snap); err != nil {
		log.Debug("Retry for %s failed: %v", snap.ImageDir, err)
		s.mu.Lock()
		s.lastErr = err
		s.mu.Unlock()
		return false
	}
	s.clear(ctx)
	log.Info("Delivered pending params for %s", snap.ImageDir)
	return true
}

// Start runs Tick on the retry schedule until Stop is called.
func (s *Syncer) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	if s.cron == nil {
		s.cron = cron.New(
			cron.WithParser(icron.Parser),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		)
	}
	id, err := s.cron.AddFunc(s.schedule, func() { s.Tick(ctx) })
	if err != nil {
		return fmt.Errorf("schedule retry %q: %w", s.schedule, err)
	}
	s.entryID = id
	s.cron.Start()
	s.started = true
	return nil
}

func (s *Syncer) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	c := s.cron
	c.Remove(s.entryID)
	s.mu.Unlock()

	<-c.Stop().Done()
}

// NextRetry reports when the next tick is due; zero when not running.
func (s *Syncer) NextRetry() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return time.Time{}
	}
	return s.cron.Entry(s.entryID).Next
}

func (s *Syncer) Pending() (params.Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.slot == nil {
		return params.Snapshot{}, false
	}
	return s.slot.Clone(), true
}

func (s *Syncer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Syncer) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Syncer) stage(ctx context.Context, snap params.Snapshot, cause error) {
	staged := snap.Clone()
	s.mu.Lock()
	s.slot = &staged
	s.state = StateSavedOffline
	s.lastErr = cause
	s.mu.Unlock()

	if s.store == nil {
		return
	}
	if err := s.store.SavePending(ctx, staged); err != nil {
		log.Warn("Failed to persist pending params for %s: %v", snap.ImageDir, err)
	}
}

func (s *Syncer) clear(ctx context.Context) {
	s.mu.Lock()
	hadSlot := s.slot != nil
	s.slot = nil
	s.state = StateSaved
	s.lastErr = nil
	s.mu.Unlock()

	if s.store == nil || !hadSlot {
		return
	}
	if err := s.store.ClearPending(ctx); err != nil {
		log.Warn("Failed to clear pending params: %v", err)
	}
}

func (s *Syncer) hydrateFromStore(ctx context.Context) {
	if s.store == nil {
		return
	}
	snap, ok, err := s.store.LoadPending(ctx)
	if err != nil {
		log.Error("Failed to load pending params: %v", err)
		return
	}
	if !ok {
		return
	}
	s.slot = &snap
	s.state = StateSavedOffline
	log.Info("Recovered pending params for %s", snap.ImageDir)
}
