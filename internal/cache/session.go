package cache

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/MimeLyc/presentation-params/internal/params"
	"github.com/MimeLyc/presentation-params/pkg/log"
)

const (
	OffsetStepVh = 2
	ZoomStep     = 0.05
)

// LocalStore mirrors the session snapshot so edits survive a restart.
type LocalStore interface {
	LoadSnapshot(ctx context.Context, imageDir string) (params.Snapshot, bool, error)
	SaveSnapshot(ctx context.Context, snap params.Snapshot) error
}

// Session is the editable parameter cache for one image directory. Only
// filenames from the catalog are tracked; reads and writes for anything else
// fall back to defaults and are ignored respectively.
type Session struct {
	local LocalStore

	mu   sync.RWMutex
	snap params.Snapshot
}

func NewSession(imageDir string, filenames []string, local LocalStore) *Session {
	return &Session{
		local: local,
		snap:  params.NewSnapshot(imageDir, filenames),
	}
}

func (s *Session) ImageDir() string {
	return s.snap.ImageDir
}

// Hydrate overlays the locally cached snapshot for this directory, if any.
func (s *Session) Hydrate(ctx context.Context) error {
	if s.local == nil {
		return nil
	}
	cached, ok, err := s.local.LoadSnapshot(ctx, s.snap.ImageDir)
	if err != nil || !ok {
		return err
	}
	n := s.overlay(cached.Items)
	log.Debug("Hydrated %d items for %s from local cache", n, s.snap.ImageDir)
	return nil
}

// ApplyDocument overlays the shared document's entries for this directory.
func (s *Session) ApplyDocument(doc params.Document) int {
	entry, ok := doc.Dirs[s.snap.ImageDir]
	if !ok {
		return 0
	}
	return s.overlay(entry.Items)
}

func (s *Session) overlay(items map[string]params.ItemParams) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for name, item := range items {
		if _, known := s.snap.Items[name]; !known {
			continue
		}
		s.snap.Items[name] = item.Normalize()
		n++
	}
	return n
}

func (s *Session) half(file string, h params.Half) (params.HalfParams, bool) {
	item, ok := s.snap.Items[file]
	if !ok {
		return params.DefaultHalf(), false
	}
	return item.Half(h), true
}

func (s *Session) Offset(file string, h params.Half) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, _ := s.half(file, h)
	return p.OffsetVh
}

func (s *Session) Zoom(file string, h params.Half) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, _ := s.half(file, h)
	return params.ClampZoom(p.Zoom)
}

func (s *Session) Mask(file string, h params.Half) []json.RawMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, _ := s.half(file, h)
	return p.Clone().Mask
}

func (s *Session) SetOffset(ctx context.Context, file string, h params.Half, value int) bool {
	return s.update(ctx, file, h, func(p *params.HalfParams) {
		p.OffsetVh = value
	})
}

func (s *Session) SetZoom(ctx context.Context, file string, h params.Half, value float64) bool {
	return s.update(ctx, file, h, func(p *params.HalfParams) {
		p.Zoom = params.ClampZoom(value)
	})
}

func (s *Session) SetMask(ctx context.Context, file string, h params.Half, mask []json.RawMessage) bool {
	return s.update(ctx, file, h, func(p *params.HalfParams) {
		p.Mask = params.HalfParams{Mask: mask}.Clone().Mask
	})
}

// Nudge moves the offset by steps of OffsetStepVh and returns the new value.
func (s *Session) Nudge(ctx context.Context, file string, h params.Half, steps int) int {
	var next int
	s.update(ctx, file, h, func(p *params.HalfParams) {
		p.OffsetVh += steps * OffsetStepVh
		next = p.OffsetVh
	})
	return next
}

func (s *Session) ResetOffset(ctx context.Context, file string, h params.Half) bool {
	return s.SetOffset(ctx, file, h, 0)
}

// ZoomBy changes the zoom by steps of ZoomStep and returns the clamped value.
func (s *Session) ZoomBy(ctx context.Context, file string, h params.Half, steps int) float64 {
	next := params.DefaultZoom
	s.update(ctx, file, h, func(p *params.HalfParams) {
		p.Zoom = params.ClampZoom(params.ClampZoom(p.Zoom) + float64(steps)*ZoomStep)
		next = p.Zoom
	})
	return next
}

func (s *Session) update(ctx context.Context, file string, h params.Half, mutate func(*params.HalfParams)) bool {
	s.mu.Lock()
	item, ok := s.snap.Items[file]
	if !ok {
		s.mu.Unlock()
		return false
	}
	p := item.Half(h)
	mutate(&p)
	item.SetHalf(h, p)
	s.snap.Items[file] = item
	// mirrored under the lock so the cache never sees writes out of order
	s.persist(ctx, s.snap.Clone())
	s.mu.Unlock()
	return true
}

// Snapshot returns a copy of the full current view of the directory.
func (s *Session) Snapshot() params.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Clone()
}

// Persist writes the current snapshot to the local store. Callers that only
// need best-effort mirroring may ignore the error.
func (s *Session) Persist(ctx context.Context) error {
	if s.local == nil {
		return nil
	}
	return s.local.SaveSnapshot(ctx, s.Snapshot())
}

func (s *Session) persist(ctx context.Context, snap params.Snapshot) {
	if s.local == nil {
		return
	}
	if err := s.local.SaveSnapshot(ctx, snap); err != nil {
		log.Warn("Failed to mirror params for %s to local cache: %v", snap.ImageDir, err)
	}
}
