package fetch

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/envforge/resolve/internal/core"
)

// Snapshot wraps a Source and caches every answer for its lifetime, so
// one resolution observes a single consistent view of the registry even
// while the underlying data changes. Not-found answers are cached too; a
// component that was missing at the start of a resolution stays missing
// for its duration.
//
// Transient failures are not cached, so a retried lookup can still
// succeed. Build one Snapshot per resolution and discard it.
type Snapshot struct {
	src   core.Source
	group singleflight.Group

	mu    sync.RWMutex
	cache map[string]entry
}

type entry struct {
	val any
	err error
}

// NewSnapshot creates a Snapshot over src.
func NewSnapshot(src core.Source) *Snapshot {
	return &Snapshot{
		src:   src,
		cache: make(map[string]entry),
	}
}

// Prefetch warms the snapshot with component and version metadata for
// the given PURLs, fetching up to limit in parallel. Missing components
// are not an error here; the solver reports them with full path context.
func (s *Snapshot) Prefetch(ctx context.Context, purls []string, limit int) error {
	if limit <= 0 {
		limit = 8
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, purl := range purls {
		purl := purl
		g.Go(func() error {
			if _, err := s.GetComponent(ctx, purl); err != nil {
				if errors.Is(err, core.ErrNotFound) {
					return nil
				}
				return err
			}
			if _, err := s.GetVersions(ctx, purl); err != nil && !errors.Is(err, core.ErrNotFound) {
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

func (s *Snapshot) GetComponent(ctx context.Context, purl string) (*core.Component, error) {
	v, err := s.do("component:"+purl, func() (any, error) {
		return s.src.GetComponent(ctx, purl)
	})
	if err != nil {
		return nil, err
	}
	return v.(*core.Component), nil
}

func (s *Snapshot) GetVersions(ctx context.Context, purl string) ([]core.Version, error) {
	v, err := s.do("versions:"+purl, func() (any, error) {
		return s.src.GetVersions(ctx, purl)
	})
	if err != nil {
		return nil, err
	}
	return v.([]core.Version), nil
}

func (s *Snapshot) GetSignatures(ctx context.Context, versionID uuid.UUID) ([]core.Signature, error) {
	v, err := s.do("signatures:"+versionID.String(), func() (any, error) {
		return s.src.GetSignatures(ctx, versionID)
	})
	if err != nil {
		return nil, err
	}
	return v.([]core.Signature), nil
}

func (s *Snapshot) GetScanResult(ctx context.Context, versionID uuid.UUID) (*core.ScanResult, error) {
	v, err := s.do("scan:"+versionID.String(), func() (any, error) {
		return s.src.GetScanResult(ctx, versionID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*core.ScanResult), nil
}

func (s *Snapshot) do(key string, fn func() (any, error)) (any, error) {
	s.mu.RLock()
	e, ok := s.cache[key]
	s.mu.RUnlock()
	if ok {
		return e.val, e.err
	}

	val, err, _ := s.group.Do(key, func() (any, error) {
		s.mu.RLock()
		e, ok := s.cache[key]
		s.mu.RUnlock()
		if ok {
			return e.val, e.err
		}

		val, err := fn()
		if err == nil || errors.Is(err, core.ErrNotFound) {
			s.mu.Lock()
			s.cache[key] = entry{val: val, err: err}
			s.mu.Unlock()
		}
		return val, err
	})
	return val, err
}
