package core

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Source is the read-only registry lookup the resolution engine runs
// against. Implementations must be safe for concurrent use; a single
// resolution must see one consistent snapshot of the data.
type Source interface {
	// GetComponent retrieves the component identified by purl.
	GetComponent(ctx context.Context, purl string) (*Component, error)

	// GetVersions retrieves every published version of a component,
	// including yanked and unapproved ones. Filtering is the solver's
	// concern.
	GetVersions(ctx context.Context, purl string) ([]Version, error)

	// GetSignatures retrieves the signature rows for a version.
	GetSignatures(ctx context.Context, versionID uuid.UUID) ([]Signature, error)

	// GetScanResult retrieves the scan record for a version. A version
	// with no record yet reports a pending scan, not an error.
	GetScanResult(ctx context.Context, versionID uuid.UUID) (*ScanResult, error)
}

// MemorySource is an in-memory Source. It backs tests and registry-side
// tooling that already holds a snapshot of the data.
type MemorySource struct {
	mu         sync.RWMutex
	components map[string]Component
	versions   map[string][]Version
	signatures map[uuid.UUID][]Signature
	scans      map[uuid.UUID]ScanResult
}

// NewMemorySource creates an empty MemorySource.
func NewMemorySource() *MemorySource {
	return &MemorySource{
		components: make(map[string]Component),
		versions:   make(map[string][]Version),
		signatures: make(map[uuid.UUID][]Signature),
		scans:      make(map[uuid.UUID]ScanResult),
	}
}

// AddComponent registers a component under its PURL.
func (m *MemorySource) AddComponent(c Component) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.components[c.PURL] = c
}

// AddVersion appends a version for the component identified by purl.
func (m *MemorySource) AddVersion(purl string, v Version) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.versions[purl] = append(m.versions[purl], v)
}

// AddSignature appends a signature row for its version.
func (m *MemorySource) AddSignature(s Signature) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signatures[s.VersionID] = append(m.signatures[s.VersionID], s)
}

// SetScanResult records the scan verdict for its version, replacing any
// earlier record.
func (m *MemorySource) SetScanResult(r ScanResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scans[r.VersionID] = r
}

func (m *MemorySource) GetComponent(_ context.Context, purl string) (*Component, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.components[purl]
	if !ok {
		return nil, &NotFoundError{PURL: purl}
	}
	return &c, nil
}

func (m *MemorySource) GetVersions(_ context.Context, purl string) ([]Version, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.components[purl]; !ok {
		return nil, &NotFoundError{PURL: purl}
	}
	vs := m.versions[purl]
	out := make([]Version, len(vs))
	copy(out, vs)
	return out, nil
}

func (m *MemorySource) GetSignatures(_ context.Context, versionID uuid.UUID) ([]Signature, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sigs := m.signatures[versionID]
	out := make([]Signature, len(sigs))
	copy(out, sigs)
	return out, nil
}

func (m *MemorySource) GetScanResult(_ context.Context, versionID uuid.UUID) (*ScanResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.scans[versionID]
	if !ok {
		return &ScanResult{VersionID: versionID, Status: ScanPending}, nil
	}
	return &r, nil
}
