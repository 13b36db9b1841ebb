package fetch

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/opencontainers/go-digest"

	"github.com/envforge/resolve/capability"
	"github.com/envforge/resolve/internal/core"
)

// jsonGetter is satisfied by *Client and *BreakerClient.
type jsonGetter interface {
	GetJSON(ctx context.Context, url string, out any) error
}

// Source is a core.Source backed by the registry's metadata API.
type Source struct {
	baseURL string
	client  jsonGetter
}

// NewSource creates a Source for the registry at baseURL. If client is
// nil, a breaker-wrapped default client is used.
func NewSource(baseURL string, client jsonGetter) *Source {
	if client == nil {
		client = NewBreakerClient(NewClient())
	}
	return &Source{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  client,
	}
}

func (s *Source) componentURL(purl string) string {
	return fmt.Sprintf("%s/api/v1/components/%s", s.baseURL, url.PathEscape(purl))
}

func (s *Source) versionsURL(purl string) string {
	return fmt.Sprintf("%s/api/v1/components/%s/versions", s.baseURL, url.PathEscape(purl))
}

func (s *Source) signaturesURL(versionID uuid.UUID) string {
	return fmt.Sprintf("%s/api/v1/versions/%s/signatures", s.baseURL, versionID)
}

func (s *Source) scanURL(versionID uuid.UUID) string {
	return fmt.Sprintf("%s/api/v1/versions/%s/scan", s.baseURL, versionID)
}

type componentInfo struct {
	ID        string `json:"id"`
	PURL      string `json:"purl"`
	Ecosystem string `json:"ecosystem"`
	Name      string `json:"name"`
}

type versionsResponse struct {
	Versions []versionInfo `json:"versions"`
}

type versionInfo struct {
	ID             string           `json:"id"`
	ComponentID    string           `json:"component_id"`
	VersionRaw     string           `json:"version_raw"`
	VersionMajor   uint64           `json:"version_major"`
	VersionMinor   uint64           `json:"version_minor"`
	VersionPatch   uint64           `json:"version_patch"`
	Prerelease     string           `json:"version_prerelease"`
	OCIReference   string           `json:"oci_reference"`
	IntegrityHash  string           `json:"integrity_hash"`
	ApprovalStatus string           `json:"approval_status"`
	IsYanked       bool             `json:"is_yanked"`
	YankedReason   string           `json:"yanked_reason"`
	Dependencies   []dependencyInfo `json:"dependencies"`
	Capabilities   []capabilityInfo `json:"capabilities"`
}

type dependencyInfo struct {
	PURL string `json:"purl"`
	Req  string `json:"req"`
	Kind string `json:"kind"`
}

type capabilityInfo struct {
	Token  string   `json:"token"`
	Scopes []string `json:"scopes"`
}

type signaturesResponse struct {
	Signatures []signatureInfo `json:"signatures"`
}

type signatureInfo struct {
	ID          string `json:"id"`
	VersionID   string `json:"version_id"`
	SignerType  string `json:"signer_type"`
	SignerID    string `json:"signer_id"`
	Signature   string `json:"signature_content"`
	PublicKey   string `json:"public_key"`
	Certificate string `json:"certificate"`
}

type scanInfo struct {
	VersionID string          `json:"version_id"`
	Status    string          `json:"status"`
	Report    json.RawMessage `json:"report"`
}

func (s *Source) GetComponent(ctx context.Context, purl string) (*core.Component, error) {
	var info componentInfo
	if err := s.client.GetJSON(ctx, s.componentURL(purl), &info); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, &core.NotFoundError{PURL: purl}
		}
		return nil, err
	}
	id, err := uuid.Parse(info.ID)
	if err != nil {
		return nil, fmt.Errorf("component %s: bad id %q: %w", purl, info.ID, err)
	}
	return &core.Component{
		ID:        id,
		PURL:      info.PURL,
		Ecosystem: info.Ecosystem,
		Name:      info.Name,
	}, nil
}

func (s *Source) GetVersions(ctx context.Context, purl string) ([]core.Version, error) {
	var resp versionsResponse
	if err := s.client.GetJSON(ctx, s.versionsURL(purl), &resp); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, &core.NotFoundError{PURL: purl}
		}
		return nil, err
	}
	versions := make([]core.Version, 0, len(resp.Versions))
	for _, info := range resp.Versions {
		v, err := decodeVersion(info)
		if err != nil {
			return nil, fmt.Errorf("component %s: %w", purl, err)
		}
		versions = append(versions, v)
	}
	return versions, nil
}

func (s *Source) GetSignatures(ctx context.Context, versionID uuid.UUID) ([]core.Signature, error) {
	var resp signaturesResponse
	if err := s.client.GetJSON(ctx, s.signaturesURL(versionID), &resp); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	sigs := make([]core.Signature, 0, len(resp.Signatures))
	for _, info := range resp.Signatures {
		sig, err := decodeSignature(info)
		if err != nil {
			return nil, fmt.Errorf("version %s: %w", versionID, err)
		}
		sigs = append(sigs, sig)
	}
	return sigs, nil
}

func (s *Source) GetScanResult(ctx context.Context, versionID uuid.UUID) (*core.ScanResult, error) {
	var info scanInfo
	if err := s.client.GetJSON(ctx, s.scanURL(versionID), &info); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			// Published but not yet scanned.
			return &core.ScanResult{VersionID: versionID, Status: core.ScanPending}, nil
		}
		return nil, err
	}
	return &core.ScanResult{
		VersionID: versionID,
		Status:    core.ScanStatus(info.Status),
		Report:    info.Report,
	}, nil
}

func decodeVersion(info versionInfo) (core.Version, error) {
	id, err := uuid.Parse(info.ID)
	if err != nil {
		return core.Version{}, fmt.Errorf("version %s: bad id: %w", info.VersionRaw, err)
	}
	componentID, err := uuid.Parse(info.ComponentID)
	if err != nil {
		return core.Version{}, fmt.Errorf("version %s: bad component id: %w", info.VersionRaw, err)
	}

	v := core.Version{
		ID:             id,
		ComponentID:    componentID,
		Major:          info.VersionMajor,
		Minor:          info.VersionMinor,
		Patch:          info.VersionPatch,
		Prerelease:     info.Prerelease,
		Raw:            info.VersionRaw,
		ArtifactRef:    info.OCIReference,
		IntegrityHash:  digest.Digest(info.IntegrityHash),
		ApprovalStatus: core.ApprovalStatus(info.ApprovalStatus),
		Yanked:         info.IsYanked,
		YankedReason:   info.YankedReason,
	}

	for _, dep := range info.Dependencies {
		v.Dependencies = append(v.Dependencies, core.DependencyEdge{
			SourceVersionID: id,
			TargetPURL:      dep.PURL,
			Requirement:     dep.Req,
			Kind:            core.EdgeKind(dep.Kind),
		})
	}

	for _, c := range info.Capabilities {
		decl, err := decodeCapability(c)
		if err != nil {
			return core.Version{}, fmt.Errorf("version %s: %w", info.VersionRaw, err)
		}
		v.Capabilities = append(v.Capabilities, decl)
	}

	return v, nil
}

func decodeCapability(info capabilityInfo) (capability.Declaration, error) {
	switch capability.Token(info.Token) {
	case capability.TokenFSRead:
		return capability.FSRead{Paths: info.Scopes}, nil
	case capability.TokenFSWrite:
		return capability.FSWrite{Paths: info.Scopes}, nil
	case capability.TokenNetOutbound:
		return capability.NetOutbound{Hosts: info.Scopes}, nil
	case capability.TokenSysExec:
		return capability.SysExec{Binaries: info.Scopes}, nil
	case capability.TokenEnvRead:
		return capability.EnvRead{Vars: info.Scopes}, nil
	default:
		return nil, fmt.Errorf("unknown capability token %q", info.Token)
	}
}

func decodeSignature(info signatureInfo) (core.Signature, error) {
	id, err := uuid.Parse(info.ID)
	if err != nil {
		return core.Signature{}, fmt.Errorf("signature: bad id: %w", err)
	}
	versionID, err := uuid.Parse(info.VersionID)
	if err != nil {
		return core.Signature{}, fmt.Errorf("signature %s: bad version id: %w", info.ID, err)
	}

	sig := core.Signature{
		ID:        id,
		VersionID: versionID,
		Signer:    core.SignerType(info.SignerType),
	}
	if info.SignerID != "" {
		signerID, err := uuid.Parse(info.SignerID)
		if err != nil {
			return core.Signature{}, fmt.Errorf("signature %s: bad signer id: %w", info.ID, err)
		}
		sig.SignerID = &signerID
	}
	if info.Signature != "" {
		blob, err := base64.StdEncoding.DecodeString(info.Signature)
		if err != nil {
			return core.Signature{}, fmt.Errorf("signature %s: bad signature encoding: %w", info.ID, err)
		}
		sig.Blob = blob
	}
	if info.PublicKey != "" {
		key, err := base64.StdEncoding.DecodeString(info.PublicKey)
		if err != nil {
			return core.Signature{}, fmt.Errorf("signature %s: bad public key encoding: %w", info.ID, err)
		}
		sig.PublicKey = key
	}
	if info.Certificate != "" {
		sig.Certificate = []byte(info.Certificate)
	}
	return sig, nil
}
