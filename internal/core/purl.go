package core

import (
	packageurl "github.com/package-url/packageurl-go"
)

// PURL wraps packageurl.PackageURL with registry-specific helpers.
type PURL struct {
	packageurl.PackageURL
}

// FullName returns the component name including its namespace, if any.
func (p PURL) FullName() string {
	if p.Namespace == "" {
		return p.Name
	}
	return p.Namespace + "/" + p.Name
}

// ParsePURL parses a Package URL string into its components. Supports
// both component PURLs (pkg:envforge/http-client) and version PURLs
// (pkg:envforge/http-client@1.2.0).
func ParsePURL(purl string) (*PURL, error) {
	p, err := packageurl.FromString(purl)
	if err != nil {
		return nil, err
	}
	return &PURL{p}, nil
}
