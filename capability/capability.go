// Package capability models the sandbox capabilities a plugin version
// declares and validates those declarations against a caller's granted
// policy.
//
// Declarations form a closed set: one variant per capability token, each
// with its own scope shape. Validation is pure set algebra over paths,
// hosts, and names; it never touches the filesystem or network.
package capability

// Token identifies a capability kind.
type Token string

const (
	TokenFSRead      Token = "fs-read"
	TokenFSWrite     Token = "fs-write"
	TokenNetOutbound Token = "net-outbound"
	TokenSysExec     Token = "sys-exec"
	TokenEnvRead     Token = "env-read"
)

// Declaration is one capability a plugin version declares. The set of
// implementations is closed; callers switch over the concrete types and
// the compiler keeps containment checks exhaustive.
type Declaration interface {
	Token() Token

	// sealed prevents implementations outside this package.
	sealed()
}

// FSRead grants read access to paths under the listed prefixes.
type FSRead struct {
	Paths []string
}

// FSWrite grants write access to paths under the listed prefixes.
type FSWrite struct {
	Paths []string
}

// NetOutbound grants outbound network access to the listed hosts.
// A granted host also covers its subdomains.
type NetOutbound struct {
	Hosts []string
}

// SysExec grants execution of the listed binaries, matched by exact name.
type SysExec struct {
	Binaries []string
}

// EnvRead grants read access to the listed environment variables,
// matched by exact name.
type EnvRead struct {
	Vars []string
}

func (FSRead) Token() Token      { return TokenFSRead }
func (FSWrite) Token() Token     { return TokenFSWrite }
func (NetOutbound) Token() Token { return TokenNetOutbound }
func (SysExec) Token() Token     { return TokenSysExec }
func (EnvRead) Token() Token     { return TokenEnvRead }

func (FSRead) sealed()      {}
func (FSWrite) sealed()     {}
func (NetOutbound) sealed() {}
func (SysExec) sealed()     {}
func (EnvRead) sealed()     {}

// Policy is the caller-supplied grant ceiling. It has the same shape as
// a declaration set; a declaration is acceptable only if it is contained
// by some grant of the same token.
//
// Policies are plain values. Threading them through every call instead
// of keeping process-wide grant state lets one test process simulate
// any number of actors.
type Policy struct {
	Grants []Declaration
}

// Grants returns the grants for a given token.
func (p Policy) grantsFor(token Token) []Declaration {
	var out []Declaration
	for _, g := range p.Grants {
		if g.Token() == token {
			out = append(out, g)
		}
	}
	return out
}
