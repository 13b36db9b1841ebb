package capability

import "fmt"

// UngrantedError reports a declaration the caller's policy does not
// cover. It is recoverable: the caller can prompt for the grant and
// validate again.
type UngrantedError struct {
	Token Token
	Scope string
}

func (e *UngrantedError) Error() string {
	if e.Scope == "" {
		return fmt.Sprintf("capability %s not granted", e.Token)
	}
	return fmt.Sprintf("capability %s %q not granted", e.Token, e.Scope)
}

// PolicyViolationError reports a declaration whose scope is dangerous in
// itself, such as a filesystem-root read or an unscoped execute. It is
// not recoverable by granting; the artifact's manifest has to change.
type PolicyViolationError struct {
	Token  Token
	Scope  string
	Reason string
}

func (e *PolicyViolationError) Error() string {
	return fmt.Sprintf("capability %s %q rejected: %s", e.Token, e.Scope, e.Reason)
}
