package verify

import "errors"

var (
	// ErrIncorrectCode never says which comparison failed.
	ErrIncorrectCode = errors.New("incorrect code")
	// ErrUnauthorized is returned for a wrong supervisor passphrase.
	ErrUnauthorized = errors.New("unauthorized")
)

// Gate decides whether a submitted code may act on a session or on supervisor-only operations.
// The supervisor code is fixed for the life of the process.
type Gate struct {
	supervisorCode string
}

// NewGate creates a gate for the given supervisor passphrase.
func NewGate(supervisorCode string) *Gate {
	return &Gate{supervisorCode: supervisorCode}
}

// Check accepts submitted if it equals the session's stored code or the supervisor code.
// Both comparisons always run.
func (g *Gate) Check(stored, submitted string) error {
	sessionOK := stored != "" && Equal(stored, submitted)
	supervisorOK := g.supervisorCode != "" && Equal(g.supervisorCode, submitted)
	if sessionOK || supervisorOK {
		return nil
	}
	return ErrIncorrectCode
}

// Supervisor accepts submitted only if it equals the supervisor code.
func (g *Gate) Supervisor(submitted string) error {
	if g.supervisorCode != "" && Equal(g.supervisorCode, submitted) {
		return nil
	}
	return ErrUnauthorized
}
