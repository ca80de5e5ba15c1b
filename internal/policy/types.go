package policy

import "github.com/goodtune/balance/internal/storage"

// State identifies why the gate decided the way it did.
type State string

const (
	StateAllowed            State = "ALLOWED"
	StateAllowedWithWarning State = "ALLOWED_WITH_WARNING"
	StateOverrideActive     State = "OVERRIDE_ACTIVE"
	StateOutsideWindow      State = "OUTSIDE_WINDOW"
	StateCapExceeded        State = "CAP_EXCEEDED"
	StateDisabled           State = "DISABLED"
	StateError              State = "ERROR"
)

// Decision is the outcome of one gate evaluation.
type Decision struct {
	Action   storage.Action
	State    State
	Schedule string

	// Message is shown to the user when blocking.
	Message string

	// Context is injected into the allowed request, carrying warnings and
	// override notices.
	Context string
}

// Allowed reports whether the decision lets the request through.
func (d Decision) Allowed() bool {
	return d.Action == storage.ActionAllow
}
