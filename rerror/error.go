// Package rerror defines the result-code taxonomy shared by every redshow
// registry and the top-level engine. Operations never panic on a bad
// argument or a missing entry; they return an *Error whose Kind a caller can
// switch on, matching the result-code contract the analyzer exposes to its
// C-style callers.
package rerror

// Kind identifies the category of failure a redshow operation reports.
type Kind int

// The kinds named by the analyzer's result-code contract. There is no
// Success kind: success is reported as a nil error, the Go convention.
const (
	Unknown Kind = iota
	NoSuchFile
	FailedAnalyzeCubin
	NotExistEntry
	DuplicateEntry
	NoSuchApprox
	NotRegisterCallback
)

func (k Kind) String() string {
	switch k {
	case NoSuchFile:
		return "NoSuchFile"
	case FailedAnalyzeCubin:
		return "FailedAnalyzeCubin"
	case NotExistEntry:
		return "NotExistEntry"
	case DuplicateEntry:
		return "DuplicateEntry"
	case NoSuchApprox:
		return "NoSuchApprox"
	case NotRegisterCallback:
		return "NotRegisterCallback"
	default:
		return "Unknown"
	}
}

// Error is the concrete error type returned by redshow operations.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// New builds an *Error. err may be nil.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Op + ": " + e.Kind.String() + ": " + e.Err.Error()
	}

	return e.Op + ": " + e.Kind.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same Kind, so sentinel
// values can be compared with errors.Is regardless of Op/Err.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}

	return e.Kind == t.Kind
}
