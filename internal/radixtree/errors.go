package radixtree

import "fmt"

// Kind discriminates the error conditions the CORE can raise. It mirrors
// the teacher's pkg/api.APIError{StatusCode} shape: one concrete error
// type with a small discriminant field, rather than a sentinel per case.
type Kind int

const (
	// BadAddress means the resolver could not parse the address string,
	// or the mask length is out of range for the address's family.
	BadAddress Kind = iota
	// InvalidFamily means a v6 network was presented to a v4 tree.
	InvalidFamily
	// InvalidArgument means a constructor argument (record size, ip
	// version) was out of range.
	InvalidArgument
	// StructuralError means a read-only operation hit an invariant
	// violation (e.g. lookup_host landing on a NODE record). Indicates a
	// bug in the tree, not bad input.
	StructuralError
)

func (k Kind) String() string {
	switch k {
	case BadAddress:
		return "bad_address"
	case InvalidFamily:
		return "invalid_family"
	case InvalidArgument:
		return "invalid_argument"
	case StructuralError:
		return "structural_error"
	default:
		return "unknown"
	}
}

// Error is the CORE's single error type. Kind lets callers branch with a
// type assertion the same way the teacher's code checks
// APIError.StatusCode, instead of a forest of sentinel values.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("radixtree: %s: %s", e.Kind, e.Msg)
}

// Is lets errors.Is(err, &radixtree.Error{Kind: radixtree.BadAddress})
// style checks work: any *Error target with the same Kind matches.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// IsKind reports whether err is a *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	e, ok := err.(*Error)
	return ok && e.Kind == kind
}
