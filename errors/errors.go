package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseParse    Phase = "parse"    // API spec JSON parsing
	PhaseGenerate Phase = "generate" // source emission
	PhaseBind     Phase = "bind"     // spec-to-host-table binding
	PhaseDispatch Phase = "dispatch" // runtime guest calls
	PhaseHost     Phase = "host"     // host capability execution
	PhaseLoad     Phase = "load"     // guest module loading
)

// Kind categorizes the error
type Kind string

const (
	KindBadJSON          Kind = "bad_json"
	KindUnknownTag       Kind = "unknown_tag"
	KindInvalidArgLength Kind = "invalid_arg_length"
	KindFieldMissing     Kind = "field_missing"
	KindDuplicateBinding Kind = "duplicate_binding"
	KindOutOfBounds      Kind = "out_of_bounds"
	KindUnknownSymbol    Kind = "unknown_symbol"
	KindTypeMismatch     Kind = "type_mismatch"
	KindInvalidInput     Kind = "invalid_input"
	KindNotFound         Kind = "not_found"
	KindIO               Kind = "io"
	KindInstantiation    Kind = "instantiation"
)

// Error is the structured error type used throughout the library
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Detail string
	Path   []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the field path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// BadJSON creates a JSON parse failure error
func BadJSON(cause error) *Error {
	return &Error{
		Phase:  PhaseParse,
		Kind:   KindBadJSON,
		Detail: "failed to parse json",
		Cause:  cause,
	}
}

// UnknownTag creates an unrecognized type tag error
func UnknownTag(path []string, tag string) *Error {
	return &Error{
		Phase:  PhaseParse,
		Kind:   KindUnknownTag,
		Path:   path,
		Detail: fmt.Sprintf("unknown type tag %q (want one of i, I, f, F, S)", tag),
		Value:  tag,
	}
}

// InvalidArgLength creates an ambiguous or malformed length declaration error
func InvalidArgLength(path []string, detail string, args ...any) *Error {
	if len(args) > 0 {
		detail = fmt.Sprintf(detail, args...)
	}
	return &Error{
		Phase:  PhaseParse,
		Kind:   KindInvalidArgLength,
		Path:   path,
		Detail: detail,
	}
}

// FieldMissing creates a missing required field error
func FieldMissing(path []string, fieldName string) *Error {
	return &Error{
		Phase:  PhaseParse,
		Kind:   KindFieldMissing,
		Path:   path,
		Detail: fmt.Sprintf("required field %q not found", fieldName),
	}
}

// DuplicateBinding creates a duplicate declaration name error
func DuplicateBinding(name string) *Error {
	return &Error{
		Phase:  PhaseParse,
		Kind:   KindDuplicateBinding,
		Path:   []string{"bindings", name},
		Detail: "binding name declared more than once",
		Value:  name,
	}
}

// OutOfBounds creates a guest memory range violation error
func OutOfBounds(binding, arg string, offset, length uint64, memSize uint32) *Error {
	return &Error{
		Phase:  PhaseDispatch,
		Kind:   KindOutOfBounds,
		Path:   []string{binding, arg},
		Detail: fmt.Sprintf("range [%d, %d) exceeds guest memory of %d bytes", offset, offset+length, memSize),
		Value:  offset,
	}
}

// UnknownSymbol creates an unresolved host symbol error
func UnknownSymbol(phase Phase, binding, symbol string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnknownSymbol,
		Path:   []string{binding},
		Detail: fmt.Sprintf("host symbol %q is not registered", symbol),
		Value:  symbol,
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// IO wraps a filesystem error
func IO(phase Phase, detail string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindIO,
		Detail: detail,
		Cause:  cause,
	}
}

// Instantiation creates an instantiation error
func Instantiation(cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInstantiation,
		Detail: "instantiate module",
		Cause:  cause,
	}
}

// Wrap wraps an existing error with phase and kind context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}
