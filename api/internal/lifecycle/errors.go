package lifecycle

import (
	"errors"
	"fmt"
	"strings"
)

type Kind string

const (
	KindNotFound               Kind = "not_found"
	KindInvalidTransition      Kind = "invalid_transition"
	KindAlreadyResolved        Kind = "already_resolved"
	KindPermitExpired          Kind = "permit_expired"
	KindConcurrentModification Kind = "concurrent_modification"
	KindValidation             Kind = "validation_error"
)

// Sentinels for errors.Is. Every *Error unwraps to the sentinel of its kind.
var (
	ErrNotFound               = errors.New("not found")
	ErrInvalidTransition      = errors.New("invalid transition")
	ErrAlreadyResolved        = errors.New("already resolved")
	ErrPermitExpired          = errors.New("permit expired")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrValidation             = errors.New("validation failed")
)

var kindSentinels = map[Kind]error{
	KindNotFound:               ErrNotFound,
	KindInvalidTransition:      ErrInvalidTransition,
	KindAlreadyResolved:        ErrAlreadyResolved,
	KindPermitExpired:          ErrPermitExpired,
	KindConcurrentModification: ErrConcurrentModification,
	KindValidation:             ErrValidation,
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type Error struct {
	Kind    Kind
	Entity  string
	ID      string
	Message string
	Fields  []FieldError
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Entity != "" {
		b.WriteString(": ")
		b.WriteString(e.Entity)
		if e.ID != "" {
			b.WriteString(" ")
			b.WriteString(e.ID)
		}
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	for i, f := range e.Fields {
		if i == 0 {
			b.WriteString(": ")
		} else {
			b.WriteString("; ")
		}
		b.WriteString(f.Field + " " + f.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if s, ok := kindSentinels[e.Kind]; ok {
		out = append(out, s)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// KindOf classifies err. Errors outside the taxonomy return "".
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	for kind, sentinel := range kindSentinels {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return ""
}

func NotFound(entity string, id string) error {
	return &Error{Kind: KindNotFound, Entity: entity, ID: id}
}

func InvalidTransition(entity string, id string, format string, args ...any) error {
	return &Error{Kind: KindInvalidTransition, Entity: entity, ID: id, Message: fmt.Sprintf(format, args...)}
}

func AlreadyResolved(id string) error {
	return &Error{Kind: KindAlreadyResolved, Entity: EntityAlert, ID: id, Message: "alert is resolved and can no longer change"}
}

func PermitExpired(id string) error {
	return &Error{Kind: KindPermitExpired, Entity: EntityPermit, ID: id, Message: "permit validity window has passed"}
}

func ConcurrentModification(entity string, id string, cause error) error {
	return &Error{Kind: KindConcurrentModification, Entity: entity, ID: id, Err: cause}
}

func Validation(entity string, fields ...FieldError) error {
	return &Error{Kind: KindValidation, Entity: entity, Fields: fields}
}

// FieldErrors returns the per-field problems of a validation error.
func FieldErrors(err error) []FieldError {
	var le *Error
	if errors.As(err, &le) && le.Kind == KindValidation {
		return le.Fields
	}
	return nil
}

type problems []FieldError

func (p *problems) add(field string, message string) {
	*p = append(*p, FieldError{Field: field, Message: message})
}

func (p *problems) required(field string, value string) {
	if strings.TrimSpace(value) == "" {
		p.add(field, "is required")
	}
}

func (p problems) err(entity string) error {
	if len(p) == 0 {
		return nil
	}
	return Validation(entity, p...)
}
