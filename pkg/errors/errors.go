package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies a failure so callers can pick the user facing message
type Kind string

const (
	KindNetwork           Kind = "NETWORK_ERROR"
	KindMalformedResponse Kind = "MALFORMED_RESPONSE"
	KindPastDeparture     Kind = "PAST_DEPARTURE"
	KindPermissionDenied  Kind = "PERMISSION_DENIED"
	KindPersistence       Kind = "PERSISTENCE_ERROR"
	KindNotFound          Kind = "NOT_FOUND"
	KindInvalidRequest    Kind = "INVALID_REQUEST"
	KindTimer             Kind = "TIMER_ERROR"
	KindUnknown           Kind = "UNKNOWN"
)

type Error struct {
	Kind        Kind
	Op          string
	Message     string
	Remediation string

	Err error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		msg = fmt.Sprintf("%s: %s", e.Op, msg)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}

	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same Kind, so the sentinels below work with errors.Is
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}

	return t.Kind == e.Kind
}

var (
	Network           = &Error{Kind: KindNetwork, Message: "Transit service unreachable"}
	MalformedResponse = &Error{Kind: KindMalformedResponse, Message: "Transit service returned an unexpected response"}
	PastDeparture     = &Error{Kind: KindPastDeparture, Message: "Alarm time is already in the past"}
	PermissionDenied  = &Error{Kind: KindPermissionDenied, Message: "Exact alarms are not permitted"}
	Persistence       = &Error{Kind: KindPersistence, Message: "Could not access alarm storage"}
	NotFound          = &Error{Kind: KindNotFound, Message: "Not found"}
	InvalidRequest    = &Error{Kind: KindInvalidRequest, Message: "Invalid request"}
	Timer             = &Error{Kind: KindTimer, Message: "Could not register alarm timer"}
)

func New(kind Kind, op string, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func Newf(kind Kind, op string, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the Kind of the first *Error in the chain
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}

	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}

	return KindUnknown
}

// RemediationOf returns the first remediation hint found in the chain
func RemediationOf(err error) string {
	for err != nil {
		var e *Error
		if !stderrors.As(err, &e) {
			return ""
		}
		if e.Remediation != "" {
			return e.Remediation
		}
		err = e.Err
	}

	return ""
}

// Is and As re-export the standard library so callers only import this package
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

func As(err error, target any) bool {
	return stderrors.As(err, target)
}
