package tims

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a fiscalization failure. The kind decides whether the
// queue retries the attempt or fails it permanently.
type ErrorKind int

const (
	// KindConfiguration covers missing device settings (no IP/port/PIN,
	// device disabled). Never retried: the same configuration would fail again.
	KindConfiguration ErrorKind = iota
	// KindValidation covers malformed invoice data (empty items, bad customer
	// PIN, non-positive quantity). Never retried: deterministic.
	KindValidation
	// KindTransport covers network-level failures (refused, timeout,
	// undecodable response). Always retryable within budget.
	KindTransport
	// KindDeviceRejection covers structured non-200 answers from the control
	// unit. Retryable within budget by default.
	KindDeviceRejection
)

func (k ErrorKind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindValidation:
		return "validation"
	case KindTransport:
		return "transport"
	case KindDeviceRejection:
		return "device_rejection"
	}
	return "unknown"
}

// FiscalError is a classified fiscalization failure.
type FiscalError struct {
	Kind ErrorKind
	Msg  string
	Err  error // wrapped cause, may be nil
}

func (e *FiscalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *FiscalError) Unwrap() error { return e.Err }

// ConfigurationErr builds a KindConfiguration error.
func ConfigurationErr(format string, args ...any) error {
	return &FiscalError{Kind: KindConfiguration, Msg: fmt.Sprintf(format, args...)}
}

// ValidationErr builds a KindValidation error.
func ValidationErr(format string, args ...any) error {
	return &FiscalError{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

// TransportErr builds a KindTransport error wrapping the cause.
func TransportErr(cause error, format string, args ...any) error {
	return &FiscalError{Kind: KindTransport, Msg: fmt.Sprintf(format, args...), Err: cause}
}

// DeviceErr builds a KindDeviceRejection error.
func DeviceErr(format string, args ...any) error {
	return &FiscalError{Kind: KindDeviceRejection, Msg: fmt.Sprintf(format, args...)}
}

// KindOf extracts the kind from err; unclassified errors count as transport
// so the queue keeps retrying them rather than losing the invoice.
func KindOf(err error) ErrorKind {
	var fe *FiscalError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindTransport
}

// Retryable reports whether the queue may retry after err.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindTransport, KindDeviceRejection:
		return true
	}
	return false
}
