package bleapi

import (
	"errors"
	"fmt"
	"strings"
)

// Category is the outer grouping of the error taxonomy (§7).
type Category string

const (
	CategorySystem       Category = "system"
	CategoryConnectivity Category = "connectivity"
	CategoryDevice       Category = "device"
	CategoryInternal     Category = "internal"
)

// Code is the specific error code within a Category (§7).
type Code string

const (
	CodePermissionDenied Code = "permission_denied"
	CodeNoAdapter        Code = "no_adapter"
	CodeNotSupported     Code = "not_supported"
	CodeRuntimeError     Code = "runtime_error"

	CodeDeviceNotFound Code = "device_not_found"
	CodeTimedOut       Code = "timed_out"
	CodeNotConnected   Code = "not_connected"

	CodeCharacteristicNotFound  Code = "characteristic_not_found"
	CodeUnexpectedCharacteristic Code = "unexpected_characteristic"

	CodeUnexpectedCallback Code = "unexpected_callback"
	CodeInvalidUUID        Code = "invalid_uuid"
	CodeInvalidAddress     Code = "invalid_address"
	CodeInvalidState       Code = "invalid_state"
	CodeUnknown            Code = "unknown"
)

// Error is the bridge's normalized error shape: a (category, code) pair
// that the session actor serializes verbatim onto the wire as a
// `response: error` (§6.1, §7), plus an optional wrapped cause kept for
// logs only.
type Error struct {
	Category Category
	Code     Code
	Cause    error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s/%s: %v", e.Category, e.Code, e.Cause)
	}
	return fmt.Sprintf("%s/%s", e.Category, e.Code)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is allows errors.Is to compare *Error values by (category, code), the
// way the teacher's ConnectionError compares by State.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Category == t.Category && e.Code == t.Code
}

// New builds a taxonomy error, optionally wrapping a cause.
func New(cat Category, code Code, cause error) *Error {
	return &Error{Category: cat, Code: code, Cause: cause}
}

// Sentinels for errors.Is comparisons against a bare code, mirroring the
// teacher's ErrNotConnected/ErrAlreadyConnected/ErrNotInitialized trio.
var (
	ErrNoAdapter               = New(CategorySystem, CodeNoAdapter, nil)
	ErrRuntime                 = New(CategorySystem, CodeRuntimeError, nil)
	ErrNotSupported            = New(CategorySystem, CodeNotSupported, nil)
	ErrPermissionDenied        = New(CategorySystem, CodePermissionDenied, nil)
	ErrDeviceNotFound          = New(CategoryConnectivity, CodeDeviceNotFound, nil)
	ErrTimedOut                = New(CategoryConnectivity, CodeTimedOut, nil)
	ErrNotConnected            = New(CategoryConnectivity, CodeNotConnected, nil)
	ErrCharacteristicNotFound  = New(CategoryDevice, CodeCharacteristicNotFound, nil)
	ErrUnexpectedCharacteristic = New(CategoryDevice, CodeUnexpectedCharacteristic, nil)
	ErrInvalidState            = New(CategoryInternal, CodeInvalidState, nil)
	ErrUnknown                 = New(CategoryInternal, CodeUnknown, nil)
)

// Is reports whether err is a *Error with the given code, regardless of
// cause, the way the teacher's IsConnectionState checks State.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// containsIgnoreCase mirrors the teacher's device.containsIgnoreCase,
// used by adapter-level error normalization.
func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// NormalizeAdapterError maps a raw adapter error (whatever a concrete
// Adapter implementation's underlying library throws) onto the taxonomy.
// Adapters are expected to call this at their boundary, exactly as the
// teacher's device.NormalizeError does for go-ble error strings — this
// keeps the Bluetooth actor free of any library-specific error sniffing.
func NormalizeAdapterError(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}

	msg := err.Error()
	switch {
	case containsIgnoreCase(msg, "not connected"), containsIgnoreCase(msg, "disconnected"):
		return New(CategoryConnectivity, CodeNotConnected, err)
	case containsIgnoreCase(msg, "not found"):
		return New(CategoryConnectivity, CodeDeviceNotFound, err)
	case containsIgnoreCase(msg, "timeout"), containsIgnoreCase(msg, "deadline exceeded"):
		return New(CategoryConnectivity, CodeTimedOut, err)
	case containsIgnoreCase(msg, "no adapter"), containsIgnoreCase(msg, "bluetooth is turned off"):
		return New(CategorySystem, CodeNoAdapter, err)
	case containsIgnoreCase(msg, "permission denied"):
		return New(CategorySystem, CodePermissionDenied, err)
	default:
		return New(CategorySystem, CodeRuntimeError, err)
	}
}
