package bleapi

import (
	"errors"
	"testing"
)

type rawError struct{ msg string }

func (e rawError) Error() string { return e.msg }

func TestErrorIsMatchesByCategoryAndCode(t *testing.T) {
	wrapped := New(CategoryConnectivity, CodeDeviceNotFound, errors.New("boom"))
	if !errors.Is(wrapped, ErrDeviceNotFound) {
		t.Error("expected wrapped error to match the bare sentinel by (category, code)")
	}
	if errors.Is(wrapped, ErrNotConnected) {
		t.Error("expected a different code to not match")
	}
}

func TestIsHelperChecksCodeOnly(t *testing.T) {
	err := New(CategoryDevice, CodeCharacteristicNotFound, nil)
	if !Is(err, CodeCharacteristicNotFound) {
		t.Error("expected Is to match on code")
	}
	if Is(err, CodeDeviceNotFound) {
		t.Error("expected Is to reject a mismatched code")
	}
	if Is(errors.New("plain"), CodeUnknown) {
		t.Error("expected Is to return false for a non-taxonomy error")
	}
}

func TestNormalizeAdapterErrorPassesThroughExistingTaxonomyErrors(t *testing.T) {
	original := New(CategoryDevice, CodeCharacteristicNotFound, nil)
	got := NormalizeAdapterError(original)
	if got != error(original) {
		t.Error("expected an existing *Error to pass through unchanged")
	}
}

func TestNormalizeAdapterErrorClassifiesRawMessages(t *testing.T) {
	cases := map[string]struct {
		category Category
		code     Code
	}{
		"connection not connected":     {CategoryConnectivity, CodeNotConnected},
		"peripheral not found: dev-1":  {CategoryConnectivity, CodeDeviceNotFound},
		"operation timeout":            {CategoryConnectivity, CodeTimedOut},
		"bluetooth is turned off":      {CategorySystem, CodeNoAdapter},
		"permission denied by os":      {CategorySystem, CodePermissionDenied},
		"something entirely different": {CategorySystem, CodeRuntimeError},
	}
	for msg, want := range cases {
		got := NormalizeAdapterError(rawError{msg})
		var e *Error
		if !errors.As(got, &e) {
			t.Fatalf("NormalizeAdapterError(%q) did not produce a taxonomy error", msg)
		}
		if e.Category != want.category || e.Code != want.code {
			t.Errorf("NormalizeAdapterError(%q) = %s/%s, want %s/%s", msg, e.Category, e.Code, want.category, want.code)
		}
	}
}

func TestNormalizeAdapterErrorNilStaysNil(t *testing.T) {
	if NormalizeAdapterError(nil) != nil {
		t.Error("expected nil to stay nil")
	}
}
