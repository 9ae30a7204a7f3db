package goble

import (
	"context"
	"errors"

	"github.com/cubeast-app/connect/internal/bleapi"
)

// normalizeError maps go-ble errors (context errors and raw driver strings)
// onto the bridge's error taxonomy. This is the adapter boundary the core
// relies on (bleapi.Adapter's doc comment) so the Bluetooth actor never
// inspects library-specific error text itself.
func normalizeError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return bleapi.New(bleapi.CategoryConnectivity, bleapi.CodeTimedOut, err)
	case errors.Is(err, context.Canceled):
		return bleapi.New(bleapi.CategoryConnectivity, bleapi.CodeTimedOut, err)
	default:
		return bleapi.NormalizeAdapterError(err)
	}
}
