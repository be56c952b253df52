package handler

import (
	"context"

	"github.com/pushgate/pushgate/internal/api/middleware"
)

// GetCaller retrieves the authenticated caller name from the context.
// This is a convenience wrapper around middleware.GetCaller.
func GetCaller(ctx context.Context) string {
	return middleware.GetCaller(ctx)
}
