// ABOUTME: Shared test helpers for the rpc package
// ABOUTME: Provides a logger that discards output

package rpc

import (
	"io"
	"log/slog"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
