package mcp

import (
	"context"
	"errors"
	"net"

	"github.com/obaidsafi51/Multi-Agent-BI-System-sub002/internal/errs"
)

// mapError converts an MCP transport error into the unified *errs.Error.
func mapError(tool string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, "tool "+tool+" timed out", err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return errs.Wrap(errs.ErrKindTimeout, "tool "+tool+" timed out", err)
		}
		return errs.Wrap(errs.ErrKindConnectionFailed, "mcp server unreachable", err)
	}

	return errs.Wrap(errs.ErrKindQueryFailed, "tool "+tool+" call failed", err)
}
