// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tessera Contributors

package errutil

import (
	"context"
	"log/slog"

	"github.com/samber/oops"
)

// LogError logs an error with structured context if it's an oops error.
// For oops errors, it logs the message, code and context.
// For standard errors, it logs the error string.
func LogError(logger *slog.Logger, msg string, err error, attrs ...any) {
	logWith(context.Background(), logger, slog.LevelError, msg, err, attrs)
}

// LogWarn is LogError at warning level, used for contained plugin failures
// that must stay visible without paging anyone.
func LogWarn(ctx context.Context, logger *slog.Logger, msg string, err error, attrs ...any) {
	logWith(ctx, logger, slog.LevelWarn, msg, err, attrs)
}

func logWith(ctx context.Context, logger *slog.Logger, level slog.Level, msg string, err error, extra []any) {
	if logger == nil {
		logger = slog.Default()
	}
	attrs := make([]any, 0, len(extra)+6)
	attrs = append(attrs, extra...)
	if oopsErr, ok := oops.AsOops(err); ok {
		attrs = append(attrs, "error", oopsErr.Error())
		if code := CodeOf(err); code != "" {
			attrs = append(attrs, "code", code)
		}
		if octx := oopsErr.Context(); len(octx) > 0 {
			attrs = append(attrs, "context", octx)
		}
	} else {
		attrs = append(attrs, "error", err)
	}
	logger.Log(ctx, level, msg, attrs...)
}
