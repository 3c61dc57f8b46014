// Package logging builds the zap logger and the field helpers that keep
// personal data out of diagnostics.
package logging

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kazu-apps/carenote-sync/internal/errs"
)

// New returns a production JSON logger, or a console logger when dev is set.
func New(level string, dev bool) (*zap.Logger, error) {
	lvl := zapcore.InfoLevel
	if level != "" {
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return nil, fmt.Errorf("log level %q: %w", level, err)
		}
	}
	cfg := zap.NewProductionConfig()
	if dev {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.DisableStacktrace = !dev
	return cfg.Build()
}

// Redacted renders a sensitive value as its length only.
func Redacted(key, val string) zap.Field {
	return zap.String(key, "[REDACTED:"+strconv.Itoa(len(val))+"]")
}

// ErrorFields reports an error by category and Go type, never by message.
func ErrorFields(err error) []zap.Field {
	if err == nil {
		return nil
	}
	typ := fmt.Sprintf("%T", err)
	var e *errs.Error
	if errors.As(err, &e) && e.CauseType != "" {
		typ = e.CauseType
	}
	return []zap.Field{
		zap.String("error_kind", errs.KindOf(err).String()),
		zap.String("error_type", typ),
	}
}

var piiPatterns = []*regexp.Regexp{
	regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`),
	regexp.MustCompile(`\b[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}\b`),
	regexp.MustCompile(`\b[A-Za-z0-9_\-.]{24,}\b`),
	regexp.MustCompile(`\+?\d[\d \-]{7,}\d`),
}

// Mask replaces e-mail addresses, identifiers, long tokens and phone-like
// digit runs in free text with a placeholder.
func Mask(text string) string {
	for _, re := range piiPatterns {
		text = re.ReplaceAllString(text, "[MASKED]")
	}
	return text
}
