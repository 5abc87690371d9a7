package logger

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger creates a zap logger for the given environment.
// prod uses JSON output, local/dev/docker use colored console output.
// levelOverride (if non-empty) overrides the log level: debug, info, warn, error.
func NewLogger(env string, levelOverride ...string) (*zap.Logger, error) {
	var cfg zap.Config
	switch env {
	case "prod":
		cfg = zap.NewProductionConfig()
	case "local", "dev", "docker", "test":
		cfg = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("unknown environment %q for logger", env)
	}

	if len(levelOverride) > 0 && levelOverride[0] != "" {
		var level zapcore.Level
		if err := level.UnmarshalText([]byte(levelOverride[0])); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", levelOverride[0], err)
		}
		cfg.Level = zap.NewAtomicLevelAt(level)
	}

	l, err := cfg.Build(zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return l, nil
}

// CauseChain renders at most depth links of err's unwrap chain, outermost first.
// Secrets are masked with Redact before rendering.
func CauseChain(err error, depth int, secrets ...string) []string {
	var chain []string
	for err != nil && len(chain) < depth {
		chain = append(chain, Redact(err.Error(), secrets...))
		err = unwrapFirst(err)
	}
	return chain
}

// Redact replaces every occurrence of a secret with a length-preserving hint.
func Redact(s string, secrets ...string) string {
	for _, secret := range secrets {
		if len(secret) < 4 {
			continue
		}
		s = strings.ReplaceAll(s, secret, Mask(secret))
	}
	return s
}

// Mask renders a secret as its first four characters plus its length.
func Mask(secret string) string {
	if len(secret) <= 4 {
		return fmt.Sprintf("[redacted len=%d]", len(secret))
	}
	return fmt.Sprintf("%s…[redacted len=%d]", secret[:4], len(secret))
}

func unwrapFirst(err error) error {
	if u := errors.Unwrap(err); u != nil {
		return u
	}
	if multi, ok := err.(interface{ Unwrap() []error }); ok {
		errs := multi.Unwrap()
		// the last entry is the underlying cause by convention (class first, cause last)
		if len(errs) > 0 {
			return errs[len(errs)-1]
		}
	}
	return nil
}
