package logger

import (
	"strings"

	"go.uber.org/zap/zapcore"
)

const redacted = "[REDACTED]"

// Field keys whose string values are customer email addresses
var emailKeys = map[string]struct{}{
	"to":             {},
	"email":          {},
	"customer_email": {},
	"agent_email":    {},
}

// Stripe credential prefixes. Publishable keys are public and left alone.
var secretPrefixes = []string{"sk_live_", "sk_test_", "rk_live_", "rk_test_", "whsec_"}

// Redact wraps core so string fields are masked before they are encoded.
// Email fields keep the first character and the domain; any value carrying
// a Stripe secret prefix is replaced entirely.
func Redact(core zapcore.Core) zapcore.Core {
	if _, ok := core.(*redactCore); ok {
		return core
	}
	return &redactCore{Core: core}
}

type redactCore struct {
	zapcore.Core
}

func (c *redactCore) With(fields []zapcore.Field) zapcore.Core {
	return &redactCore{Core: c.Core.With(redactFields(fields))}
}

func (c *redactCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *redactCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	return c.Core.Write(ent, redactFields(fields))
}

func redactFields(fields []zapcore.Field) []zapcore.Field {
	var out []zapcore.Field
	for i, f := range fields {
		if f.Type != zapcore.StringType {
			continue
		}
		masked, changed := redactValue(f.Key, f.String)
		if !changed {
			continue
		}
		if out == nil {
			out = make([]zapcore.Field, len(fields))
			copy(out, fields)
		}
		out[i].String = masked
	}
	if out == nil {
		return fields
	}
	return out
}

func redactValue(key, value string) (string, bool) {
	for _, prefix := range secretPrefixes {
		if strings.Contains(value, prefix) {
			return redacted, true
		}
	}
	if _, ok := emailKeys[key]; ok {
		if masked := MaskEmail(value); masked != value {
			return masked, true
		}
	}
	return value, false
}

// MaskEmail keeps the first character of the local part and the domain,
// e.g. "jane@example.com" becomes "j***@example.com". Values without an
// "@" are returned unchanged.
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 1 {
		return email
	}
	return email[:1] + "***" + email[at:]
}
