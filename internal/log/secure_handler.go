package log

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

// MaskValue replaces every redacted value.
const MaskValue = "***REDACTED***"

// secretKeys are attribute keys (and header names) whose value is never
// logged. Site configs carry cookies and auth headers, and both reach the
// renderer, the downloader and the robots loader.
var secretKeys = map[string]bool{
	"authorization":       true,
	"proxy-authorization": true,
	"cookie":              true,
	"set-cookie":          true,
	"x-api-key":           true,
	"x-auth-token":        true,
	"x-csrf-token":        true,
	"api_key":             true,
	"apikey":              true,
	"session":             true,
	"session_id":          true,
	"sessionid":           true,
	"sid":                 true,
	"jsessionid":          true,
	"phpsessid":           true,
}

// secretKeyParts mark a key as secret when it contains any of them.
// A bare "key" is not listed: asset and mapping keys would all match.
var secretKeyParts = []string{
	"password", "passwd", "secret", "token", "auth", "credential", "private",
}

// secretValues match values that are credentials whatever their key.
var secretValues = []*regexp.Regexp{
	regexp.MustCompile(`^eyJ[A-Za-z0-9_-]*\.eyJ[A-Za-z0-9_-]*\.[A-Za-z0-9_-]*$`), // JWT
	regexp.MustCompile(`(?i)^bearer\s+.+`),
	regexp.MustCompile(`(?i)^basic\s+[A-Za-z0-9+/=]+$`),
	regexp.MustCompile(`^AKIA[0-9A-Z]{16}$`),
	regexp.MustCompile(`(?i)-----BEGIN.*(PRIVATE|SECRET).*KEY-----`),
	regexp.MustCompile(`^[a-zA-Z0-9]{32,}$`),
}

// secretQueryParams are masked in logged URLs. Signed CDN asset URLs and
// login redirects carry credentials in the query.
var secretQueryParams = map[string]bool{
	"token":            true,
	"access_token":     true,
	"key":              true,
	"api_key":          true,
	"apikey":           true,
	"sig":              true,
	"signature":        true,
	"x-amz-signature":  true,
	"x-amz-credential": true,
	"password":         true,
	"auth":             true,
}

// SecureHandler wraps an slog.Handler and redacts secrets from every
// attribute before the record reaches it.
//
// Design decision: A handler wrapper instead of a logger type, so every
// package keeps taking a plain *slog.Logger and the redaction works with
// both the text and the JSON output.
type SecureHandler struct {
	next slog.Handler
}

// NewSecureHandler wraps next. A nil next wraps slog.Default's handler.
func NewSecureHandler(next slog.Handler) *SecureHandler {
	if next == nil {
		next = slog.Default().Handler()
	}
	return &SecureHandler{next: next}
}

// Enabled implements slog.Handler.
func (h *SecureHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *SecureHandler) Handle(ctx context.Context, r slog.Record) error {
	clean := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		clean.AddAttrs(redact(a))
		return true
	})
	return h.next.Handle(ctx, clean)
}

// WithAttrs implements slog.Handler.
func (h *SecureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clean := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		clean[i] = redact(a)
	}
	return &SecureHandler{next: h.next.WithAttrs(clean)}
}

// WithGroup implements slog.Handler.
func (h *SecureHandler) WithGroup(name string) slog.Handler {
	return &SecureHandler{next: h.next.WithGroup(name)}
}

// redact returns a with every secret masked. Groups are walked
// recursively; header maps keep their keys and lose secret values.
func redact(a slog.Attr) slog.Attr {
	v := a.Value.Resolve()

	if v.Kind() == slog.KindGroup {
		group := v.Group()
		clean := make([]slog.Attr, len(group))
		for i, ga := range group {
			clean[i] = redact(ga)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(clean...)}
	}

	if IsSecretKey(a.Key) {
		return slog.String(a.Key, MaskValue)
	}

	switch v.Kind() {
	case slog.KindString:
		s := v.String()
		if IsSecretValue(s) {
			return slog.String(a.Key, MaskValue)
		}
		if scrubbed, changed := ScrubURL(s); changed {
			return slog.String(a.Key, scrubbed)
		}
	case slog.KindAny:
		switch x := v.Any().(type) {
		case *url.URL:
			if x != nil {
				scrubbed, _ := ScrubURL(x.String())
				return slog.String(a.Key, scrubbed)
			}
		case map[string]string:
			return slog.Any(a.Key, redactHeaders(x))
		case http.Header:
			flat := make(map[string]string, len(x))
			for name, values := range x {
				flat[name] = strings.Join(values, ", ")
			}
			return slog.Any(a.Key, redactHeaders(flat))
		}
	}

	return slog.Attr{Key: a.Key, Value: v}
}

// redactHeaders copies headers, masking the values of secret names.
func redactHeaders(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers))
	for name, value := range headers {
		if IsSecretKey(name) || IsSecretValue(value) {
			out[name] = MaskValue
			continue
		}
		out[name] = value
	}
	return out
}

// IsSecretKey reports whether values logged under key are masked.
func IsSecretKey(key string) bool {
	k := strings.ToLower(key)
	if secretKeys[k] {
		return true
	}
	for _, part := range secretKeyParts {
		if strings.Contains(k, part) {
			return true
		}
	}
	return false
}

// IsSecretValue reports whether value looks like a credential.
func IsSecretValue(value string) bool {
	for _, re := range secretValues {
		if re.MatchString(value) {
			return true
		}
	}
	return false
}

// ScrubURL masks the userinfo password and secret query parameters of an
// absolute http(s) URL and reports whether anything was masked. Other
// strings are returned unchanged.
func ScrubURL(raw string) (string, bool) {
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		return raw, false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw, false
	}

	changed := false
	if u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), MaskValue)
			changed = true
		}
	}

	if u.RawQuery != "" {
		q := u.Query()
		masked := false
		for name := range q {
			if secretQueryParams[strings.ToLower(name)] {
				q.Set(name, MaskValue)
				masked = true
			}
		}
		if masked {
			u.RawQuery = q.Encode()
			changed = true
		}
	}

	if !changed {
		return raw, false
	}
	// Keep the mask readable instead of percent-encoded.
	return strings.ReplaceAll(u.String(), url.QueryEscape(MaskValue), MaskValue), true
}

// NewSecureLogger returns a text logger that redacts secrets. verbose
// enables debug records.
func NewSecureLogger(w io.Writer, verbose bool) *slog.Logger {
	return slog.New(NewSecureHandler(slog.NewTextHandler(w, handlerOptions(verbose))))
}

// NewSecureJSONLogger is NewSecureLogger with one JSON object per record.
func NewSecureJSONLogger(w io.Writer, verbose bool) *slog.Logger {
	return slog.New(NewSecureHandler(slog.NewJSONHandler(w, handlerOptions(verbose))))
}

func handlerOptions(verbose bool) *slog.HandlerOptions {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return &slog.HandlerOptions{Level: level}
}
