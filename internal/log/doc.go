// Package log provides secure logging functionality with automatic sanitization
// of sensitive information, built on top of the standard slog package.
//
// Mirroring a site that needs a login means cookies and auth headers travel
// through every component, and asset URLs are often signed. The
// SecureHandler keeps them out of the logs:
//   - HTTP headers (Authorization, Cookie, Set-Cookie, X-Api-Key)
//   - Secret values detected by pattern matching (bearer, basic, JWT, API keys)
//   - Passwords in URL userinfo and credential-like query parameters
//     (token, key, sig, signature, password, auth)
//
// Even in verbose mode, sensitive values are masked to prevent accidental
// exposure of secrets in logs that may be shared or stored.
//
// # Usage
//
//	logger := log.NewSecureLogger(os.Stderr, verbose)
//	logger.Info("asset fetched",
//	    "cookie", "session=abc123", // logged as ***REDACTED***
//	    "url", "https://cdn.example.com/a.png?sig=xyz", // sig value masked
//	)
//	slog.SetDefault(logger)
package log
