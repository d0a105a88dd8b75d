// Package urlpath provides the URL canonicalization and local path
// derivation used by every stage of a mirror run.
//
// All other packages agree on URL identity only through Normalize: the
// visited set, the asset set and the URL-to-local-path mapping are all keyed
// by its output. Local paths are derived deterministically from the
// canonical URL so the same URL always lands on the same file.
package urlpath
