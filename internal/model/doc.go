// Package model defines the data structures shared by every stage of a
// mirror run.
//
// This package contains the following main types:
//   - Session: the state of one run, passed by pointer to each phase
//   - PageRecord: a rendered page waiting to be rewritten
//   - ExtractedAssets: the categorized references of one page
//   - ErrorRecord: one entry of errors.json
//   - Sitemap and Result: what a run produces
//
// Design decision: We separate models into their own package to avoid circular
// dependencies. The crawler, downloader, pipeline and report packages all
// need these types, so centralizing them prevents import cycles.
package model
