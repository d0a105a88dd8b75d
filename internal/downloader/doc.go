// Package downloader fetches the assets of a mirrored site and stores them
// below the output root.
//
// DownloadAll runs a supervisor loop over a results channel. The
// supervisor alone owns the set of scheduled URLs and the pending counter;
// each URL is fetched by its own goroutine, and a weighted semaphore bounds
// how many fetch at once. When a stylesheet arrives, the caller's CSS
// callback extracts the URLs it references and the supervisor schedules
// them in the same batch, so fonts and images imported from CSS are
// mirrored without a second pass.
//
// Every fetch ends in exactly one Outcome. Failed outcomes are kept in
// completion order and exposed through Outcomes for error reporting.
package downloader
