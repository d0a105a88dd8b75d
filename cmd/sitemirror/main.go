// Package main provides the entry point for the sitemirror CLI.
//
// sitemirror mirrors websites for offline viewing: it crawls internal
// links, renders each page, downloads every referenced asset and rewrites
// all references so the copy works from disk.
//
// Usage:
//
//	sitemirror mirror https://example.com
//	sitemirror serve --addr :5000
//
// See --help for all available options.
package main

func main() {
	Execute()
}
