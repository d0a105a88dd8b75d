// Package report renders the outcome of mirror runs.
//
// This package contains writers for different output formats:
//   - SimpleWriter: plain text for the terminal (default)
//   - JSONWriter: the run plus a summary, for tool integration
//   - MarkdownWriter: tables, an error pie chart and alerts for sharing
//
// Writers implement the Writer interface, allowing them to be used
// interchangeably and composed with MultiWriter.
package report
