package model

// ErrorType classifies a recorded per-item failure.
type ErrorType string

const (
	// ErrorTypeRender means the renderer could not load the page.
	ErrorTypeRender ErrorType = "render_error"

	// ErrorTypeCrawl means processing a rendered page failed unexpectedly.
	ErrorTypeCrawl ErrorType = "crawl_error"

	// ErrorTypeDownload means an asset could not be fetched or stored.
	ErrorTypeDownload ErrorType = "download_error"

	// ErrorTypeSave means a rewritten page could not be written.
	ErrorTypeSave ErrorType = "save_error"

	// ErrorTypeUIExtraction means a page analyzer failed.
	ErrorTypeUIExtraction ErrorType = "ui_extraction_error"
)

// ErrorRecord is one entry of errors.json.
type ErrorRecord struct {
	URL   string    `json:"url"`
	Error string    `json:"error"`
	Type  ErrorType `json:"type"`
}
