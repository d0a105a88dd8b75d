package analyzer

import "context"

// ScreenshotResult points at the stored screenshot.
type ScreenshotResult struct {
	Path  string `json:"path"`
	Bytes int    `json:"bytes"`
}

// Screenshot stores the page image captured by the renderer.
type Screenshot struct {
	store *Store
}

// NewScreenshot creates a screenshot analyzer writing through store.
func NewScreenshot(store *Store) *Screenshot {
	return &Screenshot{store: store}
}

// Name implements Analyzer.
func (s *Screenshot) Name() string {
	return "screenshot"
}

// Analyze implements Analyzer.
func (s *Screenshot) Analyze(_ context.Context, in Input) (any, error) {
	if len(in.Screenshot) == 0 {
		return nil, ErrNoScreenshot
	}
	path, err := s.store.SaveScreenshot(in.URL, in.Screenshot)
	if err != nil {
		return nil, err
	}
	return &ScreenshotResult{Path: path, Bytes: len(in.Screenshot)}, nil
}
