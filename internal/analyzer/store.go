package analyzer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Dir is the directory below the output root that holds analysis output.
const Dir = "analysis"

// maxFilenameLength caps names produced by SafeFilename.
const maxFilenameLength = 80

var (
	schemePrefix   = regexp.MustCompile(`^https?://`)
	unsafeFilename = regexp.MustCompile(`[<>:"/\\|?*]`)
)

// SafeFilename turns a page URL into a file name stem: the scheme and a
// leading "www." are dropped, path separators and other characters that
// are invalid on common file systems become "_", and the result is capped
// at 80 bytes.
func SafeFilename(pageURL string) string {
	name := schemePrefix.ReplaceAllString(pageURL, "")
	name = strings.TrimPrefix(name, "www.")
	name = unsafeFilename.ReplaceAllString(name, "_")
	if len(name) > maxFilenameLength {
		name = name[:maxFilenameLength]
	}
	return name
}

// Store writes analysis output below <root>/analysis.
type Store struct {
	dir string
}

// NewStore creates a Store for the mirror rooted at outputRoot.
func NewStore(outputRoot string) *Store {
	return &Store{dir: filepath.Join(outputRoot, Dir)}
}

// Dir returns the directory the store writes to.
func (s *Store) Dir() string {
	return s.dir
}

// SaveAnalysis writes results as indented JSON and returns the file path.
func (s *Store) SaveAnalysis(pageURL string, results map[string]any) (string, error) {
	doc := struct {
		URL     string         `json:"url"`
		Results map[string]any `json:"results"`
	}{URL: pageURL, Results: results}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode analysis of %s: %w", pageURL, err)
	}
	return s.write(SafeFilename(pageURL)+"_analysis.json", data)
}

// SummaryFile is the name of the crawl-wide summary inside Dir.
const SummaryFile = "summary.json"

// SaveSummary writes the crawl-wide summary and returns the file path.
func (s *Store) SaveSummary(sum Summary) (string, error) {
	data, err := json.MarshalIndent(sum, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode analysis summary: %w", err)
	}
	return s.write(SummaryFile, data)
}

// SaveScreenshot writes a PNG and returns the file path.
func (s *Store) SaveScreenshot(pageURL string, png []byte) (string, error) {
	return s.write(SafeFilename(pageURL)+"_screenshot.png", png)
}

func (s *Store) write(name string, data []byte) (string, error) {
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return "", fmt.Errorf("create analysis directory: %w", err)
	}
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}
