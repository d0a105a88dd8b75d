package report

import (
	"slices"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/nao1215/sitemirror/internal/model"
)

// Summary is the condensed view of a run shared by every writer.
type Summary struct {
	Site         string                  `json:"site"`
	Status       string                  `json:"status"`
	Pages        int                     `json:"pages"`
	Assets       int                     `json:"assets"`
	Errors       int                     `json:"errors"`
	ErrorsByType map[model.ErrorType]int `json:"errors_by_type,omitempty"`
	Duration     string                  `json:"duration"`
}

// NewSummary condenses a Result.
func NewSummary(res *model.Result) *Summary {
	s := &Summary{
		Site:     res.BaseURL,
		Status:   statusText(res),
		Pages:    res.PageCount(),
		Assets:   res.AssetCount(),
		Errors:   res.ErrorCount(),
		Duration: res.Duration.Round(time.Millisecond).String(),
	}
	if s.Errors > 0 {
		s.ErrorsByType = res.ErrorsByType()
	}
	return s
}

// statusText describes how a run ended.
func statusText(res *model.Result) string {
	switch {
	case res.Phase == model.PhaseFailed:
		return "failed"
	case res.Stopped:
		return "stopped (partial mirror)"
	case res.Phase == model.PhaseDone:
		return "complete"
	default:
		return res.Phase.String()
	}
}

// errorTypes lists the error types in a stable display order.
func errorTypes(counts map[model.ErrorType]int) []model.ErrorType {
	types := make([]model.ErrorType, 0, len(counts))
	for t := range counts {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

// errorTypeLabel turns "download_error" into "Download Error".
func errorTypeLabel(t model.ErrorType) string {
	return cases.Title(language.English).String(strings.ReplaceAll(string(t), "_", " "))
}

// truncateString truncates a string to maxLen characters with ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
