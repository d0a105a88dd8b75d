package analyzer

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// IssueLevel is the severity of an accessibility issue.
type IssueLevel string

// Issue levels.
const (
	LevelError   IssueLevel = "error"
	LevelWarning IssueLevel = "warning"
	LevelInfo    IssueLevel = "info"
)

// Penalties subtracted from 100 per issue of each level.
const (
	errorPenalty   = 5
	warningPenalty = 2
	infoPenalty    = 1
)

// AccessibilityIssue is one failed check.
type AccessibilityIssue struct {
	RuleID         string     `json:"rule_id"`
	Description    string     `json:"description"`
	Level          IssueLevel `json:"level"`
	WCAGCriteria   string     `json:"wcag_criteria"`
	WCAGLevel      string     `json:"wcag_level"`
	Selector       string     `json:"selector,omitempty"`
	Recommendation string     `json:"recommendation,omitempty"`
}

// AccessibilityResult is the output of the accessibility analyzer.
type AccessibilityResult struct {
	Issues       []AccessibilityIssue `json:"issues"`
	Errors       int                  `json:"errors_count"`
	Warnings     int                  `json:"warnings_count"`
	PassedChecks []string             `json:"passed_checks"`
	Score        float64              `json:"score"`

	// WCAGLevel is the highest level the page may meet, judged from the
	// errors found. Only markup is checked, so AA is tentative.
	WCAGLevel string `json:"wcag_level"`
}

func (r *AccessibilityResult) score() float64 { return r.Score }

func (r *AccessibilityResult) add(rule, desc string, level IssueLevel, criteria, wcag, selector, fix string) {
	r.Issues = append(r.Issues, AccessibilityIssue{
		RuleID:         rule,
		Description:    desc,
		Level:          level,
		WCAGCriteria:   criteria,
		WCAGLevel:      wcag,
		Selector:       selector,
		Recommendation: fix,
	})
}

// Accessibility checks rendered markup for common WCAG failures: missing
// alt text and labels, broken heading order, missing landmarks, invalid
// ARIA roles and the like. Contrast and focus checks are heuristics since
// computed styles are not available.
type Accessibility struct{}

// NewAccessibility creates an accessibility analyzer.
func NewAccessibility() *Accessibility {
	return &Accessibility{}
}

// Name implements Analyzer.
func (a *Accessibility) Name() string {
	return "accessibility"
}

// Analyze implements Analyzer.
func (a *Accessibility) Analyze(_ context.Context, in Input) (any, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(in.HTML))
	if err != nil {
		return nil, fmt.Errorf("parse HTML: %w", err)
	}

	r := &AccessibilityResult{Issues: []AccessibilityIssue{}, PassedChecks: []string{}}
	checkImages(doc, r)
	checkLinks(doc, r)
	checkFormLabels(doc, r)
	checkHeadings(doc, r)
	checkLanguage(doc, r)
	checkLandmarks(doc, r)
	checkTables(doc, r)
	checkStyling(doc, r)
	checkARIA(doc, r)
	checkSkipLink(doc, r)
	checkDocument(doc, r)

	for _, issue := range r.Issues {
		switch issue.Level {
		case LevelError:
			r.Errors++
		case LevelWarning:
			r.Warnings++
		}
	}
	r.Score = accessibilityScore(r)
	r.WCAGLevel = wcagLevel(r)
	return r, nil
}

func checkImages(doc *goquery.Document, r *AccessibilityResult) {
	imgs := doc.Find("img")
	missing := 0
	imgs.Each(func(_ int, img *goquery.Selection) {
		// An empty alt marks a decorative image and is fine.
		if _, ok := img.Attr("alt"); !ok {
			missing++
			r.add("img-alt-missing", "Image is missing alt attribute", LevelError, "1.1.1", "A",
				selectorOf(img), "Add alt attribute with descriptive text")
		}
	})
	if imgs.Length() > 0 && missing == 0 {
		r.PassedChecks = append(r.PassedChecks, "All images have alt attributes")
	}
}

var genericLinkText = map[string]bool{
	"click here": true,
	"read more":  true,
	"learn more": true,
	"here":       true,
	"more":       true,
}

func checkLinks(doc *goquery.Document, r *AccessibilityResult) {
	doc.Find("a").Each(func(_ int, a *goquery.Selection) {
		text := strings.TrimSpace(a.Text())
		if text == "" && strings.TrimSpace(a.AttrOr("aria-label", "")) == "" &&
			strings.TrimSpace(a.Find("img").First().AttrOr("alt", "")) == "" {
			r.add("link-empty", "Link has no accessible text", LevelError, "2.4.4", "A",
				selectorOf(a), "Add link text or aria-label")
		}
		if genericLinkText[strings.ToLower(text)] {
			r.add("link-generic-text", fmt.Sprintf("Link has generic text: %q", text), LevelWarning, "2.4.4", "A",
				selectorOf(a), "Use descriptive link text")
		}
		if a.AttrOr("target", "") == "_blank" {
			rel := relTokens(a)
			if !hasToken(rel, "noopener") && !hasToken(rel, "noreferrer") {
				r.add("link-target-blank", "Link opens in new tab without security attributes", LevelWarning, "3.2.5", "AAA",
					selectorOf(a), "Add rel=\"noopener noreferrer\"")
			}
		}
	})
}

var unlabeledInputTypes = map[string]bool{"hidden": true, "submit": true, "button": true, "reset": true, "image": true}

func checkFormLabels(doc *goquery.Document, r *AccessibilityResult) {
	labelFor := map[string]bool{}
	doc.Find("label[for]").Each(func(_ int, l *goquery.Selection) {
		labelFor[l.AttrOr("for", "")] = true
	})

	doc.Find("input, select, textarea").Each(func(_ int, in *goquery.Selection) {
		if goquery.NodeName(in) == "input" && unlabeledInputTypes[strings.ToLower(in.AttrOr("type", "text"))] {
			return
		}
		id := in.AttrOr("id", "")
		switch {
		case id != "" && labelFor[id]:
		case in.AttrOr("aria-label", "") != "" || in.AttrOr("aria-labelledby", "") != "":
		case in.ParentsFiltered("label").Length() > 0:
		default:
			r.add("form-input-no-label", "Form input has no associated label", LevelError, "1.3.1", "A",
				selectorOf(in), "Add a <label for> element or aria-label")
		}
	})

	doc.Find("form").Each(func(_ int, form *goquery.Selection) {
		if form.AttrOr("aria-describedby", "") != "" || form.Find(`[class*="error"]`).Length() > 0 {
			return
		}
		r.add("form-no-error-handling", "Form may lack accessible error handling", LevelInfo, "3.3.1", "A",
			selectorOf(form), "Link error messages with aria-describedby")
	})
}

func checkHeadings(doc *goquery.Document, r *AccessibilityResult) {
	headings := doc.Find("h1, h2, h3, h4, h5, h6")
	if headings.Length() == 0 {
		r.add("heading-none", "Page has no headings", LevelWarning, "1.3.1", "A", "", "Add a heading structure")
		return
	}

	switch n := doc.Find("h1").Length(); {
	case n == 0:
		r.add("heading-no-h1", "Page has no h1 heading", LevelError, "1.3.1", "A", "", "Add a main h1 heading")
	case n > 1:
		r.add("heading-multiple-h1", fmt.Sprintf("Page has %d h1 headings", n), LevelWarning, "1.3.1", "A", "",
			"Keep one h1 per page")
	}

	// Document order, so skipped levels are found as a reader meets them.
	prev := 0
	headings.Each(func(_ int, h *goquery.Selection) {
		level := int(goquery.NodeName(h)[1] - '0')
		if prev > 0 && level > prev+1 {
			r.add("heading-skip-level", fmt.Sprintf("Heading level skipped from h%d to h%d", prev, level),
				LevelWarning, "1.3.1", "A", selectorOf(h), "Do not skip heading levels")
		}
		prev = level
		if strings.TrimSpace(h.Text()) == "" {
			r.add("heading-empty", fmt.Sprintf("Empty h%d heading", level), LevelError, "1.3.1", "A",
				selectorOf(h), "Add content to the heading or remove it")
		}
	})
}

func checkLanguage(doc *goquery.Document, r *AccessibilityResult) {
	if strings.TrimSpace(doc.Find("html").AttrOr("lang", "")) == "" {
		r.add("html-no-lang", "HTML element is missing lang attribute", LevelError, "3.1.1", "A", "",
			"Add a lang attribute to the html element")
		return
	}
	r.PassedChecks = append(r.PassedChecks, "HTML has lang attribute")
}

func checkLandmarks(doc *goquery.Document, r *AccessibilityResult) {
	if doc.Find(`main, [role="main"]`).Length() == 0 {
		r.add("landmark-no-main", "Page has no main landmark", LevelWarning, "1.3.1", "A", "",
			`Add a <main> element or role="main"`)
	}
	navs := doc.Find("nav")
	if navs.Length() < 2 {
		return
	}
	navs.EachWithBreak(func(_ int, nav *goquery.Selection) bool {
		if nav.AttrOr("aria-label", "") == "" && nav.AttrOr("aria-labelledby", "") == "" {
			r.add("landmark-nav-no-label", "Multiple nav elements without unique labels", LevelWarning, "1.3.1", "A",
				selectorOf(nav), "Add aria-label to distinguish nav elements")
			return false
		}
		return true
	})
}

func checkTables(doc *goquery.Document, r *AccessibilityResult) {
	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		named := table.Find("caption").Length() > 0 ||
			table.AttrOr("summary", "") != "" ||
			table.AttrOr("aria-label", "") != "" ||
			table.AttrOr("aria-labelledby", "") != ""
		if !named {
			r.add("table-no-caption", "Table has no caption or accessible name", LevelWarning, "1.3.1", "A",
				selectorOf(table), "Add a <caption> or aria-label")
		}

		ths := table.Find("th")
		if ths.Length() == 0 {
			r.add("table-no-headers", "Table has no header cells", LevelError, "1.3.1", "A",
				selectorOf(table), "Add <th> elements for header cells")
			return
		}
		if ths.FilterFunction(func(_ int, th *goquery.Selection) bool {
			return th.AttrOr("scope", "") == ""
		}).Length() > 0 {
			r.add("table-th-no-scope", "Table header cell missing scope attribute", LevelWarning, "1.3.1", "A",
				selectorOf(table), `Add scope="col" or scope="row"`)
		}
	})
}

// checkStyling flags inline colors for a manual contrast review and style
// sheets that remove the focus outline.
func checkStyling(doc *goquery.Document, r *AccessibilityResult) {
	colored := doc.Find("[style]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		style := strings.ToLower(s.AttrOr("style", ""))
		return strings.Contains(style, "color:") || strings.Contains(style, "background")
	})
	if colored.Length() > 0 {
		r.add("color-contrast-check", "Page uses color styling, verify contrast", LevelInfo, "1.4.3", "AA", "",
			"Text needs a contrast ratio of at least 4.5:1")
	}

	var css strings.Builder
	doc.Find("style").Each(func(_ int, s *goquery.Selection) {
		css.WriteString(strings.ToLower(s.Text()))
	})
	compact := strings.ReplaceAll(css.String(), " ", "")
	if strings.Contains(compact, "outline:none") || strings.Contains(compact, "outline:0") {
		r.add("focus-outline-removed", "Focus outline may be removed in styles", LevelWarning, "2.4.7", "AA", "",
			"Keep a visible focus indicator on interactive elements")
	}
}

var ariaRoles = map[string]bool{}

func init() {
	for _, role := range strings.Fields(`alert alertdialog application article banner
		button cell checkbox columnheader combobox complementary contentinfo
		definition dialog directory document feed figure form grid gridcell group
		heading img link list listbox listitem log main marquee math menu menubar
		menuitem menuitemcheckbox menuitemradio navigation none note option
		presentation progressbar radio radiogroup region row rowgroup rowheader
		scrollbar search searchbox separator slider spinbutton status switch tab
		table tablist tabpanel term textbox timer toolbar tooltip tree treegrid
		treeitem`) {
		ariaRoles[role] = true
	}
}

var focusable = map[string]bool{"a": true, "button": true, "input": true, "select": true, "textarea": true}

func checkARIA(doc *goquery.Document, r *AccessibilityResult) {
	doc.Find("[role]").Each(func(_ int, el *goquery.Selection) {
		role := strings.ToLower(strings.TrimSpace(el.AttrOr("role", "")))
		if role != "" && !ariaRoles[role] {
			r.add("aria-invalid-role", fmt.Sprintf("Invalid ARIA role: %q", role), LevelError, "4.1.2", "A",
				selectorOf(el), "Use a valid ARIA role")
		}
	})
	doc.Find(`[aria-hidden="true"]`).Each(func(_ int, el *goquery.Selection) {
		if focusable[goquery.NodeName(el)] {
			r.add("aria-hidden-focusable", `aria-hidden="true" on focusable element`, LevelError, "4.1.2", "A",
				selectorOf(el), "Do not hide focusable elements from assistive technology")
		}
	})
}

// checkSkipLink looks for an in-page skip link among the first anchors.
func checkSkipLink(doc *goquery.Document, r *AccessibilityResult) {
	found := false
	anchors := doc.Find("a")
	anchors.Slice(0, min(5, anchors.Length())).EachWithBreak(func(_ int, a *goquery.Selection) bool {
		text := strings.ToLower(a.Text())
		if strings.HasPrefix(a.AttrOr("href", ""), "#") {
			for _, hint := range []string{"skip", "main", "content", "navigation"} {
				if strings.Contains(text, hint) {
					found = true
					return false
				}
			}
		}
		return true
	})
	if !found {
		r.add("skip-link-missing", "Page may be missing a skip navigation link", LevelWarning, "2.4.1", "A", "",
			`Add a "Skip to main content" link at the start of the page`)
	}
}

func checkDocument(doc *goquery.Document, r *AccessibilityResult) {
	if strings.TrimSpace(doc.Find("title").First().Text()) == "" {
		r.add("document-no-title", "Page is missing a title", LevelError, "2.4.2", "A", "",
			"Add a descriptive <title> element")
	} else {
		r.PassedChecks = append(r.PassedChecks, "Page has title")
	}

	viewport := strings.ToLower(strings.ReplaceAll(metaByName(doc, "viewport"), " ", ""))
	if strings.Contains(viewport, "user-scalable=no") || strings.Contains(viewport, "maximum-scale=1") {
		r.add("viewport-zoom-disabled", "Page prevents zooming", LevelError, "1.4.4", "AA", "",
			"Allow users to zoom the page")
	}
}

// selectorOf returns a short CSS selector naming el: tag#id, or the tag
// with up to two classes.
func selectorOf(el *goquery.Selection) string {
	tag := goquery.NodeName(el)
	if id := el.AttrOr("id", ""); id != "" {
		return tag + "#" + id
	}
	classes := strings.Fields(el.AttrOr("class", ""))
	if len(classes) > 2 {
		classes = classes[:2]
	}
	if len(classes) > 0 {
		return tag + "." + strings.Join(classes, ".")
	}
	return tag
}

func accessibilityScore(r *AccessibilityResult) float64 {
	infos := len(r.Issues) - r.Errors - r.Warnings
	penalty := r.Errors*errorPenalty + r.Warnings*warningPenalty + infos*infoPenalty
	return float64(max(0, 100-penalty))
}

func wcagLevel(r *AccessibilityResult) string {
	aaErrors := false
	for _, issue := range r.Issues {
		if issue.Level != LevelError {
			continue
		}
		switch issue.WCAGLevel {
		case "A":
			return "Below Level A"
		case "AA":
			aaErrors = true
		}
	}
	if aaErrors {
		return "Level A"
	}
	return "Level AA (tentative)"
}
