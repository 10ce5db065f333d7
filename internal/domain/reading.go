// Package domain defines the business logic for the step challenge service:
// OCR reading extraction, same-day record upserts, step aggregation, and
// team membership rules.
package domain

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
)

// ErrNoStepCount indicates no usable step count was found in the OCR text.
var ErrNoStepCount = errors.New("no step count found in text")

// Pattern tags identifying which extraction rule matched.
const (
	PatternGroupedSteps = "쉼표걸음"
	PatternPlainSteps   = "숫자걸음"
)

// Step counts outside this range are treated as OCR noise.
const (
	MinPlausibleSteps = 100
	MaxPlausibleSteps = 200000
)

// ExtractedConfidence is assigned to every successful extraction. The OCR
// engine plus an exact unit-label match is trusted uniformly, so this is a
// constant rather than a computed score.
const ExtractedConfidence = 95

// Reading is a single step count extracted from one screenshot upload.
type Reading struct {
	Steps          int
	Confidence     int
	MatchedPattern string
	SourceText     string
}

var (
	whitespaceRun = regexp.MustCompile(`\s+`)

	// Fitness apps render the daily goal as "/10,000 걸음" next to the actual
	// count. Slash-prefixed counts are stripped before matching so a goal is
	// never mistaken for the reading.
	goalAnnotation = regexp.MustCompile(`/\s*\d{1,3}(?:[,，]\d{3})*\s*걸음`)

	stepPatterns = []struct {
		tag string
		re  *regexp.Regexp
	}{
		{PatternGroupedSteps, regexp.MustCompile(`(\d{1,3}(?:[,，]\d{3})+)\s*걸음`)},
		{PatternPlainSteps, regexp.MustCompile(`(\d+)\s*걸음`)},
	}
)

// ExtractReading locates a step count in free-form OCR text. Patterns are
// tried in order and the first plausible match wins. Returns ErrNoStepCount
// when nothing matches or every candidate falls outside the plausible range.
func ExtractReading(text string) (Reading, error) {
	clean := strings.TrimSpace(whitespaceRun.ReplaceAllString(text, " "))
	clean = goalAnnotation.ReplaceAllString(clean, "")

	for _, p := range stepPatterns {
		match := p.re.FindStringSubmatch(clean)
		if match == nil {
			continue
		}

		digits := strings.NewReplacer(",", "", "，", "").Replace(match[1])
		steps, err := strconv.Atoi(digits)
		if err != nil {
			continue
		}
		if steps < MinPlausibleSteps || steps > MaxPlausibleSteps {
			continue
		}

		return Reading{
			Steps:          steps,
			Confidence:     ExtractedConfidence,
			MatchedPattern: p.tag,
			SourceText:     clean,
		}, nil
	}

	return Reading{}, ErrNoStepCount
}
