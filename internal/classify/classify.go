package classify

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Category is the estimate domain assigned by the classifier.
type Category string

const (
	Property   Category = "PROPERTY"
	Auto       Category = "AUTO"
	Commercial Category = "COMMERCIAL"
	Unknown    Category = "UNKNOWN"
	Ambiguous  Category = "AMBIGUOUS"
)

// Confidence of an accepted classification. Rejected verdicts carry NoConfidence.
type Confidence string

const (
	High         Confidence = "HIGH"
	Medium       Confidence = "MEDIUM"
	NoConfidence Confidence = ""
)

const (
	// MinScore is the lowest winning score that is not rejected as UNKNOWN.
	MinScore = 3
	// MinMargin is the lead the top category needs over the runner-up.
	MinMargin = 2
	// HighConfidenceScore is the winning score at which confidence becomes HIGH.
	HighConfidenceScore = 5
)

const (
	reasonInsufficient = "insufficient recognizable content"
	reasonMultiple     = "multiple estimate types detected"
)

var (
	// ErrInvalidInput is returned when neither text nor line items are supplied.
	ErrInvalidInput = errors.New("text or line items required")

	// ErrRejected is matched by every RejectionError.
	ErrRejected = errors.New("classification rejected")
)

// Scores holds the number of distinct keywords matched per vocabulary.
type Scores struct {
	Property   int `json:"property"`
	Auto       int `json:"auto"`
	Commercial int `json:"commercial"`
}

// Max returns the highest of the three scores.
func (s Scores) Max() int {
	return max(s.Property, s.Auto, s.Commercial)
}

// Verdict is the classifier output for one document.
type Verdict struct {
	Classification Category   `json:"classification"`
	Confidence     Confidence `json:"confidence,omitempty"`
	Scores         Scores     `json:"scores"`
}

// Rejected reports whether the verdict is UNKNOWN or AMBIGUOUS.
func (v Verdict) Rejected() bool {
	return v.Classification == Unknown || v.Classification == Ambiguous
}

// RejectionError is returned alongside an UNKNOWN or AMBIGUOUS verdict.
type RejectionError struct {
	Verdict Verdict
	Reason  string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("classification rejected (%s): %s", e.Verdict.Classification, e.Reason)
}

func (e *RejectionError) Is(target error) bool {
	return target == ErrRejected
}

// Classify scores the document text and line item strings against the three
// vocabularies and decides the estimate domain.
//
// A rejected classification still returns the verdict, so callers can report
// the scores, together with a *RejectionError.
func Classify(text string, lineItems []string) (Verdict, error) {
	if strings.TrimSpace(text) == "" && len(lineItems) == 0 {
		return Verdict{}, ErrInvalidInput
	}

	haystack := strings.ToLower(text + " " + strings.Join(lineItems, " "))
	scores := Scores{
		Property:   countMatches(haystack, propertyKeywords),
		Auto:       countMatches(haystack, autoKeywords),
		Commercial: countMatches(haystack, commercialKeywords),
	}

	top := scores.Max()
	if top < MinScore {
		v := Verdict{Classification: Unknown, Scores: scores}
		return v, &RejectionError{Verdict: v, Reason: reasonInsufficient}
	}

	ranked := []int{scores.Property, scores.Auto, scores.Commercial}
	sort.Sort(sort.Reverse(sort.IntSlice(ranked)))
	if ranked[0]-ranked[1] < MinMargin {
		v := Verdict{Classification: Ambiguous, Scores: scores}
		return v, &RejectionError{Verdict: v, Reason: reasonMultiple}
	}

	v := Verdict{Scores: scores, Confidence: Medium}
	switch top {
	case scores.Property:
		v.Classification = Property
	case scores.Auto:
		v.Classification = Auto
	default:
		v.Classification = Commercial
	}
	if top >= HighConfidenceScore {
		v.Confidence = High
	}
	return v, nil
}

// countMatches counts distinct keywords occurring anywhere in haystack.
func countMatches(haystack string, keywords []string) int {
	n := 0
	for _, k := range keywords {
		if strings.Contains(haystack, k) {
			n++
		}
	}
	return n
}
