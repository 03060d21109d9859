package pipeline

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dvloznov/just-save/internal/domain"
)

// Shape is the top-level JSON value a response is expected to hold.
type Shape int

const (
	// ShapeArray expects a JSON array (transaction extraction).
	ShapeArray Shape = iota
	// ShapeObject expects a JSON object (analysis).
	ShapeObject
)

func (s Shape) brackets() (open, close string) {
	if s == ShapeObject {
		return "{", "}"
	}
	return "[", "]"
}

var (
	// fenceRe matches a whole response wrapped in a Markdown code fence with an
	// optional language tag. The closing fence may be missing when output was cut.
	fenceRe = regexp.MustCompile("(?s)^```[A-Za-z0-9_-]*[ \t]*\r?\n?(.*?)\\s*(?:```)?\\s*$")

	// Greedy first-open to last-close candidates.
	arrayRe  = regexp.MustCompile(`(?s)\[.*\]`)
	objectRe = regexp.MustCompile(`(?s)\{.*\}`)
)

// stripFences trims raw and removes a surrounding code fence, if any.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		s = strings.TrimSpace(m[1])
	}
	return s
}

// ExtractJSON returns the substring of a model response most likely to be the
// JSON payload of the given shape. It tolerates code fences and prose before
// or after the payload. ErrNoJSONFound is returned when no candidate exists.
func ExtractJSON(raw string, shape Shape) (string, error) {
	s := stripFences(raw)

	open, close := shape.brackets()
	if strings.HasPrefix(s, open) && strings.HasSuffix(s, close) {
		return s, nil
	}

	re := arrayRe
	if shape == ShapeObject {
		re = objectRe
	}
	if m := re.FindString(s); m != "" {
		return m, nil
	}

	return "", fmt.Errorf("ExtractJSON: %w", domain.ErrNoJSONFound)
}
