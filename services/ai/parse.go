package ai

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var (
	gradeObjectRe = regexp.MustCompile(`(?s)\{[^{}]*"score"[^{}]*"feedback"[^{}]*\}`)

	// errUnparsable marks replies that hold no decodable JSON object.
	errUnparsable    = errors.New("unable to parse AI response")
	errMissingFields = errors.New("missing required fields")
)

// stripFences removes a leading markdown code fence (```python or ```) and its closing fence.
func stripFences(code string) string {
	code = strings.TrimSpace(code)
	for _, fence := range []string{"```python", "```"} {
		if strings.HasPrefix(code, fence) {
			code = strings.TrimPrefix(code, fence)
			if idx := strings.Index(code, "```"); idx >= 0 {
				code = code[:idx]
			}
			return strings.TrimSpace(code)
		}
	}
	return code
}

// parseGrade extracts a `{"score": n, "feedback": "..."}` object from a model reply.
// Replies without any JSON object fail with errUnparsable.
func parseGrade(reply string) (float64, string, error) {
	text := strings.TrimSpace(reply)
	if match := gradeObjectRe.FindString(text); match != "" {
		text = match
	}

	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return 0, "", errors.Wrap(errUnparsable, err.Error())
	}

	rawScore, ok := raw["score"]
	if !ok {
		return 0, "", errMissingFields
	}
	rawFeedback, ok := raw["feedback"]
	if !ok {
		return 0, "", errMissingFields
	}

	var score float64
	switch s := rawScore.(type) {
	case float64:
		score = s
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, "", errors.Wrap(err, "parsing score")
		}
		score = f
	default:
		return 0, "", errors.Errorf("invalid score type %T", rawScore)
	}

	var feedback string
	if s, ok := rawFeedback.(string); ok {
		feedback = s
	} else {
		b, _ := json.Marshal(rawFeedback)
		feedback = string(b)
	}
	return score, strings.TrimSpace(feedback), nil
}

func clampScore(score float64, maxPoints int) float64 {
	if score < 0 {
		return 0
	}
	if max := float64(maxPoints); score > max {
		return max
	}
	return score
}
