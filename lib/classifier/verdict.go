package classifier

import (
	"encoding/json"
	"math"
)

const fallbackReasoning = "Classifier response could not be parsed; flagged for manual review."

type verdict struct {
	Score     int
	Reasoning string

	fallback bool // response was unusable; surface for manual review
}

// parseVerdict extracts a verdict from an LLM completion. It never fails:
// whenever the response cannot be validated it returns the fallback verdict
// so ambiguous changes are surfaced to a human rather than dropped.
func parseVerdict(raw string) verdict {
	fallback := verdict{Score: 50, Reasoning: fallbackReasoning, fallback: true}

	blob := extractJSONObject(raw)
	if blob == "" {
		return fallback
	}

	var parsed struct {
		Score        *float64 `json:"score"`
		IsMeaningful *bool    `json:"isMeaningful"`
		Reasoning    string   `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(blob), &parsed); err != nil {
		return fallback
	}
	if parsed.Score == nil {
		return fallback
	}

	score := int(math.Round(*parsed.Score))
	if score < 0 {
		score = 0
	} else if score > 100 {
		score = 100
	}

	reasoning := parsed.Reasoning
	if reasoning == "" {
		reasoning = fallbackReasoning
	}

	return verdict{Score: score, Reasoning: reasoning}
}

// extractJSONObject returns the first balanced JSON object in s, tolerating
// surrounding prose and markdown fences that models like to add.
func extractJSONObject(s string) string {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		ch := s[i]
		if start == -1 {
			if ch == '{' {
				start = i
				depth = 1
			}
			continue
		}

		if escaped {
			escaped = false
			continue
		}
		switch ch {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return s[start : i+1]
				}
			}
		}
	}
	return ""
}
