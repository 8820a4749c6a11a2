package classifier

import (
	"fmt"
	"strings"

	"github.com/regwatch/regwatch/lib/differ"
	"github.com/regwatch/regwatch/lib/models"
)

const maxDiffChars = 12000

const systemPrompt = `You review changes to government and regulatory web pages for an employment-law compliance team.

Changes that matter:
- new or amended legal requirements
- filing or compliance deadlines
- rates, thresholds, penalty amounts
- policy changes affecting employers
- enforcement or guidance updates

Changes to ignore:
- cosmetic or layout changes
- navigation, header or footer changes
- marketing or promotional content
- cookie banners, session tokens, timestamps

Respond with a single JSON object:
{"score": <0-100 significance score>, "isMeaningful": <true|false>, "reasoning": "<one or two sentences>"}`

func buildPrompt(target *models.Target, diff *differ.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Page: %s\nURL: %s\n\n", target.Name, target.URL)
	b.WriteString("The page content changed as follows (+ added, - removed):\n\n")
	b.WriteString(truncate(diff.Text, maxDiffChars))
	return b.String()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "\n[truncated]"
}
