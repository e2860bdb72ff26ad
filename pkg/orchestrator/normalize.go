package orchestrator

import (
	"regexp"
	"strings"
)

var mentionPatterns = []*regexp.Regexp{
	// Slack user mentions: <@U123> and <@U123|name>
	regexp.MustCompile(`<@[A-Z0-9]+(?:\|[^>]*)?>`),
	// Slack broadcast mentions: <!here>, <!channel|channel>
	regexp.MustCompile(`<!(?:here|channel|everyone)(?:\|[^>]*)?>`),
	// Teams mentions: <at>Bot</at>
	regexp.MustCompile(`(?is)<at(?:[^>a-z][^>]*)?>.*?</at>`),
}

// Normalize strips platform mention markup and collapses whitespace.
// Normalize(Normalize(q)) == Normalize(q).
func Normalize(q string) string {
	for {
		stripped := q
		for _, re := range mentionPatterns {
			stripped = re.ReplaceAllString(stripped, " ")
		}
		if stripped == q {
			break
		}
		q = stripped
	}
	return strings.Join(strings.Fields(q), " ")
}
