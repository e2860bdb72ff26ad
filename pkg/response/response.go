// Package response turns raw generated text into a summary, answer and steps,
// and flags quality issues without failing the request.
package response

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const summaryFallbackRunes = 100

var (
	stepLine   = regexp.MustCompile(`^\s*\d+\.\s+(.+)$`)
	blankLines = regexp.MustCompile(`\n{3,}`)
)

// Answer is the parsed form of one LLM reply.
type Answer struct {
	Raw     string
	Summary string
	Answer  string
	Steps   []string
}

func (a Answer) HasSteps() bool {
	return len(a.Steps) > 0
}

// Clean normalizes line endings, collapses runs of blank lines and trims.
func Clean(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = blankLines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// Parse cleans raw and splits it. The summary is the first plain line; the
// answer is everything after it.
func Parse(raw string) Answer {
	text := Clean(raw)
	a := Answer{Raw: raw}

	lines := strings.Split(text, "\n")
	idx := summaryLine(lines)
	if idx < 0 {
		a.Summary = truncate(text, summaryFallbackRunes)
		a.Answer = text
	} else {
		a.Summary = strings.TrimSpace(lines[idx])
		a.Answer = strings.TrimSpace(strings.Join(lines[idx+1:], "\n"))
		if a.Answer == "" {
			a.Answer = a.Summary
		}
	}

	for _, line := range lines {
		if m := stepLine.FindStringSubmatch(line); m != nil {
			a.Steps = append(a.Steps, strings.TrimSpace(m[1]))
		}
	}
	return a
}

func summaryLine(lines []string) int {
	for i, line := range lines {
		l := strings.TrimSpace(line)
		if l == "" || isHeading(l) || isBullet(l) {
			continue
		}
		return i
	}
	return -1
}

func isHeading(l string) bool {
	return strings.HasPrefix(l, "#")
}

func isBullet(l string) bool {
	for _, p := range []string{"- ", "* ", "+ ", "• "} {
		if strings.HasPrefix(l, p) {
			return true
		}
	}
	return l == "-" || l == "*" || l == "•"
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
