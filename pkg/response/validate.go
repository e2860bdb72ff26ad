package response

import (
	"strings"
	"unicode/utf8"
)

type Issue string

const (
	IssueEmpty          Issue = "empty_response"
	IssueTooShort       Issue = "response_too_short"
	IssueRefusal        Issue = "model_refused"
	IssueUnbalancedCode Issue = "unbalanced_code_fence"
	IssueTruncated      Issue = "possibly_truncated"
)

const minAnswerRunes = 20

var refusalPhrases = []string{
	"i cannot help",
	"i can't help",
	"i'm unable to",
	"i am unable to",
	"as an ai language model",
	"i don't have access",
}

// Validation is advisory. Callers log the issues and keep the answer.
type Validation struct {
	Valid  bool
	Issues []Issue
}

func Validate(raw string) Validation {
	text := Clean(raw)
	var issues []Issue

	if text == "" {
		return Validation{Valid: false, Issues: []Issue{IssueEmpty}}
	}
	if utf8.RuneCountInString(text) < minAnswerRunes {
		issues = append(issues, IssueTooShort)
	}

	lower := strings.ToLower(text)
	for _, p := range refusalPhrases {
		if strings.Contains(lower, p) {
			issues = append(issues, IssueRefusal)
			break
		}
	}

	if strings.Count(text, "```")%2 != 0 {
		issues = append(issues, IssueUnbalancedCode)
	}
	if truncated(text) {
		issues = append(issues, IssueTruncated)
	}

	return Validation{Valid: len(issues) == 0, Issues: issues}
}

// truncated reports a reply that stops mid-sentence.
func truncated(text string) bool {
	last := text[strings.LastIndex(text, "\n")+1:]
	last = strings.TrimSpace(last)
	if last == "" || strings.HasPrefix(last, "```") || strings.HasPrefix(last, "|") {
		return false
	}
	if strings.HasSuffix(last, ",") || strings.HasSuffix(last, ":") || strings.HasSuffix(last, "...") {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(last)
	switch r {
	case '.', '!', '?', ')', '"', '\'', '`', '*', ']':
		return false
	}
	// Short list items and link-only lines rarely end in punctuation.
	if isBullet(last) || stepLine.MatchString(last) || strings.HasPrefix(last, "http") {
		return false
	}
	return utf8.RuneCountInString(last) > 40
}
