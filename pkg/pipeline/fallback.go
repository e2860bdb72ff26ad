package pipeline

import (
	"fmt"
	"strings"

	"github.com/xhad/askdocs/internal/models"
	"go.uber.org/zap"
)

type topic struct {
	keywords []string
	tip      string
}

var fallbackTopics = []topic{
	{
		keywords: []string{"enroll", "roster", "student", "class list"},
		tip:      "Search the help center for \"enrollment\" or \"roster\" articles.",
	},
	{
		keywords: []string{"grade", "gradebook", "score", "assessment"},
		tip:      "Check the gradebook guides for grading setup and grade exports.",
	},
	{
		keywords: []string{"login", "log in", "password", "sso", "access", "permission"},
		tip:      "For sign-in or access problems, confirm your role and try the account access guide.",
	},
	{
		keywords: []string{"report", "export", "analytics", "dashboard"},
		tip:      "Reports and exports are covered in the reporting section of the docs.",
	},
	{
		keywords: []string{"integration", "integrate", "api", "lti", "sync", "webhook"},
		tip:      "Integration setup (API, LTI and sync) is documented under Integrations.",
	},
}

const genericTip = "Try rephrasing with the exact feature or page name you are working with."

// fallback builds an answer locally. No LLM call is made.
func (p *Pipeline) fallback(r *run, query, reason string) *Result {
	r.enter(StageFallback)
	r.debug.IsFallback = true
	r.debug.FallbackReason = reason
	r.enter(StageDone)

	p.metrics.Fallback(reason)
	p.logger.Info("no documentation found, returning fallback",
		zap.String("reason", reason),
		zap.String("search_mode", string(r.debug.SearchMode)))

	tips := fallbackTips(query)
	var sb strings.Builder
	fmt.Fprintf(&sb, "I couldn't find documentation that answers %q yet.\n\nHere are a few things to try:\n", query)
	for _, t := range tips {
		sb.WriteString("- ")
		sb.WriteString(t)
		sb.WriteString("\n")
	}
	sb.WriteString("\nYou can also browse the help center or the full documentation linked below.")

	return &Result{
		Answer:  sb.String(),
		Summary: "No matching documentation was found for this question.",
		Citations: []models.Citation{
			{Title: "Help Center", URL: p.config.HelpCenterURL},
			{Title: "Documentation", URL: p.config.DocsURL},
		},
		RetrievedDocs: []models.RetrievedDoc{},
		Debug:         r.debug,
	}
}

func fallbackTips(query string) []string {
	q := strings.ToLower(query)
	var tips []string
	for _, t := range fallbackTopics {
		for _, k := range t.keywords {
			if strings.Contains(q, k) {
				tips = append(tips, t.tip)
				break
			}
		}
	}
	return append(tips, genericTip)
}
