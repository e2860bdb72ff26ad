package orchestrator

import (
	"math"
	"net/url"
	"path"
	"strings"

	"github.com/xhad/askdocs/internal/models"
	"github.com/xhad/askdocs/pkg/pipeline"
)

const (
	baseConfidence     = 0.5
	fallbackPenalty    = 0.3
	fallbackFloor      = 0.2
	unmatchedCiteScore = 0.5
	longAnswerRunes    = 200
)

// Source is a retrieved document or citation shown to the user.
type Source struct {
	ID      string  `json:"id,omitempty"`
	Title   string  `json:"title"`
	URL     string  `json:"url,omitempty"`
	Score   float64 `json:"score"`
	Excerpt string  `json:"excerpt,omitempty"`
}

// Confidence scores a pipeline result in [0,1].
func Confidence(res *pipeline.Result) float64 {
	if res == nil {
		return 0
	}
	c := baseConfidence
	if len(res.Citations) > 0 {
		c += 0.2
	}
	if len(res.RetrievedDocs) >= 3 {
		c += 0.1
	}
	if len([]rune(res.Answer)) > longAnswerRunes {
		c += 0.1
	}
	if len(res.Steps) > 0 {
		c += 0.1
	}
	if res.Debug.IsFallback {
		c = math.Max(c-fallbackPenalty, fallbackFloor)
	}
	// Round away float drift like 0.5+0.2+0.1 = 0.7999999.
	c = math.Round(c*1000) / 1000
	return math.Max(0, math.Min(1, c))
}

// FinalIntent promotes the classified intent to instructions when the answer
// came back as steps or the query asks how to do something.
func FinalIntent(classified Intent, query string, res *pipeline.Result) Intent {
	if res != nil && len(res.Steps) > 0 {
		return IntentInstructions
	}
	if containsAny(strings.ToLower(query), howToKeywords) {
		return IntentInstructions
	}
	if !classified.valid() {
		return IntentOther
	}
	return classified
}

// Sources lists retrieved docs with their matching citation attached, then
// any citation no doc claimed.
func Sources(docs []models.RetrievedDoc, citations []models.Citation) []Source {
	sources := make([]Source, 0, len(docs)+len(citations))
	used := make([]bool, len(citations))

	for _, d := range docs {
		s := Source{ID: d.ID, Title: d.ID, Score: d.Score, Excerpt: d.Excerpt}
		if i := bestCitation(d, citations, used); i >= 0 {
			used[i] = true
			s.Title = citations[i].Title
			s.URL = citations[i].URL
		}
		sources = append(sources, s)
	}

	for i, c := range citations {
		if used[i] {
			continue
		}
		sources = append(sources, Source{Title: c.Title, URL: c.URL, Score: unmatchedCiteScore})
	}
	return sources
}

// bestCitation picks the strongest loose match, preferring citations no other
// doc has claimed.
func bestCitation(d models.RetrievedDoc, citations []models.Citation, used []bool) int {
	best, bestRank := -1, 0
	for i, c := range citations {
		rank := matchStrength(d, c) * 2
		if rank == 0 {
			continue
		}
		if !used[i] {
			rank++
		}
		if rank > bestRank {
			best, bestRank = i, rank
		}
	}
	return best
}

func matchStrength(d models.RetrievedDoc, c models.Citation) int {
	switch {
	case d.ID != "" && lastSegment(c.URL) != "" && strings.Contains(d.ID, lastSegment(c.URL)):
		return 3
	case d.ID != "" && c.URL != "" && strings.Contains(c.URL, d.ID):
		return 2
	case c.Title != "" && strings.Contains(strings.ToLower(d.Excerpt), strings.ToLower(c.Title)):
		return 1
	default:
		return 0
	}
}

func lastSegment(raw string) string {
	if raw == "" {
		return ""
	}
	p := raw
	if u, err := url.Parse(raw); err == nil {
		p = u.Path
	}
	seg := path.Base(strings.TrimRight(p, "/"))
	if seg == "." || seg == "/" {
		return ""
	}
	return seg
}
