package prompt

import (
	"fmt"
	"strings"

	"github.com/xhad/askdocs/internal/models"
	"github.com/xhad/askdocs/pkg/contextwindow"
)

const (
	DefaultSystemTemplate = `You are a documentation assistant. Answer the user's question using only the documentation excerpts below.
Start with a one-sentence summary on its own line, then give the full answer.
If the excerpts do not contain the answer, say so plainly instead of guessing.`

	stepsInstruction = `When the question asks how to do something, answer with a numbered list of steps ("1. ", "2. ", ...), one action per step.`

	referencesInstruction = `Refer to sources by their [n] marker when you rely on them.`

	stepsRequest = "Please answer with numbered step-by-step instructions."
)

type Options struct {
	PreferSteps       bool
	IncludeReferences bool
}

// Bundle is the message pair sent to the LLM and the citations it may quote.
type Bundle struct {
	SystemPrompt string
	UserPrompt   string
	Citations    []models.Citation
}

type Builder struct {
	SystemTemplate string
}

func New() *Builder {
	return &Builder{SystemTemplate: DefaultSystemTemplate}
}

// Build serializes the window into the system prompt with [n] source markers.
// Citations follow window order, one per distinct URL.
func (b *Builder) Build(query string, window contextwindow.Window, opts Options) Bundle {
	tmpl := b.SystemTemplate
	if tmpl == "" {
		tmpl = DefaultSystemTemplate
	}

	var sb strings.Builder
	sb.WriteString(tmpl)
	if opts.PreferSteps {
		sb.WriteString("\n")
		sb.WriteString(stepsInstruction)
	}
	if opts.IncludeReferences {
		sb.WriteString("\n")
		sb.WriteString(referencesInstruction)
	}

	sb.WriteString("\n\nRelevant documentation:\n")
	for i, c := range window.Chunks {
		fmt.Fprintf(&sb, "\n[%d] %s\nSource: %s\n%s\n", i+1, titleOf(c), c.Metadata.URL, strings.TrimSpace(c.Content))
	}

	user := strings.TrimSpace(query)
	if opts.PreferSteps {
		user += "\n\n" + stepsRequest
	}

	return Bundle{
		SystemPrompt: strings.TrimRight(sb.String(), "\n"),
		UserPrompt:   user,
		Citations:    Citations(window.Chunks),
	}
}

// Citations returns one citation per chunk, deduplicated by URL in first-seen
// order. Chunks without a URL are keyed by ID.
func Citations(chunks []models.Chunk) []models.Citation {
	citations := make([]models.Citation, 0, len(chunks))
	seen := make(map[string]bool)

	for _, c := range chunks {
		key := c.Metadata.URL
		if key == "" {
			key = "id:" + c.ID
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		citations = append(citations, models.Citation{Title: titleOf(c), URL: c.Metadata.URL})
	}
	return citations
}

func titleOf(c models.Chunk) string {
	switch {
	case c.Metadata.Title != "":
		return c.Metadata.Title
	case c.Metadata.URL != "":
		return c.Metadata.URL
	default:
		return c.ID
	}
}
