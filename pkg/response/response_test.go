package response

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClean(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"crlf", "a\r\nb", "a\nb"},
		{"bare cr", "a\rb", "a\nb"},
		{"blank runs", "a\n\n\n\n\nb", "a\n\nb"},
		{"double newline kept", "a\n\nb", "a\n\nb"},
		{"trim", "  \n a \n ", "a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Clean(tt.in))
		})
	}
}

func TestParse(t *testing.T) {
	raw := "## Enrolling\r\n\r\nYou enroll students from the roster page.\r\n\r\n\r\n1. Open the roster.\r\n2. Click **Enroll**.\r\n3. Save.\r\n"

	a := Parse(raw)
	assert.Equal(t, raw, a.Raw)
	assert.Equal(t, "You enroll students from the roster page.", a.Summary)
	assert.Equal(t, "1. Open the roster.\n2. Click **Enroll**.\n3. Save.", a.Answer)
	assert.Equal(t, []string{"Open the roster.", "Click **Enroll**.", "Save."}, a.Steps)
	assert.True(t, a.HasSteps())
}

func TestParseSummarySkipsBullets(t *testing.T) {
	a := Parse("- first bullet\n* second\n• third\nActual summary.\nMore detail.")
	assert.Equal(t, "Actual summary.", a.Summary)
	assert.Equal(t, "More detail.", a.Answer)
	assert.False(t, a.HasSteps())
}

func TestParseSingleLine(t *testing.T) {
	a := Parse("Just one line.")
	assert.Equal(t, "Just one line.", a.Summary)
	assert.Equal(t, "Just one line.", a.Answer)
}

func TestParseNoSummaryLine(t *testing.T) {
	long := "- " + strings.Repeat("x", 150)
	a := Parse("# Title\n" + long)

	require.True(t, strings.HasSuffix(a.Summary, "..."))
	assert.Equal(t, 103, len([]rune(a.Summary)))
	assert.Equal(t, "# Title\n"+long, a.Answer)
}

func TestParseShortNoSummaryLine(t *testing.T) {
	a := Parse("# Heading only")
	assert.Equal(t, "# Heading only", a.Summary)
	assert.Equal(t, "# Heading only", a.Answer)
}

func TestParseIndentedSteps(t *testing.T) {
	a := Parse("Summary.\n  1. one\n  10. ten\n1.not a step")
	assert.Equal(t, []string{"one", "ten"}, a.Steps)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		valid bool
		issue Issue
	}{
		{"good", "You enroll students from the roster page by clicking Enroll.", true, ""},
		{"empty", "   \n\n ", false, IssueEmpty},
		{"too short", "Yes.", false, IssueTooShort},
		{"refusal", "I'm unable to find that in the documentation provided.", false, IssueRefusal},
		{"unbalanced fence", "Run this command to export grades:\n```\ngrades export", false, IssueUnbalancedCode},
		{"trailing comma", "To export grades you first open the gradebook, then you pick the term,", false, IssueTruncated},
		{"mid sentence", "To export grades you first open the gradebook and then select the", false, IssueTruncated},
		{"ends with list item", "Here is how to do it today.\n- open the gradebook", true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Validate(tt.in)
			assert.Equal(t, tt.valid, v.Valid, v.Issues)
			if tt.issue != "" {
				assert.Contains(t, v.Issues, tt.issue)
			} else {
				assert.Empty(t, v.Issues)
			}
		})
	}
}
