package chunk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSegment_NewlinesAreBoundaries verifies CSV-style rows never merge.
func TestSegment_NewlinesAreBoundaries(t *testing.T) {
	spans := segment("name,score\nAlice,42\nBob,17")

	require.Len(t, spans, 3)
	assert.Equal(t, "name,score", spans[0].text)
	assert.Equal(t, "Alice,42", spans[1].text)
	assert.Equal(t, "Bob,17", spans[2].text)
}

// TestSegment_Sections verifies headings and page markers set the section
// for themselves and for following sentences.
func TestSegment_Sections(t *testing.T) {
	spans := segment("# Alpha\nUnder alpha.\n\n[Page 2]\nOn page two.")

	require.Len(t, spans, 4)
	assert.Equal(t, "Alpha", spans[0].section)
	assert.Equal(t, "Alpha", spans[1].section)
	assert.Equal(t, "Page 2", spans[2].section)
	assert.Equal(t, "Page 2", spans[3].section)
}

// TestSegment_Offsets verifies every span points back into the source text.
func TestSegment_Offsets(t *testing.T) {
	src := "  Indented lead. Second part here.\nPlain line.\n\nAfter a gap."
	spans := segment(src)

	require.NotEmpty(t, spans)
	for _, sp := range spans {
		require.LessOrEqual(t, sp.offset+len(sp.text), len(src))
		assert.Equal(t, sp.text, src[sp.offset:sp.offset+len(sp.text)])
	}
}

// TestSplitProse covers boundary detection around punctuation.
func TestSplitProse(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{
			name: "plain sentences",
			in:   "First one. Second one. Third.",
			want: []string{"First one.", "Second one.", "Third."},
		},
		{
			name: "abbreviations and initials",
			in:   "Dr. Smith arrived at 3 p.m. sharp. He left with J. Jones. Done.",
			want: []string{"Dr. Smith arrived at 3 p.m. sharp.", "He left with J. Jones.", "Done."},
		},
		{
			name: "closing quote",
			in:   `He said "stop." Then left.`,
			want: []string{`He said "stop."`, "Then left."},
		},
		{
			name: "decimal number",
			in:   "Pi is 3.14 roughly. Next fact.",
			want: []string{"Pi is 3.14 roughly.", "Next fact."},
		},
		{
			name: "lowercase continuation",
			in:   "See e.g. the appendix for details.",
			want: []string{"See e.g. the appendix for details."},
		},
		{
			name: "no terminator",
			in:   "just a fragment",
			want: []string{"just a fragment"},
		},
		{
			name: "question and exclamation",
			in:   "Really? Yes! Moving on.",
			want: []string{"Really?", "Yes!", "Moving on."},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, splitProse(tt.in))
		})
	}
}
