package rank

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestTerms covers normalization, stopwords, and short-token filtering.
func TestTerms(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{name: "lowercase and split", in: "The Zeppelin-Migration Pattern!", want: []string{"zeppelin", "migration", "pattern"}},
		{name: "digits kept", in: "version v2 build 42", want: []string{"version", "v2", "build", "42"}},
		{name: "single chars dropped", in: "a x 7 ok", want: []string{"ok"}},
		{name: "nfkc ligature", in: "ﬁle system", want: []string{"file", "system"}},
		{name: "accents survive", in: "Café culture", want: []string{"café", "culture"}},
		{name: "empty", in: "  \t ", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Terms(tt.in))
		})
	}
}

// TestBuildStats verifies corpus statistics over a tiny corpus.
func TestBuildStats(t *testing.T) {
	stats := BuildStats([]string{
		"apple banana",
		"apple apple cherry",
		"durian",
	})

	assert.Equal(t, 3, stats.ChunkCount)
	assert.Equal(t, []int{2, 3, 1}, stats.Lengths)
	assert.InDelta(t, 2.0, stats.AvgLen, 1e-9)
	assert.Equal(t, 2, stats.DocFreq["apple"])
	assert.Equal(t, 1, stats.DocFreq["banana"])
	assert.Equal(t, 2, stats.TermFreqs[1]["apple"])
}

// TestScorer_Rank_ExactScores pins the scoring formula to hand-computed
// values.
func TestScorer_Rank_ExactScores(t *testing.T) {
	stats := BuildStats([]string{
		"apple banana",
		"apple apple cherry",
		"durian",
	})
	scorer := NewScorer(stats, DefaultParams())

	scored := scorer.Rank("apple")
	require.Len(t, scored, 3)

	// IDF = ln((3-2+0.5)/(2+0.5)+1) = ln(1.6).
	idf := math.Log(1.6)
	assert.Equal(t, 1, scored[0].Index)
	assert.InDelta(t, idf*2*2.5/4.0625, scored[0].Score, 1e-12)
	assert.Equal(t, 0, scored[1].Index)
	assert.InDelta(t, idf, scored[1].Score, 1e-12)
	assert.Equal(t, 2, scored[2].Index)
	assert.Zero(t, scored[2].Score)
}

// TestScorer_Rank_UniquePhraseWins verifies the chunk holding a unique
// phrase ranks first.
func TestScorer_Rank_UniquePhraseWins(t *testing.T) {
	texts := []string{
		"chapter about databases and storage layers",
		"chapter about networking stacks",
		"the zeppelin migration pattern appears here",
		"chapter about compilers",
	}
	scorer := NewScorer(BuildStats(texts), DefaultParams())

	scored := scorer.Rank("zeppelin migration")

	assert.Equal(t, 2, scored[0].Index)
	assert.Greater(t, scored[0].Score, 0.0)
	assert.Greater(t, scored[0].Score, scored[1].Score)
}

// TestScorer_Rank_TieBreak verifies equal scores order by ascending index.
func TestScorer_Rank_TieBreak(t *testing.T) {
	texts := []string{
		"alpha beta gamma",
		"alpha beta gamma",
		"alpha beta gamma",
		"alpha beta gamma",
	}
	scorer := NewScorer(BuildStats(texts), DefaultParams())

	scored := scorer.Rank("alpha")

	for i, sc := range scored {
		assert.Equal(t, i, sc.Index)
	}
}

// TestScorer_Rank_UnknownQueryTerms verifies a query with no corpus hits
// yields all-zero scores in index order.
func TestScorer_Rank_UnknownQueryTerms(t *testing.T) {
	scorer := NewScorer(BuildStats([]string{"alpha", "beta", "gamma"}), DefaultParams())

	scored := scorer.Rank("xyzzy plugh")

	require.Len(t, scored, 3)
	for i, sc := range scored {
		assert.Equal(t, i, sc.Index)
		assert.Zero(t, sc.Score)
	}
}

// TestScorer_Rank_LengthNormalization verifies shorter chunks win on equal
// term frequency.
func TestScorer_Rank_LengthNormalization(t *testing.T) {
	texts := []string{
		"needle haystack",
		"needle surrounded with very many other filler words stretched over quite some length indeed",
	}
	scorer := NewScorer(BuildStats(texts), DefaultParams())

	scored := scorer.Rank("needle")

	assert.Equal(t, 0, scored[0].Index)
	assert.Greater(t, scored[0].Score, scored[1].Score)
}

// TestScorer_Rank_Deterministic verifies repeated rankings are identical.
func TestScorer_Rank_Deterministic(t *testing.T) {
	texts := []string{
		"storage engines and write amplification",
		"network retries with exponential backoff",
		"token budgets for context assembly",
		"vector similarity with cosine distance",
	}
	scorer := NewScorer(BuildStats(texts), DefaultParams())

	first := scorer.Rank("token budget cosine retries")
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, scorer.Rank("token budget cosine retries"))
	}
}
