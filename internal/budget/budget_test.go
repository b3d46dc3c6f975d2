package budget

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAvailable_StandardPartition(t *testing.T) {
	a := NewAllocator(200000, 2000, 10000, 4000)
	assert.Equal(t, 184000, a.Available())
}

func TestAvailable_NeverNegative(t *testing.T) {
	a := NewAllocator(1000, 2000, 10000, 4000)
	assert.Equal(t, 0, a.Available())
}

func TestPlan_SmallDocumentFullyGranted(t *testing.T) {
	a := NewAllocator(200000, 2000, 10000, 4000)

	p := a.Plan(5000)
	assert.Equal(t, 5000, p.Granted)
	assert.False(t, p.Truncated)
	assert.Equal(t, 100, p.UtilizationPct)
}

func TestPlan_OversizeDocumentTruncated(t *testing.T) {
	a := NewAllocator(200000, 2000, 10000, 4000)

	p := a.Plan(368000)
	assert.Equal(t, 184000, p.Granted)
	assert.True(t, p.Truncated)
	assert.Equal(t, 50, p.UtilizationPct)
}

func TestPlan_ZeroAndNegativeRequests(t *testing.T) {
	a := NewAllocator(200000, 2000, 10000, 4000)

	p := a.Plan(0)
	assert.Equal(t, 0, p.Granted)
	assert.False(t, p.Truncated)
	assert.Equal(t, 0, p.UtilizationPct)

	p = a.Plan(-10)
	assert.Equal(t, 0, p.Granted)
	assert.Equal(t, 0, p.UtilizationPct)
}

// The reservations plus the grant never exceed the window, for any request.
func TestPlan_SumNeverExceedsWindow(t *testing.T) {
	a := NewAllocator(200000, 2000, 10000, 4000)

	for _, requested := range []int{0, 1, 12000, 184000, 184001, 1 << 24} {
		p := a.Plan(requested)
		total := 2000 + 10000 + 4000 + p.Granted
		assert.LessOrEqual(t, total, 200000, "requested %d", requested)
	}
}

func TestReport_WireShape(t *testing.T) {
	a := NewAllocator(200000, 2000, 10000, 4000)
	r := a.Report(a.Plan(250000))

	assert.Equal(t, 200000, r.TotalWindow)
	assert.Equal(t, 2000, r.Allocations.SystemPrompt)
	assert.Equal(t, 10000, r.Allocations.ConversationHistory)
	assert.Equal(t, 4000, r.Allocations.ResponseBuffer)
	assert.Equal(t, 184000, r.Allocations.DocumentContent)

	assert.Equal(t, 250000, r.Document.OriginalTokens)
	assert.Equal(t, 184000, r.Document.AllocatedTokens)
	assert.Equal(t, 184000, r.Document.MaxTokens)
	assert.Equal(t, 74, r.Document.UtilizationPct)
	assert.True(t, r.Document.Truncated)
}
