// Package budget partitions the model context window between the fixed
// reservations (system prompt, conversation history, response buffer) and
// document content. Every assembled context is granted at most the
// remaining document slice.
package budget

import "math"

// Allocator computes document token grants against a fixed window.
type Allocator struct {
	window   int
	system   int
	history  int
	response int
}

// NewAllocator creates an allocator for the given window partition.
// All values are token counts.
func NewAllocator(window, system, history, response int) *Allocator {
	return &Allocator{
		window:   window,
		system:   system,
		history:  history,
		response: response,
	}
}

// Available returns the token budget left for document content after the
// fixed reservations. Never negative.
func (a *Allocator) Available() int {
	available := a.window - a.system - a.history - a.response
	if available < 0 {
		return 0
	}
	return available
}

// Plan is the outcome of an allocation request.
type Plan struct {
	// Requested is the document's full token count.
	Requested int
	// Granted is the number of tokens actually allocated.
	Granted int
	// Truncated reports whether the document exceeds the available budget.
	Truncated bool
	// UtilizationPct is the share of the document that fits, rounded to
	// the nearest percent.
	UtilizationPct int
}

// Plan grants min(requested, available) tokens to the document.
// A negative request is treated as zero.
func (a *Allocator) Plan(requested int) Plan {
	if requested < 0 {
		requested = 0
	}
	available := a.Available()
	granted := requested
	if granted > available {
		granted = available
	}

	denom := requested
	if denom < 1 {
		denom = 1
	}
	utilization := int(math.Round(100 * float64(granted) / float64(denom)))

	return Plan{
		Requested:      requested,
		Granted:        granted,
		Truncated:      requested > available,
		UtilizationPct: utilization,
	}
}

// Report is the wire representation of an allocation, attached to upload
// and query responses.
type Report struct {
	TotalWindow int                `json:"total_window"`
	Allocations AllocationBreak    `json:"allocations"`
	Document    DocumentAllocation `json:"document"`
}

// AllocationBreak lists the window partition in tokens.
type AllocationBreak struct {
	SystemPrompt        int `json:"system_prompt"`
	ConversationHistory int `json:"conversation_history"`
	ResponseBuffer      int `json:"response_buffer"`
	DocumentContent     int `json:"document_content"`
}

// DocumentAllocation describes how the document fared against the budget.
type DocumentAllocation struct {
	OriginalTokens  int  `json:"original_tokens"`
	AllocatedTokens int  `json:"allocated_tokens"`
	MaxTokens       int  `json:"max_tokens"`
	UtilizationPct  int  `json:"utilization_pct"`
	Truncated       bool `json:"truncated"`
}

// Report renders a plan into the wire shape.
func (a *Allocator) Report(p Plan) Report {
	return Report{
		TotalWindow: a.window,
		Allocations: AllocationBreak{
			SystemPrompt:        a.system,
			ConversationHistory: a.history,
			ResponseBuffer:      a.response,
			DocumentContent:     p.Granted,
		},
		Document: DocumentAllocation{
			OriginalTokens:  p.Requested,
			AllocatedTokens: p.Granted,
			MaxTokens:       a.Available(),
			UtilizationPct:  p.UtilizationPct,
			Truncated:       p.Truncated,
		},
	}
}
