package stream

import (
	"strings"

	"github.com/jackzhu119/Gemini-clone/pkg/conversation"
	"github.com/jackzhu119/Gemini-clone/pkg/inference/engine"
)

// Composite is the folded state of a response after some number of fragments.
type Composite struct {
	Text              string
	GroundingMetadata *conversation.GroundingMetadata
}

// Accumulator folds the fragments of a single response. Text deltas are
// concatenated in arrival order; the most recent non-empty grounding
// metadata wins and sticks. Use a new Accumulator per turn.
type Accumulator struct {
	text      strings.Builder
	grounding *conversation.GroundingMetadata
	count     int
}

// NewAccumulator creates an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// Add folds f into the state and returns the new composite.
func (a *Accumulator) Add(f engine.Fragment) Composite {
	a.count++
	a.text.WriteString(f.TextDelta)
	if !f.GroundingMetadata.IsEmpty() {
		a.grounding = f.GroundingMetadata.Clone()
	}
	return a.Current()
}

// Current returns the composite without consuming anything.
func (a *Accumulator) Current() Composite {
	return Composite{
		Text:              a.text.String(),
		GroundingMetadata: a.grounding.Clone(),
	}
}

// Count returns the number of fragments folded so far.
func (a *Accumulator) Count() int {
	return a.count
}
