package conversation

import "github.com/huandu/go-clone"

// GroundingMetadata is the citation information returned when the backend
// answered with the help of web search. It is always replaced as a whole.
type GroundingMetadata struct {
	GroundingChunks   []GroundingChunk   `json:"groundingChunks,omitempty" yaml:"groundingChunks,omitempty"`
	GroundingSupports []GroundingSupport `json:"groundingSupports,omitempty" yaml:"groundingSupports,omitempty"`
	WebSearchQueries  []string           `json:"webSearchQueries,omitempty" yaml:"webSearchQueries,omitempty"`
}

type GroundingChunk struct {
	Web *WebChunk `json:"web,omitempty" yaml:"web,omitempty"`
}

type WebChunk struct {
	URI   string `json:"uri" yaml:"uri"`
	Title string `json:"title,omitempty" yaml:"title,omitempty"`
}

type GroundingSupport struct {
	Segment               *Segment  `json:"segment,omitempty" yaml:"segment,omitempty"`
	GroundingChunkIndices []int32   `json:"groundingChunkIndices,omitempty" yaml:"groundingChunkIndices,omitempty"`
	ConfidenceScores      []float32 `json:"confidenceScores,omitempty" yaml:"confidenceScores,omitempty"`
}

type Segment struct {
	StartIndex int32  `json:"startIndex,omitempty" yaml:"startIndex,omitempty"`
	EndIndex   int32  `json:"endIndex,omitempty" yaml:"endIndex,omitempty"`
	Text       string `json:"text,omitempty" yaml:"text,omitempty"`
}

func (g *GroundingMetadata) IsEmpty() bool {
	return g == nil ||
		(len(g.GroundingChunks) == 0 && len(g.GroundingSupports) == 0 && len(g.WebSearchQueries) == 0)
}

// Sources returns the web chunks that carry a URI, in order.
func (g *GroundingMetadata) Sources() []WebChunk {
	if g == nil {
		return nil
	}
	var ret []WebChunk
	for _, c := range g.GroundingChunks {
		if c.Web != nil && c.Web.URI != "" {
			ret = append(ret, *c.Web)
		}
	}
	return ret
}

func (g *GroundingMetadata) Clone() *GroundingMetadata {
	if g == nil {
		return nil
	}
	return clone.Clone(g).(*GroundingMetadata)
}
