package gemini

import (
	"github.com/jackzhu119/Gemini-clone/pkg/conversation"
	"github.com/jackzhu119/Gemini-clone/pkg/inference/engine"
	"github.com/pkg/errors"
	"google.golang.org/genai"
)

func roleToGeminiRole(r conversation.Role) (genai.Role, error) {
	switch r {
	case conversation.RoleUser:
		return genai.RoleUser, nil
	case conversation.RoleModel:
		return genai.RoleModel, nil
	default:
		return "", errors.Wrapf(engine.ErrUnknownRole, "%q", r)
	}
}

func partToGeminiPart(p engine.Part) (*genai.Part, error) {
	switch p.Kind {
	case engine.PartKindInline:
		return genai.NewPartFromBytes(p.Data, p.MIMEType), nil
	case engine.PartKindText:
		return genai.NewPartFromText(p.Text), nil
	default:
		return nil, errors.Errorf("unknown part kind %q", p.Kind)
	}
}

func partsToGeminiParts(parts []engine.Part) ([]*genai.Part, error) {
	ret := make([]*genai.Part, 0, len(parts))
	for _, p := range parts {
		gp, err := partToGeminiPart(p)
		if err != nil {
			return nil, err
		}
		ret = append(ret, gp)
	}
	return ret, nil
}

func makeContents(history []engine.Content) ([]*genai.Content, error) {
	ret := make([]*genai.Content, 0, len(history))
	for _, c := range history {
		role, err := roleToGeminiRole(c.Role)
		if err != nil {
			return nil, err
		}
		parts, err := partsToGeminiParts(c.Parts)
		if err != nil {
			return nil, err
		}
		ret = append(ret, genai.NewContentFromParts(parts, role))
	}
	return ret, nil
}

// fragmentFromResponse maps one streamed chunk. Only the first candidate's
// grounding metadata is considered.
func fragmentFromResponse(resp *genai.GenerateContentResponse) engine.Fragment {
	if resp == nil {
		return engine.Fragment{}
	}
	f := engine.Fragment{TextDelta: resp.Text()}
	if len(resp.Candidates) > 0 && resp.Candidates[0] != nil {
		f.GroundingMetadata = groundingFromGemini(resp.Candidates[0].GroundingMetadata)
	}
	return f
}

func groundingFromGemini(g *genai.GroundingMetadata) *conversation.GroundingMetadata {
	if g == nil {
		return nil
	}
	ret := &conversation.GroundingMetadata{}
	for _, c := range g.GroundingChunks {
		if c == nil {
			continue
		}
		chunk := conversation.GroundingChunk{}
		if c.Web != nil {
			chunk.Web = &conversation.WebChunk{URI: c.Web.URI, Title: c.Web.Title}
		}
		ret.GroundingChunks = append(ret.GroundingChunks, chunk)
	}
	for _, s := range g.GroundingSupports {
		if s == nil {
			continue
		}
		support := conversation.GroundingSupport{
			GroundingChunkIndices: append([]int32(nil), s.GroundingChunkIndices...),
			ConfidenceScores:      append([]float32(nil), s.ConfidenceScores...),
		}
		if s.Segment != nil {
			support.Segment = &conversation.Segment{
				StartIndex: s.Segment.StartIndex,
				EndIndex:   s.Segment.EndIndex,
				Text:       s.Segment.Text,
			}
		}
		ret.GroundingSupports = append(ret.GroundingSupports, support)
	}
	ret.WebSearchQueries = append([]string(nil), g.WebSearchQueries...)
	if ret.IsEmpty() {
		return nil
	}
	return ret
}
