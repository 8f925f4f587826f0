package llm

import (
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/kaptinlin/jsonrepair"

	"github.com/scrypster/ontograph/pkg/types"
)

// TripletResponse is one triplet as the model emits it.
type TripletResponse struct {
	Subject     string `json:"subject"`
	SubjectType string `json:"subject_type"`
	Relation    string `json:"relation"`
	Object      string `json:"object"`
	ObjectType  string `json:"object_type"`
}

// TripletExtractionResponse is the envelope the extraction prompt asks for.
type TripletExtractionResponse struct {
	Triplets []TripletResponse `json:"triplets"`
}

// extractJSON returns the first balanced JSON object in text, ignoring
// markdown fences and prose around it. If none is found the trimmed text is
// returned so the decoder reports the failure.
func extractJSON(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	text = strings.TrimSpace(text)

	start := strings.Index(text, "{")
	if start == -1 {
		return text
	}

	depth := 0
	inString := false
	escape := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if escape {
			escape = false
			continue
		}
		switch {
		case ch == '\\':
			escape = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == '{':
			depth++
		case ch == '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	// Unbalanced; hand the tail to the repairer.
	return text[start:]
}

// ParseTripletResponse decodes a model response into candidate triplets.
// Malformed JSON is repaired once with jsonrepair before giving up. Entries
// missing any field are skipped. Types and relations are uppercased; names
// are returned as emitted and validated by the caller.
func ParseTripletResponse(raw string) ([]types.Triplet, error) {
	body := extractJSON(raw)

	var resp TripletExtractionResponse
	if err := jsoniter.UnmarshalFromString(body, &resp); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(body)
		if repairErr != nil {
			return nil, fmt.Errorf("failed to parse triplet response: %w", err)
		}
		resp = TripletExtractionResponse{}
		if err := jsoniter.UnmarshalFromString(repaired, &resp); err != nil {
			return nil, fmt.Errorf("failed to parse repaired triplet response: %w", err)
		}
	}

	out := make([]types.Triplet, 0, len(resp.Triplets))
	for _, t := range resp.Triplets {
		if strings.TrimSpace(t.Subject) == "" || strings.TrimSpace(t.Object) == "" ||
			strings.TrimSpace(t.Relation) == "" || strings.TrimSpace(t.SubjectType) == "" ||
			strings.TrimSpace(t.ObjectType) == "" {
			continue
		}
		out = append(out, types.Triplet{
			Subject:  types.Entity{Name: t.Subject, Type: upperTag(t.SubjectType)},
			Relation: upperTag(t.Relation),
			Object:   types.Entity{Name: t.Object, Type: upperTag(t.ObjectType)},
		})
	}
	return out, nil
}

// upperTag uppercases a type tag and turns inner spaces and hyphens into
// underscores, so "located in" matches LOCATED_IN.
func upperTag(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return '_'
		}
		return r
	}, s)
}
