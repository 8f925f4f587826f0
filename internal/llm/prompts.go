package llm

import (
	"fmt"
	"strings"
)

// TripletExtractionPrompt builds the extraction prompt for one chunk. The
// model is told to use only the given types and to return at most
// maxTriplets triplets as a JSON object.
func TripletExtractionPrompt(chunk string, entityTypes, relationTypes []string, maxTriplets int) string {
	return fmt.Sprintf(`Extract knowledge triplets from the text below.

Rules:
- Return at most %d triplets, choosing the most informative ones.
- subject_type and object_type MUST be one of: %s
- relation MUST be one of: %s
- Use the entity names as they appear in the text; do not invent entities.
- If nothing fits these types, return an empty list.

Return ONLY a JSON object, no explanation:
{"triplets": [{"subject": "...", "subject_type": "...", "relation": "...", "object": "...", "object_type": "..."}]}

Text:
"""
%s
"""`, maxTriplets, strings.Join(entityTypes, ", "), strings.Join(relationTypes, ", "), chunk)
}

// AnswerPrompt builds the question-answering prompt from graph context lines.
func AnswerPrompt(question string, contextLines []string) string {
	var b strings.Builder
	b.WriteString("You answer questions using only the knowledge graph facts below.\n")
	b.WriteString("If the facts do not contain the answer, say that the knowledge graph has no information about it.\n\n")
	b.WriteString("Facts:\n")
	for _, line := range contextLines {
		b.WriteString("- ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\nQuestion: ")
	b.WriteString(question)
	b.WriteString("\nAnswer:")
	return b.String()
}
