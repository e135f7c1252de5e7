package qa

import (
	"strings"

	"github.com/cloudwego/eino/schema"
)

// systemPrompt frames the model as an educator grounded in the transcript.
const systemPrompt = "You are an expert technical educator. Use the provided transcript segments to provide " +
	"a detailed, clear, and insightful answer. If the transcript uses analogies or examples, " +
	"include them. If the answer isn't in the text, say you don't know."

// NoContextAnswer is returned when retrieval finds nothing for the question.
const NoContextAnswer = "I couldn't find relevant information in this video's transcript."

// segmentHeader prefixes each transcript segment in the context block.
const segmentHeader = "--- SEGMENT ---\n"

// contextBlock joins segments, each under a segment header, separated by a
// blank line.
func contextBlock(segments []string) string {
	var b strings.Builder
	for i, s := range segments {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(segmentHeader)
		b.WriteString(s)
	}
	return b.String()
}

// buildMessages renders the system and user messages for question over segments.
func buildMessages(segments []string, question string) []*schema.Message {
	user := "CONTEXT FROM VIDEO TRANSCRIPT:\n" + contextBlock(segments) +
		"\n\nUSER QUESTION:\n" + question +
		"\n\nHelpful Answer:"
	return []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(user),
	}
}
