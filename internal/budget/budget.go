// Package budget provides token budget estimation for answer prompts.
// Because answers can come from several LLM backends with different
// tokenizers, this package uses a conservative character-based heuristic:
// 1 token ≈ 4 characters of English prose.
package budget

import (
	"github.com/cloudwego/eino/schema"
)

const (
	// charsPerToken is the character-to-token ratio used for estimation.
	charsPerToken = 4

	// DefaultMaxContextTokens is the default input budget in tokens. It fits
	// within 8k-context models such as Llama 3 8B while leaving room for the
	// answer. Override with MODEL_MAX_CONTEXT_TOKENS.
	DefaultMaxContextTokens = 6000
)

// Estimate returns a rough token count for s using the character heuristic.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// EstimateMessages returns the estimated total token count for a slice of
// schema.Message values, summing role + content for each message.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		// ~4 tokens of per-message framing in most chat APIs.
		total += 4
		total += Estimate(string(m.Role))
		total += Estimate(m.Content)
	}
	return total
}

// FitSegments returns how many leading segments can be passed to build while
// the resulting messages stay within maxTokens. Segments must be ordered most
// relevant first, so the least relevant are dropped first. The most relevant
// segment is always kept: when even one segment overflows, 1 is returned and
// callers should warn. A non-positive maxTokens disables trimming.
func FitSegments(segments []string, maxTokens int, build func(segments []string) []*schema.Message) int {
	n := len(segments)
	if n == 0 || maxTokens <= 0 {
		return n
	}
	for n > 1 && EstimateMessages(build(segments[:n])) > maxTokens {
		n--
	}
	return n
}
