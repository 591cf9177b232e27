package budget

import (
	"github.com/cloudwego/eino/schema"
)

const (
	// charsPerToken is the conservative character-to-token ratio used for
	// estimation across backends with different tokenizers.
	charsPerToken = 4

	// imagePartTokens is a flat estimate for one attached image. Providers
	// bill images very differently; this only keeps logs comparable.
	imagePartTokens = 768
)

// Estimate returns a rough token count for s using the character heuristic.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// EstimateMessages returns the estimated prompt size of msgs, summing role,
// text content and a flat cost per attached image.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		// Each message has a small per-message overhead (~4 tokens in most APIs).
		total += 4
		total += Estimate(string(m.Role))
		total += Estimate(m.Content)
		for _, part := range m.MultiContent { //nolint:staticcheck // SA1019: MultiContent is what the eino-ext backends read
			switch part.Type {
			case schema.ChatMessagePartTypeText:
				total += Estimate(part.Text)
			case schema.ChatMessagePartTypeImageURL:
				total += imagePartTokens
			}
		}
	}
	return total
}
