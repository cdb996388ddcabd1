package memory

import "strings"

// TokenCounter reports the token count of a text. It must be
// deterministic and monotone: appending text never lowers the count.
type TokenCounter func(string) int

// EstimateTokens is the default counter. It approximates a subword
// tokenizer by charging one token per four characters of each word,
// with a minimum of one token per word. The absolute scale differs from
// the model tokenizer but the bound enforcement only relies on the
// counter being fixed and monotone.
func EstimateTokens(text string) int {
	total := 0
	for _, word := range strings.Fields(text) {
		total += (len(word) + 3) / 4
	}
	return total
}
