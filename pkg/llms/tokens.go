package llms

import (
	"github.com/pkoukk/tiktoken-go"

	"github.com/troupe-ai/troupe/pkg/protocol"
)

// CountTokens estimates the prompt token count for a chat request.
// Falls back to the cl100k_base encoding when the model is unknown.
// Returns -1 when no encoding is available at all.
func CountTokens(model string, messages []protocol.Message) int {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return -1
		}
	}

	// Per-message framing overhead plus the assistant reply priming,
	// matching the OpenAI chat format accounting.
	const tokensPerMessage = 3
	total := 3
	for _, m := range messages {
		total += tokensPerMessage
		total += len(enc.Encode(m.Role, nil, nil))
		total += len(enc.Encode(m.Content, nil, nil))
	}
	return total
}
