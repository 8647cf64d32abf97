package middleware

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/ensemble-ai/ensemble/pkg/protocol"
)

var (
	encodingMu    sync.Mutex
	encodingCache = map[string]*tiktoken.Tiktoken{}
)

// encodingFor returns a cached tokenizer for the model, or nil when no
// encoding maps to it (offline or unknown model).
func encodingFor(model string) *tiktoken.Tiktoken {
	encodingMu.Lock()
	defer encodingMu.Unlock()

	if enc, ok := encodingCache[model]; ok {
		return enc
	}

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			enc = nil
		}
	}
	encodingCache[model] = enc
	return enc
}

// CountTokens estimates tokens for one string, falling back to bytes/4
// when no tokenizer is available. The result is approximate either way.
func CountTokens(model, text string) int {
	if enc := encodingFor(model); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return len(text) / 4
}

// CountMessageTokens estimates tokens across messages, with a small
// per-message overhead for role framing.
func CountMessageTokens(model string, messages []protocol.Message) int {
	total := 0
	for _, msg := range messages {
		total += CountTokens(model, msg.Text()) + 3
	}
	return total
}
