package reasoner

import (
	"github.com/pkoukk/tiktoken-go"
)

// Tokenizer counts and truncates text by model token boundaries.
type Tokenizer struct {
	enc *tiktoken.Tiktoken
}

// NewTokenizer resolves an encoding by model name, falling back to lookup
// by encoding name (e.g. "cl100k_base").
func NewTokenizer(name string) (*Tokenizer, error) {
	enc, err := tiktoken.EncodingForModel(name)
	if err != nil {
		enc, err = tiktoken.GetEncoding(name)
		if err != nil {
			return nil, err
		}
	}
	return &Tokenizer{enc: enc}, nil
}

func (t *Tokenizer) Count(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}

// Truncate cuts text at a token boundary so prompts stay inside the
// model context window. Returns text unchanged when it already fits.
func (t *Tokenizer) Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	ids := t.enc.Encode(text, nil, nil)
	if len(ids) <= maxTokens {
		return text
	}
	return t.enc.Decode(ids[:maxTokens])
}
