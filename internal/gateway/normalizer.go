package gateway

import (
	"github.com/pkoukk/tiktoken-go"

	"github.com/praxishq/llm-gateway/internal/provider"
)

// Normalizer maps heterogeneous provider responses into one shape. Backends
// that omit token counts get them filled in from a deterministic tokenizer
// approximation, and the result is flagged as estimated for the audit log.
type Normalizer struct {
	enc *tiktoken.Tiktoken
}

func NewNormalizer() *Normalizer {
	// cl100k_base is close enough for cost estimation across backends; the
	// byte-length heuristic below covers environments without the BPE data.
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		enc = nil
	}
	return &Normalizer{enc: enc}
}

// Normalize returns the response with token counts guaranteed present, and
// whether they were estimated rather than reported by the backend.
func (n *Normalizer) Normalize(req *provider.Request, resp *provider.Response) (*provider.Response, bool) {
	if resp.UsageReported {
		return resp, false
	}

	out := *resp
	out.InputTokens = n.CountTokens(req.Prompt)
	out.OutputTokens = n.CountTokens(resp.Content)
	return &out, true
}

// CountTokens approximates the token count of a text deterministically.
func (n *Normalizer) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	if n.enc != nil {
		return len(n.enc.Encode(text, nil, nil))
	}
	// ~4 bytes per token heuristic
	return (len(text) + 3) / 4
}
