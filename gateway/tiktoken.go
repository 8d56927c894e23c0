package gateway

import (
	"encoding/json"

	"github.com/arclight/llmgateway/types"
	"github.com/pkoukk/tiktoken-go"
)

// tiktokenTokenizer adapts tiktoken-go to types.Tokenizer's no-error
// signature for Provider A's cl100k_base/o200k_base-family models,
// following the teacher's llm/tokenizer.TiktokenTokenizer. Unlike the
// teacher's version it never returns an error: if the encoding fails to
// load, it falls back to EstimateTokenizer so the pre-budget check
// degrades gracefully rather than blocking every request.
type tiktokenTokenizer struct {
	enc      *tiktoken.Tiktoken
	fallback *types.EstimateTokenizer
}

// newTiktokenTokenizer loads the named encoding (e.g. "cl100k_base",
// "o200k_base"). It never fails to construct; a load error just means
// every call falls back to character estimation.
func newTiktokenTokenizer(encoding string) *tiktokenTokenizer {
	enc, _ := tiktoken.GetEncoding(encoding)
	return &tiktokenTokenizer{enc: enc, fallback: types.NewEstimateTokenizer()}
}

func (t *tiktokenTokenizer) CountTokens(text string) int {
	if t.enc == nil {
		return t.fallback.CountTokens(text)
	}
	return len(t.enc.Encode(text, nil, nil))
}

func (t *tiktokenTokenizer) CountMessageTokens(msg types.Message) int {
	if t.enc == nil {
		return t.fallback.CountMessageTokens(msg)
	}
	total := 4 + len(t.enc.Encode(msg.Content, nil, nil)) + len(t.enc.Encode(string(msg.Role), nil, nil))
	for _, tc := range msg.ToolCalls {
		total += len(t.enc.Encode(tc.Name, nil, nil))
		total += len(tc.Arguments) / 4
	}
	return total
}

func (t *tiktokenTokenizer) CountMessagesTokens(msgs []types.Message) int {
	total := 3
	for _, m := range msgs {
		total += t.CountMessageTokens(m)
	}
	return total
}

func (t *tiktokenTokenizer) EstimateToolTokens(tools []types.ToolSpec) int {
	if t.enc == nil {
		return t.fallback.EstimateToolTokens(tools)
	}
	total := 0
	for _, tool := range tools {
		total += len(t.enc.Encode(tool.Name, nil, nil))
		total += len(t.enc.Encode(tool.Description, nil, nil))
		var schema any
		if json.Unmarshal(tool.JSONSchema, &schema) == nil {
			total += len(tool.JSONSchema) / 4
		}
		total += 10
	}
	return total
}
