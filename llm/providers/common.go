// Package providers holds small helpers shared by every upstream adapter:
// reading an error body off a failed HTTP response and picking the model
// id to send. Error classification itself lives in types.ClassifyProviderError
// (the shared substring-based mapping, spec §4.4) so it is not duplicated here.
package providers

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/arclight/llmgateway/llm"
)

// ReadErrorMessage reads an HTTP error body and tries to pull a human
// message out of the common {"error":{"message":...}} envelope, falling
// back to the raw body when that shape doesn't match.
func ReadErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(body)
	if err != nil {
		return "failed to read error response"
	}

	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error.Message != "" {
		if errResp.Error.Type != "" {
			return fmt.Sprintf("%s (type: %s)", errResp.Error.Message, errResp.Error.Type)
		}
		return errResp.Error.Message
	}
	return string(data)
}

// SafeCloseBody closes an HTTP response body, tolerating a nil body.
func SafeCloseBody(body io.ReadCloser) {
	if body != nil {
		_ = body.Close()
	}
}

// ChooseModel picks the concrete model id to send: the request's Model
// field always wins (the router has already resolved the logical tier,
// §4.4), falling back to the adapter's configured default.
func ChooseModel(req *llm.ChatRequest, defaultModel string) string {
	if req != nil && req.Model != "" {
		return req.Model
	}
	return defaultModel
}
