package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/arclight/llmgateway/gateway"
	"github.com/arclight/llmgateway/types"
	"go.uber.org/zap"
)

// GenerateHandler serves the gateway's one caller-facing endpoint: a
// non-streaming or SSE-streaming chat completion, selected by the
// request body's "stream" field.
type GenerateHandler struct {
	router *gateway.Router
	logger *zap.Logger
}

// NewGenerateHandler builds a handler around an already-wired Router.
func NewGenerateHandler(router *gateway.Router, logger *zap.Logger) *GenerateHandler {
	return &GenerateHandler{router: router, logger: logger}
}

func (h *GenerateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req gateway.LLMRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	if req.Stream {
		h.serveStream(w, r, &req)
		return
	}
	h.serveOnce(w, r, &req)
}

func (h *GenerateHandler) serveOnce(w http.ResponseWriter, r *http.Request, req *gateway.LLMRequest) {
	resp, err := h.router.Generate(r.Context(), req)
	if err != nil {
		writeRouterError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (h *GenerateHandler) serveStream(w http.ResponseWriter, r *http.Request, req *gateway.LLMRequest) {
	chunks, err := h.router.Stream(r.Context(), req)
	if err != nil {
		writeRouterError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for chunk := range chunks {
		payload, err := json.Marshal(chunk)
		if err != nil {
			h.logger.Error("failed to encode stream chunk", zap.Error(err))
			continue
		}
		var buf bytes.Buffer
		buf.WriteString("data: ")
		buf.Write(payload)
		buf.WriteString("\n\n")
		if _, err := w.Write(buf.Bytes()); err != nil {
			return
		}
		flusher.Flush()
	}
}

func writeRouterError(w http.ResponseWriter, err error) {
	var typed *types.Error
	if errors.As(err, &typed) {
		writeError(w, typed.HTTPStatus, typed.Message)
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"error":%q}`, message)
}
