// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
Package providers holds the small pieces shared by the three upstream
adapters (openai, anthropic, gemini): reading an error body off a failed
HTTP response, picking the model id to send, and an exponential-backoff
retry wrapper around a single llm.Provider.

Each adapter owns its own wire types and conversion logic — there is no
shared "OpenAI-compatible" request/response struct here, since only
Provider A speaks that wire format.

# Core types

  - BaseProviderConfig / OpenAIConfig / ClaudeConfig / GeminiConfig — per-adapter config
  - RetryableProvider / RetryConfig — adapter-local retry wrapper (distinct
    from the router's cross-provider fallback)

# Core functions

  - ReadErrorMessage — pull a message out of a failed HTTP response body
  - ChooseModel — request's Model wins, falling back to the adapter default
  - SafeCloseBody — nil-tolerant response body close
*/
package providers
