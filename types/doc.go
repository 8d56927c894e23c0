// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types holds the gateway's lowest-level shared vocabulary: the
message/tool/error shapes every other package builds on. It has no
internal dependencies, so llm, gateway and the provider adapters can all
import it without a cycle.

# Core types

  - Message / Role / ContentPart / ToolCall — canonical chat message shape
  - ToolSpec                                — caller-supplied tool definition
  - Error / ErrorCode                       — closed error taxonomy with HTTP status and Retryable
  - Tokenizer / EstimateTokenizer           — token-count estimation for budget checks
*/
package types
