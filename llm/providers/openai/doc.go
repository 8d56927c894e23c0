// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
Package openai implements Provider A, the OpenAI Chat Completions wire
format (/v1/chat/completions, /v1/models). It embeds
openaicompat.Provider for HTTP, SSE, and error-mapping handling, and
only overrides header construction to add an Organization header.

Tool calls use the OpenAI shape: {id, function:{name, arguments}}, with
arguments a JSON-encoded string. A parse failure wraps the raw string
as {"raw": ...} rather than failing the response.
*/
package openai
