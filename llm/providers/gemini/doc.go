// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
Package gemini implements Provider C against Google's generateContent
REST API. Unlike Provider A it does not embed openaicompat: Gemini's
contents/parts shape, x-goog-api-key auth, and id-less functionCall
parts diverge too far from the OpenAI wire format to share that base.

# Tool calls

Gemini's functionCall parts carry no id. toolCallID synthesizes a
deterministic id from a SHA-256 hash of the canonicalized
(name, arguments) pair, so the same call always produces the same id
across runs — there is no upstream id to preserve instead.

# Roles

assistant messages are sent with role "model" (Gemini's own vocabulary).
system messages are pulled out of Contents into a top-level
SystemInstruction field rather than appearing in the contents array.
*/
package gemini
