package gateway

import (
	"regexp"
	"strings"

	"github.com/arclight/llmgateway/types"
)

// defaultToolSchemaByteCeiling bounds a single tool's serialized
// json_schema, per §4.3's tool gate.
const defaultToolSchemaByteCeiling = 16 * 1024

// defaultDenylist is the operator-configured default for destructive or
// shell-adjacent tool names.
var defaultDenylist = []string{"exec", "shell", "eval", "rm", "delete_all"}

// PolicyEngine enforces the two gateway checkpoints from §4.3: a
// pre-call tool gate and an output-side PII redactor. It has no
// teacher-side analogue as a single unit, but its shape follows the
// middleware.RequestRewriter pattern (a request in, a request or error
// out) used throughout the teacher's llm/middleware package.
type PolicyEngine struct {
	denylist         map[string]struct{}
	scenarioAllow    map[string]map[string]struct{}
	schemaByteCeiling int
	redactPII        bool
}

// PolicyOption configures a PolicyEngine at construction time.
type PolicyOption func(*PolicyEngine)

// WithDenylist replaces the default tool-name denylist.
func WithDenylist(names ...string) PolicyOption {
	return func(p *PolicyEngine) {
		p.denylist = toSet(names)
	}
}

// WithScenarioAllowlist registers an allowlist of tool names for a given
// request metadata.scenario value.
func WithScenarioAllowlist(scenario string, names ...string) PolicyOption {
	return func(p *PolicyEngine) {
		if p.scenarioAllow == nil {
			p.scenarioAllow = make(map[string]map[string]struct{})
		}
		p.scenarioAllow[scenario] = toSet(names)
	}
}

// WithToolSchemaByteCeiling overrides the default serialized-schema size
// limit.
func WithToolSchemaByteCeiling(n int) PolicyOption {
	return func(p *PolicyEngine) { p.schemaByteCeiling = n }
}

// WithPIIRedaction enables the output-side PII redactor.
func WithPIIRedaction(enabled bool) PolicyOption {
	return func(p *PolicyEngine) { p.redactPII = enabled }
}

// NewPolicyEngine builds a PolicyEngine with the default denylist and
// schema ceiling, configured by opts.
func NewPolicyEngine(opts ...PolicyOption) *PolicyEngine {
	p := &PolicyEngine{
		denylist:          toSet(defaultDenylist),
		schemaByteCeiling: defaultToolSchemaByteCeiling,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func toSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}

// EnforceToolGate applies step 1 of §4.3: denylist, per-scenario
// allowlist, and schema size ceiling. A request with no tools is
// returned as is; otherwise, on success it returns a copy of req with
// Tools replaced by the accepted subset. On rejection it returns a
// non-retryable bad-request *types.Error.
func (p *PolicyEngine) EnforceToolGate(req *LLMRequest) (*LLMRequest, *types.Error) {
	if len(req.Tools) == 0 {
		return req, nil
	}

	var allow map[string]struct{}
	if req.Metadata.Scenario != "" {
		if a, ok := p.scenarioAllow[req.Metadata.Scenario]; ok {
			allow = a
		}
	}

	accepted := make([]types.ToolSpec, 0, len(req.Tools))
	for _, tool := range req.Tools {
		if _, denied := p.denylist[tool.Name]; denied {
			return nil, types.NewError(types.ErrCodeBadRequest, "tool '"+tool.Name+"' is denylisted")
		}
		if allow != nil {
			if _, ok := allow[tool.Name]; !ok {
				return nil, types.NewError(types.ErrCodeBadRequest, "tool '"+tool.Name+"' is not in the allowlist for scenario '"+req.Metadata.Scenario+"'")
			}
		}
		if len(tool.JSONSchema) > p.schemaByteCeiling {
			return nil, types.NewError(types.ErrCodeBadRequest, "tool '"+tool.Name+"' json_schema exceeds the size ceiling")
		}
		accepted = append(accepted, tool)
	}

	out := *req
	out.Tools = accepted
	return &out, nil
}

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?\d[\d\-. ]{7,}\d`)
)

// RedactPII replaces email- and phone-pattern substrings in s with a
// fixed placeholder. It is applied to strings destined for logs and
// telemetry, never to the response body returned to the caller (§4.3
// step 2). A no-op when redaction is disabled.
func (p *PolicyEngine) RedactPII(s string) string {
	if !p.redactPII {
		return s
	}
	s = emailPattern.ReplaceAllString(s, "[redacted-email]")
	s = phonePattern.ReplaceAllString(s, "[redacted-phone]")
	return s
}

// MaskCredentials replaces values of credential-like keys
// (api_key, authorization, x-api-key) before a raw payload is attached
// to a telemetry event, per §4.6.
func MaskCredentials(raw map[string]any) map[string]any {
	if raw == nil {
		return nil
	}
	masked := make(map[string]any, len(raw))
	for k, v := range raw {
		lower := strings.ToLower(k)
		if lower == "api_key" || lower == "authorization" || lower == "x-api-key" {
			masked[k] = "[masked]"
			continue
		}
		masked[k] = v
	}
	return masked
}
