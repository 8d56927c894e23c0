package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/arclight/llmgateway/llm"
	"github.com/arclight/llmgateway/types"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

// ensureRequestID fills in a random request id when the caller omitted
// one, so every attempt and telemetry event downstream has a non-empty
// correlation id to log against.
func ensureRequestID(req *LLMRequest) {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
}

// Router is the gateway's single entry point: Generate and Stream,
// implementing the sequential-fallback algorithm from §4.5. It holds no
// shared mutable state beyond the latency windows and the cache, both
// safe for concurrent use (§5).
type Router struct {
	providers map[string]llm.Provider
	settings  *Settings
	cache     *Cache
	cost      *CostEstimator
	policy    *PolicyEngine
	telemetry *Telemetry
	latency   *latencyTracker
	tokenizer types.Tokenizer
	sf        singleflight.Group
}

// NewRouter wires a Router from its Settings and the set of adapters
// available to it. Unknown provider names in settings.EnabledProviders
// are simply never selected as candidates.
func NewRouter(settings *Settings, providers map[string]llm.Provider, telemetry *Telemetry, policy *PolicyEngine) *Router {
	if policy == nil {
		policy = NewPolicyEngine()
	}
	if telemetry == nil {
		// Each auto-built Telemetry gets its own metric namespace so that
		// constructing several Routers in one process (every test in this
		// package does exactly that) never double-registers the same
		// Prometheus collector against the default registerer.
		telemetry = NewTelemetry(nil, policy, nextDefaultTelemetryNamespace())
	}
	return &Router{
		providers: providers,
		settings:  settings,
		cache:     NewCache(1000, defaultCacheTTL),
		cost:      NewCostEstimator(settings.PricingOverride),
		policy:    policy,
		telemetry: telemetry,
		latency:   newLatencyTracker(),
		tokenizer: newTiktokenTokenizer("cl100k_base"),
	}
}

// WithRedisTier attaches an optional distributed second cache tier to
// the router's Cache and returns the router for chaining. Without a
// call to this, the Cache is purely in-process, matching §4.2's
// baseline requirement.
func (r *Router) WithRedisTier(tier *RedisTier) *Router {
	r.cache.WithRedisTier(tier)
	return r
}

// Generate implements §4.5's algorithm: policy enforce, pre-budget,
// candidate ordering, then a sequential try-with-fallback loop over
// providers, never fanning out in parallel (billing/rate-limit
// isolation, §5).
func (r *Router) Generate(ctx context.Context, req *LLMRequest) (*LLMResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, types.NewError(types.ErrCodeBadRequest, err.Error()).WithCause(err)
	}
	ensureRequestID(req)

	ctx, span := r.telemetry.StartSpan(ctx, "gateway.Generate")
	defer span.End()

	gated, policyErr := r.policy.EnforceToolGate(req)
	if policyErr != nil {
		return nil, policyErr
	}
	req = gated

	if err := r.preBudget(req); err != nil {
		return nil, err
	}

	candidates := r.limitCandidates(r.candidateOrder())
	if len(candidates) == 0 {
		return nil, types.NewError(types.ErrCodeProviderUnavailable, "no providers enabled")
	}

	var lastErr *types.Error
	fallbackCount := 0

	for _, name := range candidates {
		provider, ok := r.providers[name]
		if !ok {
			continue
		}

		timeout := time.Duration(r.settings.RequestTimeoutMS) * time.Millisecond
		if r.latency.p95(name) > (timeout*4)/5 {
			continue // latency circuit-break: §4.5 step 4a
		}

		model := r.settings.ResolveModel(name, req.Model)
		cacheKey := CacheKey(name, model, req.Messages)
		cacheable := Cacheable(req)

		if cacheable {
			if cached, hit := r.cache.GetWithContext(ctx, cacheKey); hit {
				return &cached, nil
			}
		}

		// fallbackCount numbers the provider calls: 1 for the first one.
		fallbackCount++
		resp, err := r.attempt(ctx, provider, name, model, req, timeout, cacheable, cacheKey, fallbackCount)
		if err == nil {
			return resp, nil
		}

		lastErr = err
		if !err.Retryable {
			return nil, err
		}
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, types.NewError(types.ErrCodeProviderUnavailable, "all candidates exhausted")
}

// attempt invokes one provider under a deadline, de-duplicating
// concurrent identical cacheable calls via singleflight (§4.5.1), and
// runs the post-budget check and telemetry emission (§4.5 step 4e/4f).
func (r *Router) attempt(ctx context.Context, provider llm.Provider, name, model string, req *LLMRequest, timeout time.Duration, cacheable bool, cacheKey string, fallbackCount int) (*LLMResponse, *types.Error) {
	call := func() (any, error) {
		return r.callProvider(ctx, provider, name, model, req, timeout)
	}

	var result any
	var err error
	if cacheable {
		result, err, _ = r.sf.Do(cacheKey, call)
	} else {
		result, err = call()
	}

	if err != nil {
		typed := asTypedError(err, name)
		r.telemetry.Emit(AttemptEvent{
			RequestID: req.RequestID, Provider: name, ProviderModel: model,
			Outcome: OutcomeError, ErrorCode: string(typed.Code), FallbackCount: fallbackCount,
		})
		return nil, typed
	}

	resp := result.(*LLMResponse)

	if err := r.postBudget(resp); err != nil {
		return nil, err
	}

	if cacheable {
		r.cache.SetWithContext(ctx, cacheKey, *resp)
	}

	r.telemetry.Emit(AttemptEvent{
		RequestID: req.RequestID, Provider: name, ProviderModel: model,
		LatencyMS: resp.Usage.LatencyMS, Tokens: resp.Usage.TotalTokens,
		CostUSD: resp.Usage.CostUSD, Outcome: OutcomeSuccess, FallbackCount: fallbackCount,
	})
	return resp, nil
}

// callProvider performs the single adapter invocation shared by the
// cached and uncached paths: deadline enforcement, latency measurement,
// and response normalization.
func (r *Router) callProvider(ctx context.Context, provider llm.Provider, name, model string, req *LLMRequest, timeout time.Duration) (*LLMResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	chatReq := &llm.ChatRequest{
		RequestID:   req.RequestID,
		Model:       model,
		Messages:    req.Messages,
		MaxTokens:   req.MaxOutputTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Tools:       req.Tools,
		ToolChoice:  req.ToolChoice,
	}

	start := time.Now()
	chatResp, err := provider.Completion(callCtx, chatReq)
	elapsed := time.Since(start)
	if err != nil {
		return nil, err
	}

	r.latency.record(name, elapsed)

	usage := NewUsage(chatResp.Usage.InputTokens, chatResp.Usage.OutputTokens, chatResp.Usage.TotalTokens)
	usage.CostUSD = r.cost.Estimate(name, model, usage.InputTokens, usage.OutputTokens)
	usage.LatencyMS = elapsed.Milliseconds()

	resp := &LLMResponse{
		RequestID:     req.RequestID,
		Provider:      name,
		ProviderModel: model,
		OutputText:    chatResp.OutputText,
		ToolCalls:     chatResp.ToolCalls,
		Usage:         usage,
		FinishReason:  chatResp.FinishReason,
	}
	if r.settings.DebugRaw {
		resp.Raw = chatResp.Raw
	}
	return resp, nil
}

// Stream implements §4.5's streaming variant with the same ordering and
// policy rules. It commits to the first candidate whose adapter Stream
// call returns without error; an error that later arrives on that
// candidate's chunk channel ends the stream and is not retried on
// another candidate, even when no chunk has been delivered yet. Stream
// emits no AttemptEvent.
func (r *Router) Stream(ctx context.Context, req *LLMRequest) (<-chan LLMResponseChunk, error) {
	if err := req.Validate(); err != nil {
		return nil, types.NewError(types.ErrCodeBadRequest, err.Error()).WithCause(err)
	}
	ensureRequestID(req)

	ctx, span := r.telemetry.StartSpan(ctx, "gateway.Stream")

	gated, policyErr := r.policy.EnforceToolGate(req)
	if policyErr != nil {
		span.End()
		return nil, policyErr
	}
	req = gated

	if err := r.preBudget(req); err != nil {
		span.End()
		return nil, err
	}

	candidates := r.limitCandidates(r.candidateOrder())
	var lastErr *types.Error

	for _, name := range candidates {
		provider, ok := r.providers[name]
		if !ok {
			continue
		}
		timeout := time.Duration(r.settings.RequestTimeoutMS) * time.Millisecond
		if r.latency.p95(name) > (timeout*4)/5 {
			continue
		}

		model := r.settings.ResolveModel(name, req.Model)
		chatReq := &llm.ChatRequest{
			RequestID: req.RequestID, Model: model, Messages: req.Messages,
			MaxTokens: req.MaxOutputTokens, Temperature: req.Temperature,
			TopP: req.TopP, Tools: req.Tools, ToolChoice: req.ToolChoice,
		}

		streamCtx, cancel := context.WithTimeout(ctx, timeout)
		upstream, err := provider.Stream(streamCtx, chatReq)
		if err != nil {
			cancel()
			typed := asTypedError(err, name)
			lastErr = typed
			if !typed.Retryable {
				span.End()
				return nil, typed
			}
			continue
		}

		out := make(chan LLMResponseChunk)
		go translateStream(upstream, out, cancel, span)
		return out, nil
	}

	span.End()
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, types.NewError(types.ErrCodeProviderUnavailable, "all candidates exhausted")
}

// translateStream drains the adapter's StreamChunk channel into the
// caller-facing LLMResponseChunk channel, closing the tracing span and
// cancelling the adapter's deadline once the upstream stream ends —
// this is where Stream's span actually closes, not in Stream itself,
// since Stream returns the channel before streaming finishes.
func translateStream(in <-chan llm.StreamChunk, out chan<- LLMResponseChunk, cancel context.CancelFunc, span trace.Span) {
	defer close(out)
	defer cancel()
	defer span.End()
	for chunk := range in {
		var usagePartial *Usage
		if chunk.Usage != nil {
			u := NewUsage(chunk.Usage.InputTokens, chunk.Usage.OutputTokens, chunk.Usage.TotalTokens)
			usagePartial = &u
		}
		out <- LLMResponseChunk{
			DeltaText:      chunk.DeltaText,
			DeltaToolCalls: chunk.DeltaToolCalls,
			IsFinal:        chunk.IsFinal,
			UsagePartial:   usagePartial,
		}
		if chunk.Err != nil {
			return
		}
	}
}

// candidateOrder computes §4.5 step 3: enabled providers with the
// default prepended, tie-broken by ascending p95 latency.
func (r *Router) candidateOrder() []string {
	seen := make(map[string]struct{}, len(r.settings.EnabledProviders)+1)
	ordered := make([]string, 0, len(r.settings.EnabledProviders)+1)

	if r.settings.DefaultProvider != "" {
		ordered = append(ordered, r.settings.DefaultProvider)
		seen[r.settings.DefaultProvider] = struct{}{}
	}
	for _, name := range r.settings.EnabledProviders {
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		ordered = append(ordered, name)
	}

	// Stable sort ordered[1:] by ascending p95; providers with no
	// samples yet (p95 == 0) sort first, matching "no evidence of
	// slowness" intuition. Index 0 (the default provider, when present)
	// is pinned and never enters the sort, per §8 invariant #4: the
	// default must appear first regardless of its own p95.
	start := 1
	if r.settings.DefaultProvider == "" {
		start = 0
	}
	for i := start + 1; i < len(ordered); i++ {
		j := i
		for j > start && r.latency.p95(ordered[j-1]) > r.latency.p95(ordered[j]) {
			ordered[j-1], ordered[j] = ordered[j], ordered[j-1]
			j--
		}
	}
	return ordered
}

// limitCandidates caps the candidate order to at most MaxRetries
// entries, per §6's "max_retries ... used as a maximum candidate count
// when combined with the enabled list". A MaxRetries <= 0 is treated as
// unbounded (walk the full enabled list). This is distinct from, and
// additional to, providers.RetryableProvider's per-adapter HTTP retry
// budget: that retries the *same* provider on a single transport
// hiccup before the error ever reaches the router, while this caps how
// many *different* providers the router's fallback loop will try for
// one request.
func (r *Router) limitCandidates(candidates []string) []string {
	if r.settings.MaxRetries > 0 && len(candidates) > r.settings.MaxRetries {
		return candidates[:r.settings.MaxRetries]
	}
	return candidates
}

// preBudget implements §4.5 step 2. When the caller supplies
// max_output_tokens, it is checked directly against the ceiling. When
// omitted, the tokenizer estimates the prompt's own token count (a
// request can never complete in fewer tokens than its prompt costs) and
// that estimate stands in for the missing ceiling check.
func (r *Router) preBudget(req *LLMRequest) *types.Error {
	if req.MaxOutputTokens > 0 {
		if req.MaxOutputTokens > r.settings.MaxTokensPerRequest {
			return types.NewError(types.ErrCodeBudgetExceeded, fmt.Sprintf(
				"max_output_tokens %d exceeds the configured ceiling %d", req.MaxOutputTokens, r.settings.MaxTokensPerRequest))
		}
		return nil
	}

	estimated := r.tokenizer.CountMessagesTokens(req.Messages)
	if len(req.Tools) > 0 {
		estimated += r.tokenizer.EstimateToolTokens(req.Tools)
	}
	if estimated > r.settings.MaxTokensPerRequest {
		return types.NewError(types.ErrCodeBudgetExceeded, fmt.Sprintf(
			"estimated prompt tokens %d exceeds the configured ceiling %d", estimated, r.settings.MaxTokensPerRequest))
	}
	return nil
}

// postBudget implements §4.5 step 4e's post-call check: total tokens and
// estimated cost must both be within ceiling, or the response is
// discarded and budget-exceeded is raised.
func (r *Router) postBudget(resp *LLMResponse) *types.Error {
	if resp.Usage.TotalTokens > r.settings.MaxTokensPerRequest {
		return types.NewError(types.ErrCodeBudgetExceeded, fmt.Sprintf(
			"response total_tokens %d exceeds the configured ceiling %d", resp.Usage.TotalTokens, r.settings.MaxTokensPerRequest))
	}
	if resp.Usage.CostUSD > r.settings.MaxCostUSDPerRequest {
		return types.NewError(types.ErrCodeBudgetExceeded, fmt.Sprintf(
			"response cost %.8f exceeds the configured ceiling %.8f", resp.Usage.CostUSD, r.settings.MaxCostUSDPerRequest))
	}
	return nil
}

// asTypedError converts whatever error an adapter returned into a
// *types.Error, per §4.4's "adapters must never throw raw transport
// exceptions to the router" rule — this is the router's own backstop
// in case an adapter slips.
func asTypedError(err error, provider string) *types.Error {
	if te, ok := err.(*types.Error); ok {
		return te
	}
	return types.ClassifyProviderError(provider, 0, err.Error())
}
