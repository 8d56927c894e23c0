package providers

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/arclight/llmgateway/llm"
	"go.uber.org/zap"
)

// RetryConfig holds retry configuration for a provider wrapper. This is
// the adapter-local retry knob from Settings.MaxRetries (§4.4): distinct
// from the router's cross-provider fallback (§4.5), it retries the SAME
// provider on transient connection failures before the router ever sees
// an error.
type RetryConfig struct {
	MaxRetries    int           // maximum retry attempts
	InitialDelay  time.Duration // initial backoff delay, default 1s
	MaxDelay      time.Duration // maximum backoff delay, default 30s
	BackoffFactor float64       // exponential backoff factor, default 2.0
	RetryableOnly bool          // only retry errors marked Retryable
}

// DefaultRetryConfig returns sensible retry defaults for the given
// attempt budget.
func DefaultRetryConfig(maxRetries int) RetryConfig {
	return RetryConfig{
		MaxRetries:    maxRetries,
		InitialDelay:  time.Second,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2.0,
		RetryableOnly: true,
	}
}

// RetryableProvider wraps an llm.Provider with exponential-backoff retry
// logic, so a single flaky connection attempt doesn't immediately cost
// the router a fallback hop.
type RetryableProvider struct {
	inner  llm.Provider
	config RetryConfig
	logger *zap.Logger
}

// NewRetryableProvider creates a retrying wrapper around the given provider.
func NewRetryableProvider(inner llm.Provider, config RetryConfig, logger *zap.Logger) *RetryableProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetryableProvider{
		inner:  inner,
		config: config,
		logger: logger.With(zap.String("component", "retry_provider"), zap.String("provider", inner.Name())),
	}
}

var _ llm.Provider = (*RetryableProvider)(nil)

func (p *RetryableProvider) Name() string                     { return p.inner.Name() }
func (p *RetryableProvider) Capabilities() llm.Capabilities    { return p.inner.Capabilities() }
func (p *RetryableProvider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	return p.inner.HealthCheck(ctx)
}

// Completion performs a chat completion with retry on transient errors.
func (p *RetryableProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := p.calculateDelay(attempt)
			p.logger.Debug("retrying completion", zap.Int("attempt", attempt), zap.Duration("delay", delay))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		resp, err := p.inner.Completion(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if p.config.RetryableOnly {
			if typed, ok := err.(*llm.Error); ok && !typed.Retryable {
				return nil, err
			}
		}
		p.logger.Warn("completion failed, will retry", zap.Int("attempt", attempt), zap.Error(err))
	}

	return nil, fmt.Errorf("completion failed after %d retries: %w", p.config.MaxRetries, lastErr)
}

// Stream performs a streaming chat request with retry on connection
// errors. Only connection establishment is retried; mid-stream errors
// are the caller's problem per §4.5's streaming note.
func (p *RetryableProvider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	var lastErr error
	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := p.calculateDelay(attempt)
			p.logger.Debug("retrying stream", zap.Int("attempt", attempt), zap.Duration("delay", delay))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		ch, err := p.inner.Stream(ctx, req)
		if err == nil {
			return ch, nil
		}
		lastErr = err

		if p.config.RetryableOnly {
			if typed, ok := err.(*llm.Error); ok && !typed.Retryable {
				return nil, err
			}
		}
		p.logger.Warn("stream connection failed, will retry", zap.Int("attempt", attempt), zap.Error(err))
	}

	return nil, fmt.Errorf("stream failed after %d retries: %w", p.config.MaxRetries, lastErr)
}

func (p *RetryableProvider) calculateDelay(attempt int) time.Duration {
	delay := float64(p.config.InitialDelay) * math.Pow(p.config.BackoffFactor, float64(attempt-1))
	if delay > float64(p.config.MaxDelay) {
		delay = float64(p.config.MaxDelay)
	}
	return time.Duration(delay)
}
