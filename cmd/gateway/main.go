package main

import (
	"context"
	"os"
	"strings"

	"github.com/arclight/llmgateway/gateway"
	"github.com/arclight/llmgateway/llm"
	"github.com/arclight/llmgateway/llm/providers"
	claude "github.com/arclight/llmgateway/llm/providers/anthropic"
	"github.com/arclight/llmgateway/llm/providers/gemini"
	"github.com/arclight/llmgateway/llm/providers/openai"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	logger := initLogger()
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var telemetryProviders *gateway.TelemetryProviders
	if endpoint := os.Getenv("LLMGATEWAY_OTEL_ENDPOINT"); endpoint != "" {
		tp, err := gateway.NewTelemetryProviders(ctx, "llmgateway", endpoint)
		if err != nil {
			logger.Warn("failed to start OTLP exporters, continuing with no-op tracer/meter", zap.Error(err))
		} else {
			telemetryProviders = tp
			defer telemetryProviders.Shutdown(context.Background())
		}
	}

	var settings *gateway.Settings
	var err error
	if configPath := os.Getenv("LLMGATEWAY_CONFIG_FILE"); configPath != "" {
		settings, err = gateway.LoadSettings(configPath)
	} else {
		settings, err = gateway.LoadSettingsFromEnv()
	}
	if err != nil {
		logger.Fatal("failed to load settings", zap.Error(err))
	}

	providerMap := buildProviders(settings, logger)
	if len(providerMap) == 0 {
		logger.Fatal("no providers configured: set at least one of LLMGATEWAY_OPENAI_API_KEY, LLMGATEWAY_ANTHROPIC_API_KEY, LLMGATEWAY_GEMINI_API_KEY")
	}

	policy := gateway.NewPolicyEngine()
	telemetry := gateway.NewTelemetry(logger, policy, "")
	router := gateway.NewRouter(settings, providerMap, telemetry, policy)

	if addr := os.Getenv("LLMGATEWAY_REDIS_ADDR"); addr != "" {
		client := redis.NewClient(&redis.Options{Addr: addr})
		router = router.WithRedisTier(gateway.NewRedisTier(client, 0))
		logger.Info("attached distributed cache tier", zap.String("redis_addr", addr))
	}

	srv := NewServer(router, ServerOptions{
		HTTPAddr:    envOr("LLMGATEWAY_HTTP_ADDR", ":8080"),
		MetricsAddr: envOr("LLMGATEWAY_METRICS_ADDR", ":9090"),
		APIKeys:     splitNonEmpty(os.Getenv("LLMGATEWAY_SERVER_API_KEYS")),
		CORSOrigins: splitNonEmpty(os.Getenv("LLMGATEWAY_CORS_ORIGINS")),
	}, logger)

	if err := srv.Start(ctx); err != nil {
		logger.Fatal("failed to start gateway", zap.Error(err))
	}
	srv.WaitForShutdown()
	logger.Info("gateway stopped")
}

// buildProviders wires one llm.Provider per credential present in
// Settings, wrapped with a retrying decorator per Settings.MaxRetries
// (§4.4's adapter-local retry, distinct from the router's fallback).
func buildProviders(settings *gateway.Settings, logger *zap.Logger) map[string]llm.Provider {
	retryCfg := providers.DefaultRetryConfig(settings.MaxRetries)
	out := make(map[string]llm.Provider)

	if key := settings.Credentials["openai"]; key != "" {
		p := openai.New(providers.OpenAIConfig{
			BaseProviderConfig: providers.BaseProviderConfig{APIKey: key},
		}, logger)
		out["openai"] = providers.NewRetryableProvider(p, retryCfg, logger)
	}
	if key := settings.Credentials["anthropic"]; key != "" {
		p := claude.New(providers.ClaudeConfig{
			BaseProviderConfig: providers.BaseProviderConfig{APIKey: key},
		}, logger)
		out["anthropic"] = providers.NewRetryableProvider(p, retryCfg, logger)
	}
	if key := settings.Credentials["gemini"]; key != "" {
		p := gemini.New(providers.GeminiConfig{
			BaseProviderConfig: providers.BaseProviderConfig{APIKey: key},
		}, logger)
		out["gemini"] = providers.NewRetryableProvider(p, retryCfg, logger)
	}
	return out
}

func initLogger() *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if os.Getenv("LLMGATEWAY_LOG_FORMAT") == "console" {
		cfg = zap.NewDevelopmentConfig()
	}
	logger, err := cfg.Build(zap.AddCaller())
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitNonEmpty(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
