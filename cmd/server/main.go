// Command server runs the HTTP/SSE conversational retrieval gateway.
//
// # Configuration
//
// Environment variables:
//
//	ADDR                 - HTTP listen address (default: ":8080")
//	ANTHROPIC_API_KEY    - enables the Anthropic chat/synthesis provider
//	OPENAI_API_KEY       - enables the OpenAI chat/synthesis provider
//	AWS_REGION           - enables the Bedrock provider (uses default AWS credential chain)
//	REDIS_URL            - when set, session ownership is tracked in Redis for multi-node routing
//	SESSION_TTL          - idle session lifetime (default: "30m")
//	CONFIG_FILE          - optional YAML file overriding addr/sessionTtl/provider (see config.Server)
//
// At least one of ANTHROPIC_API_KEY, OPENAI_API_KEY, or AWS_REGION must be set,
// unless CONFIG_FILE supplies a provider section. When several are set, the
// first one in that order selects the provider.
//
// web_search and every widget kind are registered from package demo, which
// manufactures results offline instead of calling a real search API or
// domain providers; CONFIG_FILE's widgets map (see config.Server) can
// disable individual widget kinds. See cmd/demo for a version of this
// pipeline that also fakes the model provider, requiring no API key.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/conversantai/retrieval-engine/action"
	"github.com/conversantai/retrieval-engine/classify"
	"github.com/conversantai/retrieval-engine/config"
	"github.com/conversantai/retrieval-engine/demo"
	"github.com/conversantai/retrieval-engine/model"
	"github.com/conversantai/retrieval-engine/model/anthropic"
	"github.com/conversantai/retrieval-engine/model/bedrock"
	"github.com/conversantai/retrieval-engine/model/openai"
	"github.com/conversantai/retrieval-engine/pipeline"
	"github.com/conversantai/retrieval-engine/researcher"
	"github.com/conversantai/retrieval-engine/session"
	"github.com/conversantai/retrieval-engine/synth"
	"github.com/conversantai/retrieval-engine/telemetry"
	"github.com/conversantai/retrieval-engine/transport"
	"github.com/conversantai/retrieval-engine/widget"
)

var errNoProviderConfigured = errors.New("server: one of ANTHROPIC_API_KEY, OPENAI_API_KEY, or AWS_REGION must be set")

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	ctx := context.Background()
	log := telemetry.NewNoopLogger()

	cfg, err := config.Load(envOr("CONFIG_FILE", "config.yaml"))
	if err != nil {
		return err
	}

	client, err := buildModelClient(ctx, cfg.Provider)
	if err != nil {
		return err
	}

	registry := action.NewRegistry()
	registerBuiltinActions(registry)

	ttl := envDurationOr("SESSION_TTL", session.DefaultTTL)
	if cfg.SessionTTL != "" {
		if d, err := time.ParseDuration(cfg.SessionTTL); err == nil {
			ttl = d
		}
	}
	store := session.NewStore(log, ttl)
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		rdb := redis.NewClient(&redis.Options{Addr: redisURL})
		defer rdb.Close()
		dir := session.NewNodeDirectory(rdb, envOr("NODE_ID", "node-1"), ttl)
		_ = dir // claimed per-session by the handler wrapper once request routing is added
	}

	widgets := widget.NewRegistry()
	registerBuiltinWidgets(widgets, cfg)

	p := pipeline.New(
		classify.New(client, log),
		researcher.New(client, registry, log, nil, nil),
		widgets,
		synth.New(client, log),
		synth.NewFollowUpGenerator(client, log),
		log,
	)

	handler := transport.NewHandler(store, p, log)
	addr := envOr("ADDR", ":8080")
	if cfg.Addr != "" {
		addr = cfg.Addr
	}
	log.Info(ctx, "server: listening", "addr", addr)
	return http.ListenAndServe(addr, handler)
}

func buildModelClient(ctx context.Context, cfg config.ProviderConfig) (model.Client, error) {
	provider := cfg.Name
	switch {
	case provider == "anthropic" || (provider == "" && os.Getenv("ANTHROPIC_API_KEY") != ""):
		return anthropic.NewFromAPIKey(os.Getenv("ANTHROPIC_API_KEY"), anthropic.Options{
			DefaultModel: firstNonEmpty(cfg.DefaultModel, envOr("ANTHROPIC_DEFAULT_MODEL", "claude-sonnet-4-5")),
			HighModel:    firstNonEmpty(cfg.HighModel, envOr("ANTHROPIC_HIGH_MODEL", "claude-opus-4-1")),
			SmallModel:   firstNonEmpty(cfg.SmallModel, envOr("ANTHROPIC_SMALL_MODEL", "claude-haiku-4-5")),
			MaxTokens:    4096,
			Temperature:  0.3,
		})
	case provider == "openai" || (provider == "" && os.Getenv("OPENAI_API_KEY") != ""):
		return openai.NewFromAPIKey(os.Getenv("OPENAI_API_KEY"), openai.Options{
			DefaultModel: firstNonEmpty(cfg.DefaultModel, envOr("OPENAI_DEFAULT_MODEL", "gpt-4.1")),
			HighModel:    firstNonEmpty(cfg.HighModel, envOr("OPENAI_HIGH_MODEL", "o3")),
			SmallModel:   firstNonEmpty(cfg.SmallModel, envOr("OPENAI_SMALL_MODEL", "gpt-4.1-mini")),
			MaxTokens:    4096,
			Temperature:  0.3,
		})
	case provider == "bedrock" || (provider == "" && os.Getenv("AWS_REGION") != ""):
		return bedrock.NewFromDefaultConfig(ctx, os.Getenv("AWS_REGION"), bedrock.Options{
			DefaultModel: firstNonEmpty(cfg.DefaultModel, envOr("BEDROCK_DEFAULT_MODEL", "anthropic.claude-3-5-sonnet-20241022-v2:0")),
			HighModel:    firstNonEmpty(cfg.HighModel, envOr("BEDROCK_HIGH_MODEL", "anthropic.claude-3-opus-20240229-v1:0")),
			SmallModel:   firstNonEmpty(cfg.SmallModel, envOr("BEDROCK_SMALL_MODEL", "anthropic.claude-3-5-haiku-20241022-v1:0")),
			MaxTokens:    4096,
			Temperature:  0.3,
		})
	default:
		return nil, errNoProviderConfigured
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// registerBuiltinActions registers the researcher's reserved done sentinel
// and a demo web_search implementation. Replace demo.WebSearch with an
// action backed by a real search API for production use.
func registerBuiltinActions(registry *action.Registry) {
	_ = registry.Register(&action.Spec{Name: action.Done})
	_ = registry.Register(demo.WebSearch())
}

// registerBuiltinWidgets registers demo implementations of every widget
// kind, gated by cfg.WidgetEnabled, so the widget executor has something to
// run while the classifier's per-kind flags are enabled. Replace
// demo.Widgets with widgets backed by real domain providers for production.
func registerBuiltinWidgets(registry *widget.Registry, cfg *config.Server) {
	for _, spec := range demo.Widgets(cfg.WidgetEnabled) {
		registry.Register(spec)
	}
}

func envOr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envDurationOr(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
