package mnemo

import (
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/mnemo-ai/mnemo/config"
	"github.com/mnemo-ai/mnemo/embedding"
	"github.com/mnemo-ai/mnemo/llm"
	"github.com/mnemo-ai/mnemo/store"
)

// options collects the assistant's dependencies. Everything has a default
// or is derivable from config, except the store, embedder, and LLM, which
// must come from somewhere: an explicit With* option or provider config.
type options struct {
	cfg      config.Config
	pool     *store.Pool
	client   store.Client
	embedder embedding.Embedder
	llm      llm.Client
	logger   *slog.Logger
	tracer   trace.Tracer
}

// Option configures an Assistant.
type Option func(*options)

// WithConfig supplies the application configuration. Defaults to
// config.Default().
func WithConfig(cfg config.Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithPool supplies the Redis connection pool the assistant stores data in.
func WithPool(pool *store.Pool) Option {
	return func(o *options) { o.pool = pool }
}

// WithStore supplies a store client directly, bypassing the pool. Tests use
// this with the storetest fake.
func WithStore(client store.Client) Option {
	return func(o *options) { o.client = client }
}

// WithEmbedder supplies the embedding provider. When omitted, one is built
// from the OpenAI section of the config.
func WithEmbedder(e embedding.Embedder) Option {
	return func(o *options) { o.embedder = e }
}

// WithLLM supplies the chat-completion provider. When omitted, one is built
// from the Anthropic section of the config.
func WithLLM(c llm.Client) Option {
	return func(o *options) { o.llm = c }
}

// WithLogger supplies the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithTracer supplies the tracer used for fan-out and controller spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) { o.tracer = t }
}
