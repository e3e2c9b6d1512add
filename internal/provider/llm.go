package provider

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/visibility-cli/internal/resilience"
)

const systemPrompt = `You are a knowledgeable assistant answering a buyer's question.
Answer naturally and concretely, naming the specific companies or products you would consider.
After the answer, append a fenced json code block of the form
{"brands":[{"name":"...","position":1,"sentiment":"positive|neutral|negative"}]}
listing every company or product you mentioned, in the order you ranked or first mentioned them.`

// Completion is a vendor-neutral single-turn request.
type Completion struct {
	Model     string
	System    string
	User      string
	MaxTokens int
}

// Answer is a raw vendor answer.
type Answer struct {
	Text         string
	Model        string
	InputTokens  int64
	OutputTokens int64
}

// Completer is the vendor adapter behind an LLM client. Errors carrying an
// HTTP status should be returned as *StatusError.
type Completer interface {
	Complete(ctx context.Context, c Completion) (*Answer, error)
}

// AnswerCache stores raw answer text between runs.
type AnswerCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, answer string, ttl time.Duration) error
}

// Options configures an LLM client.
type Options struct {
	Model      string
	MaxTokens  int
	RatePerSec float64
	Burst      int
	Retry      resilience.RetryConfig
	Breaker    resilience.BreakerConfig
	Cache      AnswerCache
	CacheTTL   time.Duration
}

// LLM is the uniform Client used for every provider.
type LLM struct {
	name      string
	completer Completer
	opts      Options
	limiter   *AdaptiveLimiter
	breaker   *resilience.Breaker
}

// NewLLM wires a completer into a rate-limited, circuit-broken client.
func NewLLM(name string, completer Completer, opts Options) *LLM {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 1024
	}
	opts.Retry.ShouldRetry = retryable
	opts.Retry.OnRetry = resilience.RetryLogger(name)
	opts.Breaker.ShouldTrip = trips
	opts.Breaker.OnStateChange = func(from, to resilience.CircuitState) {
		zap.L().Warn("provider: circuit state change",
			zap.String("provider", name),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}

	return &LLM{
		name:      name,
		completer: completer,
		opts:      opts,
		limiter:   NewAdaptiveLimiter(name, opts.RatePerSec, opts.Burst),
		breaker:   resilience.NewBreaker(opts.Breaker),
	}
}

// Name returns the provider name.
func (l *LLM) Name() string {
	return l.name
}

// Query asks the provider and extracts mentions of the requested entities.
func (l *LLM) Query(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	key := CacheKey(l.name, l.opts.Model, req)

	if text, ok := l.cached(ctx, key); ok {
		return l.respond(req, &Answer{Text: text, Model: l.opts.Model}, true, start)
	}

	if err := l.limiter.Wait(ctx); err != nil {
		return nil, classify(l.name, eris.Wrap(err, "provider: rate limiter wait"))
	}

	completion := Completion{
		Model:     l.opts.Model,
		System:    systemPrompt + entityHint(req.Entities),
		User:      req.Prompt,
		MaxTokens: l.opts.MaxTokens,
	}

	ans, err := resilience.Call(ctx, l.breaker, func(ctx context.Context) (*Answer, error) {
		return resilience.Retry(ctx, l.opts.Retry, func(ctx context.Context) (*Answer, error) {
			return l.completer.Complete(ctx, completion)
		})
	})
	if err != nil {
		f := classify(l.name, err)
		if f.Kind == FailureRateLimited {
			l.limiter.OnRateLimit()
		}
		return nil, f
	}
	l.limiter.OnSuccess()

	resp, err := l.respond(req, ans, false, start)
	if err != nil {
		return nil, err
	}

	if l.opts.Cache != nil {
		if err := l.opts.Cache.Set(ctx, key, ans.Text, l.opts.CacheTTL); err != nil {
			zap.L().Warn("provider: cache write failed", zap.String("provider", l.name), zap.Error(err))
		}
	}
	return resp, nil
}

func (l *LLM) cached(ctx context.Context, key string) (string, bool) {
	if l.opts.Cache == nil {
		return "", false
	}
	text, ok, err := l.opts.Cache.Get(ctx, key)
	if err != nil {
		zap.L().Warn("provider: cache read failed", zap.String("provider", l.name), zap.Error(err))
		return "", false
	}
	return text, ok && strings.TrimSpace(text) != ""
}

func (l *LLM) respond(req Request, ans *Answer, fromCache bool, start time.Time) (*Response, error) {
	if ans == nil || strings.TrimSpace(ans.Text) == "" {
		return nil, &Failure{Kind: FailureInvalidResponse, Provider: l.name, Err: eris.New("provider: empty answer")}
	}

	modelName := ans.Model
	if modelName == "" {
		modelName = l.opts.Model
	}
	return &Response{
		Model:        modelName,
		Answer:       StripBrandBlock(ans.Text),
		Mentions:     Extract(ans.Text, req.Entities),
		FromCache:    fromCache,
		InputTokens:  ans.InputTokens,
		OutputTokens: ans.OutputTokens,
		Duration:     time.Since(start),
	}, nil
}

// CacheKey identifies an answer by provider, model, prompt and entity set.
func CacheKey(provider, modelName string, req Request) string {
	h := sha256.New()
	h.Write([]byte(req.Prompt))
	for _, e := range req.Entities {
		fmt.Fprintf(h, "\x00%s|%s", e.Name, e.Domain)
	}
	return provider + "|" + modelName + "|" + hex.EncodeToString(h.Sum(nil))
}

func entityHint(entities []Entity) string {
	if len(entities) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\nBrands of particular interest (include them in the block only if you mention them): ")
	for i, e := range entities {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(e.Name)
		if e.Domain != "" {
			b.WriteString(" (" + e.Domain + ")")
		}
	}
	b.WriteString(".")
	return b.String()
}
