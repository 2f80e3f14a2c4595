package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/kbukum/opkit/llm"
	"github.com/kbukum/opkit/logger"
)

type cachedProvider struct {
	inner llm.Provider
	store *TypedStore[llm.CompletionResponse]
	ttl   time.Duration
	log   *logger.Logger
}

// Provider wraps inner with a read-through completion cache. Identical
// requests to the same provider are answered from store. Cache errors are
// logged and never fail the call.
func Provider(inner llm.Provider, store *TypedStore[llm.CompletionResponse], ttl time.Duration, log *logger.Logger) llm.Provider {
	if log == nil {
		log = logger.Nop()
	}
	return &cachedProvider{inner: inner, store: store, ttl: ttl, log: log.WithComponent("cache")}
}

func (p *cachedProvider) Name() string { return p.inner.Name() }

func (p *cachedProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	key, err := Key(p.inner.Name(), req)
	if err != nil {
		return p.inner.Complete(ctx, req)
	}

	cached, err := p.store.Load(ctx, key)
	switch {
	case err != nil:
		p.log.WithContext(ctx).Warn("Completion cache read failed", logger.ErrorFields("cache.load", err))
	case cached != nil:
		p.log.WithContext(ctx).Debug("Completion cache hit", map[string]interface{}{"key": key})
		return cached, nil
	}

	resp, err := p.inner.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := p.store.Save(ctx, key, resp, p.ttl); err != nil {
		p.log.WithContext(ctx).Warn("Completion cache write failed", logger.ErrorFields("cache.save", err))
	}
	return resp, nil
}

// Key derives the cache key of req sent to the named provider.
func Key(provider string, req llm.CompletionRequest) (string, error) {
	data, err := json.Marshal(struct {
		Provider string                `json:"provider"`
		Request  llm.CompletionRequest `json:"request"`
	}{provider, req})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
