// Package cache stores model completions in Redis so that identical
// requests are answered without calling the provider again.
//
// The Client wraps go-redis with opkit logging and health reporting.
// TypedStore keeps JSON-encoded values under a key prefix, and Provider
// wraps an llm.Provider with a read-through completion cache:
//
//	client, err := cache.New(cfg, log)
//	store := cache.NewTypedStore[llm.CompletionResponse](client, cfg.KeyPrefix)
//	p := cache.Provider(upstream, store, cfg.TTLDuration(), log)
package cache
