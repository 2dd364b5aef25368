package plugin

import (
	"context"
	"log/slog"
	"sync"
	"time"

	cidxerrors "github.com/cidx-dev/cidx/internal/errors"
)

// DefaultLoadTimeout bounds plugin instantiation; a factory that takes
// longer marks its language sticky-unavailable for the process lifetime.
const DefaultLoadTimeout = 5 * time.Second

// registration is one language's registered factory plus its advertised
// capability vector.
type registration struct {
	language   string
	capability Capability
	factory    Factory
}

// Registry discovers available plugins, instantiates them lazily on
// first request for a language, and caches the resulting instance.
// Instantiation that exceeds LoadTimeout marks the language sticky-
// unavailable for the remaining process lifetime.
type Registry struct {
	mu      sync.Mutex
	regs    map[string]registration
	loaded  map[string]Plugin
	failed  map[string]struct{}
	order   []string // registration order, for deterministic iteration
	timeout time.Duration
}

// NewRegistry returns an empty Registry with the default load timeout.
func NewRegistry() *Registry {
	return &Registry{
		regs:    make(map[string]registration),
		loaded:  make(map[string]Plugin),
		failed:  make(map[string]struct{}),
		timeout: DefaultLoadTimeout,
	}
}

// WithLoadTimeout overrides the bounded instantiation timeout.
func (r *Registry) WithLoadTimeout(d time.Duration) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timeout = d
	return r
}

// Register adds a plugin factory for a language. Idempotent: a second
// call for the same language replaces the prior registration and clears
// any cached instance or sticky-unavailable mark, so operators can
// re-register after fixing a misconfigured plugin.
func (r *Registry) Register(language string, capability Capability, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.regs[language]; !exists {
		r.order = append(r.order, language)
	}
	r.regs[language] = registration{language: language, capability: capability, factory: factory}
	delete(r.loaded, language)
	delete(r.failed, language)
}

// Languages returns every registered language in registration order.
func (r *Registry) Languages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Capability returns the advertised capability vector for a language.
func (r *Registry) Capability(language string) (Capability, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.regs[language]
	return reg.capability, ok
}

// Unavailable reports whether a language was previously marked
// sticky-unavailable due to a load timeout or error.
func (r *Registry) Unavailable(language string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.failed[language]
	return ok
}

// Ensure instantiates the plugin for language if not already loaded,
// enforcing the bounded load timeout. Returns (nil, PluginUnavailable)
// if the language is unregistered, was previously sticky-unavailable,
// or this attempt times out or errors.
func (r *Registry) Ensure(ctx context.Context, language string) (Plugin, error) {
	r.mu.Lock()
	if p, ok := r.loaded[language]; ok {
		r.mu.Unlock()
		return p, nil
	}
	if _, failed := r.failed[language]; failed {
		r.mu.Unlock()
		return nil, cidxerrors.NewKind(cidxerrors.KindPluginUnavailable, "plugin for language "+language+" is sticky-unavailable", nil)
	}
	reg, ok := r.regs[language]
	timeout := r.timeout
	r.mu.Unlock()

	if !ok {
		return nil, cidxerrors.NewKind(cidxerrors.KindPluginUnavailable, "no plugin registered for language "+language, nil)
	}

	loadCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		plugin Plugin
		err    error
	}
	ch := make(chan result, 1)
	go func() {
		p, err := reg.factory(loadCtx)
		ch <- result{plugin: p, err: err}
	}()

	select {
	case <-loadCtx.Done():
		r.markFailed(language)
		slog.Warn("plugin_load_timeout", slog.String("language", language), slog.Duration("timeout", timeout))
		return nil, cidxerrors.NewKind(cidxerrors.KindTimeout, "plugin load for "+language+" exceeded timeout", loadCtx.Err())
	case res := <-ch:
		if res.err != nil {
			r.markFailed(language)
			slog.Warn("plugin_load_failed", slog.String("language", language), slog.String("error", res.err.Error()))
			return nil, cidxerrors.NewKind(cidxerrors.KindPluginUnavailable, "plugin load failed for "+language, res.err)
		}
		r.mu.Lock()
		r.loaded[language] = res.plugin
		r.mu.Unlock()
		return res.plugin, nil
	}
}

func (r *Registry) markFailed(language string) {
	r.mu.Lock()
	r.failed[language] = struct{}{}
	r.mu.Unlock()
}

// Reprobe clears a sticky-unavailable mark for a language so the next
// Ensure call retries instantiation. This is never invoked automatically
// — it is an operator-facing escape hatch from a state that otherwise
// persists for the rest of the process lifetime.
func (r *Registry) Reprobe(language string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.failed, language)
}

// LoadAll eagerly instantiates every registered language, bounded by
// each plugin's own load timeout, and returns the set that succeeded.
// Used by the dispatcher when it needs the full plugin set (lazy mode
// with no plugins loaded yet).
func (r *Registry) LoadAll(ctx context.Context) map[string]Plugin {
	langs := r.Languages()
	out := make(map[string]Plugin, len(langs))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, lang := range langs {
		lang := lang
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := r.Ensure(ctx, lang)
			if err != nil {
				return
			}
			mu.Lock()
			out[lang] = p
			mu.Unlock()
		}()
	}
	wg.Wait()
	return out
}

// Loaded returns a snapshot of every currently-instantiated plugin.
func (r *Registry) Loaded() map[string]Plugin {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]Plugin, len(r.loaded))
	for k, v := range r.loaded {
		out[k] = v
	}
	return out
}
