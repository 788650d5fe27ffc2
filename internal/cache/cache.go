// Package cache implements the Module Cache: a bounded LRU of
// engine-compiled modules keyed by Checksum, grounded on moby-moby's
// go.mod (hashicorp/golang-lru/v2 is part of its container runtime
// supply chain) and on the teacher's wasmrunner.go for the wazero
// runtime-construction idiom (shared runtimeCreateMu, memory-page
// limit threaded through wazero.RuntimeConfig).
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/golang-lru/v2"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/sandrolain/oraclewasm/internal/checksum"
	"github.com/sandrolain/oraclewasm/internal/config"
	"github.com/sandrolain/oraclewasm/internal/errs"
	"github.com/sandrolain/oraclewasm/internal/hostimport"
)

// runtimeCreateMu guards creation of the cache's wazero runtime,
// mirroring the teacher's package-level lock around
// wazero.NewRuntimeWithConfig.
var runtimeCreateMu sync.Mutex

// CachedModule is the engine-compiled form of a CanonicalModule: cheap
// to hand out by reference, owned by the Cache, never mutated after
// insertion.
type CachedModule struct {
	Compiled wazero.CompiledModule
	Checksum checksum.Checksum
}

// Stats reports cumulative hit/miss counts for a Cache.
type Stats struct {
	Hits   uint64
	Misses uint64
}

// Cache is a bounded, concurrency-safe LRU of CachedModules. Eviction is
// advisory from the caller's point of view: a cache miss simply
// recompiles, it never fails differently than a cold start would.
type Cache struct {
	cfg     config.RuntimeConfig
	rt      wazero.Runtime
	hostMod api.Module
	ctx     context.Context
	log     *slog.Logger
	lru     *lru.Cache[checksum.Checksum, *CachedModule]

	hits   atomic.Uint64
	misses atomic.Uint64
}

// New constructs a Cache with its own wazero runtime, configured with
// the memory-page limit from cfg exactly as the teacher's NewRunner
// configures its single runtime. The "env" host-import module is
// instantiated once here, against this runtime, since wazero allows
// only one module instance per name per runtime; every Run call
// against this Cache shares it, threading its own Environment through
// per-call context instead (see internal/hostimport).
func New(ctx context.Context, cfg config.RuntimeConfig, log *slog.Logger) (*Cache, error) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "module cache")

	runtimeConfig := wazero.NewRuntimeConfig()
	if cfg.MaxMemoryPages > 0 {
		runtimeConfig = runtimeConfig.WithMemoryLimitPages(cfg.MaxMemoryPages)
	}

	runtimeCreateMu.Lock()
	rt := wazero.NewRuntimeWithConfig(ctx, runtimeConfig)
	runtimeCreateMu.Unlock()

	hostMod, err := hostimport.Instantiate(ctx, rt, cfg.Gas)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, errs.NewInstantiationError(fmt.Sprintf("instantiating env host module: %v", err))
	}

	c := &Cache{cfg: cfg, rt: rt, hostMod: hostMod, ctx: ctx, log: log}

	evict := func(key checksum.Checksum, mod *CachedModule) {
		c.log.Debug("evicting cached module", "checksum", key.String())
		if mod != nil && mod.Compiled != nil {
			_ = mod.Compiled.Close(ctx)
		}
	}
	l, err := lru.NewWithEvict[checksum.Checksum, *CachedModule](cfg.CacheCapacity, evict)
	if err != nil {
		_ = hostMod.Close(ctx)
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("cache: constructing LRU of capacity %d: %w", cfg.CacheCapacity, err)
	}
	c.lru = l
	return c, nil
}

// GetInstance returns the CachedModule for canonical, compiling and
// gas-instrumenting it on a miss. hit reports which path was taken, for
// callers that want to log or assert on cache behavior (spec.md §8
// invariant 6, S7).
func (c *Cache) GetInstance(canonical []byte) (mod *CachedModule, hit bool, err error) {
	sum := checksum.Compute(canonical)

	if cached, ok := c.lru.Get(sum); ok {
		c.hits.Add(1)
		c.log.Debug("module cache hit", "checksum", sum.String())
		return cached, true, nil
	}

	c.misses.Add(1)
	c.log.Debug("module cache miss", "checksum", sum.String())

	metered, err := injectGasMetering(canonical, c.cfg.Gas)
	if err != nil {
		return nil, false, errs.NewInstantiationError(fmt.Sprintf("gas-checkpoint instrumentation: %v", err))
	}

	compiled, err := c.rt.CompileModule(c.ctx, metered)
	if err != nil {
		return nil, false, errs.NewInstantiationError(fmt.Sprintf("compiling metered module: %v", err))
	}

	cm := &CachedModule{Compiled: compiled, Checksum: sum}
	c.lru.Add(sum, cm)
	return cm, false, nil
}

// Stats returns a snapshot of cumulative hit/miss counters.
func (c *Cache) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}

// Len reports how many modules are currently retained.
func (c *Cache) Len() int { return c.lru.Len() }

// Runtime returns the wazero runtime every CachedModule was compiled
// against. The Runner instantiates each guest instance against this
// same runtime so import resolution against the Cache's single "env"
// host module succeeds.
func (c *Cache) Runtime() wazero.Runtime { return c.rt }

// GasSchedule returns the fee table host imports bill against.
func (c *Cache) GasSchedule() config.GasSchedule { return c.cfg.Gas }

// Close releases every retained CachedModule, the shared "env" host
// module, and the underlying wazero runtime.
func (c *Cache) Close() error {
	c.lru.Purge()
	_ = c.hostMod.Close(c.ctx)
	return c.rt.Close(c.ctx)
}
