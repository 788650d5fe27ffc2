package cache_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sandrolain/oraclewasm/internal/cache"
	"github.com/sandrolain/oraclewasm/internal/config"
	"github.com/sandrolain/oraclewasm/internal/wasmbin"
)

// canonicalModule returns a minimal, already-canonical-shaped module
// (single memory, prepare/execute exported, no imports) distinguished
// only by its initial memory size, so distinct inputs hash to distinct
// checksums.
func canonicalModule(t *testing.T, memPages uint32) []byte {
	t.Helper()
	m := &wasmbin.Module{
		Types:     []wasmbin.FuncType{{}},
		FuncTypes: []uint32{0, 0},
		Mems:      []wasmbin.Limits{{Min: memPages}},
		Exports: []wasmbin.Export{
			{Name: "prepare", Kind: wasmbin.KindFunc, Idx: 0},
			{Name: "execute", Kind: wasmbin.KindFunc, Idx: 1},
		},
		Code: []wasmbin.Code{
			{Body: []byte{wasmbin.OpEnd}},
			{Body: []byte{wasmbin.OpEnd}},
		},
	}
	return wasmbin.Encode(m)
}

// TestCacheLRUSequence is S7: capacity 2, access sequence
// [m1, m2, m3, m2, m1, m2, m3] must yield
// miss, miss, miss, hit, miss, hit, miss.
func TestCacheLRUSequence(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.CacheCapacity = 2

	c, err := cache.New(ctx, cfg, nil)
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	m1 := canonicalModule(t, 1)
	m2 := canonicalModule(t, 2)
	m3 := canonicalModule(t, 3)

	sequence := [][]byte{m1, m2, m3, m2, m1, m2, m3}
	wantHit := []bool{false, false, false, true, false, true, false}

	for i, m := range sequence {
		_, hit, err := c.GetInstance(m)
		require.NoError(t, err, "access %d", i)
		require.Equalf(t, wantHit[i], hit, "access %d", i)
	}

	require.Equal(t, 2, c.Len())
	stats := c.Stats()
	require.Equal(t, uint64(2), stats.Hits)
	require.Equal(t, uint64(5), stats.Misses)
}

func TestGetInstanceReturnsUsableModule(t *testing.T) {
	ctx := context.Background()
	c, err := cache.New(ctx, config.Default(), nil)
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	mod, hit, err := c.GetInstance(canonicalModule(t, 1))
	require.NoError(t, err)
	require.False(t, hit)
	require.NotNil(t, mod.Compiled)

	exports := mod.Compiled.ExportedFunctions()
	require.Contains(t, exports, "prepare")
	require.Contains(t, exports, "execute")
}
