package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeL2 struct {
	store map[string]string
	gets  int
	err   error
}

func newFakeL2() *fakeL2 { return &fakeL2{store: make(map[string]string)} }

func (f *fakeL2) Get(ctx context.Context, key string) (string, bool, error) {
	f.gets++
	if f.err != nil {
		return "", false, f.err
	}
	v, ok := f.store[key]
	return v, ok, nil
}

func (f *fakeL2) Set(ctx context.Context, key string, value string) error {
	f.store[key] = value
	return nil
}

func (f *fakeL2) Invalidate(ctx context.Context, key string) error {
	delete(f.store, key)
	return nil
}

func TestTieredFallsBackToL2OnL1Miss(t *testing.T) {
	l2 := newFakeL2()
	l2.store["k"] = "remote"
	tiered := NewTiered(New[string](10, time.Hour), l2)

	v, ok := tiered.Get(context.Background(), "k")
	require.True(t, ok)
	assert.Equal(t, "remote", v)

	gets := l2.gets
	v, ok = tiered.Get(context.Background(), "k")
	require.True(t, ok)
	assert.Equal(t, "remote", v)
	assert.Equal(t, gets, l2.gets, "L1 should now serve this key without consulting L2 again")
}

func TestTieredWithNilL2BehavesLikeL1Only(t *testing.T) {
	tiered := NewTiered[string](New[string](10, time.Hour), nil)

	_, ok := tiered.Get(context.Background(), "missing")
	assert.False(t, ok)

	tiered.Set(context.Background(), "k", "v")
	v, ok := tiered.Get(context.Background(), "k")
	require.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestTieredL2ErrorTreatedAsMiss(t *testing.T) {
	l2 := newFakeL2()
	l2.err = errors.New("boom")
	tiered := NewTiered(New[string](10, time.Hour), l2)

	_, ok := tiered.Get(context.Background(), "k")
	assert.False(t, ok)
}

func TestTieredInvalidateClearsBothTiers(t *testing.T) {
	l2 := newFakeL2()
	tiered := NewTiered(New[string](10, time.Hour), l2)
	tiered.Set(context.Background(), "k", "v")

	tiered.Invalidate(context.Background(), "k")

	_, ok := tiered.l1.Get("k")
	assert.False(t, ok)
	_, ok = l2.store["k"]
	assert.False(t, ok)
}

func TestTieredWithL2AttachesTierAfterConstruction(t *testing.T) {
	l2 := newFakeL2()
	l2.store["k"] = "remote"
	tiered := NewTiered[string](New[string](10, time.Hour), nil).WithL2(l2)

	v, ok := tiered.Get(context.Background(), "k")
	require.True(t, ok)
	assert.Equal(t, "remote", v)
}
