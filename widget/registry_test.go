package widget

import (
	"testing"
	"time"

	"location-service/algo"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFactory() Factory {
	g := algo.DefaultGazetteer()
	agg := algo.NewAggregator(&fakeRouter{}, 0)
	return func(id string) *Session {
		return NewSession(id, g, &fakeGeocoder{}, agg, Options{Debounce: testDebounce})
	}
}

func TestRegistryLifecycle(t *testing.T) {
	r := NewRegistry(time.Minute, testFactory())
	defer r.Stop()

	s, err := r.Create()
	require.NoError(t, err)
	require.NotEmpty(t, s.ID())
	assert.Equal(t, 1, r.Len())

	got, ok := r.Get(s.ID())
	require.True(t, ok)
	assert.Same(t, s, got)

	other, err := r.Create()
	require.NoError(t, err)
	assert.NotEqual(t, s.ID(), other.ID())

	assert.True(t, r.Delete(s.ID()))
	assert.False(t, r.Delete(s.ID()))
	_, ok = r.Get(s.ID())
	assert.False(t, ok)
	assert.Equal(t, 1, r.Len())
}

func TestRegistryPrune(t *testing.T) {
	r := NewRegistry(time.Minute, testFactory())
	defer r.Stop()

	first, err := r.Create()
	require.NoError(t, err)
	second, err := r.Create()
	require.NoError(t, err)

	assert.Zero(t, r.Prune(time.Now()))
	assert.Equal(t, 2, r.Prune(time.Now().Add(2*time.Minute)))
	_, ok := r.Get(first.ID())
	assert.False(t, ok)
	_, ok = r.Get(second.ID())
	assert.False(t, ok)
}

func TestRegistryWithoutTTLNeverPrunes(t *testing.T) {
	r := NewRegistry(0, testFactory())
	_, _ = r.Create()
	assert.Zero(t, r.Prune(time.Now().Add(24*time.Hour)))
	r.Stop()
	assert.Zero(t, r.Len())
}

func TestRegistryJanitor(t *testing.T) {
	r := NewRegistry(10*time.Millisecond, testFactory())
	defer r.Stop()
	_, _ = r.Create()
	r.StartJanitor(5 * time.Millisecond)

	require.Eventually(t, func() bool { return r.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestRegistryRejectsCreateAfterStop(t *testing.T) {
	r := NewRegistry(time.Minute, testFactory())
	_, err := r.Create()
	require.NoError(t, err)

	r.Stop()
	assert.Zero(t, r.Len())

	s, err := r.Create()
	assert.ErrorIs(t, err, ErrRegistryStopped)
	assert.Nil(t, s)
	assert.Zero(t, r.Len())
}
