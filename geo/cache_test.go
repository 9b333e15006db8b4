package geo

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"location-service/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingGeocoder struct {
	calls  atomic.Int32
	err    error
	points []model.NamedPoint
}

func (c *countingGeocoder) Search(ctx context.Context, query string) ([]model.NamedPoint, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return c.points, nil
}

var edna = model.NamedPoint{
	ID: "123", Name: "Edna Mall", Category: model.CategorySearched, External: true,
	Coordinates: model.Coordinates{Lat: 8.9951, Lon: 38.789},
}

func TestCachedGeocoderMemory(t *testing.T) {
	next := &countingGeocoder{points: []model.NamedPoint{edna}}
	c, err := NewCachedGeocoder(next, "", 8)
	require.NoError(t, err)

	for _, q := range []string{"Edna", "edna ", "EDNA"} {
		points, err := c.Search(context.Background(), q)
		require.NoError(t, err)
		assert.Equal(t, []model.NamedPoint{edna}, points)
	}
	assert.Equal(t, int32(1), next.calls.Load())
	require.NoError(t, c.Close())
}

func TestCachedGeocoderDiskSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	next := &countingGeocoder{points: []model.NamedPoint{edna}}

	c1, err := NewCachedGeocoder(next, dir, 8)
	require.NoError(t, err)
	_, err = c1.Search(context.Background(), "edna")
	require.NoError(t, err)
	require.NoError(t, c1.Close())

	c2, err := NewCachedGeocoder(next, dir, 8)
	require.NoError(t, err)
	defer c2.Close()
	points, err := c2.Search(context.Background(), "edna")
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.True(t, points[0].External)
	assert.Equal(t, "Edna Mall", points[0].Name)
	assert.Equal(t, int32(1), next.calls.Load())
}

func TestCachedGeocoderSkipsFailures(t *testing.T) {
	next := &countingGeocoder{err: errors.New("down")}
	c, err := NewCachedGeocoder(next, t.TempDir(), 8)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Search(context.Background(), "bole")
	require.Error(t, err)
	_, err = c.Search(context.Background(), "bole")
	require.Error(t, err)
	assert.Equal(t, int32(2), next.calls.Load())
}

func TestCachedGeocoderCachesEmptyResults(t *testing.T) {
	next := &countingGeocoder{}
	c, err := NewCachedGeocoder(next, "", 8)
	require.NoError(t, err)

	points, err := c.Search(context.Background(), "nowhere")
	require.NoError(t, err)
	assert.Empty(t, points)
	_, _ = c.Search(context.Background(), "nowhere")
	assert.Equal(t, int32(1), next.calls.Load())

	points, err = c.Search(context.Background(), " ")
	require.NoError(t, err)
	assert.Nil(t, points)
}
