package geo

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"location-service/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOptions(endpoint string) NominatimOptions {
	return NominatimOptions{
		Endpoint:     endpoint,
		RegionBias:   "Addis Ababa, Ethiopia",
		CountryCodes: "et",
		ViewBox:      "38.70,9.00,38.85,8.95",
		Limit:        5,
		Retries:      1,
		Timeout:      2 * time.Second,
	}
}

func TestNominatimSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "edna, Addis Ababa, Ethiopia", q.Get("q"))
		assert.Equal(t, "json", q.Get("format"))
		assert.Equal(t, "5", q.Get("limit"))
		assert.Equal(t, "et", q.Get("countrycodes"))
		assert.Equal(t, "1", q.Get("bounded"))
		assert.Equal(t, "38.70,9.00,38.85,8.95", q.Get("viewbox"))
		assert.Equal(t, "ops-test/1.0", r.Header.Get("User-Agent"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"place_id": 123456, "display_name": "Edna Mall, Cameroon Street, Bole, Addis Ababa", "lat": "8.9951", "lon": "38.7890"},
			{"place_id": "789", "display_name": "Edna Mall Parking, Addis Ababa", "lat": "8.9950", "lon": "38.7893"},
			{"place_id": 1, "display_name": "Broken", "lat": "n/a", "lon": "38.7"}
		]`))
	}))
	defer srv.Close()

	n := NewNominatim(testOptions(srv.URL+"/search"), Credentials{UserAgent: "ops-test/1.0"}, srv.Client())
	points, err := n.Search(context.Background(), "edna")
	require.NoError(t, err)
	require.Len(t, points, 2)

	assert.Equal(t, "123456", points[0].ID)
	assert.Equal(t, "Edna Mall", points[0].Name)
	assert.Equal(t, "Edna Mall, Cameroon Street, Bole, Addis Ababa", points[0].DisplayLabel)
	assert.Equal(t, model.Coordinates{Lat: 8.9951, Lon: 38.7890}, points[0].Coordinates)
	assert.Equal(t, model.CategorySearched, points[0].Category)
	assert.True(t, points[0].External)
	assert.Equal(t, "789", points[1].ID)
}

func TestNominatimEmptyQuerySkipsNetwork(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	n := NewNominatim(testOptions(srv.URL), Credentials{}, srv.Client())
	points, err := n.Search(context.Background(), "  ")
	require.NoError(t, err)
	assert.Empty(t, points)
	assert.Zero(t, calls.Load())
}

func TestNominatimServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "overloaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := NewNominatim(testOptions(srv.URL), Credentials{}, srv.Client())
	_, err := n.Search(context.Background(), "bole")
	require.Error(t, err)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusInternalServerError, se.StatusCode)
	assert.Equal(t, "overloaded", se.Body)
	// 500 不是瞬时错误, 不重试
	assert.Equal(t, int32(1), calls.Load())
}

func TestNominatimRetriesTruncatedJSON(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			_, _ = w.Write([]byte(`[{"place_id": 1, "display_na`))
			return
		}
		_, _ = w.Write([]byte(`[{"place_id": 1, "display_name": "Atlas, Addis Ababa", "lat": "9.0", "lon": "38.78"}]`))
	}))
	defer srv.Close()

	n := NewNominatim(testOptions(srv.URL), Credentials{}, srv.Client())
	points, err := n.Search(context.Background(), "atlas")
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, "Atlas", points[0].Name)
	assert.Equal(t, int32(2), calls.Load())
}

func TestNominatimCapsResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"place_id": 1, "display_name": "A", "lat": "9.0", "lon": "38.7"},
			{"place_id": 2, "display_name": "B", "lat": "9.0", "lon": "38.7"},
			{"place_id": 3, "display_name": "C", "lat": "9.0", "lon": "38.7"}
		]`))
	}))
	defer srv.Close()

	opts := testOptions(srv.URL)
	opts.Limit = 2
	points, err := NewNominatim(opts, Credentials{}, srv.Client()).Search(context.Background(), "x")
	require.NoError(t, err)
	assert.Len(t, points, 2)
}

func TestNominatimSearchURLWithoutViewBox(t *testing.T) {
	n := NewNominatim(NominatimOptions{Endpoint: "https://geo.example/search"}, Credentials{Email: "ops@example.com"}, nil)
	u, err := n.SearchURL("Piassa")
	require.NoError(t, err)
	assert.Contains(t, u, "q=Piassa")
	assert.Contains(t, u, "limit=5")
	assert.Contains(t, u, "email=ops%40example.com")
	assert.NotContains(t, u, "bounded")
}
