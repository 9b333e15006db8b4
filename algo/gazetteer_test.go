package algo

import (
	"os"
	"path/filepath"
	"testing"

	"location-service/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func names(points []model.NamedPoint) []string {
	out := make([]string, 0, len(points))
	for _, p := range points {
		out = append(out, p.Name)
	}
	return out
}

func TestDefaultGazetteer(t *testing.T) {
	g := DefaultGazetteer()
	assert.Equal(t, 8, g.Len())

	p, err := g.Get("4")
	require.NoError(t, err)
	assert.Equal(t, "Sheraton Addis", p.Name)
	assert.Equal(t, model.CategoryHotel, p.Category)

	_, err = g.Get("99")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMatch(t *testing.T) {
	g := DefaultGazetteer()

	assert.Equal(t, []string{"Bole", "Bole Pharmacy"}, names(g.Match("Bole")))
	assert.Equal(t, []string{"Bole", "Bole Pharmacy"}, names(g.Match("bOLe")))
	assert.Equal(t, []string{"Bole Pharmacy", "St. Gabriel Pharmacy"}, names(g.Match("pharm")))
	assert.Empty(t, g.Match(""))
	assert.Empty(t, g.Match("   "))
	assert.Empty(t, g.Match("Piassa"))
}

func TestExact(t *testing.T) {
	g := DefaultGazetteer()

	p, ok := g.Exact("meskel square")
	require.True(t, ok)
	assert.Equal(t, "6", p.ID)

	_, ok = g.Exact("Meskel")
	assert.False(t, ok)
}

func TestOthersSkipsOrigin(t *testing.T) {
	g := DefaultGazetteer()
	bole, _ := g.Get("3")

	others := g.Others(bole.Coordinates)
	assert.Len(t, others, 7)
	assert.NotContains(t, names(others), "Bole")

	assert.Len(t, g.Others(model.Coordinates{Lat: 9.0, Lon: 38.0}), 8)
}

func TestNearest(t *testing.T) {
	g := DefaultGazetteer()
	p, dist, ok := g.Nearest(model.Coordinates{Lat: 8.9840, Lon: 38.7990})
	require.True(t, ok)
	assert.Equal(t, "Bole Pharmacy", p.Name)
	assert.Less(t, dist, 100.0)

	empty, err := NewGazetteer(nil)
	require.NoError(t, err)
	_, _, ok = empty.Nearest(model.Coordinates{})
	assert.False(t, ok)
}

func TestNewGazetteerRejectsBadEntries(t *testing.T) {
	_, err := NewGazetteer([]model.NamedPoint{
		{ID: "1", Name: "A", Coordinates: model.Coordinates{Lat: 1, Lon: 1}},
		{ID: "1", Name: "B", Coordinates: model.Coordinates{Lat: 2, Lon: 2}},
	})
	assert.ErrorContains(t, err, "duplicate gazetteer id")

	_, err = NewGazetteer([]model.NamedPoint{{ID: "1", Name: " "}})
	assert.Error(t, err)

	_, err = NewGazetteer([]model.NamedPoint{{ID: "1", Name: "X", Coordinates: model.Coordinates{Lat: 120}}})
	assert.Error(t, err)
}

func TestGazetteerIsImmutable(t *testing.T) {
	g := DefaultGazetteer()
	all := g.All()
	all[0].Name = "Changed"

	p, err := g.Get(all[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "Legehar", p.Name)
}

func TestLoadFromJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gazetteer.json")
	data := `{"meta":{"version":1},"points":[
		{"id":1,"name":"Piassa","lat":9.0330,"lon":38.7500,"type":"landmark"},
		{"id":"2","name":"Radisson Blu","lat":9.0160,"lon":38.7630,"type":"hotel"}
	]}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	g, err := LoadFromJSON(path)
	require.NoError(t, err)
	assert.Equal(t, 2, g.Len())

	p, err := g.Get("2")
	require.NoError(t, err)
	assert.Equal(t, model.CategoryHotel, p.Category)

	_, err = LoadFromJSON(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestBundledDataMatchesDefaults(t *testing.T) {
	g, err := LoadFromJSON(filepath.Join("..", "data", "addis_points.json"))
	require.NoError(t, err)
	assert.Equal(t, DefaultPoints(), g.All())
}
