package widget

import (
	"fmt"
	"math"

	"location-service/algo"
	"location-service/model"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// 标记图标
const (
	IconHotel    = "https://cdn-icons-png.flaticon.com/512/739/739278.png"
	IconPharmacy = "https://cdn-icons-png.flaticon.com/512/806/806032.png"
	IconLandmark = "https://cdn-icons-png.flaticon.com/512/684/684908.png"
	IconSearched = "https://cdn-icons-png.flaticon.com/512/1671/1671069.png"
)

// LatLng 前端地图库使用的 [lat, lng]
type LatLng [2]float64

func toLatLng(c model.Coordinates) LatLng {
	return LatLng{c.Lat, c.Lon}
}

// Popup 标记弹窗内容
type Popup struct {
	Title      string `json:"title"`
	Subtitle   string `json:"subtitle"`
	Distance   string `json:"distance,omitempty"`    // 如 "6.12 km"
	TravelTime string `json:"travel_time,omitempty"` // 如 "12 min"
	Note       string `json:"note,omitempty"`
}

// Marker 地图标记
type Marker struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Position LatLng         `json:"position"`
	Category model.Category `json:"category"`
	Icon     string         `json:"icon"`
	IconSize int            `json:"icon_size"`
	Popup    Popup          `json:"popup"`
}

// Polyline 路线折线
type Polyline struct {
	DestinationID string   `json:"destination_id"`
	Color         string   `json:"color"`
	Weight        int      `json:"weight"`
	Opacity       float64  `json:"opacity"`
	Positions     []LatLng `json:"positions"`
}

// LegendEntry 路线颜色图例
type LegendEntry struct {
	Color string `json:"color"`
	Name  string `json:"name"`
}

// MapView 地图渲染所需的全部数据
type MapView struct {
	Center    LatLng        `json:"center"`
	Zoom      int           `json:"zoom"`
	Markers   []Marker      `json:"markers"`
	Searched  *Marker       `json:"searched,omitempty"`
	Polylines []Polyline    `json:"polylines"`
	Legend    []LegendEntry `json:"legend"`
	Loading   bool          `json:"loading"`
	Message   string        `json:"message,omitempty"` // 加载提示
	Error     string        `json:"error,omitempty"`
}

// IconFor 根据类别选择图标
func IconFor(c model.Category) (string, int) {
	switch c {
	case model.CategoryHotel:
		return IconHotel, 30
	case model.CategoryPharmacy:
		return IconPharmacy, 30
	case model.CategorySearched:
		return IconSearched, 35
	default:
		return IconLandmark, 30
	}
}

// FormatDistance 米 -> "x.xx km"
func FormatDistance(meters float64) string {
	return fmt.Sprintf("%.2f km", meters/1000)
}

// FormatDuration 秒 -> "n min" (四舍五入)
func FormatDuration(seconds float64) string {
	return fmt.Sprintf("%d min", int(math.Round(seconds/60)))
}

// BuildMapView 根据会话状态生成地图数据
func BuildMapView(st State, g *algo.Gazetteer) MapView {
	view := MapView{
		Center:    toLatLng(st.View.Center),
		Zoom:      st.View.Zoom,
		Markers:   []Marker{},
		Polylines: []Polyline{},
		Legend:    []LegendEntry{},
		Loading:   st.Loading || st.Geocoding || st.Searching,
		Error:     st.Error,
	}
	switch {
	case st.Geocoding || st.Searching:
		view.Message = "Searching locations..."
	case st.Loading:
		view.Message = "Calculating routes..."
	}

	routes := make(map[string]model.RouteResult, len(st.Routes))
	for _, r := range st.Routes {
		routes[r.DestinationID] = r
	}

	for _, p := range g.All() {
		if st.Searched != nil && p.Coordinates.Equal(st.Searched.Coordinates) {
			continue
		}
		icon, size := IconFor(p.Category)
		m := Marker{
			ID:       p.ID,
			Name:     p.Name,
			Position: toLatLng(p.Coordinates),
			Category: p.Category,
			Icon:     icon,
			IconSize: size,
			Popup:    Popup{Title: p.Name, Subtitle: string(p.Category)},
		}
		if r, ok := routes[p.ID]; ok && st.Searched != nil {
			m.Popup.Distance = FormatDistance(r.DistanceMeters)
			m.Popup.TravelTime = FormatDuration(r.DurationSeconds)
		}
		view.Markers = append(view.Markers, m)
	}

	if st.Searched != nil {
		icon, size := IconFor(st.Searched.Category)
		m := &Marker{
			ID:       st.Searched.ID,
			Name:     st.Searched.Name,
			Position: toLatLng(st.Searched.Coordinates),
			Category: st.Searched.Category,
			Icon:     icon,
			IconSize: size,
			Popup:    Popup{Title: st.Searched.Name, Subtitle: "(Your Location)"},
		}
		if st.Searched.External {
			m.Popup.Note = "Search provided by OpenStreetMap"
		}
		view.Searched = m
	}

	for _, r := range st.Routes {
		positions := make([]LatLng, 0, len(r.Path))
		for _, c := range r.Path {
			positions = append(positions, toLatLng(c))
		}
		view.Polylines = append(view.Polylines, Polyline{
			DestinationID: r.DestinationID,
			Color:         r.Color,
			Weight:        4,
			Opacity:       0.8,
			Positions:     positions,
		})
		view.Legend = append(view.Legend, LegendEntry{Color: r.Color, Name: r.DestinationName})
	}
	return view
}

// GeoJSON 导出标记和路线 (GeoJSON 坐标顺序为 lon, lat)
func (v MapView) GeoJSON() ([]byte, error) {
	fc := geojson.NewFeatureCollection()

	addMarker := func(m Marker, searched bool) {
		f := geojson.NewFeature(orb.Point{m.Position[1], m.Position[0]})
		f.Properties["id"] = m.ID
		f.Properties["name"] = m.Name
		f.Properties["category"] = string(m.Category)
		f.Properties["searched"] = searched
		if m.Popup.Distance != "" {
			f.Properties["distance"] = m.Popup.Distance
			f.Properties["travel_time"] = m.Popup.TravelTime
		}
		fc.Append(f)
	}
	for _, m := range v.Markers {
		addMarker(m, false)
	}
	if v.Searched != nil {
		addMarker(*v.Searched, true)
	}

	for _, p := range v.Polylines {
		line := make(orb.LineString, 0, len(p.Positions))
		for _, pos := range p.Positions {
			line = append(line, orb.Point{pos[1], pos[0]})
		}
		f := geojson.NewFeature(line)
		f.Properties["destination_id"] = p.DestinationID
		f.Properties["stroke"] = p.Color
		f.Properties["stroke-width"] = p.Weight
		f.Properties["stroke-opacity"] = p.Opacity
		fc.Append(f)
	}
	return fc.MarshalJSON()
}
