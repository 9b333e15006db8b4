package algo

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"location-service/model"
	"location-service/utils"
)

// ErrNotFound 地点不存在
var ErrNotFound = errors.New("point not found")

// Gazetteer 固定的本地地名库, 创建后只读
type Gazetteer struct {
	points map[string]*model.NamedPoint // ID -> 地点
	list   []model.NamedPoint           // 保持原始顺序 (用于遍历)
}

// DefaultPoints 亚的斯亚贝巴内置地点
func DefaultPoints() []model.NamedPoint {
	return []model.NamedPoint{
		{ID: "1", Name: "Legehar", Coordinates: model.Coordinates{Lat: 9.0227, Lon: 38.7469}, Category: model.CategoryLandmark},
		{ID: "2", Name: "Cherkos", Coordinates: model.Coordinates{Lat: 9.0365, Lon: 38.7523}, Category: model.CategoryLandmark},
		{ID: "3", Name: "Bole", Coordinates: model.Coordinates{Lat: 8.9806, Lon: 38.7998}, Category: model.CategoryLandmark},
		{ID: "4", Name: "Sheraton Addis", Coordinates: model.Coordinates{Lat: 9.0104, Lon: 38.7575}, Category: model.CategoryHotel},
		{ID: "5", Name: "Bole Pharmacy", Coordinates: model.Coordinates{Lat: 8.9843, Lon: 38.7988}, Category: model.CategoryPharmacy},
		{ID: "6", Name: "Meskel Square", Coordinates: model.Coordinates{Lat: 9.0068, Lon: 38.7567}, Category: model.CategoryLandmark},
		{ID: "7", Name: "Hilton Hotel", Coordinates: model.Coordinates{Lat: 9.0245, Lon: 38.7632}, Category: model.CategoryHotel},
		{ID: "8", Name: "St. Gabriel Pharmacy", Coordinates: model.Coordinates{Lat: 9.0351, Lon: 38.7701}, Category: model.CategoryPharmacy},
	}
}

// NewGazetteer 根据地点列表创建地名库
func NewGazetteer(points []model.NamedPoint) (*Gazetteer, error) {
	g := &Gazetteer{
		points: make(map[string]*model.NamedPoint, len(points)),
		list:   make([]model.NamedPoint, 0, len(points)),
	}
	seen := make(map[string]struct{}, len(points))
	for _, p := range points {
		if p.ID == "" || strings.TrimSpace(p.Name) == "" {
			return nil, fmt.Errorf("invalid gazetteer entry %q: id and name are required", p.Name)
		}
		if !utils.ValidCoordinates(p.Coordinates) {
			return nil, fmt.Errorf("invalid coordinates for %q", p.Name)
		}
		if _, dup := seen[p.ID]; dup {
			return nil, fmt.Errorf("duplicate gazetteer id %q", p.ID)
		}
		seen[p.ID] = struct{}{}
		if p.Category == "" {
			p.Category = model.CategoryLandmark
		}
		p.External = false
		g.list = append(g.list, p)
	}
	for i := range g.list {
		g.points[g.list[i].ID] = &g.list[i]
	}
	return g, nil
}

// DefaultGazetteer 返回内置地名库
func DefaultGazetteer() *Gazetteer {
	g, err := NewGazetteer(DefaultPoints())
	if err != nil {
		panic(err)
	}
	return g
}

// gazetteerFile 地名库 JSON 文件格式
type gazetteerFile struct {
	Meta   map[string]interface{} `json:"meta"`
	Points []struct {
		ID   json.Number `json:"id"`
		Name string      `json:"name"`
		Lat  float64     `json:"lat"`
		Lon  float64     `json:"lon"`
		Type string      `json:"type"`
	} `json:"points"`
}

// LoadFromJSON 从 JSON 文件加载地名库
func LoadFromJSON(path string) (*Gazetteer, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read gazetteer file: %w", err)
	}
	points, err := ParsePoints(file)
	if err != nil {
		return nil, err
	}
	return NewGazetteer(points)
}

// ParsePoints 解析地名库 JSON
func ParsePoints(data []byte) ([]model.NamedPoint, error) {
	var f gazetteerFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse gazetteer file: %w", err)
	}
	points := make([]model.NamedPoint, 0, len(f.Points))
	for _, p := range f.Points {
		points = append(points, model.NamedPoint{
			ID:          p.ID.String(),
			Name:        p.Name,
			Coordinates: model.Coordinates{Lat: p.Lat, Lon: p.Lon},
			Category:    model.ParseCategory(p.Type),
		})
	}
	return points, nil
}

// All 返回全部地点的副本
func (g *Gazetteer) All() []model.NamedPoint {
	return append([]model.NamedPoint(nil), g.list...)
}

// Len 地点数量
func (g *Gazetteer) Len() int {
	return len(g.list)
}

// Get 根据 ID 获取地点
func (g *Gazetteer) Get(id string) (model.NamedPoint, error) {
	p, ok := g.points[id]
	if !ok {
		return model.NamedPoint{}, ErrNotFound
	}
	return *p, nil
}

// Match 名称包含查询词的地点 (不区分大小写), 空查询返回 nil
func (g *Gazetteer) Match(query string) []model.NamedPoint {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	var out []model.NamedPoint
	for _, p := range g.list {
		if strings.Contains(strings.ToLower(p.Name), q) {
			out = append(out, p)
		}
	}
	return out
}

// Exact 名称完全相同的地点 (不区分大小写)
func (g *Gazetteer) Exact(query string) (model.NamedPoint, bool) {
	q := strings.TrimSpace(query)
	if q == "" {
		return model.NamedPoint{}, false
	}
	for _, p := range g.list {
		if strings.EqualFold(p.Name, q) {
			return p, true
		}
	}
	return model.NamedPoint{}, false
}

// Others 除起点以外的所有地点 (坐标完全相等视为同一个点)
func (g *Gazetteer) Others(origin model.Coordinates) []model.NamedPoint {
	return excludeOrigin(g.list, origin)
}

// excludeOrigin 返回坐标不等于 origin 的地点 (新切片)
func excludeOrigin(points []model.NamedPoint, origin model.Coordinates) []model.NamedPoint {
	out := make([]model.NamedPoint, 0, len(points))
	for _, p := range points {
		if p.Coordinates.Equal(origin) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Nearest 找到离给定坐标最近的地点, 以及距离 (米)
func (g *Gazetteer) Nearest(c model.Coordinates) (model.NamedPoint, float64, bool) {
	var nearest *model.NamedPoint
	minDist := -1.0
	for i := range g.list {
		dist := utils.HaversineDistance(c, g.list[i].Coordinates)
		if minDist < 0 || dist < minDist {
			minDist = dist
			nearest = &g.list[i]
		}
	}
	if nearest == nil {
		return model.NamedPoint{}, 0, false
	}
	return *nearest, minDist, true
}
