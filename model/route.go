package model

import (
	"hash/fnv"
	"strconv"
)

// RoutePath 路由服务返回的原始路线
type RoutePath struct {
	DistanceMeters  float64       // 总距离 (米)
	DurationSeconds float64       // 总时间 (秒)
	Path            []Coordinates // 路线几何, 已转换为 (lat, lon)
}

// RouteResult 从起点到某个地名库地点的一条驾车路线
type RouteResult struct {
	DestinationID   string        `json:"destination_id"`
	DestinationName string        `json:"destination_name"`
	Origin          Coordinates   `json:"origin"`
	Destination     Coordinates   `json:"destination"`
	DistanceMeters  float64       `json:"distance_meters"`
	DurationSeconds float64       `json:"duration_seconds"`
	Path            []Coordinates `json:"path"`
	Color           string        `json:"color"`
}

// Palette 路线颜色表 (20 种可区分的颜色)
var Palette = [...]string{
	"#FF6633", "#FFB399", "#FF33FF", "#FFFF99", "#00B3E6",
	"#E6B333", "#3366E6", "#999966", "#99FF99", "#B34D4D",
	"#80B300", "#809900", "#E6B3B3", "#6680B3", "#66991A",
	"#FF99E6", "#CCFF1A", "#FF1A66", "#E6331A", "#33FFCC",
}

// ColorFor 根据目的地 ID 返回颜色, 同一个 ID 永远得到同一种颜色
// 数字 ID 直接取模; 非数字 ID 先做 FNV-1a 哈希
func ColorFor(id string) string {
	n := uint64(len(Palette))
	if v, err := strconv.ParseInt(id, 10, 64); err == nil {
		idx := v % int64(n)
		if idx < 0 {
			idx += int64(n)
		}
		return Palette[idx]
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(id))
	return Palette[h.Sum64()%n]
}
