package model

import "strings"

// Coordinates 代表一个经纬度点 (WGS84)
type Coordinates struct {
	Lat float64 `json:"lat"` // 纬度
	Lon float64 `json:"lon"` // 经度
}

// Equal 坐标完全相等 (用于起点自匹配判断)
func (c Coordinates) Equal(o Coordinates) bool {
	return c.Lat == o.Lat && c.Lon == o.Lon
}

// Category 地点类别
type Category string

const (
	CategoryLandmark Category = "landmark"
	CategoryHotel    Category = "hotel"
	CategoryPharmacy Category = "pharmacy"
	CategorySearched Category = "searched"
)

// ParseCategory 将字符串转换为类别, 未知值视为 landmark
func ParseCategory(s string) Category {
	switch Category(strings.ToLower(strings.TrimSpace(s))) {
	case CategoryHotel:
		return CategoryHotel
	case CategoryPharmacy:
		return CategoryPharmacy
	case CategorySearched:
		return CategorySearched
	default:
		return CategoryLandmark
	}
}

// NamedPoint 对应地图上的一个点 (地名库条目或地理编码结果)
type NamedPoint struct {
	ID           string      `json:"id" gorm:"primaryKey"`
	Name         string      `json:"name" gorm:"index"`
	Coordinates  Coordinates `json:"coordinates" gorm:"embedded"`
	Category     Category    `json:"category" gorm:"index"`
	DisplayLabel string      `json:"display_label,omitempty"` // 地理编码返回的完整名称
	External     bool        `json:"external,omitempty" gorm:"-"`
	Seq          uint        `json:"-" gorm:"autoIncrement;index"` // 写入顺序, 用于按种子顺序读回
}

// TableName gorm 表名
func (NamedPoint) TableName() string {
	return "named_points"
}
