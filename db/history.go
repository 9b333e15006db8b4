package db

import (
	"context"
	"strings"

	"location-service/model"

	"gorm.io/gorm"
)

// RecentQuery 最近的一条搜索记录
type RecentQuery struct {
	Query string   `json:"query"`
	Lat   *float64 `json:"lat,omitempty"`
	Lon   *float64 `json:"lon,omitempty"`
}

// HistoryStore 搜索历史
type HistoryStore struct {
	conn *gorm.DB
}

// NewHistoryStore 创建搜索历史存储
func NewHistoryStore(conn *gorm.DB) *HistoryStore {
	return &HistoryStore{conn: conn}
}

// Record 记录一次搜索, coords 可为 nil
func (h *HistoryStore) Record(ctx context.Context, query string, coords *model.Coordinates) error {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	row := model.SearchHistory{Query: query}
	if coords != nil {
		lat, lon := coords.Lat, coords.Lon
		row.Lat, row.Lon = &lat, &lon
	}
	return h.conn.WithContext(ctx).Create(&row).Error
}

// Recent 返回去重后的最近查询 (每个查询取最新一条), 最新的在前
func (h *HistoryStore) Recent(ctx context.Context, limit int) ([]RecentQuery, error) {
	if limit <= 0 || limit > 200 {
		limit = 10
	}
	var rows []model.SearchHistory
	err := recentQuery(h.conn.WithContext(ctx), limit).Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]RecentQuery, 0, len(rows))
	for _, r := range rows {
		out = append(out, RecentQuery{Query: r.Query, Lat: r.Lat, Lon: r.Lon})
	}
	return out, nil
}

// recentQuery 每个查询词取 id 最大 (最新) 的一行, 按 id 倒序
func recentQuery(tx *gorm.DB, limit int) *gorm.DB {
	latest := tx.Session(&gorm.Session{NewDB: true}).
		Model(&model.SearchHistory{}).
		Select("MAX(id)").
		Where("query <> ''").
		Group("query")
	return tx.Model(&model.SearchHistory{}).
		Where("id IN (?)", latest).
		Order("id DESC").
		Limit(limit)
}
