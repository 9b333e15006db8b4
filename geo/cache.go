package geo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"location-service/model"
	"location-service/pkg/logger"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "modernc.org/sqlite"
)

// Geocoder 地理编码服务
type Geocoder interface {
	Search(ctx context.Context, query string) ([]model.NamedPoint, error)
}

// CachedGeocoder 两级缓存: 内存 LRU + SQLite 磁盘缓存 (永久保留).
// 只缓存成功的查询 (包括空结果), 失败不缓存.
type CachedGeocoder struct {
	next   Geocoder
	memory *lru.Cache[string, []model.NamedPoint]
	db     *sql.DB // 可为 nil, 表示只用内存缓存
}

// NewCachedGeocoder 创建缓存层. dir 为空时不启用磁盘缓存.
func NewCachedGeocoder(next Geocoder, dir string, memoryEntries int) (*CachedGeocoder, error) {
	if memoryEntries <= 0 {
		memoryEntries = 512
	}
	mem, err := lru.New[string, []model.NamedPoint](memoryEntries)
	if err != nil {
		return nil, fmt.Errorf("create geocode memory cache: %w", err)
	}
	c := &CachedGeocoder{next: next, memory: mem}
	if dir == "" {
		return c, nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	db, err := sql.Open("sqlite", filepath.Join(dir, "geocode.sqlite"))
	if err != nil {
		return nil, fmt.Errorf("geocode cache open failed: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS geocode_cache (
		query TEXT PRIMARY KEY,
		json  TEXT NOT NULL,
		fetched_at TIMESTAMP NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("geocode cache schema error: %w", err)
	}
	_, _ = db.Exec(`CREATE INDEX IF NOT EXISTS idx_geocode_cache_fetched_at ON geocode_cache(fetched_at)`)
	c.db = db
	return c, nil
}

// Search 先查缓存, 未命中时调用下游并写入缓存
func (c *CachedGeocoder) Search(ctx context.Context, query string) ([]model.NamedPoint, error) {
	key := cacheKey(query)
	if key == "" {
		return nil, nil
	}
	if v, ok := c.memory.Get(key); ok {
		return clonePoints(v), nil
	}
	if v, ok := c.loadDisk(ctx, key); ok {
		c.memory.Add(key, v)
		return clonePoints(v), nil
	}

	points, err := c.next.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	if points == nil {
		points = []model.NamedPoint{}
	}
	c.memory.Add(key, clonePoints(points))
	c.storeDisk(ctx, key, points)
	return points, nil
}

// Close 关闭磁盘缓存
func (c *CachedGeocoder) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

func (c *CachedGeocoder) loadDisk(ctx context.Context, key string) ([]model.NamedPoint, bool) {
	if c.db == nil {
		return nil, false
	}
	var raw string
	err := c.db.QueryRowContext(ctx, `SELECT json FROM geocode_cache WHERE query = ?`, key).Scan(&raw)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			logger.Error("geocode cache read failed for %q: %v", key, err)
		}
		return nil, false
	}
	var points []model.NamedPoint
	if err := json.Unmarshal([]byte(raw), &points); err != nil {
		logger.Error("geocode cache unmarshal failed for %q: %v (ignoring)", key, err)
		return nil, false
	}
	return points, true
}

func (c *CachedGeocoder) storeDisk(ctx context.Context, key string, points []model.NamedPoint) {
	if c.db == nil {
		return
	}
	b, err := json.Marshal(points)
	if err != nil {
		return
	}
	if _, err := c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO geocode_cache(query, json, fetched_at) VALUES(?,?,CURRENT_TIMESTAMP)`,
		key, string(b)); err != nil {
		logger.Error("geocode cache write failed for %q: %v", key, err)
	}
}

func cacheKey(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}

func clonePoints(in []model.NamedPoint) []model.NamedPoint {
	return append([]model.NamedPoint{}, in...)
}
