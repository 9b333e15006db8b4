package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"location-service/algo"
	"location-service/db"
	"location-service/model"
	"location-service/pkg/logger"
	"location-service/utils"
	"location-service/widget"

	"github.com/gin-gonic/gin"
)

// API 地点搜索与路线接口
type API struct {
	Gazetteer     *algo.Gazetteer
	Geocoder      widget.Geocoder
	Aggregator    *algo.Aggregator
	Sessions      *widget.Registry
	History       *db.HistoryStore // 未启用数据库时为 nil
	LookupTimeout time.Duration
	RouteTimeout  time.Duration
}

// RouteRequest 路线请求: 指定地名库 ID 或坐标
type RouteRequest struct {
	PointID string   `json:"point_id"`
	Lat     *float64 `json:"lat"`
	Lon     *float64 `json:"lon"`
}

// GetPoints 获取地名库全部地点
func (a *API) GetPoints(c *gin.Context) {
	points := a.Gazetteer.All()
	c.JSON(http.StatusOK, gin.H{
		"count":  len(points),
		"points": points,
	})
}

// GetPointByID 根据 ID 获取地点
func (a *API) GetPointByID(c *gin.Context) {
	p, err := a.Gazetteer.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "point not found"})
		return
	}
	c.JSON(http.StatusOK, p)
}

// NearestPoint 找到离给定坐标最近的地点
func (a *API) NearestPoint(c *gin.Context) {
	coords, ok := parseCoordinates(c.Query("lat"), c.Query("lon"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid lat/lon"})
		return
	}
	p, dist, found := a.Gazetteer.Nearest(coords)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "gazetteer is empty"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"point":           p,
		"distance_meters": dist,
	})
}

// Suggest 一次性的建议查询 (不做防抖): 本地匹配 + 地理编码
func (a *API) Suggest(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		c.JSON(http.StatusOK, gin.H{"query": "", "suggestions": []model.NamedPoint{}})
		return
	}

	local := a.Gazetteer.Match(q)
	ctx, cancel := withTimeout(c.Request.Context(), a.LookupTimeout)
	defer cancel()

	external, err := a.Geocoder.Search(ctx, q)
	if err != nil {
		logger.Error("/api/suggest geocoding %q failed: %v", q, err)
		c.JSON(http.StatusOK, gin.H{
			"query":       q,
			"suggestions": nonNil(local),
			"error":       widget.MsgGeocodeFailed,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"query":       q,
		"suggestions": algo.MergeSuggestions(local, external),
	})
}

// Search 搜索按钮: 精确匹配本地地名库, 否则取地理编码第一条
func (a *API) Search(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing query"})
		return
	}

	if p, ok := a.Gazetteer.Exact(q); ok {
		a.record(c.Request.Context(), q, p)
		c.JSON(http.StatusOK, gin.H{"point": p})
		return
	}

	ctx, cancel := withTimeout(c.Request.Context(), a.LookupTimeout)
	defer cancel()
	points, err := a.Geocoder.Search(ctx, q)
	if err != nil {
		logger.Error("/api/search %q failed: %v", q, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": widget.MsgSearchFailed})
		return
	}
	if len(points) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": widget.MsgNotFound})
		return
	}
	a.record(c.Request.Context(), q, points[0])
	c.JSON(http.StatusOK, gin.H{"point": points[0]})
}

// FindRoutes 从起点到地名库其他地点的全部驾车路线
func (a *API) FindRoutes(c *gin.Context) {
	var req RouteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	var origin model.Coordinates
	switch {
	case req.PointID != "":
		p, err := a.Gazetteer.Get(req.PointID)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "point not found: " + req.PointID})
			return
		}
		origin = p.Coordinates
	case req.Lat != nil && req.Lon != nil:
		origin = model.Coordinates{Lat: *req.Lat, Lon: *req.Lon}
		if !utils.ValidCoordinates(origin) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid lat/lon"})
			return
		}
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "point_id or lat/lon is required"})
		return
	}

	ctx, cancel := withTimeout(c.Request.Context(), a.RouteTimeout)
	defer cancel()
	batch, err := a.Aggregator.Aggregate(ctx, origin, a.Gazetteer.Others(origin))
	if err != nil {
		logger.Error("/api/routes failed: %v", err)
		status := http.StatusBadGateway
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		c.JSON(status, gin.H{
			"error":     widget.MsgRoutesFailed,
			"requested": batch.Requested,
			"failed":    batch.Failed,
		})
		return
	}
	c.JSON(http.StatusOK, batch)
}

// RecentHistory 最近的搜索记录
func (a *API) RecentHistory(c *gin.Context) {
	if a.History == nil {
		c.JSON(http.StatusOK, gin.H{"entries": []db.RecentQuery{}})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	entries, err := a.History.Recent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "history query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// record 写入搜索历史, 失败只记录日志
func (a *API) record(ctx context.Context, query string, p model.NamedPoint) {
	if a.History == nil {
		return
	}
	coords := p.Coordinates
	if err := a.History.Record(ctx, query, &coords); err != nil {
		logger.Error("record history for %q failed: %v", query, err)
	}
}

func parseCoordinates(latStr, lonStr string) (model.Coordinates, bool) {
	lat, err1 := strconv.ParseFloat(latStr, 64)
	lon, err2 := strconv.ParseFloat(lonStr, 64)
	if err1 != nil || err2 != nil {
		return model.Coordinates{}, false
	}
	c := model.Coordinates{Lat: lat, Lon: lon}
	return c, utils.ValidCoordinates(c)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}

func nonNil(points []model.NamedPoint) []model.NamedPoint {
	if points == nil {
		return []model.NamedPoint{}
	}
	return points
}
