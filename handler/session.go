package handler

import (
	"errors"
	"net/http"

	"location-service/algo"
	"location-service/widget"

	"github.com/gin-gonic/gin"
)

// SelectRequest 选择地点: 地名库 ID 或建议列表下标
type SelectRequest struct {
	PointID         string `json:"point_id"`
	SuggestionIndex *int   `json:"suggestion_index"`
}

// sessionFrom 根据路径参数查找会话
func (a *API) sessionFrom(c *gin.Context) (*widget.Session, bool) {
	s, ok := a.Sessions.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return nil, false
	}
	return s, true
}

// CreateSession 新建搜索会话
func (a *API) CreateSession(c *gin.Context) {
	s, err := a.Sessions.Create()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":    s.ID(),
		"state": s.State(),
	})
}

// GetSession 获取会话状态
func (a *API) GetSession(c *gin.Context) {
	s, ok := a.sessionFrom(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.State())
}

// DeleteSession 关闭会话
func (a *API) DeleteSession(c *gin.Context) {
	if !a.Sessions.Delete(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

// UpdateQuery 输入框内容变化
func (a *API) UpdateQuery(c *gin.Context) {
	s, ok := a.sessionFrom(c)
	if !ok {
		return
	}
	var req struct {
		Query string `json:"query"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	s.SetQuery(req.Query)
	c.JSON(http.StatusAccepted, s.State())
}

// SelectLocation 选择地名库地点或建议项, 路线在后台计算
func (a *API) SelectLocation(c *gin.Context) {
	s, ok := a.sessionFrom(c)
	if !ok {
		return
	}
	var req SelectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	var err error
	switch {
	case req.SuggestionIndex != nil:
		err = s.SelectSuggestion(*req.SuggestionIndex)
	case req.PointID != "":
		err = s.SelectPoint(req.PointID)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "point_id or suggestion_index is required"})
		return
	}
	switch {
	case errors.Is(err, algo.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "point not found"})
		return
	case errors.Is(err, widget.ErrNoSuggestion):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, s.State())
}

// SubmitSearch 搜索按钮
func (a *API) SubmitSearch(c *gin.Context) {
	s, ok := a.sessionFrom(c)
	if !ok {
		return
	}
	ctx, cancel := withTimeout(c.Request.Context(), a.LookupTimeout)
	defer cancel()

	selected, err := s.Submit(ctx)
	if err != nil {
		c.JSON(http.StatusGone, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"selected": selected,
		"state":    s.State(),
	})
}

// SessionMap 地图渲染数据
func (a *API) SessionMap(c *gin.Context) {
	s, ok := a.sessionFrom(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, widget.BuildMapView(s.State(), a.Gazetteer))
}

// SessionGeoJSON 以 GeoJSON 导出地图数据
func (a *API) SessionGeoJSON(c *gin.Context) {
	s, ok := a.sessionFrom(c)
	if !ok {
		return
	}
	data, err := widget.BuildMapView(s.State(), a.Gazetteer).GeoJSON()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "encode geojson failed"})
		return
	}
	c.Data(http.StatusOK, "application/geo+json", data)
}

// Stats 服务状态 (管理员)
func (a *API) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"sessions": a.Sessions.Len(),
		"points":   a.Gazetteer.Len(),
	})
}
