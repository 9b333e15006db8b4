package widget

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"location-service/algo"
	"location-service/model"
	"location-service/pkg/logger"
)

// 界面提示文案
const (
	MsgGeocodeFailed = "Failed to search locations. Please try again."
	MsgSearchFailed  = "Failed to search location. Please try again."
	MsgNotFound      = "Location not found. Please try another name."
	MsgRoutesFailed  = "Failed to fetch routes. Please try again later."
)

// 地图视野
const (
	DefaultZoom  = 13
	SelectedZoom = 15
)

// DefaultCenter 亚的斯亚贝巴市中心
var DefaultCenter = model.Coordinates{Lat: 9.0054, Lon: 38.7636}

// ErrNoSuggestion 建议下标越界
var ErrNoSuggestion = errors.New("suggestion index out of range")

// ErrClosed 会话已关闭
var ErrClosed = errors.New("session closed")

// Geocoder 外部地理编码
type Geocoder interface {
	Search(ctx context.Context, query string) ([]model.NamedPoint, error)
}

// Phase 建议查询的状态: Idle -> Debouncing -> Fetching -> Idle
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseDebouncing Phase = "debouncing"
	PhaseFetching   Phase = "fetching"
)

// View 地图视野 (中心点 + 缩放级别)
type View struct {
	Center model.Coordinates `json:"center"`
	Zoom   int               `json:"zoom"`
}

// State 会话状态快照
type State struct {
	Query           string              `json:"query"`
	Phase           Phase               `json:"phase"`
	Suggestions     []model.NamedPoint  `json:"suggestions"`
	Searched        *model.NamedPoint   `json:"searched,omitempty"`
	Routes          []model.RouteResult `json:"routes"`
	Loading         bool                `json:"loading"`   // 路线批量请求进行中
	Geocoding       bool                `json:"geocoding"` // 建议查询进行中
	Searching       bool                `json:"searching"` // 搜索按钮触发的查询进行中
	Error           string              `json:"error,omitempty"`
	View            View                `json:"view"`
	RoutesRequested int                 `json:"routes_requested"`
	RoutesFailed    int                 `json:"routes_failed"`
}

// Options 会话参数
type Options struct {
	Debounce      time.Duration // 输入停顿多久后查询
	LookupTimeout time.Duration // 单次地理编码超时, 0 表示不限制
	RouteTimeout  time.Duration // 整批路线超时, 0 表示不限制
	// OnSelect 选中地点后异步调用 (如记录搜索历史)
	OnSelect func(ctx context.Context, query string, p model.NamedPoint)
}

// Session 一个搜索框 + 地图的状态.
// 每次输入变化会作废之前的查询 (epoch 计数), 旧结果到达时直接丢弃;
// 每次选择新起点也会作废之前的路线批次.
type Session struct {
	id         string
	gazetteer  *algo.Gazetteer
	geocoder   Geocoder
	aggregator *algo.Aggregator
	opts       Options

	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	mu            sync.Mutex
	state         State
	suggestEpoch  uint64
	routeEpoch    uint64
	selectEpoch   uint64
	submitEpoch   uint64
	timer         *time.Timer
	cancelSuggest context.CancelFunc
	cancelRoutes  context.CancelFunc
	cancelSubmit  context.CancelFunc
	lastAccess    time.Time
	closed        bool
}

// NewSession 创建会话
func NewSession(id string, g *algo.Gazetteer, geocoder Geocoder, aggregator *algo.Aggregator, opts Options) *Session {
	if opts.Debounce <= 0 {
		opts.Debounce = 500 * time.Millisecond
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Session{
		id:         id,
		gazetteer:  g,
		geocoder:   geocoder,
		aggregator: aggregator,
		opts:       opts,
		ctx:        ctx,
		stop:       stop,
		state: State{
			Phase: PhaseIdle,
			View:  View{Center: DefaultCenter, Zoom: DefaultZoom},
		},
		lastAccess: time.Now(),
	}
}

// ID 会话 ID
func (s *Session) ID() string {
	return s.id
}

// LastAccess 最近一次被使用的时间
func (s *Session) LastAccess() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAccess
}

// State 返回当前状态的深拷贝
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastAccess = time.Now()

	st := s.state
	st.Suggestions = append([]model.NamedPoint{}, s.state.Suggestions...)
	st.Routes = make([]model.RouteResult, len(s.state.Routes))
	for i, r := range s.state.Routes {
		r.Path = append([]model.Coordinates(nil), r.Path...)
		st.Routes[i] = r
	}
	if s.state.Searched != nil {
		p := *s.state.Searched
		st.Searched = &p
	}
	return st
}

// SetQuery 输入框内容变化. 空查询立即清空建议且不发请求;
// 否则在停顿 Debounce 之后查询.
func (s *Session) SetQuery(q string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.lastAccess = time.Now()
	s.state.Query = q
	s.cancelLookupLocked()

	if strings.TrimSpace(q) == "" {
		s.state.Suggestions = nil
		s.state.Phase = PhaseIdle
		return
	}

	s.state.Phase = PhaseDebouncing
	epoch := s.suggestEpoch
	s.timer = time.AfterFunc(s.opts.Debounce, func() {
		s.runLookup(epoch, q)
	})
}

// cancelLookupLocked 停止计时器并作废正在进行的查询
func (s *Session) cancelLookupLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.cancelSuggest != nil {
		s.cancelSuggest()
		s.cancelSuggest = nil
	}
	s.suggestEpoch++
	s.state.Geocoding = false
}

// runLookup 停顿结束后执行: 先发布本地匹配, 再合并地理编码结果
func (s *Session) runLookup(epoch uint64, q string) {
	s.mu.Lock()
	if s.closed || epoch != s.suggestEpoch {
		s.mu.Unlock()
		return
	}
	local := s.gazetteer.Match(q)
	s.state.Suggestions = append([]model.NamedPoint{}, local...)
	s.state.Phase = PhaseFetching
	s.state.Geocoding = true
	ctx, cancel := s.withTimeout(s.opts.LookupTimeout)
	s.cancelSuggest = cancel
	s.mu.Unlock()
	defer cancel()

	external, err := s.search(ctx, q)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || epoch != s.suggestEpoch {
		logger.Debug("session %s: dropping stale suggestions for %q", s.id, q)
		return
	}
	s.cancelSuggest = nil
	s.state.Geocoding = false
	s.state.Phase = PhaseIdle
	if err != nil {
		logger.Error("session %s: geocoding %q failed: %v", s.id, q, err)
		s.state.Suggestions = local
		s.state.Error = MsgGeocodeFailed
		return
	}
	if s.state.Error == MsgGeocodeFailed {
		s.state.Error = ""
	}
	s.state.Suggestions = algo.MergeSuggestions(local, external)
}

// search 调用地理编码, panic 也转换为错误
func (s *Session) search(ctx context.Context, q string) (points []model.NamedPoint, err error) {
	defer func() {
		if r := recover(); r != nil {
			points, err = nil, fmt.Errorf("geocoder panic: %v", r)
		}
	}()
	if s.geocoder == nil {
		return nil, nil
	}
	return s.geocoder.Search(ctx, q)
}

// Select 选中一个地点: 替换当前搜索点, 启动路线批次, 地图飞到该点.
// 路线在后台请求, 视野更新不等待路线.
func (s *Session) Select(p model.NamedPoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selectLocked(p)
}

// selectLocked 调用方持有 s.mu. 每次选择都会作废进行中的搜索按钮查询.
func (s *Session) selectLocked(p model.NamedPoint) {
	if s.closed {
		return
	}
	s.lastAccess = time.Now()
	s.selectEpoch++
	if s.cancelSubmit != nil {
		s.cancelSubmit()
		s.cancelSubmit = nil
		s.state.Searching = false
	}

	sel := p
	if sel.External || sel.Category == "" {
		sel.Category = model.CategorySearched
	}
	s.state.Searched = &sel
	s.startRoutesLocked(p.Coordinates)
	s.state.View = View{Center: p.Coordinates, Zoom: SelectedZoom}

	if s.opts.OnSelect != nil {
		query := s.state.Query
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.opts.OnSelect(s.ctx, query, sel)
		}()
	}
}

// SelectPoint 直接选择地名库中的地点
func (s *Session) SelectPoint(id string) error {
	p, err := s.gazetteer.Get(id)
	if err != nil {
		return err
	}
	s.Select(p)
	return nil
}

// SelectSuggestion 选择建议列表中的第 index 项, 同时把输入框设为它的名称
func (s *Session) SelectSuggestion(index int) error {
	s.mu.Lock()
	if index < 0 || index >= len(s.state.Suggestions) {
		s.mu.Unlock()
		return ErrNoSuggestion
	}
	p := s.state.Suggestions[index]
	s.mu.Unlock()

	s.SetQuery(p.Name)
	s.Select(p)
	return nil
}

// Submit 搜索按钮: 先精确匹配本地地名库, 否则取地理编码第一条结果.
// 返回被选中的地点, 没有选中时返回 nil.
func (s *Session) Submit(ctx context.Context) (*model.NamedPoint, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	s.lastAccess = time.Now()
	raw := s.state.Query
	q := strings.TrimSpace(raw)
	if q == "" {
		s.mu.Unlock()
		return nil, nil
	}
	if p, ok := s.gazetteer.Exact(q); ok {
		s.selectLocked(p)
		s.mu.Unlock()
		return &p, nil
	}
	if s.cancelSubmit != nil {
		s.cancelSubmit()
	}
	s.state.Error = ""
	s.state.Searching = true
	s.submitEpoch++
	submit, selected := s.submitEpoch, s.selectEpoch
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.cancelSubmit = cancel
	s.mu.Unlock()

	points, err := s.search(ctx, q)

	s.mu.Lock()
	defer s.mu.Unlock()
	if submit == s.submitEpoch {
		s.cancelSubmit = nil
		s.state.Searching = false
	}
	if submit != s.submitEpoch || selected != s.selectEpoch || s.closed || s.state.Query != raw {
		// 期间有新的选择, 新的搜索, 或输入已经变化: 这次结果作废
		return nil, nil
	}
	if err != nil {
		logger.Error("session %s: search %q failed: %v", s.id, q, err)
		s.state.Error = MsgSearchFailed
		return nil, nil
	}
	if len(points) == 0 {
		s.state.Error = MsgNotFound
		return nil, nil
	}

	p := points[0]
	s.selectLocked(p)
	return &p, nil
}

// startRoutesLocked 清空旧路线并在后台启动新的路线批次
func (s *Session) startRoutesLocked(origin model.Coordinates) {
	if s.cancelRoutes != nil {
		s.cancelRoutes()
	}
	s.routeEpoch++
	epoch := s.routeEpoch

	s.state.Routes = nil
	s.state.RoutesRequested = 0
	s.state.RoutesFailed = 0
	s.state.Loading = true
	s.state.Error = ""

	ctx, cancel := s.withTimeout(s.opts.RouteTimeout)
	s.cancelRoutes = cancel
	destinations := s.gazetteer.Others(origin)

	s.wg.Add(1)
	go s.runRoutes(ctx, cancel, epoch, origin, destinations)
}

func (s *Session) runRoutes(ctx context.Context, cancel context.CancelFunc, epoch uint64, origin model.Coordinates, destinations []model.NamedPoint) {
	defer s.wg.Done()
	defer cancel()

	batch, err := s.aggregate(ctx, origin, destinations)

	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.routeEpoch {
		// 已经有更新的批次, Loading 由它负责
		logger.Debug("session %s: dropping stale route batch", s.id)
		return
	}
	s.cancelRoutes = nil
	s.state.Loading = false
	if s.closed {
		return
	}
	s.state.RoutesRequested = batch.Requested
	s.state.RoutesFailed = batch.Failed
	if err != nil {
		logger.Error("session %s: route batch failed: %v", s.id, err)
		s.state.Routes = nil
		s.state.Error = MsgRoutesFailed
		return
	}
	s.state.Routes = batch.Routes
}

// aggregate 调用路线聚合器, panic 也转换为错误
func (s *Session) aggregate(ctx context.Context, origin model.Coordinates, destinations []model.NamedPoint) (batch algo.Batch, err error) {
	defer func() {
		if r := recover(); r != nil {
			batch, err = algo.Batch{Origin: origin}, fmt.Errorf("route aggregation panic: %v", r)
		}
	}()
	return s.aggregator.Aggregate(ctx, origin, destinations)
}

func (s *Session) withTimeout(d time.Duration) (context.Context, context.CancelFunc) {
	if d > 0 {
		return context.WithTimeout(s.ctx, d)
	}
	return context.WithCancel(s.ctx)
}

// Close 停止计时器, 取消所有后台请求并等待它们结束
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.cancelLookupLocked()
	if s.cancelRoutes != nil {
		s.cancelRoutes()
	}
	if s.cancelSubmit != nil {
		s.cancelSubmit()
	}
	s.stop()
	s.mu.Unlock()

	s.wg.Wait()
}
