package algo

import (
	"context"
	"errors"
	"fmt"
	"math"

	"location-service/model"
	"location-service/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// ErrAllRoutesFailed 所有目的地的路线请求都失败了
var ErrAllRoutesFailed = errors.New("all route requests failed")

// Router 路由服务 (如 OSRM)
type Router interface {
	Route(ctx context.Context, from, to model.Coordinates) (*model.RoutePath, error)
}

// Batch 一次路线批量请求的结果
type Batch struct {
	Origin    model.Coordinates   `json:"origin"`
	Routes    []model.RouteResult `json:"routes"`
	Requested int                 `json:"requested"` // 发出的请求数
	Failed    int                 `json:"failed"`    // 失败并被丢弃的请求数
}

// Aggregator 并发请求起点到每个目的地的路线
type Aggregator struct {
	router Router
	limit  int // 最大并发数, <= 0 表示不限制
}

// NewAggregator 创建路线聚合器
func NewAggregator(router Router, limit int) *Aggregator {
	return &Aggregator{router: router, limit: limit}
}

// Aggregate 对每个目的地 (跳过与起点坐标相同的) 并发请求路线.
// 等待全部请求结束后只保留成功的结果, 顺序与 destinations 一致.
// 单个失败只记录日志; 仅当全部失败时返回 ErrAllRoutesFailed.
func (a *Aggregator) Aggregate(ctx context.Context, origin model.Coordinates, destinations []model.NamedPoint) (Batch, error) {
	targets := excludeOrigin(destinations, origin)

	batch := Batch{Origin: origin, Routes: []model.RouteResult{}, Requested: len(targets)}
	if len(targets) == 0 {
		return batch, nil
	}

	slots := make([]*model.RouteResult, len(targets))
	var g errgroup.Group
	if a.limit > 0 {
		g.SetLimit(a.limit)
	}
	for i, dest := range targets {
		g.Go(func() error {
			res, err := a.fetchOne(ctx, origin, dest)
			if err != nil {
				logger.Debug("route to %s (%s) dropped: %v", dest.Name, dest.ID, err)
				return nil
			}
			slots[i] = res
			return nil
		})
	}
	// 单条失败已在 goroutine 内吞掉, Wait 只用来等待全部结束
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return Batch{Origin: origin, Routes: []model.RouteResult{}}, err
	}

	for _, r := range slots {
		if r == nil {
			batch.Failed++
			continue
		}
		batch.Routes = append(batch.Routes, *r)
	}
	if len(batch.Routes) == 0 {
		return batch, ErrAllRoutesFailed
	}
	return batch, nil
}

// fetchOne 请求单条路线; 路由实现 panic 或返回异常数据都视为失败
func (a *Aggregator) fetchOne(ctx context.Context, origin model.Coordinates, dest model.NamedPoint) (res *model.RouteResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("router panic: %v", r)
		}
	}()

	path, err := a.router.Route(ctx, origin, dest.Coordinates)
	if err != nil {
		return nil, err
	}
	if path == nil || len(path.Path) == 0 {
		return nil, errors.New("empty route geometry")
	}
	if invalidNumber(path.DistanceMeters) || invalidNumber(path.DurationSeconds) {
		return nil, errors.New("invalid route distance or duration")
	}

	return &model.RouteResult{
		DestinationID:   dest.ID,
		DestinationName: dest.Name,
		Origin:          origin,
		Destination:     dest.Coordinates,
		DistanceMeters:  path.DistanceMeters,
		DurationSeconds: path.DurationSeconds,
		Path:            append([]model.Coordinates(nil), path.Path...),
		Color:           model.ColorFor(dest.ID),
	}, nil
}

func invalidNumber(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0) || v < 0
}
