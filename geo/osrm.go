package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"location-service/model"
)

// OSRM 路由客户端
type OSRM struct {
	endpoint string // 如 https://router.project-osrm.org/route/v1
	profile  string // driving
	creds    Credentials
	client   *http.Client
}

// NewOSRM 创建 OSRM 客户端, client 为 nil 时使用带超时的默认客户端
func NewOSRM(endpoint, profile string, timeout time.Duration, creds Credentials, client *http.Client) *OSRM {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	if profile == "" {
		profile = "driving"
	}
	return &OSRM{
		endpoint: strings.TrimRight(endpoint, "/"),
		profile:  profile,
		creds:    creds,
		client:   client,
	}
}

// osrmResponse OSRM route 接口的响应
type osrmResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Distance float64 `json:"distance"`
		Duration float64 `json:"duration"`
		Geometry struct {
			Type        string       `json:"type"`
			Coordinates [][2]float64 `json:"coordinates"` // [lon, lat]
		} `json:"geometry"`
	} `json:"routes"`
}

// RouteURL 构造路线请求地址 (OSRM 使用 lon,lat 顺序)
func (o *OSRM) RouteURL(from, to model.Coordinates) string {
	return fmt.Sprintf("%s/%s/%s,%s;%s,%s?overview=full&geometries=geojson",
		o.endpoint, o.profile,
		formatCoord(from.Lon), formatCoord(from.Lat),
		formatCoord(to.Lon), formatCoord(to.Lat))
}

// Route 请求一条驾车路线, 使用第一条结果
func (o *OSRM) Route(ctx context.Context, from, to model.Coordinates) (*model.RoutePath, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.RouteURL(from, to), nil)
	if err != nil {
		return nil, err
	}
	o.creds.Apply(req)

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("osrm request: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus("osrm", resp); err != nil {
		return nil, err
	}
	var body osrmResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("osrm decode: %w", err)
	}
	if (body.Code != "" && body.Code != "Ok") || len(body.Routes) == 0 {
		return nil, fmt.Errorf("%w (code=%s)", ErrNoRoute, body.Code)
	}

	route := body.Routes[0]
	path := make([]model.Coordinates, 0, len(route.Geometry.Coordinates))
	for _, c := range route.Geometry.Coordinates {
		path = append(path, model.Coordinates{Lat: c[1], Lon: c[0]})
	}
	if len(path) == 0 {
		return nil, fmt.Errorf("%w: empty geometry", ErrNoRoute)
	}
	return &model.RoutePath{
		DistanceMeters:  route.Distance,
		DurationSeconds: route.Duration,
		Path:            path,
	}, nil
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
