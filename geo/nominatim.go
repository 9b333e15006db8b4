package geo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"location-service/model"
	"location-service/pkg/logger"

	"golang.org/x/time/rate"
)

// NominatimOptions 地理编码查询范围
type NominatimOptions struct {
	Endpoint     string
	RegionBias   string // 追加在查询词之后
	CountryCodes string
	ViewBox      string
	Limit        int
	Retries      int           // 瞬时错误的重试次数
	MinInterval  time.Duration // 两次请求的最小间隔, 0 表示不限速
	Timeout      time.Duration
}

// Nominatim 地理编码客户端
type Nominatim struct {
	opts    NominatimOptions
	creds   Credentials
	client  *http.Client
	limiter *rate.Limiter
}

// NewNominatim 创建 Nominatim 客户端, client 为 nil 时使用默认客户端
func NewNominatim(opts NominatimOptions, creds Credentials, client *http.Client) *Nominatim {
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Limit <= 0 {
		opts.Limit = 5
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.MinInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(opts.MinInterval), 1)
	}
	return &Nominatim{opts: opts, creds: creds, client: client, limiter: limiter}
}

// placeID 兼容字符串和数字两种 place_id
type placeID string

func (p *placeID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*p = placeID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*p = placeID(n.String())
	return nil
}

// nominatimResult Nominatim 返回的单条结果
type nominatimResult struct {
	PlaceID     placeID `json:"place_id"`
	DisplayName string  `json:"display_name"`
	Lat         string  `json:"lat"`
	Lon         string  `json:"lon"`
}

// SearchURL 构造查询地址
func (n *Nominatim) SearchURL(query string) (string, error) {
	u, err := url.Parse(n.opts.Endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid geocoding endpoint: %w", err)
	}
	q := u.Query()
	text := strings.TrimSpace(query)
	if n.opts.RegionBias != "" {
		text = text + ", " + n.opts.RegionBias
	}
	q.Set("q", text)
	q.Set("format", "json")
	q.Set("limit", strconv.Itoa(n.opts.Limit))
	if n.opts.CountryCodes != "" {
		q.Set("countrycodes", n.opts.CountryCodes)
	}
	if n.opts.ViewBox != "" {
		q.Set("bounded", "1")
		q.Set("viewbox", n.opts.ViewBox)
	}
	if n.creds.Email != "" {
		q.Set("email", n.creds.Email)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Search 在限定区域内查询地点, 最多返回 Limit 条
func (n *Nominatim) Search(ctx context.Context, query string) ([]model.NamedPoint, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	endpoint, err := n.SearchURL(query)
	if err != nil {
		return nil, err
	}

	attempts := n.opts.Retries + 1
	var results []nominatimResult
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := n.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		results, err = n.fetch(ctx, endpoint)
		if err == nil {
			if attempt > 1 {
				logger.Info("nominatim recovered after %d attempt(s) for %q", attempt, query)
			}
			break
		}
		if !isTransient(err) || attempt == attempts {
			return nil, err
		}
		logger.Error("transient nominatim error (attempt %d/%d, will retry) query=%q err=%v", attempt, attempts, query, err)
		select {
		case <-time.After(150 * time.Millisecond):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	points := make([]model.NamedPoint, 0, len(results))
	for _, r := range results {
		p, ok := r.toPoint()
		if !ok {
			logger.Debug("skipping unparsable nominatim result %q", r.DisplayName)
			continue
		}
		points = append(points, p)
		if len(points) >= n.opts.Limit {
			break
		}
	}
	return points, nil
}

func (n *Nominatim) fetch(ctx context.Context, endpoint string) ([]nominatimResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	n.creds.Apply(req)

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("nominatim request: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus("nominatim", resp); err != nil {
		return nil, err
	}
	var results []nominatimResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("nominatim decode: %w", err)
	}
	return results, nil
}

// toPoint 转换为地点; 名称取 display_name 的第一段
func (r nominatimResult) toPoint() (model.NamedPoint, bool) {
	lat, err1 := strconv.ParseFloat(strings.TrimSpace(r.Lat), 64)
	lon, err2 := strconv.ParseFloat(strings.TrimSpace(r.Lon), 64)
	if err1 != nil || err2 != nil || r.DisplayName == "" {
		return model.NamedPoint{}, false
	}
	name, _, _ := strings.Cut(r.DisplayName, ",")
	return model.NamedPoint{
		ID:           string(r.PlaceID),
		Name:         strings.TrimSpace(name),
		Coordinates:  model.Coordinates{Lat: lat, Lon: lon},
		Category:     model.CategorySearched,
		DisplayLabel: r.DisplayName,
		External:     true,
	}, true
}

// isTransient 截断的响应可以重试, 其他错误直接返回
func isTransient(err error) bool {
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	s := err.Error()
	return strings.Contains(s, "unexpected end of JSON") || strings.Contains(s, "EOF")
}
