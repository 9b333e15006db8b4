// Package geo 封装外部地图服务: Nominatim 地理编码与 OSRM 路由.
//
// 所有客户端都显式接收 Credentials, 每次请求时写入请求头,
// 不依赖任何全局的令牌存储.
package geo

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ErrNoRoute 路由服务没有返回可用路线
var ErrNoRoute = errors.New("no route found")

// Credentials 调用外部服务时的身份信息
type Credentials struct {
	UserAgent   string // Nominatim 要求提供可识别的 User-Agent
	Email       string // 可选: Nominatim 联系邮箱
	BearerToken string // 可选: 自建网关的访问令牌
}

// Apply 把身份信息写入请求
func (c Credentials) Apply(req *http.Request) {
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	req.Header.Set("Accept", "application/json")
}

// StatusError 上游返回了非 2xx 状态码
type StatusError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Service, e.StatusCode)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Service, e.StatusCode, e.Body)
}

// checkStatus 非 2xx 时读取少量响应体并返回 StatusError
func checkStatus(service string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &StatusError{Service: service, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
}
