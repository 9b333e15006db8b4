package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	Port       string `yaml:"port"`
	CORSOrigin string `yaml:"cors_origin"`
	Debug      bool   `yaml:"debug"`
}

// DatabaseConfig PostgreSQL 配置
type DatabaseConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Host       string `yaml:"host"`
	Port       string `yaml:"port"`
	User       string `yaml:"user"`
	Password   string `yaml:"password"`
	DBName     string `yaml:"dbname"`
	SSLMode    string `yaml:"sslmode"`
	TimeZone   string `yaml:"timezone"`
	MaxRetries int    `yaml:"max_retries"`
}

// DSN 构造 gorm/postgres 连接串
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
		d.Host, d.User, d.Password, d.DBName, d.Port, d.SSLMode, d.TimeZone,
	)
}

// GeocodingConfig Nominatim 地理编码配置
type GeocodingConfig struct {
	Endpoint       string        `yaml:"endpoint"`
	RegionBias     string        `yaml:"region_bias"`   // 追加到查询词后面, 如 "Addis Ababa, Ethiopia"
	CountryCodes   string        `yaml:"country_codes"` // 如 "et"
	ViewBox        string        `yaml:"viewbox"`       // "minLon,maxLat,maxLon,minLat"
	Limit          int           `yaml:"limit"`
	Retries        int           `yaml:"retries"`
	TimeoutStr     string        `yaml:"timeout"`
	MinIntervalStr string        `yaml:"min_interval"`
	Timeout        time.Duration `yaml:"-"`
	MinInterval    time.Duration `yaml:"-"` // Nominatim 使用规范: 每秒最多 1 次请求
}

// RoutingConfig OSRM 路由配置
type RoutingConfig struct {
	Endpoint      string        `yaml:"endpoint"`
	Profile       string        `yaml:"profile"`
	MaxConcurrent int           `yaml:"max_concurrent"` // 0 表示不限制
	TimeoutStr    string        `yaml:"timeout"`
	Timeout       time.Duration `yaml:"-"`
}

// CredentialsConfig 调用外部服务时使用的身份信息
type CredentialsConfig struct {
	UserAgent   string `yaml:"user_agent"`
	Email       string `yaml:"email"`
	BearerToken string `yaml:"bearer_token"`
}

// CacheConfig 地理编码缓存配置
type CacheConfig struct {
	Dir           string `yaml:"dir"` // 为空时不启用磁盘缓存
	MemoryEntries int    `yaml:"memory_entries"`
}

// SearchConfig 搜索框行为
type SearchConfig struct {
	DebounceStr   string        `yaml:"debounce"`
	SessionTTLStr string        `yaml:"session_ttl"`
	GazetteerFile string        `yaml:"gazetteer_file"` // 可选: 从 JSON 文件加载地名库
	Debounce      time.Duration `yaml:"-"`
	SessionTTL    time.Duration `yaml:"-"`
}

// AuthConfig JWT 配置
type AuthConfig struct {
	Required    bool          `yaml:"required"`
	JWTSecret   string        `yaml:"jwt_secret"`
	TokenTTLStr string        `yaml:"token_ttl"`
	TokenTTL    time.Duration `yaml:"-"`
}

// Config 全部配置
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Geocoding   GeocodingConfig   `yaml:"geocoding"`
	Routing     RoutingConfig     `yaml:"routing"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Cache       CacheConfig       `yaml:"cache"`
	Search      SearchConfig      `yaml:"search"`
	Auth        AuthConfig        `yaml:"auth"`
}

// Default 返回默认配置 (亚的斯亚贝巴地区)
func Default() Config {
	return Config{
		Server: ServerConfig{Port: "8080", CORSOrigin: "*"},
		Database: DatabaseConfig{
			Host:       "localhost",
			Port:       "5432",
			User:       "opsuser",
			Password:   "opspassword",
			DBName:     "opsdashboard",
			SSLMode:    "disable",
			TimeZone:   "Africa/Addis_Ababa",
			MaxRetries: 30,
		},
		Geocoding: GeocodingConfig{
			Endpoint:       "https://nominatim.openstreetmap.org/search",
			RegionBias:     "Addis Ababa, Ethiopia",
			CountryCodes:   "et",
			ViewBox:        "38.70,9.00,38.85,8.95",
			Limit:          5,
			Retries:        1,
			TimeoutStr:     "8s",
			MinIntervalStr: "1s",
		},
		Routing: RoutingConfig{
			Endpoint:   "https://router.project-osrm.org/route/v1",
			Profile:    "driving",
			TimeoutStr: "10s",
		},
		Credentials: CredentialsConfig{UserAgent: "location-service/1.0"},
		Cache:       CacheConfig{MemoryEntries: 512},
		Search: SearchConfig{
			DebounceStr:   "500ms",
			SessionTTLStr: "30m",
		},
		Auth: AuthConfig{
			JWTSecret:   "change-me-in-production",
			TokenTTLStr: "24h",
		},
	}
}

// Load 读取配置: 默认值 -> YAML 文件 (可选) -> .env (可选) -> 环境变量
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		file, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(file, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	// .env 不存在不算错误
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("failed to load .env: %w", err)
	}
	applyEnv(&cfg)

	if err := cfg.parseDurations(); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// applyEnv 环境变量覆盖 (为了 Docker 部署方便)
func applyEnv(cfg *Config) {
	cfg.Server.Port = getEnvOrDefault("PORT", cfg.Server.Port)
	cfg.Server.CORSOrigin = getEnvOrDefault("CORS_ORIGIN", cfg.Server.CORSOrigin)
	cfg.Server.Debug = getEnvBool("DEBUG", cfg.Server.Debug)

	cfg.Database.Enabled = getEnvBool("DB_ENABLED", cfg.Database.Enabled)
	cfg.Database.Host = getEnvOrDefault("DB_HOST", cfg.Database.Host)
	cfg.Database.Port = getEnvOrDefault("DB_PORT", cfg.Database.Port)
	cfg.Database.User = getEnvOrDefault("DB_USER", cfg.Database.User)
	cfg.Database.Password = getEnvOrDefault("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.DBName = getEnvOrDefault("DB_NAME", cfg.Database.DBName)

	cfg.Geocoding.Endpoint = getEnvOrDefault("GEOCODING_ENDPOINT", cfg.Geocoding.Endpoint)
	cfg.Geocoding.TimeoutStr = getEnvOrDefault("GEOCODING_TIMEOUT", cfg.Geocoding.TimeoutStr)
	cfg.Routing.Endpoint = getEnvOrDefault("ROUTING_ENDPOINT", cfg.Routing.Endpoint)
	cfg.Routing.TimeoutStr = getEnvOrDefault("ROUTING_TIMEOUT", cfg.Routing.TimeoutStr)

	cfg.Credentials.UserAgent = getEnvOrDefault("HTTP_USER_AGENT", cfg.Credentials.UserAgent)
	cfg.Credentials.Email = getEnvOrDefault("NOMINATIM_EMAIL", cfg.Credentials.Email)

	cfg.Cache.Dir = getEnvOrDefault("CACHE_DIR", cfg.Cache.Dir)
	cfg.Search.GazetteerFile = getEnvOrDefault("GAZETTEER_FILE", cfg.Search.GazetteerFile)

	cfg.Auth.Required = getEnvBool("AUTH_REQUIRED", cfg.Auth.Required)
	cfg.Auth.JWTSecret = getEnvOrDefault("JWT_SECRET", cfg.Auth.JWTSecret)
}

func (c *Config) parseDurations() error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"geocoding.timeout", c.Geocoding.TimeoutStr, &c.Geocoding.Timeout},
		{"geocoding.min_interval", c.Geocoding.MinIntervalStr, &c.Geocoding.MinInterval},
		{"routing.timeout", c.Routing.TimeoutStr, &c.Routing.Timeout},
		{"search.debounce", c.Search.DebounceStr, &c.Search.Debounce},
		{"search.session_ttl", c.Search.SessionTTLStr, &c.Search.SessionTTL},
		{"auth.token_ttl", c.Auth.TokenTTLStr, &c.Auth.TokenTTL},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("failed to parse %s: %w", f.name, err)
		}
		*f.dst = d
	}
	return nil
}

// Validate 校验配置
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Geocoding.Endpoint) == "" {
		errs = append(errs, errors.New("geocoding.endpoint is empty"))
	}
	if strings.TrimSpace(c.Routing.Endpoint) == "" {
		errs = append(errs, errors.New("routing.endpoint is empty"))
	}
	if c.Geocoding.Limit <= 0 {
		errs = append(errs, errors.New("geocoding.limit must be positive"))
	}
	if c.Geocoding.Retries < 0 || c.Geocoding.Retries > 5 {
		errs = append(errs, errors.New("geocoding.retries must be within 0..5"))
	}
	if c.Routing.MaxConcurrent < 0 {
		errs = append(errs, errors.New("routing.max_concurrent must not be negative"))
	}
	if c.Search.Debounce <= 0 {
		errs = append(errs, errors.New("search.debounce must be positive"))
	}
	if c.Auth.Required && c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required when auth is enabled"))
	}
	return errors.Join(errs...)
}

// getEnvOrDefault 获取环境变量，如果不存在则返回默认值
func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}
