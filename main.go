package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"location-service/algo"
	"location-service/config"
	"location-service/db"
	"location-service/geo"
	"location-service/handler"
	"location-service/model"
	"location-service/pkg/logger"
	"location-service/utils"
	"location-service/widget"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("load config: %v", err)
	}
	logger.SetDebug(*debug || cfg.Server.Debug)
	if !logger.DebugEnabled() {
		gin.SetMode(gin.ReleaseMode)
	}

	// 1. 地名库 (JSON 文件或内置地点) 与可选的数据库
	seed := algo.DefaultPoints()
	if cfg.Search.GazetteerFile != "" {
		g, err := algo.LoadFromJSON(cfg.Search.GazetteerFile)
		if err != nil {
			logger.Fatal("load gazetteer: %v", err)
		}
		seed = g.All()
	}

	var conn *gorm.DB
	if cfg.Database.Enabled {
		conn, err = db.InitDB(cfg.Database, seed)
		if err != nil {
			logger.Fatal("init database: %v", err)
		}
		if cfg.Search.GazetteerFile == "" {
			points, err := db.LoadPoints(context.Background(), conn)
			if err != nil {
				logger.Fatal("%v", err)
			}
			if len(points) > 0 {
				seed = points
			}
		}
	}
	gazetteer, err := algo.NewGazetteer(seed)
	if err != nil {
		logger.Fatal("build gazetteer: %v", err)
	}
	logger.Info("gazetteer loaded: %d points", gazetteer.Len())

	// 2. 外部服务: Nominatim (带缓存) + OSRM
	creds := geo.Credentials{
		UserAgent:   cfg.Credentials.UserAgent,
		Email:       cfg.Credentials.Email,
		BearerToken: cfg.Credentials.BearerToken,
	}
	nominatim := geo.NewNominatim(geo.NominatimOptions{
		Endpoint:     cfg.Geocoding.Endpoint,
		RegionBias:   cfg.Geocoding.RegionBias,
		CountryCodes: cfg.Geocoding.CountryCodes,
		ViewBox:      cfg.Geocoding.ViewBox,
		Limit:        cfg.Geocoding.Limit,
		Retries:      cfg.Geocoding.Retries,
		Timeout:      cfg.Geocoding.Timeout,
		MinInterval:  cfg.Geocoding.MinInterval,
	}, creds, nil)
	geocoder, err := geo.NewCachedGeocoder(nominatim, cfg.Cache.Dir, cfg.Cache.MemoryEntries)
	if err != nil {
		logger.Fatal("init geocode cache: %v", err)
	}
	defer geocoder.Close()

	osrm := geo.NewOSRM(cfg.Routing.Endpoint, cfg.Routing.Profile, cfg.Routing.Timeout, creds, nil)
	aggregator := algo.NewAggregator(osrm, cfg.Routing.MaxConcurrent)

	// 3. 存储: 有数据库时用 gorm, 否则用内存
	var (
		users   db.UserStore
		history *db.HistoryStore
	)
	if conn != nil {
		users = db.NewGormUserStore(conn)
		history = db.NewHistoryStore(conn)
	} else {
		users = newMemoryUsers()
	}

	// 4. 会话
	opts := widget.Options{
		Debounce:      cfg.Search.Debounce,
		LookupTimeout: cfg.Geocoding.Timeout,
		RouteTimeout:  cfg.Routing.Timeout,
	}
	if history != nil {
		opts.OnSelect = func(ctx context.Context, query string, p model.NamedPoint) {
			coords := p.Coordinates
			if err := history.Record(ctx, query, &coords); err != nil {
				logger.Error("record history: %v", err)
			}
		}
	}
	sessions := widget.NewRegistry(cfg.Search.SessionTTL, func(id string) *widget.Session {
		return widget.NewSession(id, gazetteer, geocoder, aggregator, opts)
	})
	sessions.StartJanitor(time.Minute)
	defer sessions.Stop()

	api := &handler.API{
		Gazetteer:     gazetteer,
		Geocoder:      geocoder,
		Aggregator:    aggregator,
		Sessions:      sessions,
		History:       history,
		LookupTimeout: cfg.Geocoding.Timeout,
		RouteTimeout:  cfg.Routing.Timeout,
	}
	auth := handler.NewAuth(users, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	// 5. HTTP 服务
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	setupRoutes(r, api, auth, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("server listening on http://localhost:%s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown: %v", err)
	}
}

// newMemoryUsers 未启用数据库时的内存用户 (admin/admin123)
func newMemoryUsers() db.UserStore {
	hash, err := utils.HashPassword("admin123")
	if err != nil {
		logger.Fatal("hash admin password: %v", err)
	}
	return db.NewMemoryUserStore(&model.User{
		Username: "admin",
		Password: hash,
		Email:    "admin@example.com",
		Roles:    []string{"admin"},
	})
}

// setupRoutes 配置路由
func setupRoutes(r *gin.Engine, api *handler.API, auth *handler.Auth, cfg config.Config) {
	// CORS 跨域中间件
	origin := cfg.Server.CORSOrigin
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	// 健康检查
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
			"status":  "ok",
		})
	})

	// 公开接口 (无需认证)
	public := r.Group("/api")
	public.POST("/login", auth.Login)
	public.POST("/register", auth.Register)

	// 地图相关接口, auth.required 时需要 Token
	v := r.Group("/api")
	if cfg.Auth.Required {
		v.Use(auth.Middleware())
	}
	{
		v.GET("/points", api.GetPoints)
		v.GET("/points/nearest", api.NearestPoint)
		v.GET("/points/:id", api.GetPointByID)
		v.GET("/suggest", api.Suggest)
		v.GET("/search", api.Search)
		v.POST("/routes", api.FindRoutes)
		v.GET("/history/recent", api.RecentHistory)

		v.POST("/sessions", api.CreateSession)
		v.GET("/sessions/:id", api.GetSession)
		v.DELETE("/sessions/:id", api.DeleteSession)
		v.PUT("/sessions/:id/query", api.UpdateQuery)
		v.POST("/sessions/:id/select", api.SelectLocation)
		v.POST("/sessions/:id/search", api.SubmitSearch)
		v.GET("/sessions/:id/map", api.SessionMap)
		v.GET("/sessions/:id/geojson", api.SessionGeoJSON)
	}

	// 管理接口总是需要 admin 角色
	admin := r.Group("/api/admin", auth.Middleware(), auth.RequireRole("admin"))
	admin.GET("/stats", api.Stats)
}
