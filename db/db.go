package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"location-service/config"
	"location-service/model"
	"location-service/pkg/logger"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// ErrDuplicateUser 用户名已存在
var ErrDuplicateUser = errors.New("username already exists")

// ErrUserNotFound 用户不存在
var ErrUserNotFound = errors.New("user not found")

// InitDB 连接 PostgreSQL 并自动迁移表结构.
// 如果地名库表为空, 会用 seed 中的地点初始化.
func InitDB(cfg config.DatabaseConfig, seed []model.NamedPoint) (*gorm.DB, error) {
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = 1
	}

	// 带重试的数据库连接 (Docker 启动时数据库可能还没准备好)
	var (
		conn *gorm.DB
		err  error
	)
	for i := 0; i < retries; i++ {
		conn, err = gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{})
		if err == nil {
			break
		}
		logger.Info("waiting for database... (%d/%d): %v", i+1, retries, err)
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := conn.AutoMigrate(&model.User{}, &model.NamedPoint{}, &model.SearchHistory{}); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	if err := SeedPoints(conn, seed); err != nil {
		logger.Error("seeding gazetteer failed: %v", err)
	}

	logger.Info("database connected and initialized")
	return conn, nil
}

// SeedPoints 地名库表为空时批量写入地点
func SeedPoints(conn *gorm.DB, seed []model.NamedPoint) error {
	var count int64
	if err := conn.Model(&model.NamedPoint{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 || len(seed) == 0 {
		return nil
	}
	logger.Info("gazetteer table is empty, importing %d points", len(seed))
	return conn.CreateInBatches(seed, 100).Error
}

// LoadPoints 从数据库读取地名库 (按写入顺序)
func LoadPoints(ctx context.Context, conn *gorm.DB) ([]model.NamedPoint, error) {
	var points []model.NamedPoint
	if err := pointsQuery(conn.WithContext(ctx)).Find(&points).Error; err != nil {
		return nil, fmt.Errorf("load gazetteer: %w", err)
	}
	return points, nil
}

func pointsQuery(tx *gorm.DB) *gorm.DB {
	return tx.Model(&model.NamedPoint{}).Order("seq")
}
