package db

import (
	"context"
	"errors"
	"sync"

	"location-service/model"

	"gorm.io/gorm"
)

// UserStore 用户存储
type UserStore interface {
	FindByUsername(ctx context.Context, username string) (*model.User, error)
	Create(ctx context.Context, u *model.User) error
}

// GormUserStore 基于 gorm 的用户存储
type GormUserStore struct {
	conn *gorm.DB
}

// NewGormUserStore 创建用户存储
func NewGormUserStore(conn *gorm.DB) *GormUserStore {
	return &GormUserStore{conn: conn}
}

func (s *GormUserStore) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	var u model.User
	err := s.conn.WithContext(ctx).Where("username = ?", username).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *GormUserStore) Create(ctx context.Context, u *model.User) error {
	if _, err := s.FindByUsername(ctx, u.Username); err == nil {
		return ErrDuplicateUser
	} else if !errors.Is(err, ErrUserNotFound) {
		return err
	}
	return s.conn.WithContext(ctx).Create(u).Error
}

// MemoryUserStore 内存用户存储 (未启用数据库时使用)
type MemoryUserStore struct {
	mu     sync.RWMutex
	users  map[string]*model.User
	nextID uint
}

// NewMemoryUserStore 创建内存用户存储, 可传入初始用户
func NewMemoryUserStore(seed ...*model.User) *MemoryUserStore {
	s := &MemoryUserStore{users: make(map[string]*model.User)}
	for _, u := range seed {
		_ = s.Create(context.Background(), u)
	}
	return s
}

func (s *MemoryUserStore) FindByUsername(_ context.Context, username string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[username]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryUserStore) Create(_ context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[u.Username]; exists {
		return ErrDuplicateUser
	}
	s.nextID++
	u.ID = s.nextID
	cp := *u
	s.users[u.Username] = &cp
	return nil
}
