package model

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"
)

// User 用户结构体 (用于登录认证)
type User struct {
	gorm.Model
	Username string         `json:"username" gorm:"uniqueIndex;not null"` // 用户名唯一且不为空
	Password string         `json:"-" gorm:"not null"`                    // 加密后的密码
	Email    string         `json:"email"`
	Roles    pq.StringArray `json:"roles" gorm:"type:text[]"` // 如: ["admin", "staff"]
}

// HasRole 判断用户是否拥有某个角色
func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// SearchHistory 搜索记录
type SearchHistory struct {
	ID    uint      `gorm:"primaryKey"`
	Query string    `gorm:"not null;index"`
	Lat   *float64  // 可选: 选中地点的坐标
	Lon   *float64
	At    time.Time `gorm:"autoCreateTime;index"`
}
