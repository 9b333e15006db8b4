package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"location-service/db"
	"location-service/model"
	"location-service/pkg/logger"
	"location-service/utils"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Claims JWT 载荷
type Claims struct {
	UserID   string   `json:"user_id"`
	Username string   `json:"username"`
	Roles    []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// LoginRequest 登录请求
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse 登录响应
type LoginResponse struct {
	Token     string    `json:"token"`
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expires_at"`
	Message   string    `json:"message"`
}

// Auth 登录注册与 JWT 校验
type Auth struct {
	Users  db.UserStore
	Secret []byte
	TTL    time.Duration
	Issuer string
}

// NewAuth 创建认证处理器
func NewAuth(users db.UserStore, secret string, ttl time.Duration) *Auth {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Auth{Users: users, Secret: []byte(secret), TTL: ttl, Issuer: "location-service"}
}

// Login 处理用户登录
func (a *Auth) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	user, err := a.Users.FindByUsername(c.Request.Context(), req.Username)
	if err != nil {
		if !errors.Is(err, db.ErrUserNotFound) {
			logger.Error("login lookup %q failed: %v", req.Username, err)
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid username or password"})
		return
	}
	if !utils.CheckPassword(user.Password, req.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid username or password"})
		return
	}

	token, expires, err := a.IssueToken(user)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}

	c.JSON(http.StatusOK, LoginResponse{
		Token:     token,
		Username:  user.Username,
		ExpiresAt: expires,
		Message:   "login successful",
	})
}

// IssueToken 为用户签发 HS256 Token
func (a *Auth) IssueToken(user *model.User) (string, time.Time, error) {
	now := time.Now()
	expires := now.Add(a.TTL)
	claims := &Claims{
		UserID:   strconv.FormatUint(uint64(user.ID), 10),
		Username: user.Username,
		Roles:    []string(user.Roles),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    a.Issuer,
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.Secret)
	return signed, expires, err
}

// Register 用户注册
func (a *Auth) Register(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required,min=6"`
		Email    string `json:"email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	hashed, err := utils.HashPassword(req.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to hash password"})
		return
	}

	user := &model.User{
		Username: req.Username,
		Password: hashed,
		Email:    req.Email,
		Roles:    []string{"user"},
	}
	if err := a.Users.Create(c.Request.Context(), user); err != nil {
		if errors.Is(err, db.ErrDuplicateUser) {
			c.JSON(http.StatusConflict, gin.H{"error": "username already exists"})
			return
		}
		logger.Error("register %q failed: %v", req.Username, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create user"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":  "registration successful",
		"username": user.Username,
	})
}

// ParseToken 校验 Token 并返回载荷
func (a *Auth) ParseToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return a.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// Middleware JWT 认证中间件
func (a *Auth) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := c.GetHeader("Authorization")
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		tokenString = strings.TrimPrefix(tokenString, "Bearer ")

		claims, err := a.ParseToken(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		// 将用户信息存入上下文
		c.Set("user_id", claims.UserID)
		c.Set("username", claims.Username)
		c.Set("roles", claims.Roles)
		c.Set("user", &model.User{Username: claims.Username, Roles: claims.Roles})
		c.Next()
	}
}

// RequireRole 要求当前用户拥有指定角色, 必须放在 Middleware 之后
func (a *Auth) RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		v, _ := c.Get("user")
		user, ok := v.(*model.User)
		if !ok || !user.HasRole(role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "permission denied"})
			return
		}
		c.Next()
	}
}
