package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthenticated 请求无法解析出已认证用户
var ErrUnauthenticated = errors.New("未认证")

// Authenticator 认证能力接口
// 登录流程（OAuth 回调、会话刷新）由外部协作方负责，
// 本服务只依赖一件事：把请求解析成已认证的用户 id
type Authenticator interface {
	Authenticate(r *http.Request) (userID string, err error)
}

// JWTAuthenticator 校验 HS256 会话令牌
// 令牌来自 access_token Cookie 或 Authorization: Bearer 头，
// 要求 type=access 和 user_id 两个 claim
type JWTAuthenticator struct {
	secret []byte
}

// NewJWTAuthenticator 创建 JWT 认证器
func NewJWTAuthenticator(secret string) *JWTAuthenticator {
	return &JWTAuthenticator{secret: []byte(secret)}
}

func (a *JWTAuthenticator) Authenticate(r *http.Request) (string, error) {
	raw := tokenFromRequest(r)
	if raw == "" {
		return "", ErrUnauthenticated
	}

	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return "", ErrUnauthenticated
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrUnauthenticated
	}
	if typ, _ := claims["type"].(string); typ != "access" {
		return "", fmt.Errorf("%w: 令牌类型错误", ErrUnauthenticated)
	}
	userID, _ := claims["user_id"].(string)
	if userID == "" {
		return "", ErrUnauthenticated
	}

	return userID, nil
}

// tokenFromRequest 提取令牌：优先 Cookie，其次 Bearer 头
func tokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie("access_token"); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}

// Static 固定身份认证器（仅限本地开发和测试）
type Static string

func (s Static) Authenticate(*http.Request) (string, error) {
	return string(s), nil
}

const userIDKey = "user_id"

// Middleware 认证中间件
// 认证失败返回 401，成功则把用户 id 注入请求上下文
func Middleware(a Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := a.Authenticate(c.Request)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

// UserID 从请求上下文取出已认证的用户 id
func UserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}
