package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"ai-orchestrator/pkg/types"
	"ai-orchestrator/pkg/utils/password"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

// sessionKey gin 上下文中保存会话的键
const sessionKey = "session"

var (
	// ErrUnauthenticated 缺少或无效的会话
	ErrUnauthenticated = errors.New("Unauthenticated")
	// ErrInvalidCredentials 邮箱或密码错误
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// sessionClaims JWT 载荷
type sessionClaims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	jwt.RegisteredClaims
}

// SessionAuthenticator 单管理员会话认证
type SessionAuthenticator struct {
	logger zerolog.Logger
	admin  types.Admin
	secret []byte
	ttl    time.Duration
}

// NewSessionAuthenticator 创建会话认证器
func NewSessionAuthenticator(logger zerolog.Logger, admin types.Admin, secret string, ttl time.Duration) *SessionAuthenticator {
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	return &SessionAuthenticator{
		logger: logger.With().Str("component", "session_auth").Logger(),
		admin:  admin,
		secret: []byte(secret),
		ttl:    ttl,
	}
}

// Login 校验管理员凭据并签发令牌
func (a *SessionAuthenticator) Login(email, plain string) (string, *types.Session, error) {
	if a.admin.Email == "" || a.admin.PasswordHash == "" {
		return "", nil, fmt.Errorf("admin credentials are not configured")
	}
	if !strings.EqualFold(strings.TrimSpace(email), a.admin.Email) {
		a.logger.Debug().Str("email", email).Msg("Login with unknown email")
		return "", nil, ErrInvalidCredentials
	}

	ok, err := password.VerifyPassword(plain, a.admin.PasswordHash)
	if err != nil {
		return "", nil, fmt.Errorf("verifying password: %w", err)
	}
	if !ok {
		a.logger.Debug().Str("email", email).Msg("Login with wrong password")
		return "", nil, ErrInvalidCredentials
	}

	return a.GenerateToken(a.admin.Email)
}

// GenerateToken 签发 HS256 会话令牌
func (a *SessionAuthenticator) GenerateToken(email string) (string, *types.Session, error) {
	now := time.Now().UTC()
	session := &types.Session{
		Email:     email,
		Name:      "Admin",
		IssuedAt:  now,
		ExpiresAt: now.Add(a.ttl),
	}

	claims := sessionClaims{
		Email: session.Email,
		Name:  session.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   session.Email,
			IssuedAt:  jwt.NewNumericDate(session.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", nil, fmt.Errorf("signing token: %w", err)
	}
	return token, session, nil
}

// ParseToken 校验令牌并返回会话
func (a *SessionAuthenticator) ParseToken(tokenString string) (*types.Session, error) {
	claims := &sessionClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if !strings.EqualFold(claims.Email, a.admin.Email) {
		return nil, fmt.Errorf("%w: unknown subject", ErrUnauthenticated)
	}

	session := &types.Session{Email: claims.Email, Name: claims.Name}
	if claims.IssuedAt != nil {
		session.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time
	}
	return session, nil
}

// bearerToken 从 Authorization 头或 token 查询参数中取令牌（后者用于 websocket）
func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return c.Query("token")
}

// RequireSession 会话认证中间件
func (a *SessionAuthenticator) RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": ErrUnauthenticated.Error()})
			c.Abort()
			return
		}

		session, err := a.ParseToken(token)
		if err != nil {
			a.logger.Debug().Err(err).Str("path", c.FullPath()).Msg("Rejected session")
			c.JSON(http.StatusUnauthorized, gin.H{"error": ErrUnauthenticated.Error()})
			c.Abort()
			return
		}

		c.Set(sessionKey, session)
		c.Next()
	}
}

// SessionFrom 取出当前请求的会话
func SessionFrom(c *gin.Context) (*types.Session, bool) {
	v, ok := c.Get(sessionKey)
	if !ok {
		return nil, false
	}
	session, ok := v.(*types.Session)
	return session, ok
}
