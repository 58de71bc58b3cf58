package types

import "time"

// Admin 管理员账号，系统只有一个，凭据来自配置
type Admin struct {
	Email        string `json:"email"`
	PasswordHash string `json:"-"` // 哈希不会在JSON中返回
}

// Session 已认证的管理员会话
type Session struct {
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}
