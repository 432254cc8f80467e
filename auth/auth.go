// Package auth logs users in and resolves login tokens to roles.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"studentparent-server-go/db"
	"studentparent-server-go/models"
)

// ErrInvalidCredentials is returned for an unknown phone or a wrong password.
var ErrInvalidCredentials = errors.New("手机号或密码错误")

// Users looks up accounts by phone number.
type Users interface {
	UserByPhone(ctx context.Context, phone string) (models.User, error)
}

// HashPassword returns the bcrypt hash stored for an account.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password cannot be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Service logs users in and resolves tokens to roles.
type Service struct {
	users    Users
	sessions db.SessionStore
	ttl      time.Duration
	log      *logrus.Logger
}

// NewService returns a Service keeping sessions for ttl.
func NewService(users Users, sessions db.SessionStore, ttl time.Duration, log *logrus.Logger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{users: users, sessions: sessions, ttl: ttl, log: log}
}

// LoginResult is returned to a client after a successful login.
type LoginResult struct {
	Token  string      `json:"token"`
	User   models.User `json:"user"`
	Expiry time.Time   `json:"expiry,omitempty"`
}

// Login checks the password of the account registered with phone and opens a session.
func (s *Service) Login(ctx context.Context, phone, password string) (*LoginResult, error) {
	u, err := s.users.UserByPhone(ctx, phone)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !CheckPassword(u.PasswordHash, password) {
		s.log.WithField("phone", phone).Warn("登录密码错误")
		return nil, ErrInvalidCredentials
	}

	token := uuid.NewString()
	if err := s.sessions.SaveSession(ctx, token, models.Session{UserID: u.ID, Role: u.Role}, s.ttl); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"userId": u.ID, "role": u.Role}).Info("用户登录成功")

	res := &LoginResult{Token: token, User: u}
	if s.ttl > 0 {
		res.Expiry = time.Now().Add(s.ttl)
	}
	return res, nil
}

// Logout ends the session of token. Unknown tokens are ignored.
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.sessions.DeleteSession(ctx, token)
}

// Resolve returns the role bound to token, or RoleUnknown when there is none.
func (s *Service) Resolve(ctx context.Context, token string) (models.Role, error) {
	if token == "" {
		return models.RoleUnknown, nil
	}
	session, ok, err := s.sessions.LoadSession(ctx, token)
	if err != nil {
		return models.RoleUnknown, err
	}
	if !ok {
		return models.RoleUnknown, nil
	}
	return session.Role, nil
}
