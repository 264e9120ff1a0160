// Package auth issues and verifies the credentials protecting the
// analysis endpoints: bcrypt password hashes, short-lived HS256 access
// tokens, and opaque rotated refresh tokens stored hashed.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"pg-insight/internal/config"
	"pg-insight/internal/db"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserExists         = errors.New("user already exists")
)

// Self-registered accounts get the analyst role; the admin role is
// only ever seeded or assigned out of band.
const defaultRole = "ANALYZER"

// TokenPair is one issued access/refresh token set.
type TokenPair struct {
	Access           string
	AccessExpiresAt  time.Time
	Refresh          string
	RefreshExpiresAt time.Time
}

type accessClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

type Service struct {
	dbx *db.DB
	cfg config.Config
	log *slog.Logger
}

func NewService(dbx *db.DB, cfg config.Config, log *slog.Logger) *Service {
	return &Service{dbx: dbx, cfg: cfg, log: log}
}

// Register creates an account with the default role. Username and
// email must both be unused.
func (s *Service) Register(ctx context.Context, username, email, password, createdBy string) (*db.User, error) {
	if username == "" || email == "" || password == "" {
		return nil, fmt.Errorf("username, email and password are required")
	}

	var taken int64
	err := s.dbx.Gorm.WithContext(ctx).
		Model(&db.User{}).
		Where("username = ? OR email = ?", username, email).
		Count(&taken).Error
	if err != nil {
		return nil, fmt.Errorf("check existing user: %w", err)
	}
	if taken > 0 {
		return nil, ErrUserExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &db.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		CreatedBy:    createdBy,
		UpdatedBy:    createdBy,
		Role:         defaultRole,
	}
	if err := s.dbx.Gorm.WithContext(ctx).Create(u).Error; err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// Login verifies the password for a username or email and issues a
// token pair. A missing user and a wrong password are indistinguishable
// to the caller.
func (s *Service) Login(ctx context.Context, identifier, password string) (*db.User, TokenPair, error) {
	var u db.User
	err := s.dbx.Gorm.WithContext(ctx).
		Where("username = ? OR email = ?", identifier, identifier).
		First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, TokenPair{}, ErrInvalidCredentials
	}
	if err != nil {
		return nil, TokenPair{}, fmt.Errorf("find user: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, TokenPair{}, ErrInvalidCredentials
	}

	pair, err := s.issuePair(ctx, &u)
	if err != nil {
		return nil, TokenPair{}, err
	}
	return &u, pair, nil
}

// Refresh exchanges a live refresh token for a fresh pair. The
// presented token is consumed whether or not it has expired.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*db.User, TokenPair, error) {
	if refreshToken == "" {
		return nil, TokenPair{}, ErrInvalidCredentials
	}

	var rt db.RefreshToken
	err := s.dbx.Gorm.WithContext(ctx).
		Where("token_hash = ?", hashToken(refreshToken)).
		First(&rt).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, TokenPair{}, ErrInvalidCredentials
	}
	if err != nil {
		return nil, TokenPair{}, fmt.Errorf("find refresh token: %w", err)
	}

	if err := s.dbx.Gorm.WithContext(ctx).Delete(&rt).Error; err != nil {
		return nil, TokenPair{}, fmt.Errorf("consume refresh token: %w", err)
	}
	if time.Now().After(rt.ExpiresAt) {
		return nil, TokenPair{}, ErrInvalidCredentials
	}

	var u db.User
	if err := s.dbx.Gorm.WithContext(ctx).First(&u, "id = ?", rt.UserID).Error; err != nil {
		return nil, TokenPair{}, fmt.Errorf("load user: %w", err)
	}

	pair, err := s.issuePair(ctx, &u)
	if err != nil {
		return nil, TokenPair{}, err
	}
	return &u, pair, nil
}

// ParseToken verifies an access token and returns the subject user id.
func (s *Service) ParseToken(tokenStr string) (string, error) {
	if s.cfg.JWTSecret == "" {
		return "", fmt.Errorf("JWT_SECRET is required")
	}
	claims := &accessClaims{}
	t, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil || !t.Valid {
		return "", ErrInvalidCredentials
	}
	return claims.Subject, nil
}

func (s *Service) GetUserByID(ctx context.Context, id string) (*db.User, error) {
	var u db.User
	err := s.dbx.Gorm.WithContext(ctx).First(&u, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

func (s *Service) issuePair(ctx context.Context, u *db.User) (TokenPair, error) {
	access, accessExp, err := s.signAccessToken(u)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, refreshExp, err := s.mintRefreshToken(ctx, u.ID)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		Access:           access,
		AccessExpiresAt:  accessExp,
		Refresh:          refresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (s *Service) signAccessToken(u *db.User) (string, time.Time, error) {
	if s.cfg.JWTSecret == "" {
		return "", time.Time{}, fmt.Errorf("JWT_SECRET is required")
	}
	ttl := s.cfg.JWTTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	now := time.Now()
	exp := now.Add(ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Role: u.Role,
	})
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return signed, exp, nil
}

// mintRefreshToken stores a new opaque token for the user and returns
// the plaintext. Only the sha256 hash ever reaches the database.
func (s *Service) mintRefreshToken(ctx context.Context, userID string) (string, time.Time, error) {
	ttl := s.cfg.RefreshTTL
	if ttl <= 0 {
		ttl = 720 * time.Hour
	}
	exp := time.Now().Add(ttl)

	var raw [32]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", time.Time{}, fmt.Errorf("generate refresh token: %w", err)
	}
	plain := hex.EncodeToString(raw[:])

	rt := &db.RefreshToken{
		UserID:    userID,
		TokenHash: hashToken(plain),
		ExpiresAt: exp,
	}
	if err := s.dbx.Gorm.WithContext(ctx).Create(rt).Error; err != nil {
		return "", time.Time{}, fmt.Errorf("store refresh token: %w", err)
	}
	return plain, exp, nil
}

func hashToken(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:])
}
