package httpapi

import (
	"context"
	"crypto/subtle"
	"errors"
	"log"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"filmtrack/backend/internal/domain"
	"filmtrack/backend/internal/service"
	"filmtrack/backend/internal/store"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

type AuthManager struct {
	secret    []byte
	tokenTTL  time.Duration
	userStore UserStore
}

type UserStore interface {
	GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

type filmtrackClaims struct {
	jwtlib.RegisteredClaims
	UserID string `json:"uid"`
	Role   string `json:"role"`
}

func NewAuthManager(secret string, tokenTTL time.Duration, userStore UserStore) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}
	return &AuthManager{
		secret:    []byte(secret),
		tokenTTL:  tokenTTL,
		userStore: userStore,
	}
}

// Login checks credentials against the user store on every call, so accounts
// added or removed by another process are seen immediately.
func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	username := strings.ToLower(strings.TrimSpace(req.Username))
	if username == "" || req.Password == "" {
		return domain.LoginResponse{}, ErrInvalidCredentials
	}

	user, err := a.userStore.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.LoginResponse{}, ErrInvalidCredentials
		}
		return domain.LoginResponse{}, err
	}

	if !service.IsPasswordHash(user.Password) {
		// Legacy plain-text row: compare once, then upgrade it to bcrypt.
		if subtle.ConstantTimeCompare([]byte(user.Password), []byte(req.Password)) != 1 {
			return domain.LoginResponse{}, ErrInvalidCredentials
		}
		if hashed, err := service.HashPassword(req.Password); err == nil {
			if err := a.userStore.UpdateUserPassword(ctx, user.Username, hashed); err != nil {
				log.Printf("[auth] WARN: failed to upgrade legacy password for %s: %v", user.Username, err)
			}
		}
	} else if !service.VerifyPassword(user.Password, req.Password) {
		return domain.LoginResponse{}, ErrInvalidCredentials
	}

	expiresAt := time.Now().UTC().Add(a.tokenTTL)
	token, err := a.sign(*user, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}

	return domain.LoginResponse{
		Token:     token,
		ExpiresAt: expiresAt.Format(time.RFC3339),
		User:      user.Public(),
	}, nil
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &filmtrackClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return domain.Actor{}, errors.New("invalid or expired token")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Actor{}, errors.New("invalid token subject")
	}
	role := domain.Role(claims.Role)
	if !role.Valid() {
		return domain.Actor{}, errors.New("invalid token role")
	}
	return domain.Actor{UserID: claims.UserID, Username: sub, Role: role}, nil
}

func (a *AuthManager) sign(user domain.UserAccount, expiresAt time.Time) (string, error) {
	claims := filmtrackClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   user.Username,
			IssuedAt:  jwtlib.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    "filmtrack",
		},
		UserID: user.ID,
		Role:   string(user.Role),
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}
