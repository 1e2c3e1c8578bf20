package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"filmtrack/backend/internal/domain"
)

func (s *Service) CreateUser(ctx context.Context, req domain.UserCreateRequest) (domain.User, error) {
	if _, err := s.authorize(ctx, CapManageUsers); err != nil {
		return domain.User{}, err
	}

	account, err := newAccount(req)
	if err != nil {
		return domain.User{}, err
	}
	if err := s.repo.CreateUser(ctx, account); err != nil {
		return domain.User{}, err
	}
	created, err := s.repo.GetUserByUsername(ctx, account.Username)
	if err != nil {
		return domain.User{}, err
	}

	s.logAudit(ctx, "user_create", "user", created.ID, "role="+string(created.Role))
	return created.Public(), nil
}

// BootstrapAdmin creates the first admin account on a store with no users.
// It reports false and changes nothing once any account exists.
func (s *Service) BootstrapAdmin(ctx context.Context, username string, password string) (bool, error) {
	existing, err := s.repo.ListUsers(ctx)
	if err != nil {
		return false, err
	}
	if len(existing) > 0 {
		return false, nil
	}

	account, err := newAccount(domain.UserCreateRequest{Username: username, Password: password, Role: domain.RoleAdmin})
	if err != nil {
		return false, err
	}
	if err := s.repo.CreateUser(ctx, account); err != nil {
		return false, err
	}
	created, err := s.repo.GetUserByUsername(ctx, account.Username)
	if err != nil {
		return false, err
	}

	s.logAudit(ctx, "user_bootstrap", "user", created.ID, "role=admin")
	return true, nil
}

func newAccount(req domain.UserCreateRequest) (domain.UserAccount, error) {
	username := strings.ToLower(strings.TrimSpace(req.Username))
	if len(username) < 3 {
		return domain.UserAccount{}, invalid("username must be at least 3 characters")
	}
	if strings.ContainsAny(username, " \t\r\n") {
		return domain.UserAccount{}, invalid("username must not contain spaces")
	}
	if len(req.Password) < 6 {
		return domain.UserAccount{}, invalid("password must be at least 6 characters")
	}
	if req.Role == "" {
		req.Role = domain.RoleUser
	}
	if !req.Role.Valid() {
		return domain.UserAccount{}, invalid("role must be admin, user or viewer")
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		return domain.UserAccount{}, err
	}
	return domain.UserAccount{
		Username:  username,
		Email:     strings.TrimSpace(req.Email),
		Password:  hash,
		Role:      req.Role,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func (s *Service) ListUsers(ctx context.Context) ([]domain.User, error) {
	if _, err := s.authorize(ctx, CapManageUsers); err != nil {
		return nil, err
	}
	accounts, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	users := make([]domain.User, 0, len(accounts))
	for _, account := range accounts {
		users = append(users, account.Public())
	}
	return users, nil
}

// DeleteUser removes an account. Admins cannot delete themselves.
func (s *Service) DeleteUser(ctx context.Context, id string) error {
	actor, err := s.authorize(ctx, CapManageUsers)
	if err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	if id == actor.UserID {
		return fmt.Errorf("%w: cannot delete your own account", ErrForbidden)
	}
	if err := s.repo.DeleteUser(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "user_delete", "user", id, "")
	return nil
}

// Me returns the account behind the current token.
func (s *Service) Me(ctx context.Context) (domain.User, error) {
	actor, err := s.authorize(ctx, CapRead)
	if err != nil {
		return domain.User{}, err
	}
	account, err := s.repo.GetUserByUsername(ctx, actor.Username)
	if err != nil {
		return domain.User{}, err
	}
	return account.Public(), nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func VerifyPassword(stored string, input string) bool {
	if stored == "" || strings.TrimSpace(input) == "" || !IsPasswordHash(stored) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil
}

func IsPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}
