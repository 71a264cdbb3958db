package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/saimambayao/tms-access/internal/shared"
	"github.com/saimambayao/tms-access/internal/users"
)

// RepositoryPort defines data access methods for service tokens.
type RepositoryPort interface {
	CreateToken(ctx context.Context, t ServiceToken) error
	GetToken(ctx context.Context, id uuid.UUID) (ServiceToken, error)
	TouchToken(ctx context.Context, id uuid.UUID) error
	RevokeToken(ctx context.Context, id uuid.UUID) error
}

// UserLookup resolves the user a token belongs to. Satisfied by the users
// service.
type UserLookup interface {
	GetUser(ctx context.Context, id int64) (users.User, error)
}

// Service wraps token authentication business rules.
type Service struct {
	repo  RepositoryPort
	users UserLookup
}

// NewService constructs a new Service.
func NewService(repo RepositoryPort, users UserLookup) *Service {
	return &Service{repo: repo, users: users}
}

// Issue mints a token for a user. The returned plaintext has the form
// "<id>.<secret>" and is shown exactly once.
func (s *Service) Issue(ctx context.Context, userID int64, name string) (string, ServiceToken, error) {
	if _, err := s.users.GetUser(ctx, userID); err != nil {
		return "", ServiceToken{}, err
	}
	secretBytes := make([]byte, 24)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", ServiceToken{}, fmt.Errorf("auth: generate secret: %w", err)
	}
	secret := hex.EncodeToString(secretBytes)
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", ServiceToken{}, fmt.Errorf("auth: hash secret: %w", err)
	}
	token := ServiceToken{
		ID:         uuid.New(),
		UserID:     userID,
		Name:       strings.TrimSpace(name),
		SecretHash: string(hash),
	}
	if err := s.repo.CreateToken(ctx, token); err != nil {
		return "", ServiceToken{}, err
	}
	return token.ID.String() + "." + secret, token, nil
}

// Revoke withdraws a token.
func (s *Service) Revoke(ctx context.Context, id uuid.UUID) error {
	return s.repo.RevokeToken(ctx, id)
}

// Authenticate validates a bearer token and resolves the caller's identity.
// Inactive users authenticate as nobody.
func (s *Service) Authenticate(ctx context.Context, bearer string) (shared.Identity, error) {
	id, secret, ok := splitToken(bearer)
	if !ok {
		return shared.Identity{}, shared.ErrInvalidCredentials
	}
	token, err := s.repo.GetToken(ctx, id)
	if err != nil {
		return shared.Identity{}, shared.ErrInvalidCredentials
	}
	if token.Revoked() {
		return shared.Identity{}, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(token.SecretHash), []byte(secret)); err != nil {
		return shared.Identity{}, shared.ErrInvalidCredentials
	}
	user, err := s.users.GetUser(ctx, token.UserID)
	if err != nil || !user.IsActive {
		return shared.Identity{}, shared.ErrInvalidCredentials
	}
	_ = s.repo.TouchToken(ctx, id)
	return shared.Identity{UserID: user.ID, Role: user.Role, Chapter: user.Chapter}, nil
}

func splitToken(bearer string) (uuid.UUID, string, bool) {
	parts := strings.SplitN(strings.TrimSpace(bearer), ".", 2)
	if len(parts) != 2 || parts[1] == "" {
		return uuid.UUID{}, "", false
	}
	id, err := uuid.Parse(parts[0])
	if err != nil {
		return uuid.UUID{}, "", false
	}
	return id, parts[1], true
}
