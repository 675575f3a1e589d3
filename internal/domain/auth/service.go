package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/tapfinity/tapfinity-api/internal/domain/account"
	"github.com/tapfinity/tapfinity-api/internal/pkg/jwt"
	"github.com/tapfinity/tapfinity-api/internal/pkg/password"
)

// AccountReader is the slice of the account store that login needs.
type AccountReader interface {
	GetByEmail(ctx context.Context, email string) (*account.Account, error)
}

type Service struct {
	accounts   AccountReader
	jwtService *jwt.Service
}

func NewService(accounts AccountReader, jwtService *jwt.Service) *Service {
	return &Service{accounts: accounts, jwtService: jwtService}
}

// LoginResult pairs the issued token with the authenticated account.
type LoginResult struct {
	Token   string
	Account *account.Account
}

// Login authenticates by email and password. A missing account and a wrong
// password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, pass string) (*LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	acc, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !password.Verify(pass, acc.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	token, err := s.jwtService.GenerateAccessToken(acc.ID, acc.Role)
	if err != nil {
		return nil, err
	}

	log.Info().Str("user_id", acc.ID.String()).Str("role", acc.Role).Msg("login")
	return &LoginResult{Token: token, Account: acc}, nil
}
