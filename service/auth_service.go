package service

import (
	"context"
	"errors"
	"fmt"

	cmtlog "github.com/cometbft/cometbft/libs/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/clinchain/backend/repository/models"
)

// TokenIssuer mints a bearer token for an authenticated account.
type TokenIssuer interface {
	Issue(username string, role models.Role) (string, error)
}

// LoginResult is a successful authentication: the bearer token plus the
// account it was issued for.
type LoginResult struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// AuthService authenticates actor accounts against their stored bcrypt hash.
type AuthService struct {
	users  UserStore
	tokens TokenIssuer
	logger cmtlog.Logger
}

func NewAuthService(users UserStore, tokens TokenIssuer, logger cmtlog.Logger) *AuthService {
	return &AuthService{
		users:  users,
		tokens: tokens,
		logger: logger,
	}
}

// Login verifies the password and issues a token. An unknown username and a
// wrong password both report ErrInvalidCredentials so that login failures do
// not reveal which accounts exist.
func (s *AuthService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(user.Username, user.Role)
	if err != nil {
		return nil, fmt.Errorf("issuing token: %w", err)
	}

	s.logger.Info("Login succeeded", "username", username, "role", user.Role)
	return &LoginResult{Token: token, User: user}, nil
}
