package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/docuchat-io/docuchat/internal/model"
	"github.com/docuchat-io/docuchat/internal/pkg/errs"
	"github.com/docuchat-io/docuchat/internal/pkg/jwt"
	"github.com/docuchat-io/docuchat/internal/pkg/password"
)

// UserStore is the slice of the metadata store auth needs. Implemented by
// repo.UserRepo.
type UserStore interface {
	CreateWithCompany(ctx context.Context, company *model.Company, user *model.User) error
	GetByEmail(ctx context.Context, email string) (*model.User, error)
}

type AuthService struct {
	users     UserStore
	jwtSecret []byte
	jwtTTL    time.Duration
}

func NewAuthService(users UserStore, secret []byte, ttl time.Duration) *AuthService {
	return &AuthService{users: users, jwtSecret: secret, jwtTTL: ttl}
}

// Register creates a company with its first user and issues a token.
func (s *AuthService) Register(ctx context.Context, companyName, email, plainPassword string) (*model.User, string, error) {
	companyName = strings.TrimSpace(companyName)
	email = strings.ToLower(strings.TrimSpace(email))
	if companyName == "" || email == "" || len(plainPassword) < 8 {
		return nil, "", fmt.Errorf("%w: company name, email and a password of at least 8 characters are required", errs.ErrInvalid)
	}
	hash, err := password.Hash(plainPassword)
	if err != nil {
		return nil, "", err
	}
	now := time.Now().UnixMilli()
	company := &model.Company{
		ID:    uuid.NewString(),
		Name:  companyName,
		Ctime: now,
	}
	user := &model.User{
		ID:           uuid.NewString(),
		CompanyID:    company.ID,
		Email:        email,
		PasswordHash: hash,
		Ctime:        now,
	}
	// single transaction: a duplicate email must not leave a company behind
	if err := s.users.CreateWithCompany(ctx, company, user); err != nil {
		return nil, "", err
	}
	token, err := jwt.GenerateToken(user.ID, user.CompanyID, user.Email, s.jwtSecret, s.jwtTTL)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

func (s *AuthService) Login(ctx context.Context, email, plainPassword string) (*model.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, "", errs.ErrUnauthorized
	}
	if err := password.Compare(user.PasswordHash, plainPassword); err != nil {
		return nil, "", errs.ErrUnauthorized
	}
	token, err := jwt.GenerateToken(user.ID, user.CompanyID, user.Email, s.jwtSecret, s.jwtTTL)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}
