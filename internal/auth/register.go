package auth

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/forgelabs-ai/mediaforge-backend/internal/credits"
	"github.com/forgelabs-ai/mediaforge-backend/internal/users"
	"github.com/forgelabs-ai/mediaforge-backend/pkg/config"
	"github.com/forgelabs-ai/mediaforge-backend/pkg/db/models"
	"github.com/forgelabs-ai/mediaforge-backend/pkg/enums"
	pkgerrors "github.com/forgelabs-ai/mediaforge-backend/pkg/errors"
	"github.com/forgelabs-ai/mediaforge-backend/pkg/security"
)

// RegisterService handles account creation. The user row and the signup
// bonus commit in one transaction so no account ever exists without its
// opening ledger entry.
type RegisterService interface {
	Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error)
}

type registerUserRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, dto users.CreateUserDTO) (*models.User, error)
}

// RegisterServiceParams packages the dependencies for the registration flow.
type RegisterServiceParams struct {
	TxRunner credits.TxRunner
	Credits  credits.Service
	// UserRepoFactory builds the user repository bound to the transaction.
	// Defaults to the gorm-backed repository.
	UserRepoFactory func(tx *gorm.DB) registerUserRepository
	PasswordCfg     config.PasswordConfig
	JWTCfg          config.JWTConfig
	CreditsCfg      config.CreditsConfig
}

type registerService struct {
	tx          credits.TxRunner
	credits     credits.Service
	userRepo    func(tx *gorm.DB) registerUserRepository
	passwordCfg config.PasswordConfig
	jwtCfg      config.JWTConfig
	creditsCfg  config.CreditsConfig
}

// NewRegisterService builds a registration service with the provided dependencies.
func NewRegisterService(params RegisterServiceParams) (RegisterService, error) {
	if params.TxRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "tx runner required")
	}
	if params.Credits == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "credits service required")
	}
	userRepo := params.UserRepoFactory
	if userRepo == nil {
		userRepo = func(tx *gorm.DB) registerUserRepository {
			return users.NewRepository(tx)
		}
	}
	return &registerService{
		tx:          params.TxRunner,
		credits:     params.Credits,
		userRepo:    userRepo,
		passwordCfg: params.PasswordCfg,
		jwtCfg:      params.JWTCfg,
		creditsCfg:  params.CreditsCfg,
	}, nil
}

func (s *registerService) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}
	if len(req.Password) < 8 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "password must be at least 8 characters")
	}
	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "display name is required")
	}

	passwordHash, err := security.HashPassword(req.Password, s.passwordCfg)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}

	var user *models.User
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		userRepo := s.userRepo(tx)

		if _, err := userRepo.FindByEmail(ctx, email); err == nil {
			return pkgerrors.New(pkgerrors.CodeDuplicateRequest, "email already registered")
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check user email")
		}

		user, err = userRepo.Create(ctx, users.CreateUserDTO{
			Email:        email,
			PasswordHash: passwordHash,
			DisplayName:  displayName,
			Tier:         enums.UserTierFree,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create user")
		}

		if s.creditsCfg.SignupBonus > 0 {
			metadata, _ := json.Marshal(map[string]string{"reason": "signup_bonus"})
			entry, err := s.credits.CreditInTx(ctx, tx, credits.MutationInput{
				UserID:    user.ID,
				Amount:    s.creditsCfg.SignupBonus,
				Operation: enums.LedgerOperationSignupBonus,
				Metadata:  metadata,
			})
			if err != nil {
				return err
			}
			user.Credits = entry.BalanceAfter
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	token, expiresIn, err := mintToken(s.jwtCfg, user)
	if err != nil {
		return nil, err
	}
	return &AuthResponse{
		User:        users.FromModel(user),
		AccessToken: token,
		ExpiresIn:   expiresIn,
	}, nil
}
