package auth

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/forgelabs-ai/mediaforge-backend/internal/credits"
	"github.com/forgelabs-ai/mediaforge-backend/internal/users"
	"github.com/forgelabs-ai/mediaforge-backend/pkg/config"
	pkgmodels "github.com/forgelabs-ai/mediaforge-backend/pkg/db/models"
	"github.com/forgelabs-ai/mediaforge-backend/pkg/enums"
	pkgerrors "github.com/forgelabs-ai/mediaforge-backend/pkg/errors"
)

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type stubUserRepository struct {
	data      map[string]*pkgmodels.User
	created   *pkgmodels.User
	createErr error
}

func newStubUserRepository() *stubUserRepository {
	return &stubUserRepository{data: map[string]*pkgmodels.User{}}
}

func (s *stubUserRepository) FindByEmail(ctx context.Context, email string) (*pkgmodels.User, error) {
	if user, ok := s.data[email]; ok {
		return user, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubUserRepository) Create(ctx context.Context, dto users.CreateUserDTO) (*pkgmodels.User, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	user := dto.ToModel()
	user.ID = uuid.New()
	s.data[dto.Email] = user
	s.created = user
	return user, nil
}

type stubCreditsService struct {
	credits.Service
	granted []credits.MutationInput
	err     error
}

func (s *stubCreditsService) CreditInTx(ctx context.Context, tx *gorm.DB, input credits.MutationInput) (*pkgmodels.LedgerEntry, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.granted = append(s.granted, input)
	return &pkgmodels.LedgerEntry{
		UserID:        input.UserID,
		Delta:         input.Amount,
		OperationType: input.Operation,
		BalanceAfter:  input.Amount,
	}, nil
}

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{Secret: "test-secret", Issuer: "mediaforge-test", ExpirationMinutes: 60}
}

func newRegisterTestSetup(t *testing.T) (RegisterService, *stubUserRepository, *stubCreditsService) {
	t.Helper()
	userRepo := newStubUserRepository()
	creditsSvc := &stubCreditsService{}
	svc, err := NewRegisterService(RegisterServiceParams{
		TxRunner: stubTxRunner{},
		Credits:  creditsSvc,
		UserRepoFactory: func(tx *gorm.DB) registerUserRepository {
			return userRepo
		},
		PasswordCfg: config.PasswordConfig{},
		JWTCfg:      testJWTConfig(),
		CreditsCfg:  config.CreditsConfig{SignupBonus: 1000},
	})
	if err != nil {
		t.Fatalf("new register service: %v", err)
	}
	return svc, userRepo, creditsSvc
}

func sampleRegisterRequest(email string) RegisterRequest {
	return RegisterRequest{
		Email:       email,
		Password:    "correct-horse-battery",
		DisplayName: "Jamie",
	}
}

func TestRegisterCreatesUserWithSignupBonus(t *testing.T) {
	svc, userRepo, creditsSvc := newRegisterTestSetup(t)

	resp, err := svc.Register(context.Background(), sampleRegisterRequest("Jamie@Example.com"))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if userRepo.created == nil {
		t.Fatal("expected user to be created")
	}
	if userRepo.created.Email != "jamie@example.com" {
		t.Fatalf("expected normalized email, got %q", userRepo.created.Email)
	}
	if len(creditsSvc.granted) != 1 {
		t.Fatalf("expected 1 signup bonus grant got %d", len(creditsSvc.granted))
	}
	grant := creditsSvc.granted[0]
	if grant.Amount != 1000 || grant.Operation != enums.LedgerOperationSignupBonus {
		t.Fatalf("unexpected grant %+v", grant)
	}
	if resp.User.Credits != 1000 {
		t.Fatalf("expected credited balance in response, got %d", resp.User.Credits)
	}
	if resp.AccessToken == "" {
		t.Fatal("expected access token")
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, _, _ := newRegisterTestSetup(t)

	if _, err := svc.Register(context.Background(), sampleRegisterRequest("dup@example.com")); err != nil {
		t.Fatalf("first register: %v", err)
	}
	_, err := svc.Register(context.Background(), sampleRegisterRequest("dup@example.com"))
	if !pkgerrors.HasCode(err, pkgerrors.CodeDuplicateRequest) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc, _, _ := newRegisterTestSetup(t)

	cases := []struct {
		name string
		req  RegisterRequest
	}{
		{"missing email", RegisterRequest{Password: "longenough", DisplayName: "x"}},
		{"short password", RegisterRequest{Email: "a@b.com", Password: "short", DisplayName: "x"}},
		{"missing display name", RegisterRequest{Email: "a@b.com", Password: "longenough"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Register(context.Background(), tc.req); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestRegisterSkipsBonusWhenDisabled(t *testing.T) {
	userRepo := newStubUserRepository()
	creditsSvc := &stubCreditsService{}
	svc, err := NewRegisterService(RegisterServiceParams{
		TxRunner: stubTxRunner{},
		Credits:  creditsSvc,
		UserRepoFactory: func(tx *gorm.DB) registerUserRepository {
			return userRepo
		},
		JWTCfg:     testJWTConfig(),
		CreditsCfg: config.CreditsConfig{SignupBonus: 0},
	})
	if err != nil {
		t.Fatalf("new register service: %v", err)
	}

	resp, err := svc.Register(context.Background(), sampleRegisterRequest("nobonus@example.com"))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if len(creditsSvc.granted) != 0 {
		t.Fatal("no bonus expected when disabled")
	}
	if resp.User.Credits != 0 {
		t.Fatalf("expected zero balance, got %d", resp.User.Credits)
	}
}
