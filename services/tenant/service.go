package tenant

import (
	"context"
	"strings"

	"edgegate/pkg/errutil"
	"edgegate/pkg/repository"

	"github.com/gosimple/slug"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db   *gorm.DB
	repo repository.Repository[Account]
}

type ServiceParams struct {
	fx.In
	DB *gorm.DB
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:   p.DB,
		repo: repository.ProvideStore[Account](p.DB),
	}
}

// Get loads a single account by id.
func (s *Service) Get(ctx context.Context, accountID string) (*Account, error) {
	if strings.TrimSpace(accountID) == "" {
		return nil, errutil.BadRequest("accountId is required", nil)
	}

	account, err := s.repo.FindOne(ctx, &Account{ID: accountID})
	if err != nil {
		zap.L().Error("failed to get account", zap.Error(err), zap.String("account_id", accountID))
		return nil, errutil.Internal("failed to get account", err, errutil.WithErr(err))
	}

	if account == nil {
		return nil, errutil.NotFound("account not found", nil)
	}

	return account, nil
}

// SlugFor returns the account's slug, deriving one from its name when the
// account predates slug assignment.
func (s *Service) SlugFor(account *Account) string {
	if account.Slug != "" {
		return account.Slug
	}
	return slug.Make(account.Name)
}
