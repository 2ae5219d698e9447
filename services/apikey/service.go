package apikey

import (
	"context"
	"strings"
	"time"

	"edgegate/pkg/db/option"
	"edgegate/pkg/db/pagination"
	"edgegate/pkg/errutil"
	"edgegate/pkg/keyhash"
	"edgegate/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"github.com/lib/pq"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db   *gorm.DB
	node *snowflake.Node
	repo repository.Repository[APIKey]
}

type ServiceParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:   p.DB,
		node: p.Node,
		repo: repository.ProvideStore[APIKey](p.DB),
	}
}

type IssueInput struct {
	AccountID string
	Name      string
	Scopes    []string
}

// Issue mints a new key. The plaintext is returned exactly once and is not
// recoverable afterwards.
func (s *Service) Issue(ctx context.Context, in IssueInput) (*APIKey, string, error) {
	if strings.TrimSpace(in.AccountID) == "" {
		return nil, "", errutil.BadRequest("accountId is required", nil)
	}

	plaintext := keyhash.Generate()
	record := &APIKey{
		ID:        "key_" + s.node.Generate().String(),
		TenantID:  in.AccountID,
		Name:      in.Name,
		KeyPrefix: keyhash.Prefix(plaintext),
		KeyHash:   keyhash.Hash(plaintext),
		Scopes:    pq.StringArray(in.Scopes),
		Status:    APIKeyStatusActive,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.repo.Create(ctx, record); err != nil {
		zap.L().Error("failed to create api key", zap.Error(err), zap.String("account_id", in.AccountID))
		return nil, "", errutil.Internal("failed to create api key", err, errutil.WithErr(err))
	}

	zap.L().Info("api key issued",
		zap.String("account_id", in.AccountID),
		zap.String("key_id", record.ID),
		zap.String("key_prefix", record.KeyPrefix),
	)

	return record, plaintext, nil
}

func (s *Service) List(ctx context.Context, accountID string, page pagination.Pagination) ([]*APIKey, *pagination.PageInfo, error) {
	if strings.TrimSpace(accountID) == "" {
		return nil, nil, errutil.BadRequest("accountId is required", nil)
	}

	limit := page.Limit
	if limit <= 0 {
		limit = 100
	}

	fetch := page
	fetch.Limit = limit + 1

	keys, err := s.repo.Find(ctx, &APIKey{TenantID: accountID},
		option.WithOrder("id asc"),
		option.ApplyPagination(fetch),
	)
	if err != nil {
		zap.L().Error("failed to list api keys", zap.Error(err), zap.String("account_id", accountID))
		return nil, nil, errutil.Internal("failed to list api keys", err, errutil.WithErr(err))
	}

	pageInfo, keys := pagination.BuildCursorPageInfo(keys, limit, func(k *APIKey) string {
		cursor, _ := pagination.EncodeCursor(pagination.Cursor{ID: k.ID})
		return cursor
	})

	return keys, pageInfo, nil
}

func (s *Service) Revoke(ctx context.Context, accountID, keyID string) (*APIKey, error) {
	record, err := s.loadScoped(ctx, accountID, keyID)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, record.ID, map[string]any{"status": APIKeyStatusRevoked}); err != nil {
		zap.L().Error("failed to revoke api key", zap.Error(err), zap.String("key_id", keyID))
		return nil, errutil.Internal("failed to revoke api key", err, errutil.WithErr(err))
	}

	record.Status = APIKeyStatusRevoked
	zap.L().Info("api key revoked", zap.String("account_id", accountID), zap.String("key_id", keyID))

	return record, nil
}

// Delete removes a key permanently. Only revoked keys may be deleted.
func (s *Service) Delete(ctx context.Context, accountID, keyID string) error {
	record, err := s.loadScoped(ctx, accountID, keyID)
	if err != nil {
		return err
	}

	if record.Status != APIKeyStatusRevoked {
		return errutil.Conflict("api key must be revoked before deletion", nil)
	}

	if _, err := s.repo.Delete(ctx, &APIKey{ID: record.ID, TenantID: accountID}); err != nil {
		zap.L().Error("failed to delete api key", zap.Error(err), zap.String("key_id", keyID))
		return errutil.Internal("failed to delete api key", err, errutil.WithErr(err))
	}

	return nil
}

// Authenticate resolves a presented plaintext key to its record. Lookup is
// by prefix plus exact digest; the digest comparison runs in constant time.
func (s *Service) Authenticate(ctx context.Context, presented string) (*APIKey, error) {
	if presented == "" {
		return nil, errutil.Unauthorized("invalid api key", nil)
	}

	record, err := s.repo.FindOne(ctx, &APIKey{
		KeyPrefix: keyhash.Prefix(presented),
		KeyHash:   keyhash.Hash(presented),
		Status:    APIKeyStatusActive,
	})
	if err != nil {
		zap.L().Error("failed to look up api key", zap.Error(err))
		return nil, errutil.Internal("failed to validate api key", err, errutil.WithErr(err))
	}

	if record == nil || !keyhash.Match(presented, record.KeyHash) {
		return nil, errutil.Unauthorized("invalid api key", nil)
	}

	s.touchLastUsed(record.ID)

	return record, nil
}

// touchLastUsed records key usage on a detached goroutine. The request path
// never waits on it and its failure never fails the request.
func (s *Service) touchLastUsed(keyID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		now := time.Now().UTC()
		if err := s.repo.Update(ctx, keyID, map[string]any{"last_used_at": now}); err != nil {
			zap.L().Warn("failed to update api key last_used_at", zap.Error(err), zap.String("key_id", keyID))
		}
	}()
}

func (s *Service) loadScoped(ctx context.Context, accountID, keyID string) (*APIKey, error) {
	if strings.TrimSpace(accountID) == "" || strings.TrimSpace(keyID) == "" {
		return nil, errutil.BadRequest("accountId and keyId are required", nil)
	}

	record, err := s.repo.FindOne(ctx, &APIKey{ID: keyID, TenantID: accountID})
	if err != nil {
		zap.L().Error("failed to load api key", zap.Error(err), zap.String("key_id", keyID))
		return nil, errutil.Internal("failed to load api key", err, errutil.WithErr(err))
	}

	if record == nil {
		return nil, errutil.NotFound("api key not found", nil)
	}

	return record, nil
}
