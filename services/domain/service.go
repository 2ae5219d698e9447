package domain

import (
	"context"
	"strings"
	"time"

	"edgegate/pkg/dns"
	"edgegate/pkg/errutil"
	"edgegate/pkg/rediskey"
	"edgegate/pkg/repository"
	"edgegate/pkg/util"

	"github.com/bwmarrin/snowflake"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"edgegate/pkg/db/option"
	"edgegate/pkg/db/pagination"
	"edgegate/services/tenant"
)

var validate = validator.New()

// NormalizeHostname lowercases and strips the trailing dot, rejecting
// anything that is not a bare DNS name (scheme, path, port, spaces).
func NormalizeHostname(raw string) (string, error) {
	host := strings.ToLower(strings.TrimSpace(raw))
	host = strings.TrimSuffix(host, ".")

	if host == "" || strings.Contains(host, "://") || strings.ContainsAny(host, "/:@?#& ") {
		return "", errutil.BadRequest("invalid domain format", nil)
	}

	if err := validate.Var(host, "required,fqdn,max=253"); err != nil {
		return "", errutil.BadRequest("invalid domain format", nil, errutil.WithErr(err))
	}

	return host, nil
}

// Verifier is the ownership check the registry delegates to. Satisfied by
// *dns.Verifier; stubbed in tests.
type Verifier interface {
	VerifyTXT(ctx context.Context, hostname, expectedToken string) (*dns.Result, error)
}

// invalidationPublisher broadcasts dropped bindings to running gateway
// instances. Satisfied by *redis.Client; stubbed in tests.
type invalidationPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	repo     repository.Repository[Domain]
	verifier Verifier
	accounts *tenant.Service
	rdb      invalidationPublisher
}

type ServiceParams struct {
	fx.In
	DB       *gorm.DB
	Node     *snowflake.Node
	Verifier *dns.Verifier
	Accounts *tenant.Service
	Redis    *redis.Client `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	s := &Service{
		db:       p.DB,
		node:     p.Node,
		repo:     repository.ProvideStore[Domain](p.DB),
		verifier: p.Verifier,
		accounts: p.Accounts,
	}
	if p.Redis != nil {
		s.rdb = p.Redis
	}
	return s
}

func (s *Service) List(ctx context.Context, accountID string, page pagination.Pagination) ([]*Domain, *pagination.PageInfo, error) {
	span := trace.SpanFromContext(ctx)

	zapLog := zap.L().With(
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("span_id", span.SpanContext().SpanID().String()),
	)

	if strings.TrimSpace(accountID) == "" {
		return nil, nil, errutil.BadRequest("accountId is required", nil)
	}

	limit := page.Limit
	if limit <= 0 {
		limit = 100
	}

	// Over-fetch by one row to learn whether a next page exists.
	fetch := page
	fetch.Limit = limit + 1

	domains, err := s.repo.Find(ctx, &Domain{TenantID: accountID},
		option.WithOrder("id asc"),
		option.ApplyPagination(fetch),
	)
	if err != nil {
		zapLog.Error("failed to list domains", zap.Error(err), zap.String("account_id", accountID))
		return nil, nil, errutil.Internal("failed to list domains", err, errutil.WithErr(err))
	}

	pageInfo, domains := pagination.BuildCursorPageInfo(domains, limit, func(d *Domain) string {
		cursor, _ := pagination.EncodeCursor(pagination.Cursor{ID: d.ID})
		return cursor
	})

	return domains, pageInfo, nil
}

type CreateInput struct {
	AccountID          string
	Hostname           string
	Slug               string
	RecordType         RecordType
	VerificationTarget string
}

func (s *Service) Create(ctx context.Context, in CreateInput) (*Domain, error) {
	span := trace.SpanFromContext(ctx)

	zapLog := zap.L().With(
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("span_id", span.SpanContext().SpanID().String()),
	)

	hostname, err := NormalizeHostname(in.Hostname)
	if err != nil {
		return nil, err
	}

	account, err := s.accounts.Get(ctx, in.AccountID)
	if err != nil {
		return nil, err
	}

	// Uniqueness is global: a hostname can belong to at most one tenant.
	claimed, err := s.repo.Count(ctx, &Domain{Hostname: hostname})
	if err != nil {
		zapLog.Error("failed to check hostname uniqueness", zap.Error(err), zap.String("hostname", hostname))
		return nil, errutil.Internal("failed to create domain", err, errutil.WithErr(err))
	}
	if claimed > 0 {
		return nil, errutil.Conflict("domain already exists", nil)
	}

	tenantSlug := in.Slug
	if tenantSlug == "" {
		tenantSlug = s.accounts.SlugFor(account)
	}

	recordType := in.RecordType
	if recordType == "" {
		recordType = RecordTXT
	}
	if recordType.String() == "" {
		return nil, errutil.BadRequest("unsupported dns record type", nil)
	}

	now := time.Now().UTC()
	record := &Domain{
		ID:                 "dom_" + s.node.Generate().String(),
		CreatedAt:          now,
		UpdatedAt:          now,
		TenantID:           account.ID,
		TenantSlug:         tenantSlug,
		Hostname:           hostname,
		RecordType:         recordType,
		VerificationToken:  util.GenerateVerificationToken(),
		VerificationTarget: in.VerificationTarget,
		Status:             StatusPending,
	}

	if err := s.repo.Create(ctx, record); err != nil {
		if isUniqueViolation(err) {
			return nil, errutil.Conflict("domain already exists", nil)
		}
		zapLog.Error("failed to create domain", zap.Error(err), zap.String("hostname", hostname))
		return nil, errutil.Internal("failed to create domain", err, errutil.WithErr(err))
	}

	zapLog.Info("custom domain created",
		zap.String("account_id", account.ID),
		zap.String("hostname", hostname),
	)

	return record, nil
}

func (s *Service) Delete(ctx context.Context, accountID, domainID string) error {
	span := trace.SpanFromContext(ctx)

	zapLog := zap.L().With(
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("span_id", span.SpanContext().SpanID().String()),
	)

	var record *Domain
	err := s.db.Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTrx(tx)

		var err error
		record, err = repo.FindOne(ctx, &Domain{ID: domainID, TenantID: accountID})
		if err != nil {
			zapLog.Error("failed to load domain", zap.Error(err), zap.String("domain_id", domainID))
			return errutil.Internal("failed to delete domain", err, errutil.WithErr(err))
		}
		if record == nil {
			return errutil.NotFound("domain not found", nil)
		}

		rows, err := repo.Delete(ctx, &Domain{ID: domainID, TenantID: accountID})
		if err != nil {
			zapLog.Error("failed to delete domain", zap.Error(err), zap.String("domain_id", domainID))
			return errutil.Internal("failed to delete domain", err, errutil.WithErr(err))
		}
		if rows == 0 {
			return errutil.NotFound("domain not found", nil)
		}

		return nil
	})
	if err != nil {
		return err
	}

	s.invalidateBinding(record.Hostname)

	zapLog.Info("custom domain deleted",
		zap.String("account_id", accountID),
		zap.String("hostname", record.Hostname),
	)

	return nil
}

// Verify runs the DNS ownership check for one domain and persists the
// outcome. A transport failure still persists an error state but is
// signalled to the caller as a distinct error; re-verification of an
// already-active domain is allowed and may demote it.
func (s *Service) Verify(ctx context.Context, accountID, domainID string) (*Domain, *dns.Result, error) {
	span := trace.SpanFromContext(ctx)

	zapLog := zap.L().With(
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("span_id", span.SpanContext().SpanID().String()),
	)

	record, err := s.repo.FindOne(ctx, &Domain{ID: domainID, TenantID: accountID})
	if err != nil {
		zapLog.Error("failed to load domain", zap.Error(err), zap.String("domain_id", domainID))
		return nil, nil, errutil.Internal("failed to verify domain", err, errutil.WithErr(err))
	}
	if record == nil {
		return nil, nil, errutil.NotFound("domain not found", nil)
	}

	result, verifyErr := s.verifier.VerifyTXT(ctx, record.Hostname, record.ExpectedTXTValue())

	now := time.Now().UTC()
	if verifyErr != nil {
		// Transport/protocol failure: record it, then surface it as a
		// gateway error rather than a mismatch.
		if err := s.applyOutcome(ctx, record, verificationUpdate(false, verifyErr.Error(), now)); err != nil {
			return nil, nil, err
		}

		s.invalidateBinding(record.Hostname)

		zapLog.Warn("DNS verification transport failure",
			zap.String("hostname", record.Hostname),
			zap.Error(verifyErr),
		)

		return record, nil, errutil.BadGateway("dns verification failed", verifyErr, errutil.WithErr(verifyErr))
	}

	if err := s.applyOutcome(ctx, record, verificationUpdate(result.Matched, result.Reason, now)); err != nil {
		return nil, nil, err
	}

	s.invalidateBinding(record.Hostname)

	zapLog.Info("domain verification completed",
		zap.String("account_id", accountID),
		zap.String("hostname", record.Hostname),
		zap.Bool("matched", result.Matched),
	)

	return record, result, nil
}

// applyOutcome writes a verification outcome and refreshes the in-memory
// record to match what was persisted.
func (s *Service) applyOutcome(ctx context.Context, record *Domain, updates map[string]any) error {
	if err := s.repo.Update(ctx, record.ID, updates); err != nil {
		zap.L().Error("failed to persist verification outcome", zap.Error(err), zap.String("domain_id", record.ID))
		return errutil.Internal("failed to persist verification outcome", err, errutil.WithErr(err))
	}

	record.UpdatedAt = updates["updated_at"].(time.Time)
	checkedAt := updates["last_checked_at"].(time.Time)
	record.LastCheckedAt = &checkedAt
	record.Status = updates["status"].(Status)

	if reason, ok := updates["last_error"].(string); ok {
		record.LastError = &reason
	} else {
		record.LastError = nil
	}

	if verifiedAt, ok := updates["verified_at"].(time.Time); ok {
		record.VerifiedAt = &verifiedAt
	} else {
		record.VerifiedAt = nil
	}

	return nil
}

// ResolveActive maps a hostname to its tenant binding, filtered to active
// domains. Called by the edge router through the resolver cache, never by
// end users.
func (s *Service) ResolveActive(ctx context.Context, hostname string) (*Binding, error) {
	host, err := NormalizeHostname(hostname)
	if err != nil {
		return nil, err
	}

	record, err := s.repo.FindOne(ctx, &Domain{Hostname: host, Status: StatusActive})
	if err != nil {
		zap.L().Error("failed to resolve hostname", zap.Error(err), zap.String("hostname", host))
		return nil, errutil.Internal("failed to resolve hostname", err, errutil.WithErr(err))
	}
	if record == nil {
		return nil, errutil.NotFound("domain not found", nil)
	}

	return record.ToBinding(), nil
}

// invalidateBinding tells every gateway instance to drop its cached binding
// for hostname. Best-effort: a missed publish only extends staleness to the
// cache TTL.
func (s *Service) invalidateBinding(hostname string) {
	if s.rdb == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		if err := s.rdb.Publish(ctx, rediskey.DomainInvalidationChannel, hostname).Err(); err != nil {
			zap.L().Warn("failed to publish domain invalidation", zap.Error(err), zap.String("hostname", hostname))
		}
	}()
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate") || strings.Contains(msg, "unique")
}
