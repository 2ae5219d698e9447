package domain

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"edgegate/pkg/dns"
	"edgegate/pkg/errutil"
	"edgegate/pkg/repository"
	"edgegate/services/tenant"
	"edgegate/services/testutil"

	"github.com/bwmarrin/snowflake"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type stubVerifier struct {
	result *dns.Result
	err    error
	calls  int
}

func (s *stubVerifier) VerifyTXT(_ context.Context, _, _ string) (*dns.Result, error) {
	s.calls++
	return s.result, s.err
}

type stubPublisher struct {
	mu    sync.Mutex
	hosts []string
}

func (s *stubPublisher) Publish(ctx context.Context, _ string, message interface{}) *redis.IntCmd {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hosts = append(s.hosts, message.(string))
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(1)
	return cmd
}

func (s *stubPublisher) published() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.hosts...)
}

func newTestService(t *testing.T, verifier Verifier) (*Service, *gorm.DB) {
	t.Helper()

	db := testutil.NewTestDB(t, &tenant.Account{}, &Domain{})

	require.NoError(t, db.Create(&tenant.Account{
		ID:     "acc_1",
		Name:   "Acme Shop",
		Slug:   "acme",
		Status: tenant.Active,
	}).Error)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	accounts := tenant.NewService(tenant.ServiceParams{DB: db})

	svc := &Service{
		db:       db,
		node:     node,
		repo:     repository.ProvideStore[Domain](db),
		verifier: verifier,
		accounts: accounts,
	}

	return svc, db
}

func errCode(t *testing.T, err error) errutil.CoreStatus {
	t.Helper()
	require.Error(t, err)
	return errutil.FromError(err).Code
}

func TestNormalizeHostname(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "Shop.Example.COM", want: "shop.example.com"},
		{in: "shop.example.com.", want: "shop.example.com"},
		{in: "  shop.example.com  ", want: "shop.example.com"},
		{in: "https://shop.example.com", wantErr: true},
		{in: "shop.example.com/path", wantErr: true},
		{in: "shop.example.com:8080", wantErr: true},
		{in: "shop example.com", wantErr: true},
		{in: "localhost", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tc := range cases {
		got, err := NormalizeHostname(tc.in)
		if tc.wantErr {
			assert.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got)
	}
}

func TestCreateDefaults(t *testing.T) {
	svc, _ := newTestService(t, &stubVerifier{})

	record, err := svc.Create(context.Background(), CreateInput{
		AccountID: "acc_1",
		Hostname:  "Shop.Example.com.",
	})
	require.NoError(t, err)

	assert.Contains(t, record.ID, "dom_")
	assert.Equal(t, "acc_1", record.TenantID)
	assert.Equal(t, "acme", record.TenantSlug)
	assert.Equal(t, "shop.example.com", record.Hostname)
	assert.Equal(t, RecordTXT, record.RecordType)
	assert.Equal(t, StatusPending, record.Status)
	assert.NotEmpty(t, record.VerificationToken)
	assert.Nil(t, record.VerifiedAt)
}

func TestCreateRejectsURLs(t *testing.T) {
	svc, _ := newTestService(t, &stubVerifier{})

	_, err := svc.Create(context.Background(), CreateInput{
		AccountID: "acc_1",
		Hostname:  "https://shop.example.com/path",
	})
	assert.Equal(t, errutil.StatusBadRequest, errCode(t, err))
}

func TestCreateUnknownAccount(t *testing.T) {
	svc, _ := newTestService(t, &stubVerifier{})

	_, err := svc.Create(context.Background(), CreateInput{
		AccountID: "acc_missing",
		Hostname:  "shop.example.com",
	})
	assert.Equal(t, errutil.StatusNotFound, errCode(t, err))
}

func TestCreateDuplicateAcrossAccounts(t *testing.T) {
	svc, db := newTestService(t, &stubVerifier{})

	require.NoError(t, db.Create(&tenant.Account{ID: "acc_2", Name: "Other", Slug: "other"}).Error)

	_, err := svc.Create(context.Background(), CreateInput{AccountID: "acc_1", Hostname: "shop.example.com"})
	require.NoError(t, err)

	// The hostname is claimed platform-wide, not per account.
	_, err = svc.Create(context.Background(), CreateInput{AccountID: "acc_2", Hostname: "shop.example.com"})
	assert.Equal(t, errutil.StatusConflict, errCode(t, err))
}

func TestDeleteNotFound(t *testing.T) {
	svc, _ := newTestService(t, &stubVerifier{})

	err := svc.Delete(context.Background(), "acc_1", "dom_missing")
	assert.Equal(t, errutil.StatusNotFound, errCode(t, err))
}

func TestDeleteScopedToAccount(t *testing.T) {
	svc, db := newTestService(t, &stubVerifier{})

	record, err := svc.Create(context.Background(), CreateInput{AccountID: "acc_1", Hostname: "shop.example.com"})
	require.NoError(t, err)

	err = svc.Delete(context.Background(), "acc_other", record.ID)
	assert.Equal(t, errutil.StatusNotFound, errCode(t, err))

	require.NoError(t, svc.Delete(context.Background(), "acc_1", record.ID))

	var count int64
	require.NoError(t, db.Model(&Domain{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestVerifyActivates(t *testing.T) {
	verifier := &stubVerifier{result: &dns.Result{Matched: true, CheckedAt: time.Now().UTC()}}
	svc, db := newTestService(t, verifier)

	record, err := svc.Create(context.Background(), CreateInput{AccountID: "acc_1", Hostname: "shop.example.com"})
	require.NoError(t, err)

	updated, result, err := svc.Verify(context.Background(), "acc_1", record.ID)
	require.NoError(t, err)
	require.True(t, result.Matched)

	assert.Equal(t, StatusActive, updated.Status)
	assert.Nil(t, updated.LastError)
	require.NotNil(t, updated.VerifiedAt)
	require.NotNil(t, updated.LastCheckedAt)
	assert.Equal(t, 1, verifier.calls)

	var persisted Domain
	require.NoError(t, db.First(&persisted, "id = ?", record.ID).Error)
	assert.Equal(t, StatusActive, persisted.Status)
	assert.NotNil(t, persisted.VerifiedAt)
	assert.Nil(t, persisted.LastError)
}

func TestVerifyMismatchRecordsReason(t *testing.T) {
	verifier := &stubVerifier{result: &dns.Result{
		Matched:     false,
		Reason:      dns.ReasonTokenNotFound,
		TokensFound: []string{"verify=wrong"},
	}}
	svc, db := newTestService(t, verifier)

	record, err := svc.Create(context.Background(), CreateInput{AccountID: "acc_1", Hostname: "shop.example.com"})
	require.NoError(t, err)

	updated, result, err := svc.Verify(context.Background(), "acc_1", record.ID)
	require.NoError(t, err)
	require.False(t, result.Matched)

	assert.Equal(t, StatusError, updated.Status)
	require.NotNil(t, updated.LastError)
	assert.Equal(t, dns.ReasonTokenNotFound, *updated.LastError)
	assert.Nil(t, updated.VerifiedAt)

	var persisted Domain
	require.NoError(t, db.First(&persisted, "id = ?", record.ID).Error)
	assert.Equal(t, StatusError, persisted.Status)
	assert.Nil(t, persisted.VerifiedAt)
}

func TestVerifyDemotesActiveDomain(t *testing.T) {
	verifier := &stubVerifier{result: &dns.Result{Matched: true}}
	svc, _ := newTestService(t, verifier)

	record, err := svc.Create(context.Background(), CreateInput{AccountID: "acc_1", Hostname: "shop.example.com"})
	require.NoError(t, err)

	_, _, err = svc.Verify(context.Background(), "acc_1", record.ID)
	require.NoError(t, err)

	verifier.result = &dns.Result{Matched: false, Reason: dns.ReasonTokenNotFound}

	updated, _, err := svc.Verify(context.Background(), "acc_1", record.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusError, updated.Status)
	assert.Nil(t, updated.VerifiedAt)
}

func TestVerifyTransportFailure(t *testing.T) {
	verifier := &stubVerifier{err: errors.New("doh query failed: connection refused")}
	svc, db := newTestService(t, verifier)

	record, err := svc.Create(context.Background(), CreateInput{AccountID: "acc_1", Hostname: "shop.example.com"})
	require.NoError(t, err)

	_, result, err := svc.Verify(context.Background(), "acc_1", record.ID)
	assert.Nil(t, result)
	assert.Equal(t, errutil.StatusBadGateway, errCode(t, err))

	// The failed attempt is still recorded on the row.
	var persisted Domain
	require.NoError(t, db.First(&persisted, "id = ?", record.ID).Error)
	assert.Equal(t, StatusError, persisted.Status)
	require.NotNil(t, persisted.LastError)
	assert.Contains(t, *persisted.LastError, "connection refused")
	require.NotNil(t, persisted.LastCheckedAt)
}

func TestVerifyTransportFailureInvalidatesBinding(t *testing.T) {
	verifier := &stubVerifier{result: &dns.Result{Matched: true}}
	svc, _ := newTestService(t, verifier)
	pub := &stubPublisher{}
	svc.rdb = pub

	record, err := svc.Create(context.Background(), CreateInput{AccountID: "acc_1", Hostname: "shop.example.com"})
	require.NoError(t, err)

	_, _, err = svc.Verify(context.Background(), "acc_1", record.ID)
	require.NoError(t, err)

	// The domain is active now; a transport failure must still broadcast
	// the invalidation so peers drop the stale positive binding.
	verifier.result = nil
	verifier.err = errors.New("doh query failed: connection refused")

	_, _, err = svc.Verify(context.Background(), "acc_1", record.ID)
	assert.Equal(t, errutil.StatusBadGateway, errCode(t, err))

	require.Eventually(t, func() bool {
		return len(pub.published()) >= 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, pub.published(), "shop.example.com")
}

func TestVerifyUnknownDomain(t *testing.T) {
	svc, _ := newTestService(t, &stubVerifier{})

	_, _, err := svc.Verify(context.Background(), "acc_1", "dom_missing")
	assert.Equal(t, errutil.StatusNotFound, errCode(t, err))
}

func TestResolveActiveFiltersStatus(t *testing.T) {
	verifier := &stubVerifier{result: &dns.Result{Matched: true}}
	svc, _ := newTestService(t, verifier)

	record, err := svc.Create(context.Background(), CreateInput{AccountID: "acc_1", Hostname: "shop.example.com"})
	require.NoError(t, err)

	_, err = svc.ResolveActive(context.Background(), "shop.example.com")
	assert.Equal(t, errutil.StatusNotFound, errCode(t, err))

	_, _, err = svc.Verify(context.Background(), "acc_1", record.ID)
	require.NoError(t, err)

	binding, err := svc.ResolveActive(context.Background(), "Shop.Example.com.")
	require.NoError(t, err)
	assert.Equal(t, "shop.example.com", binding.Hostname)
	assert.Equal(t, "acc_1", binding.TenantID)
	assert.Equal(t, "acme", binding.TenantSlug)
	assert.False(t, binding.VerifiedAt.IsZero())
}
