package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"sms-gateway/internal/apperr"
	"sms-gateway/internal/audit"
	"sms-gateway/internal/events"
	"sms-gateway/internal/ledger"
	"sms-gateway/internal/tenant"
	"sms-gateway/pkg/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// stubProvider resolves group ids to a fixed number of generated phones.
type stubProvider struct {
	groups map[string]int
	err    error
}

func (p stubProvider) ResolveRecipients(_ context.Context, _ string, jobType JobType, ref SourceRef) ([]string, error) {
	if p.err != nil {
		return nil, p.err
	}
	switch jobType {
	case JobTypeSingle:
		return []string{ref.Phone}, nil
	case JobTypeGroup:
		return phones(p.groups[ref.GroupID]), nil
	}
	return phones(p.groups["bulk"]), nil
}

func phones(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("+2519%08d", i)
	}
	return out
}

type fixture struct {
	svc   *Service
	store *MemoryStore
	audit *audit.MemoryRepo
	pub   *events.Recorder
}

func newFixture(t *testing.T, balance int64, threshold int, groups map[string]int) *fixture {
	t.Helper()
	store := NewMemoryStore()
	store.AddTenant(tenant.Tenant{ID: "t1", Status: tenant.StatusActive, CreditBalance: balance, ApprovalThreshold: threshold})
	store.AddTenant(tenant.Tenant{ID: "t2", Status: tenant.StatusActive, CreditBalance: 1000, ApprovalThreshold: threshold})
	store.AddSender(tenant.Sender{ID: "s1", TenantID: "t1", Status: tenant.SenderActive})
	store.AddSender(tenant.Sender{ID: "s-off", TenantID: "t1", Status: tenant.SenderPendingVerification})
	store.AddSender(tenant.Sender{ID: "s2", TenantID: "t2", Status: tenant.SenderActive})
	if threshold == 0 {
		for _, id := range []string{"t1", "t2"} {
			require.NoError(t, store.Directory().UpdateApprovalThreshold(context.Background(), id, 0, t0))
		}
	}

	auditRepo := audit.NewMemoryRepo()
	pub := &events.Recorder{}
	svc := NewService(store, stubProvider{groups: groups}, pub, nil, audit.NewService(auditRepo))
	svc.clock = func() time.Time { return t0 }
	return &fixture{svc: svc, store: store, audit: auditRepo, pub: pub}
}

func (f *fixture) balance(t *testing.T, tenantID string) int64 {
	t.Helper()
	b, err := f.store.Balance(context.Background(), tenantID)
	require.NoError(t, err)
	return b.Credits
}

var admin = audit.Actor{UserID: "ops", Role: "sys_admin"}

func TestSendSingle_DebitsImmediately(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10, 100, nil)

	job, err := f.svc.SendSingle(ctx, "t1", "u1", SourceManual, SingleRequest{
		SenderID: "s1", Phone: " +251911000111 ", Message: "hello",
	})
	require.NoError(t, err)

	assert.Equal(t, JobTypeSingle, job.JobType)
	assert.Equal(t, ApprovalApproved, job.ApprovalStatus)
	assert.Equal(t, StatusScheduled, job.Status)
	assert.Equal(t, "u1", job.ApprovedBy)
	assert.Equal(t, t0, job.ScheduledAt)
	assert.Equal(t, int64(1), job.TotalSegments)
	assert.Equal(t, int64(9), f.balance(t, "t1"))

	entries, err := f.store.Entries(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(-1), entries[0].Amount)
	assert.Equal(t, ledger.JobKey(job.ID), entries[0].IdempotencyKey)

	assert.Len(t, f.pub.Messages(events.SubjectJobScheduled), 1)
	assert.Len(t, f.audit.OfType(audit.EventTypeJobSubmitted), 1)
}

func TestSendSingle_IgnoresThreshold(t *testing.T) {
	f := newFixture(t, 10, 0, nil)

	job, err := f.svc.SendSingle(context.Background(), "t1", "u1", SourceAPI, SingleRequest{
		SenderID: "s1", Phone: "0911000111", Message: "hi",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, job.Status)
	assert.Equal(t, SourceAPI, job.Source)
}

func TestSend_InactiveTenantRejected(t *testing.T) {
	f := newFixture(t, 100, 100, map[string]int{"g": 2})
	ctx := context.Background()
	require.NoError(t, f.store.Directory().UpdateTenantStatus(ctx, "t1", tenant.StatusInactive, t0))

	_, err := f.svc.SendSingle(ctx, "t1", "u1", SourceManual, SingleRequest{SenderID: "s1", Phone: "0911000111", Message: "hi"})
	require.Error(t, err)
	assert.True(t, apperr.IsBusinessRule(err))
	assert.True(t, errors.Is(err, tenant.ErrTenantInactive))

	_, err = f.svc.SendToGroup(ctx, "t1", "u1", GroupRequest{SenderID: "s1", GroupID: "g", Message: "hi"})
	assert.True(t, errors.Is(err, tenant.ErrTenantInactive))

	jobs, _ := f.store.CountRows()
	assert.Zero(t, jobs)
	assert.Equal(t, int64(100), f.balance(t, "t1"))
}

func TestSend_DefaultThresholdApplies(t *testing.T) {
	store := NewMemoryStore()
	store.AddTenant(tenant.Tenant{ID: "fresh", CreditBalance: 500})
	tn, err := store.Directory().GetTenant(context.Background(), "fresh")
	require.NoError(t, err)
	assert.Equal(t, tenant.DefaultApprovalThreshold, tn.ApprovalThreshold)
	assert.False(t, requiresApproval(JobTypeGroup, 50, tn.ApprovalThreshold))
}

func TestSend_TotalSegmentsIsRecipientsTimesSegments(t *testing.T) {
	f := newFixture(t, 1000, 100, map[string]int{"g": 7})

	msg := strings.Repeat("a", 161) // two ASCII segments
	job, err := f.svc.SendToGroup(context.Background(), "t1", "u1", GroupRequest{SenderID: "s1", GroupID: "g", Message: msg})
	require.NoError(t, err)

	assert.Equal(t, 7, job.TotalRecipients)
	assert.Equal(t, int64(14), job.TotalSegments)
	assert.Equal(t, int64(1000-14), f.balance(t, "t1"))

	rs, err := f.svc.Recipients(context.Background(), "t1", job.ID, utils.Page{Size: 50})
	require.NoError(t, err)
	assert.Equal(t, 7, rs.Total)
	for _, r := range rs.Items {
		assert.Equal(t, RecipientPending, r.Status)
		assert.Equal(t, job.Encoding, r.Encoding)
	}
}

func TestSend_UnicodeSegments(t *testing.T) {
	f := newFixture(t, 100, 100, map[string]int{"g": 3})

	job, err := f.svc.SendToGroup(context.Background(), "t1", "u1", GroupRequest{
		SenderID: "s1", GroupID: "g", Message: strings.Repeat("ሰ", 71),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(6), job.TotalSegments)
}

func TestSend_ParkedAboveThresholdLeavesBalance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100, 10, map[string]int{"big": 11, "edge": 10})

	job, err := f.svc.SendToGroup(ctx, "t1", "u1", GroupRequest{SenderID: "s1", GroupID: "big", Message: "m"})
	require.NoError(t, err)
	assert.Equal(t, ApprovalPending, job.ApprovalStatus)
	assert.Equal(t, StatusPendingApproval, job.Status)
	assert.Empty(t, job.ApprovedBy)
	assert.Nil(t, job.ApprovedAt)
	assert.Equal(t, int64(100), f.balance(t, "t1"))
	assert.Len(t, f.pub.Messages(events.SubjectJobPendingApproval), 1)

	// Exactly at the threshold is auto-approved.
	job, err = f.svc.SendToGroup(ctx, "t1", "u1", GroupRequest{SenderID: "s1", GroupID: "edge", Message: "m"})
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, job.Status)
	assert.Equal(t, int64(90), f.balance(t, "t1"))
}

func TestSendBulk_ParksByRecipientCount(t *testing.T) {
	f := newFixture(t, 100, 2, map[string]int{"bulk": 3})

	job, err := f.svc.SendBulk(context.Background(), "t1", "u1", BulkRequest{
		SenderID: "s1", Message: "m", File: strings.NewReader("ignored"),
	})
	require.NoError(t, err)
	assert.Equal(t, SourceCSVUpload, job.Source)
	assert.Equal(t, StatusPendingApproval, job.Status)
}

func TestSend_InsufficientCreditPersistsNothing(t *testing.T) {
	ctx := context.Background()

	for name, tc := range map[string]struct {
		threshold int
	}{
		"auto approved": {threshold: 100},
		"parked":        {threshold: 1},
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, 4, tc.threshold, map[string]int{"g": 5})

			_, err := f.svc.SendToGroup(ctx, "t1", "u1", GroupRequest{SenderID: "s1", GroupID: "g", Message: "m"})
			require.Error(t, err)
			assert.True(t, apperr.IsBusinessRule(err))
			assert.True(t, errors.Is(err, ledger.ErrInsufficientCredit))
			assert.Contains(t, err.Error(), "required 5, available 4")

			jobs, recipients := f.store.CountRows()
			assert.Zero(t, jobs)
			assert.Zero(t, recipients)
			assert.Equal(t, int64(4), f.balance(t, "t1"))
			assert.Empty(t, f.pub.Messages(""))
		})
	}
}

func TestSend_Validation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100, 100, map[string]int{"g": 1})

	cases := map[string]struct {
		call func() error
		kind apperr.Kind
	}{
		"blank message": {
			call: func() error {
				_, err := f.svc.SendSingle(ctx, "t1", "u1", SourceManual, SingleRequest{SenderID: "s1", Phone: "0911000111", Message: "  "})
				return err
			},
			kind: apperr.KindValidation,
		},
		"message too long": {
			call: func() error {
				_, err := f.svc.SendSingle(ctx, "t1", "u1", SourceManual, SingleRequest{
					SenderID: "s1", Phone: "0911000111", Message: strings.Repeat("x", MaxMessageLength+1),
				})
				return err
			},
			kind: apperr.KindValidation,
		},
		"emoji count twice toward the cap": {
			call: func() error {
				_, err := f.svc.SendSingle(ctx, "t1", "u1", SourceManual, SingleRequest{
					SenderID: "s1", Phone: "0911000111", Message: strings.Repeat("😀", MaxMessageLength/2+1),
				})
				return err
			},
			kind: apperr.KindValidation,
		},
		"bad phone": {
			call: func() error {
				_, err := f.svc.SendSingle(ctx, "t1", "u1", SourceManual, SingleRequest{SenderID: "s1", Phone: "12ab", Message: "m"})
				return err
			},
			kind: apperr.KindValidation,
		},
		"missing sender": {
			call: func() error {
				_, err := f.svc.SendToGroup(ctx, "t1", "u1", GroupRequest{GroupID: "g", Message: "m"})
				return err
			},
			kind: apperr.KindValidation,
		},
		"missing group": {
			call: func() error {
				_, err := f.svc.SendToGroup(ctx, "t1", "u1", GroupRequest{SenderID: "s1", Message: "m"})
				return err
			},
			kind: apperr.KindValidation,
		},
		"missing file": {
			call: func() error {
				_, err := f.svc.SendBulk(ctx, "t1", "u1", BulkRequest{SenderID: "s1", Message: "m"})
				return err
			},
			kind: apperr.KindValidation,
		},
		"unknown sender": {
			call: func() error {
				_, err := f.svc.SendToGroup(ctx, "t1", "u1", GroupRequest{SenderID: "nope", GroupID: "g", Message: "m"})
				return err
			},
			kind: apperr.KindNotFound,
		},
		"other tenant's sender": {
			call: func() error {
				_, err := f.svc.SendToGroup(ctx, "t1", "u1", GroupRequest{SenderID: "s2", GroupID: "g", Message: "m"})
				return err
			},
			kind: apperr.KindNotFound,
		},
		"inactive sender": {
			call: func() error {
				_, err := f.svc.SendToGroup(ctx, "t1", "u1", GroupRequest{SenderID: "s-off", GroupID: "g", Message: "m"})
				return err
			},
			kind: apperr.KindBusinessRule,
		},
		"unknown tenant": {
			call: func() error {
				_, err := f.svc.SendToGroup(ctx, "ghost", "u1", GroupRequest{SenderID: "s1", GroupID: "g", Message: "m"})
				return err
			},
			kind: apperr.KindNotFound,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			err := tc.call()
			require.Error(t, err)
			assert.Equal(t, tc.kind, apperr.KindOf(err))
		})
	}

	jobs, _ := f.store.CountRows()
	assert.Zero(t, jobs)
}

func TestSend_ProviderErrorRollsBack(t *testing.T) {
	f := newFixture(t, 100, 100, nil)
	f.svc.recipients = stubProvider{err: apperr.BusinessRule(errors.New("empty"), "contact group has no members")}

	_, err := f.svc.SendToGroup(context.Background(), "t1", "u1", GroupRequest{SenderID: "s1", GroupID: "g", Message: "m"})
	require.Error(t, err)
	assert.True(t, apperr.IsBusinessRule(err))
	jobs, _ := f.store.CountRows()
	assert.Zero(t, jobs)
}

func TestApprove_DebitsOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100, 5, map[string]int{"g": 20})

	job, err := f.svc.SendToGroup(ctx, "t1", "u1", GroupRequest{SenderID: "s1", GroupID: "g", Message: "m"})
	require.NoError(t, err)
	require.Equal(t, StatusPendingApproval, job.Status)

	approved, err := f.svc.Approve(ctx, job.ID, admin)
	require.NoError(t, err)
	assert.Equal(t, ApprovalApproved, approved.ApprovalStatus)
	assert.Equal(t, StatusScheduled, approved.Status)
	assert.Equal(t, "ops", approved.ApprovedBy)
	require.NotNil(t, approved.ApprovedAt)
	assert.Equal(t, int64(80), f.balance(t, "t1"))

	_, err = f.svc.Approve(ctx, job.ID, admin)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotPending))
	assert.True(t, apperr.IsBusinessRule(err))
	assert.Equal(t, int64(80), f.balance(t, "t1"))

	_, err = f.svc.Reject(ctx, job.ID, admin, "late")
	assert.True(t, errors.Is(err, ErrNotPending))

	assert.Len(t, f.audit.OfType(audit.EventTypeJobApproved), 1)
}

func TestApprove_ConcurrentCallersDebitOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100, 5, map[string]int{"g": 20})

	job, err := f.svc.SendToGroup(ctx, "t1", "u1", GroupRequest{SenderID: "s1", GroupID: "g", Message: "m"})
	require.NoError(t, err)

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.Approve(ctx, job.ID, admin); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, int64(80), f.balance(t, "t1"))
}

func TestApprove_FailsWhenBalanceDropped(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 30, 5, map[string]int{"big": 20, "small": 5})

	parked, err := f.svc.SendToGroup(ctx, "t1", "u1", GroupRequest{SenderID: "s1", GroupID: "big", Message: "m"})
	require.NoError(t, err)

	// Spend the balance below what the parked job needs.
	for range 3 {
		_, err := f.svc.SendToGroup(ctx, "t1", "u1", GroupRequest{SenderID: "s1", GroupID: "small", Message: "m"})
		require.NoError(t, err)
	}
	require.Equal(t, int64(15), f.balance(t, "t1"))

	_, err = f.svc.Approve(ctx, parked.ID, admin)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ledger.ErrInsufficientCredit))

	got, err := f.svc.Get(ctx, parked.ID)
	require.NoError(t, err)
	assert.Equal(t, ApprovalPending, got.ApprovalStatus)
	assert.Equal(t, StatusPendingApproval, got.Status)
	assert.Equal(t, int64(15), f.balance(t, "t1"))
}

func TestReject_NoCreditEffect(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100, 5, map[string]int{"g": 20})

	job, err := f.svc.SendToGroup(ctx, "t1", "u1", GroupRequest{SenderID: "s1", GroupID: "g", Message: "m"})
	require.NoError(t, err)

	rejected, err := f.svc.Reject(ctx, job.ID, admin, "  spam  ")
	require.NoError(t, err)
	assert.Equal(t, ApprovalRejected, rejected.ApprovalStatus)
	assert.Equal(t, StatusFailed, rejected.Status)
	assert.Equal(t, "spam", rejected.RejectionReason)
	assert.Equal(t, "ops", rejected.RejectedBy)
	assert.Equal(t, int64(100), f.balance(t, "t1"))

	_, err = f.svc.Approve(ctx, job.ID, admin)
	assert.True(t, errors.Is(err, ErrNotPending))

	entries, err := f.store.Entries(ctx, "t1")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestApprove_UnknownJob(t *testing.T) {
	f := newFixture(t, 100, 5, nil)
	_, err := f.svc.Approve(context.Background(), "missing", admin)
	assert.True(t, apperr.IsNotFound(err))
}

func TestListPending_AcrossTenants(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100, 1, map[string]int{"g": 2})

	_, err := f.svc.SendToGroup(ctx, "t1", "u1", GroupRequest{SenderID: "s1", GroupID: "g", Message: "m"})
	require.NoError(t, err)
	_, err = f.svc.SendToGroup(ctx, "t2", "u2", GroupRequest{SenderID: "s2", GroupID: "g", Message: "m"})
	require.NoError(t, err)
	_, err = f.svc.SendSingle(ctx, "t1", "u1", SourceManual, SingleRequest{SenderID: "s1", Phone: "0911000111", Message: "m"})
	require.NoError(t, err)

	res, err := f.svc.ListPending(ctx, utils.Page{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, utils.DefaultPageSize, res.Size)
}

func TestTenantScoping(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100, 100, map[string]int{"g": 2})

	job, err := f.svc.SendToGroup(ctx, "t1", "u1", GroupRequest{SenderID: "s1", GroupID: "g", Message: "m"})
	require.NoError(t, err)

	_, err = f.svc.GetForTenant(ctx, "t2", job.ID)
	assert.True(t, apperr.IsNotFound(err))
	_, err = f.svc.Recipients(ctx, "t2", job.ID, utils.Page{})
	assert.True(t, apperr.IsNotFound(err))

	got, err := f.svc.GetForTenant(ctx, "t1", job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)

	res, err := f.svc.ListForTenant(ctx, "t2", Filter{}, utils.Page{})
	require.NoError(t, err)
	assert.Zero(t, res.Total)

	res, err = f.svc.ListForTenant(ctx, "t1", Filter{Status: StatusScheduled}, utils.Page{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)

	_, err = f.svc.ListForTenant(ctx, "t1", Filter{Status: "BOGUS"}, utils.Page{})
	assert.True(t, apperr.IsValidation(err))
}

func TestStatusTransitions(t *testing.T) {
	assert.True(t, ApprovalPending.CanTransitionTo(ApprovalApproved))
	assert.True(t, ApprovalPending.CanTransitionTo(ApprovalRejected))
	assert.False(t, ApprovalApproved.CanTransitionTo(ApprovalRejected))
	assert.False(t, ApprovalRejected.CanTransitionTo(ApprovalApproved))

	assert.True(t, StatusPendingApproval.CanTransitionTo(StatusScheduled))
	assert.True(t, StatusPendingApproval.CanTransitionTo(StatusFailed))
	assert.True(t, StatusScheduled.CanTransitionTo(StatusSending))
	assert.True(t, StatusSending.CanTransitionTo(StatusCompleted))
	assert.False(t, StatusCompleted.CanTransitionTo(StatusScheduled))
	assert.False(t, StatusFailed.CanTransitionTo(StatusScheduled))
}

func TestRequiresApproval(t *testing.T) {
	assert.False(t, requiresApproval(JobTypeSingle, 1, 0))
	assert.False(t, requiresApproval(JobTypeGroup, 10, 10))
	assert.True(t, requiresApproval(JobTypeGroup, 11, 10))
	assert.True(t, requiresApproval(JobTypeBulk, 1, 0))
}
