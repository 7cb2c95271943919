package funding

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"sms-gateway/internal/apperr"
	"sms-gateway/internal/audit"
	"sms-gateway/internal/events"
	"sms-gateway/internal/ledger"
	"sms-gateway/internal/pricing"
	"sms-gateway/internal/tenant"
	"sms-gateway/pkg/utils"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC)

type fakeGateway struct {
	mu       sync.Mutex
	initErr  error
	verify   VerifyResult
	verErr   error
	inits    []InitRequest
	verifies atomic.Int32

	// onInit runs before Initialize returns, as a webhook racing the
	// checkout response would.
	onInit func(req InitRequest)
}

func (g *fakeGateway) Initialize(_ context.Context, req InitRequest) (InitResult, error) {
	g.mu.Lock()
	g.inits = append(g.inits, req)
	initErr, hook := g.initErr, g.onInit
	g.mu.Unlock()

	if hook != nil {
		hook(req)
	}
	if initErr != nil {
		return InitResult{}, initErr
	}
	return InitResult{CheckoutURL: "https://checkout.test/" + req.TxRef, Status: "success"}, nil
}

func (g *fakeGateway) Verify(context.Context, string) (VerifyResult, error) {
	g.verifies.Add(1)
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.verify, g.verErr
}

func (g *fakeGateway) settle(overall, payment string) {
	g.mu.Lock()
	g.verify = VerifyResult{OverallStatus: overall, PaymentStatus: payment}
	g.mu.Unlock()
}

type fixture struct {
	svc   *Service
	store *MemoryStore
	book  *ledger.MemoryStore
	gw    *fakeGateway
	audit *audit.MemoryRepo
	pub   *events.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	book := ledger.NewMemoryStore(nil)
	dir := tenant.NewMemoryDirectory()
	for _, id := range []string{"t1", "t2"} {
		dir.PutTenant(tenant.Tenant{ID: id, Status: tenant.StatusActive, Email: id + "@example.com"})
		book.Open(id, 0)
	}
	store := NewMemoryStore(book, dir)

	auditRepo := audit.NewMemoryRepo()
	auditSvc := audit.NewService(auditRepo)
	tiers := pricing.NewService(pricing.NewMemoryRepo(
		pricing.Tier{ID: "small", MinSmsCount: 1, MaxSmsCount: intPtr(999), PricePerSms: decimal.RequireFromString("0.60"), Active: true},
		pricing.Tier{ID: "medium", MinSmsCount: 1000, PricePerSms: decimal.RequireFromString("0.50"), Active: true},
	), auditSvc, "ETB")

	gw := &fakeGateway{}
	pub := &events.Recorder{}
	svc := NewService(store, tiers, gw, Options{Publisher: pub, Audit: auditSvc})
	svc.clock = func() time.Time { return t0 }
	return &fixture{svc: svc, store: store, book: book, gw: gw, audit: auditRepo, pub: pub}
}

func intPtr(v int) *int { return &v }

func (f *fixture) balance(t *testing.T, tenantID string) int64 {
	t.Helper()
	b, err := f.book.Balance(context.Background(), tenantID)
	require.NoError(t, err)
	return b.Credits
}

func (f *fixture) initialize(t *testing.T, tenantID, amount string) InitResponse {
	t.Helper()
	res, err := f.svc.Initialize(context.Background(), tenantID, decimal.RequireFromString(amount))
	require.NoError(t, err)
	return res
}

func TestInitialize_RecordsInProgressTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res := f.initialize(t, "t1", "600")
	assert.Equal(t, int64(1200), res.SmsCredits)
	assert.Equal(t, "https://checkout.test/"+res.TransactionID, res.CheckoutURL)

	tx, err := f.svc.GetForTenant(ctx, "t1", res.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, tx.Status)
	assert.Equal(t, "medium", tx.TierID)
	assert.Equal(t, "ETB", tx.Currency)
	assert.Equal(t, res.CheckoutURL, tx.CheckoutURL)

	require.Len(t, f.gw.inits, 1)
	assert.Equal(t, res.TransactionID, f.gw.inits[0].TxRef)
	assert.Equal(t, "t1@example.com", f.gw.inits[0].Email)
	assert.Zero(t, f.balance(t, "t1"), "initializing must not credit")
}

func TestInitialize_GatewayFailureMarksFailed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.gw.initErr = errors.New("connection refused")

	_, err := f.svc.Initialize(ctx, "t1", decimal.RequireFromString("100"))
	require.Error(t, err)
	assert.Equal(t, apperr.KindUpstream, apperr.KindOf(err))

	page, err := f.svc.ListForTenant(ctx, "t1", "", utils.Page{Size: 10})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, StatusFailed, page.Items[0].Status)
	assert.Contains(t, page.Items[0].FailureReason, "connection refused")
}

func TestInitialize_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, amount := range []string{"0", "-5", "10.005"} {
		_, err := f.svc.Initialize(ctx, "t1", decimal.RequireFromString(amount))
		assert.True(t, apperr.IsValidation(err), "amount %s", amount)
	}

	_, err := f.svc.Initialize(ctx, "missing", decimal.RequireFromString("100"))
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	_, err = f.svc.Initialize(ctx, "t1", decimal.RequireFromString("0.50"))
	assert.Equal(t, apperr.KindBusinessRule, apperr.KindOf(err))
	assert.Empty(t, f.gw.inits, "no checkout for an amount below every tier")
}

func TestConfirm_SuccessCreditsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.initialize(t, "t1", "100")
	f.gw.settle("success", "success")

	tx, err := f.svc.Confirm(ctx, res.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccessful, tx.Status)
	assert.Equal(t, int64(166), f.balance(t, "t1"))

	again, err := f.svc.Confirm(ctx, res.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccessful, again.Status)
	assert.Equal(t, int64(166), f.balance(t, "t1"))
	assert.Equal(t, int32(1), f.gw.verifies.Load(), "a settled payment is not re-verified")

	msgs := f.pub.Messages(events.SubjectFundingCredited)
	require.Len(t, msgs, 1)
	var ev events.FundingEvent
	require.NoError(t, json.Unmarshal(msgs[0].Data, &ev))
	assert.Equal(t, res.TransactionID, ev.PaymentID)
	assert.Equal(t, int64(166), ev.Credits)
	assert.Equal(t, "100.00", ev.Amount)

	assert.Len(t, f.audit.OfType(audit.EventTypeFundingCredited), 1)
}

func TestConfirm_NonSuccessOutcomes(t *testing.T) {
	cases := []struct {
		name    string
		overall string
		payment string
		want    PaymentStatus
	}{
		{"failed", "success", "failed", StatusFailed},
		{"cancelled", "success", "cancelled", StatusCanceled},
		{"canceled", "success", "Canceled", StatusCanceled},
		{"pending", "success", "pending", StatusInProgress},
		{"envelope failed", "failed", "success", StatusInProgress},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			res := f.initialize(t, "t1", "100")
			f.gw.settle(tc.overall, tc.payment)

			tx, err := f.svc.Confirm(context.Background(), res.TransactionID)
			require.NoError(t, err)
			assert.Equal(t, tc.want, tx.Status)
			assert.Zero(t, f.balance(t, "t1"))
			assert.Empty(t, f.pub.Messages(""))
		})
	}
}

func TestConfirm_PendingThenSuccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.initialize(t, "t1", "100")

	f.gw.settle("success", "pending")
	tx, err := f.svc.Confirm(ctx, res.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, tx.Status)

	f.gw.settle("success", "success")
	tx, err = f.svc.Confirm(ctx, res.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccessful, tx.Status)
	assert.Equal(t, int64(166), f.balance(t, "t1"))
}

func TestConfirm_FailedIsTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.initialize(t, "t1", "100")

	f.gw.settle("success", "failed")
	_, err := f.svc.Confirm(ctx, res.TransactionID)
	require.NoError(t, err)

	f.gw.settle("success", "success")
	tx, err := f.svc.Confirm(ctx, res.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, tx.Status)
	assert.Zero(t, f.balance(t, "t1"))
}

func TestConfirm_VerifyErrorLeavesTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.initialize(t, "t1", "100")
	f.gw.verErr = errors.New("timeout")

	_, err := f.svc.Confirm(ctx, res.TransactionID)
	assert.Equal(t, apperr.KindUpstream, apperr.KindOf(err))

	tx, err := f.svc.GetForTenant(ctx, "t1", res.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, tx.Status)
}

func TestConfirm_UnknownAndBlankReference(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Confirm(ctx, "nope")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	_, err = f.svc.HandleCallback(ctx, CallbackPayload{TxRef: "  "})
	assert.True(t, apperr.IsValidation(err))
}

func TestConfirm_ConcurrentCallsCreditOnce(t *testing.T) {
	f := newFixture(t)
	res := f.initialize(t, "t1", "100")
	f.gw.settle("success", "success")

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Confirm(context.Background(), res.TransactionID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(166), f.balance(t, "t1"))
	assert.Len(t, f.pub.Messages(events.SubjectFundingCredited), 1)
}

func TestConfirm_HeldLockReturnsCurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	f.svc.locker = NewRedisLocker(rdb)

	res := f.initialize(t, "t1", "100")
	f.gw.settle("success", "success")

	release, err := f.svc.locker.Acquire(ctx, confirmLockKey(res.TransactionID), time.Minute)
	require.NoError(t, err)

	tx, err := f.svc.Confirm(ctx, res.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, tx.Status)
	assert.Zero(t, f.gw.verifies.Load())

	require.NoError(t, release(ctx))
	tx, err = f.svc.Confirm(ctx, res.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccessful, tx.Status)
	assert.False(t, mr.Exists(confirmLockKey(res.TransactionID)), "lock released after confirm")
}

func TestVerifyForTenant_ForeignTransactionNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.initialize(t, "t1", "100")
	f.gw.settle("success", "success")

	_, err := f.svc.VerifyForTenant(ctx, "t2", res.TransactionID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	assert.Zero(t, f.gw.verifies.Load())

	tx, err := f.svc.VerifyForTenant(ctx, "t1", res.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccessful, tx.Status)
}

func TestListAndHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.gw.settle("success", "success")

	day1 := t0.AddDate(0, 0, -2)
	f.svc.clock = func() time.Time { return day1 }
	a := f.initialize(t, "t1", "100")
	b := f.initialize(t, "t2", "50.25")
	f.svc.clock = func() time.Time { return t0 }
	c := f.initialize(t, "t1", "600")
	pending := f.initialize(t, "t1", "10")

	for _, id := range []string{a.TransactionID, b.TransactionID, c.TransactionID} {
		_, err := f.svc.Confirm(ctx, id)
		require.NoError(t, err)
	}

	mine, err := f.svc.ListForTenant(ctx, "t1", "", utils.Page{Size: 10})
	require.NoError(t, err)
	assert.Equal(t, 3, mine.Total)

	open, err := f.svc.ListAll(ctx, Filter{Status: StatusInProgress}, utils.Page{Size: 10})
	require.NoError(t, err)
	require.Len(t, open.Items, 1)
	assert.Equal(t, pending.TransactionID, open.Items[0].ID)

	_, err = f.svc.ListAll(ctx, Filter{Status: "DONE"}, utils.Page{Size: 10})
	assert.True(t, apperr.IsValidation(err))

	hist, err := f.svc.History(ctx, 7)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.True(t, hist[0].Day.Before(hist[1].Day))
	assert.True(t, hist[0].TotalAmount.Equal(decimal.RequireFromString("150.25")))
	assert.Equal(t, 2, hist[0].Count)
	assert.True(t, hist[1].TotalAmount.Equal(decimal.RequireFromString("600")))

	_, err = f.svc.History(ctx, 0)
	assert.True(t, apperr.IsValidation(err))
}

func TestInitialize_KeepsSettlementThatArrivedFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.gw.settle("success", "success")
	f.gw.onInit = func(req InitRequest) {
		_, err := f.svc.Confirm(ctx, req.TxRef)
		require.NoError(t, err)
	}

	res := f.initialize(t, "t1", "100")

	tx, err := f.svc.GetForTenant(ctx, "t1", res.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccessful, tx.Status)
	assert.Equal(t, res.CheckoutURL, tx.CheckoutURL)
	assert.Equal(t, int64(166), f.balance(t, "t1"))

	again, err := f.svc.Confirm(ctx, res.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccessful, again.Status)
	assert.Equal(t, int64(166), f.balance(t, "t1"))
}

func TestInitialize_GatewayFailureDoesNotOverwriteSettlement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.gw.settle("success", "success")
	f.gw.initErr = errors.New("read timeout")
	var ref string
	f.gw.onInit = func(req InitRequest) {
		ref = req.TxRef
		_, err := f.svc.Confirm(ctx, req.TxRef)
		require.NoError(t, err)
	}

	_, err := f.svc.Initialize(ctx, "t1", decimal.RequireFromString("100"))
	require.Error(t, err)
	assert.Equal(t, apperr.KindUpstream, apperr.KindOf(err))

	tx, err := f.svc.GetForTenant(ctx, "t1", ref)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccessful, tx.Status)
	assert.Empty(t, tx.FailureReason)
	assert.Equal(t, int64(166), f.balance(t, "t1"))
}

func TestInitialize_InactiveTenantRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.dir.UpdateTenantStatus(ctx, "t2", tenant.StatusInactive, t0))

	_, err := f.svc.Initialize(ctx, "t2", decimal.RequireFromString("100"))
	require.Error(t, err)
	assert.True(t, apperr.IsBusinessRule(err))
	assert.True(t, errors.Is(err, tenant.ErrTenantInactive))
	assert.Empty(t, f.gw.inits, "no checkout is opened for an inactive tenant")

	page, err := f.svc.ListForTenant(ctx, "t2", "", utils.Page{Size: 10})
	require.NoError(t, err)
	assert.Zero(t, page.Total)
}
