package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"sms-gateway/internal/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)

func TestDebit_ReducesBalanceAndAppendsEntry(t *testing.T) {
	ctx := context.Background()
	book := NewMemoryBook()
	book.Open("t1", 100)

	e, err := Debit(ctx, book, t0, Request{TenantID: "t1", Amount: 30, Reason: ReasonJob, ExternalRef: "j1", IdempotencyKey: JobKey("j1")})
	require.NoError(t, err)
	assert.Equal(t, EntryTypeDebit, e.Type)
	assert.Equal(t, int64(-30), e.Amount)
	assert.Equal(t, int64(70), e.BalanceAfter)

	bal, err := book.Balance(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, int64(70), bal.Credits)
	assert.Equal(t, t0, bal.UpdatedAt)
}

func TestDebit_InsufficientLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	book := NewMemoryBook()
	book.Open("t1", 10)

	_, err := Debit(ctx, book, t0, Request{TenantID: "t1", Amount: 11, Reason: ReasonJob, IdempotencyKey: "job:x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInsufficientCredit))
	assert.True(t, apperr.IsBusinessRule(err))
	assert.Equal(t, "insufficient SMS credits: required 11, available 10", err.Error())

	bal, _ := book.Balance(ctx, "t1")
	assert.Equal(t, int64(10), bal.Credits)
	entries, total, _ := book.ListEntries(ctx, "t1", pageAll)
	assert.Empty(t, entries)
	assert.Zero(t, total)
}

func TestDebit_ExactBalanceReachesZero(t *testing.T) {
	book := NewMemoryBook()
	book.Open("t1", 5)

	e, err := Debit(context.Background(), book, t0, Request{TenantID: "t1", Amount: 5, Reason: ReasonJob, IdempotencyKey: "job:y"})
	require.NoError(t, err)
	assert.Zero(t, e.BalanceAfter)
}

func TestCredit_IsIdempotentPerKey(t *testing.T) {
	ctx := context.Background()
	book := NewMemoryBook()
	book.Open("t1", 0)

	req := Request{TenantID: "t1", Amount: 500, Reason: ReasonFunding, ExternalRef: "p1", IdempotencyKey: FundingKey("p1")}
	first, err := Credit(ctx, book, t0, req)
	require.NoError(t, err)
	second, err := Credit(ctx, book, t0.Add(time.Minute), req)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	bal, _ := book.Balance(ctx, "t1")
	assert.Equal(t, int64(500), bal.Credits)
}

func TestPost_Validation(t *testing.T) {
	book := NewMemoryBook()
	book.Open("t1", 100)

	cases := map[string]Request{
		"zero amount":     {TenantID: "t1", Amount: 0, Reason: ReasonJob, IdempotencyKey: "k"},
		"negative amount": {TenantID: "t1", Amount: -3, Reason: ReasonJob, IdempotencyKey: "k"},
		"missing key":     {TenantID: "t1", Amount: 1, Reason: ReasonJob},
		"missing tenant":  {Amount: 1, Reason: ReasonJob, IdempotencyKey: "k"},
		"unknown reason":  {TenantID: "t1", Amount: 1, Reason: "gift", IdempotencyKey: "k"},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Debit(context.Background(), book, t0, req)
			assert.True(t, apperr.IsValidation(err), "got %v", err)
		})
	}
}

func TestPost_UnknownTenant(t *testing.T) {
	_, err := Credit(context.Background(), NewMemoryBook(), t0, Request{TenantID: "ghost", Amount: 1, Reason: ReasonFunding, IdempotencyKey: "k"})
	assert.True(t, apperr.IsNotFound(err))
	assert.True(t, errors.Is(err, ErrTenantNotFound))
}

func TestReserve(t *testing.T) {
	book := NewMemoryBook()
	book.Open("t1", 20)

	bal, err := Reserve(context.Background(), book, "t1", 20)
	require.NoError(t, err)
	assert.Equal(t, int64(20), bal)

	_, err = Reserve(context.Background(), book, "t1", 21)
	assert.True(t, errors.Is(err, ErrInsufficientCredit))
}

func TestMemoryStore_RollsBackFailedUnit(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil)
	store.Open("t1", 50)

	boom := errors.New("boom")
	err := store.InTx(ctx, func(ctx context.Context, repo Repository) error {
		if _, err := Debit(ctx, repo, t0, Request{TenantID: "t1", Amount: 20, Reason: ReasonJob, IdempotencyKey: "job:a"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	bal, _ := store.Balance(ctx, "t1")
	assert.Equal(t, int64(50), bal.Credits)
	_, total, _ := store.ListEntries(ctx, "t1", pageAll)
	assert.Zero(t, total)
}

// Concurrent debits never overspend: with 10 credits and 25 attempts of 1,
// exactly 10 succeed.
func TestMemoryStore_ConcurrentDebitsNeverOverspend(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil)
	store.Open("t1", 10)

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := store.InTx(ctx, func(ctx context.Context, repo Repository) error {
				_, err := Debit(ctx, repo, t0, Request{TenantID: "t1", Amount: 1, Reason: ReasonJob, IdempotencyKey: JobKey(string(rune('a' + i)))})
				return err
			})
			if err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 10, ok)
	bal, _ := store.Balance(ctx, "t1")
	assert.Zero(t, bal.Credits)
}
