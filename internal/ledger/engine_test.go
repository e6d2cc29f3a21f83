package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutorloop/platform/internal/domain"
)

func dec(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

func appErrCode(t *testing.T, err error) string {
	t.Helper()
	var appErr *domain.AppError
	require.ErrorAs(t, err, &appErr)
	return appErr.Code
}

func TestCurrentBalance(t *testing.T) {
	ctx := context.Background()

	t.Run("no entries means zero", func(t *testing.T) {
		engine, _, _, _, studentID := newTestEngine(false, decimal.Zero)
		bal, err := engine.CurrentBalance(ctx, fakeTx{}, studentID)
		require.NoError(t, err)
		assert.True(t, bal.IsZero())
	})

	t.Run("latest entry wins", func(t *testing.T) {
		engine, _, subs, _, studentID := newTestEngine(true, dec("5"))
		sub := subs.billable(studentID)

		_, err := engine.AppendEntry(ctx, fakeTx{}, domain.AppendEntryParams{
			StudentID:      studentID,
			SubscriptionID: &sub.ID,
			Type:           domain.EntryCredit,
			Amount:         dec("2"),
			BalanceAfter:   dec("7"),
			Reason:         "manual adjustment",
		})
		require.NoError(t, err)

		bal, err := engine.CurrentBalance(ctx, fakeTx{}, studentID)
		require.NoError(t, err)
		assert.True(t, bal.Equal(dec("7")))
	})

	t.Run("entries without a subscription count toward the balance", func(t *testing.T) {
		engine, _, _, _, studentID := newTestEngine(true, dec("5"))

		_, err := engine.AppendEntry(ctx, fakeTx{}, domain.AppendEntryParams{
			StudentID:    studentID,
			Type:         domain.EntryCredit,
			Amount:       dec("1"),
			BalanceAfter: dec("6"),
			Reason:       "goodwill credit",
		})
		require.NoError(t, err)

		bal, err := engine.CurrentBalance(ctx, fakeTx{}, studentID)
		require.NoError(t, err)
		assert.True(t, bal.Equal(dec("6")))
	})
}

func TestExecuteDeduct(t *testing.T) {
	ctx := context.Background()

	t.Run("happy path deducts one credit", func(t *testing.T) {
		engine, _, subs, outbox, studentID := newTestEngine(true, dec("5"))

		result, err := engine.ExecuteDeduct(ctx, fakeTx{}, domain.DeductParams{
			StudentID:  studentID,
			ClassID:    "class-101",
			ClassTitle: "Algebra II",
		})
		require.NoError(t, err)
		assert.False(t, result.Idempotent)
		assert.Equal(t, domain.EntryDebit, result.Entry.Type)
		assert.True(t, result.Entry.Amount.Equal(dec("-1")))
		assert.True(t, result.Entry.BalanceAfter.Equal(dec("4")))
		assert.Equal(t, "class completed: Algebra II", result.Entry.Reason)
		require.NotNil(t, result.Entry.RelatedClassID)
		assert.Equal(t, "class-101", *result.Entry.RelatedClassID)

		// Denormalized cache synced in the same transaction
		assert.True(t, subs.billable(studentID).CreditsRemaining.Equal(dec("4")))

		// One outbox event per appended entry
		assert.Len(t, outbox.drafts, 1)
		assert.Equal(t, domain.EventEntryPosted, outbox.drafts[0].EventType)
	})

	t.Run("replay returns original entry", func(t *testing.T) {
		engine, _, _, outbox, studentID := newTestEngine(true, dec("5"))
		params := domain.DeductParams{StudentID: studentID, ClassID: "class-101", ClassTitle: "Algebra II"}

		first, err := engine.ExecuteDeduct(ctx, fakeTx{}, params)
		require.NoError(t, err)

		second, err := engine.ExecuteDeduct(ctx, fakeTx{}, params)
		require.NoError(t, err)
		assert.True(t, second.Idempotent)
		assert.Equal(t, first.Entry.ID, second.Entry.ID)
		assert.True(t, second.Entry.BalanceAfter.Equal(dec("4")))

		// Replay emits no second event
		assert.Len(t, outbox.drafts, 1)
	})

	t.Run("fractional balance still debits whole credit", func(t *testing.T) {
		engine, _, _, _, studentID := newTestEngine(true, dec("0.5"))

		result, err := engine.ExecuteDeduct(ctx, fakeTx{}, domain.DeductParams{
			StudentID:  studentID,
			ClassID:    "class-102",
			ClassTitle: "Chemistry",
		})
		require.NoError(t, err)
		assert.True(t, result.Entry.BalanceAfter.Equal(dec("-0.5")))
	})

	t.Run("no subscription rejected", func(t *testing.T) {
		engine, _, _, _, studentID := newTestEngine(false, decimal.Zero)

		_, err := engine.ExecuteDeduct(ctx, fakeTx{}, domain.DeductParams{
			StudentID:  studentID,
			ClassID:    "class-101",
			ClassTitle: "Algebra II",
		})
		assert.Equal(t, "NO_SUBSCRIPTION", appErrCode(t, err))
	})

	t.Run("zero balance rejected", func(t *testing.T) {
		engine, _, _, _, studentID := newTestEngine(true, decimal.Zero)

		_, err := engine.ExecuteDeduct(ctx, fakeTx{}, domain.DeductParams{
			StudentID:  studentID,
			ClassID:    "class-101",
			ClassTitle: "Algebra II",
		})
		assert.Equal(t, "NO_CREDITS", appErrCode(t, err))
	})

	t.Run("negative balance rejected", func(t *testing.T) {
		engine, entries, subs, _, studentID := newTestEngine(true, dec("1"))
		sub := subs.billable(studentID)
		entries.entries = append(entries.entries, domain.LedgerEntry{
			Seq: 99, StudentID: studentID, SubscriptionID: &sub.ID,
			Type: domain.EntryDebit, Amount: dec("-3"), BalanceAfter: dec("-2"),
		})

		_, err := engine.ExecuteDeduct(ctx, fakeTx{}, domain.DeductParams{
			StudentID:  studentID,
			ClassID:    "class-101",
			ClassTitle: "Algebra II",
		})
		assert.Equal(t, "NO_CREDITS", appErrCode(t, err))
	})

	t.Run("missing fields rejected", func(t *testing.T) {
		engine, _, _, _, studentID := newTestEngine(true, dec("5"))

		_, err := engine.ExecuteDeduct(ctx, fakeTx{}, domain.DeductParams{StudentID: studentID})
		assert.Equal(t, "VALIDATION_ERROR", appErrCode(t, err))
	})

	t.Run("lost insert race surfaces duplicate sentinel", func(t *testing.T) {
		engine, entries, _, _, studentID := newTestEngine(true, dec("5"))
		params := domain.DeductParams{StudentID: studentID, ClassID: "class-101", ClassTitle: "Algebra II"}

		_, err := engine.ExecuteDeduct(ctx, fakeTx{}, params)
		require.NoError(t, err)

		// Hide the existing debit from the pre-check so the insert hits the
		// unique index, as a concurrent transaction would.
		entries.hideDebits = true
		_, err = engine.ExecuteDeduct(ctx, fakeTx{}, params)
		assert.True(t, errors.Is(err, ErrDuplicateDebit))
	})
}

func TestExecuteRestore(t *testing.T) {
	ctx := context.Background()

	t.Run("default amount is one credit", func(t *testing.T) {
		engine, _, subs, _, studentID := newTestEngine(true, dec("2"))

		result, err := engine.ExecuteRestore(ctx, fakeTx{}, domain.RestoreParams{
			StudentID: studentID,
			Reason:    "tutor no-show",
		})
		require.NoError(t, err)
		assert.Equal(t, domain.EntryCredit, result.Entry.Type)
		assert.True(t, result.Entry.Amount.Equal(dec("1")))
		assert.True(t, result.Entry.BalanceAfter.Equal(dec("3")))
		assert.True(t, subs.billable(studentID).CreditsRemaining.Equal(dec("3")))
	})

	t.Run("fractional restore accepted at half credit", func(t *testing.T) {
		engine, _, _, _, studentID := newTestEngine(true, dec("2"))

		result, err := engine.ExecuteRestore(ctx, fakeTx{}, domain.RestoreParams{
			StudentID: studentID,
			Reason:    "class cut short",
			Amount:    dec("0.5"),
		})
		require.NoError(t, err)
		assert.True(t, result.Entry.BalanceAfter.Equal(dec("2.5")))
	})

	t.Run("below minimum rejected", func(t *testing.T) {
		engine, _, _, _, studentID := newTestEngine(true, dec("2"))

		_, err := engine.ExecuteRestore(ctx, fakeTx{}, domain.RestoreParams{
			StudentID: studentID,
			Reason:    "adjustment",
			Amount:    dec("0.25"),
		})
		assert.Equal(t, "VALIDATION_ERROR", appErrCode(t, err))
	})

	t.Run("missing reason gets a default", func(t *testing.T) {
		engine, _, _, _, studentID := newTestEngine(true, dec("2"))

		result, err := engine.ExecuteRestore(ctx, fakeTx{}, domain.RestoreParams{StudentID: studentID})
		require.NoError(t, err)
		assert.Equal(t, "manual credit restoration", result.Entry.Reason)
		assert.True(t, result.Entry.BalanceAfter.Equal(dec("3")))
	})

	t.Run("works without billable subscription", func(t *testing.T) {
		engine, _, _, _, studentID := newTestEngine(false, decimal.Zero)

		result, err := engine.ExecuteRestore(ctx, fakeTx{}, domain.RestoreParams{
			StudentID: studentID,
			Reason:    "goodwill credit after cancellation",
		})
		require.NoError(t, err)
		assert.Nil(t, result.Subscription)
		assert.Nil(t, result.Entry.SubscriptionID)
		assert.True(t, result.Entry.BalanceAfter.Equal(dec("1")))
	})
}

func TestExecuteAllocate(t *testing.T) {
	ctx := context.Background()
	plan := &domain.Plan{
		ID:               "plan_standard",
		Name:             "Standard",
		CreditsPerPeriod: dec("8"),
		PriceCents:       16000,
	}

	t.Run("creates subscription with seed allocation", func(t *testing.T) {
		engine, _, subs, outbox, studentID := newTestEngine(false, decimal.Zero)

		result, err := engine.ExecuteAllocate(ctx, fakeTx{}, domain.AllocateParams{
			StudentID:              studentID,
			Plan:                   plan,
			ProviderSubscriptionID: "sub_abc123",
		})
		require.NoError(t, err)
		assert.Equal(t, domain.EntryAllocation, result.Entry.Type)
		assert.True(t, result.Entry.BalanceAfter.Equal(dec("8")))
		assert.Equal(t, domain.SubscriptionActive, result.Subscription.Status)
		assert.True(t, subs.billable(studentID).CreditsRemaining.Equal(dec("8")))

		// Entry-posted plus subscription-created events
		assert.Len(t, outbox.drafts, 2)
	})

	t.Run("residual balance carries into the new subscription", func(t *testing.T) {
		engine, entries, subs, _, studentID := newTestEngine(false, decimal.Zero)

		// Leftover credits from a canceled subscription.
		oldSubID := uuid.New()
		entries.nextSeq++
		entries.entries = append(entries.entries, domain.LedgerEntry{
			ID:             uuid.New(),
			Seq:            entries.nextSeq,
			StudentID:      studentID,
			SubscriptionID: &oldSubID,
			Type:           domain.EntryCredit,
			Amount:         dec("2"),
			BalanceAfter:   dec("2"),
			Reason:         "tutor no-show",
		})

		result, err := engine.ExecuteAllocate(ctx, fakeTx{}, domain.AllocateParams{
			StudentID: studentID,
			Plan:      plan,
		})
		require.NoError(t, err)
		assert.True(t, result.Entry.Amount.Equal(dec("8")))
		assert.True(t, result.Entry.BalanceAfter.Equal(dec("10")), "prev 2 + allocation 8")
		assert.True(t, result.Subscription.CreditsRemaining.Equal(dec("10")))
		assert.True(t, subs.billable(studentID).CreditsRemaining.Equal(dec("10")))

		bal, err := engine.CurrentBalance(ctx, fakeTx{}, studentID)
		require.NoError(t, err)
		assert.True(t, bal.Equal(dec("10")))
	})

	t.Run("restore during a lapse is visible to the next deduct", func(t *testing.T) {
		engine, _, _, _, studentID := newTestEngine(false, decimal.Zero)

		// No billable subscription yet; the credit posts student-scoped.
		restored, err := engine.ExecuteRestore(ctx, fakeTx{}, domain.RestoreParams{
			StudentID: studentID,
			Reason:    "goodwill credit after cancellation",
		})
		require.NoError(t, err)
		assert.Nil(t, restored.Entry.SubscriptionID)

		_, err = engine.ExecuteAllocate(ctx, fakeTx{}, domain.AllocateParams{
			StudentID: studentID,
			Plan:      plan,
		})
		require.NoError(t, err)

		result, err := engine.ExecuteDeduct(ctx, fakeTx{}, domain.DeductParams{
			StudentID:  studentID,
			ClassID:    "class-201",
			ClassTitle: "Physics",
		})
		require.NoError(t, err)
		assert.True(t, result.Entry.BalanceAfter.Equal(dec("8")), "1 restored + 8 allocated - 1 debit")
	})

	t.Run("idempotent on provider subscription id", func(t *testing.T) {
		engine, _, _, _, studentID := newTestEngine(false, decimal.Zero)
		params := domain.AllocateParams{
			StudentID:              studentID,
			Plan:                   plan,
			ProviderSubscriptionID: "sub_abc123",
		}

		first, err := engine.ExecuteAllocate(ctx, fakeTx{}, params)
		require.NoError(t, err)

		second, err := engine.ExecuteAllocate(ctx, fakeTx{}, params)
		require.NoError(t, err)
		assert.True(t, second.Idempotent)
		assert.Equal(t, first.Subscription.ID, second.Subscription.ID)
	})

	t.Run("trialing flag sets status", func(t *testing.T) {
		engine, _, _, _, studentID := newTestEngine(false, decimal.Zero)

		result, err := engine.ExecuteAllocate(ctx, fakeTx{}, domain.AllocateParams{
			StudentID: studentID,
			Plan:      plan,
			Trialing:  true,
		})
		require.NoError(t, err)
		assert.Equal(t, domain.SubscriptionTrialing, result.Subscription.Status)
	})

	t.Run("missing plan rejected", func(t *testing.T) {
		engine, _, _, _, studentID := newTestEngine(false, decimal.Zero)

		_, err := engine.ExecuteAllocate(ctx, fakeTx{}, domain.AllocateParams{StudentID: studentID})
		assert.Equal(t, "VALIDATION_ERROR", appErrCode(t, err))
	})
}

func TestExecuteTopUp(t *testing.T) {
	ctx := context.Background()

	t.Run("adds credits to billable subscription", func(t *testing.T) {
		engine, _, subs, _, studentID := newTestEngine(true, dec("1"))

		result, err := engine.ExecuteTopUp(ctx, fakeTx{}, domain.TopUpParams{
			StudentID: studentID,
			Credits:   dec("4"),
			Reason:    "auto-renewal: 4-class pack",
		})
		require.NoError(t, err)
		assert.True(t, result.Entry.BalanceAfter.Equal(dec("5")))
		assert.True(t, subs.billable(studentID).CreditsRemaining.Equal(dec("5")))
	})

	t.Run("no subscription rejected", func(t *testing.T) {
		engine, _, _, _, studentID := newTestEngine(false, decimal.Zero)

		_, err := engine.ExecuteTopUp(ctx, fakeTx{}, domain.TopUpParams{
			StudentID: studentID,
			Credits:   dec("4"),
			Reason:    "auto-renewal",
		})
		assert.Equal(t, "NO_SUBSCRIPTION", appErrCode(t, err))
	})

	t.Run("nonpositive credits rejected", func(t *testing.T) {
		engine, _, _, _, studentID := newTestEngine(true, dec("1"))

		_, err := engine.ExecuteTopUp(ctx, fakeTx{}, domain.TopUpParams{
			StudentID: studentID,
			Credits:   decimal.Zero,
			Reason:    "auto-renewal",
		})
		assert.Equal(t, "VALIDATION_ERROR", appErrCode(t, err))
	})
}
