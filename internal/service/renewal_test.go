package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutorloop/platform/internal/domain"
	"github.com/tutorloop/platform/internal/guard"
	"github.com/tutorloop/platform/internal/ledger"
	"github.com/tutorloop/platform/internal/provider"
)

type renewalFixture struct {
	svc      *RenewalService
	renewals *fakeRenewalRepo
	subs     *fakeSubscriptionRepo
	outbox   *fakeOutboxRepo
}

func newRenewalFixture() *renewalFixture {
	entries := &fakeLedgerRepo{}
	subs := &fakeSubscriptionRepo{}
	outbox := &fakeOutboxRepo{}
	renewals := newFakeRenewalRepo()
	engine := ledger.NewEngine(entries, subs, outbox)

	svc := NewRenewalService(
		fakePool{}, engine, renewals, subs, outbox,
		provider.NewStripeProvider("", ""),
		provider.NewNotifier(""),
		guard.NewCircuitBreaker(3, time.Minute),
		discardLogger(),
	)
	return &renewalFixture{svc: svc, renewals: renewals, subs: subs, outbox: outbox}
}

func TestRenewalSettings(t *testing.T) {
	ctx := context.Background()

	t.Run("defaults when never saved", func(t *testing.T) {
		f := newRenewalFixture()

		settings, err := f.svc.GetSettings(ctx, uuid.New())
		require.NoError(t, err)
		assert.False(t, settings.Enabled)
		assert.True(t, settings.Threshold.Equal(dec("1")))
	})

	t.Run("update persists", func(t *testing.T) {
		f := newRenewalFixture()
		studentID := uuid.New()
		f.renewals.packs["pack_4"] = &domain.RenewalPack{ID: "pack_4", Name: "4-class pack", Credits: dec("4"), PriceCents: 8000}

		saved, err := f.svc.UpdateSettings(ctx, studentID, SettingsInput{
			Enabled: true, PackID: "pack_4", Threshold: dec("2"),
		})
		require.NoError(t, err)
		assert.True(t, saved.Enabled)

		loaded, err := f.svc.GetSettings(ctx, studentID)
		require.NoError(t, err)
		assert.Equal(t, "pack_4", loaded.PackID)
		assert.True(t, loaded.Threshold.Equal(dec("2")))
	})

	t.Run("negative threshold rejected", func(t *testing.T) {
		f := newRenewalFixture()

		_, err := f.svc.UpdateSettings(ctx, uuid.New(), SettingsInput{Threshold: dec("-1")})
		var appErr *domain.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, "VALIDATION_ERROR", appErr.Code)
	})

	t.Run("enabling requires a known pack", func(t *testing.T) {
		f := newRenewalFixture()

		_, err := f.svc.UpdateSettings(ctx, uuid.New(), SettingsInput{Enabled: true, Threshold: dec("1")})
		var appErr *domain.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, "VALIDATION_ERROR", appErr.Code)

		_, err = f.svc.UpdateSettings(ctx, uuid.New(), SettingsInput{Enabled: true, PackID: "ghost", Threshold: dec("1")})
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, "NOT_FOUND", appErr.Code)
	})
}

func TestProcessRenewalRequest(t *testing.T) {
	ctx := context.Background()

	t.Run("dropped when settings changed since enqueue", func(t *testing.T) {
		f := newRenewalFixture()

		err := f.svc.ProcessRenewalRequest(ctx, domain.RenewalRequestedPayload{
			StudentID: uuid.New(), PackID: "pack_4", BalanceAfter: "1",
		})
		require.NoError(t, err)
		assert.Empty(t, f.outbox.drafts)
	})

	t.Run("missing pack records failure without redelivery", func(t *testing.T) {
		f := newRenewalFixture()
		studentID := uuid.New()
		f.renewals.settings[studentID] = &domain.RenewalSettings{
			StudentID: studentID, Enabled: true, PackID: "pack_4", Threshold: dec("1"),
		}

		err := f.svc.ProcessRenewalRequest(ctx, domain.RenewalRequestedPayload{
			StudentID: studentID, PackID: "pack_4", BalanceAfter: "1",
		})
		require.NoError(t, err, "handled failures must not trigger redelivery")
		assert.NotEmpty(t, f.renewals.lastErr[studentID])
		assert.Len(t, f.outbox.eventsOfType(domain.EventRenewalFailed), 1)
	})

	t.Run("missing payment customer records failure", func(t *testing.T) {
		f := newRenewalFixture()
		studentID := uuid.New()
		f.renewals.settings[studentID] = &domain.RenewalSettings{
			StudentID: studentID, Enabled: true, PackID: "pack_4", Threshold: dec("1"),
		}
		f.renewals.packs["pack_4"] = &domain.RenewalPack{ID: "pack_4", Name: "4-class pack", Credits: dec("4"), PriceCents: 8000}
		f.subs.subs = append(f.subs.subs, &domain.Subscription{
			ID: uuid.New(), StudentID: studentID, Status: domain.SubscriptionActive,
		})

		err := f.svc.ProcessRenewalRequest(ctx, domain.RenewalRequestedPayload{
			StudentID: studentID, PackID: "pack_4", BalanceAfter: "1",
		})
		require.NoError(t, err)
		assert.Contains(t, f.renewals.lastErr[studentID], "payment customer")
	})
}
