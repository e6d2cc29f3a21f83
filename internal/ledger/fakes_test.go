package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/tutorloop/platform/internal/domain"
	"github.com/tutorloop/platform/internal/repository"
)

// fakeTx satisfies pgx.Tx for passing through the engine; commands never call
// its methods directly, they only hand it to the fake repositories.
type fakeTx struct{ pgx.Tx }

type fakeLedgerRepo struct {
	entries []domain.LedgerEntry
	nextSeq int64

	// hideDebits makes FindDebitForClass return nil, simulating the window
	// where a concurrent insert is not yet visible to the pre-check.
	hideDebits bool
}

func (f *fakeLedgerRepo) Latest(_ context.Context, _ repository.DBTX, studentID uuid.UUID) (*domain.LedgerEntry, error) {
	for i := len(f.entries) - 1; i >= 0; i-- {
		e := f.entries[i]
		if e.StudentID == studentID {
			return &e, nil
		}
	}
	return nil, nil
}

func (f *fakeLedgerRepo) FindDebitForClass(_ context.Context, _ repository.DBTX, studentID uuid.UUID, classID string) (*domain.LedgerEntry, error) {
	if f.hideDebits {
		return nil, nil
	}
	return f.findDebit(studentID, classID), nil
}

func (f *fakeLedgerRepo) FindRecentDebitForClass(_ context.Context, _ repository.DBTX, studentID uuid.UUID, classID string, since time.Time) (*domain.LedgerEntry, error) {
	e := f.findDebit(studentID, classID)
	if e == nil || e.CreatedAt.Before(since) {
		return nil, nil
	}
	return e, nil
}

func (f *fakeLedgerRepo) findDebit(studentID uuid.UUID, classID string) *domain.LedgerEntry {
	for i := len(f.entries) - 1; i >= 0; i-- {
		e := f.entries[i]
		if e.StudentID == studentID && e.Type == domain.EntryDebit &&
			e.RelatedClassID != nil && *e.RelatedClassID == classID {
			return &e
		}
	}
	return nil
}

func (f *fakeLedgerRepo) Insert(_ context.Context, _ repository.DBTX, params domain.AppendEntryParams) (*domain.LedgerEntry, error) {
	if params.Type == domain.EntryDebit && params.RelatedClassID != nil {
		if f.findDebit(params.StudentID, *params.RelatedClassID) != nil {
			return nil, &pgconn.PgError{Code: "23505", ConstraintName: "ledger_entries_debit_class_uniq"}
		}
	}

	f.nextSeq++
	entry := domain.LedgerEntry{
		ID:             uuid.New(),
		Seq:            f.nextSeq,
		StudentID:      params.StudentID,
		SubscriptionID: params.SubscriptionID,
		Type:           params.Type,
		Amount:         params.Amount,
		BalanceAfter:   params.BalanceAfter,
		Reason:         params.Reason,
		RelatedClassID: params.RelatedClassID,
		CreatedAt:      time.Now(),
	}
	f.entries = append(f.entries, entry)
	return &entry, nil
}

func (f *fakeLedgerRepo) ListByStudent(_ context.Context, _ repository.DBTX, studentID uuid.UUID, _ *string, limit int) ([]domain.LedgerEntry, error) {
	var out []domain.LedgerEntry
	for i := len(f.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if f.entries[i].StudentID == studentID {
			out = append(out, f.entries[i])
		}
	}
	return out, nil
}

type fakeSubscriptionRepo struct {
	subs []*domain.Subscription
}

func (f *fakeSubscriptionRepo) billable(studentID uuid.UUID) *domain.Subscription {
	for i := len(f.subs) - 1; i >= 0; i-- {
		s := f.subs[i]
		if s.StudentID == studentID && s.Status.Billable() {
			return s
		}
	}
	return nil
}

func (f *fakeSubscriptionRepo) FindBillableForStudent(_ context.Context, _ repository.DBTX, studentID uuid.UUID) (*domain.Subscription, error) {
	return f.billable(studentID), nil
}

func (f *fakeSubscriptionRepo) LockBillableForStudent(_ context.Context, _ repository.DBTX, studentID uuid.UUID) (*domain.Subscription, error) {
	return f.billable(studentID), nil
}

func (f *fakeSubscriptionRepo) FindByProviderSubscriptionID(_ context.Context, _ repository.DBTX, providerSubID string) (*domain.Subscription, error) {
	for _, s := range f.subs {
		if s.ProviderSubscriptionID != nil && *s.ProviderSubscriptionID == providerSubID {
			return s, nil
		}
	}
	return nil, nil
}

func (f *fakeSubscriptionRepo) Create(_ context.Context, _ repository.DBTX, sub *domain.Subscription) error {
	f.subs = append(f.subs, sub)
	return nil
}

func (f *fakeSubscriptionRepo) SyncCredits(_ context.Context, _ repository.DBTX, subscriptionID uuid.UUID, credits decimal.Decimal) error {
	for _, s := range f.subs {
		if s.ID == subscriptionID {
			s.CreditsRemaining = credits
			return nil
		}
	}
	return nil
}

type fakeOutboxRepo struct {
	drafts []domain.OutboxDraft
}

func (f *fakeOutboxRepo) Insert(_ context.Context, _ repository.DBTX, draft domain.OutboxDraft) error {
	f.drafts = append(f.drafts, draft)
	return nil
}

func (f *fakeOutboxRepo) FetchUnpublished(_ context.Context, _ repository.DBTX, limit int) ([]domain.OutboxDraft, error) {
	if limit > len(f.drafts) {
		limit = len(f.drafts)
	}
	return f.drafts[:limit], nil
}

func (f *fakeOutboxRepo) MarkPublished(_ context.Context, _ repository.DBTX, _ []int64) error {
	return nil
}

// newTestEngine wires an engine against fresh in-memory fakes. A billable
// subscription seeded with startingBalance is created when withSub is true.
func newTestEngine(withSub bool, startingBalance decimal.Decimal) (*Engine, *fakeLedgerRepo, *fakeSubscriptionRepo, *fakeOutboxRepo, uuid.UUID) {
	entries := &fakeLedgerRepo{}
	subs := &fakeSubscriptionRepo{}
	outbox := &fakeOutboxRepo{}
	studentID := uuid.New()

	if withSub {
		sub := &domain.Subscription{
			ID:               uuid.New(),
			StudentID:        studentID,
			PlanID:           "plan_standard",
			Status:           domain.SubscriptionActive,
			CreditsRemaining: startingBalance,
		}
		subs.subs = append(subs.subs, sub)
		if !startingBalance.IsZero() {
			entries.nextSeq++
			entries.entries = append(entries.entries, domain.LedgerEntry{
				ID:             uuid.New(),
				Seq:            entries.nextSeq,
				StudentID:      studentID,
				SubscriptionID: &sub.ID,
				Type:           domain.EntryAllocation,
				Amount:         startingBalance,
				BalanceAfter:   startingBalance,
				Reason:         "plan allocation: Standard",
				CreatedAt:      time.Now(),
			})
		}
	}

	return NewEngine(entries, subs, outbox), entries, subs, outbox, studentID
}
