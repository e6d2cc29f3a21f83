package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/tutorloop/platform/internal/domain"
	"github.com/tutorloop/platform/internal/repository"
)

// fakeTx satisfies pgx.Tx; the repositories under test ignore the handle, so
// only Commit and Rollback need real implementations.
type fakeTx struct{ pgx.Tx }

func (fakeTx) Commit(context.Context) error   { return nil }
func (fakeTx) Rollback(context.Context) error { return nil }

// fakePool satisfies repository.Pool without a database.
type fakePool struct{}

func (fakePool) Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}
func (fakePool) Query(context.Context, string, ...interface{}) (pgx.Rows, error) {
	return nil, errors.New("fake pool has no rows")
}
func (fakePool) QueryRow(context.Context, string, ...interface{}) pgx.Row { return fakeRow{} }
func (fakePool) Begin(context.Context) (pgx.Tx, error)                    { return fakeTx{}, nil }

// fakeRow errors on scan so guards that fail open see a harmless DB error.
type fakeRow struct{}

func (fakeRow) Scan(...interface{}) error { return errors.New("fake pool has no rows") }

type fakeLedgerRepo struct {
	mu      sync.Mutex
	entries []domain.LedgerEntry
	nextSeq int64
}

func (f *fakeLedgerRepo) Latest(_ context.Context, _ repository.DBTX, studentID uuid.UUID) (*domain.LedgerEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.entries) - 1; i >= 0; i-- {
		if f.entries[i].StudentID == studentID {
			e := f.entries[i]
			return &e, nil
		}
	}
	return nil, nil
}

func (f *fakeLedgerRepo) FindDebitForClass(_ context.Context, _ repository.DBTX, studentID uuid.UUID, classID string) (*domain.LedgerEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.findDebitLocked(studentID, classID), nil
}

func (f *fakeLedgerRepo) FindRecentDebitForClass(_ context.Context, _ repository.DBTX, studentID uuid.UUID, classID string, since time.Time) (*domain.LedgerEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e := f.findDebitLocked(studentID, classID)
	if e == nil || e.CreatedAt.Before(since) {
		return nil, nil
	}
	return e, nil
}

func (f *fakeLedgerRepo) findDebitLocked(studentID uuid.UUID, classID string) *domain.LedgerEntry {
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
	f.mu.Lock()
	defer f.mu.Unlock()
	if params.Type == domain.EntryDebit && params.RelatedClassID != nil {
		if f.findDebitLocked(params.StudentID, *params.RelatedClassID) != nil {
			return nil, &pgconn.PgError{Code: "23505"}
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
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.LedgerEntry
	for i := len(f.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if f.entries[i].StudentID == studentID {
			out = append(out, f.entries[i])
		}
	}
	return out, nil
}

type fakeSubscriptionRepo struct {
	mu   sync.Mutex
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
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.billable(studentID), nil
}

func (f *fakeSubscriptionRepo) LockBillableForStudent(_ context.Context, _ repository.DBTX, studentID uuid.UUID) (*domain.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.billable(studentID), nil
}

func (f *fakeSubscriptionRepo) FindByProviderSubscriptionID(_ context.Context, _ repository.DBTX, providerSubID string) (*domain.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.subs {
		if s.ProviderSubscriptionID != nil && *s.ProviderSubscriptionID == providerSubID {
			return s, nil
		}
	}
	return nil, nil
}

func (f *fakeSubscriptionRepo) Create(_ context.Context, _ repository.DBTX, sub *domain.Subscription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = append(f.subs, sub)
	return nil
}

func (f *fakeSubscriptionRepo) SyncCredits(_ context.Context, _ repository.DBTX, subscriptionID uuid.UUID, credits decimal.Decimal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.subs {
		if s.ID == subscriptionID {
			s.CreditsRemaining = credits
			return nil
		}
	}
	return nil
}

type fakeOutboxRepo struct {
	mu     sync.Mutex
	drafts []domain.OutboxDraft
}

func (f *fakeOutboxRepo) Insert(_ context.Context, _ repository.DBTX, draft domain.OutboxDraft) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drafts = append(f.drafts, draft)
	return nil
}

func (f *fakeOutboxRepo) FetchUnpublished(_ context.Context, _ repository.DBTX, limit int) ([]domain.OutboxDraft, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if limit > len(f.drafts) {
		limit = len(f.drafts)
	}
	out := make([]domain.OutboxDraft, limit)
	copy(out, f.drafts[:limit])
	return out, nil
}

func (f *fakeOutboxRepo) MarkPublished(_ context.Context, _ repository.DBTX, _ []int64) error {
	return nil
}

func (f *fakeOutboxRepo) eventsOfType(t domain.EventType) []domain.OutboxDraft {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.OutboxDraft
	for _, d := range f.drafts {
		if d.EventType == t {
			out = append(out, d)
		}
	}
	return out
}

type fakeRenewalRepo struct {
	mu       sync.Mutex
	settings map[uuid.UUID]*domain.RenewalSettings
	packs    map[string]*domain.RenewalPack
	lastErr  map[uuid.UUID]string
}

func newFakeRenewalRepo() *fakeRenewalRepo {
	return &fakeRenewalRepo{
		settings: make(map[uuid.UUID]*domain.RenewalSettings),
		packs:    make(map[string]*domain.RenewalPack),
		lastErr:  make(map[uuid.UUID]string),
	}
}

func (f *fakeRenewalRepo) FindSettings(_ context.Context, _ repository.DBTX, studentID uuid.UUID) (*domain.RenewalSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.settings[studentID], nil
}

func (f *fakeRenewalRepo) UpsertSettings(_ context.Context, _ repository.DBTX, s *domain.RenewalSettings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settings[s.StudentID] = s
	return nil
}

func (f *fakeRenewalRepo) RecordRenewalSuccess(_ context.Context, _ repository.DBTX, studentID uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.settings[studentID]; ok {
		s.LastRenewalAt = &at
		s.LastRenewalError = nil
	}
	return nil
}

func (f *fakeRenewalRepo) RecordRenewalError(_ context.Context, _ repository.DBTX, studentID uuid.UUID, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastErr[studentID] = message
	return nil
}

func (f *fakeRenewalRepo) FindPack(_ context.Context, _ repository.DBTX, packID string) (*domain.RenewalPack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.packs[packID], nil
}

type fakeClassRepo struct {
	mu            sync.Mutex
	scheduled     map[string]*domain.ScheduledClass
	logs          map[string]*domain.ClassLog
	failInsertLog bool
}

func newFakeClassRepo() *fakeClassRepo {
	return &fakeClassRepo{
		scheduled: make(map[string]*domain.ScheduledClass),
		logs:      make(map[string]*domain.ClassLog),
	}
}

func (f *fakeClassRepo) FindScheduled(_ context.Context, _ repository.DBTX, classID string) (*domain.ScheduledClass, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.scheduled[classID], nil
}

func (f *fakeClassRepo) DeleteScheduled(_ context.Context, _ repository.DBTX, classID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.scheduled, classID)
	return nil
}

func (f *fakeClassRepo) FindLogByClassID(_ context.Context, _ repository.DBTX, classID string) (*domain.ClassLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logs[classID], nil
}

func (f *fakeClassRepo) InsertLog(_ context.Context, _ repository.DBTX, log *domain.ClassLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failInsertLog {
		return errors.New("class_logs insert failed")
	}
	f.logs[log.ClassID] = log
	return nil
}

type fakeAuthUserRepo struct {
	mu    sync.Mutex
	users []*domain.AuthUser
}

func (f *fakeAuthUserRepo) FindByEmail(_ context.Context, _ repository.DBTX, email string) (*domain.AuthUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

func (f *fakeAuthUserRepo) FindByID(_ context.Context, _ repository.DBTX, id uuid.UUID) (*domain.AuthUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, nil
}

func (f *fakeAuthUserRepo) Create(_ context.Context, _ repository.DBTX, user *domain.AuthUser) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users = append(f.users, user)
	return nil
}
