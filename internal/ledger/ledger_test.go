package ledger

import (
	"context"
	"testing"

	"github.com/gamemart/ledger/internal/domain"
	"github.com/gamemart/ledger/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeUsers keeps wallets in memory. The tx argument is ignored.
type fakeUsers struct {
	repository.UserRepository
	users  map[uuid.UUID]*domain.User
	locked []uuid.UUID
}

func (f *fakeUsers) LockForUpdate(_ context.Context, _ pgx.Tx, id uuid.UUID) (*domain.User, error) {
	f.locked = append(f.locked, id)
	u, ok := f.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) AdjustBalance(_ context.Context, _ pgx.Tx, id uuid.UUID, delta decimal.Decimal) (*domain.User, error) {
	u := f.users[id]
	u.Wallet.Balance = u.Wallet.Balance.Add(delta)
	cp := *u
	return &cp, nil
}

type fakeWalletTxs struct {
	repository.WalletTransactionRepository
	rows []*domain.WalletTransaction
}

func (f *fakeWalletTxs) Insert(_ context.Context, _ repository.DBTX, tx *domain.WalletTransaction) error {
	f.rows = append(f.rows, tx)
	return nil
}

type fakeOutbox struct {
	repository.OutboxRepository
	drafts []domain.OutboxDraft
}

func (f *fakeOutbox) Insert(_ context.Context, _ repository.DBTX, d domain.OutboxDraft) error {
	f.drafts = append(f.drafts, d)
	return nil
}

type fixture struct {
	engine *Engine
	users  *fakeUsers
	txs    *fakeWalletTxs
	outbox *fakeOutbox
	userID uuid.UUID
}

func newFixture(balance string) *fixture {
	id := uuid.New()
	users := &fakeUsers{users: map[uuid.UUID]*domain.User{
		id: {ID: id, Role: domain.RoleReseller, Status: domain.UserActive, Wallet: domain.Wallet{Balance: decimal.RequireFromString(balance), Currency: "BDT"}},
	}}
	txs := &fakeWalletTxs{}
	outbox := &fakeOutbox{}
	return &fixture{
		engine: NewEngine(users, txs, outbox),
		users:  users,
		txs:    txs,
		outbox: outbox,
		userID: id,
	}
}

func (f *fixture) balance() decimal.Decimal {
	return f.users.users[f.userID].Wallet.Balance
}

func TestCredit_AppendsEntryAndEvent(t *testing.T) {
	f := newFixture("100.00")
	related := uuid.New()

	res, err := f.engine.Credit(context.Background(), nil, f.userID, decimal.RequireFromString("50.25"), "Top-up", domain.RelatedWalletTopup, &related)
	require.NoError(t, err)

	assert.True(t, f.balance().Equal(decimal.RequireFromString("150.25")))
	require.Len(t, f.txs.rows, 1)
	row := f.txs.rows[0]
	assert.Equal(t, domain.WalletCredit, row.Type)
	assert.True(t, row.Amount.Equal(decimal.RequireFromString("50.25")))
	assert.True(t, row.BalanceAfter.Equal(decimal.RequireFromString("150.25")))
	assert.Equal(t, domain.RelatedWalletTopup, row.RelatedType)
	assert.Equal(t, &related, row.RelatedID)
	assert.Equal(t, domain.WalletTxStatusCompleted, row.Status)
	assert.Equal(t, row, res.Transaction)

	require.Len(t, f.outbox.drafts, 1)
	assert.Equal(t, domain.EventWalletTxPosted, f.outbox.drafts[0].EventType)
	assert.Equal(t, f.userID.String(), f.outbox.drafts[0].PartitionKey)
}

func TestDebit_StoresPositiveAmount(t *testing.T) {
	f := newFixture("100.00")

	res, err := f.engine.Debit(context.Background(), nil, f.userID, decimal.RequireFromString("60"), "Order", domain.RelatedOrder, nil)
	require.NoError(t, err)

	assert.True(t, f.balance().Equal(decimal.RequireFromString("40")))
	assert.Equal(t, domain.WalletDebit, res.Transaction.Type)
	assert.True(t, res.Transaction.Amount.Equal(decimal.RequireFromString("60")))
	assert.True(t, res.Transaction.BalanceAfter.Equal(decimal.RequireFromString("40")))
	assert.True(t, res.User.Wallet.Balance.Equal(decimal.RequireFromString("40")))
}

func TestDebit_ExactBalanceReachesZero(t *testing.T) {
	f := newFixture("75.50")

	_, err := f.engine.Debit(context.Background(), nil, f.userID, decimal.RequireFromString("75.50"), "Order", domain.RelatedOrder, nil)
	require.NoError(t, err)
	assert.True(t, f.balance().IsZero())
}

func TestDebit_OverdraftChangesNothing(t *testing.T) {
	f := newFixture("10.00")

	_, err := f.engine.Debit(context.Background(), nil, f.userID, decimal.RequireFromString("10.01"), "Order", domain.RelatedOrder, nil)
	require.Error(t, err)
	assert.True(t, domain.HasCode(err, domain.CodeInsufficientFunds))

	assert.True(t, f.balance().Equal(decimal.RequireFromString("10.00")))
	assert.Empty(t, f.txs.rows)
	assert.Empty(t, f.outbox.drafts)
}

func TestApplyWalletDelta_Validation(t *testing.T) {
	tests := []struct {
		name  string
		delta string
	}{
		{"zero", "0"},
		{"sub-cent credit", "0.001"},
		{"sub-cent debit", "-1.005"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture("100.00")
			_, err := f.engine.ApplyWalletDelta(context.Background(), nil, domain.WalletDeltaParams{
				UserID: f.userID,
				Delta:  decimal.RequireFromString(tt.delta),
			})
			require.Error(t, err)
			assert.True(t, domain.HasCode(err, domain.CodeValidation))
			assert.Empty(t, f.users.locked, "validation must fail before locking")
			assert.Empty(t, f.txs.rows)
		})
	}
}

func TestCredit_RejectsNonPositive(t *testing.T) {
	f := newFixture("100.00")

	_, err := f.engine.Credit(context.Background(), nil, f.userID, decimal.RequireFromString("-5"), "bad", domain.RelatedAdminCredit, nil)
	assert.True(t, domain.HasCode(err, domain.CodeValidation))

	_, err = f.engine.Debit(context.Background(), nil, f.userID, decimal.Zero, "bad", domain.RelatedOrder, nil)
	assert.True(t, domain.HasCode(err, domain.CodeValidation))
}

func TestApplyWalletDelta_UnknownUser(t *testing.T) {
	f := newFixture("100.00")

	_, err := f.engine.Credit(context.Background(), nil, uuid.New(), decimal.NewFromInt(1), "x", domain.RelatedAdminCredit, nil)
	require.Error(t, err)
	assert.True(t, domain.HasCode(err, domain.CodeNotFound))
	assert.Empty(t, f.txs.rows)
}

func TestApplyWalletDelta_SequenceKeepsParity(t *testing.T) {
	f := newFixture("0")
	ctx := context.Background()

	deltas := []string{"100", "-30.50", "20.25", "-89.75"}
	for _, d := range deltas {
		_, err := f.engine.ApplyWalletDelta(ctx, nil, domain.WalletDeltaParams{
			UserID:      f.userID,
			Delta:       decimal.RequireFromString(d),
			RelatedType: domain.RelatedAdminCredit,
		})
		require.NoError(t, err, d)
	}

	sum := decimal.Zero
	for _, row := range f.txs.rows {
		if row.Type == domain.WalletCredit {
			sum = sum.Add(row.Amount)
		} else {
			sum = sum.Sub(row.Amount)
		}
	}
	assert.True(t, sum.Equal(f.balance()))
	assert.True(t, f.txs.rows[len(f.txs.rows)-1].BalanceAfter.Equal(f.balance()))
	assert.True(t, f.balance().IsZero())
}
