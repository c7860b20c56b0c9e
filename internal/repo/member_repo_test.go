package repo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfmark/library/internal/db"
	"github.com/shelfmark/library/pkg/logger"
)

func TestCreateMemberAssignsNumber(t *testing.T) {
	database := setupTestDB(t)
	log := logger.NewLogger("test", "error")
	members := NewMemberRepository(database, log)

	ctx := context.Background()

	first := &db.Member{Name: "Ana", Tier: db.TierStandard}
	require.NoError(t, members.CreateMember(ctx, first))
	assert.Equal(t, "MEM-00001", first.MemberNumber)

	second := &db.Member{Name: "Ben", Tier: db.TierPremium}
	require.NoError(t, members.CreateMember(ctx, second))
	assert.Equal(t, "MEM-00002", second.MemberNumber)
}

func TestMemberLoanCounts(t *testing.T) {
	database := setupTestDB(t)
	log := logger.NewLogger("test", "error")
	members := NewMemberRepository(database, log)
	loans := NewLoanRepository(database, log, 14)

	ctx := context.Background()

	book := &db.Book{Title: "Dune", ISBN: "9780441172719"}
	require.NoError(t, database.Create(book).Error)

	member := &db.Member{Name: "Ana"}
	require.NoError(t, members.CreateMember(ctx, member))

	for i := 0; i < 2; i++ {
		require.NoError(t, loans.CreateLoan(ctx, &db.Loan{BookID: book.ID, MemberID: member.ID}))
	}
	overdueLoan := &db.Loan{BookID: book.ID, MemberID: member.ID, State: db.LoanOverdue}
	require.NoError(t, loans.CreateLoan(ctx, overdueLoan))

	total, overdue, err := members.LoanCounts(ctx, member.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Equal(t, int64(1), overdue)
}

func TestUpdateMemberTierAdjustsExpiry(t *testing.T) {
	database := setupTestDB(t)
	log := logger.NewLogger("test", "error")
	members := NewMemberRepository(database, log)

	ctx := context.Background()
	joined := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	member := &db.Member{Name: "Ana", Tier: db.TierStandard, MembershipDate: joined}
	require.NoError(t, members.CreateMember(ctx, member))
	require.True(t, joined.AddDate(0, 0, 365).Equal(member.ExpiryDate))

	updated, err := members.UpdateMember(ctx, member.ID, func(m *db.Member) {
		m.Tier = db.TierPremium
	})
	require.NoError(t, err)
	assert.True(t, joined.AddDate(0, 0, 730).Equal(updated.ExpiryDate))
	assert.Equal(t, 10, updated.MaxLoanLimit())
}

func TestGetMemberNotFound(t *testing.T) {
	database := setupTestDB(t)
	log := logger.NewLogger("test", "error")
	members := NewMemberRepository(database, log)

	_, err := members.GetMember(context.Background(), 404)
	assert.ErrorIs(t, err, ErrMemberNotFound)
}
