package repo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/shelfmark/library/internal/db"
	"github.com/shelfmark/library/pkg/logger"
)

func setupTestDB(t *testing.T) *db.DB {
	gormDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	database := &db.DB{DB: gormDB}
	err = db.RunMigrations(database)
	require.NoError(t, err)

	return database
}

func fixedClock(year int, month time.Month, day int) func() time.Time {
	return func() time.Time {
		return time.Date(year, month, day, 10, 30, 0, 0, time.UTC)
	}
}

func seedBookAndMember(t *testing.T, database *db.DB) (*db.Book, *db.Member) {
	book := &db.Book{Title: "Dune", ISBN: "9780441172719"}
	require.NoError(t, database.Create(book).Error)

	member := &db.Member{MemberNumber: "MEM-00001", Name: "Ana", Tier: db.TierStandard}
	require.NoError(t, database.Create(member).Error)

	return book, member
}

func TestCreateLoanAssignsReference(t *testing.T) {
	database := setupTestDB(t)
	log := logger.NewLogger("test", "error")
	loans := NewLoanRepository(database, log, 14)
	book, member := seedBookAndMember(t, database)

	ctx := context.Background()

	first := &db.Loan{BookID: book.ID, MemberID: member.ID}
	require.NoError(t, loans.CreateLoan(ctx, first))
	assert.Equal(t, "LOAN-00001", first.Reference)

	second := &db.Loan{BookID: book.ID, MemberID: member.ID}
	require.NoError(t, loans.CreateLoan(ctx, second))
	assert.Equal(t, "LOAN-00002", second.Reference)

	// An explicit reference is kept as-is.
	third := &db.Loan{BookID: book.ID, MemberID: member.ID, Reference: "SPECIAL-1"}
	require.NoError(t, loans.CreateLoan(ctx, third))
	assert.Equal(t, "SPECIAL-1", third.Reference)
}

func TestDueDateEqualsLoanDatePlusDuration(t *testing.T) {
	database := setupTestDB(t)
	log := logger.NewLogger("test", "error")
	loans := NewLoanRepository(database, log, 14)
	book, member := seedBookAndMember(t, database)

	loan := &db.Loan{
		BookID:       book.ID,
		MemberID:     member.ID,
		LoanDate:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		DurationDays: 14,
	}
	require.NoError(t, loans.CreateLoan(context.Background(), loan))

	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), loan.DueDate)
}

func TestConfirmLoan(t *testing.T) {
	database := setupTestDB(t)
	log := logger.NewLogger("test", "error")
	loans := NewLoanRepository(database, log, 14)
	book, member := seedBookAndMember(t, database)

	ctx := context.Background()
	loan := &db.Loan{BookID: book.ID, MemberID: member.ID}
	require.NoError(t, loans.CreateLoan(ctx, loan))

	confirmed, err := loans.Confirm(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, db.LoanConfirmed, confirmed.State)

	// The book follows the loan into borrowed.
	var reloaded db.Book
	require.NoError(t, database.First(&reloaded, book.ID).Error)
	assert.Equal(t, db.BookBorrowed, reloaded.Status)

	// Confirming twice is rejected.
	_, err = loans.Confirm(ctx, loan.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestReturnOnDueDateIncursNoFine(t *testing.T) {
	database := setupTestDB(t)
	log := logger.NewLogger("test", "error")
	loans := NewLoanRepository(database, log, 14).WithClock(fixedClock(2024, 1, 15))
	book, member := seedBookAndMember(t, database)

	ctx := context.Background()
	loan := &db.Loan{
		BookID:       book.ID,
		MemberID:     member.ID,
		LoanDate:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		DurationDays: 14,
	}
	require.NoError(t, loans.CreateLoan(ctx, loan))
	_, err := loans.Confirm(ctx, loan.ID)
	require.NoError(t, err)

	returned, err := loans.Return(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, db.LoanReturned, returned.State)
	assert.Equal(t, 0.0, returned.FineAmount)
	require.NotNil(t, returned.ActualReturnDate)
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), *returned.ActualReturnDate)

	var reloaded db.Book
	require.NoError(t, database.First(&reloaded, book.ID).Error)
	assert.Equal(t, db.BookAvailable, reloaded.Status)
}

func TestLateReturnFine(t *testing.T) {
	database := setupTestDB(t)
	log := logger.NewLogger("test", "error")
	loans := NewLoanRepository(database, log, 14).WithClock(fixedClock(2024, 1, 18))
	book, member := seedBookAndMember(t, database)

	ctx := context.Background()
	loan := &db.Loan{
		BookID:       book.ID,
		MemberID:     member.ID,
		LoanDate:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		DurationDays: 14,
	}
	require.NoError(t, loans.CreateLoan(ctx, loan))
	_, err := loans.Confirm(ctx, loan.ID)
	require.NoError(t, err)

	// Due 2024-01-15, returned 2024-01-18: 3 days late.
	returned, err := loans.Return(ctx, loan.ID)
	require.NoError(t, err)
	assert.InDelta(t, 3*FineRatePerDay, returned.FineAmount, 1e-9)
}

func TestSweepOverdueAndFineRecomputedOnReturn(t *testing.T) {
	database := setupTestDB(t)
	log := logger.NewLogger("test", "error")
	loans := NewLoanRepository(database, log, 14).WithClock(fixedClock(2024, 1, 20))
	book, member := seedBookAndMember(t, database)

	ctx := context.Background()
	loan := &db.Loan{
		BookID:       book.ID,
		MemberID:     member.ID,
		LoanDate:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		DurationDays: 14,
	}
	require.NoError(t, loans.CreateLoan(ctx, loan))
	_, err := loans.Confirm(ctx, loan.ID)
	require.NoError(t, err)

	// Today is 2024-01-20, due date 2024-01-15: 5 days late.
	swept, err := loans.SweepOverdue(ctx)
	require.NoError(t, err)
	require.Len(t, swept, 1)
	assert.Equal(t, db.LoanOverdue, swept[0].State)
	assert.InDelta(t, 5*FineRatePerDay, swept[0].FineAmount, 1e-9)

	// Returning with an earlier actual return date recomputes the fine
	// from the returned-state rule, overwriting the accrued figure.
	loans.WithClock(fixedClock(2024, 1, 16))
	returned, err := loans.Return(ctx, loan.ID)
	require.NoError(t, err)
	assert.InDelta(t, 1*FineRatePerDay, returned.FineAmount, 1e-9)
}

func TestSweepOverdueIsIdempotent(t *testing.T) {
	database := setupTestDB(t)
	log := logger.NewLogger("test", "error")
	loans := NewLoanRepository(database, log, 14).WithClock(fixedClock(2024, 2, 1))
	book, member := seedBookAndMember(t, database)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		loan := &db.Loan{
			BookID:       book.ID,
			MemberID:     member.ID,
			LoanDate:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			DurationDays: 14,
		}
		require.NoError(t, loans.CreateLoan(ctx, loan))
		_, err := loans.Confirm(ctx, loan.ID)
		require.NoError(t, err)
	}

	first, err := loans.SweepOverdue(ctx)
	require.NoError(t, err)
	assert.Len(t, first, 3)

	second, err := loans.SweepOverdue(ctx)
	require.NoError(t, err)
	assert.Empty(t, second)

	overdue, err := loans.ListLoans(ctx, db.LoanOverdue, 0)
	require.NoError(t, err)
	assert.Len(t, overdue, 3)
}

func TestSweepSkipsLoansDueTodayOrReturned(t *testing.T) {
	database := setupTestDB(t)
	log := logger.NewLogger("test", "error")
	loans := NewLoanRepository(database, log, 14).WithClock(fixedClock(2024, 1, 15))
	book, member := seedBookAndMember(t, database)

	ctx := context.Background()

	// Due exactly today: strict inequality keeps it confirmed.
	dueToday := &db.Loan{
		BookID:       book.ID,
		MemberID:     member.ID,
		LoanDate:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		DurationDays: 14,
	}
	require.NoError(t, loans.CreateLoan(ctx, dueToday))
	_, err := loans.Confirm(ctx, dueToday.ID)
	require.NoError(t, err)

	// Past due but already returned: not the sweep's business.
	alreadyReturned := &db.Loan{
		BookID:       book.ID,
		MemberID:     member.ID,
		LoanDate:     time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC),
		DurationDays: 14,
	}
	require.NoError(t, loans.CreateLoan(ctx, alreadyReturned))
	_, err = loans.Confirm(ctx, alreadyReturned.ID)
	require.NoError(t, err)
	_, err = loans.Return(ctx, alreadyReturned.ID)
	require.NoError(t, err)

	swept, err := loans.SweepOverdue(ctx)
	require.NoError(t, err)
	assert.Empty(t, swept)
}

func TestMarkLost(t *testing.T) {
	database := setupTestDB(t)
	log := logger.NewLogger("test", "error")
	loans := NewLoanRepository(database, log, 14)
	book, member := seedBookAndMember(t, database)

	ctx := context.Background()
	loan := &db.Loan{BookID: book.ID, MemberID: member.ID}
	require.NoError(t, loans.CreateLoan(ctx, loan))

	lost, err := loans.MarkLost(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, db.LoanLost, lost.State)
	assert.Equal(t, 0.0, lost.FineAmount)

	var reloaded db.Book
	require.NoError(t, database.First(&reloaded, book.ID).Error)
	assert.Equal(t, db.BookLost, reloaded.Status)

	// Returning a lost loan is rejected.
	_, err = loans.Return(ctx, loan.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestFineAmountPureFunction(t *testing.T) {
	due := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	today := time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC)

	onTime := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	late := time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC)
	early := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, 0.0, FineAmount(db.LoanReturned, due, &onTime, today))
	assert.InDelta(t, 1.5, FineAmount(db.LoanReturned, due, &late, today), 1e-9)
	assert.Equal(t, 0.0, FineAmount(db.LoanReturned, due, &early, today))
	assert.InDelta(t, 7.5, FineAmount(db.LoanOverdue, due, nil, today), 1e-9)
	assert.Equal(t, 0.0, FineAmount(db.LoanConfirmed, due, nil, today))
	assert.Equal(t, 0.0, FineAmount(db.LoanDraft, due, nil, today))
	assert.Equal(t, 0.0, FineAmount(db.LoanLost, due, nil, today))
}

func TestFineAmountNormalizesClockZone(t *testing.T) {
	due := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	// 2024-01-20 in IST is 5 calendar days past due, same as in UTC.
	ist := time.FixedZone("IST", 5*3600+1800)
	today := time.Date(2024, 1, 20, 9, 30, 0, 0, ist)
	assert.InDelta(t, 5*FineRatePerDay, FineAmount(db.LoanOverdue, due, nil, today), 1e-9)

	est := time.FixedZone("EST", -5*3600)
	returnedAt := time.Date(2024, 1, 16, 22, 0, 0, 0, est)
	assert.InDelta(t, 1*FineRatePerDay, FineAmount(db.LoanReturned, due, &returnedAt, today), 1e-9)
}

func TestSweepHonorsClockZone(t *testing.T) {
	database := setupTestDB(t)
	log := logger.NewLogger("test", "error")
	est := time.FixedZone("EST", -5*3600)
	loans := NewLoanRepository(database, log, 14).WithClock(func() time.Time {
		return time.Date(2024, 1, 20, 3, 0, 0, 0, est)
	})
	book, member := seedBookAndMember(t, database)

	ctx := context.Background()

	// Due exactly on the clock's calendar day: stays confirmed even
	// though midnight EST is already past midnight UTC.
	dueToday := &db.Loan{
		BookID:       book.ID,
		MemberID:     member.ID,
		LoanDate:     time.Date(2024, 1, 6, 0, 0, 0, 0, time.UTC),
		DurationDays: 14,
	}
	require.NoError(t, loans.CreateLoan(ctx, dueToday))
	_, err := loans.Confirm(ctx, dueToday.ID)
	require.NoError(t, err)

	pastDue := &db.Loan{
		BookID:       book.ID,
		MemberID:     member.ID,
		LoanDate:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		DurationDays: 14,
	}
	require.NoError(t, loans.CreateLoan(ctx, pastDue))
	_, err = loans.Confirm(ctx, pastDue.ID)
	require.NoError(t, err)

	swept, err := loans.SweepOverdue(ctx)
	require.NoError(t, err)
	require.Len(t, swept, 1)
	assert.Equal(t, pastDue.ID, swept[0].ID)
	assert.InDelta(t, 5*FineRatePerDay, swept[0].FineAmount, 1e-9)
}

func TestCreateLoanNormalizesLoanDate(t *testing.T) {
	database := setupTestDB(t)
	log := logger.NewLogger("test", "error")
	loans := NewLoanRepository(database, log, 14)
	book, member := seedBookAndMember(t, database)

	ist := time.FixedZone("IST", 5*3600+1800)
	loan := &db.Loan{
		BookID:       book.ID,
		MemberID:     member.ID,
		LoanDate:     time.Date(2024, 1, 1, 18, 45, 0, 0, ist),
		DurationDays: 14,
	}
	require.NoError(t, loans.CreateLoan(context.Background(), loan))

	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), loan.LoanDate)
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), loan.DueDate)
}

func TestGetLoanNotFound(t *testing.T) {
	database := setupTestDB(t)
	log := logger.NewLogger("test", "error")
	loans := NewLoanRepository(database, log, 14)

	_, err := loans.GetLoan(context.Background(), 999)
	assert.ErrorIs(t, err, ErrLoanNotFound)
}
