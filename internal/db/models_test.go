package db

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *DB {
	gormDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	database := &DB{DB: gormDB}
	err = RunMigrations(database)
	require.NoError(t, err)

	return database
}

func TestValidISBN(t *testing.T) {
	cases := []struct {
		isbn  string
		valid bool
	}{
		{"9780306406157", true},
		{"978-0-306-40615-7", true},
		{"978 0 306 40615 7", true},
		{"030640615", false},         // 9 digits
		{"97803064061579", false},    // 14 digits
		{"978-0-306-4061", false},    // 10 digits after stripping
		{"97803064061VX", false},     // non-digit characters
		{"", false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.valid, ValidISBN(tc.isbn), "isbn %q", tc.isbn)
	}
}

func TestActiveFlagPersistsFalse(t *testing.T) {
	database := setupTestDB(t)

	book := &Book{Title: "Dune", ISBN: "9780441172719", Active: false}
	require.NoError(t, database.Create(book).Error)

	var reloadedBook Book
	require.NoError(t, database.First(&reloadedBook, book.ID).Error)
	assert.False(t, reloadedBook.Active)

	member := &Member{MemberNumber: "MEM-00001", Name: "Ana", Active: false}
	require.NoError(t, database.Create(member).Error)

	var reloadedMember Member
	require.NoError(t, database.First(&reloadedMember, member.ID).Error)
	assert.False(t, reloadedMember.Active)
}

func TestBookISBNValidatedOnEveryWrite(t *testing.T) {
	database := setupTestDB(t)

	book := &Book{Title: "Dune", ISBN: "invalid"}
	err := database.Create(book).Error
	assert.ErrorIs(t, err, ErrInvalidISBN)

	book.ISBN = "978-0-441-17271-9"
	require.NoError(t, database.Create(book).Error)

	// An update touching the field is checked too.
	book.ISBN = "123"
	err = database.Save(book).Error
	assert.ErrorIs(t, err, ErrInvalidISBN)
}

func TestBookDefaults(t *testing.T) {
	database := setupTestDB(t)

	book := &Book{Title: "Dune", ISBN: "9780441172719"}
	require.NoError(t, database.Create(book).Error)

	assert.Equal(t, BookAvailable, book.Status)
	assert.Equal(t, ConditionNew, book.Condition)
	assert.False(t, book.AcquisitionDate.IsZero())
}

func TestMemberExpiryDerivedFromTier(t *testing.T) {
	database := setupTestDB(t)

	joined := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		tier string
		days int
	}{
		{TierStandard, 365},
		{TierPremium, 730},
		{TierStudent, 180},
		{TierSenior, 365},
	}

	for i, tc := range cases {
		member := &Member{
			MemberNumber:   fmt.Sprintf("MEM-%05d", i+1),
			Name:           "Member " + tc.tier,
			Tier:           tc.tier,
			MembershipDate: joined,
		}
		require.NoError(t, database.Create(member).Error)
		assert.Equal(t, joined.AddDate(0, 0, tc.days), member.ExpiryDate, "tier %s", tc.tier)
	}
}

func TestMemberExpiryRecomputedOnTierChange(t *testing.T) {
	database := setupTestDB(t)

	joined := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	member := &Member{MemberNumber: "MEM-00001", Name: "Ana", Tier: TierStandard, MembershipDate: joined}
	require.NoError(t, database.Create(member).Error)
	require.Equal(t, joined.AddDate(0, 0, 365), member.ExpiryDate)

	member.Tier = TierPremium
	require.NoError(t, database.Save(member).Error)
	assert.Equal(t, joined.AddDate(0, 0, 730), member.ExpiryDate)
}

func TestMemberMaxLoanLimit(t *testing.T) {
	assert.Equal(t, 3, (&Member{Tier: TierStandard}).MaxLoanLimit())
	assert.Equal(t, 10, (&Member{Tier: TierPremium}).MaxLoanLimit())
	assert.Equal(t, 5, (&Member{Tier: TierStudent}).MaxLoanLimit())
	assert.Equal(t, 7, (&Member{Tier: TierSenior}).MaxLoanLimit())
	assert.Equal(t, 3, (&Member{}).MaxLoanLimit())
}

func TestLoanDueDateDerived(t *testing.T) {
	database := setupTestDB(t)

	loanDate := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	loan := &Loan{Reference: "LOAN-00001", BookID: 1, MemberID: 1, LoanDate: loanDate, DurationDays: 14}
	require.NoError(t, database.Create(loan).Error)

	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), loan.DueDate)
	assert.Equal(t, LoanDraft, loan.State)

	// Changing the duration moves the due date with it.
	loan.DurationDays = 21
	require.NoError(t, database.Save(loan).Error)
	assert.Equal(t, time.Date(2024, 1, 22, 0, 0, 0, 0, time.UTC), loan.DueDate)
}

func TestDashboardSingletonKeyUnique(t *testing.T) {
	database := setupTestDB(t)

	require.NoError(t, database.Create(&Dashboard{SingletonKey: "default"}).Error)
	err := database.Create(&Dashboard{SingletonKey: "default"}).Error
	assert.Error(t, err)
}
