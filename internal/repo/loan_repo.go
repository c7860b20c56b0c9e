package repo

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/shelfmark/library/internal/db"
)

// FineRatePerDay is the late-return penalty in currency units per day.
const FineRatePerDay = 1.5

var (
	// ErrLoanNotFound is returned when a loan is not found
	ErrLoanNotFound = errors.New("loan not found")

	// ErrInvalidTransition is returned when a lifecycle action does not
	// apply to the loan's current state
	ErrInvalidTransition = errors.New("invalid loan state transition")
)

// DateOf reduces a timestamp to its calendar day, anchored at midnight
// UTC. Dates arriving in different zones normalize to the same location
// so day arithmetic and due-date comparisons stay exact.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// daysBetween returns whole days from a to b, negative when b is earlier.
func daysBetween(a, b time.Time) int {
	return int(DateOf(b).Sub(DateOf(a)).Hours() / 24)
}

// FineAmount computes the fine for a loan from its current state and dates.
// A returned loan is fined on its actual return date, an overdue loan on
// today; returning exactly on the due date costs nothing.
func FineAmount(state string, dueDate time.Time, actualReturn *time.Time, today time.Time) float64 {
	switch state {
	case db.LoanReturned:
		if actualReturn == nil {
			return 0
		}
		if late := daysBetween(dueDate, *actualReturn); late > 0 {
			return float64(late) * FineRatePerDay
		}
	case db.LoanOverdue:
		if late := daysBetween(dueDate, today); late > 0 {
			return float64(late) * FineRatePerDay
		}
	}
	return 0
}

// LoanRepository handles the loan lifecycle
type LoanRepository struct {
	db              *db.DB
	log             *zap.Logger
	now             func() time.Time
	defaultDuration int
}

// NewLoanRepository creates a new loan repository. defaultDuration is the
// configured loan duration in days applied when a loan does not carry one.
func NewLoanRepository(database *db.DB, logger *zap.Logger, defaultDuration int) *LoanRepository {
	if defaultDuration <= 0 {
		defaultDuration = 14
	}
	return &LoanRepository{
		db:              database,
		log:             logger,
		now:             time.Now,
		defaultDuration: defaultDuration,
	}
}

// WithClock replaces the repository clock, used by tests to pin "today".
func (r *LoanRepository) WithClock(now func() time.Time) *LoanRepository {
	r.now = now
	return r
}

// CreateLoan creates a draft loan. An explicit reference wins; otherwise
// the next value of the loan sequence is allocated in the same transaction
// as the insert.
func (r *LoanRepository) CreateLoan(ctx context.Context, loan *db.Loan) error {
	if loan.LoanDate.IsZero() {
		loan.LoanDate = DateOf(r.now())
	} else {
		loan.LoanDate = DateOf(loan.LoanDate)
	}
	if loan.DurationDays <= 0 {
		loan.DurationDays = r.defaultDuration
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if loan.Reference == "" {
			ref, err := NextReference(tx, SeqLoan, "LOAN")
			if err != nil {
				return err
			}
			loan.Reference = ref
		}
		return tx.Create(loan).Error
	})
	if err != nil {
		r.log.Error("Failed to create loan", zap.Uint("book_id", loan.BookID), zap.Error(err))
		return err
	}

	r.log.Info("Loan created",
		zap.String("reference", loan.Reference),
		zap.Uint("book_id", loan.BookID),
		zap.Uint("member_id", loan.MemberID),
	)
	return nil
}

// GetLoan retrieves a loan by ID
func (r *LoanRepository) GetLoan(ctx context.Context, id uint) (*db.Loan, error) {
	var loan db.Loan
	err := r.db.WithContext(ctx).First(&loan, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLoanNotFound
		}
		r.log.Error("Failed to get loan", zap.Uint("id", id), zap.Error(err))
		return nil, err
	}
	return &loan, nil
}

// ListLoans returns loans filtered by state and/or member, newest first
func (r *LoanRepository) ListLoans(ctx context.Context, state string, memberID uint) ([]*db.Loan, error) {
	query := r.db.WithContext(ctx).Model(&db.Loan{})
	if state != "" {
		query = query.Where("state = ?", state)
	}
	if memberID != 0 {
		query = query.Where("member_id = ?", memberID)
	}

	var loans []*db.Loan
	if err := query.Order("loan_date DESC").Find(&loans).Error; err != nil {
		r.log.Error("Failed to list loans", zap.Error(err))
		return nil, err
	}
	return loans, nil
}

// Confirm moves a draft loan to confirmed and marks the book borrowed.
func (r *LoanRepository) Confirm(ctx context.Context, id uint) (*db.Loan, error) {
	var loan *db.Loan
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		loan, err = lockLoan(tx, id)
		if err != nil {
			return err
		}
		if loan.State != db.LoanDraft {
			return ErrInvalidTransition
		}

		loan.State = db.LoanConfirmed
		if err := tx.Save(loan).Error; err != nil {
			return err
		}
		return tx.Model(&db.Book{}).Where("id = ?", loan.BookID).
			Update("status", db.BookBorrowed).Error
	})
	if err != nil {
		if !errors.Is(err, ErrInvalidTransition) && !errors.Is(err, ErrLoanNotFound) {
			r.log.Error("Failed to confirm loan", zap.Uint("id", id), zap.Error(err))
		}
		return nil, err
	}

	r.log.Info("Loan confirmed", zap.String("reference", loan.Reference))
	return loan, nil
}

// Return moves any non-terminal loan to returned, stamps the actual return
// date with today and recomputes the fine from it. The previously accrued
// overdue fine, if any, is overwritten by the returned-state rule.
func (r *LoanRepository) Return(ctx context.Context, id uint) (*db.Loan, error) {
	today := DateOf(r.now())

	var loan *db.Loan
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		loan, err = lockLoan(tx, id)
		if err != nil {
			return err
		}
		if loan.State == db.LoanReturned || loan.State == db.LoanLost {
			return ErrInvalidTransition
		}

		loan.State = db.LoanReturned
		loan.ActualReturnDate = &today
		loan.FineAmount = FineAmount(loan.State, loan.DueDate, loan.ActualReturnDate, today)
		if err := tx.Save(loan).Error; err != nil {
			return err
		}
		return tx.Model(&db.Book{}).Where("id = ?", loan.BookID).
			Update("status", db.BookAvailable).Error
	})
	if err != nil {
		if !errors.Is(err, ErrInvalidTransition) && !errors.Is(err, ErrLoanNotFound) {
			r.log.Error("Failed to return loan", zap.Uint("id", id), zap.Error(err))
		}
		return nil, err
	}

	r.log.Info("Loan returned",
		zap.String("reference", loan.Reference),
		zap.Float64("fine", loan.FineAmount),
	)
	return loan, nil
}

// MarkLost moves a loan to lost from any state and marks the book lost.
func (r *LoanRepository) MarkLost(ctx context.Context, id uint) (*db.Loan, error) {
	var loan *db.Loan
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		loan, err = lockLoan(tx, id)
		if err != nil {
			return err
		}

		loan.State = db.LoanLost
		loan.FineAmount = 0
		if err := tx.Save(loan).Error; err != nil {
			return err
		}
		return tx.Model(&db.Book{}).Where("id = ?", loan.BookID).
			Update("status", db.BookLost).Error
	})
	if err != nil {
		if !errors.Is(err, ErrLoanNotFound) {
			r.log.Error("Failed to mark loan lost", zap.Uint("id", id), zap.Error(err))
		}
		return nil, err
	}

	r.log.Info("Loan marked lost", zap.String("reference", loan.Reference))
	return loan, nil
}

// SweepOverdue transitions every confirmed loan whose due date is strictly
// before today to overdue, computing the fine as of today. Loans already
// returned, lost or overdue are never touched, so running the sweep twice
// has no further effect. The transitioned loans are returned so the caller
// can publish events.
func (r *LoanRepository) SweepOverdue(ctx context.Context) ([]*db.Loan, error) {
	today := DateOf(r.now())

	var swept []*db.Loan
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var candidates []*db.Loan
		if err := tx.Where("state = ? AND due_date < ?", db.LoanConfirmed, today).
			Find(&candidates).Error; err != nil {
			return err
		}

		for _, loan := range candidates {
			loan.State = db.LoanOverdue
			loan.FineAmount = FineAmount(loan.State, loan.DueDate, nil, today)
			if err := tx.Save(loan).Error; err != nil {
				return err
			}
			swept = append(swept, loan)
		}
		return nil
	})
	if err != nil {
		r.log.Error("Overdue sweep failed", zap.Error(err))
		return nil, err
	}

	if len(swept) > 0 {
		r.log.Info("Overdue sweep complete", zap.Int("transitioned", len(swept)))
	}
	return swept, nil
}

func lockLoan(tx *gorm.DB, id uint) (*db.Loan, error) {
	var loan db.Loan
	if err := tx.First(&loan, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLoanNotFound
		}
		return nil, err
	}
	return &loan, nil
}
