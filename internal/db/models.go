package db

import (
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Book status values
const (
	BookAvailable = "available"
	BookBorrowed  = "borrowed"
	BookLost      = "lost"
)

// Book condition values
const (
	ConditionNew     = "new"
	ConditionGood    = "good"
	ConditionFair    = "fair"
	ConditionPoor    = "poor"
	ConditionDamaged = "damaged"
)

// Membership tiers
const (
	TierStandard = "standard"
	TierPremium  = "premium"
	TierStudent  = "student"
	TierSenior   = "senior"
)

// Loan lifecycle states
const (
	LoanDraft     = "draft"
	LoanConfirmed = "confirmed"
	LoanReturned  = "returned"
	LoanOverdue   = "overdue"
	LoanLost      = "lost"
)

// ErrInvalidISBN is returned when an ISBN does not normalize to 13 digits
var ErrInvalidISBN = errors.New("isbn must be 13 digits")

// Author represents a book author
type Author struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	Name      string     `gorm:"type:varchar(255);not null;index:idx_authors_name" json:"name"`
	BirthDate *time.Time `gorm:"type:date" json:"birth_date,omitempty"`
	Biography string     `gorm:"type:text" json:"biography,omitempty"`
	Active    bool       `gorm:"not null" json:"active"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`

	Books []Book `gorm:"foreignKey:AuthorID" json:"-"`
}

// TableName specifies the table name for Author model
func (Author) TableName() string {
	return "authors"
}

// Genre classifies books; name and code are both unique
type Genre struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"type:varchar(100);not null;uniqueIndex:idx_genres_name" json:"name"`
	Code        string    `gorm:"type:varchar(5);not null;uniqueIndex:idx_genres_code" json:"code"`
	Description string    `gorm:"type:text" json:"description,omitempty"`
	Active      bool      `gorm:"not null" json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	Books []Book `gorm:"foreignKey:GenreID" json:"-"`
}

// TableName specifies the table name for Genre model
func (Genre) TableName() string {
	return "genres"
}

// Book represents a book in the library catalog
type Book struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Title           string     `gorm:"type:varchar(255);not null;index:idx_books_title" json:"title"`
	ISBN            string     `gorm:"type:varchar(17);not null;index:idx_books_isbn" json:"isbn"`
	AuthorID        *uint      `gorm:"index:idx_books_author" json:"author_id,omitempty"`
	Author          *Author    `gorm:"foreignKey:AuthorID" json:"-"`
	GenreID         *uint      `gorm:"index:idx_books_genre" json:"genre_id,omitempty"`
	Genre           *Genre     `gorm:"foreignKey:GenreID" json:"-"`
	SecondaryGenres []Genre    `gorm:"many2many:book_secondary_genres" json:"-"`
	Status          string     `gorm:"type:varchar(20);not null;default:'available';index:idx_books_status" json:"status"`
	Condition       string     `gorm:"type:varchar(20);not null;default:'new'" json:"condition"`
	AcquisitionDate time.Time  `gorm:"type:date;not null;index:idx_books_acquired" json:"acquisition_date"`
	DatePublished   *time.Time `gorm:"type:date" json:"date_published,omitempty"`
	PriceCents      int64      `gorm:"not null;default:0" json:"price_cents"` // Price in smallest currency unit (cents)
	Pages           int        `gorm:"default:0" json:"pages,omitempty"`
	Publisher       string     `gorm:"type:varchar(255)" json:"publisher,omitempty"`
	Description     string     `gorm:"type:text" json:"description,omitempty"`
	Active          bool       `gorm:"not null;index:idx_books_active" json:"active"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// TableName specifies the table name for Book model
func (Book) TableName() string {
	return "books"
}

// NormalizeISBN strips hyphens and spaces from an ISBN.
func NormalizeISBN(isbn string) string {
	isbn = strings.ReplaceAll(isbn, "-", "")
	return strings.ReplaceAll(isbn, " ", "")
}

// ValidISBN reports whether the value normalizes to exactly 13 digits.
func ValidISBN(isbn string) bool {
	normalized := NormalizeISBN(isbn)
	if len(normalized) != 13 {
		return false
	}
	for _, r := range normalized {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// BeforeSave validates the ISBN on every write touching the row and
// defaults the acquisition date.
func (b *Book) BeforeSave(tx *gorm.DB) error {
	if b.ISBN != "" && !ValidISBN(b.ISBN) {
		return ErrInvalidISBN
	}
	if b.AcquisitionDate.IsZero() {
		b.AcquisitionDate = time.Now()
	}
	if b.Status == "" {
		b.Status = BookAvailable
	}
	if b.Condition == "" {
		b.Condition = ConditionNew
	}
	return nil
}

// Member represents a library member with a flattened contact
type Member struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	MemberNumber   string    `gorm:"type:varchar(20);not null;uniqueIndex:idx_members_number" json:"member_number"`
	Name           string    `gorm:"type:varchar(255);not null" json:"name"`
	Email          string    `gorm:"type:varchar(255)" json:"email,omitempty"`
	Phone          string    `gorm:"type:varchar(50)" json:"phone,omitempty"`
	Tier           string    `gorm:"type:varchar(20);not null;default:'standard'" json:"tier"`
	MembershipDate time.Time `gorm:"type:date;not null" json:"membership_date"`
	ExpiryDate     time.Time `gorm:"type:date;not null" json:"expiry_date"`
	Notes          string    `gorm:"type:text" json:"notes,omitempty"`
	Active         bool      `gorm:"not null;index:idx_members_active" json:"active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TableName specifies the table name for Member model
func (Member) TableName() string {
	return "members"
}

// membershipDays maps a tier to its validity period in days.
func membershipDays(tier string) int {
	switch tier {
	case TierPremium:
		return 730
	case TierStudent:
		return 180
	default: // standard and senior
		return 365
	}
}

// MaxLoanLimit returns how many books the member may have on loan at once.
func (m *Member) MaxLoanLimit() int {
	switch m.Tier {
	case TierPremium:
		return 10
	case TierStudent:
		return 5
	case TierSenior:
		return 7
	default:
		return 3
	}
}

// BeforeSave derives the expiry date from the tier and membership date,
// so any write touching either keeps the two consistent.
func (m *Member) BeforeSave(tx *gorm.DB) error {
	if m.Tier == "" {
		m.Tier = TierStandard
	}
	if m.MembershipDate.IsZero() {
		m.MembershipDate = time.Now()
	}
	m.ExpiryDate = m.MembershipDate.AddDate(0, 0, membershipDays(m.Tier))
	return nil
}

// Loan tracks one borrowing of a book by a member
type Loan struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	Reference        string     `gorm:"type:varchar(20);not null;uniqueIndex:idx_loans_reference" json:"reference"`
	BookID           uint       `gorm:"not null;index:idx_loans_book" json:"book_id"`
	Book             *Book      `gorm:"foreignKey:BookID" json:"-"`
	MemberID         uint       `gorm:"not null;index:idx_loans_member" json:"member_id"`
	Member           *Member    `gorm:"foreignKey:MemberID" json:"-"`
	LoanDate         time.Time  `gorm:"type:date;not null;index:idx_loans_loan_date" json:"loan_date"`
	DurationDays     int        `gorm:"not null;default:14" json:"duration_days"`
	DueDate          time.Time  `gorm:"type:date;not null;index:idx_loans_due_date" json:"due_date"`
	ActualReturnDate *time.Time `gorm:"type:date" json:"actual_return_date,omitempty"`
	State            string     `gorm:"type:varchar(20);not null;default:'draft';index:idx_loans_state" json:"state"`
	// FineAmount is always recomputed from the current state and dates;
	// a transition overwrites any previously accrued figure.
	FineAmount float64   `gorm:"not null;default:0" json:"fine_amount"`
	Notes      string    `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName specifies the table name for Loan model
func (Loan) TableName() string {
	return "loans"
}

// BeforeSave keeps the due date derived from the loan date and duration.
func (l *Loan) BeforeSave(tx *gorm.DB) error {
	if l.LoanDate.IsZero() {
		l.LoanDate = time.Now()
	}
	if l.DurationDays <= 0 {
		l.DurationDays = 14
	}
	if l.State == "" {
		l.State = LoanDraft
	}
	l.DueDate = l.LoanDate.AddDate(0, 0, l.DurationDays)
	return nil
}

// Dashboard is the single persisted aggregate snapshot. SingletonKey is a
// constant guarded by a unique index so concurrent first access cannot
// create two rows.
type Dashboard struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	SingletonKey string    `gorm:"type:varchar(20);not null;uniqueIndex:idx_dashboards_singleton" json:"-"`
	Name         string    `gorm:"type:varchar(100);not null;default:'Library Dashboard'" json:"name"`
	BookCount    int64     `gorm:"not null;default:0" json:"book_count"`
	LoanCount    int64     `gorm:"not null;default:0" json:"loan_count"`
	OverdueCount int64     `gorm:"not null;default:0" json:"overdue_count"`
	MemberCount  int64     `gorm:"not null;default:0" json:"member_count"`
	GraphData    string    `gorm:"type:text" json:"graph_data"`
	ComputedAt   time.Time `json:"computed_at"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName specifies the table name for Dashboard model
func (Dashboard) TableName() string {
	return "dashboards"
}

// Sequence backs the monotonic reference generator
type Sequence struct {
	Name  string `gorm:"primaryKey;type:varchar(50)"`
	Value int64  `gorm:"not null;default:0"`
}

// TableName specifies the table name for Sequence model
func (Sequence) TableName() string {
	return "sequences"
}
