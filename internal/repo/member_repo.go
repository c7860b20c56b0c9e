package repo

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/shelfmark/library/internal/db"
)

// ErrMemberNotFound is returned when a member is not found
var ErrMemberNotFound = errors.New("member not found")

// MemberRepository handles library members
type MemberRepository struct {
	db  *db.DB
	log *zap.Logger
}

// NewMemberRepository creates a new member repository
func NewMemberRepository(database *db.DB, logger *zap.Logger) *MemberRepository {
	return &MemberRepository{
		db:  database,
		log: logger,
	}
}

// CreateMember creates a member, assigning a member number from the shared
// sequence when none is supplied. Number allocation and insert share one
// transaction.
func (r *MemberRepository) CreateMember(ctx context.Context, member *db.Member) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if member.MemberNumber == "" {
			number, err := NextReference(tx, SeqMember, "MEM")
			if err != nil {
				return err
			}
			member.MemberNumber = number
		}
		return tx.Create(member).Error
	})
	if err != nil {
		r.log.Error("Failed to create member", zap.String("name", member.Name), zap.Error(err))
		return err
	}

	r.log.Info("Member created",
		zap.Uint("id", member.ID),
		zap.String("member_number", member.MemberNumber),
		zap.String("tier", member.Tier),
	)
	return nil
}

// GetMember retrieves a member by ID
func (r *MemberRepository) GetMember(ctx context.Context, id uint) (*db.Member, error) {
	var member db.Member
	err := r.db.WithContext(ctx).First(&member, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMemberNotFound
		}
		r.log.Error("Failed to get member", zap.Uint("id", id), zap.Error(err))
		return nil, err
	}
	return &member, nil
}

// ListMembers returns all members, optionally only active ones
func (r *MemberRepository) ListMembers(ctx context.Context, activeOnly bool) ([]*db.Member, error) {
	query := r.db.WithContext(ctx).Model(&db.Member{})
	if activeOnly {
		query = query.Where("active = ?", true)
	}

	var members []*db.Member
	if err := query.Order("member_number ASC").Find(&members).Error; err != nil {
		r.log.Error("Failed to list members", zap.Error(err))
		return nil, err
	}
	return members, nil
}

// UpdateMember applies changes through read-modify-save so the expiry date
// stays derived from tier and membership date.
func (r *MemberRepository) UpdateMember(ctx context.Context, id uint, apply func(*db.Member)) (*db.Member, error) {
	member, err := r.GetMember(ctx, id)
	if err != nil {
		return nil, err
	}

	apply(member)

	if err := r.db.WithContext(ctx).Save(member).Error; err != nil {
		r.log.Error("Failed to update member", zap.Uint("id", id), zap.Error(err))
		return nil, err
	}
	return member, nil
}

// LoanCounts returns the member's total and overdue loan counts
func (r *MemberRepository) LoanCounts(ctx context.Context, memberID uint) (total, overdue int64, err error) {
	if err := r.db.WithContext(ctx).Model(&db.Loan{}).Where("member_id = ?", memberID).Count(&total).Error; err != nil {
		return 0, 0, err
	}

	if err := r.db.WithContext(ctx).Model(&db.Loan{}).
		Where("member_id = ? AND state = ?", memberID, db.LoanOverdue).
		Count(&overdue).Error; err != nil {
		return 0, 0, err
	}

	return total, overdue, nil
}
