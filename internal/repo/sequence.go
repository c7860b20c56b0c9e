package repo

import (
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/shelfmark/library/internal/db"
)

// Sequence names scoped to entity types.
const (
	SeqLoan   = "library.loan"
	SeqMember = "library.member"
)

// NextSequence returns the next value of a named monotonic sequence. The
// increment happens inside the caller's transaction, so the value is only
// consumed if the surrounding write commits. Values are never reused.
func NextSequence(tx *gorm.DB, name string) (int64, error) {
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&db.Sequence{Name: name, Value: 0}).Error; err != nil {
		return 0, fmt.Errorf("failed to ensure sequence %s: %w", name, err)
	}

	if err := tx.Model(&db.Sequence{}).Where("name = ?", name).
		Update("value", gorm.Expr("value + 1")).Error; err != nil {
		return 0, fmt.Errorf("failed to increment sequence %s: %w", name, err)
	}

	var seq db.Sequence
	if err := tx.Where("name = ?", name).First(&seq).Error; err != nil {
		return 0, fmt.Errorf("failed to read sequence %s: %w", name, err)
	}

	return seq.Value, nil
}

// NextReference formats the next sequence value as PREFIX-00042.
func NextReference(tx *gorm.DB, name, prefix string) (string, error) {
	value, err := NextSequence(tx, name)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%05d", prefix, value), nil
}
