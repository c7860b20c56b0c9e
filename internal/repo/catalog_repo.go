package repo

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/shelfmark/library/internal/db"
)

var (
	// ErrBookNotFound is returned when a book is not found
	ErrBookNotFound = errors.New("book not found")

	// ErrAuthorNotFound is returned when an author is not found
	ErrAuthorNotFound = errors.New("author not found")

	// ErrGenreNotFound is returned when a genre is not found
	ErrGenreNotFound = errors.New("genre not found")

	// ErrGenreExists is returned when a genre name or code is already taken
	ErrGenreExists = errors.New("genre name and code must be unique")
)

// BookFilter narrows ListBooks results. Zero values mean "no constraint".
type BookFilter struct {
	AuthorID   uint
	GenreID    uint
	Status     string
	ActiveOnly bool
}

// CatalogRepository handles authors, genres and books
type CatalogRepository struct {
	db  *db.DB
	log *zap.Logger
}

// NewCatalogRepository creates a new catalog repository
func NewCatalogRepository(database *db.DB, logger *zap.Logger) *CatalogRepository {
	return &CatalogRepository{
		db:  database,
		log: logger,
	}
}

// CreateBook creates a new book. The ISBN is normalized before the write and
// validated again by the model hook, so a malformed value never persists.
func (r *CatalogRepository) CreateBook(ctx context.Context, book *db.Book) error {
	if !db.ValidISBN(book.ISBN) {
		return db.ErrInvalidISBN
	}
	book.ISBN = db.NormalizeISBN(book.ISBN)

	if err := r.db.WithContext(ctx).Create(book).Error; err != nil {
		r.log.Error("Failed to create book", zap.String("title", book.Title), zap.Error(err))
		return err
	}

	r.log.Info("Book created", zap.Uint("id", book.ID), zap.String("title", book.Title))
	return nil
}

// GetBook retrieves a book by ID
func (r *CatalogRepository) GetBook(ctx context.Context, id uint) (*db.Book, error) {
	var book db.Book
	err := r.db.WithContext(ctx).First(&book, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBookNotFound
		}
		r.log.Error("Failed to get book", zap.Uint("id", id), zap.Error(err))
		return nil, err
	}
	return &book, nil
}

// ListBooks returns a paginated list of books with optional filters
func (r *CatalogRepository) ListBooks(ctx context.Context, page, pageSize int, filter BookFilter) ([]*db.Book, int64, error) {
	query := r.db.WithContext(ctx).Model(&db.Book{})

	if filter.AuthorID != 0 {
		query = query.Where("author_id = ?", filter.AuthorID)
	}
	if filter.GenreID != 0 {
		query = query.Where("genre_id = ?", filter.GenreID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.ActiveOnly {
		query = query.Where("active = ?", true)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		r.log.Error("Failed to count books", zap.Error(err))
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	var books []*db.Book
	if err := query.Offset(offset).Limit(pageSize).Order("created_at DESC").Find(&books).Error; err != nil {
		r.log.Error("Failed to list books", zap.Error(err))
		return nil, 0, err
	}

	return books, total, nil
}

// UpdateBook applies field changes through a read-modify-save cycle so the
// ISBN hook fires on every write touching the row.
func (r *CatalogRepository) UpdateBook(ctx context.Context, id uint, apply func(*db.Book)) (*db.Book, error) {
	book, err := r.GetBook(ctx, id)
	if err != nil {
		return nil, err
	}

	apply(book)
	book.ISBN = db.NormalizeISBN(book.ISBN)

	if err := r.db.WithContext(ctx).Save(book).Error; err != nil {
		r.log.Error("Failed to update book", zap.Uint("id", id), zap.Error(err))
		return nil, err
	}

	r.log.Info("Book updated", zap.Uint("id", id))
	return book, nil
}

// SetBookStatus moves a book between available, borrowed and lost.
func (r *CatalogRepository) SetBookStatus(ctx context.Context, id uint, status string) error {
	result := r.db.WithContext(ctx).Model(&db.Book{}).Where("id = ?", id).Update("status", status)
	if result.Error != nil {
		r.log.Error("Failed to set book status", zap.Uint("id", id), zap.String("status", status), zap.Error(result.Error))
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrBookNotFound
	}
	return nil
}

// DeleteBook soft deletes a book by setting active to false
func (r *CatalogRepository) DeleteBook(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Model(&db.Book{}).Where("id = ?", id).Update("active", false)
	if result.Error != nil {
		r.log.Error("Failed to delete book", zap.Uint("id", id), zap.Error(result.Error))
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrBookNotFound
	}
	r.log.Info("Book deleted", zap.Uint("id", id))
	return nil
}

// CreateAuthor creates a new author
func (r *CatalogRepository) CreateAuthor(ctx context.Context, author *db.Author) error {
	if err := r.db.WithContext(ctx).Create(author).Error; err != nil {
		r.log.Error("Failed to create author", zap.String("name", author.Name), zap.Error(err))
		return err
	}
	return nil
}

// GetAuthor retrieves an author by ID
func (r *CatalogRepository) GetAuthor(ctx context.Context, id uint) (*db.Author, error) {
	var author db.Author
	err := r.db.WithContext(ctx).First(&author, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAuthorNotFound
		}
		r.log.Error("Failed to get author", zap.Uint("id", id), zap.Error(err))
		return nil, err
	}
	return &author, nil
}

// ListAuthors returns all active authors ordered by name
func (r *CatalogRepository) ListAuthors(ctx context.Context) ([]*db.Author, error) {
	var authors []*db.Author
	if err := r.db.WithContext(ctx).Where("active = ?", true).Order("name ASC").Find(&authors).Error; err != nil {
		r.log.Error("Failed to list authors", zap.Error(err))
		return nil, err
	}
	return authors, nil
}

// AuthorBookCount counts the books referencing an author
func (r *CatalogRepository) AuthorBookCount(ctx context.Context, authorID uint) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&db.Book{}).Where("author_id = ?", authorID).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// CreateGenre creates a new genre; duplicate names or codes are rejected
// by the unique indexes.
func (r *CatalogRepository) CreateGenre(ctx context.Context, genre *db.Genre) error {
	var existing int64
	err := r.db.WithContext(ctx).Model(&db.Genre{}).
		Where("name = ? OR code = ?", genre.Name, genre.Code).
		Count(&existing).Error
	if err != nil {
		r.log.Error("Failed to check genre uniqueness", zap.Error(err))
		return err
	}
	if existing > 0 {
		return ErrGenreExists
	}

	if err := r.db.WithContext(ctx).Create(genre).Error; err != nil {
		r.log.Error("Failed to create genre", zap.String("name", genre.Name), zap.Error(err))
		return err
	}
	return nil
}

// GetGenre retrieves a genre by ID
func (r *CatalogRepository) GetGenre(ctx context.Context, id uint) (*db.Genre, error) {
	var genre db.Genre
	err := r.db.WithContext(ctx).First(&genre, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrGenreNotFound
		}
		r.log.Error("Failed to get genre", zap.Uint("id", id), zap.Error(err))
		return nil, err
	}
	return &genre, nil
}

// ListGenres returns all active genres ordered by name
func (r *CatalogRepository) ListGenres(ctx context.Context) ([]*db.Genre, error) {
	var genres []*db.Genre
	if err := r.db.WithContext(ctx).Where("active = ?", true).Order("name ASC").Find(&genres).Error; err != nil {
		r.log.Error("Failed to list genres", zap.Error(err))
		return nil, err
	}
	return genres, nil
}
