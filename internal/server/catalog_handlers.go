package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/shelfmark/library/internal/db"
	"github.com/shelfmark/library/internal/repo"
)

type createBookRequest struct {
	Title           string  `json:"title" binding:"required"`
	ISBN            string  `json:"isbn" binding:"required"`
	AuthorID        *uint   `json:"author_id"`
	GenreID         *uint   `json:"genre_id"`
	Condition       string  `json:"condition"`
	AcquisitionDate string  `json:"acquisition_date"`
	DatePublished   string  `json:"date_published"`
	PriceCents      int64   `json:"price_cents"`
	Pages           int     `json:"pages"`
	Publisher       string  `json:"publisher"`
	Description     string  `json:"description"`
	SecondaryGenres []uint  `json:"secondary_genre_ids"`
}

func (s *Server) handleCreateBook(c *gin.Context) {
	var req createBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	book := &db.Book{
		Title:       req.Title,
		ISBN:        req.ISBN,
		AuthorID:    req.AuthorID,
		GenreID:     req.GenreID,
		Condition:   req.Condition,
		PriceCents:  req.PriceCents,
		Pages:       req.Pages,
		Publisher:   req.Publisher,
		Description: req.Description,
		Active:      true,
	}
	if req.AcquisitionDate != "" {
		acquired, err := time.Parse(dateLayout, req.AcquisitionDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "acquisition_date must be YYYY-MM-DD"})
			return
		}
		book.AcquisitionDate = acquired
	}
	if req.DatePublished != "" {
		published, err := time.Parse(dateLayout, req.DatePublished)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date_published must be YYYY-MM-DD"})
			return
		}
		book.DatePublished = &published
	}
	for _, genreID := range req.SecondaryGenres {
		genre, err := s.catalog.GetGenre(c.Request.Context(), genreID)
		if err != nil {
			s.respondRepoError(c, err)
			return
		}
		book.SecondaryGenres = append(book.SecondaryGenres, *genre)
	}

	if err := s.catalog.CreateBook(c.Request.Context(), book); err != nil {
		s.respondRepoError(c, err)
		return
	}
	c.JSON(http.StatusCreated, book)
}

func (s *Server) handleGetBook(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	book, err := s.catalog.GetBook(c.Request.Context(), id)
	if err != nil {
		s.respondRepoError(c, err)
		return
	}
	c.JSON(http.StatusOK, book)
}

func (s *Server) handleListBooks(c *gin.Context) {
	page := queryInt(c, "page", 1)
	pageSize := queryInt(c, "page_size", 20)

	filter := repo.BookFilter{
		Status:     c.Query("status"),
		ActiveOnly: c.Query("active") == "true",
	}
	if raw := c.Query("author_id"); raw != "" {
		parsed, _ := strconv.ParseUint(raw, 10, 32)
		filter.AuthorID = uint(parsed)
	}
	if raw := c.Query("genre_id"); raw != "" {
		parsed, _ := strconv.ParseUint(raw, 10, 32)
		filter.GenreID = uint(parsed)
	}

	books, total, err := s.catalog.ListBooks(c.Request.Context(), page, pageSize, filter)
	if err != nil {
		s.respondRepoError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"books": books, "total": total, "page": page, "page_size": pageSize})
}

type updateBookRequest struct {
	Title      *string `json:"title"`
	ISBN       *string `json:"isbn"`
	AuthorID   *uint   `json:"author_id"`
	GenreID    *uint   `json:"genre_id"`
	Status     *string `json:"status"`
	Condition  *string `json:"condition"`
	PriceCents *int64  `json:"price_cents"`
	Pages      *int    `json:"pages"`
	Publisher  *string `json:"publisher"`
}

func (s *Server) handleUpdateBook(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req updateBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	book, err := s.catalog.UpdateBook(c.Request.Context(), id, func(b *db.Book) {
		if req.Title != nil {
			b.Title = *req.Title
		}
		if req.ISBN != nil {
			b.ISBN = *req.ISBN
		}
		if req.AuthorID != nil {
			b.AuthorID = req.AuthorID
		}
		if req.GenreID != nil {
			b.GenreID = req.GenreID
		}
		if req.Status != nil {
			b.Status = *req.Status
		}
		if req.Condition != nil {
			b.Condition = *req.Condition
		}
		if req.PriceCents != nil {
			b.PriceCents = *req.PriceCents
		}
		if req.Pages != nil {
			b.Pages = *req.Pages
		}
		if req.Publisher != nil {
			b.Publisher = *req.Publisher
		}
	})
	if err != nil {
		s.respondRepoError(c, err)
		return
	}
	c.JSON(http.StatusOK, book)
}

func (s *Server) handleDeleteBook(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := s.catalog.DeleteBook(c.Request.Context(), id); err != nil {
		s.respondRepoError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type createAuthorRequest struct {
	Name      string `json:"name" binding:"required"`
	BirthDate string `json:"birth_date"`
	Biography string `json:"biography"`
}

func (s *Server) handleCreateAuthor(c *gin.Context) {
	var req createAuthorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	author := &db.Author{
		Name:      req.Name,
		Biography: req.Biography,
		Active:    true,
	}
	if req.BirthDate != "" {
		born, err := time.Parse(dateLayout, req.BirthDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "birth_date must be YYYY-MM-DD"})
			return
		}
		author.BirthDate = &born
	}

	if err := s.catalog.CreateAuthor(c.Request.Context(), author); err != nil {
		s.respondRepoError(c, err)
		return
	}
	c.JSON(http.StatusCreated, author)
}

func (s *Server) handleGetAuthor(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	author, err := s.catalog.GetAuthor(c.Request.Context(), id)
	if err != nil {
		s.respondRepoError(c, err)
		return
	}

	bookCount, err := s.catalog.AuthorBookCount(c.Request.Context(), id)
	if err != nil {
		s.respondRepoError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"author": author, "book_count": bookCount})
}

func (s *Server) handleListAuthors(c *gin.Context) {
	authors, err := s.catalog.ListAuthors(c.Request.Context())
	if err != nil {
		s.respondRepoError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"authors": authors})
}

type createGenreRequest struct {
	Name        string `json:"name" binding:"required"`
	Code        string `json:"code" binding:"required,max=5"`
	Description string `json:"description"`
}

func (s *Server) handleCreateGenre(c *gin.Context) {
	var req createGenreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	genre := &db.Genre{
		Name:        req.Name,
		Code:        req.Code,
		Description: req.Description,
		Active:      true,
	}
	if err := s.catalog.CreateGenre(c.Request.Context(), genre); err != nil {
		s.respondRepoError(c, err)
		return
	}
	c.JSON(http.StatusCreated, genre)
}

func (s *Server) handleListGenres(c *gin.Context) {
	genres, err := s.catalog.ListGenres(c.Request.Context())
	if err != nil {
		s.respondRepoError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"genres": genres})
}

func queryInt(c *gin.Context, key string, fallback int) int {
	if raw := c.Query(key); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}
