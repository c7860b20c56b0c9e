package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/shelfmark/library/internal/db"
	"github.com/shelfmark/library/internal/events"
	"github.com/shelfmark/library/internal/metrics"
	"github.com/shelfmark/library/internal/repo"
)

const dateLayout = "2006-01-02"

type createLoanRequest struct {
	BookID       uint   `json:"book_id" binding:"required"`
	MemberID     uint   `json:"member_id" binding:"required"`
	Reference    string `json:"reference"`
	LoanDate     string `json:"loan_date"`
	DurationDays int    `json:"duration_days"`
	Notes        string `json:"notes"`
}

func (s *Server) handleCreateLoan(c *gin.Context) {
	var req createLoanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	loan := &db.Loan{
		BookID:       req.BookID,
		MemberID:     req.MemberID,
		Reference:    req.Reference,
		DurationDays: req.DurationDays,
		Notes:        req.Notes,
	}
	if req.LoanDate != "" {
		loanDate, err := time.Parse(dateLayout, req.LoanDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "loan_date must be YYYY-MM-DD"})
			return
		}
		loan.LoanDate = loanDate
	}

	// The book and member must exist before a draft is opened.
	if _, err := s.catalog.GetBook(c.Request.Context(), req.BookID); err != nil {
		s.respondRepoError(c, err)
		return
	}
	if _, err := s.members.GetMember(c.Request.Context(), req.MemberID); err != nil {
		s.respondRepoError(c, err)
		return
	}

	if err := s.loans.CreateLoan(c.Request.Context(), loan); err != nil {
		s.respondRepoError(c, err)
		return
	}

	c.JSON(http.StatusCreated, loan)
}

func (s *Server) handleGetLoan(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	loan, err := s.loans.GetLoan(c.Request.Context(), id)
	if err != nil {
		s.respondRepoError(c, err)
		return
	}
	c.JSON(http.StatusOK, loan)
}

func (s *Server) handleListLoans(c *gin.Context) {
	var memberID uint
	if raw := c.Query("member_id"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "member_id must be an integer"})
			return
		}
		memberID = uint(parsed)
	}

	loans, err := s.loans.ListLoans(c.Request.Context(), c.Query("state"), memberID)
	if err != nil {
		s.respondRepoError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"loans": loans, "total": len(loans)})
}

func (s *Server) handleConfirmLoan(c *gin.Context) {
	s.transitionLoan(c, events.EventTypeLoanConfirmed, s.loans.Confirm)
}

func (s *Server) handleReturnLoan(c *gin.Context) {
	s.transitionLoan(c, events.EventTypeLoanReturned, s.loans.Return)
}

func (s *Server) handleMarkLoanLost(c *gin.Context) {
	s.transitionLoan(c, events.EventTypeLoanLost, s.loans.MarkLost)
}

func (s *Server) transitionLoan(
	c *gin.Context,
	eventType string,
	transition func(ctx context.Context, id uint) (*db.Loan, error),
) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	loan, err := transition(c.Request.Context(), id)
	if err != nil {
		s.respondRepoError(c, err)
		return
	}

	s.publishLoanEvent(c, eventType, loan)
	c.JSON(http.StatusOK, loan)
}

// handleSweepOverdue is the externally scheduled trigger for the daily
// overdue check. Safe to call repeatedly.
func (s *Server) handleSweepOverdue(c *gin.Context) {
	swept, err := s.loans.SweepOverdue(c.Request.Context())
	if err != nil {
		s.respondRepoError(c, err)
		return
	}

	metrics.LoansSweptOverdue.Add(float64(len(swept)))
	for _, loan := range swept {
		s.publishLoanEvent(c, events.EventTypeLoanOverdue, loan)
	}

	c.JSON(http.StatusOK, gin.H{"transitioned": len(swept), "loans": swept})
}

// publishLoanEvent is fire-and-forget: the broker being down must not fail
// the lifecycle transition that already committed.
func (s *Server) publishLoanEvent(c *gin.Context, eventType string, loan *db.Loan) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishLoanEvent(c.Request.Context(), eventType, loan); err != nil {
		s.log.Warn("Failed to publish loan event",
			zap.String("event_type", eventType),
			zap.String("reference", loan.Reference),
			zap.Error(err),
		)
		return
	}
	metrics.EventsPublished.WithLabelValues(eventType).Inc()
}

func pathID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be an integer"})
		return 0, false
	}
	return uint(id), true
}

// respondRepoError maps repo sentinel errors to HTTP status codes.
func (s *Server) respondRepoError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repo.ErrBookNotFound),
		errors.Is(err, repo.ErrAuthorNotFound),
		errors.Is(err, repo.ErrGenreNotFound),
		errors.Is(err, repo.ErrMemberNotFound),
		errors.Is(err, repo.ErrLoanNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, repo.ErrInvalidTransition),
		errors.Is(err, repo.ErrGenreExists),
		errors.Is(err, db.ErrInvalidISBN):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		s.log.Error("Internal error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
