package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/shelfmark/library/internal/db"
)

type createMemberRequest struct {
	Name           string `json:"name" binding:"required"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
	Tier           string `json:"tier"`
	MembershipDate string `json:"membership_date"`
	Notes          string `json:"notes"`
}

func (s *Server) handleCreateMember(c *gin.Context) {
	var req createMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	member := &db.Member{
		Name:   req.Name,
		Email:  req.Email,
		Phone:  req.Phone,
		Tier:   req.Tier,
		Notes:  req.Notes,
		Active: true,
	}
	if req.MembershipDate != "" {
		joined, err := time.Parse(dateLayout, req.MembershipDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "membership_date must be YYYY-MM-DD"})
			return
		}
		member.MembershipDate = joined
	}

	if err := s.members.CreateMember(c.Request.Context(), member); err != nil {
		s.respondRepoError(c, err)
		return
	}
	c.JSON(http.StatusCreated, memberResponse(member, 0, 0))
}

func (s *Server) handleGetMember(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	member, err := s.members.GetMember(c.Request.Context(), id)
	if err != nil {
		s.respondRepoError(c, err)
		return
	}

	loans, overdue, err := s.members.LoanCounts(c.Request.Context(), id)
	if err != nil {
		s.respondRepoError(c, err)
		return
	}
	c.JSON(http.StatusOK, memberResponse(member, loans, overdue))
}

func (s *Server) handleListMembers(c *gin.Context) {
	members, err := s.members.ListMembers(c.Request.Context(), c.Query("active") == "true")
	if err != nil {
		s.respondRepoError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": members, "total": len(members)})
}

type updateMemberRequest struct {
	Name           *string `json:"name"`
	Email          *string `json:"email"`
	Phone          *string `json:"phone"`
	Tier           *string `json:"tier"`
	MembershipDate *string `json:"membership_date"`
	Active         *bool   `json:"active"`
}

func (s *Server) handleUpdateMember(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req updateMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var membershipDate *time.Time
	if req.MembershipDate != nil {
		joined, parseErr := time.Parse(dateLayout, *req.MembershipDate)
		if parseErr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "membership_date must be YYYY-MM-DD"})
			return
		}
		membershipDate = &joined
	}

	member, err := s.members.UpdateMember(c.Request.Context(), id, func(m *db.Member) {
		if req.Name != nil {
			m.Name = *req.Name
		}
		if req.Email != nil {
			m.Email = *req.Email
		}
		if req.Phone != nil {
			m.Phone = *req.Phone
		}
		if req.Tier != nil {
			m.Tier = *req.Tier
		}
		if membershipDate != nil {
			m.MembershipDate = *membershipDate
		}
		if req.Active != nil {
			m.Active = *req.Active
		}
	})
	if err != nil {
		s.respondRepoError(c, err)
		return
	}
	c.JSON(http.StatusOK, memberResponse(member, 0, 0))
}

func memberResponse(member *db.Member, loans, overdue int64) gin.H {
	return gin.H{
		"member":         member,
		"max_loan_limit": member.MaxLoanLimit(),
		"loan_count":     loans,
		"overdue_count":  overdue,
	}
}
