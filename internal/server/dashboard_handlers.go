package server

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/shelfmark/library/internal/db"
	"github.com/shelfmark/library/internal/metrics"
)

// envelope is the chart renderer's response contract. The transport call
// itself never fails: errors come back as success=false with empty data.
type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
	Message string      `json:"message"`
}

func (s *Server) handleDashboardData(c *gin.Context) {
	dash, err := s.aggregator.GetOrCreate(c.Request.Context())
	if err != nil {
		s.log.Error("Error loading dashboard data", zap.Error(err))
		c.JSON(http.StatusOK, envelope{
			Success: false,
			Data:    gin.H{},
			Message: "Error loading data: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, envelope{
		Success: true,
		Data:    graphData(dash),
		Message: "Data loaded successfully",
	})
}

func (s *Server) handleDashboardRefresh(c *gin.Context) {
	dash, err := s.aggregator.Refresh(c.Request.Context())
	if err != nil {
		metrics.DashboardRefreshes.WithLabelValues("error").Inc()
		s.log.Error("Error refreshing dashboard data", zap.Error(err))
		c.JSON(http.StatusOK, envelope{
			Success: false,
			Data:    gin.H{},
			Message: "Error refreshing data: " + err.Error(),
		})
		return
	}

	metrics.DashboardRefreshes.WithLabelValues("ok").Inc()
	c.JSON(http.StatusOK, envelope{
		Success: true,
		Data:    graphData(dash),
		Message: "Data refreshed successfully",
	})
}

// graphData deserializes the stored payload so the envelope carries JSON
// structure rather than a quoted string.
func graphData(dash *db.Dashboard) interface{} {
	if dash.GraphData == "" {
		return gin.H{}
	}
	var data map[string]interface{}
	if err := json.Unmarshal([]byte(dash.GraphData), &data); err != nil {
		return gin.H{}
	}
	return data
}
