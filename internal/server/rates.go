package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	catalogdomain "github.com/smallbiznis/aurum/internal/catalog/domain"
	repricingdomain "github.com/smallbiznis/aurum/internal/repricing/domain"
)

func (s *Server) PreviewRate(c *gin.Context) {
	var req repricingdomain.RateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.repricingSvc.Preview(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CommitRate(c *gin.Context) {
	var req repricingdomain.RateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.repricingSvc.Commit(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RateHistory(c *gin.Context) {
	var query struct {
		EntityType string `form:"entity_type"`
		EntityID   string `form:"entity_id"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.catalogSvc.RateHistory(
		c.Request.Context(),
		catalogdomain.EntityType(strings.ToLower(strings.TrimSpace(query.EntityType))),
		strings.TrimSpace(query.EntityID),
	)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
