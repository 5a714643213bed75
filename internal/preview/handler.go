package preview

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	v1 "github.com/aevon-lab/compresolver/internal/api/v1"
	httperr "github.com/aevon-lab/compresolver/internal/core/errors"
	"github.com/aevon-lab/compresolver/internal/core/storage"
	"github.com/aevon-lab/compresolver/internal/reconcile"
)

// RegisterRoutes registers the preview API routes on the given router.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.GET("/v1/computations/:id/resolution", s.HandleResolution)
	r.GET("/v1/groups/:id/members", s.HandleGroupMembers)
	r.POST("/v1/context/reload", s.HandleReload)
}

type idURI struct {
	ID int64 `uri:"id" binding:"required,min=1"`
}

// HandleResolution handles GET /v1/computations/:id/resolution
func (s *Service) HandleResolution(c *gin.Context) {
	var uri idURI
	if err := c.ShouldBindUri(&uri); err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidIDError,
			Message:   "Invalid computation ID",
			Details:   err.Error(),
		})
		return
	}

	out, lines, err := s.Resolve(c.Request.Context(), uri.ID)
	if err != nil {
		s.storeError(c, "Failed to resolve computation", err)
		return
	}

	resp := v1.NewResolutionResponse(out, lines)
	if out.State == reconcile.StateSkipped {
		switch out.Reason {
		case reconcile.ReasonNoSuchComputation:
			c.JSON(http.StatusNotFound, httperr.ErrorResponse{
				ErrorType: httperr.HttpComputationNotFound,
				Message:   "Computation not found",
				Details:   resp,
			})
			return
		case reconcile.ReasonNotTemplate:
			c.JSON(http.StatusUnprocessableEntity, httperr.ErrorResponse{
				ErrorType: httperr.HttpNotGroupComputation,
				Message:   "Computation is not a group computation",
				Details:   resp,
			})
			return
		case reconcile.ReasonUnknownGroup:
			c.JSON(http.StatusUnprocessableEntity, httperr.ErrorResponse{
				ErrorType: httperr.HttpGroupNotFoundError,
				Message:   "Computation references an unknown group",
				Details:   resp,
			})
			return
		}
	}

	c.JSON(http.StatusOK, resp)
}

// HandleGroupMembers handles GET /v1/groups/:id/members
func (s *Service) HandleGroupMembers(c *gin.Context) {
	var uri idURI
	if err := c.ShouldBindUri(&uri); err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidIDError,
			Message:   "Invalid group ID",
			Details:   err.Error(),
		})
		return
	}

	g, members, err := s.GroupMembers(c.Request.Context(), uri.ID)
	if errors.Is(err, ErrUnknownGroup) {
		c.JSON(http.StatusNotFound, httperr.ErrorResponse{
			ErrorType: httperr.HttpGroupNotFoundError,
			Message:   "Group not found",
		})
		return
	}
	if err != nil {
		s.storeError(c, "Failed to expand group", err)
		return
	}

	resp := v1.GroupMembersResponse{
		GroupID:   g.ID,
		GroupName: g.Name,
		GroupType: g.Type,
		Members:   make([]string, 0, len(members)),
	}
	for _, m := range members {
		resp.Members = append(resp.Members, m.String())
	}
	c.JSON(http.StatusOK, resp)
}

// HandleReload handles POST /v1/context/reload
func (s *Service) HandleReload(c *gin.Context) {
	if err := s.Reload(c.Request.Context()); err != nil {
		s.storeError(c, "Failed to reload resolution context", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reloaded"})
}

func (s *Service) storeError(c *gin.Context, msg string, err error) {
	s.logger.Error("[Preview] "+msg, "error", err)
	if errors.Is(err, storage.ErrStoreUnavailable) {
		c.JSON(http.StatusServiceUnavailable, httperr.ErrorResponse{
			ErrorType: httperr.HttpStoreUnavailableError,
			Message:   msg,
			Details:   err.Error(),
		})
		return
	}
	c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
		ErrorType: httperr.HttpInternalError,
		Message:   msg,
		Details:   err.Error(),
	})
}
