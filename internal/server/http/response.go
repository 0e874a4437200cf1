package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	fserrors "fission/internal/errors"
	"fission/internal/notes"
	"fission/internal/store"
)

type apiErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

var errInvalidID = errors.New("invalid id")

func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, notes.ErrTitleRequired),
		errors.Is(err, notes.ErrContentRequired),
		errors.Is(err, errInvalidID):
		return http.StatusBadRequest
	case errors.Is(err, notes.ErrNoProvisioner):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(c *gin.Context, err error) {
	status := statusFor(err)
	resp := apiErrorResponse{Error: err.Error()}
	if status == http.StatusInternalServerError {
		s.logger.Error("HTTP %d - %s: %v", status, c.FullPath(), err)
		resp = apiErrorResponse{Error: "internal error", Details: fserrors.FormatForUser(err)}
	}
	c.AbortWithStatusJSON(status, resp)
}

func (s *Server) writeBadRequest(c *gin.Context, message string, err error) {
	resp := apiErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, resp)
}

func pathID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errInvalidID
	}
	return id, nil
}
