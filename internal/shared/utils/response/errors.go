package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"seatnext/internal/shared/apperr"
)

// StatusFor maps an error category to an HTTP status code
func StatusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindPolicy:
		return http.StatusConflict
	case apperr.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusServiceUnavailable
	}
}

// RespondError writes err using the standard envelope. Collaborator failures
// only ever expose a generic retry message.
func RespondError(c *gin.Context, err error) {
	code := StatusFor(err)
	if code >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	RespondJSON(c, "error", code, apperr.Message(err), nil, gin.H{"kind": apperr.KindOf(err).String()})
}
