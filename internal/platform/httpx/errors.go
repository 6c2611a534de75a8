package httpx

import (
	"errors"
	"net/http"

	"github.com/authcore-io/authcore/internal/authz"
)

// RespondError maps the core error taxonomy to RFC7807 responses.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, authz.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, authz.ErrConflict):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, authz.ErrPrivilege):
		Problem(w, http.StatusForbidden, "Insufficient Privilege", err.Error())
	case errors.Is(err, authz.ErrInvalidState):
		Problem(w, http.StatusConflict, "Invalid State", err.Error())
	case errors.Is(err, authz.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, authz.ErrFatal):
		Problem(w, http.StatusUnprocessableEntity, "Rejected", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
