package cashday

import (
	"errors"
	"net/http"
	"strings"

	"github.com/boddenberg/cash-console-bfa/internal/domain"
	"github.com/boddenberg/cash-console-bfa/internal/infra/client"
)

// permissionPhrases are matched case-insensitively against backend
// messages. The backend answers in English or Spanish.
var permissionPhrases = []string{
	"forbidden",
	"not allowed",
	"permission",
	"insufficient role",
	"unauthorized role",
	"override required",
	"no autorizado",
	"sin permiso",
	"no tiene permiso",
	"prohibido",
}

// IsPermissionError reports whether err means the actor may not do what
// was attempted, as opposed to a generic failure worth retrying.
func IsPermissionError(err error) bool {
	if err == nil {
		return false
	}
	var forbidden *domain.ErrForbidden
	if errors.As(err, &forbidden) {
		return true
	}
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusForbidden {
		return true
	}
	msg := strings.ToLower(ErrorMessage(err))
	for _, phrase := range permissionPhrases {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	return false
}

// ErrorMessage is the operator-facing text for err: the backend's own
// message when there is one.
func ErrorMessage(err error) string {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	var validation *domain.ErrValidation
	if errors.As(err, &validation) {
		return validation.Message
	}
	return err.Error()
}
