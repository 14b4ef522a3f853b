package handlers

import (
	"net/http"

	apperrors "github.com/octofetch/octofetch/internal/errors"
)

// errorResponder writes failures for every handler in this package. The
// server installs its own so router-level and handler-level errors are
// logged and counted the same way.
var errorResponder = apperrors.RespondWithError

// SetHTTPErrorResponder replaces the responder; nil restores the default.
func SetHTTPErrorResponder(responder func(http.ResponseWriter, *http.Request, error)) {
	if responder == nil {
		responder = apperrors.RespondWithError
	}
	errorResponder = responder
}

func respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	errorResponder(w, r, err)
}
