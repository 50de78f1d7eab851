package responses

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	pkgerrors "github.com/angelmondragon/tripops-backend/pkg/errors"
	"github.com/angelmondragon/tripops-backend/pkg/logger"
	"github.com/angelmondragon/tripops-backend/pkg/types"
)

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, types.SuccessEnvelope{Data: data})
}

// WriteWarning writes data with a non-fatal error attached. The status comes
// from the warning's code, e.g. 202 for a pending cascade.
func WriteWarning(w http.ResponseWriter, data any, warning *pkgerrors.Error) {
	if warning == nil {
		WriteSuccess(w, data)
		return
	}
	apiErr := publicError(warning)
	writeJSON(w, pkgerrors.MetadataFor(warning.Code()).HTTPStatus, types.SuccessEnvelope{Data: data, Warning: &apiErr})
}

func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}

	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}
	meta := pkgerrors.MetadataFor(typed.Code())

	if logg != nil {
		ctx = logg.WithFields(ctx, pkgerrors.Dump(err).Fields())
		if meta.HTTPStatus >= http.StatusInternalServerError {
			logg.Error(ctx, "request.error", err)
		} else {
			logg.Warn(ctx, "request.rejected")
		}
	}

	writeJSON(w, meta.HTTPStatus, types.ErrorEnvelope{Error: publicError(typed)})
}

func publicError(typed *pkgerrors.Error) types.APIError {
	meta := pkgerrors.MetadataFor(typed.Code())
	msg := meta.PublicMessage
	switch typed.Code() {
	case pkgerrors.CodeValidation,
		pkgerrors.CodeNotFound,
		pkgerrors.CodeConflict,
		pkgerrors.CodeVersionConflict,
		pkgerrors.CodePreconditionFailed,
		pkgerrors.CodeInsufficientBalance,
		pkgerrors.CodeInsufficientLeave,
		pkgerrors.CodeCascadePending,
		pkgerrors.CodeIdempotency:
		if m := typed.Message(); m != "" {
			msg = m
		}
	}
	out := types.APIError{
		Code:      string(typed.Code()),
		Message:   msg,
		Retryable: meta.Retryable,
	}
	if meta.DetailsAllowed {
		out.Details = typed.Details()
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf(`{"level":"error","msg":"failed to encode response","err":"%v"}`, err)
	}
}
