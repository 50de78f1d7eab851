package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/angelmondragon/tripops-backend/api/responses"
	pkgerrors "github.com/angelmondragon/tripops-backend/pkg/errors"
	"github.com/angelmondragon/tripops-backend/pkg/logger"
)

// Recoverer turns handler panics into INTERNAL_ERROR responses. The
// http.ErrAbortHandler sentinel is re-raised so the server aborts the
// connection as intended.
func Recoverer(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}
				err := fmt.Errorf("panic: %v", rec)
				ctx := r.Context()
				if logg != nil {
					ctx = logg.WithField(ctx, "panic", fmt.Sprint(rec))
				}
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "panic"))
			}()
			next.ServeHTTP(w, r)
		})
	}
}
