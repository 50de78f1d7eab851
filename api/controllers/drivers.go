package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/tripops-backend/api/responses"
	"github.com/angelmondragon/tripops-backend/api/validators"
	"github.com/angelmondragon/tripops-backend/internal/drivers"
	"github.com/angelmondragon/tripops-backend/pkg/logger"
)

func DriverGet(svc drivers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		driver, err := svc.GetDriver(r.Context(), chi.URLParam(r, "driverId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, driver)
	}
}

type leaveRequestBody struct {
	Days   int    `json:"days" validate:"required,min=1,max=31"`
	Reason string `json:"reason,omitempty" validate:"max=512"`
}

// DriverRequestLeave deducts leave days, current month first.
func DriverRequestLeave(svc drivers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		driverID := chi.URLParam(r, "driverId")
		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithDriverID(ctx, driverID)
		}

		var payload leaveRequestBody
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		request, err := svc.RequestLeave(ctx, drivers.LeaveRequestInput{
			DriverID: driverID,
			Days:     payload.Days,
			Reason:   strings.TrimSpace(payload.Reason),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, request)
	}
}
