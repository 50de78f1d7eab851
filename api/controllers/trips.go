package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/tripops-backend/api/responses"
	"github.com/angelmondragon/tripops-backend/api/validators"
	"github.com/angelmondragon/tripops-backend/internal/trips"
	"github.com/angelmondragon/tripops-backend/internal/wallets"
	"github.com/angelmondragon/tripops-backend/pkg/enums"
	"github.com/angelmondragon/tripops-backend/pkg/logger"
)

type createTripRequest struct {
	Code        string          `json:"code" validate:"required,max=64"`
	Origin      string          `json:"origin" validate:"required"`
	Destination string          `json:"destination" validate:"required"`
	DriverID    *string         `json:"driver_id,omitempty"`
	TruckID     *string         `json:"truck_id,omitempty"`
	StopCount   int             `json:"stop_count" validate:"min=0"`
	StartDate   time.Time       `json:"start_date" validate:"required"`
	Odometer    *trips.Odometer `json:"odometer,omitempty"`
}

func (r createTripRequest) toInput() trips.CreateTripInput {
	return trips.CreateTripInput{
		Code:        strings.TrimSpace(r.Code),
		Origin:      strings.TrimSpace(r.Origin),
		Destination: strings.TrimSpace(r.Destination),
		DriverID:    r.DriverID,
		TruckID:     r.TruckID,
		StopCount:   r.StopCount,
		StartDate:   r.StartDate,
		Odometer:    r.Odometer,
	}
}

// TripCreate schedules a new ready_to_ship trip.
func TripCreate(svc trips.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload createTripRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		trip, err := svc.CreateTrip(r.Context(), payload.toInput())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, trip)
	}
}

func TripGet(svc trips.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		trip, err := svc.GetTrip(r.Context(), chi.URLParam(r, "tripId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, trip)
	}
}

type assignCrewRequest struct {
	DriverID *string `json:"driver_id"`
	TruckID  *string `json:"truck_id"`
}

// TripAssignCrew sets or clears the driver and truck. Placeholder values such
// as "Unassigned" clear the slot.
func TripAssignCrew(svc trips.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload assignCrewRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		trip, err := svc.AssignCrew(r.Context(), trips.AssignCrewInput{
			TripID:   chi.URLParam(r, "tripId"),
			DriverID: payload.DriverID,
			TruckID:  payload.TruckID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, trip)
	}
}

type typeChangeRequest struct {
	Type      string  `json:"type" validate:"required,oneof=ready_to_ship active past"`
	SubStatus *string `json:"sub_status,omitempty" validate:"omitempty,oneof=delivering returning not_applicable"`
}

// TripChangeType moves a trip between lifecycle types. A committed change
// whose order cascade did not apply answers 202 with a CASCADE_PENDING
// warning.
func TripChangeType(svc trips.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload typeChangeRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := trips.TypeChangeInput{
			TripID: chi.URLParam(r, "tripId"),
			Type:   enums.TripType(payload.Type),
		}
		if payload.SubStatus != nil {
			sub := enums.TripStatus(*payload.SubStatus)
			input.SubStatus = &sub
		}

		result, err := svc.RequestTypeChange(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if result.CascadeErr != nil {
			responses.WriteWarning(w, result, result.CascadeErr)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func TripRetryCascade(svc trips.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := svc.RetryCascade(r.Context(), chi.URLParam(r, "tripId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

type attachOrdersRequest struct {
	OrderIDs []string `json:"order_ids" validate:"required,dive,required"`
}

func TripAttachOrders(svc trips.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload attachOrdersRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.AttachOrders(r.Context(), chi.URLParam(r, "tripId"), payload.OrderIDs)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

type additionalBalanceRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"nonneg"`
	Reason string          `json:"reason" validate:"required,max=256"`
}

type voucherRequest struct {
	WalletID          string                     `json:"wallet_id" validate:"required"`
	AdvanceBalance    decimal.Decimal            `json:"advance_balance" validate:"nonneg"`
	AdditionalBalance []additionalBalanceRequest `json:"additional_balance" validate:"dive"`
}

func (r voucherRequest) toInput(tripID string) trips.VoucherInput {
	items := make([]wallets.AdditionalBalance, 0, len(r.AdditionalBalance))
	for _, item := range r.AdditionalBalance {
		items = append(items, wallets.AdditionalBalance{
			Amount: item.Amount,
			Reason: strings.TrimSpace(item.Reason),
		})
	}
	return trips.VoucherInput{
		TripID:            tripID,
		WalletID:          strings.TrimSpace(r.WalletID),
		AdvanceBalance:    r.AdvanceBalance,
		AdditionalBalance: items,
	}
}

// TripUpdateVoucher replaces the trip's voucher and debits the wallet for the
// increase.
func TripUpdateVoucher(svc trips.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tripID := chi.URLParam(r, "tripId")
		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithTripID(ctx, tripID)
		}

		var payload voucherRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.UpdateVoucher(ctx, payload.toInput(tripID))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func TripDelete(svc trips.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.DeleteTrip(r.Context(), chi.URLParam(r, "tripId")); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
