package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/tripops-backend/api/responses"
	"github.com/angelmondragon/tripops-backend/api/validators"
	"github.com/angelmondragon/tripops-backend/internal/wallets"
	"github.com/angelmondragon/tripops-backend/pkg/logger"
)

func WalletGet(svc wallets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wallet, err := svc.GetWallet(r.Context(), chi.URLParam(r, "walletId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, wallet)
	}
}

type walletCreditRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"required,nonneg"`
	Reason string          `json:"reason" validate:"required,max=256"`
}

// WalletCredit tops up a wallet and appends a credit transaction.
func WalletCredit(svc wallets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		walletID := chi.URLParam(r, "walletId")
		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithWalletID(ctx, walletID)
		}

		var payload walletCreditRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		wallet, err := svc.Credit(ctx, walletID, payload.Amount, strings.TrimSpace(payload.Reason))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, wallet)
	}
}
