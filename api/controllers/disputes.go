package controllers

import (
	"net/http"

	"github.com/cartaviva/cartaviva-backend/api/responses"
	"github.com/cartaviva/cartaviva-backend/api/validators"
	"github.com/cartaviva/cartaviva-backend/internal/transactions"
	"github.com/cartaviva/cartaviva-backend/pkg/enums"
	pkgerrors "github.com/cartaviva/cartaviva-backend/pkg/errors"
	"github.com/cartaviva/cartaviva-backend/pkg/logger"
)

type disputeRequest struct {
	Type         string   `json:"type" validate:"required"`
	Severity     string   `json:"severity" validate:"required"`
	Description  string   `json:"description" validate:"required,min=10,max=4000"`
	EvidenceURLs []string `json:"evidence_urls,omitempty" validate:"omitempty,max=10,dive,url"`
}

// OpenDispute freezes the transaction behind a structured report.
func OpenDispute(svc transactions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "transactions service unavailable"))
			return
		}

		actorID, _, err := actorFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		transactionID, err := transactionIDFromPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload disputeRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		disputeType, err := enums.ParseDisputeType(payload.Type)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid dispute type"))
			return
		}
		severity, err := enums.ParseDisputeSeverity(payload.Severity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid dispute severity"))
			return
		}

		dispute, err := svc.OpenDispute(r.Context(), transactions.DisputeInput{
			TransactionID: transactionID,
			ActorID:       actorID,
			Type:          disputeType,
			Severity:      severity,
			Description:   validators.SanitizeString(payload.Description, 4000),
			EvidenceURLs:  payload.EvidenceURLs,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, dispute)
	}
}
