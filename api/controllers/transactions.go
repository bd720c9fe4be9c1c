package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/cartaviva/cartaviva-backend/api/middleware"
	"github.com/cartaviva/cartaviva-backend/api/responses"
	"github.com/cartaviva/cartaviva-backend/api/validators"
	checkoutsvc "github.com/cartaviva/cartaviva-backend/internal/checkout"
	"github.com/cartaviva/cartaviva-backend/internal/checkout/helpers"
	"github.com/cartaviva/cartaviva-backend/internal/transactions"
	"github.com/cartaviva/cartaviva-backend/pkg/db/models"
	"github.com/cartaviva/cartaviva-backend/pkg/enums"
	pkgerrors "github.com/cartaviva/cartaviva-backend/pkg/errors"
	"github.com/cartaviva/cartaviva-backend/pkg/logger"
	"github.com/cartaviva/cartaviva-backend/pkg/pagination"
	"github.com/cartaviva/cartaviva-backend/pkg/types"
)

const maxNotesLen = 2000

// CreateTransaction submits the buyer's cart and opens one transaction per seller.
func CreateTransaction(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		buyerID, _, err := actorFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload createTransactionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		method, err := enums.ParsePaymentMethod(payload.PaymentMethod)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment method"))
			return
		}

		lines := make([]helpers.Line, 0, len(payload.Lines))
		for _, line := range payload.Lines {
			lines = append(lines, helpers.Line{ListingID: line.ListingID, Qty: line.Qty})
		}

		result, err := svc.Execute(r.Context(), checkoutsvc.Input{
			BuyerID:          buyerID,
			PaymentMethod:    method,
			BuyerContact:     payload.BuyerContact,
			BuyerNotes:       sanitizeNotes(payload.BuyerNotes),
			DestinationStore: sanitizeNotes(payload.DestinationStore),
			Lines:            lines,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := newCheckoutResponse(result)
		if !anyGroupSucceeded(result) {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.New(pkgerrors.CodeInsufficientStock, "no seller group could be fulfilled").
					WithDetails(map[string]any{"groups": resp.Groups}))
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, resp)
	}
}

func anyGroupSucceeded(result *checkoutsvc.Result) bool {
	for _, group := range result.Groups {
		if group.Succeeded() {
			return true
		}
	}
	return false
}

type createTransactionRequest struct {
	PaymentMethod    string                   `json:"payment_method" validate:"required"`
	BuyerContact     *types.Contact           `json:"buyer_contact,omitempty"`
	BuyerNotes       *string                  `json:"buyer_notes,omitempty"`
	DestinationStore *string                  `json:"destination_store,omitempty" validate:"omitempty,max=200"`
	Lines            []transactionLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type transactionLineRequest struct {
	ListingID uuid.UUID `json:"listing_id" validate:"required"`
	Qty       int       `json:"qty" validate:"required,min=1"`
}

type checkoutResponse struct {
	Groups []checkoutGroupResponse `json:"groups"`
}

type checkoutGroupResponse struct {
	SellerID      uuid.UUID           `json:"seller_id"`
	Transaction   *models.Transaction `json:"transaction,omitempty"`
	FailureCode   string              `json:"failure_code,omitempty"`
	FailureReason string              `json:"failure_reason,omitempty"`
}

func newCheckoutResponse(result *checkoutsvc.Result) checkoutResponse {
	out := checkoutResponse{Groups: make([]checkoutGroupResponse, 0, len(result.Groups))}
	for _, group := range result.Groups {
		out.Groups = append(out.Groups, checkoutGroupResponse{
			SellerID:      group.SellerID,
			Transaction:   group.Transaction,
			FailureCode:   string(group.FailureCode),
			FailureReason: group.FailureReason,
		})
	}
	return out
}

// ListTransactions pages through the caller's transactions, newest first.
func ListTransactions(svc transactions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "transactions service unavailable"))
			return
		}

		userID, _, err := actorFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		}

		filters, err := buildListFilters(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.List(r.Context(), userID, params, filters)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, list)
	}
}

// TransactionDetail returns the full record for a participant.
func TransactionDetail(svc transactions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "transactions service unavailable"))
			return
		}

		userID, role, err := actorFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		transactionID, err := transactionIDFromPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		txn, err := svc.Get(r.Context(), transactionID, userID, role)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, txn)
	}
}

// AcceptTransaction records the seller's commitment to deliver, together
// with the seller's contact snapshot and proposed exchange store.
func AcceptTransaction(svc transactions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "transactions service unavailable"))
			return
		}

		input, err := actionInput(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload acceptRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		txn, err := svc.Accept(r.Context(), transactions.DecisionInput{
			ActionInput:   input,
			Notes:         sanitizeNotes(payload.Notes),
			OriginStore:   sanitizeNotes(payload.OriginStore),
			SellerContact: payload.SellerContact,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, txn)
	}
}

// RejectTransaction declines the trade and releases the held stock.
func RejectTransaction(svc transactions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		input, payload, err := cancelInput(r, svc)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		txn, err := svc.Reject(r.Context(), transactions.CancelInput{
			ActionInput: input,
			Reason:      payload.Reason,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, txn)
	}
}

// CancelTransaction lets either participant back out while the trade is still open.
func CancelTransaction(svc transactions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		input, payload, err := cancelInput(r, svc)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		txn, err := svc.Cancel(r.Context(), transactions.CancelInput{
			ActionInput: input,
			Reason:      payload.Reason,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, txn)
	}
}

// ConfirmDelivery is the seller's attestation that the cards were handed off.
func ConfirmDelivery(svc transactions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		input, payload, err := decisionInput(r, svc)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		txn, err := svc.ConfirmDelivery(r.Context(), transactions.DeliveryInput{
			ActionInput: input,
			Notes:       sanitizeNotes(payload.Notes),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, txn)
	}
}

// ConfirmPayment is the buyer's attestation that payment was made.
func ConfirmPayment(svc transactions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		input, payload, err := decisionInput(r, svc)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		txn, err := svc.ConfirmPayment(r.Context(), transactions.PaymentInput{
			ActionInput: input,
			Notes:       sanitizeNotes(payload.Notes),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, txn)
	}
}

// CompleteTransaction closes the trade and settles the sold stock.
func CompleteTransaction(svc transactions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "transactions service unavailable"))
			return
		}

		input, err := actionInput(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		txn, err := svc.Complete(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, txn)
	}
}

type notesRequest struct {
	Notes *string `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

type acceptRequest struct {
	Notes         *string        `json:"notes,omitempty" validate:"omitempty,max=2000"`
	OriginStore   *string        `json:"origin_store,omitempty" validate:"omitempty,max=200"`
	SellerContact *types.Contact `json:"seller_contact,omitempty"`
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"required,min=3,max=500"`
}

func decisionInput(r *http.Request, svc transactions.Service) (transactions.ActionInput, notesRequest, error) {
	var payload notesRequest
	if svc == nil {
		return transactions.ActionInput{}, payload, pkgerrors.New(pkgerrors.CodeInternal, "transactions service unavailable")
	}
	input, err := actionInput(r)
	if err != nil {
		return transactions.ActionInput{}, payload, err
	}
	if r.ContentLength != 0 {
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return transactions.ActionInput{}, payload, err
		}
	}
	return input, payload, nil
}

func cancelInput(r *http.Request, svc transactions.Service) (transactions.ActionInput, cancelRequest, error) {
	var payload cancelRequest
	if svc == nil {
		return transactions.ActionInput{}, payload, pkgerrors.New(pkgerrors.CodeInternal, "transactions service unavailable")
	}
	input, err := actionInput(r)
	if err != nil {
		return transactions.ActionInput{}, payload, err
	}
	if err := validators.DecodeJSONBody(r, &payload); err != nil {
		return transactions.ActionInput{}, payload, err
	}
	payload.Reason = validators.SanitizeString(payload.Reason, 500)
	return input, payload, nil
}

func actionInput(r *http.Request) (transactions.ActionInput, error) {
	actorID, role, err := actorFromContext(r)
	if err != nil {
		return transactions.ActionInput{}, err
	}
	transactionID, err := transactionIDFromPath(r)
	if err != nil {
		return transactions.ActionInput{}, err
	}
	return transactions.ActionInput{
		TransactionID: transactionID,
		ActorID:       actorID,
		ActorRole:     role,
	}, nil
}

func actorFromContext(r *http.Request) (uuid.UUID, enums.ActorRole, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, "", pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user id")
	}
	role, err := enums.ParseActorRole(middleware.RoleFromContext(r.Context()))
	if err != nil {
		return uuid.Nil, "", pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "unknown actor role")
	}
	return userID, role, nil
}

func transactionIDFromPath(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "transactionId"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id is required")
	}
	transactionID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid transaction id")
	}
	return transactionID, nil
}

func sanitizeNotes(notes *string) *string {
	if notes == nil {
		return nil
	}
	clean := validators.SanitizeString(*notes, maxNotesLen)
	if clean == "" {
		return nil
	}
	return &clean
}

func buildListFilters(r *http.Request) (transactions.ListFilters, error) {
	filters := transactions.ListFilters{}

	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status, err := enums.ParseTransactionStatus(raw)
		if err != nil {
			return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter")
		}
		filters.Status = &status
	}

	switch role := strings.TrimSpace(r.URL.Query().Get("role")); role {
	case "", "buyer", "seller":
		filters.Role = role
	default:
		return filters, pkgerrors.New(pkgerrors.CodeValidation, "role filter must be buyer or seller")
	}

	if raw := strings.TrimSpace(r.URL.Query().Get("from")); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid from filter")
		}
		filters.DateFrom = &from
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("to")); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid to filter")
		}
		filters.DateTo = &to
	}

	return filters, nil
}
