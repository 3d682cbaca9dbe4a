package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/qrbn-app/qurban-crypto-app/internal/app"
	"github.com/qrbn-app/qurban-crypto-app/internal/domain"
)

// PurchaseWorkflow drives a purchase through its states.
type PurchaseWorkflow interface {
	Start(ctx context.Context, in app.StartPurchaseInput) (domain.Purchase, error)
	AdvanceToReview(ctx context.Context, purchaseID string) (domain.Purchase, error)
	AdvanceToPayment(ctx context.Context, purchaseID string) (domain.Purchase, error)
	ConfirmPayment(ctx context.Context, purchaseID, externalRef string) (domain.Purchase, error)
	FailPayment(ctx context.Context, purchaseID, reason string) (domain.Purchase, error)
	Cancel(ctx context.Context, purchaseID string) (domain.Purchase, error)
	Get(ctx context.Context, purchaseID string) (domain.Purchase, error)
}

// HandleStartPurchase serves POST /purchases.
func HandleStartPurchase(svc PurchaseWorkflow) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		var req startPurchaseRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		purchase, err := svc.Start(r.Context(), app.StartPurchaseInput{
			PoolID:  req.PoolID,
			BuyerID: req.BuyerID,
			Shares:  req.Shares,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toPurchaseResponse(purchase))
	}
}

// HandlePurchaseByID serves GET /purchases/{id} and the action endpoints
// POST /purchases/{id}/{review|payment|confirm|fail|cancel}.
func HandlePurchaseByID(svc PurchaseWorkflow) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, action, ok := parsePurchasePath(r.URL.Path)
		if !ok {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}

		if action == "" {
			if r.Method != http.MethodGet {
				writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
				return
			}
			purchase, err := svc.Get(r.Context(), id)
			if err != nil {
				writeDomainError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, toPurchaseResponse(purchase))
			return
		}

		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		var (
			purchase domain.Purchase
			err      error
		)
		switch action {
		case "review":
			purchase, err = svc.AdvanceToReview(r.Context(), id)
		case "payment":
			purchase, err = svc.AdvanceToPayment(r.Context(), id)
		case "confirm":
			var req confirmPaymentRequest
			dec := json.NewDecoder(r.Body)
			dec.DisallowUnknownFields()
			if decErr := dec.Decode(&req); decErr != nil {
				writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
				return
			}
			purchase, err = svc.ConfirmPayment(r.Context(), id, req.ExternalRef)
		case "fail":
			var req failPaymentRequest
			if r.ContentLength != 0 {
				dec := json.NewDecoder(r.Body)
				dec.DisallowUnknownFields()
				if decErr := dec.Decode(&req); decErr != nil {
					writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
					return
				}
			}
			purchase, err = svc.FailPayment(r.Context(), id, req.Reason)
		case "cancel":
			purchase, err = svc.Cancel(r.Context(), id)
		default:
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toPurchaseResponse(purchase))
	}
}

func parsePurchasePath(path string) (id, action string, ok bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	switch {
	case len(parts) == 2 && parts[0] == "purchases" && parts[1] != "":
		return parts[1], "", true
	case len(parts) == 3 && parts[0] == "purchases" && parts[1] != "" && parts[2] != "":
		return parts[1], parts[2], true
	}
	return "", "", false
}

type startPurchaseRequest struct {
	PoolID  string `json:"pool_id"`
	BuyerID string `json:"buyer_id"`
	Shares  int    `json:"shares"`
}

type confirmPaymentRequest struct {
	ExternalRef string `json:"external_ref"`
}

type failPaymentRequest struct {
	Reason string `json:"reason"`
}

type purchaseResponse struct {
	ID            string    `json:"id"`
	PoolID        string    `json:"pool_id"`
	BuyerID       string    `json:"buyer_id"`
	Shares        int       `json:"shares"`
	Amount        string    `json:"amount"`
	Currency      string    `json:"currency"`
	State         string    `json:"state"`
	ReservationID string    `json:"reservation_id,omitempty"`
	FailureReason string    `json:"failure_reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func toPurchaseResponse(p domain.Purchase) purchaseResponse {
	return purchaseResponse{
		ID:            p.ID,
		PoolID:        p.PoolID,
		BuyerID:       p.BuyerID,
		Shares:        p.Shares,
		Amount:        p.Amount.String(),
		Currency:      p.Currency,
		State:         string(p.State),
		ReservationID: p.ReservationID,
		FailureReason: p.FailureReason,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}
