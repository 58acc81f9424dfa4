package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/vietddude/somicard/internal/core/checkout"
	"github.com/vietddude/somicard/internal/core/domain"
)

const maxBodyBytes = 64 << 10

// MessageEnvelope is the generic error wrapper.
type MessageEnvelope struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{Error: msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

type quoteRequest struct {
	FundingAmount float64 `json:"fundingAmount"`
}

type quoteResponse struct {
	checkout.Amounts
	TokenSymbol     string `json:"tokenSymbol"`
	TreasuryAddress string `json:"treasuryAddress"`
	ChainID         int64  `json:"chainId"`
	Network         string `json:"network"`
	FallbackPrice   bool   `json:"fallbackPrice"`
}

type orderRequest struct {
	checkout.Form
	TxHash string `json:"txHash"`
}

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	if s.deps.Quotes == nil {
		writeError(w, http.StatusServiceUnavailable, "price feed unavailable")
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Quotes.Quote())
}

// amounts computes the payment at the current quote.
func (s *Server) amounts(funding float64) (checkout.Amounts, domain.Quote, int, error) {
	if s.deps.Quotes == nil {
		return checkout.Amounts{}, domain.Quote{}, http.StatusServiceUnavailable, errors.New("price feed unavailable")
	}
	q := s.deps.Quotes.Quote()
	if q.Price <= 0 {
		return checkout.Amounts{}, q, http.StatusServiceUnavailable, errors.New("price not loaded yet")
	}

	amounts, err := s.deps.Calculator.Compute(decimal.NewFromFloat(funding), q.Price)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			return checkout.Amounts{}, q, http.StatusBadRequest, err
		}
		return checkout.Amounts{}, q, http.StatusInternalServerError, err
	}
	return amounts, q, http.StatusOK, nil
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	amounts, q, code, err := s.amounts(req.FundingAmount)
	if err != nil {
		writeError(w, code, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, quoteResponse{
		Amounts:         amounts,
		TokenSymbol:     domain.TokenSymbol,
		TreasuryAddress: s.cfg.TreasuryAddress,
		ChainID:         int64(s.cfg.ChainID),
		Network:         s.cfg.Network,
		FallbackPrice:   q.Fallback,
	})
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// Validation happens before any chain or network call.
	if err := checkout.Validate(req.Form); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	txHash := strings.TrimSpace(req.TxHash)
	if !checkout.ValidTxHash(txHash) {
		writeError(w, http.StatusBadRequest, "please enter a valid transaction hash")
		return
	}

	amounts, _, code, err := s.amounts(req.FundingAmount)
	if err != nil {
		writeError(w, code, err.Error())
		return
	}
	customer := checkout.Customer(req.Form, amounts)

	if s.deps.Tracker == nil {
		writeError(w, http.StatusServiceUnavailable, "transaction tracking unavailable")
		return
	}

	if s.cfg.NotifyInitiated {
		rec := domain.NewNotificationRecord(customer, txHash, domain.StatusInitiated, time.Now())
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			s.deps.Notifier.TransactionInitiated(ctx, rec)
		}()
	}

	session, err := s.deps.Tracker.Track(txHash, customer)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.log.Error("Failed to track transaction", "tx", txHash, "error", err)
		writeError(w, http.StatusServiceUnavailable, "could not track transaction")
		return
	}

	writeJSON(w, http.StatusAccepted, session.View())
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	if s.deps.Tracker == nil {
		writeError(w, http.StatusServiceUnavailable, "transaction tracking unavailable")
		return
	}

	view, err := s.deps.Tracker.Get(chi.URLParam(r, "txHash"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleBalanceRequest(w http.ResponseWriter, r *http.Request) {
	var form checkout.BalanceForm
	if err := decodeBody(w, r, &form); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := checkout.Validate(form); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sent := s.deps.Notifier.RequestBalance(r.Context(), domain.BalanceRequest{
		WalletAddress: form.WalletAddress,
		Email:         strings.TrimSpace(form.Email),
		Timestamp:     time.Now(),
	})
	writeJSON(w, http.StatusOK, map[string]bool{"sent": sent})
}
