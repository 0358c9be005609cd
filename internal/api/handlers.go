package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"tip-settlement/internal/domain"
	"tip-settlement/internal/feeconfig"
)

const (
	maxBodyBytes    = 64 << 10
	defaultTipLimit = 50
	maxTipLimit     = 500
)

var errBadRequest = errors.New("malformed request body")

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: %v", errBadRequest, err))
		return false
	}
	return true
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleSubmitTip(w http.ResponseWriter, r *http.Request) {
	var req submitTipRequest
	if !decodeBody(w, r, &req) {
		return
	}
	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	rec, err := s.service.Submit(r.Context(), tippingRequest(req, amount))
	if err != nil {
		status, code := statusFor(err)
		// A rejection that was recorded returns the stored record with the cause.
		if rec != nil && rec.Status == domain.TipStatusRejected && status < http.StatusInternalServerError {
			writeJSON(w, status, rejectedTipJSON{
				Error: errorDetail{Code: code, Message: err.Error()},
				Tip:   toTipRecordJSON(rec),
			})
			return
		}
		if status >= http.StatusInternalServerError {
			s.logger.WithError(err).WithField("tx_id", req.TxID).Error("tip submission failed")
		}
		writeError(w, status, code, err)
		return
	}

	writeJSON(w, http.StatusOK, toTipRecordJSON(rec))
}

func (s *Server) handleGetTip(w http.ResponseWriter, r *http.Request) {
	rec, err := s.service.Ledger().Get(r.Context(), chi.URLParam(r, "tipID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTipRecordJSON(rec))
}

func (s *Server) handleGetPostings(w http.ResponseWriter, r *http.Request) {
	tipID := chi.URLParam(r, "tipID")
	if _, err := s.service.Ledger().Get(r.Context(), tipID); err != nil {
		writeDomainError(w, err)
		return
	}
	postings, err := s.service.Ledger().Postings(r.Context(), tipID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	type postingJSON struct {
		PostingID string `json:"posting_id"`
		Address   string `json:"address"`
		Kind      string `json:"kind"`
		Amount    string `json:"amount"`
		CreatedAt int64  `json:"created_at"`
	}
	out := make([]postingJSON, 0, len(postings))
	for _, p := range postings {
		out = append(out, postingJSON{
			PostingID: p.PostingID,
			Address:   p.Address,
			Kind:      string(p.Kind),
			Amount:    p.Amount.Dec(),
			CreatedAt: p.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	q, err := s.service.Quote(r.Context(), req.Network, req.RecipientID, req.ContentID, amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, quoteJSON{
		Network: string(q.Network),
		Amount:  q.Amount.Dec(),
		Split:   toSplitJSON(q.Split),
		Fees:    toFeeConfigJSON(q.Fees),
		Display: displayJSON(q.Display),
	})
}

func (s *Server) handleSetFee(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", errMissingToken)
		return
	}
	var req setFeeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	setting, err := s.service.Registry().SetCustomFee(r.Context(), actor, feeconfig.FeeUpdate{
		RecipientID:  chi.URLParam(r, "recipientID"),
		ContentID:    chi.URLParam(r, "contentID"),
		BasisPoints:  req.BasisPoints,
		FeeRecipient: req.FeeRecipient,
	})
	if err != nil {
		if status, _ := statusFor(err); status == http.StatusForbidden {
			s.logger.WithFields(logrus.Fields{
				"actor":        actor,
				"recipient_id": chi.URLParam(r, "recipientID"),
			}).Warn("fee update by non-owner")
		}
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toFeeSettingJSON(setting))
}

func (s *Server) handleGetFee(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.service.Registry().GetEffectiveConfig(r.Context(),
		chi.URLParam(r, "recipientID"), chi.URLParam(r, "contentID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toFeeConfigJSON(cfg))
}

func (s *Server) handleListFees(w http.ResponseWriter, r *http.Request) {
	settings, err := s.service.Registry().Settings(r.Context(), chi.URLParam(r, "recipientID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]feeSettingJSON, 0, len(settings))
	for _, fs := range settings {
		out = append(out, toFeeSettingJSON(fs))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	n, err := domain.ParseNetwork(chi.URLParam(r, "network"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	bal, err := s.service.Ledger().Balance(r.Context(), n, chi.URLParam(r, "address"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceJSON(bal))
}

func (s *Server) handleTipsTo(w http.ResponseWriter, r *http.Request) {
	n, err := domain.ParseNetwork(chi.URLParam(r, "network"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	limit := defaultTipLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		l, err := strconv.Atoi(v)
		if err != nil || l <= 0 {
			writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("invalid limit %q", v))
			return
		}
		limit = min(l, maxTipLimit)
	}

	recs, err := s.service.Ledger().TipsTo(r.Context(), n, chi.URLParam(r, "address"), limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]tipRecordJSON, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toTipRecordJSON(rec))
	}
	writeJSON(w, http.StatusOK, out)
}
