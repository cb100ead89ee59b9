package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/vouch-network/vouch/internal/domain"
)

// ─── Status ─────────────────────────────────────────────────────────────────

// handleStatus returns a small operational snapshot.
// GET /api/status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "ok",
		"open_reports": s.engine.OpenCount(),
		"participants": s.balances.Count(),
		"chain_height": s.chain.Height(),
	})
}

// ─── Reports ────────────────────────────────────────────────────────────────

type submitReportRequest struct {
	Reporter    string `json:"reporter"`
	Target      string `json:"target"`
	Action      string `json:"action_type"`
	Impact      int    `json:"impact_score"`
	Description string `json:"description"`
	Evidence    string `json:"evidence,omitempty"`
	Stake       uint64 `json:"stake"`
}

// handleSubmitReport opens a new trust report with the reporter's initial
// stake attached.
// POST /api/reports
func (s *Server) handleSubmitReport(w http.ResponseWriter, r *http.Request) {
	var req submitReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Reporter == "" || req.Target == "" {
		writeError(w, http.StatusBadRequest, "reporter and target are required")
		return
	}

	reportID, err := s.engine.SubmitReport(req.Reporter, req.Target,
		domain.ActionType(req.Action), req.Impact, req.Description, req.Evidence, req.Stake)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"report_id": reportID,
		"status":    domain.ReportOpen.String(),
	})
}

// handleGetReport returns a report with its stakes and lifecycle status.
// GET /api/reports/{id}
func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	reportID := chi.URLParam(r, "id")
	report, status, err := s.engine.Report(reportID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"report": report,
		"status": status.String(),
	})
}

// ─── Stakes ─────────────────────────────────────────────────────────────────

type stakeRequest struct {
	Participant string `json:"participant"`
	Amount      uint64 `json:"amount"`
	Supporting  bool   `json:"supporting"`
}

// handleStake places a supporting or disputing stake on an open report.
// Consensus is re-evaluated immediately, so the response carries the status
// the stake may just have tipped.
// POST /api/reports/{id}/stakes
func (s *Server) handleStake(w http.ResponseWriter, r *http.Request) {
	reportID := chi.URLParam(r, "id")

	var req stakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Participant == "" {
		writeError(w, http.StatusBadRequest, "participant is required")
		return
	}

	if err := s.engine.StakeOnReport(req.Participant, reportID, req.Amount, req.Supporting); err != nil {
		writeDomainError(w, err)
		return
	}

	status, err := s.engine.Status(reportID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"report_id": reportID,
		"status":    status.String(),
	})
}

// ─── Balances ───────────────────────────────────────────────────────────────

// handleGetBalance returns a participant's trust-point balance.
// GET /api/balances/{participant}
func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	participant := chi.URLParam(r, "participant")
	b, ok := s.balances.Get(participant)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown participant "+participant)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// ─── Trust Scores ───────────────────────────────────────────────────────────

// handleTrustScore computes the composite trust score of a target as seen
// by a requester.
// GET /api/trust/{target}?requester=<id>
func (s *Server) handleTrustScore(w http.ResponseWriter, r *http.Request) {
	target := chi.URLParam(r, "target")
	requester := r.URL.Query().Get("requester")
	if requester == "" {
		writeError(w, http.StatusBadRequest, "requester query parameter is required")
		return
	}

	ts := s.scores.CompositeTrust(r.Context(), target, requester)
	writeJSON(w, http.StatusOK, ts)
}

// ─── Chain ──────────────────────────────────────────────────────────────────

// handleVerifyChain re-verifies the full chain. A failure here halts
// further appends, so the result is worth surfacing verbatim.
// GET /api/chain/verify
func (s *Server) handleVerifyChain(w http.ResponseWriter, r *http.Request) {
	if err := s.chain.VerifyChain(); err != nil {
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"valid":  false,
			"error":  err.Error(),
			"height": s.chain.Height(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"valid":  true,
		"height": s.chain.Height(),
	})
}

// handleListBlocks returns the most recent blocks, newest last.
// GET /api/chain/blocks?limit=N
func (s *Server) handleListBlocks(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	blocks := s.chain.Blocks(limit)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"blocks": blocks,
		"height": s.chain.Height(),
	})
}

// handleGetBlock returns one block by index.
// GET /api/chain/blocks/{index}
func (s *Server) handleGetBlock(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.ParseUint(chi.URLParam(r, "index"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid block index")
		return
	}
	b, ok := s.chain.Block(index)
	if !ok {
		writeError(w, http.StatusNotFound, "no block at index "+strconv.FormatUint(index, 10))
		return
	}
	writeJSON(w, http.StatusOK, b)
}
