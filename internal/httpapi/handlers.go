package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"deltaHedge/internal/engine"
	"deltaHedge/internal/model"
)

const maxBodyBytes = 64 << 10

type errorResponse struct {
	Error string `json:"error"`
}

type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

type positionFailureView struct {
	Index      int    `json:"index"`
	PositionID string `json:"position_id"`
	Pair       string `json:"pair"`
	Error      string `json:"error"`
}

type positionsResponse struct {
	Positions            []model.ReportView    `json:"positions"`
	Failures             []positionFailureView `json:"failures"`
	PositionsUnavailable bool                  `json:"positions_unavailable"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Timestamp: s.now().UTC().Format(time.RFC3339Nano),
	})
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	result, err := s.backend.GetPositionsWithHedges(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	failures := make([]positionFailureView, 0, len(result.Failures))
	for _, f := range result.Failures {
		failures = append(failures, positionFailureView{
			Index:      f.Index,
			PositionID: f.PositionID,
			Pair:       f.Pair,
			Error:      publicMessage(f.Err),
		})
	}
	writeJSON(w, http.StatusOK, positionsResponse{
		Positions:            model.Views(result.Reports),
		Failures:             failures,
		PositionsUnavailable: result.PositionsUnavailable,
	})
}

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	var body simulateBody
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := decoder.Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid request body: %v", err)})
		return
	}

	req, err := engine.ParseSimulationRequest(body.raw())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	report, err := s.backend.SimulatePosition(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report.View())
}

func (s *Server) handlePools(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.backend.GetAvailablePairs())
}

// writeError maps the error taxonomy onto status codes. Caller errors are
// returned verbatim; anything else gets a generic message.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	fields := []zap.Field{zap.String("request_id", RequestID(r.Context())), zap.Error(err)}
	switch {
	case status >= 500:
		s.logger.Error("request failed", fields...)
	default:
		s.logger.Debug("request rejected", fields...)
	}
	writeJSON(w, status, errorResponse{Error: publicMessage(err)})
}

func statusFor(err error) int {
	var priceErr *engine.PriceUnavailableError
	switch {
	case engine.IsCallerError(err):
		return http.StatusBadRequest
	case errors.As(err, &priceErr):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func publicMessage(err error) string {
	var priceErr *engine.PriceUnavailableError
	switch {
	case engine.IsCallerError(err):
		return err.Error()
	case errors.As(err, &priceErr):
		return fmt.Sprintf("price unavailable for %s", priceErr.Pair)
	default:
		return "internal error"
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// simulateBody accepts numeric fields as JSON numbers or numeric strings.
type simulateBody struct {
	Pair       flexString `json:"pair"`
	RangeLow   flexString `json:"rangeLow"`
	RangeHigh  flexString `json:"rangeHigh"`
	Amount     flexString `json:"amount"`
	EntryToken flexString `json:"entryToken"`
	EntryPrice flexString `json:"entryPrice"`
}

func (b simulateBody) raw() engine.RawSimulationRequest {
	return engine.RawSimulationRequest{
		Pair:       string(b.Pair),
		RangeLow:   string(b.RangeLow),
		RangeHigh:  string(b.RangeHigh),
		Amount:     string(b.Amount),
		EntryToken: string(b.EntryToken),
		EntryPrice: string(b.EntryPrice),
	}
}

// flexString keeps the literal text of a JSON string or number. Null leaves
// it empty; other JSON types are rejected.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*f = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(s))
	case len(data) > 0 && (data[0] == '-' || (data[0] >= '0' && data[0] <= '9')):
		*f = flexString(data)
	default:
		return fmt.Errorf("expected string or number, got %s", data)
	}
	return nil
}
