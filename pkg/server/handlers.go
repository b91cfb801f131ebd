package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"veridian-hq/callisto/pkg/dispatch"
)

// submitRequest is the submission body for POST /v1/submit.
type submitRequest struct {
	Tenant          string          `json:"tenant"`
	Document        string          `json:"document"`
	Tier            string          `json:"tier"`
	EstimatedTokens int             `json:"estimated_tokens"`
	Priority        priorityInputs  `json:"priority"`
	Payload         json.RawMessage `json:"payload"`
}

type priorityInputs struct {
	NarrativeThread bool    `json:"narrative_thread"`
	Complexity      float64 `json:"complexity"`
}

type submitResponse struct {
	RequestID string `json:"request_id"`
}

type cancelRequest struct {
	RequestID string `json:"request_id"`
}

// statusResponse reports a tracked request. Result is null while the
// request is still in flight.
type statusResponse struct {
	RequestID string      `json:"request_id"`
	Done      bool        `json:"done"`
	Result    *resultBody `json:"result,omitempty"`
}

type resultBody struct {
	State         string  `json:"state"`
	Value         any     `json:"value,omitempty"`
	Error         string  `json:"error,omitempty"`
	RetryCount    int     `json:"retry_count"`
	ReservedCost  float64 `json:"reserved_cost"`
	CommittedCost float64 `json:"committed_cost"`
	RefundedCost  float64 `json:"refunded_cost"`
	QueueWaitMS   int64   `json:"queue_wait_ms"`
}

type queueStatus struct {
	Depth            int `json:"depth"`
	InFlight         int `json:"in_flight"`
	MaxConcurrent    int `json:"max_concurrent"`
	RequestsInWindow int `json:"requests_in_window"`
	TokensInWindow   int `json:"tokens_in_window"`
}

type usageResponse struct {
	Tenant        string           `json:"tenant"`
	Day           string           `json:"day"`
	CommittedCost float64          `json:"committed_cost"`
	ReservedCost  float64          `json:"reserved_cost"`
	CallsPerTier  map[string]int64 `json:"calls_per_tier"`
	Documents     int              `json:"documents"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.health.Liveness())
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	status := s.health.Readiness(r.Context())
	code := http.StatusOK
	if !status.Healthy() {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body: " + err.Error()})
		return
	}
	if req.Tenant == "" || req.Tier == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "tenant and tier are required"})
		return
	}

	handle, err := s.dispatcher.Submit(dispatch.Request{
		Tenant:          req.Tenant,
		Document:        req.Document,
		Tier:            dispatch.Tier(req.Tier),
		EstimatedTokens: req.EstimatedTokens,
		Priority: dispatch.PriorityInputs{
			InNarrativeThread: req.Priority.NarrativeThread,
			Complexity:        req.Priority.Complexity,
		},
		Payload: req.Payload,
	})
	if err != nil {
		switch {
		case errors.Is(err, dispatch.ErrUnknownTier):
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		case errors.Is(err, dispatch.ErrBudgetExceeded):
			writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: err.Error()})
		case errors.Is(err, dispatch.ErrQueueSaturated):
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		default:
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		}
		return
	}

	s.track(handle)
	writeJSON(w, http.StatusAccepted, submitResponse{RequestID: handle.ID()})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body: " + err.Error()})
		return
	}

	if err := s.dispatcher.Cancel(req.RequestID); err != nil {
		if errors.Is(err, dispatch.ErrUnknownRequest) {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "cancel requested"})
}

// handleRequestStatus reports a submitted request. A terminal result is
// dropped from tracking once it has been fetched.
func (s *Server) handleRequestStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	handle, ok := s.lookup(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown request"})
		return
	}

	result := handle.Result()
	if result == nil {
		writeJSON(w, http.StatusOK, statusResponse{RequestID: id, Done: false})
		return
	}

	body := &resultBody{
		State:         string(result.State),
		Value:         result.Value,
		RetryCount:    result.RetryCount,
		ReservedCost:  result.ReservedCost,
		CommittedCost: result.CommittedCost,
		RefundedCost:  result.RefundedCost,
		QueueWaitMS:   result.QueueWait.Milliseconds(),
	}
	if result.Err != nil {
		body.Error = result.Err.Error()
	}

	s.forget(id)
	writeJSON(w, http.StatusOK, statusResponse{RequestID: id, Done: true, Result: body})
}

func (s *Server) handleQueues(w http.ResponseWriter, r *http.Request) {
	depths := s.dispatcher.QueueDepths()

	out := make(map[string]queueStatus, len(depths))
	for tier, depth := range depths {
		status := queueStatus{Depth: depth}
		if limits, ok := s.dispatcher.LimiterStatus(tier); ok {
			status.InFlight = limits.InFlight
			status.MaxConcurrent = limits.MaxConcurrent
			status.RequestsInWindow = int(limits.RequestsInWindow)
			status.TokensInWindow = int(limits.TokensInWindow)
		}
		out[string(tier)] = status
	}

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	tenant := r.PathValue("tenant")

	usage := s.usage.Usage(tenant)
	writeJSON(w, http.StatusOK, usageResponse{
		Tenant:        usage.Tenant,
		Day:           usage.Day,
		CommittedCost: usage.CommittedCost,
		ReservedCost:  usage.ReservedCost,
		CallsPerTier:  usage.CallsPerTier,
		Documents:     usage.Documents,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
