package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/Strob0t/TriggerGate/internal/adapter/postgres"
	"github.com/Strob0t/TriggerGate/internal/domain"
	"github.com/Strob0t/TriggerGate/internal/domain/approval"
	"github.com/Strob0t/TriggerGate/internal/middleware"
	"github.com/Strob0t/TriggerGate/internal/port/audit"
	"github.com/Strob0t/TriggerGate/internal/port/messagequeue"
)

// maxRequestBodySize limits webhook and API request bodies to 1MB.
const maxRequestBodySize = 1 << 20

// Ingestor runs the inbound pipeline for one webhook delivery.
// Satisfied by *service.Gateway.
type Ingestor interface {
	HandleInbound(ctx context.Context, triggerName string, body []byte, header http.Header) error
}

// ApprovalRegistry exposes pending approvals to operators. Satisfied by
// *service.Approvals.
type ApprovalRegistry interface {
	List() []*approval.Request
	Get(id string) (*approval.Request, error)
	Decide(ctx context.Context, id, identity, decision, note string) (*approval.Request, error)
}

// ApprovalArchive lists resolved approvals. Satisfied by
// *postgres.AuditStore.
type ApprovalArchive interface {
	ListArchivedApprovals(ctx context.Context, limit int) ([]postgres.ArchivedApproval, error)
}

// Handlers holds dependencies for all HTTP endpoints. archive, sink,
// and queue may be nil; the corresponding endpoints degrade gracefully.
type Handlers struct {
	gateway  Ingestor
	approver ApprovalRegistry
	archive  ApprovalArchive
	sink     audit.Sink
	queue    messagequeue.Queue
}

// NewHandlers creates the HTTP handler set.
func NewHandlers(gateway Ingestor, approver ApprovalRegistry, archive ApprovalArchive, sink audit.Sink, queue messagequeue.Queue) *Handlers {
	return &Handlers{
		gateway:  gateway,
		approver: approver,
		archive:  archive,
		sink:     sink,
		queue:    queue,
	}
}

type ackResponse struct {
	OK bool `json:"ok"`
}

// Ingest handles POST /hooks/{trigger}. The response is the fixed
// minimal acknowledgement whatever the pipeline decided; verification
// handshakes (Slack URL verification, Discord ping) are the only
// payloads answered differently, and only after the delivery passed
// signature verification.
func (h *Handlers) Ingest(w http.ResponseWriter, r *http.Request) {
	triggerName := urlParam(r, "trigger")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBodySize))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	if err := h.gateway.HandleInbound(r.Context(), triggerName, body, r.Header); err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "unknown trigger")
		case errors.Is(err, domain.ErrInvalidSignature):
			writeError(w, http.StatusUnauthorized, "unauthorized")
		case errors.Is(err, domain.ErrParse):
			writeError(w, http.StatusBadRequest, "malformed payload")
		default:
			writeInternalError(w, err)
		}
		return
	}

	if resp, ok := handshakeResponse(body); ok {
		writeJSON(w, http.StatusOK, resp)
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{OK: true})
}

// handshakeResponse recognizes source-side endpoint verification
// payloads that expect a specific echo instead of the generic ack:
// Slack's url_verification challenge and Discord's PING (type 1).
func handshakeResponse(body []byte) (any, bool) {
	var peek struct {
		Type      json.RawMessage `json:"type"`
		Challenge string          `json:"challenge"`
	}
	if err := json.Unmarshal(body, &peek); err != nil || len(peek.Type) == 0 {
		return nil, false
	}
	if string(peek.Type) == `"url_verification"` && peek.Challenge != "" {
		return map[string]string{"challenge": peek.Challenge}, true
	}
	if string(peek.Type) == "1" {
		return map[string]int{"type": 1}, true
	}
	return nil, false
}

type approvalListResponse struct {
	Approvals []*approval.Request `json:"approvals"`
	Count     int                 `json:"count"`
}

// ListApprovals handles GET /api/v1/approvals. With ?state=archived the
// resolved history is read from the archive instead of the registry.
func (h *Handlers) ListApprovals(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("state") == "archived" {
		if h.archive == nil {
			writeError(w, http.StatusNotImplemented, "approval archive is not configured")
			return
		}
		archived, err := h.archive.ListArchivedApprovals(r.Context(), queryLimit(r, 100))
		if err != nil {
			writeInternalError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"approvals": archived, "count": len(archived)})
		return
	}

	pending := h.approver.List()
	writeJSON(w, http.StatusOK, approvalListResponse{Approvals: pending, Count: len(pending)})
}

// GetApproval handles GET /api/v1/approvals/{id}.
func (h *Handlers) GetApproval(w http.ResponseWriter, r *http.Request) {
	req, err := h.approver.Get(urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "approval not found")
		return
	}
	writeJSON(w, http.StatusOK, req)
}

type decisionRequest struct {
	Decision string `json:"decision"`
	Note     string `json:"note,omitempty"`
}

// DecideApproval handles POST /api/v1/approvals/{id}/decision. The
// deciding identity is the authenticated operator name.
func (h *Handlers) DecideApproval(w http.ResponseWriter, r *http.Request) {
	operator := middleware.OperatorFromContext(r.Context())
	if operator == "" {
		writeError(w, http.StatusUnauthorized, "authorization required")
		return
	}

	body, ok := readJSON[decisionRequest](w, r, maxRequestBodySize)
	if !ok {
		return
	}
	if body.Decision != "approve" && body.Decision != "reject" {
		writeError(w, http.StatusBadRequest, "decision must be \"approve\" or \"reject\"")
		return
	}

	req, err := h.approver.Decide(r.Context(), urlParam(r, "id"), operator, body.Decision, body.Note)
	if err != nil {
		writeDomainError(w, err, "approval not found")
		return
	}
	writeJSON(w, http.StatusOK, req)
}

type auditListResponse struct {
	Entries []audit.Entry `json:"entries"`
	Count   int           `json:"count"`
}

// ListAudit handles GET /api/v1/audit with optional source, outcome,
// since (RFC 3339), and limit query parameters.
func (h *Handlers) ListAudit(w http.ResponseWriter, r *http.Request) {
	if h.sink == nil {
		writeError(w, http.StatusNotImplemented, "audit storage is not configured")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Source:  q.Get("source"),
		Outcome: q.Get("outcome"),
		Limit:   queryLimit(r, 100),
	}
	if since := q.Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC 3339")
			return
		}
		filter.Since = t
	}

	entries, err := h.sink.List(r.Context(), filter)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, auditListResponse{Entries: entries, Count: len(entries)})
}

type healthResponse struct {
	Status           string `json:"status"`
	QueueConnected   bool   `json:"queue_connected"`
	PendingApprovals int    `json:"pending_approvals"`
}

// Health handles GET /health. The gateway reports degraded, not down,
// when the executor queue is unreachable: ingestion and approvals keep
// working while dispatch is suspended.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	if h.queue != nil {
		resp.QueueConnected = h.queue.IsConnected()
		if !resp.QueueConnected {
			resp.Status = "degraded"
		}
	}
	if h.approver != nil {
		resp.PendingApprovals = len(h.approver.List())
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// queryLimit parses the limit query parameter with a default.
func queryLimit(r *http.Request, def int) int {
	s := r.URL.Query().Get("limit")
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
