package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/docbind-trust-core/api"
	"github.com/ruteri/docbind-trust-core/attestation"
	"github.com/ruteri/docbind-trust-core/documents"
	"github.com/ruteri/docbind-trust-core/governance"
	"github.com/ruteri/docbind-trust-core/interfaces"
	"github.com/ruteri/docbind-trust-core/metrics"
	"github.com/ruteri/docbind-trust-core/registry"
)

// maxBodySize is the maximum allowed request body size (1MB).
const maxBodySize = 1024 * 1024

// RequestError provides structured error information for HTTP responses.
// It includes both an HTTP status code and the underlying error.
type RequestError struct {
	// StatusCode is the HTTP status code to return.
	StatusCode int

	// Err is the underlying error.
	Err error
}

// Error returns the error message from the underlying error.
func (e *RequestError) Error() string {
	return e.Err.Error()
}

// Handler processes HTTP requests for the trust core service. It fronts the
// document registry, the component registry, and the governance machine.
type Handler struct {
	documents  *documents.Registry
	components *registry.Registry
	gov        *governance.Machine
	log        *slog.Logger
}

// NewHandler creates a new HTTP request handler with the specified
// dependencies.
func NewHandler(docs *documents.Registry, components *registry.Registry, gov *governance.Machine, log *slog.Logger) *Handler {
	return &Handler{
		documents:  docs,
		components: components,
		gov:        gov,
		log:        log,
	}
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, interfaces.ErrNotFound),
		errors.Is(err, interfaces.ErrComponentNotFound),
		errors.Is(err, interfaces.ErrNoExecutor):
		return http.StatusNotFound
	case errors.Is(err, interfaces.ErrUnauthorized),
		errors.Is(err, interfaces.ErrWrongBinding),
		errors.Is(err, interfaces.ErrEmergencyPowersExpired):
		return http.StatusForbidden
	case errors.Is(err, interfaces.ErrAlreadyExists),
		errors.Is(err, interfaces.ErrAlreadyRegistered),
		errors.Is(err, interfaces.ErrSameOwner),
		errors.Is(err, interfaces.ErrReentrantCall),
		errors.Is(err, interfaces.ErrResolverConfigurationLocked),
		errors.Is(err, interfaces.ErrIdentityChanged),
		errors.Is(err, interfaces.ErrInvalidStageTransition),
		errors.Is(err, interfaces.ErrOssified):
		return http.StatusConflict
	case errors.Is(err, interfaces.ErrSystemPaused):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}

func (h *Handler) writeError(w http.ResponseWriter, operation, subject string, err error) {
	status := statusFor(err)
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		status = reqErr.StatusCode
	}

	h.log.Debug("request failed",
		slog.String("operation", operation),
		slog.String("subject", subject),
		slog.String("err", err.Error()),
	)
	metrics.OperationsTotal.WithLabelValues(operation, "error").Inc()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(api.ErrorResponse{Error: err.Error(), Operation: operation, Subject: subject}) //nolint:errcheck
}

func (h *Handler) writeJSON(w http.ResponseWriter, operation string, status int, body any) {
	metrics.OperationsTotal.WithLabelValues(operation, "success").Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body) //nolint:errcheck
}

func decodeBody(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return &RequestError{StatusCode: http.StatusBadRequest, Err: fmt.Errorf("failed to read request body: %w", err)}
	}
	if err := json.Unmarshal(body, v); err != nil {
		return &RequestError{StatusCode: http.StatusBadRequest, Err: fmt.Errorf("invalid request body: %w", err)}
	}
	return nil
}

func documentIDParam(r *http.Request) (interfaces.DocumentID, error) {
	id, err := interfaces.NewDocumentIDFromHex(chi.URLParam(r, "document_id"))
	if err != nil {
		return interfaces.DocumentID{}, &RequestError{StatusCode: http.StatusBadRequest, Err: err}
	}
	return id, nil
}

func componentIDParam(r *http.Request) (interfaces.ComponentID, error) {
	id, err := interfaces.NewComponentIDFromHex(chi.URLParam(r, "component_id"))
	if err != nil {
		return interfaces.ComponentID{}, &RequestError{StatusCode: http.StatusBadRequest, Err: err}
	}
	return id, nil
}

// HandleRegisterDocument handles POST /api/v1/documents.
func (h *Handler) HandleRegisterDocument(w http.ResponseWriter, r *http.Request) {
	var req api.RegisterDocumentRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, "registerDocument", "", err)
		return
	}

	id, err := h.documents.Register(r.Context(), req.Caller, req.ContentHash, req.TokenizerBinding, req.PrimaryResolverID, req.AdditionalResolverIDs, req.Executor)
	if err != nil {
		h.writeError(w, "registerDocument", req.ContentHash.String(), err)
		return
	}
	h.writeJSON(w, "registerDocument", http.StatusCreated, api.RegisterDocumentResponse{DocumentID: id})
}

// HandleGetDocument handles GET /api/v1/documents/{document_id}.
func (h *Handler) HandleGetDocument(w http.ResponseWriter, r *http.Request) {
	id, err := documentIDParam(r)
	if err != nil {
		h.writeError(w, "getDocument", "", err)
		return
	}

	record, err := h.documents.Document(id)
	if err != nil {
		h.writeError(w, "getDocument", id.String(), err)
		return
	}
	h.writeJSON(w, "getDocument", http.StatusOK, record)
}

// HandleTransferOwnership handles POST /api/v1/documents/{document_id}/transfer.
func (h *Handler) HandleTransferOwnership(w http.ResponseWriter, r *http.Request) {
	id, err := documentIDParam(r)
	if err != nil {
		h.writeError(w, "transferDocumentOwnership", "", err)
		return
	}

	var req api.TransferOwnershipRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, "transferDocumentOwnership", id.String(), err)
		return
	}

	if err := h.documents.TransferOwnership(r.Context(), req.Caller, id, req.NewOwner, req.Reason); err != nil {
		h.writeError(w, "transferDocumentOwnership", id.String(), err)
		return
	}
	h.writeJSON(w, "transferDocumentOwnership", http.StatusOK, map[string]string{"status": "transferred"})
}

// HandleAuthorizeExecutor handles POST /api/v1/documents/{document_id}/executor.
func (h *Handler) HandleAuthorizeExecutor(w http.ResponseWriter, r *http.Request) {
	id, err := documentIDParam(r)
	if err != nil {
		h.writeError(w, "authorizeExecutor", "", err)
		return
	}

	var req api.AuthorizeExecutorRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, "authorizeExecutor", id.String(), err)
		return
	}

	if err := h.documents.AuthorizeExecutor(r.Context(), req.Caller, id, req.Executor, req.Trust, req.ComponentID); err != nil {
		h.writeError(w, "authorizeExecutor", id.String(), err)
		return
	}
	h.writeJSON(w, "authorizeExecutor", http.StatusOK, map[string]string{"status": "authorized"})
}

// HandleRevokeExecutor handles DELETE /api/v1/documents/{document_id}/executor.
func (h *Handler) HandleRevokeExecutor(w http.ResponseWriter, r *http.Request) {
	id, err := documentIDParam(r)
	if err != nil {
		h.writeError(w, "revokeExecutor", "", err)
		return
	}

	var req api.RevokeExecutorRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, "revokeExecutor", id.String(), err)
		return
	}

	if err := h.documents.RevokeExecutor(r.Context(), req.Caller, id); err != nil {
		h.writeError(w, "revokeExecutor", id.String(), err)
		return
	}
	h.writeJSON(w, "revokeExecutor", http.StatusOK, map[string]string{"status": "revoked"})
}

// HandleSetPrimaryResolver handles PUT /api/v1/documents/{document_id}/resolvers/primary.
func (h *Handler) HandleSetPrimaryResolver(w http.ResponseWriter, r *http.Request) {
	h.handleResolverUpdate(w, r, "setPrimaryResolver", h.documents.SetPrimaryResolver)
}

// HandleAddAdditionalResolver handles POST /api/v1/documents/{document_id}/resolvers/additional.
func (h *Handler) HandleAddAdditionalResolver(w http.ResponseWriter, r *http.Request) {
	h.handleResolverUpdate(w, r, "addAdditionalResolver", h.documents.AddAdditionalResolver)
}

func (h *Handler) handleResolverUpdate(w http.ResponseWriter, r *http.Request, operation string, apply func(ctx context.Context, caller interfaces.Identity, id interfaces.DocumentID, resolverID interfaces.ComponentID) error) {
	id, err := documentIDParam(r)
	if err != nil {
		h.writeError(w, operation, "", err)
		return
	}

	var req api.SetResolverRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, operation, id.String(), err)
		return
	}

	if err := apply(r.Context(), req.Caller, id, req.ResolverID); err != nil {
		h.writeError(w, operation, id.String(), err)
		return
	}
	h.writeJSON(w, operation, http.StatusOK, map[string]string{"status": "configured"})
}

// HandleLockResolvers handles POST /api/v1/documents/{document_id}/resolvers/lock.
func (h *Handler) HandleLockResolvers(w http.ResponseWriter, r *http.Request) {
	id, err := documentIDParam(r)
	if err != nil {
		h.writeError(w, "lockResolvers", "", err)
		return
	}

	var req api.LockResolversRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, "lockResolvers", id.String(), err)
		return
	}

	if err := h.documents.LockResolvers(r.Context(), req.Caller, id); err != nil {
		h.writeError(w, "lockResolvers", id.String(), err)
		return
	}
	h.writeJSON(w, "lockResolvers", http.StatusOK, map[string]string{"status": "locked"})
}

// HandleEmergencyUnlock handles POST /api/v1/documents/{document_id}/resolvers/emergency-unlock.
func (h *Handler) HandleEmergencyUnlock(w http.ResponseWriter, r *http.Request) {
	id, err := documentIDParam(r)
	if err != nil {
		h.writeError(w, "emergencyUnlockResolvers", "", err)
		return
	}

	var req api.EmergencyUnlockRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, "emergencyUnlockResolvers", id.String(), err)
		return
	}

	if err := h.documents.EmergencyUnlockResolvers(r.Context(), req.Caller, id, req.Justification); err != nil {
		h.writeError(w, "emergencyUnlockResolvers", id.String(), err)
		return
	}
	h.writeJSON(w, "emergencyUnlockResolvers", http.StatusOK, map[string]string{"status": "unlocked"})
}

// HandleVerifyCapability handles POST /api/v1/documents/{document_id}/verify.
// Invalid proofs are an expected outcome and return 200 with granted=false.
func (h *Handler) HandleVerifyCapability(w http.ResponseWriter, r *http.Request) {
	id, err := documentIDParam(r)
	if err != nil {
		h.writeError(w, "verifyCapability", "", err)
		return
	}

	var req api.VerifyCapabilityRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, "verifyCapability", id.String(), err)
		return
	}

	claimID, err := attestation.NewClaimIDFromHex(req.ClaimID)
	if err != nil {
		h.writeError(w, "verifyCapability", id.String(), &RequestError{StatusCode: http.StatusBadRequest, Err: err})
		return
	}

	verdict := h.documents.VerifyCapability(r.Context(), attestation.Proof{ClaimID: claimID}, req.Claimant, id, req.Required)
	if verdict.Granted {
		metrics.VerificationsTotal.WithLabelValues("granted", "").Inc()
	} else {
		metrics.VerificationsTotal.WithLabelValues("rejected", verdict.FailedCheck).Inc()
	}
	h.writeJSON(w, "verifyCapability", http.StatusOK, api.VerifyCapabilityResponse{
		Granted:      verdict.Granted,
		Capabilities: verdict.Capabilities,
		FailedCheck:  verdict.FailedCheck,
	})
}

// componentMutationAllowed gates component lifecycle changes on governance:
// the system-wide pause stops them like every other mutating operation, and
// the frozen stage rules them out permanently.
func (h *Handler) componentMutationAllowed() error {
	if err := h.gov.CheckOperational(); err != nil {
		return err
	}
	return h.gov.CheckUpgradeAllowed()
}

// HandleRegisterComponent handles POST /api/v1/components.
func (h *Handler) HandleRegisterComponent(w http.ResponseWriter, r *http.Request) {
	var req api.RegisterComponentRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, "registerComponent", "", err)
		return
	}

	if err := h.componentMutationAllowed(); err != nil {
		h.writeError(w, "registerComponent", req.ID.String(), err)
		return
	}

	record, err := h.components.Register(r.Context(), req.ID, req.Ref, req.Type, req.Description)
	if err != nil {
		h.writeError(w, "registerComponent", req.ID.String(), err)
		return
	}
	h.writeJSON(w, "registerComponent", http.StatusCreated, record)
}

// HandleResolveComponent handles GET /api/v1/components/{component_id}.
// Unknown, inactive, and digest-mismatched components all return 404: the
// caller decides locally whether unavailability is fatal.
func (h *Handler) HandleResolveComponent(w http.ResponseWriter, r *http.Request) {
	id, err := componentIDParam(r)
	if err != nil {
		h.writeError(w, "resolveComponent", "", err)
		return
	}

	record := h.components.Resolve(r.Context(), id)
	if record == nil {
		h.writeError(w, "resolveComponent", id.String(), interfaces.ErrComponentNotFound)
		return
	}
	h.writeJSON(w, "resolveComponent", http.StatusOK, record)
}

// HandleDeactivateComponent handles POST /api/v1/components/{component_id}/deactivate.
func (h *Handler) HandleDeactivateComponent(w http.ResponseWriter, r *http.Request) {
	id, err := componentIDParam(r)
	if err != nil {
		h.writeError(w, "deactivateComponent", "", err)
		return
	}

	var req api.DeactivateComponentRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, "deactivateComponent", id.String(), err)
		return
	}

	if err := h.componentMutationAllowed(); err != nil {
		h.writeError(w, "deactivateComponent", id.String(), err)
		return
	}

	if err := h.components.Deactivate(r.Context(), id, req.Reason); err != nil {
		h.writeError(w, "deactivateComponent", id.String(), err)
		return
	}
	h.writeJSON(w, "deactivateComponent", http.StatusOK, map[string]string{"status": "deactivated"})
}

// HandleReactivateComponent handles POST /api/v1/components/{component_id}/reactivate.
func (h *Handler) HandleReactivateComponent(w http.ResponseWriter, r *http.Request) {
	id, err := componentIDParam(r)
	if err != nil {
		h.writeError(w, "reactivateComponent", "", err)
		return
	}

	if err := h.componentMutationAllowed(); err != nil {
		h.writeError(w, "reactivateComponent", id.String(), err)
		return
	}

	if err := h.components.Reactivate(r.Context(), id); err != nil {
		h.writeError(w, "reactivateComponent", id.String(), err)
		return
	}
	h.writeJSON(w, "reactivateComponent", http.StatusOK, map[string]string{"status": "reactivated"})
}

// HandleListComponents handles GET /api/v1/components?type=&offset=&limit=.
func (h *Handler) HandleListComponents(w http.ResponseWriter, r *http.Request) {
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = registry.DefaultMaxPageSize
	}

	var (
		records []*interfaces.ComponentRecord
		err     error
	)
	if typeParam := r.URL.Query().Get("type"); typeParam != "" {
		var componentType interfaces.ComponentType
		componentType, err = interfaces.ParseComponentType(typeParam)
		if err != nil {
			h.writeError(w, "listComponents", "", &RequestError{StatusCode: http.StatusBadRequest, Err: err})
			return
		}
		records = h.components.ListByType(r.Context(), componentType)
	} else {
		records, err = h.components.List(r.Context(), offset, limit)
		if err != nil {
			h.writeError(w, "listComponents", "", err)
			return
		}
	}
	h.writeJSON(w, "listComponents", http.StatusOK, api.ComponentListResponse{Components: records, Total: h.components.Count(r.Context())})
}

// HandleGovernanceState handles GET /api/v1/governance.
func (h *Handler) HandleGovernanceState(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, "governanceState", http.StatusOK, h.gov.State())
}

// HandleGovernanceTransition handles POST /api/v1/governance/transition.
func (h *Handler) HandleGovernanceTransition(w http.ResponseWriter, r *http.Request) {
	var req api.GovernanceTransitionRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, "transitionGovernanceStage", "", err)
		return
	}

	if err := h.gov.Transition(r.Context(), req.Caller, req.NextStage, req.NewAuthority); err != nil {
		h.writeError(w, "transitionGovernanceStage", req.NextStage.String(), err)
		return
	}
	h.writeJSON(w, "transitionGovernanceStage", http.StatusOK, h.gov.State())
}

// HandleFreezeGovernance handles POST /api/v1/governance/freeze.
func (h *Handler) HandleFreezeGovernance(w http.ResponseWriter, r *http.Request) {
	var req api.FreezeGovernanceRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, "freezeGovernance", "", err)
		return
	}

	if err := h.gov.Freeze(r.Context(), req.Caller); err != nil {
		h.writeError(w, "freezeGovernance", "", err)
		return
	}
	h.writeJSON(w, "freezeGovernance", http.StatusOK, h.gov.State())
}

// HandleSetPause handles POST /api/v1/governance/pause.
func (h *Handler) HandleSetPause(w http.ResponseWriter, r *http.Request) {
	var req api.SetPauseRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, "setPaused", "", err)
		return
	}

	var err error
	if req.Paused {
		err = h.gov.Pause(r.Context(), req.Caller)
	} else {
		err = h.gov.Unpause(r.Context(), req.Caller)
	}
	if err != nil {
		h.writeError(w, "setPaused", "", err)
		return
	}
	h.writeJSON(w, "setPaused", http.StatusOK, map[string]bool{"paused": h.gov.Paused()})
}
