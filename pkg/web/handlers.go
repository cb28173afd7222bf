// Package web provides HTTP handlers and REST API endpoints for document
// version management.
package web

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/veridoc/veridoc/pkg/models"
	"github.com/veridoc/veridoc/pkg/persistence"
	"github.com/veridoc/veridoc/pkg/services"
)

// Identity headers set by the authenticating gateway in front of the API.
const (
	HeaderUserID    = "X-User-Id"
	HeaderUserName  = "X-User-Name"
	HeaderUserRoles = "X-User-Roles"
)

type APIHandlers struct {
	lockService       *services.Locks
	editingService    *services.Editing
	transitionService *services.Transitions
	reviewService     *services.Review
	persistence       persistence.Persistence
	validator         *validator.Validate
}

func NewAPIHandlers(
	lockService *services.Locks,
	editingService *services.Editing,
	transitionService *services.Transitions,
	reviewService *services.Review,
	p persistence.Persistence,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		lockService:       lockService,
		editingService:    editingService,
		transitionService: transitionService,
		reviewService:     reviewService,
		persistence:       p,
		validator:         validator,
	}
}

// actorFromHeaders builds the acting identity from the gateway headers.
func actorFromHeaders(c fiber.Ctx) models.Actor {
	actor := models.Actor{
		ID:   c.Get(HeaderUserID),
		Name: c.Get(HeaderUserName),
	}

	for _, role := range strings.Split(c.Get(HeaderUserRoles), ",") {
		role = strings.TrimSpace(role)
		if role != "" {
			actor.Roles = append(actor.Roles, models.Role(role))
		}
	}

	return actor
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	message := "VeriDoc API is healthy"
	httpStatus := http.StatusOK

	err := h.persistence.HealthCheck(c.Context())
	if err != nil {
		status = "unhealthy"
		message = "VeriDoc API is unhealthy"
		httpStatus = http.StatusInternalServerError
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":    status,
		"message":   message,
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) GetVersion(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Version ID is required")
	}

	version, err := h.editingService.GetVersion(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(TransformVersionResponse(version, true))
}

func (h *APIHandlers) ListVersions(c fiber.Ctx) error {
	documentID := c.Params("documentId")
	if documentID == "" {
		return badRequest(c, "Document ID is required")
	}

	versions, err := h.editingService.ListVersions(c.Context(), documentID)
	if err != nil {
		return handleServiceError(c, err)
	}

	responses := make([]VersionResponse, len(versions))
	for i, version := range versions {
		responses[i] = TransformVersionResponse(version, false)
	}

	return c.JSON(fiber.Map{
		"document_id": documentID,
		"versions":    responses,
	})
}

func (h *APIHandlers) GetLatestVersion(c fiber.Ctx) error {
	documentID := c.Params("documentId")
	if documentID == "" {
		return badRequest(c, "Document ID is required")
	}

	version, err := h.editingService.LatestVersion(c.Context(), documentID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(TransformVersionResponse(version, true))
}

func (h *APIHandlers) AcquireLock(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Version ID is required")
	}

	var req AcquireLockRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	lock, err := h.lockService.Acquire(c.Context(), id, actorFromHeaders(c), req.SessionID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(TransformLockResponse(lock))
}

func (h *APIHandlers) Heartbeat(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Version ID is required")
	}

	var req HeartbeatRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	lock, err := h.lockService.Heartbeat(c.Context(), id, req.Token)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(TransformLockResponse(lock))
}

func (h *APIHandlers) ReleaseLock(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Version ID is required")
	}

	var req ReleaseLockRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	err := h.lockService.Release(c.Context(), id, req.Token, actorFromHeaders(c))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) ForceReleaseLock(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Version ID is required")
	}

	err := h.lockService.ForceRelease(c.Context(), id, actorFromHeaders(c))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) InspectLock(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Version ID is required")
	}

	status, err := h.lockService.Inspect(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(status)
}

func (h *APIHandlers) SaveContent(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Version ID is required")
	}

	var req SaveContentRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	version, err := h.editingService.Save(c.Context(), services.SaveRequest{
		VersionID:       id,
		Actor:           actorFromHeaders(c),
		LockToken:       req.LockToken,
		Content:         req.Content,
		BaseFingerprint: req.BaseFingerprint,
		Autosave:        req.Autosave,
		ChangeSummary:   req.ChangeSummary,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(TransformVersionResponse(version, false))
}

func (h *APIHandlers) ApplyTransition(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Version ID is required")
	}

	var req TransitionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	version, err := h.transitionService.Apply(c.Context(), models.TransitionRequest{
		VersionID: id,
		Action:    req.Action,
		Actor:     actorFromHeaders(c),
		Reason:    req.Reason,
		Signature: req.Signature,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(TransformVersionResponse(version, false))
}

func (h *APIHandlers) CreateVersion(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Version ID is required")
	}

	var req CreateVersionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	draft, err := h.transitionService.CreateNewVersion(c.Context(), services.NewVersionRequest{
		ParentVersionID: id,
		Actor:           actorFromHeaders(c),
		ChangeType:      req.ChangeType,
		ChangeReason:    req.ChangeReason,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(TransformVersionResponse(draft, true))
}

func (h *APIHandlers) AddComment(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Version ID is required")
	}

	var req CreateCommentRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	actor := actorFromHeaders(c)

	comment, err := h.reviewService.AddComment(c.Context(), &models.Comment{
		VersionID:      id,
		UserID:         actor.ID,
		Text:           req.Text,
		SelectedText:   req.SelectedText,
		SelectionStart: req.SelectionStart,
		SelectionEnd:   req.SelectionEnd,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(comment)
}

func (h *APIHandlers) ListComments(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Version ID is required")
	}

	comments, err := h.reviewService.ListComments(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"version_id": id,
		"comments":   comments,
	})
}

func (h *APIHandlers) ResolveComment(c fiber.Ctx) error {
	id := c.Params("commentId")
	if id == "" {
		return badRequest(c, "Comment ID is required")
	}

	err := h.reviewService.ResolveComment(c.Context(), id, actorFromHeaders(c))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) RecordView(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Version ID is required")
	}

	err := h.reviewService.RecordView(c.Context(), id, actorFromHeaders(c))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) GetAuditTrail(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Version ID is required")
	}

	entries, err := h.persistence.Audit().ListByEntity(c.Context(), services.EntityTypeVersion, id)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"version_id": id,
		"entries":    entries,
	})
}
