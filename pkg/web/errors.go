package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/veridoc/veridoc/pkg/persistence"
	"github.com/veridoc/veridoc/pkg/services"
	"github.com/veridoc/veridoc/pkg/workflow"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleServiceError provides typed error handling for service layer errors.
func handleServiceError(c fiber.Ctx, err error) error {
	var (
		heldErr     *persistence.LockHeldError
		mismatchErr *persistence.FingerprintMismatchError
		guardErr    *workflow.GuardError
		unknownErr  *workflow.UnknownTransitionError
	)

	switch {
	case errors.As(err, &heldErr):
		// 423 Locked: someone else holds a live edit lock.
		problem := problems.NewStatusProblem(fiber.StatusLocked).
			WithInstance(c.Path()).
			WithType("lock_held").
			WithDetail(heldErr.Error())

		return c.Status(fiber.StatusLocked).JSON(problem)

	case errors.As(err, &mismatchErr):
		problem := problems.NewStatusProblem(409).
			WithInstance(c.Path()).
			WithType("save_conflict").
			WithDetail(mismatchErr.Error())

		return c.Status(fiber.StatusConflict).JSON(problem)

	case persistence.IsLockTokenInvalid(err):
		// The caller lost the lock and must re-acquire before retrying.
		problem := problems.NewStatusProblem(409).
			WithInstance(c.Path()).
			WithType("lock_lost").
			WithDetail("edit lock expired or was taken over; re-acquire and retry")

		return c.Status(fiber.StatusConflict).JSON(problem)

	case errors.As(err, &guardErr):
		problem := problems.NewStatusProblem(403).
			WithInstance(c.Path()).
			WithType("guard_failed:" + string(guardErr.Reason)).
			WithDetail(guardErr.Error())

		return c.Status(fiber.StatusForbidden).JSON(problem)

	case errors.Is(err, services.ErrAdminRequired):
		problem := problems.NewStatusProblem(403).
			WithInstance(c.Path()).
			WithType("admin_required").
			WithDetail(err.Error())

		return c.Status(fiber.StatusForbidden).JSON(problem)

	case errors.As(err, &unknownErr):
		// Requesting an action that is not defined for the current status is
		// a usage error, not a guard failure.
		problem := problems.NewStatusProblem(409).
			WithInstance(c.Path()).
			WithType("invalid_transition").
			WithDetail(unknownErr.Error())

		return c.Status(fiber.StatusConflict).JSON(problem)

	case services.IsValidationError(err):
		problem := problems.NewStatusProblem(400).
			WithInstance(c.Path()).
			WithType("validation_error").
			WithDetail(err.Error())

		return c.Status(fiber.StatusBadRequest).JSON(problem)

	case services.IsConflictError(err):
		problem := problems.NewStatusProblem(409).
			WithInstance(c.Path()).
			WithType("conflict").
			WithDetail(err.Error())

		return c.Status(fiber.StatusConflict).JSON(problem)

	case persistence.IsVersionNotFound(err):
		problem := problems.NewStatusProblem(404).
			WithInstance(c.Path()).
			WithType("version_not_found").
			WithDetail("document version not found")

		return c.Status(fiber.StatusNotFound).JSON(problem)

	case errors.Is(err, persistence.ErrDocumentNotFound):
		problem := problems.NewStatusProblem(404).
			WithInstance(c.Path()).
			WithType("document_not_found").
			WithDetail("document not found")

		return c.Status(fiber.StatusNotFound).JSON(problem)

	case errors.Is(err, persistence.ErrLockNotFound):
		problem := problems.NewStatusProblem(404).
			WithInstance(c.Path()).
			WithType("lock_not_found").
			WithDetail("edit lock not found")

		return c.Status(fiber.StatusNotFound).JSON(problem)

	default:
		// Log unexpected errors but don't expose details
		problem := problems.NewStatusProblem(500).
			WithInstance(c.Path()).
			WithType("internal_error").
			WithError(err)

		return c.Status(fiber.StatusInternalServerError).JSON(problem)
	}
}
