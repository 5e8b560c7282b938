package web

import (
	"github.com/dukex/loyalflow/pkg/services"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(fiber.StatusBadRequest).
		WithInstance(c.Path()).
		WithType(services.CodeValidation).
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

// statusOf maps a service error code to its HTTP status.
func statusOf(code string) int {
	switch code {
	case services.CodeValidation:
		return fiber.StatusBadRequest
	case services.CodeNotFound:
		return fiber.StatusNotFound
	case services.CodeConflict:
		return fiber.StatusConflict
	case services.CodeDefinition:
		return fiber.StatusUnprocessableEntity
	default:
		return fiber.StatusInternalServerError
	}
}

// handleServiceError renders err as a problem document. Internal errors do
// not expose their details.
func handleServiceError(c fiber.Ctx, err error) error {
	code := services.CodeOf(err)
	status := statusOf(code)

	problem := problems.NewStatusProblem(status).
		WithInstance(c.Path()).
		WithType(code)

	if status == fiber.StatusInternalServerError {
		problem = problem.WithDetail("internal server error")
	} else {
		problem = problem.WithDetail(err.Error())
	}

	return c.Status(status).JSON(problem)
}
