// Package web provides HTTP handlers and REST API endpoints for conversational workflows.
package web

import (
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/dukex/loyalflow/pkg/models"
	"github.com/dukex/loyalflow/pkg/persistence"
	"github.com/dukex/loyalflow/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

type APIHandlers struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	publishing  *services.Publishing
	executions  *services.Executions
	restarts    *services.Restarts
	variables   *services.Variables
	validator   *validator.Validate
}

func NewAPIHandlers(
	logger *slog.Logger,
	persistence persistence.Persistence,
	publishing *services.Publishing,
	executions *services.Executions,
	restarts *services.Restarts,
	variables *services.Variables,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		logger:      logger.With("module", "web"),
		persistence: persistence,
		publishing:  publishing,
		executions:  executions,
		restarts:    restarts,
		variables:   variables,
		validator:   validator,
	}
}

// RegisterRoutes mounts every endpoint on router.
func (h *APIHandlers) RegisterRoutes(router fiber.Router) {
	w := router.Group("/workflows/:workflowId")
	w.Post("/versions", h.PublishVersion)
	w.Get("/versions", h.ListVersions)
	w.Get("/versions/:version", h.GetVersion)
	w.Post("/executions", h.StartExecution)
	w.Get("/executions", h.ListExecutions)

	e := router.Group("/executions/:id")
	e.Get("/", h.GetExecution)
	e.Post("/resume", h.ResumeExecution)
	e.Post("/restart", h.RestartExecution)
	e.Post("/cancel", h.CancelExecution)

	v := router.Group("/variables/:scope")
	v.Get("/", h.ListVariables)
	v.Get("/:key", h.GetVariable)
	v.Put("/:key", h.SetVariable)
	v.Delete("/:key", h.DeleteVariable)

	router.Get("/health", h.HealthCheck)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	httpStatus := fiber.StatusOK
	repository := "ok"

	if err := h.persistence.HealthCheck(c.Context()); err != nil {
		h.logger.WarnContext(c.Context(), "Persistence health check failed", "error", err)

		status = "unhealthy"
		httpStatus = fiber.StatusServiceUnavailable
		repository = err.Error()
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status": status,
		"checkers": fiber.Map{
			"persistence": repository,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) PublishVersion(c fiber.Ctx) error {
	var draft models.WorkflowVersion
	if err := c.Bind().JSON(&draft); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	version, err := h.publishing.Publish(c.Context(), c.Params("workflowId"), &draft)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(version)
}

func (h *APIHandlers) ListVersions(c fiber.Ctx) error {
	versions, err := h.publishing.ListVersions(c.Context(), c.Params("workflowId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"versions": versions})
}

func (h *APIHandlers) GetVersion(c fiber.Ctx) error {
	version, err := h.publishing.GetVersion(c.Context(), c.Params("workflowId"), models.VersionRef(c.Params("version")))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(version)
}

func (h *APIHandlers) StartExecution(c fiber.Ctx) error {
	var req StartExecutionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	exec, err := h.executions.Start(c.Context(), req.toService(c.Params("workflowId")))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(exec)
}

func (h *APIHandlers) ListExecutions(c fiber.Ctx) error {
	opts, err := parseListExecutions(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	page, err := h.executions.List(c.Context(), opts)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(page)
}

// parseListExecutions reads the listing filters from the query string.
func parseListExecutions(c fiber.Ctx) (persistence.ListExecutionsOptions, error) {
	opts := persistence.ListExecutionsOptions{
		WorkflowID: c.Params("workflowId"),
		UserID:     c.Query("userId"),
		SessionID:  c.Query("sessionId"),
		Search:     c.Query("search"),
	}

	if status := c.Query("status"); status != "" {
		for _, s := range strings.Split(status, ",") {
			opts.Statuses = append(opts.Statuses, models.ExecutionStatus(strings.TrimSpace(s)))
		}
	}

	for name, target := range map[string]**time.Time{"from": &opts.From, "to": &opts.To} {
		raw := c.Query(name)
		if raw == "" {
			continue
		}

		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return opts, err
		}

		*target = &t
	}

	for name, target := range map[string]*int{"page": &opts.Page, "limit": &opts.Limit} {
		raw := c.Query(name)
		if raw == "" {
			continue
		}

		n, err := strconv.Atoi(raw)
		if err != nil {
			return opts, err
		}

		*target = n
	}

	return opts, nil
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	details, err := h.executions.Get(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(details)
}

func (h *APIHandlers) ResumeExecution(c fiber.Ctx) error {
	var event models.ResumeEvent
	if err := c.Bind().JSON(&event); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(event); err != nil {
		return badRequest(c, err.Error())
	}

	exec, err := h.executions.Resume(c.Context(), c.Params("id"), event)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(exec)
}

func (h *APIHandlers) RestartExecution(c fiber.Ctx) error {
	var req RestartExecutionRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	result, err := h.restarts.Restart(c.Context(), services.RestartRequest{
		ExecutionID:    c.Params("id"),
		FromNodeID:     req.FromNodeID,
		ResetVariables: req.ResetVariables,
		SessionID:      req.SessionID,
		SkipCompleted:  req.SkipCompleted,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(result)
}

func (h *APIHandlers) CancelExecution(c fiber.Ctx) error {
	exec, err := h.executions.Cancel(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(exec)
}

func (h *APIHandlers) ListVariables(c fiber.Ctx) error {
	vars, err := h.variables.List(c.Context(), c.Params("scope"), c.Query("owner"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"variables": vars})
}

func (h *APIHandlers) GetVariable(c fiber.Ctx) error {
	variable, err := h.variables.Get(c.Context(), c.Params("scope"), c.Query("owner"), c.Params("key"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(variable)
}

func (h *APIHandlers) SetVariable(c fiber.Ctx) error {
	var req SetVariableRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if req.Value == nil {
		return badRequest(c, "value is required")
	}

	variable, err := h.variables.Set(c.Context(), c.Params("scope"), c.Query("owner"), c.Params("key"), req.Value)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(variable)
}

func (h *APIHandlers) DeleteVariable(c fiber.Ctx) error {
	if err := h.variables.Delete(c.Context(), c.Params("scope"), c.Query("owner"), c.Params("key")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}
