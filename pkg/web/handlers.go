package web

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/dukex/flowrun/pkg/connection"
	"github.com/dukex/flowrun/pkg/eventbus"
	"github.com/dukex/flowrun/pkg/events"
	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/persistence"
	"github.com/dukex/flowrun/pkg/ratelimit"
	"github.com/dukex/flowrun/pkg/workflow"
)

const DefaultStreamTimeout = 5 * time.Minute

// Catalog is the read side of workflow and project storage.
type Catalog interface {
	WorkflowByRoute(ctx context.Context, tenant, projectID, method, path string) (*models.Workflow, error)
	ProjectByID(ctx context.Context, tenant, projectID string) (*models.Project, error)
	HealthCheck(ctx context.Context) error
}

// WorkflowValidator checks a stored workflow before it runs.
type WorkflowValidator interface {
	ValidateWorkflow(workflow *models.Workflow) error
}

// Runner executes a workflow synchronously.
type Runner interface {
	Execute(
		ctx context.Context,
		wf *models.Workflow,
		input any,
		requestCtx *models.RequestContext,
		opts ...workflow.RunOption,
	) (*models.TerminalResult, error)
}

// Dependencies wires the handlers. Publisher, Bindings and Relay are only
// needed by the real-time endpoints.
type Dependencies struct {
	Logger        *slog.Logger
	Catalog       Catalog
	Workflows     WorkflowValidator
	Runner        Runner
	Publisher     eventbus.EventPublisher
	Limiter       ratelimit.Limiter
	Bindings      connection.BindingStore
	Relay         connection.Relay
	Validator     *validator.Validate
	StreamTimeout time.Duration
}

type Handlers struct {
	logger        *slog.Logger
	catalog       Catalog
	workflows     WorkflowValidator
	runner        Runner
	publisher     eventbus.EventPublisher
	limiter       ratelimit.Limiter
	bindings      connection.BindingStore
	relay         connection.Relay
	validator     *validator.Validate
	streamTimeout time.Duration
}

func NewHandlers(deps Dependencies) *Handlers {
	h := &Handlers{
		logger:        deps.Logger.With("module", "web"),
		catalog:       deps.Catalog,
		workflows:     deps.Workflows,
		runner:        deps.Runner,
		publisher:     deps.Publisher,
		limiter:       deps.Limiter,
		bindings:      deps.Bindings,
		relay:         deps.Relay,
		validator:     deps.Validator,
		streamTimeout: deps.StreamTimeout,
	}

	if h.limiter == nil {
		h.limiter = ratelimit.NewMemoryLimiter(ratelimit.DefaultWindow)
	}

	if h.validator == nil {
		h.validator = validator.New(validator.WithRequiredStructEnabled())
	}

	if h.streamTimeout <= 0 {
		h.streamTimeout = DefaultStreamTimeout
	}

	return h
}

// Trigger runs the workflow answering the request and replies with its
// terminal result.
func (h *Handlers) Trigger(c fiber.Ctx) error {
	requestCtx := newRequestContext(c)

	wf, err := h.admit(c, requestCtx)
	if err != nil {
		return err
	}

	result, err := h.runner.Execute(c.Context(), wf, requestCtx.Body, requestCtx)
	if err != nil {
		return err
	}

	if result.Token != "" {
		c.Set(fiber.HeaderAuthorization, result.Token)
	}

	if result.Data == nil {
		return c.SendStatus(result.Status)
	}

	return c.Status(result.Status).JSON(result.Data)
}

// RealtimeTrigger hands the execution to an orchestrator and replies 202 with
// the execution id the client must connect with.
func (h *Handlers) RealtimeTrigger(c fiber.Ctx) error {
	if h.publisher == nil {
		return fiber.NewError(fiber.StatusNotImplemented, "real-time execution is not enabled")
	}

	requestCtx := newRequestContext(c)

	wf, err := h.admit(c, requestCtx)
	if err != nil {
		return err
	}

	executionID := uuid.NewString()

	request := events.ExecutionRequested{
		BaseEvent:      events.NewBaseEvent(events.ExecutionRequestedEvent, wf.ID),
		ExecutionID:    executionID,
		Workflow:       *wf,
		InitialInput:   requestCtx.Body,
		RequestContext: *requestCtx,
	}

	if err := h.publisher.Publish(c.Context(), executionID, request); err != nil {
		return fmt.Errorf("failed to publish execution request: %w", err)
	}

	h.logger.InfoContext(c.Context(), "Execution requested",
		"execution_id", executionID,
		"workflow_id", wf.ID,
	)

	return c.Status(fiber.StatusAccepted).JSON(RealtimeAccepted{
		ExecutionID: executionID,
		EventsURL:   "/executions/" + executionID + "/events",
	})
}

// Connect records a binding created by an external connection gateway.
func (h *Handlers) Connect(c fiber.Ctx) error {
	if h.bindings == nil {
		return fiber.NewError(fiber.StatusNotImplemented, "real-time execution is not enabled")
	}

	var req ConnectRequest
	if err := c.Bind().JSON(&req); err != nil {
		return models.NewError(models.ErrValidationFailed, "invalid JSON body")
	}

	if err := h.validator.Struct(req); err != nil {
		return models.WrapError(models.ErrValidationFailed, err)
	}

	if req.ConnectionID == "" {
		req.ConnectionID = uuid.NewString()
	}

	binding := models.ConnectionBinding{
		ExecutionID:  req.ExecutionID,
		ConnectionID: req.ConnectionID,
		CreatedAt:    time.Now().UTC(),
	}

	if err := h.bindings.Put(c.Context(), binding); err != nil {
		return fmt.Errorf("failed to store connection binding: %w", err)
	}

	return c.Status(fiber.StatusCreated).JSON(ConnectResponse(req))
}

// Disconnect drops every binding held by a connection.
func (h *Handlers) Disconnect(c fiber.Ctx) error {
	if h.bindings == nil {
		return fiber.NewError(fiber.StatusNotImplemented, "real-time execution is not enabled")
	}

	connectionID := c.Params("connectionId")
	if connectionID == "" {
		return models.NewError(models.ErrMissingParams, "connectionId is required")
	}

	released, err := h.bindings.DeleteByConnection(c.Context(), connectionID)
	if err != nil {
		return fmt.Errorf("failed to release connection bindings: %w", err)
	}

	return c.JSON(DisconnectResponse{ConnectionID: connectionID, Released: released})
}

func (h *Handlers) Root(c fiber.Ctx) error {
	return c.SendString("flowrun")
}

// admit runs the trigger pre-conditions in order: routing parameters,
// project, CORS, rate limit, workflow lookup and load-time validation.
func (h *Handlers) admit(c fiber.Ctx, requestCtx *models.RequestContext) (*models.Workflow, error) {
	ctx := c.Context()
	params := requestCtx.Params

	if params.Tenant == "" || params.ProjectID == "" {
		return nil, models.NewError(models.ErrMissingParams, "tenant and projectId are required")
	}

	project, err := h.catalog.ProjectByID(ctx, params.Tenant, params.ProjectID)
	if persistence.IsProjectNotFound(err) {
		return nil, models.NewError(models.ErrProjectNotFound, "project %s not found", params.ProjectID)
	}

	if err != nil {
		return nil, err
	}

	if err := checkOrigin(project, c.Get(fiber.HeaderOrigin)); err != nil {
		return nil, err
	}

	if err := h.checkRate(c, project); err != nil {
		return nil, err
	}

	wf, err := h.catalog.WorkflowByRoute(ctx, params.Tenant, params.ProjectID, requestCtx.Method, params.Path)
	if persistence.IsWorkflowNotFound(err) {
		return nil, models.NewError(models.ErrWorkflowNotFound, "no workflow answers %s %s", requestCtx.Method, params.Path)
	}

	if err != nil {
		return nil, err
	}

	if h.workflows != nil {
		if err := h.workflows.ValidateWorkflow(wf); err != nil {
			return nil, &invalidWorkflowError{err: err}
		}
	}

	return wf, nil
}

// checkOrigin rejects browser requests from origins the project does not
// allow. Requests without an Origin header and projects without a list pass.
func checkOrigin(project *models.Project, origin string) error {
	if origin == "" || len(project.AllowedOrigins) == 0 {
		return nil
	}

	if slices.Contains(project.AllowedOrigins, "*") || slices.Contains(project.AllowedOrigins, origin) {
		return nil
	}

	return models.NewError(models.ErrCORS, "origin %s is not allowed", origin)
}

func (h *Handlers) checkRate(c fiber.Ctx, project *models.Project) error {
	decision, err := h.limiter.Allow(c.Context(), ratelimit.Key(project.Tenant, project.ID), project.RateLimit)
	if err != nil {
		h.logger.WarnContext(c.Context(), "Rate limiter unavailable, admitting request",
			"project_id", project.ID,
			"error", err,
		)

		return nil
	}

	if decision.Limit <= 0 {
		return nil
	}

	c.Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
	c.Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
	c.Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))

	if decision.Allowed {
		return nil
	}

	retryAfter := max(int(time.Until(decision.ResetAt).Seconds()), 1)
	c.Set(fiber.HeaderRetryAfter, strconv.Itoa(retryAfter))

	return models.NewError(models.ErrRateLimitExceeded, "rate limit of %d requests exceeded", decision.Limit)
}

// newRequestContext captures the trigger request. The body is decoded as JSON
// when possible and kept as a string otherwise.
func newRequestContext(c fiber.Ctx) *models.RequestContext {
	raw := string(c.Body())

	var body any
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &body); err != nil {
			body = raw
		}
	}

	return &models.RequestContext{
		Method: c.Method(),
		Params: models.RequestParams{
			Tenant:    c.Params("tenant"),
			ProjectID: c.Params("projectId"),
			Path:      persistence.NormalizePath(c.Params("*")),
		},
		Query:    c.Queries(),
		Headers:  c.GetReqHeaders(),
		Body:     body,
		RawBody:  raw,
		SourceIP: c.IP(),
	}
}
