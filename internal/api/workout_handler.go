package api

import (
	"context"
	"net/http"

	"gymflow/gym-api/internal/domain"
	"gymflow/gym-api/internal/service"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// WorkoutHandler serves plans, sessions and completion tracking.
type WorkoutHandler struct {
	planService       service.PlanService
	completionService service.CompletionService
	errors            errorResponder
}

func NewWorkoutHandler(planService service.PlanService, completionService service.CompletionService, errs errorResponder) *WorkoutHandler {
	return &WorkoutHandler{planService: planService, completionService: completionService, errors: errs}
}

type CreatePlanRequest struct {
	ClientID        string `json:"clientId"`
	WeeklyFrequency int    `json:"weeklyFrequency"`
	Name            string `json:"name"`
	Goal            string `json:"goal"`
	Notes           string `json:"notes"`
	StartDate       string `json:"startDate"`
	EndDate         string `json:"endDate"`
}

type UpdatePlanRequest struct {
	Name            *string `json:"name"`
	Goal            *string `json:"goal"`
	Notes           *string `json:"notes"`
	Active          *bool   `json:"active"`
	WeeklyFrequency *int    `json:"weeklyFrequency"`
}

type SessionRequest struct {
	StartTime string            `json:"startTime"`
	EndTime   string            `json:"endTime"`
	Exercises []domain.Exercise `json:"exercises"`
}

type CompletionRequestBody struct {
	SessionID string `json:"sessionId"`
	Date      string `json:"date"`
	Completed bool   `json:"completed"`
	Reason    string `json:"reason"`
	Proof     string `json:"proof"`
	Notes     string `json:"notes"`
}

// --- Plans ---

// CreatePlan godoc
// @Summary Create a weekly plan for a client; it becomes the active one
// @Tags Workouts
// @Accept json
// @Produce json
// @Param plan body CreatePlanRequest true "Plan details"
// @Success 201 {object} domain.WorkoutPlan
// @Failure 403 {object} gin.H "Not the client's trainer"
// @Router /workouts/plans [post]
func (h *WorkoutHandler) CreatePlan(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	var req CreatePlanRequest
	if !bindJSON(c, &req) {
		return
	}
	clientID, err := primitive.ObjectIDFromHex(req.ClientID)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "ID de cliente inválido")
		return
	}
	start, err := parseOptionalDate(req.StartDate)
	if err != nil {
		h.errors.respond(c, err)
		return
	}
	end, err := parseOptionalDate(req.EndDate)
	if err != nil {
		h.errors.respond(c, err)
		return
	}
	plan, err := h.planService.CreatePlan(c.Request.Context(), actor, service.PlanInput{
		ClientID:        clientID,
		WeeklyFrequency: req.WeeklyFrequency,
		Name:            req.Name,
		Goal:            req.Goal,
		Notes:           req.Notes,
		StartDate:       start,
		EndDate:         end,
	})
	if err != nil {
		h.errors.respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, plan)
}

func (h *WorkoutHandler) GetPlan(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	id, ok := objectIDParam(c, "id")
	if !ok {
		return
	}
	plan, err := h.planService.GetPlan(c.Request.Context(), actor, id)
	if err != nil {
		h.errors.respond(c, err)
		return
	}
	c.JSON(http.StatusOK, plan)
}

func (h *WorkoutHandler) UpdatePlan(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	id, ok := objectIDParam(c, "id")
	if !ok {
		return
	}
	var req UpdatePlanRequest
	if !bindJSON(c, &req) {
		return
	}
	plan, err := h.planService.UpdatePlan(c.Request.Context(), actor, id, domain.PlanUpdate{
		Name:            req.Name,
		Goal:            req.Goal,
		Notes:           req.Notes,
		Active:          req.Active,
		WeeklyFrequency: req.WeeklyFrequency,
	})
	if err != nil {
		h.errors.respond(c, err)
		return
	}
	c.JSON(http.StatusOK, plan)
}

func (h *WorkoutHandler) DeletePlan(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	id, ok := objectIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.planService.DeletePlan(c.Request.Context(), actor, id); err != nil {
		h.errors.respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Plano removido"})
}

func (h *WorkoutHandler) ActivatePlan(c *gin.Context) {
	h.togglePlan(c, h.planService.ActivatePlan)
}

func (h *WorkoutHandler) DeactivatePlan(c *gin.Context) {
	h.togglePlan(c, h.planService.DeactivatePlan)
}

type planToggle func(ctx context.Context, actor service.Actor, id primitive.ObjectID) (*domain.WorkoutPlan, error)

func (h *WorkoutHandler) togglePlan(c *gin.Context, toggle planToggle) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	id, ok := objectIDParam(c, "id")
	if !ok {
		return
	}
	plan, err := toggle(c.Request.Context(), actor, id)
	if err != nil {
		h.errors.respond(c, err)
		return
	}
	c.JSON(http.StatusOK, plan)
}

func (h *WorkoutHandler) ListTrainerPlans(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	trainerID := actor.ID
	if c.Param("trainerId") != "" {
		if trainerID, ok = objectIDParam(c, "trainerId"); !ok {
			return
		}
	}
	plans, err := h.planService.ListPlansForTrainer(c.Request.Context(), actor, trainerID)
	if err != nil {
		h.errors.respond(c, err)
		return
	}
	c.JSON(http.StatusOK, plans)
}

func (h *WorkoutHandler) ActivePlan(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	clientID, ok := objectIDParam(c, "clientId")
	if !ok {
		return
	}
	plan, err := h.planService.GetActivePlanForClient(c.Request.Context(), actor, clientID)
	if err != nil {
		h.errors.respond(c, err)
		return
	}
	c.JSON(http.StatusOK, plan)
}

func (h *WorkoutHandler) PlanHistory(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	clientID, ok := objectIDParam(c, "clientId")
	if !ok {
		return
	}
	plans, err := h.planService.ListPlanHistory(c.Request.Context(), actor, clientID)
	if err != nil {
		h.errors.respond(c, err)
		return
	}
	c.JSON(http.StatusOK, plans)
}

// --- Sessions ---

// UpsertSession replaces the plan's session for the :day weekday.
func (h *WorkoutHandler) UpsertSession(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	planID, ok := objectIDParam(c, "id")
	if !ok {
		return
	}
	var req SessionRequest
	if !bindJSON(c, &req) {
		return
	}
	session, err := h.planService.UpsertSession(c.Request.Context(), actor, planID, c.Param("day"), domain.SessionInput{
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Exercises: req.Exercises,
	})
	if err != nil {
		h.errors.respond(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *WorkoutHandler) ListSessions(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	planID, ok := objectIDParam(c, "id")
	if !ok {
		return
	}
	sessions, err := h.planService.ListSessionsForPlan(c.Request.Context(), actor, planID)
	if err != nil {
		h.errors.respond(c, err)
		return
	}
	c.JSON(http.StatusOK, sessions)
}

func (h *WorkoutHandler) DeleteSession(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	id, ok := objectIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.planService.DeleteSession(c.Request.Context(), actor, id); err != nil {
		h.errors.respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Sessão removida"})
}

// --- Completions ---

func (h *WorkoutHandler) RecordCompletion(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	var req CompletionRequestBody
	if !bindJSON(c, &req) {
		return
	}
	sessionID, err := primitive.ObjectIDFromHex(req.SessionID)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "ID de sessão inválido")
		return
	}
	date, err := domain.ParseDate(req.Date)
	if err != nil {
		h.errors.respond(c, err)
		return
	}
	completion, err := h.completionService.RecordCompletion(c.Request.Context(), actor, service.CompletionRequest{
		SessionID: sessionID,
		Date:      date,
		Completed: req.Completed,
		Reason:    req.Reason,
		ProofURL:  req.Proof,
		Notes:     req.Notes,
	})
	if err != nil {
		h.errors.respond(c, err)
		return
	}
	c.JSON(http.StatusOK, completion)
}

func (h *WorkoutHandler) UploadProof(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	id, ok := objectIDParam(c, "id")
	if !ok {
		return
	}
	upload, closeFn, err := formUpload(c, "image")
	defer closeFn()
	if err != nil {
		h.errors.respond(c, err)
		return
	}
	completion, err := h.completionService.AttachProof(c.Request.Context(), actor, id, upload)
	if err != nil {
		h.errors.respond(c, err)
		return
	}
	c.JSON(http.StatusOK, completion)
}

// ListCompletions accepts optional ?startDate and ?endDate (YYYY-MM-DD).
func (h *WorkoutHandler) ListCompletions(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	clientID, ok := objectIDParam(c, "clientId")
	if !ok {
		return
	}
	start, err := parseOptionalDate(c.Query("startDate"))
	if err != nil {
		h.errors.respond(c, err)
		return
	}
	end, err := parseOptionalDate(c.Query("endDate"))
	if err != nil {
		h.errors.respond(c, err)
		return
	}
	views, err := h.completionService.ListCompletions(c.Request.Context(), actor, clientID, domain.CompletionRange{Start: start, End: end})
	if err != nil {
		h.errors.respond(c, err)
		return
	}
	c.JSON(http.StatusOK, views)
}

func (h *WorkoutHandler) ListAbsences(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	clientID, ok := objectIDParam(c, "clientId")
	if !ok {
		return
	}
	views, err := h.completionService.ListAbsences(c.Request.Context(), actor, clientID)
	if err != nil {
		h.errors.respond(c, err)
		return
	}
	c.JSON(http.StatusOK, views)
}

func (h *WorkoutHandler) Stats(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	clientID, ok := objectIDParam(c, "clientId")
	if !ok {
		return
	}
	stats, err := h.completionService.ComputeStats(c.Request.Context(), actor, clientID, c.Query("period"))
	if err != nil {
		h.errors.respond(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
