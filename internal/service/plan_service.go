package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"gymflow/gym-api/internal/domain"
	"gymflow/gym-api/internal/notify"
	"gymflow/gym-api/internal/repository"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const defaultPlanName = "Plano de treino"

// PlanInput creates a plan. Zero WeeklyFrequency means the default.
type PlanInput struct {
	ClientID        primitive.ObjectID
	WeeklyFrequency int
	Name            string
	Goal            string
	Notes           string
	StartDate       *time.Time
	EndDate         *time.Time
}

// PlanWithSessions is a plan and its sessions ordered Monday to Sunday.
type PlanWithSessions struct {
	Plan     *domain.WorkoutPlan     `json:"plan"`
	Sessions []domain.WorkoutSession `json:"sessions"`
}

type PlanService interface {
	CreatePlan(ctx context.Context, actor Actor, in PlanInput) (*domain.WorkoutPlan, error)
	GetPlan(ctx context.Context, actor Actor, id primitive.ObjectID) (*PlanWithSessions, error)
	ActivatePlan(ctx context.Context, actor Actor, id primitive.ObjectID) (*domain.WorkoutPlan, error)
	DeactivatePlan(ctx context.Context, actor Actor, id primitive.ObjectID) (*domain.WorkoutPlan, error)
	UpdatePlan(ctx context.Context, actor Actor, id primitive.ObjectID, upd domain.PlanUpdate) (*domain.WorkoutPlan, error)
	DeletePlan(ctx context.Context, actor Actor, id primitive.ObjectID) error
	UpsertSession(ctx context.Context, actor Actor, planID primitive.ObjectID, day string, in domain.SessionInput) (*domain.WorkoutSession, error)
	DeleteSession(ctx context.Context, actor Actor, sessionID primitive.ObjectID) error
	ListSessionsForPlan(ctx context.Context, actor Actor, planID primitive.ObjectID) ([]domain.WorkoutSession, error)
	ListPlansForTrainer(ctx context.Context, actor Actor, trainerID primitive.ObjectID) ([]domain.WorkoutPlan, error)
	GetActivePlanForClient(ctx context.Context, actor Actor, clientID primitive.ObjectID) (*PlanWithSessions, error)
	ListPlanHistory(ctx context.Context, actor Actor, clientID primitive.ObjectID) ([]domain.WorkoutPlan, error)
}

type planService struct {
	userRepo    repository.UserRepository
	planRepo    repository.WorkoutPlanRepository
	sessionRepo repository.WorkoutSessionRepository
	publisher   Publisher
	log         *logrus.Logger
	now         clock
}

// NewPlanService creates a new instance of planService.
func NewPlanService(
	userRepo repository.UserRepository,
	planRepo repository.WorkoutPlanRepository,
	sessionRepo repository.WorkoutSessionRepository,
	publisher Publisher,
	log *logrus.Logger,
) PlanService {
	return &planService{
		userRepo:    userRepo,
		planRepo:    planRepo,
		sessionRepo: sessionRepo,
		publisher:   publisher,
		log:         log,
		now:         systemClock,
	}
}

// cascadeDeletePlans removes sessions first so a failure never leaves
// sessions pointing at a deleted plan.
func cascadeDeletePlans(ctx context.Context, plans repository.WorkoutPlanRepository, sessions repository.WorkoutSessionRepository, planIDs []primitive.ObjectID) error {
	if len(planIDs) == 0 {
		return nil
	}
	if _, err := sessions.DeleteByPlans(ctx, planIDs); err != nil {
		return err
	}
	_, err := plans.DeleteMany(ctx, planIDs)
	return err
}

func (s *planService) getPlan(ctx context.Context, id primitive.ObjectID) (*domain.WorkoutPlan, error) {
	plan, err := s.planRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, err
	}
	return plan, nil
}

func canManagePlan(actor Actor, plan *domain.WorkoutPlan) bool {
	return actor.IsAdmin() || (actor.IsTrainer() && plan.TrainerID == actor.ID)
}

func canReadPlan(actor Actor, plan *domain.WorkoutPlan) bool {
	return canManagePlan(actor, plan) || plan.ClientID == actor.ID
}

// managedPlan loads a plan the actor may change.
func (s *planService) managedPlan(ctx context.Context, actor Actor, id primitive.ObjectID) (*domain.WorkoutPlan, error) {
	plan, err := s.getPlan(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canManagePlan(actor, plan) {
		return nil, ErrForbidden
	}
	return plan, nil
}

// publishPlan pushes the plan with its sessions to the plan's client.
func (s *planService) publishPlan(ctx context.Context, plan *domain.WorkoutPlan) {
	sessions, err := s.sessionRepo.ListByPlan(ctx, plan.ID)
	if err != nil {
		s.log.WithError(err).WithField("planId", plan.ID.Hex()).Warn("failed to load sessions for plan event")
		return
	}
	s.publisher.PublishToUsers(notify.Event{
		Type:    notify.EventWorkoutPlanUpdated,
		Payload: PlanWithSessions{Plan: plan, Sessions: sessions},
	}, plan.ClientID.Hex())
}

func (s *planService) CreatePlan(ctx context.Context, actor Actor, in PlanInput) (*domain.WorkoutPlan, error) {
	if !actor.IsTrainer() && !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	client, err := getUser(ctx, s.userRepo, in.ClientID)
	if err != nil {
		return nil, err
	}
	if !client.IsClient() {
		return nil, ErrInvalidClient
	}
	trainerID := actor.ID
	if actor.IsAdmin() {
		// Plans always belong to the client's trainer, even when an admin writes them.
		id, ok, err := effectiveTrainer(ctx, s.userRepo, client)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrClientWithoutTrainer
		}
		trainerID = id
	} else if !trainsClient(client, actor.ID) {
		return nil, ErrForbidden
	}

	freq := in.WeeklyFrequency
	if freq == 0 {
		freq = domain.DefaultWeeklyFrequency
	}
	if !domain.ValidWeeklyFrequency(freq) {
		return nil, ErrInvalidWeeklyFrequency
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = defaultPlanName
	}
	start := s.now()
	if in.StartDate != nil {
		start = *in.StartDate
	}

	plan := &domain.WorkoutPlan{
		TrainerID:       trainerID,
		ClientID:        client.ID,
		WeeklyFrequency: freq,
		Name:            name,
		Goal:            strings.TrimSpace(in.Goal),
		Notes:           strings.TrimSpace(in.Notes),
		StartDate:       start,
		EndDate:         in.EndDate,
		Active:          true,
	}
	if _, err := s.planRepo.Create(ctx, plan); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrActivePlanExists
		}
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"planId": plan.ID.Hex(), "clientId": client.ID.Hex()}).Info("workout plan created")
	s.publishPlan(ctx, plan)
	return plan, nil
}

func (s *planService) GetPlan(ctx context.Context, actor Actor, id primitive.ObjectID) (*PlanWithSessions, error) {
	plan, err := s.getPlan(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canReadPlan(actor, plan) {
		return nil, ErrForbidden
	}
	sessions, err := s.sessionRepo.ListByPlan(ctx, plan.ID)
	if err != nil {
		return nil, err
	}
	return &PlanWithSessions{Plan: plan, Sessions: sessions}, nil
}

// ActivatePlan makes the plan the client's only active plan.
func (s *planService) ActivatePlan(ctx context.Context, actor Actor, id primitive.ObjectID) (*domain.WorkoutPlan, error) {
	if _, err := s.managedPlan(ctx, actor, id); err != nil {
		return nil, err
	}
	plan, err := s.planRepo.Activate(ctx, id)
	if err != nil {
		return nil, s.mapPlanWriteErr(err)
	}
	s.publishPlan(ctx, plan)
	return plan, nil
}

func (s *planService) DeactivatePlan(ctx context.Context, actor Actor, id primitive.ObjectID) (*domain.WorkoutPlan, error) {
	if _, err := s.managedPlan(ctx, actor, id); err != nil {
		return nil, err
	}
	plan, err := s.planRepo.Deactivate(ctx, id)
	if err != nil {
		return nil, s.mapPlanWriteErr(err)
	}
	s.publishPlan(ctx, plan)
	return plan, nil
}

func (s *planService) mapPlanWriteErr(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return ErrPlanNotFound
	case errors.Is(err, repository.ErrDuplicate):
		return ErrActivePlanExists
	}
	return err
}

func (s *planService) UpdatePlan(ctx context.Context, actor Actor, id primitive.ObjectID, upd domain.PlanUpdate) (*domain.WorkoutPlan, error) {
	if _, err := s.managedPlan(ctx, actor, id); err != nil {
		return nil, err
	}
	if upd.WeeklyFrequency != nil && !domain.ValidWeeklyFrequency(*upd.WeeklyFrequency) {
		return nil, ErrInvalidWeeklyFrequency
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			name = defaultPlanName
		}
		upd.Name = &name
	}
	plan, err := s.planRepo.Update(ctx, id, upd)
	if err != nil {
		return nil, s.mapPlanWriteErr(err)
	}
	s.publishPlan(ctx, plan)
	return plan, nil
}

func (s *planService) DeletePlan(ctx context.Context, actor Actor, id primitive.ObjectID) error {
	plan, err := s.managedPlan(ctx, actor, id)
	if err != nil {
		return err
	}
	if _, err := s.sessionRepo.DeleteByPlans(ctx, []primitive.ObjectID{plan.ID}); err != nil {
		return err
	}
	if err := s.planRepo.Delete(ctx, plan.ID); err != nil {
		return s.mapPlanWriteErr(err)
	}
	s.log.WithField("planId", plan.ID.Hex()).Info("workout plan deleted")
	return nil
}

func (s *planService) UpsertSession(ctx context.Context, actor Actor, planID primitive.ObjectID, day string, in domain.SessionInput) (*domain.WorkoutSession, error) {
	dayOfWeek, err := domain.ParseDayOfWeek(day)
	if err != nil {
		return nil, err
	}
	normalized, err := in.Normalize()
	if err != nil {
		return nil, err
	}
	plan, err := s.managedPlan(ctx, actor, planID)
	if err != nil {
		return nil, err
	}
	session, err := s.sessionRepo.Upsert(ctx, plan.ID, dayOfWeek, normalized)
	if err != nil {
		return nil, err
	}
	if plan.Active {
		s.publishPlan(ctx, plan)
	}
	return session, nil
}

func (s *planService) DeleteSession(ctx context.Context, actor Actor, sessionID primitive.ObjectID) error {
	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrSessionNotFound
		}
		return err
	}
	plan, err := s.planRepo.GetByID(ctx, session.PlanID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		// Orphaned session; only an admin may clean it up.
		if !actor.IsAdmin() {
			return ErrForbidden
		}
	case err != nil:
		return err
	case !canManagePlan(actor, plan):
		return ErrForbidden
	}

	if err := s.sessionRepo.Delete(ctx, sessionID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrSessionNotFound
		}
		return err
	}
	if plan != nil && plan.Active {
		s.publishPlan(ctx, plan)
	}
	return nil
}

func (s *planService) ListSessionsForPlan(ctx context.Context, actor Actor, planID primitive.ObjectID) ([]domain.WorkoutSession, error) {
	out, err := s.GetPlan(ctx, actor, planID)
	if err != nil {
		return nil, err
	}
	return out.Sessions, nil
}

func (s *planService) ListPlansForTrainer(ctx context.Context, actor Actor, trainerID primitive.ObjectID) ([]domain.WorkoutPlan, error) {
	if !actor.IsAdmin() && actor.ID != trainerID {
		return nil, ErrForbidden
	}
	return s.planRepo.ListByTrainer(ctx, trainerID)
}

func (s *planService) GetActivePlanForClient(ctx context.Context, actor Actor, clientID primitive.ObjectID) (*PlanWithSessions, error) {
	if _, err := authorizeClientAccess(ctx, s.userRepo, actor, clientID); err != nil {
		return nil, err
	}
	plan, err := s.planRepo.GetActiveByClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, err
	}
	sessions, err := s.sessionRepo.ListByPlan(ctx, plan.ID)
	if err != nil {
		return nil, err
	}
	return &PlanWithSessions{Plan: plan, Sessions: sessions}, nil
}

func (s *planService) ListPlanHistory(ctx context.Context, actor Actor, clientID primitive.ObjectID) ([]domain.WorkoutPlan, error) {
	if _, err := authorizeClientAccess(ctx, s.userRepo, actor, clientID); err != nil {
		return nil, err
	}
	return s.planRepo.ListInactiveByClient(ctx, clientID)
}
