package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"gymflow/gym-api/internal/domain"
	"gymflow/gym-api/internal/metrics"
	"gymflow/gym-api/internal/notify"
	"gymflow/gym-api/internal/repository"
	"gymflow/gym-api/internal/storage"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const proofImagePrefix = "proofs"

// CompletionRequest is a client's report for one session on one date.
type CompletionRequest struct {
	SessionID primitive.ObjectID
	Date      time.Time
	Completed bool
	Reason    string
	ProofURL  string
	Notes     string
}

// CompletionView is a completion joined with its session. Session is nil
// when the session has since been deleted.
type CompletionView struct {
	domain.WorkoutCompletion
	Session *domain.WorkoutSession `json:"sessionDetails,omitempty"`
}

type CompletionService interface {
	RecordCompletion(ctx context.Context, actor Actor, req CompletionRequest) (*domain.WorkoutCompletion, error)
	AttachProof(ctx context.Context, actor Actor, completionID primitive.ObjectID, file *Upload) (*domain.WorkoutCompletion, error)
	ListCompletions(ctx context.Context, actor Actor, clientID primitive.ObjectID, rng domain.CompletionRange) ([]CompletionView, error)
	ListAbsences(ctx context.Context, actor Actor, clientID primitive.ObjectID) ([]CompletionView, error)
	ComputeStats(ctx context.Context, actor Actor, clientID primitive.ObjectID, period string) (*domain.CompletionStats, error)
}

type completionService struct {
	userRepo       repository.UserRepository
	planRepo       repository.WorkoutPlanRepository
	sessionRepo    repository.WorkoutSessionRepository
	completionRepo repository.CompletionRepository
	images         storage.FileStorage
	publisher      Publisher
	log            *logrus.Logger
	maxImageBytes  int64
	now            clock
}

// NewCompletionService creates a new instance of completionService.
func NewCompletionService(
	userRepo repository.UserRepository,
	planRepo repository.WorkoutPlanRepository,
	sessionRepo repository.WorkoutSessionRepository,
	completionRepo repository.CompletionRepository,
	images storage.FileStorage,
	publisher Publisher,
	log *logrus.Logger,
	maxImageBytes int64,
) CompletionService {
	return &completionService{
		userRepo:       userRepo,
		planRepo:       planRepo,
		sessionRepo:    sessionRepo,
		completionRepo: completionRepo,
		images:         images,
		publisher:      publisher,
		log:            log,
		maxImageBytes:  maxImageBytes,
		now:            systemClock,
	}
}

// RecordCompletion upserts the caller's record for (session, date). A missed
// workout is pushed to the plan's trainer without waiting for delivery.
func (s *completionService) RecordCompletion(ctx context.Context, actor Actor, req CompletionRequest) (*domain.WorkoutCompletion, error) {
	if req.Date.IsZero() {
		return nil, domain.ErrInvalidDate
	}
	session, err := s.sessionRepo.GetByID(ctx, req.SessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	plan, err := s.planRepo.GetByID(ctx, session.PlanID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, err
	}
	if plan.ClientID != actor.ID {
		return nil, ErrForbidden
	}

	date := domain.CalendarDay(req.Date)
	completion, err := s.completionRepo.Upsert(ctx, session.ID, actor.ID, date, domain.CompletionInput{
		Completed: req.Completed,
		Reason:    strings.TrimSpace(req.Reason),
		ProofURL:  strings.TrimSpace(req.ProofURL),
		Notes:     strings.TrimSpace(req.Notes),
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordCompletion(completion.Completed)

	if !completion.Completed {
		s.publisher.PublishToUsers(notify.Event{
			Type: notify.EventWorkoutMissed,
			Payload: map[string]interface{}{
				"clientId":     actor.ID.Hex(),
				"clientName":   actor.Name,
				"sessionId":    session.ID.Hex(),
				"completionId": completion.ID.Hex(),
				"dayOfWeek":    session.DayOfWeek,
				"date":         domain.FormatDate(date),
				"reason":       completion.Reason,
			},
		}, plan.TrainerID.Hex())
		s.log.WithFields(logrus.Fields{
			"clientId":  actor.ID.Hex(),
			"trainerId": plan.TrainerID.Hex(),
			"date":      domain.FormatDate(date),
		}).Info("workout missed")
	}
	return completion, nil
}

func (s *completionService) AttachProof(ctx context.Context, actor Actor, completionID primitive.ObjectID, file *Upload) (*domain.WorkoutCompletion, error) {
	if err := validateImage(file, s.maxImageBytes); err != nil {
		return nil, err
	}
	completion, err := s.completionRepo.GetByID(ctx, completionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrCompletionNotFound
		}
		return nil, err
	}
	if completion.ClientID != actor.ID {
		return nil, ErrForbidden
	}

	key := storage.NewObjectKey(proofImagePrefix, file.ContentType)
	url, err := s.images.Put(ctx, key, file.ContentType, file.Body, file.Size)
	if err != nil {
		return nil, dependencyError("Falha ao carregar a imagem", err)
	}
	if err := s.completionRepo.SetProof(ctx, completion.ID, url, key); err != nil {
		_ = s.images.Delete(ctx, key)
		return nil, err
	}
	if previous := completion.ProofKey; previous != "" {
		if err := s.images.Delete(ctx, previous); err != nil {
			s.log.WithError(err).WithField("key", previous).Warn("failed to delete previous proof")
		}
	}
	completion.Proof, completion.ProofKey = url, key
	return completion, nil
}

// join attaches sessions, tolerating ones that no longer exist.
func (s *completionService) join(ctx context.Context, completions []domain.WorkoutCompletion) ([]CompletionView, error) {
	ids := make([]primitive.ObjectID, 0, len(completions))
	seen := make(map[primitive.ObjectID]struct{})
	for _, c := range completions {
		if _, ok := seen[c.SessionID]; !ok {
			seen[c.SessionID] = struct{}{}
			ids = append(ids, c.SessionID)
		}
	}
	sessions, err := s.sessionRepo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[primitive.ObjectID]*domain.WorkoutSession, len(sessions))
	for i := range sessions {
		byID[sessions[i].ID] = &sessions[i]
	}
	views := make([]CompletionView, len(completions))
	for i, c := range completions {
		views[i] = CompletionView{WorkoutCompletion: c, Session: byID[c.SessionID]}
	}
	return views, nil
}

func (s *completionService) ListCompletions(ctx context.Context, actor Actor, clientID primitive.ObjectID, rng domain.CompletionRange) ([]CompletionView, error) {
	if _, err := authorizeClientAccess(ctx, s.userRepo, actor, clientID); err != nil {
		return nil, err
	}
	completions, err := s.completionRepo.ListByClient(ctx, clientID, rng, false)
	if err != nil {
		return nil, err
	}
	return s.join(ctx, completions)
}

func (s *completionService) ListAbsences(ctx context.Context, actor Actor, clientID primitive.ObjectID) ([]CompletionView, error) {
	if _, err := authorizeClientAccess(ctx, s.userRepo, actor, clientID); err != nil {
		return nil, err
	}
	completions, err := s.completionRepo.ListByClient(ctx, clientID, domain.CompletionRange{}, true)
	if err != nil {
		return nil, err
	}
	return s.join(ctx, completions)
}

func (s *completionService) ComputeStats(ctx context.Context, actor Actor, clientID primitive.ObjectID, period string) (*domain.CompletionStats, error) {
	p, err := domain.ParseStatsPeriod(period)
	if err != nil {
		return nil, err
	}
	if _, err := authorizeClientAccess(ctx, s.userRepo, actor, clientID); err != nil {
		return nil, err
	}
	now := s.now()
	start := p.WindowStart(now)
	completions, err := s.completionRepo.ListByClient(ctx, clientID, domain.CompletionRange{Start: &start, End: &now}, false)
	if err != nil {
		return nil, err
	}
	stats := domain.ComputeStats(completions)
	return &stats, nil
}
