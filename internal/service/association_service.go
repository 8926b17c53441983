package service

import (
	"context"
	"crypto/rand"
	"errors"
	"io"
	"strings"
	"unicode/utf8"

	"gymflow/gym-api/internal/domain"
	"gymflow/gym-api/internal/notify"
	"gymflow/gym-api/internal/repository"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const inviteCodeAttempts = 5

type AssociationService interface {
	GenerateInviteCode(ctx context.Context, actor Actor) (string, error)
	AssociateWithTrainer(ctx context.Context, actor Actor, inviteCode string) (*domain.User, error)
	RequestDisassociation(ctx context.Context, actor Actor, reason string) (*domain.DisassociationRequest, error)
	ResolveDisassociation(ctx context.Context, actor Actor, requestID primitive.ObjectID, decision string) (*domain.DisassociationRequest, error)
	ListRequests(ctx context.Context, actor Actor, status string) ([]domain.DisassociationRequest, error)
	MyRequests(ctx context.Context, actor Actor) ([]domain.DisassociationRequest, error)
}

type associationService struct {
	userRepo    repository.UserRepository
	requestRepo repository.DisassociationRepository
	planRepo    repository.WorkoutPlanRepository
	sessionRepo repository.WorkoutSessionRepository
	publisher   Publisher
	log         *logrus.Logger
	random      io.Reader
	now         clock
}

// NewAssociationService creates a new instance of associationService.
func NewAssociationService(
	userRepo repository.UserRepository,
	requestRepo repository.DisassociationRepository,
	planRepo repository.WorkoutPlanRepository,
	sessionRepo repository.WorkoutSessionRepository,
	publisher Publisher,
	log *logrus.Logger,
) AssociationService {
	return &associationService{
		userRepo:    userRepo,
		requestRepo: requestRepo,
		planRepo:    planRepo,
		sessionRepo: sessionRepo,
		publisher:   publisher,
		log:         log,
		random:      rand.Reader,
		now:         systemClock,
	}
}

// GenerateInviteCode issues a fresh code for the trainer, replacing the old
// one. Collisions with another trainer's code are retried.
func (s *associationService) GenerateInviteCode(ctx context.Context, actor Actor) (string, error) {
	if !actor.IsTrainer() {
		return "", ErrTrainerOnly
	}
	trainer, err := getUser(ctx, s.userRepo, actor.ID)
	if err != nil {
		return "", err
	}
	for attempt := 0; attempt < inviteCodeAttempts; attempt++ {
		code, err := domain.NewInviteCode(trainer.Name, s.random)
		if err != nil {
			return "", err
		}
		err = s.userRepo.SetInviteCode(ctx, trainer.ID, code)
		if err == nil {
			return code, nil
		}
		if !errors.Is(err, repository.ErrDuplicate) {
			return "", err
		}
		s.log.WithField("trainerId", trainer.ID.Hex()).Debug("invite code collision, retrying")
	}
	return "", errors.New("could not allocate a unique invite code")
}

func (s *associationService) AssociateWithTrainer(ctx context.Context, actor Actor, inviteCode string) (*domain.User, error) {
	user, err := getUser(ctx, s.userRepo, actor.ID)
	if err != nil {
		return nil, err
	}
	code := domain.NormalizeInviteCode(inviteCode)
	if code == "" {
		return nil, ErrInviteCodeNotFound
	}
	trainer, err := s.userRepo.GetByInviteCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInviteCodeNotFound
		}
		return nil, err
	}
	if trainer.ID == user.ID {
		return nil, ErrInviteCodeNotFound
	}
	if user.HasTrainer() {
		return nil, ErrAlreadyAssociated
	}

	if err := s.userRepo.SetTrainer(ctx, user.ID, trainer.ID); err != nil {
		switch {
		case errors.Is(err, repository.ErrUpdateFailed):
			return nil, ErrAlreadyAssociated
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	user.Trainer = &trainer.ID
	user.CreatedBy = &trainer.ID

	s.log.WithFields(logrus.Fields{"userId": user.ID.Hex(), "trainerId": trainer.ID.Hex()}).Info("client associated with trainer")
	s.publisher.PublishToAdmins(notify.Event{Type: notify.EventAdminNotifications, Payload: userPayload("user_updated", user)})
	return sanitizeUser(user), nil
}

func (s *associationService) RequestDisassociation(ctx context.Context, actor Actor, reason string) (*domain.DisassociationRequest, error) {
	reason = strings.TrimSpace(reason)
	if utf8.RuneCountInString(reason) < domain.MinDisassociationReasonLength {
		return nil, ErrReasonTooShort
	}
	user, err := getUser(ctx, s.userRepo, actor.ID)
	if err != nil {
		return nil, err
	}
	trainerID, ok, err := effectiveTrainer(ctx, s.userRepo, user)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotAssociated
	}

	if _, err := s.requestRepo.GetPendingByUser(ctx, user.ID); err == nil {
		return nil, ErrDuplicateRequest
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	req := &domain.DisassociationRequest{
		UserID:    user.ID,
		TrainerID: trainerID,
		Reason:    reason,
		Status:    domain.RequestPending,
		CreatedAt: s.now(),
	}
	if _, err := s.requestRepo.Create(ctx, req); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrDuplicateRequest
		}
		return nil, err
	}

	s.publisher.PublishToAdmins(notify.Event{
		Type: notify.EventAdminNotifications,
		Payload: map[string]interface{}{
			"type":      "disassociation_requested",
			"requestId": req.ID.Hex(),
			"userId":    user.ID.Hex(),
			"userName":  user.Name,
			"trainerId": trainerID.Hex(),
		},
	})
	return req, nil
}

// ResolveDisassociation answers a pending request. The conditional
// pending->resolved update claims the request before any side effect runs,
// so a competing resolve can never observe a half-dissolved association.
// When dissolving fails the claim is released back to pending.
func (s *associationService) ResolveDisassociation(ctx context.Context, actor Actor, requestID primitive.ObjectID, decision string) (*domain.DisassociationRequest, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	var status domain.RequestStatus
	switch domain.Decision(strings.ToLower(strings.TrimSpace(decision))) {
	case domain.DecisionApprove:
		status = domain.RequestApproved
	case domain.DecisionReject:
		status = domain.RequestRejected
	default:
		return nil, ErrInvalidDecision
	}

	req, err := s.requestRepo.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	if !req.IsPending() {
		return nil, ErrAlreadyResolved
	}

	resolved, err := s.requestRepo.Resolve(ctx, req.ID, status, actor.ID, s.now())
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrUpdateFailed):
			return nil, ErrAlreadyResolved
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrRequestNotFound
		}
		return nil, err
	}

	if status == domain.RequestApproved {
		if err := s.dissolve(ctx, resolved); err != nil {
			if reopenErr := s.requestRepo.Reopen(ctx, resolved.ID, status); reopenErr != nil {
				s.log.WithError(reopenErr).WithField("requestId", resolved.ID.Hex()).Error("could not reopen request after failed approval")
			}
			return nil, err
		}
	}

	s.log.WithFields(logrus.Fields{
		"requestId": req.ID.Hex(),
		"status":    status,
		"adminId":   actor.ID.Hex(),
	}).Info("disassociation request resolved")
	return resolved, nil
}

// dissolve severs the association and removes the pair's plans.
func (s *associationService) dissolve(ctx context.Context, req *domain.DisassociationRequest) error {
	if err := s.userRepo.ClearTrainer(ctx, req.UserID, req.TrainerID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	trainerID := req.TrainerID
	planIDs, err := s.planRepo.ListIDsByClient(ctx, req.UserID, &trainerID)
	if err != nil {
		return err
	}
	if err := cascadeDeletePlans(ctx, s.planRepo, s.sessionRepo, planIDs); err != nil {
		return err
	}
	if user, err := s.userRepo.GetByID(ctx, req.UserID); err == nil {
		s.publisher.PublishToAdmins(notify.Event{Type: notify.EventAdminNotifications, Payload: userPayload("user_updated", user)})
	}
	return nil
}

func (s *associationService) ListRequests(ctx context.Context, actor Actor, status string) ([]domain.DisassociationRequest, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	st := domain.RequestStatus(strings.ToLower(strings.TrimSpace(status)))
	switch st {
	case "", domain.RequestPending, domain.RequestApproved, domain.RequestRejected:
	default:
		return nil, newError(KindValidation, "Estado inválido")
	}
	return s.requestRepo.List(ctx, st)
}

func (s *associationService) MyRequests(ctx context.Context, actor Actor) ([]domain.DisassociationRequest, error) {
	return s.requestRepo.ListByUser(ctx, actor.ID)
}
