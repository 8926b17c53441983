package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"gymflow/gym-api/internal/domain"
	"gymflow/gym-api/internal/notify"
	"gymflow/gym-api/internal/repository"
	"gymflow/gym-api/internal/storage"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const profileImagePrefix = "profiles"

// CreateUserInput is an account created by an admin or a trainer.
type CreateUserInput struct {
	Name      string
	Email     string
	Password  string
	Role      string
	BirthDate *time.Time
	Address   string
	Country   string
}

// ProfileUpdate holds the self-editable fields; nil means unchanged.
type ProfileUpdate struct {
	Name      *string
	Email     *string
	BirthDate *time.Time
	Address   *string
	Country   *string
}

// UserUpdate is an admin edit. Role may promote or demote.
type UserUpdate struct {
	ProfileUpdate
	Role *string
}

type UserService interface {
	CreateUser(ctx context.Context, actor Actor, in CreateUserInput) (*domain.User, error)
	UpdateUser(ctx context.Context, actor Actor, id primitive.ObjectID, upd UserUpdate) (*domain.User, error)
	UpdateProfile(ctx context.Context, actor Actor, upd ProfileUpdate) (*domain.User, error)
	SetProfileImage(ctx context.Context, actor Actor, file *Upload) (*domain.User, error)
	RemoveProfileImage(ctx context.Context, actor Actor) (*domain.User, error)
	DeleteUser(ctx context.Context, actor Actor, id primitive.ObjectID, cleanupPlans bool) error
	ListUsers(ctx context.Context, actor Actor, role string) ([]domain.User, error)
	GetUser(ctx context.Context, actor Actor, id primitive.ObjectID) (*domain.User, error)
	ListClients(ctx context.Context, actor Actor) ([]domain.User, error)
}

type userService struct {
	userRepo      repository.UserRepository
	planRepo      repository.WorkoutPlanRepository
	sessionRepo   repository.WorkoutSessionRepository
	images        storage.FileStorage
	publisher     Publisher
	log           *logrus.Logger
	maxImageBytes int64
}

// NewUserService creates a new instance of userService.
func NewUserService(
	userRepo repository.UserRepository,
	planRepo repository.WorkoutPlanRepository,
	sessionRepo repository.WorkoutSessionRepository,
	images storage.FileStorage,
	publisher Publisher,
	log *logrus.Logger,
	maxImageBytes int64,
) UserService {
	return &userService{
		userRepo:      userRepo,
		planRepo:      planRepo,
		sessionRepo:   sessionRepo,
		images:        images,
		publisher:     publisher,
		log:           log,
		maxImageBytes: maxImageBytes,
	}
}

func (s *userService) notifyAdmins(kind string, u *domain.User) {
	s.publisher.PublishToAdmins(notify.Event{Type: notify.EventAdminNotifications, Payload: userPayload(kind, u)})
}

// CreateUser lets admins create any role. Trainers always create clients
// that are associated with them.
func (s *userService) CreateUser(ctx context.Context, actor Actor, in CreateUserInput) (*domain.User, error) {
	if !actor.IsAdmin() && !actor.IsTrainer() {
		return nil, ErrForbidden
	}
	name := strings.TrimSpace(in.Name)
	email := domain.NormalizeEmail(in.Email)
	if err := validateCredentials(name, email, in.Password); err != nil {
		return nil, err
	}

	roleName := domain.RoleUser
	if actor.IsAdmin() && in.Role != "" {
		parsed, ok := domain.ParseRoleName(in.Role)
		if !ok {
			return nil, ErrInvalidRole
		}
		roleName = parsed
	}
	role, _ := domain.NewRole(roleName)

	if err := checkAvailable(ctx, s.userRepo, nil, name, email); err != nil {
		return nil, err
	}
	hash, err := hashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	creator := actor.ID
	user := &domain.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		BirthDate:    in.BirthDate,
		Address:      strings.TrimSpace(in.Address),
		Country:      strings.TrimSpace(in.Country),
		CreatedBy:    &creator,
	}
	if !actor.IsAdmin() {
		user.Trainer = &creator
	}

	if _, err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, duplicateError(ctx, s.userRepo, email)
		}
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"userId": user.ID.Hex(), "role": role.Name, "by": actor.ID.Hex()}).Info("user created")
	s.notifyAdmins("user_added", user)
	return sanitizeUser(user), nil
}

// applyProfile validates and merges upd into user.
func (s *userService) applyProfile(ctx context.Context, user *domain.User, upd ProfileUpdate) error {
	name, email := user.Name, user.Email
	if upd.Name != nil {
		name = strings.TrimSpace(*upd.Name)
		if name == "" {
			return ErrMissingFields
		}
	}
	if upd.Email != nil {
		email = domain.NormalizeEmail(*upd.Email)
		if !emailPattern.MatchString(email) {
			return ErrInvalidEmail
		}
	}
	if name != user.Name || email != user.Email {
		if err := checkAvailable(ctx, s.userRepo, user, name, email); err != nil {
			return err
		}
	}
	user.Name, user.Email = name, email
	if upd.BirthDate != nil {
		user.BirthDate = upd.BirthDate
	}
	if upd.Address != nil {
		user.Address = strings.TrimSpace(*upd.Address)
	}
	if upd.Country != nil {
		user.Country = strings.TrimSpace(*upd.Country)
	}
	return nil
}

// checkPromotion guards promotion to Trainer.
func (s *userService) checkPromotion(ctx context.Context, user *domain.User) error {
	if user.HasTrainer() {
		return ErrPromotionHasTrainer
	}
	if user.CreatedBy != nil && !user.CreatedBy.IsZero() {
		creator, err := s.userRepo.GetByID(ctx, *user.CreatedBy)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		if err == nil && creator.IsTrainer() {
			return ErrPromotionCreatedByTrainer
		}
	}
	return nil
}

func (s *userService) save(ctx context.Context, user *domain.User) error {
	if err := s.userRepo.Update(ctx, user); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicate):
			return duplicateError(ctx, s.userRepo, user.Email)
		case errors.Is(err, repository.ErrNotFound):
			return ErrUserNotFound
		}
		return err
	}
	return nil
}

func (s *userService) UpdateUser(ctx context.Context, actor Actor, id primitive.ObjectID, upd UserUpdate) (*domain.User, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	user, err := getUser(ctx, s.userRepo, id)
	if err != nil {
		return nil, err
	}
	if err := s.applyProfile(ctx, user, upd.ProfileUpdate); err != nil {
		return nil, err
	}

	if upd.Role != nil {
		roleName, ok := domain.ParseRoleName(*upd.Role)
		if !ok {
			return nil, ErrInvalidRole
		}
		if roleName == domain.RoleTrainer && !user.IsTrainer() {
			if err := s.checkPromotion(ctx, user); err != nil {
				return nil, err
			}
		}
		if roleName != domain.RoleTrainer && user.IsTrainer() {
			user.InviteCode = ""
		}
		user.Role, _ = domain.NewRole(roleName)
	}

	if err := s.save(ctx, user); err != nil {
		return nil, err
	}
	s.notifyAdmins("user_updated", user)
	return sanitizeUser(user), nil
}

func (s *userService) UpdateProfile(ctx context.Context, actor Actor, upd ProfileUpdate) (*domain.User, error) {
	user, err := getUser(ctx, s.userRepo, actor.ID)
	if err != nil {
		return nil, err
	}
	if err := s.applyProfile(ctx, user, upd); err != nil {
		return nil, err
	}
	if err := s.save(ctx, user); err != nil {
		return nil, err
	}
	s.notifyAdmins("user_updated", user)
	return sanitizeUser(user), nil
}

// deleteImage removes a stored object; failures only leave an orphan behind.
func (s *userService) deleteImage(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := s.images.Delete(ctx, key); err != nil {
		s.log.WithError(err).WithField("key", key).Warn("failed to delete previous image")
	}
}

func (s *userService) SetProfileImage(ctx context.Context, actor Actor, file *Upload) (*domain.User, error) {
	if err := validateImage(file, s.maxImageBytes); err != nil {
		return nil, err
	}
	user, err := getUser(ctx, s.userRepo, actor.ID)
	if err != nil {
		return nil, err
	}

	key := storage.NewObjectKey(profileImagePrefix, file.ContentType)
	url, err := s.images.Put(ctx, key, file.ContentType, file.Body, file.Size)
	if err != nil {
		return nil, dependencyError("Falha ao carregar a imagem", err)
	}

	previous := user.ProfileImageKey
	user.ProfileImage, user.ProfileImageKey = url, key
	if err := s.save(ctx, user); err != nil {
		s.deleteImage(ctx, key)
		return nil, err
	}
	s.deleteImage(ctx, previous)
	return sanitizeUser(user), nil
}

func (s *userService) RemoveProfileImage(ctx context.Context, actor Actor) (*domain.User, error) {
	user, err := getUser(ctx, s.userRepo, actor.ID)
	if err != nil {
		return nil, err
	}
	previous := user.ProfileImageKey
	user.ProfileImage, user.ProfileImageKey = "", ""
	if err := s.save(ctx, user); err != nil {
		return nil, err
	}
	s.deleteImage(ctx, previous)
	return sanitizeUser(user), nil
}

// DeleteUser hard-deletes an account. With cleanupPlans the user's plans as
// a client, and their sessions, go too.
func (s *userService) DeleteUser(ctx context.Context, actor Actor, id primitive.ObjectID, cleanupPlans bool) error {
	if !actor.IsAdmin() {
		return ErrForbidden
	}
	user, err := getUser(ctx, s.userRepo, id)
	if err != nil {
		return err
	}
	if cleanupPlans {
		planIDs, err := s.planRepo.ListIDsByClient(ctx, id, nil)
		if err != nil {
			return err
		}
		if err := cascadeDeletePlans(ctx, s.planRepo, s.sessionRepo, planIDs); err != nil {
			return err
		}
	}
	if err := s.userRepo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	s.deleteImage(ctx, user.ProfileImageKey)
	s.log.WithFields(logrus.Fields{"userId": id.Hex(), "cleanupPlans": cleanupPlans}).Info("user deleted")
	s.notifyAdmins("user_removed", user)
	return nil
}

func (s *userService) ListUsers(ctx context.Context, actor Actor, role string) ([]domain.User, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	filter := repository.UserFilter{}
	if role != "" {
		name, ok := domain.ParseRoleName(role)
		if !ok {
			return nil, ErrInvalidRole
		}
		filter.Role = name
	}
	users, err := s.userRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return sanitizeUsers(users), nil
}

func (s *userService) GetUser(ctx context.Context, actor Actor, id primitive.ObjectID) (*domain.User, error) {
	user, err := authorizeClientAccess(ctx, s.userRepo, actor, id)
	if err != nil {
		return nil, err
	}
	return sanitizeUser(user), nil
}

func (s *userService) ListClients(ctx context.Context, actor Actor) ([]domain.User, error) {
	if !actor.IsTrainer() {
		return nil, ErrForbidden
	}
	users, err := s.userRepo.ListClientsOf(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	return sanitizeUsers(users), nil
}
