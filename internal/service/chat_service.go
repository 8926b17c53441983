package service

import (
	"context"
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

// SendMessageInput is a message to one receiver: text, image URL, or both.
type SendMessageInput struct {
	ReceiverID     primitive.ObjectID
	Message        string
	Image          string
	IsAlert        bool
	RelatedWorkout *primitive.ObjectID
}

type ChatService interface {
	SendMessage(ctx context.Context, actor Actor, in SendMessageInput) (*domain.ChatMessage, error)
	UploadImage(ctx context.Context, actor Actor, file *Upload) (string, error)
	GetConversation(ctx context.Context, actor Actor, otherID primitive.ObjectID) ([]domain.ChatMessage, error)
	MarkRead(ctx context.Context, actor Actor, otherID primitive.ObjectID) (int64, error)
	ListContacts(ctx context.Context, actor Actor) ([]domain.ContactSummary, error)
}

type chatService struct {
	userRepo     repository.UserRepository
	messageRepo  repository.MessageRepository
	files        storage.FileStorage
	publisher    Publisher
	log          *logrus.Logger
	maxChatBytes int64
	now          clock
}

// NewChatService creates a new instance of chatService. files holds chat images.
func NewChatService(
	userRepo repository.UserRepository,
	messageRepo repository.MessageRepository,
	files storage.FileStorage,
	publisher Publisher,
	log *logrus.Logger,
	maxChatBytes int64,
) ChatService {
	return &chatService{
		userRepo:     userRepo,
		messageRepo:  messageRepo,
		files:        files,
		publisher:    publisher,
		log:          log,
		maxChatBytes: maxChatBytes,
		now:          systemClock,
	}
}

func (s *chatService) SendMessage(ctx context.Context, actor Actor, in SendMessageInput) (*domain.ChatMessage, error) {
	text := strings.TrimSpace(in.Message)
	image := strings.TrimSpace(in.Image)
	if text == "" && image == "" {
		return nil, ErrEmptyMessage
	}
	if _, err := getUser(ctx, s.userRepo, in.ReceiverID); err != nil {
		return nil, err
	}

	msg := &domain.ChatMessage{
		SenderID:       actor.ID,
		ReceiverID:     in.ReceiverID,
		Message:        text,
		Image:          image,
		IsAlert:        in.IsAlert,
		RelatedWorkout: in.RelatedWorkout,
		CreatedAt:      s.now(),
	}
	if _, err := s.messageRepo.Create(ctx, msg); err != nil {
		return nil, err
	}
	metrics.RecordMessage(image != "", msg.IsAlert)

	s.publisher.PublishToUsers(notify.Event{
		Type:    notify.EventNewMessage,
		Payload: messageSnapshot(msg, actor.Name),
	}, msg.SenderID.Hex(), msg.ReceiverID.Hex())
	return msg, nil
}

// messageSnapshot is the denormalized new-message payload.
func messageSnapshot(msg *domain.ChatMessage, senderName string) map[string]interface{} {
	snap := map[string]interface{}{
		"_id":        msg.ID.Hex(),
		"sender":     msg.SenderID.Hex(),
		"senderName": senderName,
		"receiver":   msg.ReceiverID.Hex(),
		"message":    msg.Message,
		"image":      msg.Image,
		"isAlert":    msg.IsAlert,
		"read":       msg.Read,
		"createdAt":  msg.CreatedAt.Format(time.RFC3339),
	}
	if msg.RelatedWorkout != nil {
		snap["relatedWorkout"] = msg.RelatedWorkout.Hex()
	}
	return snap
}

// UploadImage stores a chat image and returns its absolute URL.
func (s *chatService) UploadImage(ctx context.Context, actor Actor, file *Upload) (string, error) {
	if err := validateImage(file, s.maxChatBytes); err != nil {
		return "", err
	}
	key := storage.NewObjectKey("", file.ContentType)
	url, err := s.files.Put(ctx, key, file.ContentType, file.Body, file.Size)
	if err != nil {
		s.log.WithError(err).WithField("userId", actor.ID.Hex()).Error("failed to store chat image")
		return "", dependencyError("Falha ao guardar a imagem", err)
	}
	return url, nil
}

func (s *chatService) GetConversation(ctx context.Context, actor Actor, otherID primitive.ObjectID) ([]domain.ChatMessage, error) {
	return s.messageRepo.Conversation(ctx, actor.ID, otherID)
}

func (s *chatService) MarkRead(ctx context.Context, actor Actor, otherID primitive.ObjectID) (int64, error) {
	return s.messageRepo.MarkRead(ctx, actor.ID, otherID)
}

// ListContacts derives contacts from message history, then adds the
// trainer's created clients or the client's trainer when not yet present.
func (s *chatService) ListContacts(ctx context.Context, actor Actor) ([]domain.ContactSummary, error) {
	summaries, err := s.messageRepo.Summaries(ctx, actor.ID)
	if err != nil {
		return nil, err
	}

	ids := make([]primitive.ObjectID, len(summaries))
	for i, sum := range summaries {
		ids[i] = sum.CounterpartID
	}
	users, err := s.userRepo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[primitive.ObjectID]*domain.User, len(users))
	for i := range users {
		byID[users[i].ID] = &users[i]
	}

	contacts := make([]domain.ContactSummary, 0, len(summaries))
	present := make(map[primitive.ObjectID]struct{})
	for _, sum := range summaries {
		u, ok := byID[sum.CounterpartID]
		if !ok {
			// Counterparty was deleted; the history stays but is not listed.
			continue
		}
		last := sum.LastMessage
		contact := contactFor(u)
		contact.LastMessage = &last
		contact.UnreadCount = sum.UnreadCount
		contacts = append(contacts, contact)
		present[u.ID] = struct{}{}
	}

	extra, err := s.implicitContacts(ctx, actor)
	if err != nil {
		return nil, err
	}
	for i := range extra {
		if _, ok := present[extra[i].ID]; ok || extra[i].ID == actor.ID {
			continue
		}
		contacts = append(contacts, contactFor(&extra[i]))
		present[extra[i].ID] = struct{}{}
	}
	return contacts, nil
}

func (s *chatService) implicitContacts(ctx context.Context, actor Actor) ([]domain.User, error) {
	if actor.IsTrainer() {
		createdBy := actor.ID
		return s.userRepo.List(ctx, repository.UserFilter{CreatedBy: &createdBy})
	}
	me, err := s.userRepo.GetByID(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	if !me.HasTrainer() {
		return nil, nil
	}
	trainers, err := s.userRepo.GetByIDs(ctx, []primitive.ObjectID{*me.Trainer})
	if err != nil {
		return nil, err
	}
	return trainers, nil
}

func contactFor(u *domain.User) domain.ContactSummary {
	return domain.ContactSummary{
		UserID:       u.ID,
		Name:         u.Name,
		ProfileImage: u.ProfileImage,
		Role:         u.Role.Name,
	}
}
