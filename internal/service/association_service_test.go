package service

import (
	"bytes"
	"context"
	"regexp"
	"testing"
	"time"

	"gymflow/gym-api/internal/domain"
	"gymflow/gym-api/internal/notify"
	"gymflow/gym-api/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var inviteCodeFormat = regexp.MustCompile(`^PT-[A-Z0-9]{1,6}-[A-Z0-9]{4}$`)

func TestGenerateInviteCode(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	trainer, actor := e.seed("João Costa", "joao@gym.pt", domain.RoleTrainer)

	code, err := e.association.GenerateInviteCode(ctx, actor)
	require.NoError(t, err)
	assert.Regexp(t, inviteCodeFormat, code)
	assert.Contains(t, code, "PT-JOAO-")

	stored, _ := e.users.GetByID(ctx, trainer.ID)
	assert.Equal(t, code, stored.InviteCode)

	_, clientActor := e.seed("Rita", "rita@x.pt", domain.RoleUser)
	_, err = e.association.GenerateInviteCode(ctx, clientActor)
	assert.ErrorIs(t, err, ErrTrainerOnly)
}

func TestGenerateInviteCode_RetriesCollision(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	svc := e.association.(*associationService)
	_, a := e.seed("Ana Silva", "ana@gym.pt", domain.RoleTrainer)
	_, b := e.seed("Ana Costa", "ana2@gym.pt", domain.RoleTrainer)

	// Both trainers share a first name; the same random bytes would collide.
	same := []byte{0, 0, 0, 0}
	svc.random = bytes.NewReader(same)
	first, err := svc.GenerateInviteCode(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, "PT-ANA-AAAA", first)

	svc.random = bytes.NewReader(append(append([]byte{}, same...), 1, 1, 1, 1))
	second, err := svc.GenerateInviteCode(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, "PT-ANA-BBBB", second)
}

func TestAssociateWithTrainer(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	trainer, trainerActor := e.seed("João Costa", "joao@gym.pt", domain.RoleTrainer)
	_, clientActor := e.seed("Rita", "rita@x.pt", domain.RoleUser)

	code, err := e.association.GenerateInviteCode(ctx, trainerActor)
	require.NoError(t, err)

	user, err := e.association.AssociateWithTrainer(ctx, clientActor, " "+code+" ")
	require.NoError(t, err)
	require.NotNil(t, user.Trainer)
	assert.Equal(t, trainer.ID, *user.Trainer)
	assert.Equal(t, trainer.ID, *user.CreatedBy)

	_, err = e.association.AssociateWithTrainer(ctx, clientActor, code)
	assert.ErrorIs(t, err, ErrAlreadyAssociated)
	assert.Equal(t, KindConflict, KindOf(err))
}

func TestAssociateWithTrainer_UnknownCode(t *testing.T) {
	e := newEnv()
	_, clientActor := e.seed("Rita", "rita@x.pt", domain.RoleUser)

	_, err := e.association.AssociateWithTrainer(context.Background(), clientActor, "PT-XX-0000")
	assert.ErrorIs(t, err, ErrInviteCodeNotFound)
	_, err = e.association.AssociateWithTrainer(context.Background(), clientActor, "")
	assert.ErrorIs(t, err, ErrInviteCodeNotFound)
}

func TestAssociateWithTrainer_UnknownCodeCheckedBeforeExistingTrainer(t *testing.T) {
	e := newEnv()
	trainer, _ := e.seed("João", "joao@gym.pt", domain.RoleTrainer)
	client, clientActor := e.seed("Rita", "rita@x.pt", domain.RoleUser)
	e.link(client, trainer)

	_, err := e.association.AssociateWithTrainer(context.Background(), clientActor, "PT-XX-0000")
	assert.ErrorIs(t, err, ErrInviteCodeNotFound)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestRequestDisassociation(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	trainer, _ := e.seed("João", "joao@gym.pt", domain.RoleTrainer)
	client, clientActor := e.seed("Rita", "rita@x.pt", domain.RoleUser)

	_, err := e.association.RequestDisassociation(ctx, clientActor, "quero sair do plano")
	assert.ErrorIs(t, err, ErrNotAssociated)

	e.link(client, trainer)

	_, err = e.association.RequestDisassociation(ctx, clientActor, "   curto   ")
	assert.ErrorIs(t, err, ErrReasonTooShort)

	req, err := e.association.RequestDisassociation(ctx, clientActor, "mudei de ginásio")
	require.NoError(t, err)
	assert.Equal(t, domain.RequestPending, req.Status)
	assert.Equal(t, trainer.ID, req.TrainerID)

	_, err = e.association.RequestDisassociation(ctx, clientActor, "outro motivo qualquer")
	assert.ErrorIs(t, err, ErrDuplicateRequest)

	var requested int
	for _, evt := range e.publisher.ofType(notify.EventAdminNotifications) {
		if p, ok := evt.Event.Payload.(map[string]interface{}); ok && p["type"] == "disassociation_requested" {
			requested++
		}
	}
	assert.Equal(t, 1, requested)
}

func TestRequestDisassociation_CreatorTrainerCounts(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	trainer, _ := e.seed("João", "joao@gym.pt", domain.RoleTrainer)
	client, clientActor := e.seed("Rita", "rita@x.pt", domain.RoleUser)
	e.users.mu.Lock()
	e.users.users[client.ID].CreatedBy = &trainer.ID
	e.users.mu.Unlock()

	req, err := e.association.RequestDisassociation(ctx, clientActor, "mudei de ginásio")
	require.NoError(t, err)
	assert.Equal(t, trainer.ID, req.TrainerID)
}

func TestResolveDisassociation_Approve(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	trainer, trainerActor := e.seed("João", "joao@gym.pt", domain.RoleTrainer)
	client, clientActor := e.seed("Rita", "rita@x.pt", domain.RoleUser)
	_, adminActor := e.seed("Admin", "admin@gym.pt", domain.RoleAdmin)
	e.link(client, trainer)

	plan, err := e.planSvc.CreatePlan(ctx, trainerActor, PlanInput{ClientID: client.ID})
	require.NoError(t, err)
	_, err = e.planSvc.UpsertSession(ctx, trainerActor, plan.ID, "monday", domain.SessionInput{StartTime: "08:00"})
	require.NoError(t, err)

	req, err := e.association.RequestDisassociation(ctx, clientActor, "mudei de ginásio")
	require.NoError(t, err)

	_, err = e.association.ResolveDisassociation(ctx, clientActor, req.ID, "approve")
	assert.ErrorIs(t, err, ErrForbidden)

	resolved, err := e.association.ResolveDisassociation(ctx, adminActor, req.ID, "approve")
	require.NoError(t, err)
	assert.Equal(t, domain.RequestApproved, resolved.Status)
	require.NotNil(t, resolved.ResolvedBy)
	assert.Equal(t, adminActor.ID, *resolved.ResolvedBy)

	stored, _ := e.users.GetByID(ctx, client.ID)
	assert.False(t, stored.HasTrainer())
	assert.Nil(t, stored.CreatedBy)

	_, err = e.plans.GetByID(ctx, plan.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	sessions, _ := e.sessions.ListByPlan(ctx, plan.ID)
	assert.Empty(t, sessions)

	_, err = e.association.ResolveDisassociation(ctx, adminActor, req.ID, "reject")
	assert.ErrorIs(t, err, ErrAlreadyResolved)
}

func TestResolveDisassociation_Reject(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	trainer, _ := e.seed("João", "joao@gym.pt", domain.RoleTrainer)
	client, clientActor := e.seed("Rita", "rita@x.pt", domain.RoleUser)
	_, adminActor := e.seed("Admin", "admin@gym.pt", domain.RoleAdmin)
	e.link(client, trainer)

	req, err := e.association.RequestDisassociation(ctx, clientActor, "mudei de ginásio")
	require.NoError(t, err)

	_, err = e.association.ResolveDisassociation(ctx, adminActor, req.ID, "maybe")
	assert.ErrorIs(t, err, ErrInvalidDecision)

	resolved, err := e.association.ResolveDisassociation(ctx, adminActor, req.ID, "REJECT")
	require.NoError(t, err)
	assert.Equal(t, domain.RequestRejected, resolved.Status)

	stored, _ := e.users.GetByID(ctx, client.ID)
	assert.True(t, stored.HasTrainer())

	// A fresh request is possible once the previous one is resolved.
	_, err = e.association.RequestDisassociation(ctx, clientActor, "mudei mesmo de ginásio")
	assert.NoError(t, err)
}

func TestResolveDisassociation_NotFound(t *testing.T) {
	e := newEnv()
	_, adminActor := e.seed("Admin", "admin@gym.pt", domain.RoleAdmin)

	_, err := e.association.ResolveDisassociation(context.Background(), adminActor, primitive.NewObjectID(), "approve")
	assert.ErrorIs(t, err, ErrRequestNotFound)
}

func TestListRequests(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	trainer, _ := e.seed("João", "joao@gym.pt", domain.RoleTrainer)
	client, clientActor := e.seed("Rita", "rita@x.pt", domain.RoleUser)
	_, adminActor := e.seed("Admin", "admin@gym.pt", domain.RoleAdmin)
	e.link(client, trainer)

	svc := e.association.(*associationService)
	svc.now = func() time.Time { return time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC) }
	req, err := svc.RequestDisassociation(ctx, clientActor, "mudei de ginásio")
	require.NoError(t, err)

	pending, err := svc.ListRequests(ctx, adminActor, "pending")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, req.ID, pending[0].ID)

	approved, err := svc.ListRequests(ctx, adminActor, "approved")
	require.NoError(t, err)
	assert.Empty(t, approved)

	_, err = svc.ListRequests(ctx, adminActor, "bogus")
	assert.Equal(t, KindValidation, KindOf(err))
	_, err = svc.ListRequests(ctx, clientActor, "")
	assert.ErrorIs(t, err, ErrForbidden)

	mine, err := svc.MyRequests(ctx, clientActor)
	require.NoError(t, err)
	assert.Len(t, mine, 1)
}

// racingRequestRepo lands a competing resolution just before each Resolve.
type racingRequestRepo struct {
	*fakeRequestRepo
	competing domain.RequestStatus
	by        primitive.ObjectID
}

func (r *racingRequestRepo) Resolve(ctx context.Context, id primitive.ObjectID, status domain.RequestStatus, by primitive.ObjectID, at time.Time) (*domain.DisassociationRequest, error) {
	if _, err := r.fakeRequestRepo.Resolve(ctx, id, r.competing, r.by, at); err != nil {
		return nil, err
	}
	return r.fakeRequestRepo.Resolve(ctx, id, status, by, at)
}

func TestResolveDisassociation_ApproveLosingToConcurrentReject(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	trainer, trainerActor := e.seed("João", "joao@gym.pt", domain.RoleTrainer)
	client, clientActor := e.seed("Rita", "rita@x.pt", domain.RoleUser)
	_, adminActor := e.seed("Admin", "admin@gym.pt", domain.RoleAdmin)
	e.link(client, trainer)

	plan, err := e.planSvc.CreatePlan(ctx, trainerActor, PlanInput{ClientID: client.ID})
	require.NoError(t, err)
	req, err := e.association.RequestDisassociation(ctx, clientActor, "mudei de ginásio")
	require.NoError(t, err)

	svc := e.association.(*associationService)
	svc.requestRepo = &racingRequestRepo{fakeRequestRepo: e.requests, competing: domain.RequestRejected, by: adminActor.ID}

	_, err = svc.ResolveDisassociation(ctx, adminActor, req.ID, "approve")
	assert.ErrorIs(t, err, ErrAlreadyResolved)

	stored, _ := e.requests.GetByID(ctx, req.ID)
	assert.Equal(t, domain.RequestRejected, stored.Status)
	user, _ := e.users.GetByID(ctx, client.ID)
	require.True(t, user.HasTrainer())
	assert.Equal(t, trainer.ID, *user.Trainer)
	_, err = e.plans.GetByID(ctx, plan.ID)
	assert.NoError(t, err)
}

// failingPlanIDs breaks the plan lookup of the approval cascade.
type failingPlanIDs struct {
	*fakePlanRepo
}

func (failingPlanIDs) ListIDsByClient(context.Context, primitive.ObjectID, *primitive.ObjectID) ([]primitive.ObjectID, error) {
	return nil, errBoom
}

func TestResolveDisassociation_FailedApprovalReopens(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	trainer, trainerActor := e.seed("João", "joao@gym.pt", domain.RoleTrainer)
	client, clientActor := e.seed("Rita", "rita@x.pt", domain.RoleUser)
	_, adminActor := e.seed("Admin", "admin@gym.pt", domain.RoleAdmin)
	e.link(client, trainer)

	plan, err := e.planSvc.CreatePlan(ctx, trainerActor, PlanInput{ClientID: client.ID})
	require.NoError(t, err)
	req, err := e.association.RequestDisassociation(ctx, clientActor, "mudei de ginásio")
	require.NoError(t, err)

	svc := e.association.(*associationService)
	svc.planRepo = failingPlanIDs{e.plans}
	_, err = svc.ResolveDisassociation(ctx, adminActor, req.ID, "approve")
	assert.ErrorIs(t, err, errBoom)

	stored, _ := e.requests.GetByID(ctx, req.ID)
	assert.Equal(t, domain.RequestPending, stored.Status)
	assert.Nil(t, stored.ResolvedBy)

	// The cascade is idempotent, so approving again completes it.
	svc.planRepo = e.plans
	resolved, err := svc.ResolveDisassociation(ctx, adminActor, req.ID, "approve")
	require.NoError(t, err)
	assert.Equal(t, domain.RequestApproved, resolved.Status)
	_, err = e.plans.GetByID(ctx, plan.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
