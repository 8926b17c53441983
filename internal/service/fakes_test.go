package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"gymflow/gym-api/internal/domain"
	"gymflow/gym-api/internal/mail"
	"gymflow/gym-api/internal/notify"
	"gymflow/gym-api/internal/repository"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// fakeUserRepo is an in-memory repository.UserRepository with the same
// uniqueness rules as the Mongo indexes.
type fakeUserRepo struct {
	mu    sync.RWMutex
	users map[primitive.ObjectID]*domain.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[primitive.ObjectID]*domain.User)}
}

func cloneUser(u *domain.User) *domain.User {
	c := *u
	c.Role.Scope = append([]domain.Scope(nil), u.Role.Scope...)
	return &c
}

func (f *fakeUserRepo) conflicts(u *domain.User) bool {
	for _, other := range f.users {
		if other.ID == u.ID {
			continue
		}
		if other.Email == u.Email || other.NameKey == u.NameKey {
			return true
		}
		if u.InviteCode != "" && other.InviteCode == u.InviteCode {
			return true
		}
	}
	return false
}

func (f *fakeUserRepo) Create(_ context.Context, u *domain.User) (primitive.ObjectID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u.ID = primitive.NewObjectID()
	u.NameKey = domain.NameKey(u.Name)
	u.CreatedAt = time.Now().UTC()
	u.UpdatedAt = u.CreatedAt
	if f.conflicts(u) {
		return primitive.NilObjectID, repository.ErrDuplicate
	}
	f.users[u.ID] = cloneUser(u)
	return u.ID, nil
}

func (f *fakeUserRepo) get(id primitive.ObjectID) (*domain.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneUser(u), nil
}

func (f *fakeUserRepo) GetByID(_ context.Context, id primitive.ObjectID) (*domain.User, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.get(id)
}

func (f *fakeUserRepo) GetByIDs(_ context.Context, ids []primitive.ObjectID) ([]domain.User, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := []domain.User{}
	for _, id := range ids {
		if u, ok := f.users[id]; ok {
			out = append(out, *cloneUser(u))
		}
	}
	return out, nil
}

func (f *fakeUserRepo) findOne(match func(*domain.User) bool) (*domain.User, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, u := range f.users {
		if match(u) {
			return cloneUser(u), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	email = domain.NormalizeEmail(email)
	return f.findOne(func(u *domain.User) bool { return u.Email == email })
}

func (f *fakeUserRepo) GetByNameKey(_ context.Context, nameKey string) (*domain.User, error) {
	return f.findOne(func(u *domain.User) bool { return u.NameKey == nameKey })
}

func (f *fakeUserRepo) GetByInviteCode(_ context.Context, code string) (*domain.User, error) {
	return f.findOne(func(u *domain.User) bool { return u.InviteCode == code && u.IsTrainer() })
}

func (f *fakeUserRepo) GetByResetToken(_ context.Context, hash string, now time.Time) (*domain.User, error) {
	return f.findOne(func(u *domain.User) bool {
		return u.ResetPasswordToken == hash && u.ResetPasswordExpires != nil && u.ResetPasswordExpires.After(now)
	})
}

func (f *fakeUserRepo) filter(match func(*domain.User) bool) []domain.User {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := []domain.User{}
	for _, u := range f.users {
		if match(u) {
			out = append(out, *cloneUser(u))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (f *fakeUserRepo) List(_ context.Context, filter repository.UserFilter) ([]domain.User, error) {
	return f.filter(func(u *domain.User) bool {
		if filter.Role != "" && u.Role.Name != filter.Role {
			return false
		}
		if filter.CreatedBy != nil && (u.CreatedBy == nil || *u.CreatedBy != *filter.CreatedBy) {
			return false
		}
		if filter.Trainer != nil && (u.Trainer == nil || *u.Trainer != *filter.Trainer) {
			return false
		}
		return true
	}), nil
}

func (f *fakeUserRepo) ListClientsOf(_ context.Context, trainerID primitive.ObjectID) ([]domain.User, error) {
	return f.filter(func(u *domain.User) bool {
		return u.ID != trainerID && trainsClient(u, trainerID)
	}), nil
}

func (f *fakeUserRepo) CountByRole(_ context.Context, role domain.RoleName) (int64, error) {
	return int64(len(f.filter(func(u *domain.User) bool { return u.Role.Name == role }))), nil
}

func (f *fakeUserRepo) mutate(id primitive.ObjectID, fn func(u *domain.User) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	next := cloneUser(u)
	if err := fn(next); err != nil {
		return err
	}
	if f.conflicts(next) {
		return repository.ErrDuplicate
	}
	next.UpdatedAt = time.Now().UTC()
	f.users[id] = next
	return nil
}

func (f *fakeUserRepo) Update(_ context.Context, user *domain.User) error {
	return f.mutate(user.ID, func(u *domain.User) error {
		u.Name, u.NameKey, u.Email = user.Name, domain.NameKey(user.Name), user.Email
		u.Role = user.Role
		u.BirthDate, u.Address, u.Country = user.BirthDate, user.Address, user.Country
		u.ProfileImage, u.ProfileImageKey = user.ProfileImage, user.ProfileImageKey
		u.InviteCode = user.InviteCode
		return nil
	})
}

func (f *fakeUserRepo) SetInviteCode(_ context.Context, id primitive.ObjectID, code string) error {
	return f.mutate(id, func(u *domain.User) error { u.InviteCode = code; return nil })
}

func (f *fakeUserRepo) SetTrainer(_ context.Context, id, trainerID primitive.ObjectID) error {
	return f.mutate(id, func(u *domain.User) error {
		if u.HasTrainer() {
			return repository.ErrUpdateFailed
		}
		t := trainerID
		u.Trainer, u.CreatedBy = &t, &t
		return nil
	})
}

func (f *fakeUserRepo) ClearTrainer(_ context.Context, id, trainerID primitive.ObjectID) error {
	return f.mutate(id, func(u *domain.User) error {
		u.Trainer = nil
		if u.CreatedBy != nil && *u.CreatedBy == trainerID {
			u.CreatedBy = nil
		}
		return nil
	})
}

func (f *fakeUserRepo) SetResetToken(_ context.Context, id primitive.ObjectID, hash string, expires time.Time) error {
	return f.mutate(id, func(u *domain.User) error {
		u.ResetPasswordToken, u.ResetPasswordExpires = hash, &expires
		return nil
	})
}

func (f *fakeUserRepo) SetPassword(_ context.Context, id primitive.ObjectID, hash string) error {
	return f.mutate(id, func(u *domain.User) error {
		u.PasswordHash = hash
		u.ResetPasswordToken, u.ResetPasswordExpires = "", nil
		return nil
	})
}

func (f *fakeUserRepo) Delete(_ context.Context, id primitive.ObjectID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.users, id)
	return nil
}

// fakeRequestRepo mirrors the partial unique index on pending requests.
type fakeRequestRepo struct {
	mu       sync.Mutex
	requests map[primitive.ObjectID]*domain.DisassociationRequest
}

func newFakeRequestRepo() *fakeRequestRepo {
	return &fakeRequestRepo{requests: make(map[primitive.ObjectID]*domain.DisassociationRequest)}
}

func (f *fakeRequestRepo) Create(_ context.Context, req *domain.DisassociationRequest) (primitive.ObjectID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.requests {
		if r.UserID == req.UserID && r.IsPending() {
			return primitive.NilObjectID, repository.ErrDuplicate
		}
	}
	req.ID = primitive.NewObjectID()
	c := *req
	f.requests[req.ID] = &c
	return req.ID, nil
}

func (f *fakeRequestRepo) GetByID(_ context.Context, id primitive.ObjectID) (*domain.DisassociationRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.requests[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *r
	return &c, nil
}

func (f *fakeRequestRepo) GetPendingByUser(_ context.Context, userID primitive.ObjectID) (*domain.DisassociationRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.requests {
		if r.UserID == userID && r.IsPending() {
			c := *r
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeRequestRepo) list(match func(*domain.DisassociationRequest) bool) []domain.DisassociationRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.DisassociationRequest{}
	for _, r := range f.requests {
		if match(r) {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (f *fakeRequestRepo) List(_ context.Context, status domain.RequestStatus) ([]domain.DisassociationRequest, error) {
	return f.list(func(r *domain.DisassociationRequest) bool { return status == "" || r.Status == status }), nil
}

func (f *fakeRequestRepo) ListByUser(_ context.Context, userID primitive.ObjectID) ([]domain.DisassociationRequest, error) {
	return f.list(func(r *domain.DisassociationRequest) bool { return r.UserID == userID }), nil
}

func (f *fakeRequestRepo) Resolve(_ context.Context, id primitive.ObjectID, status domain.RequestStatus, by primitive.ObjectID, at time.Time) (*domain.DisassociationRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.requests[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if !r.IsPending() {
		return nil, repository.ErrUpdateFailed
	}
	r.Status, r.ResolvedAt, r.ResolvedBy = status, &at, &by
	c := *r
	return &c, nil
}

func (f *fakeRequestRepo) Reopen(_ context.Context, id primitive.ObjectID, status domain.RequestStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.requests[id]
	if !ok {
		return repository.ErrNotFound
	}
	if r.Status != status {
		return repository.ErrUpdateFailed
	}
	r.Status, r.ResolvedAt, r.ResolvedBy = domain.RequestPending, nil, nil
	return nil
}

// fakePlanRepo keeps the one-active-plan rule the Mongo transaction enforces.
type fakePlanRepo struct {
	mu    sync.Mutex
	plans map[primitive.ObjectID]*domain.WorkoutPlan
}

func newFakePlanRepo() *fakePlanRepo {
	return &fakePlanRepo{plans: make(map[primitive.ObjectID]*domain.WorkoutPlan)}
}

func (f *fakePlanRepo) deactivateOthers(clientID, keep primitive.ObjectID) {
	for _, p := range f.plans {
		if p.ClientID == clientID && p.ID != keep {
			p.Active = false
		}
	}
}

func (f *fakePlanRepo) Create(_ context.Context, plan *domain.WorkoutPlan) (primitive.ObjectID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	plan.ID = primitive.NewObjectID()
	plan.CreatedAt = time.Now().UTC()
	plan.UpdatedAt = plan.CreatedAt
	if plan.Active {
		f.deactivateOthers(plan.ClientID, plan.ID)
	}
	c := *plan
	f.plans[plan.ID] = &c
	return plan.ID, nil
}

func (f *fakePlanRepo) GetByID(_ context.Context, id primitive.ObjectID) (*domain.WorkoutPlan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.plans[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *p
	return &c, nil
}

func (f *fakePlanRepo) list(match func(*domain.WorkoutPlan) bool) []domain.WorkoutPlan {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.WorkoutPlan{}
	for _, p := range f.plans {
		if match(p) {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (f *fakePlanRepo) GetActiveByClient(_ context.Context, clientID primitive.ObjectID) (*domain.WorkoutPlan, error) {
	plans := f.list(func(p *domain.WorkoutPlan) bool { return p.ClientID == clientID && p.Active })
	if len(plans) == 0 {
		return nil, repository.ErrNotFound
	}
	return &plans[0], nil
}

func (f *fakePlanRepo) ListByTrainer(_ context.Context, trainerID primitive.ObjectID) ([]domain.WorkoutPlan, error) {
	return f.list(func(p *domain.WorkoutPlan) bool { return p.TrainerID == trainerID }), nil
}

func (f *fakePlanRepo) ListInactiveByClient(_ context.Context, clientID primitive.ObjectID) ([]domain.WorkoutPlan, error) {
	return f.list(func(p *domain.WorkoutPlan) bool { return p.ClientID == clientID && !p.Active }), nil
}

func (f *fakePlanRepo) ListIDsByClient(_ context.Context, clientID primitive.ObjectID, trainerID *primitive.ObjectID) ([]primitive.ObjectID, error) {
	plans := f.list(func(p *domain.WorkoutPlan) bool {
		return p.ClientID == clientID && (trainerID == nil || p.TrainerID == *trainerID)
	})
	ids := make([]primitive.ObjectID, len(plans))
	for i, p := range plans {
		ids[i] = p.ID
	}
	return ids, nil
}

func (f *fakePlanRepo) Update(_ context.Context, id primitive.ObjectID, upd domain.PlanUpdate) (*domain.WorkoutPlan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.plans[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if upd.Name != nil {
		p.Name = *upd.Name
	}
	if upd.Goal != nil {
		p.Goal = *upd.Goal
	}
	if upd.Notes != nil {
		p.Notes = *upd.Notes
	}
	if upd.WeeklyFrequency != nil {
		p.WeeklyFrequency = *upd.WeeklyFrequency
	}
	if upd.Active != nil {
		if *upd.Active {
			f.deactivateOthers(p.ClientID, p.ID)
		}
		p.Active = *upd.Active
	}
	p.UpdatedAt = time.Now().UTC()
	c := *p
	return &c, nil
}

func (f *fakePlanRepo) Activate(ctx context.Context, id primitive.ObjectID) (*domain.WorkoutPlan, error) {
	active := true
	return f.Update(ctx, id, domain.PlanUpdate{Active: &active})
}

func (f *fakePlanRepo) Deactivate(ctx context.Context, id primitive.ObjectID) (*domain.WorkoutPlan, error) {
	inactive := false
	return f.Update(ctx, id, domain.PlanUpdate{Active: &inactive})
}

func (f *fakePlanRepo) Delete(_ context.Context, id primitive.ObjectID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.plans[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.plans, id)
	return nil
}

func (f *fakePlanRepo) DeleteMany(_ context.Context, ids []primitive.ObjectID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, id := range ids {
		if _, ok := f.plans[id]; ok {
			delete(f.plans, id)
			n++
		}
	}
	return n, nil
}

type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[primitive.ObjectID]*domain.WorkoutSession
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: make(map[primitive.ObjectID]*domain.WorkoutSession)}
}

func (f *fakeSessionRepo) Upsert(_ context.Context, planID primitive.ObjectID, day domain.DayOfWeek, in domain.SessionInput) (*domain.WorkoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now().UTC()
	for _, s := range f.sessions {
		if s.PlanID == planID && s.DayOfWeek == day {
			s.StartTime, s.EndTime, s.Exercises, s.UpdatedAt = in.StartTime, in.EndTime, in.Exercises, now
			c := *s
			return &c, nil
		}
	}
	s := &domain.WorkoutSession{
		ID: primitive.NewObjectID(), PlanID: planID, DayOfWeek: day,
		StartTime: in.StartTime, EndTime: in.EndTime, Exercises: in.Exercises,
		CreatedAt: now, UpdatedAt: now,
	}
	f.sessions[s.ID] = s
	c := *s
	return &c, nil
}

func (f *fakeSessionRepo) GetByID(_ context.Context, id primitive.ObjectID) (*domain.WorkoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *s
	return &c, nil
}

func (f *fakeSessionRepo) GetByIDs(_ context.Context, ids []primitive.ObjectID) ([]domain.WorkoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.WorkoutSession{}
	for _, id := range ids {
		if s, ok := f.sessions[id]; ok {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeSessionRepo) ListByPlan(_ context.Context, planID primitive.ObjectID) ([]domain.WorkoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.WorkoutSession{}
	for _, s := range f.sessions {
		if s.PlanID == planID {
			out = append(out, *s)
		}
	}
	domain.SortSessions(out)
	return out, nil
}

func (f *fakeSessionRepo) Delete(_ context.Context, id primitive.ObjectID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.sessions, id)
	return nil
}

func (f *fakeSessionRepo) DeleteByPlans(_ context.Context, planIDs []primitive.ObjectID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	set := make(map[primitive.ObjectID]bool, len(planIDs))
	for _, id := range planIDs {
		set[id] = true
	}
	var n int64
	for id, s := range f.sessions {
		if set[s.PlanID] {
			delete(f.sessions, id)
			n++
		}
	}
	return n, nil
}

type fakeCompletionRepo struct {
	mu          sync.Mutex
	completions map[primitive.ObjectID]*domain.WorkoutCompletion
}

func newFakeCompletionRepo() *fakeCompletionRepo {
	return &fakeCompletionRepo{completions: make(map[primitive.ObjectID]*domain.WorkoutCompletion)}
}

func (f *fakeCompletionRepo) Upsert(_ context.Context, sessionID, clientID primitive.ObjectID, date time.Time, in domain.CompletionInput) (*domain.WorkoutCompletion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	day := domain.CalendarDay(date)
	var c *domain.WorkoutCompletion
	for _, existing := range f.completions {
		if existing.SessionID == sessionID && existing.ClientID == clientID && existing.Date.Equal(day) {
			c = existing
			break
		}
	}
	if c == nil {
		c = &domain.WorkoutCompletion{ID: primitive.NewObjectID(), SessionID: sessionID, ClientID: clientID, Date: day, CreatedAt: time.Now().UTC()}
		f.completions[c.ID] = c
	}
	c.Completed = in.Completed
	c.Reason = ""
	if !in.Completed {
		c.Reason = in.Reason
	}
	c.Notes = in.Notes
	if in.ProofURL != "" {
		c.Proof, c.ProofKey = in.ProofURL, in.ProofKey
	}
	c.UpdatedAt = time.Now().UTC()
	out := *c
	return &out, nil
}

func (f *fakeCompletionRepo) GetByID(_ context.Context, id primitive.ObjectID) (*domain.WorkoutCompletion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.completions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *c
	return &out, nil
}

func (f *fakeCompletionRepo) SetProof(_ context.Context, id primitive.ObjectID, url, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.completions[id]
	if !ok {
		return repository.ErrNotFound
	}
	c.Proof, c.ProofKey = url, key
	return nil
}

func (f *fakeCompletionRepo) ListByClient(_ context.Context, clientID primitive.ObjectID, rng domain.CompletionRange, missedOnly bool) ([]domain.WorkoutCompletion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.WorkoutCompletion{}
	for _, c := range f.completions {
		if c.ClientID != clientID || (missedOnly && c.Completed) {
			continue
		}
		if rng.Start != nil && c.Date.Before(domain.CalendarDay(*rng.Start)) {
			continue
		}
		if rng.End != nil && c.Date.After(domain.CalendarDay(*rng.End)) {
			continue
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}

type fakeMessageRepo struct {
	mu       sync.Mutex
	messages []domain.ChatMessage
}

func (f *fakeMessageRepo) Create(_ context.Context, msg *domain.ChatMessage) (primitive.ObjectID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg.ID = primitive.NewObjectID()
	f.messages = append(f.messages, *msg)
	return msg.ID, nil
}

func (f *fakeMessageRepo) Conversation(_ context.Context, a, b primitive.ObjectID) ([]domain.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.ChatMessage{}
	for _, m := range f.messages {
		if (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a) {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeMessageRepo) MarkRead(_ context.Context, readerID, senderID primitive.ObjectID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for i := range f.messages {
		m := &f.messages[i]
		if m.SenderID == senderID && m.ReceiverID == readerID && !m.Read {
			m.Read = true
			n++
		}
	}
	return n, nil
}

func (f *fakeMessageRepo) Summaries(_ context.Context, userID primitive.ObjectID) ([]repository.MessageSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	byPeer := map[primitive.ObjectID]*repository.MessageSummary{}
	for _, m := range f.messages {
		if m.SenderID != userID && m.ReceiverID != userID {
			continue
		}
		peer := m.Counterpart(userID)
		sum, ok := byPeer[peer]
		if !ok {
			sum = &repository.MessageSummary{CounterpartID: peer}
			byPeer[peer] = sum
		}
		if !m.CreatedAt.Before(sum.LastMessage.CreatedAt) {
			sum.LastMessage = m
		}
		if m.ReceiverID == userID && !m.Read {
			sum.UnreadCount++
		}
	}
	out := make([]repository.MessageSummary, 0, len(byPeer))
	for _, s := range byPeer {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastMessage.CreatedAt.After(out[j].LastMessage.CreatedAt) })
	return out, nil
}

type sentEvent struct {
	Event  notify.Event
	Topics []string
}

// recordingPublisher captures events instead of delivering them.
type recordingPublisher struct {
	mu     sync.Mutex
	events []sentEvent
}

func (p *recordingPublisher) PublishToUsers(evt notify.Event, userIDs ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, sentEvent{Event: evt, Topics: userIDs})
}

func (p *recordingPublisher) PublishToAdmins(evt notify.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, sentEvent{Event: evt, Topics: []string{notify.AdminsTopic}})
}

func (p *recordingPublisher) ofType(eventType string) []sentEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []sentEvent
	for _, e := range p.events {
		if e.Event.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

type fakeMailer struct {
	sent []mail.Message
	err  error
}

func (m *fakeMailer) Send(_ context.Context, msg mail.Message) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

// memStorage is an in-memory storage.FileStorage.
type memStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newMemStorage() *memStorage {
	return &memStorage{objects: make(map[string][]byte)}
}

func (m *memStorage) Put(_ context.Context, key, _ string, body io.Reader, _ int64) (string, error) {
	if m.putErr != nil {
		return "", m.putErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return "https://cdn.test/" + key, nil
}

func (m *memStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memStorage) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok
}

func pngUpload(size int) *Upload {
	return &Upload{Body: bytes.NewReader(make([]byte, size)), Size: int64(size), ContentType: "image/png"}
}

var errBoom = errors.New("boom")

func nullLogger() *logrus.Logger {
	log, _ := test.NewNullLogger()
	return log
}

// env wires every service over shared fakes.
type env struct {
	users       *fakeUserRepo
	requests    *fakeRequestRepo
	plans       *fakePlanRepo
	sessions    *fakeSessionRepo
	completions *fakeCompletionRepo
	messages    *fakeMessageRepo
	images      *memStorage
	chatFiles   *memStorage
	publisher   *recordingPublisher
	mailer      *fakeMailer

	auth        AuthService
	userSvc     UserService
	association AssociationService
	planSvc     PlanService
	completion  CompletionService
	chat        ChatService
}

const testSecret = "test-secret"

func newEnv() *env {
	e := &env{
		users:       newFakeUserRepo(),
		requests:    newFakeRequestRepo(),
		plans:       newFakePlanRepo(),
		sessions:    newFakeSessionRepo(),
		completions: newFakeCompletionRepo(),
		messages:    &fakeMessageRepo{},
		images:      newMemStorage(),
		chatFiles:   newMemStorage(),
		publisher:   &recordingPublisher{},
		mailer:      &fakeMailer{},
	}
	log := nullLogger()
	e.auth = NewAuthService(e.users, e.mailer, e.publisher, AuthConfig{
		JWTSecret:   testSecret,
		TokenTTL:    24 * time.Hour,
		RememberTTL: 30 * 24 * time.Hour,
		FrontendURL: "http://front.test",
	}, log)
	e.userSvc = NewUserService(e.users, e.plans, e.sessions, e.images, e.publisher, log, 2<<20)
	e.association = NewAssociationService(e.users, e.requests, e.plans, e.sessions, e.publisher, log)
	e.planSvc = NewPlanService(e.users, e.plans, e.sessions, e.publisher, log)
	e.completion = NewCompletionService(e.users, e.plans, e.sessions, e.completions, e.images, e.publisher, log, 2<<20)
	e.chat = NewChatService(e.users, e.messages, e.chatFiles, e.publisher, log, 10<<20)
	return e
}

// seed stores a user with a known password ("secret123") and returns it with its actor.
func (e *env) seed(name, email string, role domain.RoleName) (*domain.User, Actor) {
	r, _ := domain.NewRole(role)
	hash, err := hashPassword("secret123")
	if err != nil {
		panic(err)
	}
	u := &domain.User{Name: name, Email: domain.NormalizeEmail(email), PasswordHash: hash, Role: r}
	if _, err := e.users.Create(context.Background(), u); err != nil {
		panic(err)
	}
	return u, Actor{ID: u.ID, Name: u.Name, Scopes: r.Scope}
}

// link associates client with trainer directly in the store.
func (e *env) link(client, trainer *domain.User) {
	if err := e.users.SetTrainer(context.Background(), client.ID, trainer.ID); err != nil {
		panic(err)
	}
}
