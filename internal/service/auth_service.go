package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"gymflow/gym-api/internal/domain"
	"gymflow/gym-api/internal/mail"
	"gymflow/gym-api/internal/notify"
	"gymflow/gym-api/internal/repository"

	"github.com/golang-jwt/jwt/v4"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const (
	MinPasswordLength = 6
	resetTokenBytes   = 32
	resetTokenTTL     = time.Hour
	tokenIssuer       = "gym-api"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Claims is the JWT payload: {id, name, scope[]}.
type Claims struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Scope []domain.Scope `json:"scope"`
	jwt.RegisteredClaims
}

// AuthConfig carries the token and reset settings.
type AuthConfig struct {
	JWTSecret   string
	TokenTTL    time.Duration
	RememberTTL time.Duration
	FrontendURL string
}

// RegisterInput is a self-registration request.
type RegisterInput struct {
	Name       string
	Email      string
	Password   string
	InviteCode string
}

// LoginResult is what a successful login hands back.
type LoginResult struct {
	Token     string
	ExpiresIn time.Duration
	User      *domain.User
}

type AuthService interface {
	Register(ctx context.Context, in RegisterInput) (*domain.User, error)
	Login(ctx context.Context, nameOrEmail, password string, remember bool) (*LoginResult, error)
	Me(ctx context.Context, actor Actor) (*domain.User, error)
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
	// ParseToken validates a signed token and returns the caller it names.
	ParseToken(token string) (*Actor, error)
	// EnsureAdmin creates the first admin when none exists. It reports whether one was created.
	EnsureAdmin(ctx context.Context, name, email, password string) (bool, error)
}

// authService implements the AuthService interface.
type authService struct {
	userRepo  repository.UserRepository
	mailer    Mailer
	publisher Publisher
	cfg       AuthConfig
	log       *logrus.Logger
	now       clock
}

// NewAuthService creates a new instance of authService.
func NewAuthService(userRepo repository.UserRepository, mailer Mailer, publisher Publisher, cfg AuthConfig, log *logrus.Logger) AuthService {
	if cfg.JWTSecret == "" {
		panic("JWT secret cannot be empty")
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	if cfg.RememberTTL <= 0 {
		cfg.RememberTTL = 30 * 24 * time.Hour
	}
	return &authService{
		userRepo:  userRepo,
		mailer:    mailer,
		publisher: publisher,
		cfg:       cfg,
		log:       log,
		now:       systemClock,
	}
}

func validateCredentials(name, email, password string) error {
	if name == "" || email == "" || password == "" {
		return ErrMissingFields
	}
	if !emailPattern.MatchString(email) {
		return ErrInvalidEmail
	}
	if len(password) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	return nil
}

// checkAvailable fails when email or name (case-insensitive) is in use by
// anyone other than self.
func checkAvailable(ctx context.Context, users repository.UserRepository, self *domain.User, name, email string) error {
	existing, err := users.GetByEmail(ctx, email)
	if err == nil && (self == nil || existing.ID != self.ID) {
		return ErrEmailTaken
	}
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	existing, err = users.GetByNameKey(ctx, domain.NameKey(name))
	if err == nil && (self == nil || existing.ID != self.ID) {
		return ErrNameTaken
	}
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	return nil
}

// duplicateError tells which unique field a racing insert collided on.
func duplicateError(ctx context.Context, users repository.UserRepository, email string) error {
	if _, err := users.GetByEmail(ctx, email); err == nil {
		return ErrEmailTaken
	}
	return ErrNameTaken
}

func hashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hashed), nil
}

// Register handles new user registration.
func (s *authService) Register(ctx context.Context, in RegisterInput) (*domain.User, error) {
	name := strings.TrimSpace(in.Name)
	email := domain.NormalizeEmail(in.Email)
	if err := validateCredentials(name, email, in.Password); err != nil {
		return nil, err
	}
	if err := checkAvailable(ctx, s.userRepo, nil, name, email); err != nil {
		return nil, err
	}

	role, _ := domain.NewRole(domain.RoleUser)
	user := &domain.User{Name: name, Email: email, Role: role}

	if code := strings.TrimSpace(in.InviteCode); code != "" {
		trainer, err := s.userRepo.GetByInviteCode(ctx, strings.ToUpper(code))
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, ErrInviteCodeNotFound
			}
			return nil, err
		}
		user.Trainer = &trainer.ID
		user.CreatedBy = &trainer.ID
	}

	hash, err := hashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	user.PasswordHash = hash

	if _, err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, duplicateError(ctx, s.userRepo, email)
		}
		return nil, err
	}

	s.publisher.PublishToAdmins(notify.Event{Type: notify.EventAdminNotifications, Payload: userPayload("user_added", user)})
	return sanitizeUser(user), nil
}

// Login accepts either the email or the (case-insensitive) name.
func (s *authService) Login(ctx context.Context, nameOrEmail, password string, remember bool) (*LoginResult, error) {
	nameOrEmail = strings.TrimSpace(nameOrEmail)
	if nameOrEmail == "" || password == "" {
		return nil, ErrAuthenticationFailed
	}

	user, err := s.userRepo.GetByEmail(ctx, nameOrEmail)
	if errors.Is(err, repository.ErrNotFound) {
		user, err = s.userRepo.GetByNameKey(ctx, domain.NameKey(nameOrEmail))
	}
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAuthenticationFailed
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrAuthenticationFailed
	}

	ttl := s.cfg.TokenTTL
	if remember {
		ttl = s.cfg.RememberTTL
	}
	token, err := s.generateJWT(user, ttl)
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	return &LoginResult{Token: token, ExpiresIn: ttl, User: sanitizeUser(user)}, nil
}

func (s *authService) Me(ctx context.Context, actor Actor) (*domain.User, error) {
	user, err := s.userRepo.GetByID(ctx, actor.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return sanitizeUser(user), nil
}

// ForgotPassword mails a reset link. Unknown addresses succeed silently so
// the endpoint cannot be used to probe for accounts.
func (s *authService) ForgotPassword(ctx context.Context, email string) error {
	email = domain.NormalizeEmail(email)
	if !emailPattern.MatchString(email) {
		return ErrInvalidEmail
	}
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.log.WithField("email", email).Debug("password reset requested for unknown email")
			return nil
		}
		return err
	}

	token, err := generateResetToken()
	if err != nil {
		return fmt.Errorf("generate reset token: %w", err)
	}
	expires := s.now().Add(resetTokenTTL)
	if err := s.userRepo.SetResetToken(ctx, user.ID, hashToken(token), expires); err != nil {
		return err
	}

	link := strings.TrimRight(s.cfg.FrontendURL, "/") + "/reset-password/" + token
	msg := mail.Message{
		To:      user.Email,
		Subject: "Recuperação de password",
		Body: fmt.Sprintf("Olá %s,\n\nPara definir uma nova password abra o link abaixo (válido durante 1 hora):\n\n%s\n\nSe não fez este pedido ignore este email.\n",
			domain.FirstName(user.Name), link),
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		s.log.WithError(err).WithField("userId", user.ID.Hex()).Error("failed to send reset email")
		return dependencyError("Não foi possível enviar o email de recuperação", err)
	}
	return nil
}

func (s *authService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if token == "" {
		return ErrInvalidResetToken
	}
	if len(newPassword) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	user, err := s.userRepo.GetByResetToken(ctx, hashToken(token), s.now())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidResetToken
		}
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(newPassword)) == nil {
		return ErrSamePassword
	}
	hash, err := hashPassword(newPassword)
	if err != nil {
		return err
	}
	return s.userRepo.SetPassword(ctx, user.ID, hash)
}

func (s *authService) EnsureAdmin(ctx context.Context, name, email, password string) (bool, error) {
	if email == "" || password == "" {
		return false, nil
	}
	count, err := s.userRepo.CountByRole(ctx, domain.RoleAdmin)
	if err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}
	if name == "" {
		name = "admin"
	}
	email = domain.NormalizeEmail(email)
	if err := validateCredentials(name, email, password); err != nil {
		return false, err
	}
	hash, err := hashPassword(password)
	if err != nil {
		return false, err
	}
	role, _ := domain.NewRole(domain.RoleAdmin)
	admin := &domain.User{Name: name, Email: email, PasswordHash: hash, Role: role}
	if _, err := s.userRepo.Create(ctx, admin); err != nil {
		return false, err
	}
	return true, nil
}

// --- JWT Helper ---

func (s *authService) generateJWT(user *domain.User, ttl time.Duration) (string, error) {
	now := s.now()
	claims := &Claims{
		ID:    user.ID.Hex(),
		Name:  user.Name,
		Scope: user.Role.Scope,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.Hex(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.JWTSecret))
}

func (s *authService) ParseToken(tokenString string) (*Actor, error) {
	if tokenString == "" {
		return nil, ErrMissingToken
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	id, err := primitiveID(claims.ID)
	if err != nil {
		return nil, ErrInvalidToken
	}
	return &Actor{ID: id, Name: claims.Name, Scopes: domain.SanitizeScopes(claims.Scope)}, nil
}

// --- Reset token helpers ---

func generateResetToken() (string, error) {
	b := make([]byte, resetTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// hashToken is what gets stored; the raw token only ever travels by mail.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
