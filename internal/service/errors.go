package service

import (
	"errors"

	"gymflow/gym-api/internal/domain"
	"gymflow/gym-api/internal/repository"
)

// Kind classifies a service error; the API layer maps it to a status code.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuthentication
	KindAuthorization
	KindNotFound
	KindConflict
	KindDependency
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindDependency:
		return "dependency"
	}
	return "internal"
}

// Error is a classified error. Message is user facing; Err, when set, is the
// underlying cause and is only logged.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func dependencyError(msg string, err error) error {
	return &Error{Kind: KindDependency, Message: msg, Err: err}
}

// --- Error Definitions ---
var (
	ErrMissingFields          = newError(KindValidation, "Nome, email e password são obrigatórios")
	ErrInvalidEmail           = newError(KindValidation, "Email inválido")
	ErrPasswordTooShort       = newError(KindValidation, "A password deve ter pelo menos 6 caracteres")
	ErrInvalidResetToken      = newError(KindValidation, "Token inválido ou expirado")
	ErrSamePassword           = newError(KindValidation, "A nova password deve ser diferente da anterior")
	ErrReasonTooShort         = newError(KindValidation, "O motivo deve ter pelo menos 10 caracteres")
	ErrNotAssociated          = newError(KindValidation, "Não está associado a nenhum treinador")
	ErrInvalidDecision        = newError(KindValidation, "Decisão inválida, use approve ou reject")
	ErrInvalidRole            = newError(KindValidation, "Função inválida")
	ErrInvalidWeeklyFrequency = newError(KindValidation, "A frequência semanal deve estar entre 1 e 7")
	ErrInvalidClient          = newError(KindValidation, "O destinatário do plano tem de ser um cliente")
	ErrClientWithoutTrainer   = newError(KindValidation, "O cliente não tem treinador associado")
	ErrEmptyMessage           = newError(KindValidation, "A mensagem precisa de texto ou imagem")
	ErrFileRequired           = newError(KindValidation, "Nenhum ficheiro enviado")
	ErrFileTooLarge           = newError(KindValidation, "Ficheiro demasiado grande")
	ErrInvalidImageType       = newError(KindValidation, "Apenas imagens são permitidas")

	ErrAuthenticationFailed = newError(KindAuthentication, "Credenciais inválidas")
	ErrMissingToken         = newError(KindAuthentication, "Autenticação necessária")
	ErrInvalidToken         = newError(KindAuthentication, "Sessão inválida ou expirada")

	ErrForbidden                 = newError(KindAuthorization, "Acesso negado")
	ErrTrainerOnly               = newError(KindAuthorization, "Apenas treinadores podem gerar códigos de convite")
	ErrPromotionHasTrainer       = newError(KindAuthorization, "Não é possível promover a treinador um utilizador associado a um treinador")
	ErrPromotionCreatedByTrainer = newError(KindAuthorization, "Não é possível promover a treinador um cliente criado por um treinador")

	ErrUserNotFound       = newError(KindNotFound, "Utilizador não encontrado")
	ErrInviteCodeNotFound = newError(KindNotFound, "Código de convite inválido")
	ErrRequestNotFound    = newError(KindNotFound, "Pedido não encontrado")
	ErrPlanNotFound       = newError(KindNotFound, "Plano não encontrado")
	ErrSessionNotFound    = newError(KindNotFound, "Sessão não encontrada")
	ErrCompletionNotFound = newError(KindNotFound, "Registo não encontrado")

	ErrEmailTaken        = newError(KindConflict, "email já está registado")
	ErrNameTaken         = newError(KindConflict, "nome já está registado")
	ErrAlreadyAssociated = newError(KindConflict, "Já está associado a um treinador")
	ErrDuplicateRequest  = newError(KindConflict, "Já existe um pedido de desassociação pendente")
	ErrAlreadyResolved   = newError(KindConflict, "O pedido já foi resolvido")
	ErrActivePlanExists  = newError(KindConflict, "O cliente já tem um plano ativo")
)

// KindOf classifies any error returned by this package.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		return KindValidation
	}
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return KindNotFound
	case errors.Is(err, repository.ErrDuplicate):
		return KindConflict
	}
	return KindInternal
}

// PublicMessage returns the text safe to show to the caller.
func PublicMessage(err error) string {
	var se *Error
	if errors.As(err, &se) {
		return se.Message
	}
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		return ve.Message
	}
	switch KindOf(err) {
	case KindNotFound:
		return "Recurso não encontrado"
	case KindConflict:
		return "Conflito com dados existentes"
	}
	return "Erro interno do servidor"
}
