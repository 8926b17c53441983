package api

import (
	"net/http"
	"strconv"

	"gymflow/gym-api/internal/service"

	"github.com/gin-gonic/gin"
)

// UserHandler serves accounts and trainer association.
type UserHandler struct {
	userService        service.UserService
	associationService service.AssociationService
	errors             errorResponder
}

func NewUserHandler(userService service.UserService, associationService service.AssociationService, errs errorResponder) *UserHandler {
	return &UserHandler{userService: userService, associationService: associationService, errors: errs}
}

type CreateUserRequest struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Role      string `json:"role"`
	BirthDate string `json:"birthDate"`
	Address   string `json:"address"`
	Country   string `json:"country"`
}

// ProfileRequest fields are optional; absent ones are left unchanged.
type ProfileRequest struct {
	Name      *string `json:"name"`
	Email     *string `json:"email"`
	BirthDate *string `json:"birthDate"`
	Address   *string `json:"address"`
	Country   *string `json:"country"`
	Role      *string `json:"role"`
}

type AssociateRequest struct {
	InviteCode string `json:"inviteCode"`
}

type DisassociationRequestBody struct {
	Reason string `json:"reason"`
}

type ResolveRequest struct {
	Decision string `json:"decision"`
}

func (r ProfileRequest) toUpdate() (service.ProfileUpdate, error) {
	upd := service.ProfileUpdate{
		Name:    r.Name,
		Email:   r.Email,
		Address: r.Address,
		Country: r.Country,
	}
	if r.BirthDate != nil {
		birth, err := parseOptionalDate(*r.BirthDate)
		if err != nil {
			return upd, err
		}
		upd.BirthDate = birth
	}
	return upd, nil
}

func (h *UserHandler) ListUsers(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	users, err := h.userService.ListUsers(c.Request.Context(), actor, c.Query("role"))
	if err != nil {
		h.errors.respond(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

// CreateUser godoc
// @Summary Create an account (admin: any role, trainer: own client)
// @Tags Users
// @Accept json
// @Produce json
// @Param user body CreateUserRequest true "Account details"
// @Success 201 {object} domain.User
// @Failure 409 {object} gin.H "Email or name already registered"
// @Router /users [post]
func (h *UserHandler) CreateUser(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	var req CreateUserRequest
	if !bindJSON(c, &req) {
		return
	}
	birth, err := parseOptionalDate(req.BirthDate)
	if err != nil {
		h.errors.respond(c, err)
		return
	}
	user, err := h.userService.CreateUser(c.Request.Context(), actor, service.CreateUserInput{
		Name:      req.Name,
		Email:     req.Email,
		Password:  req.Password,
		Role:      req.Role,
		BirthDate: birth,
		Address:   req.Address,
		Country:   req.Country,
	})
	if err != nil {
		h.errors.respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

func (h *UserHandler) ListClients(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	clients, err := h.userService.ListClients(c.Request.Context(), actor)
	if err != nil {
		h.errors.respond(c, err)
		return
	}
	c.JSON(http.StatusOK, clients)
}

func (h *UserHandler) GetUser(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	id, ok := objectIDParam(c, "id")
	if !ok {
		return
	}
	user, err := h.userService.GetUser(c.Request.Context(), actor, id)
	if err != nil {
		h.errors.respond(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *UserHandler) UpdateUser(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	id, ok := objectIDParam(c, "id")
	if !ok {
		return
	}
	var req ProfileRequest
	if !bindJSON(c, &req) {
		return
	}
	profile, err := req.toUpdate()
	if err != nil {
		h.errors.respond(c, err)
		return
	}
	user, err := h.userService.UpdateUser(c.Request.Context(), actor, id, service.UserUpdate{ProfileUpdate: profile, Role: req.Role})
	if err != nil {
		h.errors.respond(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// DeleteUser removes the account; ?cleanupPlans=true also removes its plans.
func (h *UserHandler) DeleteUser(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	id, ok := objectIDParam(c, "id")
	if !ok {
		return
	}
	cleanup, _ := strconv.ParseBool(c.DefaultQuery("cleanupPlans", "false"))
	if err := h.userService.DeleteUser(c.Request.Context(), actor, id, cleanup); err != nil {
		h.errors.respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Utilizador removido"})
}

func (h *UserHandler) UpdateMe(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	var req ProfileRequest
	if !bindJSON(c, &req) {
		return
	}
	profile, err := req.toUpdate()
	if err != nil {
		h.errors.respond(c, err)
		return
	}
	user, err := h.userService.UpdateProfile(c.Request.Context(), actor, profile)
	if err != nil {
		h.errors.respond(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *UserHandler) UploadPhoto(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	upload, closeFn, err := formUpload(c, "image")
	defer closeFn()
	if err != nil {
		h.errors.respond(c, err)
		return
	}
	user, err := h.userService.SetProfileImage(c.Request.Context(), actor, upload)
	if err != nil {
		h.errors.respond(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *UserHandler) DeletePhoto(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	user, err := h.userService.RemoveProfileImage(c.Request.Context(), actor)
	if err != nil {
		h.errors.respond(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// --- Association ---

func (h *UserHandler) GenerateInviteCode(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	code, err := h.associationService.GenerateInviteCode(c.Request.Context(), actor)
	if err != nil {
		h.errors.respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"inviteCode": code})
}

func (h *UserHandler) Associate(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	var req AssociateRequest
	if !bindJSON(c, &req) {
		return
	}
	user, err := h.associationService.AssociateWithTrainer(c.Request.Context(), actor, req.InviteCode)
	if err != nil {
		h.errors.respond(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *UserHandler) RequestDisassociation(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	var req DisassociationRequestBody
	if !bindJSON(c, &req) {
		return
	}
	created, err := h.associationService.RequestDisassociation(c.Request.Context(), actor, req.Reason)
	if err != nil {
		h.errors.respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *UserHandler) ListDisassociationRequests(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	requests, err := h.associationService.ListRequests(c.Request.Context(), actor, c.Query("status"))
	if err != nil {
		h.errors.respond(c, err)
		return
	}
	c.JSON(http.StatusOK, requests)
}

func (h *UserHandler) MyDisassociationRequests(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	requests, err := h.associationService.MyRequests(c.Request.Context(), actor)
	if err != nil {
		h.errors.respond(c, err)
		return
	}
	c.JSON(http.StatusOK, requests)
}

func (h *UserHandler) ResolveDisassociationRequest(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	id, ok := objectIDParam(c, "id")
	if !ok {
		return
	}
	var req ResolveRequest
	if !bindJSON(c, &req) {
		return
	}
	resolved, err := h.associationService.ResolveDisassociation(c.Request.Context(), actor, id, req.Decision)
	if err != nil {
		h.errors.respond(c, err)
		return
	}
	c.JSON(http.StatusOK, resolved)
}
