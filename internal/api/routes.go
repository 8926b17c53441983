package api

import (
	"net/http"

	"gymflow/gym-api/internal/config"
	"gymflow/gym-api/internal/domain"
	"gymflow/gym-api/internal/metrics"
	"gymflow/gym-api/internal/notify"
	"gymflow/gym-api/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// Dependencies is everything the HTTP layer needs.
type Dependencies struct {
	Auth        service.AuthService
	Users       service.UserService
	Association service.AssociationService
	Plans       service.PlanService
	Completions service.CompletionService
	Chat        service.ChatService
	Hub         *notify.Hub
	Cookie      config.CookieConfig
	// RateLimiter guards /api/auth when set.
	RateLimiter *RateLimiter
	// ChatFS and ChatDir back the static /uploads/chat route.
	ChatFS  afero.Fs
	ChatDir string
	Log     *logrus.Logger
}

var (
	anyMember    = []domain.Scope{domain.ScopeAdmin, domain.ScopeTrainer, domain.ScopeUser, domain.ScopeNonMember}
	adminOnly    = []domain.Scope{domain.ScopeAdmin}
	trainerOnly  = []domain.Scope{domain.ScopeTrainer}
	clientOnly   = []domain.Scope{domain.ScopeUser}
	staffMembers = []domain.Scope{domain.ScopeAdmin, domain.ScopeTrainer}
)

func SetupRoutes(router *gin.Engine, deps Dependencies) {
	errs := errorResponder{log: deps.Log}
	authHandler := NewAuthHandler(deps.Auth, deps.Cookie, errs)
	userHandler := NewUserHandler(deps.Users, deps.Association, errs)
	workoutHandler := NewWorkoutHandler(deps.Plans, deps.Completions, errs)
	chatHandler := NewChatHandler(deps.Chat, deps.Hub, errs)

	authMiddleware := AuthMiddleware(deps.Auth, deps.Cookie.Name)
	scopes := func(allowed []domain.Scope) gin.HandlerFunc { return RequireScopes(allowed...) }

	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	if deps.ChatFS != nil {
		router.StaticFS("/uploads/chat", afero.NewHttpFs(deps.ChatFS).Dir(deps.ChatDir))
	}

	api := router.Group("/api")

	authGroup := api.Group("/auth")
	if deps.RateLimiter != nil {
		authGroup.Use(deps.RateLimiter.Middleware())
	}
	{
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/logout", authHandler.Logout)
		authGroup.POST("/forgot-password", authHandler.ForgotPassword)
		authGroup.POST("/reset-password/:token", authHandler.ResetPassword)
		authGroup.GET("/me", authMiddleware, authHandler.Me)
	}

	api.GET("/ws", authMiddleware, chatHandler.Socket)

	protected := api.Group("")
	protected.Use(authMiddleware)

	users := protected.Group("/users")
	{
		users.GET("", scopes(adminOnly), userHandler.ListUsers)
		users.POST("", scopes(staffMembers), userHandler.CreateUser)
		users.GET("/clients", scopes(trainerOnly), userHandler.ListClients)

		users.PUT("/me", scopes(anyMember), userHandler.UpdateMe)
		users.POST("/me/photo", scopes(anyMember), userHandler.UploadPhoto)
		users.DELETE("/me/photo", scopes(anyMember), userHandler.DeletePhoto)

		users.POST("/invite-code", scopes(trainerOnly), userHandler.GenerateInviteCode)
		users.POST("/associate", scopes(clientOnly), userHandler.Associate)

		users.POST("/disassociation-requests", scopes(clientOnly), userHandler.RequestDisassociation)
		users.GET("/disassociation-requests", scopes(adminOnly), userHandler.ListDisassociationRequests)
		users.GET("/disassociation-requests/mine", scopes(clientOnly), userHandler.MyDisassociationRequests)
		users.PUT("/disassociation-requests/:id", scopes(adminOnly), userHandler.ResolveDisassociationRequest)

		users.GET("/:id", scopes(staffMembers), userHandler.GetUser)
		users.PUT("/:id", scopes(adminOnly), userHandler.UpdateUser)
		users.DELETE("/:id", scopes(adminOnly), userHandler.DeleteUser)
	}

	workouts := protected.Group("/workouts")
	{
		workouts.POST("/plans", scopes(staffMembers), workoutHandler.CreatePlan)
		workouts.GET("/plans", scopes(trainerOnly), workoutHandler.ListTrainerPlans)
		workouts.GET("/trainers/:trainerId/plans", scopes(staffMembers), workoutHandler.ListTrainerPlans)
		workouts.GET("/plans/:id", scopes(anyMember), workoutHandler.GetPlan)
		workouts.PUT("/plans/:id", scopes(staffMembers), workoutHandler.UpdatePlan)
		workouts.DELETE("/plans/:id", scopes(staffMembers), workoutHandler.DeletePlan)
		workouts.PUT("/plans/:id/activate", scopes(staffMembers), workoutHandler.ActivatePlan)
		workouts.PUT("/plans/:id/deactivate", scopes(staffMembers), workoutHandler.DeactivatePlan)

		workouts.GET("/plans/:id/sessions", scopes(anyMember), workoutHandler.ListSessions)
		workouts.PUT("/plans/:id/sessions/:day", scopes(staffMembers), workoutHandler.UpsertSession)
		workouts.DELETE("/sessions/:id", scopes(staffMembers), workoutHandler.DeleteSession)

		workouts.GET("/clients/:clientId/active-plan", scopes(anyMember), workoutHandler.ActivePlan)
		workouts.GET("/clients/:clientId/history", scopes(anyMember), workoutHandler.PlanHistory)
		workouts.GET("/clients/:clientId/completions", scopes(anyMember), workoutHandler.ListCompletions)
		workouts.GET("/clients/:clientId/absences", scopes(anyMember), workoutHandler.ListAbsences)
		workouts.GET("/clients/:clientId/stats", scopes(anyMember), workoutHandler.Stats)

		workouts.POST("/completions", scopes(clientOnly), workoutHandler.RecordCompletion)
		workouts.POST("/completions/:id/proof", scopes(clientOnly), workoutHandler.UploadProof)
	}

	chat := protected.Group("/chat")
	chat.Use(scopes(anyMember))
	{
		chat.POST("/messages", chatHandler.SendMessage)
		chat.POST("/images", chatHandler.UploadImage)
		chat.GET("/conversation/:userId", chatHandler.Conversation)
		chat.PUT("/read/:userId", chatHandler.MarkRead)
		chat.GET("/contacts", chatHandler.Contacts)
	}
}
