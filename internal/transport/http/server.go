package http

import (
	"github.com/gin-gonic/gin"

	appsvc "bytebits/internal/app"
	"bytebits/internal/bootstrap"
	"bytebits/internal/platform/rabbitmq"
	"bytebits/internal/ratelimit"
	"bytebits/internal/repository"
	"bytebits/internal/session"
	"bytebits/internal/transport/http/handler"
	"bytebits/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App, limiter *ratelimit.Limiter) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()

	sessions := session.NewStore(app.Redis, app.Config.SessionTTL())

	router.Use(gin.Logger(), gin.Recovery())
	router.Use(middleware.RateLimit(limiter))
	router.Use(middleware.CSRF())
	router.Use(middleware.LoadSession(sessions, app.Config.Session.CookieName))

	userRepo := repository.NewUserRepository(app.MySQL)
	postRepo := repository.NewPostRepository(app.MySQL)
	txRunner := repository.NewTxRunner(app.MySQL)
	mailer := rabbitmq.NewMailPublisher(app.MQConn, app.Config.RabbitMQ.MailQueue)

	accountService := appsvc.NewAccountService(
		userRepo,
		txRunner,
		mailer,
		[]byte(app.Config.Auth.JWTSecret),
		app.Config.TokenTTL(),
		app.Config.VerifyTokenTTL(),
		app.Config.App.BaseURL,
	)
	postService := appsvc.NewPostService(postRepo)

	authHandler := handler.NewAuthHandler(
		accountService,
		sessions,
		app.Config.Session.CookieName,
		app.Config.SessionTTL(),
		app.Config.RememberSessionTTL(),
		app.Config.Auth.AutoLoginOnVerify,
		app.Config.Auth.MinPasswordEntropy,
	)
	blogHandler := handler.NewBlogHandler(postService, accountService, sessions)
	healthHandler := handler.NewHealthHandler(app)

	router.GET("/healthz", healthHandler.Check)

	router.GET("/", blogHandler.List)
	router.GET("/post/:id", blogHandler.Get)
	router.GET("/stats", blogHandler.Stats)
	router.POST("/create", middleware.RequireAuth(), blogHandler.Create)
	router.POST("/edit/:id", middleware.RequireAuth(), blogHandler.Edit)
	router.POST("/delete/:id", middleware.RequireAuth(), blogHandler.Delete)

	auth := router.Group("/auth")
	auth.POST("/signup", authHandler.Signup)
	auth.GET("/verify", authHandler.Verify)
	auth.POST("/login", authHandler.Login)
	auth.GET("/logout", authHandler.Logout)
	auth.POST("/forgot", authHandler.Forgot)
	auth.POST("/reset", authHandler.Reset)
	auth.POST("/update-email", middleware.RequireAuth(), authHandler.UpdateEmail)
	auth.GET("/confirm-update-email", authHandler.ConfirmUpdateEmail)
	auth.POST("/update-username", middleware.RequireAuth(), authHandler.UpdateUsername)
	auth.GET("/confirm-update-username", authHandler.ConfirmUpdateUsername)
	auth.POST("/update-password", middleware.RequireAuth(), authHandler.UpdatePassword)
	auth.POST("/delete-account", middleware.RequireAuth(), authHandler.DeleteAccount)
	auth.GET("/confirm-delete-account", authHandler.ConfirmDeleteAccount)
	auth.GET("/account-settings", middleware.RequireAuth(), authHandler.AccountSettings)

	return router
}
