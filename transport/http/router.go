package http

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/layer-3/rangda/service"
)

// SetupRouter sets up the Gin router
func SetupRouter(sessions *service.SessionManager, profiles *service.ProfileController, log *logrus.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(log))

	handlers := NewHandlers(sessions, profiles)

	auth := router.Group("/auth")
	{
		auth.GET("/methods", handlers.Methods)
		auth.GET("/login", handlers.Login)
		auth.GET("/callback", handlers.Callback)
	}

	session := router.Group("/session")
	{
		session.GET("", handlers.Session)
		session.POST("/active-key", handlers.SetActiveKey)
	}

	profileRoutes := router.Group("/profiles")
	{
		profileRoutes.GET("", handlers.ListProfiles)
		profileRoutes.POST("", handlers.CreateProfile)
		profileRoutes.GET("/:address", handlers.ProfileDetails)
		profileRoutes.POST("/:address/greeting", handlers.SetGreeting)
	}

	return router
}
