package routes

import (
	"Gamebuddies/controllers"
	"Gamebuddies/middleware"
	"Gamebuddies/services/proxy"
	utils "Gamebuddies/utils"

	"github.com/gin-gonic/gin"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// SetupRoutes configures all API routes and mounts the proxied game services.
// The socket.io endpoints are mounted by the socket server itself.
func SetupRoutes(router *gin.Engine, rooms *controllers.RoomController, identity middleware.IdentityResolver, games *proxy.Router) {
	// utils global
	router.Use(utils.ErrorHandler())

	// Swagger route
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	router.GET("/ping", controllers.Ping)

	api := router.Group("/api")
	{
		api.GET("/rooms/public", rooms.PublicRooms)
		api.GET("/proxy/health", rooms.ProxyHealth)
		api.POST("/session", controllers.CreateSession(identity))
		api.DELETE("/session", controllers.DeleteSession)
	}

	authentication := api.Group("/")
	authentication.Use(middleware.AuthRequired(identity))
	{
		authentication.GET("/rooms/:code", rooms.GetRoom)
	}

	if games != nil {
		games.Mount(router)
	}
}
