package handlers

import (
	"remote_imaging/internal/logger"
	"remote_imaging/internal/service"

	"github.com/gin-gonic/gin"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Handler wires HTTP layer to services and logging.
type Handler struct {
	services *service.Service
	log      *logger.Logger
}

// NewHandler constructs a new HTTP handler with dependencies.
func NewHandler(services *service.Service, log *logger.Logger) *Handler {
	return &Handler{services: services, log: log}
}

// InitRoutes builds and returns the Gin router with all routes registered.
// The paths mirror the RemoteImagingInterface API surface.
func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health endpoint
	router.GET("/health", h.health)

	// Imaging gateway endpoints
	router.GET("/status", h.getStatus)
	router.GET("/status/:triggerid", h.getTriggerStatus)
	router.GET("/settings", h.getSettings)
	router.PUT("/settings/:name", h.setSettings)
	router.POST("/metadata", h.setMetadata)
	router.PUT("/trigger/:plantid", h.trigger)
	router.GET("/getimageid/:triggerid", h.getImageID)

	// Notification subscription endpoints
	router.POST("/register", h.register)
	router.POST("/unregister", h.unregister)

	// Audit log
	router.GET("/events", h.getEvents)

	// Live gateway status stream over an HTTP upgrade on the same port
	router.GET("/ws", h.wsConnect)

	return router
}
