package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lughabridge/lughabridge/internal/config"
	"github.com/lughabridge/lughabridge/internal/httpapi/handlers"
	"github.com/lughabridge/lughabridge/internal/httpapi/middleware"
	"github.com/lughabridge/lughabridge/internal/hub"
	"github.com/lughabridge/lughabridge/internal/room"
)

func NewRouter(store *room.Store, h *hub.Hub, cfg config.Config, logger *zap.SugaredLogger) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID())

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"code": 40400, "message": "route not found", "data": nil})
	})
	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"code": 40500, "message": "method not allowed", "data": nil})
	})

	hd := handlers.NewHandler(store, h, cfg, logger)

	api := r.Group("/api")
	api.GET("/health", hd.Health)
	api.POST("/rooms", hd.CreateRoom)
	api.GET("/rooms/:code", hd.GetRoom)
	api.GET("/rooms/:code/messages", hd.ListMessages)

	r.GET("/ws/room/:code", hd.ServeWS)

	return r
}
