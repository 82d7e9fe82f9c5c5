package handlers

import (
	"go.uber.org/zap"

	"github.com/lughabridge/lughabridge/internal/config"
	"github.com/lughabridge/lughabridge/internal/hub"
	"github.com/lughabridge/lughabridge/internal/room"
)

type Handler struct {
	Store  *room.Store
	Hub    *hub.Hub
	Cfg    config.Config
	Logger *zap.SugaredLogger
}

func NewHandler(store *room.Store, h *hub.Hub, cfg config.Config, logger *zap.SugaredLogger) *Handler {
	return &Handler{Store: store, Hub: h, Cfg: cfg, Logger: logger}
}
