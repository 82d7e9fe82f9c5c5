package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/lughabridge/lughabridge/internal/room"
)

const (
	defaultMessageLimit = 100
	maxMessageLimit     = 500
)

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "ok",
		"data":    data,
	})
}

func created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, gin.H{
		"code":    0,
		"message": "ok",
		"data":    data,
	})
}

func wsURL(code string) string { return "/ws/room/" + code }

func fail(c *gin.Context, httpStatus int, code int, msg string) {
	c.JSON(httpStatus, gin.H{
		"code":    code,
		"message": msg,
		"data":    nil,
	})
}

type createRoomReq struct {
	SourceLang string `json:"source_lang" binding:"required"`
	TargetLang string `json:"target_lang" binding:"required"`
}

func (h *Handler) CreateRoom(c *gin.Context) {
	var req createRoomReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, 10001, "source_lang and target_lang are required")
		return
	}
	req.SourceLang = strings.ToLower(strings.TrimSpace(req.SourceLang))
	req.TargetLang = strings.ToLower(strings.TrimSpace(req.TargetLang))
	if !h.Cfg.IsSupported(req.SourceLang) || !h.Cfg.IsSupported(req.TargetLang) {
		fail(c, http.StatusBadRequest, 10002, "unsupported language pair")
		return
	}
	if req.SourceLang == req.TargetLang {
		fail(c, http.StatusBadRequest, 10004, "source and target languages must differ")
		return
	}

	code, err := h.Store.Create(c.Request.Context(), req.SourceLang, req.TargetLang)
	if err != nil {
		h.Logger.Errorw("room create failed", "error", err)
		fail(c, http.StatusInternalServerError, 50001, "failed to create room")
		return
	}

	created(c, gin.H{
		"room_code":    code,
		"source_lang":  req.SourceLang,
		"target_lang":  req.TargetLang,
		"ws_url":       wsURL(code),
		"expiry_hours": h.Store.TTL().Hours(),
	})
}

func (h *Handler) GetRoom(c *gin.Context) {
	code := strings.ToUpper(c.Param("code"))

	rm, err := h.Store.Get(c.Request.Context(), code)
	if err != nil {
		if errors.Is(err, room.ErrNotFound) {
			fail(c, http.StatusNotFound, 40401, "room not found")
			return
		}
		h.Logger.Errorw("room lookup failed", "code", code, "error", err)
		fail(c, http.StatusInternalServerError, 50002, "failed to load room")
		return
	}

	ok(c, gin.H{
		"room_code":     rm.Code,
		"source_lang":   rm.SourceLang,
		"target_lang":   rm.TargetLang,
		"participants":  rm.Participants,
		"message_count": len(rm.Messages),
		"created_at":    rm.CreatedAt,
		"last_activity": rm.LastActivity,
		"ws_url":        wsURL(rm.Code),
	})
}

func (h *Handler) ListMessages(c *gin.Context) {
	code := strings.ToUpper(c.Param("code"))

	limit := defaultMessageLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			fail(c, http.StatusBadRequest, 10003, "limit must be an integer")
			return
		}
		limit = n
	}
	if limit < 1 {
		limit = 1
	}
	if limit > maxMessageLimit {
		limit = maxMessageLimit
	}

	exists, err := h.Store.Exists(c.Request.Context(), code)
	if err != nil {
		h.Logger.Errorw("room lookup failed", "code", code, "error", err)
		fail(c, http.StatusInternalServerError, 50002, "failed to load room")
		return
	}
	if !exists {
		fail(c, http.StatusNotFound, 40401, "room not found")
		return
	}

	msgs, err := h.Store.Messages(c.Request.Context(), code, limit)
	if err != nil {
		h.Logger.Errorw("message list failed", "code", code, "error", err)
		fail(c, http.StatusInternalServerError, 50003, "failed to load messages")
		return
	}

	ok(c, gin.H{
		"messages": msgs,
		"count":    len(msgs),
	})
}

func (h *Handler) Health(c *gin.Context) {
	redisStatus := "up"
	if err := h.Store.Ping(c.Request.Context()); err != nil {
		redisStatus = "down"
	}
	ok(c, gin.H{
		"status":              "ok",
		"redis":               redisStatus,
		"demo_mode":           h.Cfg.DemoMode,
		"supported_languages": h.Cfg.SupportedLanguages,
	})
}

// ServeWS hands the connection to the hub, which owns the upgrade and the
// room membership lifecycle.
func (h *Handler) ServeWS(c *gin.Context) {
	code := strings.ToUpper(c.Param("code"))
	h.Hub.ServeWS(c.Writer, c.Request, code)
}
