package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"laundromat-backend/internal/controller"
	"laundromat-backend/internal/model"
	"laundromat-backend/internal/notification"
	"laundromat-backend/internal/store"
	"laundromat-backend/internal/ws"
)

// Notifier sends free-form messages to every recipient.
type Notifier interface {
	PushAll(ctx context.Context, text string) (notification.Result, error)
}

// LineReplier answers LINE webhook events.
type LineReplier interface {
	Reply(ctx context.Context, replyToken, text string) error
}

// Deps are the collaborators of the API handlers. Notifier, Line, WebPush and
// Hub are optional.
type Deps struct {
	Store        store.Store
	Controller   *controller.Controller
	Notifier     Notifier
	Line         LineReplier
	LineSecret   string
	ReplyText    string
	WebPush      *webpush.Options
	Hub          *ws.Hub
	HistoryLimit int
	Log          *zap.Logger
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store        store.Store
	ctrl         *controller.Controller
	notifier     Notifier
	line         LineReplier
	lineSecret   string
	replyText    string
	webpush      *webpush.Options
	hub          *ws.Hub
	historyLimit int
	log          *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(d Deps) *Handler {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	ctrl := d.Controller
	if ctrl == nil {
		ctrl = controller.New(d.Store, nil, log)
	}
	limit := d.HistoryLimit
	if limit <= 0 {
		limit = 100
	}
	return &Handler{
		store:        d.Store,
		ctrl:         ctrl,
		notifier:     d.Notifier,
		line:         d.Line,
		lineSecret:   d.LineSecret,
		replyText:    d.ReplyText,
		webpush:      d.WebPush,
		hub:          d.Hub,
		historyLimit: limit,
		log:          log.With(zap.String("component", "api")),
	}
}

// statusFor maps an error code to its HTTP status.
func statusFor(code string) int {
	switch code {
	case model.CodeNotFound:
		return http.StatusNotFound
	case model.CodeAlreadyInUse, model.CodeOutOfService, model.CodeInvalidTransition:
		return http.StatusConflict
	case model.CodeInsufficientFunds:
		return http.StatusPaymentRequired
	case model.CodeInvalidAmount, model.CodeInvalidInput:
		return http.StatusBadRequest
	case model.CodeInvalidSignature:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// fail writes the {ok:false} body for err. Internal errors are logged and
// reported with a generic message.
func (h *Handler) fail(c *gin.Context, err error) {
	code := model.ErrorCode(err)
	status := statusFor(code)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		msg = "internal error"
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{"ok": false, "code": code, "message": msg})
}

func invalidInput(msg string) error {
	return fmt.Errorf("%s: %w", msg, model.ErrInvalidInput)
}
