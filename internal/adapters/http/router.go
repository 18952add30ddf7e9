package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/dkeye/VoiceClient/internal/app/orch"
	"github.com/dkeye/VoiceClient/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Controller is the part of orch.Session the control API drives.
type Controller interface {
	Join(ctx context.Context, address, token string) error
	Disconnect()
	EnableCamera(ctx context.Context) error
	DisableCamera(ctx context.Context) error
	EnableScreenShare(ctx context.Context) error
	DisableScreenShare(ctx context.Context) error
	DebugInfo() domain.DebugInfo
	Phase() domain.Phase
	VideoMode() domain.VideoMode
}

type JoinRequest struct {
	Address string `json:"address"`
	Token   string `json:"token"`
}

type StateResponse struct {
	Phase string `json:"phase"`
	Video string `json:"video"`
}

func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Header("X-Request-ID", id)
		c.Set("request_id", id)
		c.Next()
	}
}

func SetupRouter(mode string, ctrl Controller) *gin.Engine {
	if mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())

	api := r.Group("/api")

	api.GET("/state", func(c *gin.Context) {
		c.JSON(http.StatusOK, StateResponse{
			Phase: ctrl.Phase().String(),
			Video: ctrl.VideoMode().String(),
		})
	})

	api.GET("/debug", func(c *gin.Context) {
		c.JSON(http.StatusOK, ctrl.DebugInfo())
	})

	api.POST("/join", func(c *gin.Context) {
		var req JoinRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid join request"})
			return
		}
		respond(c, ctrl.Join(c.Request.Context(), req.Address, req.Token))
	})

	api.POST("/disconnect", func(c *gin.Context) {
		ctrl.Disconnect()
		respond(c, nil)
	})

	api.POST("/camera", func(c *gin.Context) { respond(c, ctrl.EnableCamera(c.Request.Context())) })
	api.DELETE("/camera", func(c *gin.Context) { respond(c, ctrl.DisableCamera(c.Request.Context())) })
	api.POST("/screen", func(c *gin.Context) { respond(c, ctrl.EnableScreenShare(c.Request.Context())) })
	api.DELETE("/screen", func(c *gin.Context) { respond(c, ctrl.DisableScreenShare(c.Request.Context())) })

	log.Info().Str("module", "adapters.http").Str("mode", mode).Msg("router setup")
	return r
}

func respond(c *gin.Context, err error) {
	if err == nil {
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}
	status := statusOf(err)
	log.Warn().
		Str("module", "adapters.http").
		Str("request_id", c.GetString("request_id")).
		Str("path", c.FullPath()).
		Err(err).
		Msg("request failed")
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, orch.ErrInvalidArguments):
		return http.StatusBadRequest
	case errors.Is(err, orch.ErrNotConnected):
		return http.StatusConflict
	case errors.Is(err, orch.ErrMediaAcquisition),
		errors.Is(err, orch.ErrServerRejected),
		errors.Is(err, orch.ErrTransportClosed),
		errors.Is(err, orch.ErrTransportError),
		errors.Is(err, orch.ErrNegotiation):
		return http.StatusBadGateway
	case errors.Is(err, orch.ErrHandshakeTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, orch.ErrSessionClosed), errors.Is(err, orch.ErrClosedDuringHandshake):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
