// Package httpserver exposes the planning REST API and WebSocket endpoint.
package httpserver

import (
	"errors"
	"net/http"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/prodboard/prodboard/internal/convert"
	"github.com/prodboard/prodboard/internal/errs"
	"github.com/prodboard/prodboard/internal/model"
	"github.com/prodboard/prodboard/internal/service"
)

// Server wires the record service into HTTP handlers.
type Server struct {
	records service.RecordService
	ws      http.Handler
	log     *zap.Logger
}

// New constructs the HTTP server with injected dependencies. ws may be nil
// when no broadcast endpoint should be exposed.
func New(records service.RecordService, ws http.Handler, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{records: records, ws: ws, log: log}
}

// Router builds the gin engine with logging and recovery middleware.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(ginzap.Ginzap(s.log, time.RFC3339, true))
	r.Use(ginzap.RecoveryWithZap(s.log, true))

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if s.ws != nil {
		r.GET("/ws", gin.WrapH(s.ws))
	}

	v1 := r.Group("/api/v1")
	{
		v1.GET("/:kind", s.list)
		v1.POST("/:kind", s.create)
		v1.GET("/:kind/:id", s.get)
		v1.PATCH("/:kind/:id", s.update)
		v1.DELETE("/:kind/:id", s.remove)
	}
	return r
}

type createBody struct {
	Data map[string]any `json:"data"`
}

type deleteBody struct {
	RecordVersion int64 `json:"recordVersion"`
}

func (s *Server) list(c *gin.Context) {
	recs, err := s.records.List(c.Request.Context(), model.Kind(c.Param("kind")))
	if err != nil {
		s.fail(c, err)
		return
	}
	out := make([]convert.RecordDTO, 0, len(recs))
	for _, rec := range recs {
		out = append(out, convert.ToRecordDTO(rec))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) create(c *gin.Context) {
	var body createBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body: " + err.Error()})
		return
	}
	if body.Data == nil {
		body.Data = map[string]any{}
	}
	rec, err := s.records.Create(c.Request.Context(), model.Kind(c.Param("kind")), body.Data)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, convert.ToRecordDTO(*rec))
}

func (s *Server) get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	rec, err := s.records.Get(c.Request.Context(), model.Kind(c.Param("kind")), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, convert.ToRecordDTO(*rec))
}

func (s *Server) update(c *gin.Context) {
	var body convert.UpdateBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body: " + err.Error()})
		return
	}
	req, err := convert.FromUpdateBody(model.Kind(c.Param("kind")), c.Param("id"), body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec, err := s.records.Update(c.Request.Context(), req)
	if err != nil {
		var conflict *service.ConflictError
		if errors.As(err, &conflict) {
			c.JSON(http.StatusConflict, convert.ToConflictDTO(
				conflict.Conflicts,
				conflict.ServerData,
				conflict.ServerFieldVersions,
				conflict.ServerRecordVersion,
			))
			return
		}
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, convert.ToRecordDTO(*rec))
}

func (s *Server) remove(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var body deleteBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body: " + err.Error()})
		return
	}
	newVer, err := s.records.Delete(c.Request.Context(), model.Kind(c.Param("kind")), id, body.RecordVersion)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"recordVersion": newVer})
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	var id uuid.UUID
	if err := id.UnmarshalText([]byte(c.Param("id"))); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return uuid.Nil, false
	}
	return id, true
}

// fail maps service errors onto HTTP statuses.
func (s *Server) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, errs.ErrUnknownKind), errors.Is(err, errs.ErrUnknownField):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, errs.ErrAlreadyExists):
		c.JSON(http.StatusConflict, gin.H{"error": "already exists"})
	case errors.Is(err, errs.ErrVersionConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "version conflict"})
	default:
		s.log.Error("internal error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
	}
}
