package resource

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/avabff/internal/model"
	"github.com/vyrodovalexey/avabff/internal/observability"
	"github.com/vyrodovalexey/avabff/internal/util"
)

// Generic response bodies. Internal error text never reaches callers.
const (
	msgNotFound       = "not found"
	msgInvalidRequest = "invalid request"
	msgInternalError  = "internal server error"
	diagnosticSegment = "error"
)

// Filter narrows a list by an integer query parameter.
type Filter[T any] struct {
	// Param is the query parameter name, e.g. "userId".
	Param string
	Match func(record T, value int) bool
}

// ServiceConfig describes one resource service.
type ServiceConfig[T model.Keyed] struct {
	// Name is the service name used in logs and metrics, e.g. "user".
	Name string

	// Resource is the collection path segment, e.g. "users".
	Resource string

	Store   *Store[T]
	Filters []Filter[T]

	// Latency delays Get for specific ids.
	Latency map[int]time.Duration

	// DiagnosticFault exposes GET /{resource}/error, which always fails.
	DiagnosticFault bool

	Logger observability.Logger
}

// Service serves one read-only collection over HTTP.
type Service[T model.Keyed] struct {
	cfg ServiceConfig[T]
}

// NewService creates a resource service.
func NewService[T model.Keyed](cfg ServiceConfig[T]) (*Service[T], error) {
	if cfg.Name == "" || cfg.Resource == "" {
		return nil, errors.New("resource service name and path are required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("resource service %s: store is required", cfg.Name)
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger()
	}
	return &Service[T]{cfg: cfg}, nil
}

// Name returns the service name.
func (s *Service[T]) Name() string {
	return s.cfg.Name
}

// RegisterRoutes registers GET /{resource} and GET /{resource}/:id.
func (s *Service[T]) RegisterRoutes(r gin.IRoutes) {
	base := "/" + s.cfg.Resource
	r.GET(base, s.list)
	if s.cfg.DiagnosticFault {
		r.GET(base+"/"+diagnosticSegment, s.fault)
	}
	r.GET(base+"/:id", s.get)

	s.cfg.Logger.Info("resource routes registered",
		observability.String("service", s.cfg.Name),
		observability.String("path", base),
		observability.Int("records", s.cfg.Store.Len()),
	)
}

// List returns every record.
func (s *Service[T]) List() []T {
	return s.cfg.Store.List()
}

// Get returns the record with id after any configured delay. The delay
// ends early when ctx is done.
func (s *Service[T]) Get(ctx context.Context, id int) (T, error) {
	if err := s.delay(ctx, id); err != nil {
		var zero T
		return zero, err
	}
	return s.cfg.Store.Get(id)
}

// Fault is the diagnostic operation. It always returns an error wrapping
// util.ErrFatal.
func (s *Service[T]) Fault() error {
	return fmt.Errorf("%w: diagnostic route of %s service divided by zero", util.ErrFatal, s.cfg.Name)
}

func (s *Service[T]) list(c *gin.Context) {
	records, err := s.filtered(c)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

func (s *Service[T]) filtered(c *gin.Context) ([]T, error) {
	var active []func(T) bool
	for _, f := range s.cfg.Filters {
		raw, ok := c.GetQuery(f.Param)
		if !ok {
			continue
		}
		value, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s must be an integer", util.ErrInvalidInput, f.Param)
		}
		match := f.Match
		active = append(active, func(r T) bool { return match(r, value) })
	}

	if len(active) == 0 {
		return s.List(), nil
	}
	return s.cfg.Store.Filter(func(r T) bool {
		for _, keep := range active {
			if !keep(r) {
				return false
			}
		}
		return true
	}), nil
}

func (s *Service[T]) get(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		s.respondError(c, fmt.Errorf("%w: id must be an integer", util.ErrInvalidInput))
		return
	}

	record, err := s.Get(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (s *Service[T]) fault(c *gin.Context) {
	s.respondError(c, s.Fault())
}

func (s *Service[T]) delay(ctx context.Context, id int) error {
	d := s.cfg.Latency[id]
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", util.ErrCanceled, ctx.Err())
	}
}

// respondError maps err to a status and a generic body.
func (s *Service[T]) respondError(c *gin.Context, err error) {
	_ = c.Error(err)
	logger := s.cfg.Logger.WithContext(c.Request.Context())

	switch {
	case errors.Is(err, util.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": msgNotFound})
	case errors.Is(err, util.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": msgInvalidRequest})
	case errors.Is(err, util.ErrCanceled):
		logger.Debug("request canceled by caller", observability.Error(err))
		c.Abort()
	default:
		logger.Error("request failed",
			observability.String("service", s.cfg.Name),
			observability.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgInternalError})
	}
}
