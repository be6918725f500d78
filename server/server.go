// Copyright 2026 The Haulsheet Authors
// SPDX-License-Identifier: Apache-2.0

// Package server exposes the dispatch queries over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/jcodagnone/haulsheet/calendar"
	"github.com/jcodagnone/haulsheet/dispatch"
	"github.com/jcodagnone/haulsheet/geo"
)

// Service is the query interface served over HTTP.
type Service interface {
	ClosestLocation(ctx context.Context, address string) (geo.Match, bool)
	GetLocation(tabID string) (*calendar.LocationRecord, bool)
	Locations() []*calendar.LocationRecord
	TriggerRefresh()
	LastRefreshStatus() dispatch.RefreshStatus
}

// Server is the HTTP API.
type Server struct {
	service  Service
	gatherer prometheus.Gatherer
	now      func() time.Time
}

// New creates a server. When gatherer is nil the default registry is exposed.
func New(service Service, gatherer prometheus.Gatherer) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	return &Server{service: service, gatherer: gatherer, now: time.Now}
}

// Router builds the gin engine with every route.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/health", s.health)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	api := r.Group("/api")
	api.GET("/closest", s.closest)
	api.GET("/locations", s.listLocations)
	api.GET("/locations/:tab_id", s.getLocation)
	api.GET("/locations/:tab_id/dates", s.locationDates)
	api.POST("/refresh", s.refresh)
	api.GET("/status", s.status)

	return r
}

// Run serves on addr until ctx is done.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("http server shutdown")
		}
	}()

	log.Info().Str("addr", addr).Msg("listening")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func requestLogger() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()

		ctx.Next()

		log.Debug().
			Str("method", ctx.Request.Method).
			Str("path", ctx.Request.URL.Path).
			Int("status", ctx.Writer.Status()).
			Dur("took", time.Since(start)).
			Msg("request")
	}
}

func (s *Server) health(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"status": "ok", "version": s.service.LastRefreshStatus().Version})
}

// ClosestResponse is the answer of /api/closest.
type ClosestResponse struct {
	geo.Match
	Location *calendar.LocationRecord `json:"location,omitempty"`
}

func (s *Server) closest(ctx *gin.Context) {
	address := ctx.Query("address")
	if address == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "address query parameter is required"})

		return
	}

	match, ok := s.service.ClosestLocation(ctx.Request.Context(), address)
	if !ok {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "no matching location"})

		return
	}

	resp := ClosestResponse{Match: match}
	if r, ok := s.service.GetLocation(match.TabID); ok {
		resp.Location = r
	}

	ctx.JSON(http.StatusOK, resp)
}

func (s *Server) listLocations(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, s.service.Locations())
}

func (s *Server) getLocation(ctx *gin.Context) {
	r, ok := s.service.GetLocation(ctx.Param("tab_id"))
	if !ok {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "location not found"})

		return
	}

	ctx.JSON(http.StatusOK, r)
}

// DatedPrice is a calendar entry resolved to a date.
type DatedPrice struct {
	Date  string         `json:"date"`
	Price calendar.Price `json:"price"`
}

func (s *Server) locationDates(ctx *gin.Context) {
	r, ok := s.service.GetLocation(ctx.Param("tab_id"))
	if !ok {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "location not found"})

		return
	}

	month := s.now()

	if m := ctx.Query("month"); m != "" {
		parsed, err := time.Parse("2006-01", m)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "month must be formatted as YYYY-MM"})

			return
		}

		month = parsed
	}

	prices := calendar.PricesFor(r.Prices, month)

	ret := make([]DatedPrice, 0, len(prices))
	for d, p := range prices {
		ret = append(ret, DatedPrice{Date: d.Format(time.DateOnly), Price: p})
	}

	slices.SortFunc(ret, func(a, b DatedPrice) int { return strings.Compare(a.Date, b.Date) })

	ctx.JSON(http.StatusOK, gin.H{
		"tab_id": r.TabID,
		"month":  month.Format("2006-01"),
		"prices": ret,
	})
}

func (s *Server) refresh(ctx *gin.Context) {
	s.service.TriggerRefresh()
	ctx.JSON(http.StatusAccepted, gin.H{"status": "refresh triggered"})
}

func (s *Server) status(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, s.service.LastRefreshStatus())
}
