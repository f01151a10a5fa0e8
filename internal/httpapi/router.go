// Package httpapi exposes the attendance flow over HTTP.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"geoattend/internal/attendance"
	"geoattend/internal/auth"
	"geoattend/internal/authenticator"
	"geoattend/internal/geo"
	"geoattend/internal/httpmiddleware"
	"geoattend/internal/roster"
)

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) bool

// Deps is everything the router needs. Bridge is nil when ceremonies run on a
// server-side platform; the ceremony routes are not mounted then.
type Deps struct {
	Roster     *roster.Roster
	Attendance *attendance.Service
	Ledger     attendance.Ledger
	Bridge     *authenticator.Bridge
	Locator    geo.Locator

	JWTIssuer       string
	JWTSigningKey   string
	AccessTTL       time.Duration
	RateLimitPerMin int

	Health  map[string]HealthCheck
	Metrics http.Handler
}

type handler struct {
	Deps
	reporter attendance.Reporter
}

// NewRouter builds the gin engine with every route mounted.
func NewRouter(d Deps) *gin.Engine {
	h := &handler{Deps: d}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())

	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics))
	}
	r.GET("/healthz", h.health)

	perMin := d.RateLimitPerMin
	if perMin <= 0 {
		perMin = 120
	}
	r.POST("/v1/login", httpmiddleware.NewTokenBucket(perMin, perMin, httpmiddleware.ClientIP).GinMiddleware(), h.login)

	v1 := r.Group("/v1",
		auth.StudentAuth(d.JWTSigningKey, d.JWTIssuer),
		httpmiddleware.NewTokenBucket(perMin, perMin, httpmiddleware.SubjectOrIP(subject)).GinMiddleware(),
	)
	v1.GET("/dashboard", h.dashboard)
	v1.POST("/attendance/:classID", h.takeAttendance)
	v1.GET("/attendance", h.listAttendance)
	if rep, ok := d.Ledger.(attendance.Reporter); ok {
		h.reporter = rep
		v1.GET("/reports/outcomes", h.reportOutcomes)
	}
	if d.Bridge != nil {
		v1.GET("/ceremonies", h.pendingCeremonies)
		v1.POST("/ceremonies/:id", h.resolveCeremony)
	}

	return r
}

func subject(c *gin.Context) string {
	claims, _ := auth.ClaimsFrom(c)
	return claims.Subject
}
