// Package health provides the three-endpoint health-check surface
// (overall, readiness, liveness) every service entrypoint in this repo
// mounts, with pluggable per-subsystem checks.
package health

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

var startTime time.Time

func init() {
	startTime = time.Now()
}

// Status is the overall health response body.
type Status struct {
	Status  string                 `json:"status"`
	Service string                 `json:"service"`
	Version string                 `json:"version"`
	Uptime  string                 `json:"uptime"`
	Checks  map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult is one named subsystem's health-check result.
type CheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// OK builds a healthy CheckResult.
func OK(message string) CheckResult {
	return CheckResult{Status: "healthy", Message: message}
}

// Down builds an unhealthy CheckResult.
func Down(message string) CheckResult {
	return CheckResult{Status: "unhealthy", Message: message}
}

// Checker performs one subsystem's health check.
type Checker func() CheckResult

// Config holds the set of named checks a service wants run on /health.
type Config struct {
	ServiceName string
	Version     string
	Checks      map[string]Checker
}

// Handler returns a gin handler running every configured Checker and
// reporting 503 if any of them is unhealthy.
func Handler(cfg Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := Status{
			Status:  "healthy",
			Service: cfg.ServiceName,
			Version: cfg.Version,
			Uptime:  time.Since(startTime).String(),
			Checks:  make(map[string]CheckResult),
		}

		allHealthy := true
		for name, checker := range cfg.Checks {
			result := checker()
			status.Checks[name] = result
			if result.Status != "healthy" {
				allHealthy = false
			}
		}

		if !allHealthy {
			status.Status = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, status)
			return
		}
		c.JSON(http.StatusOK, status)
	}
}

// ReadinessHandler reports whether the process is ready to take traffic.
func ReadinessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	}
}

// LivenessHandler reports whether the process is alive.
func LivenessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "alive"})
	}
}
