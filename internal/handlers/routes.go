package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts the public intake routes on router. Both intake
// routes accept only POST; OPTIONS is answered for preflight and every
// other method gets a JSON 405. intakeMiddleware runs on the intake routes
// only, so health checks and scrapes are never throttled.
func RegisterRoutes(router *gin.Engine, registration *RegistrationHandler, confirmation *ConfirmationHandler, health *HealthHandler, metricsHandler http.Handler, intakeMiddleware ...gin.HandlerFunc) {
	router.HandleMethodNotAllowed = true
	router.NoMethod(MethodNotAllowed)

	intake := router.Group("/", intakeMiddleware...)

	intake.POST("/register", registration.Register)
	intake.OPTIONS("/register", Preflight)

	intake.POST("/send-confirmation", confirmation.SendConfirmation)
	intake.OPTIONS("/send-confirmation", Preflight)

	router.GET("/healthz", health.Health)
	if metricsHandler != nil {
		router.GET("/metrics", gin.WrapH(metricsHandler))
	}
}
