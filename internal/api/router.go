package api

import (
	"github.com/gin-gonic/gin"

	"github.com/Health-Education-England/tis-trainee-actions/internal/api/handlers"
	"github.com/Health-Education-England/tis-trainee-actions/internal/api/middleware"
	"github.com/Health-Education-England/tis-trainee-actions/internal/services"
)

// SetupRouter configures and returns the Gin engine serving the action API.
func SetupRouter(actionService services.IActionService) *gin.Engine {
	r := gin.Default()
	r.Use(middleware.CORSMiddleware())

	actionHandler := handlers.NewRestActionHandler(actionService)

	action := r.Group("/api/action")
	{
		// Trainee-facing routes, identity comes from the bearer token.
		authed := action.Group("", middleware.TraineeAuth())
		authed.GET("", actionHandler.GetTraineeActions)
		authed.POST("/:actionId/complete", actionHandler.CompleteAction)

		// Internal routes, no authorization token.
		action.GET("/:traineeId/:programmeId", actionHandler.GetTraineeProgrammeActions)
		action.PATCH("/move/:fromTraineeId/to/:toTraineeId", actionHandler.MoveActions)
	}

	return r
}
