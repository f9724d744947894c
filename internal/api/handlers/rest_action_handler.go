package handlers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Health-Education-England/tis-trainee-actions/internal/api/middleware"
	"github.com/Health-Education-England/tis-trainee-actions/internal/dto"
	"github.com/Health-Education-England/tis-trainee-actions/internal/services"
)

// RestActionHandler exposes the action query and command operations.
type RestActionHandler struct {
	service services.IActionService
}

// NewRestActionHandler creates a new RestActionHandler.
func NewRestActionHandler(service services.IActionService) *RestActionHandler {
	return &RestActionHandler{service: service}
}

// GetTraineeActions returns the available incomplete actions of the
// authenticated trainee.
func (h *RestActionHandler) GetTraineeActions(c *gin.Context) {
	traineeID := c.GetString(middleware.TraineeIDKey)
	log.Printf("Received request to get actions of trainee %s.", traineeID)

	actions, err := h.service.FindIncompleteTraineeActions(c.Request.Context(), traineeID)
	if err != nil {
		log.Printf("Failed to get actions for trainee %s: %v", traineeID, err)
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	if actions == nil {
		actions = []dto.ActionDto{}
	}

	log.Printf("%d incomplete actions found for trainee %s.", len(actions), traineeID)
	c.JSON(http.StatusOK, actions)
}

// CompleteAction marks one of the authenticated trainee's actions as
// completed. Unknown ids, actions owned by another trainee and types the
// user cannot complete all respond not-found.
func (h *RestActionHandler) CompleteAction(c *gin.Context) {
	traineeID := c.GetString(middleware.TraineeIDKey)
	actionID := c.Param("actionId")
	log.Printf("Received request from trainee %s to complete action %s.", traineeID, actionID)

	action, err := h.service.CompleteAsUser(c.Request.Context(), traineeID, actionID)
	if err != nil {
		log.Printf("Failed to complete action %s: %v", actionID, err)
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	if action == nil {
		c.AbortWithStatus(http.StatusNotFound)
		return
	}

	c.JSON(http.StatusOK, action)
}

// GetTraineeProgrammeActions returns all actions for a trainee and programme
// membership, along with the trainee's account-level actions. This is an
// internal API without an authorization token.
func (h *RestActionHandler) GetTraineeProgrammeActions(c *gin.Context) {
	traineeID := c.Param("traineeId")
	programmeID := c.Param("programmeId")
	log.Printf("Received request to get actions for trainee %s programme membership %s.",
		traineeID, programmeID)

	actions, err := h.service.FindTraineeProgrammeMembershipActions(c.Request.Context(), traineeID, programmeID)
	if err != nil {
		log.Printf("Failed to get actions for trainee %s: %v", traineeID, err)
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	if actions == nil {
		actions = []dto.ActionDto{}
	}

	c.JSON(http.StatusOK, actions)
}

// MoveActions reassigns all actions from one trainee to another.
func (h *RestActionHandler) MoveActions(c *gin.Context) {
	fromTraineeID := c.Param("fromTraineeId")
	toTraineeID := c.Param("toTraineeId")
	log.Printf("Received request to move actions from trainee %s to trainee %s.",
		fromTraineeID, toTraineeID)

	if err := h.service.MoveActions(c.Request.Context(), fromTraineeID, toTraineeID); err != nil {
		log.Printf("Failed to move actions from trainee %s: %v", fromTraineeID, err)
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	c.JSON(http.StatusOK, true)
}
