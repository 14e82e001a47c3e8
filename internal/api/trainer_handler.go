// internal/api/trainer_handler.go
package api

import (
	"net/http"
	"time"

	"evofit/health-protocol/internal/domain"
	"evofit/health-protocol/internal/logger"
	"evofit/health-protocol/internal/service"

	"github.com/gin-gonic/gin"
)

type TrainerHandler struct {
	trainerService service.TrainerService
	log            *logger.Logger
}

func NewTrainerHandler(trainerService service.TrainerService, log *logger.Logger) *TrainerHandler {
	return &TrainerHandler{
		trainerService: trainerService,
		log:            log,
	}
}

// UserResponse is the public view of a user.
type UserResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	TrainerID *string   `json:"trainerId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func MapUserToResponse(user *domain.User) UserResponse {
	resp := UserResponse{
		ID:        user.ID.Hex(),
		Name:      user.Name,
		Email:     user.Email,
		Role:      string(user.Role),
		CreatedAt: user.CreatedAt,
	}
	if user.TrainerID != nil {
		hex := user.TrainerID.Hex()
		resp.TrainerID = &hex
	}
	return resp
}

// MapUsersToResponse converts a slice of domain.User to UserResponse DTOs.
func MapUsersToResponse(users []domain.User) []UserResponse {
	userResponses := make([]UserResponse, len(users))
	for i := range users {
		userResponses[i] = MapUserToResponse(&users[i])
	}
	return userResponses
}

// GetManagedCustomers godoc
// @Summary Get the trainer's customers
// @Description Retrieves the customers managed by the authenticated trainer. These are the clients selectable on the first wizard step.
// @Tags Trainer
// @Produce json
// @Security BearerAuth
// @Success 200 {array} UserResponse "List of managed customers"
// @Failure 401 {object} gin.H "Unauthorized"
// @Failure 403 {object} gin.H "Forbidden (not a trainer)"
// @Failure 500 {object} gin.H "Internal Server Error"
// @Router /trainer/customers [get]
func (h *TrainerHandler) GetManagedCustomers(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		return
	}

	customers, err := h.trainerService.GetManagedCustomers(c.Request.Context(), identity.UserID)
	if err != nil {
		respondWithError(c, h.log, err, nil)
		return
	}
	c.JSON(http.StatusOK, MapUsersToResponse(customers))
}
