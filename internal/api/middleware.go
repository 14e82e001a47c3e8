package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"evofit/health-protocol/internal/domain"
	"evofit/health-protocol/internal/logger"
	"evofit/health-protocol/internal/service"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Constants for context keys
const (
	ContextUserIDKey   = "userID"
	ContextUserRoleKey = "userRole"
)

// AuthMiddleware creates a Gin middleware for JWT authentication.
func AuthMiddleware(authService service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortWithError(c, http.StatusUnauthorized, "Authorization header is missing")
			return
		}

		// Expecting "Bearer <token>"
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			abortWithError(c, http.StatusUnauthorized, "Authorization header format must be Bearer {token}")
			return
		}

		identity, err := authService.ParseToken(parts[1])
		if err != nil {
			if errors.Is(err, service.ErrTokenExpired) {
				abortWithError(c, http.StatusUnauthorized, "Token has expired")
			} else {
				abortWithError(c, http.StatusUnauthorized, fmt.Sprintf("Invalid token: %v", err))
			}
			return
		}

		// Set user information in the context for downstream handlers
		c.Set(ContextUserIDKey, identity.UserID.Hex())
		c.Set(ContextUserRoleKey, identity.Role)
		c.Next()
	}
}

// Helper to return JSON error response and abort request
func abortWithError(c *gin.Context, code int, message string) {
	c.AbortWithStatusJSON(code, gin.H{"error": message})
}

// RoleMiddleware creates middleware to check if user has the required role(s).
// Must run AFTER AuthMiddleware.
func RoleMiddleware(allowedRoles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		userRole, err := getUserRoleFromContext(c)
		if err != nil {
			abortWithError(c, http.StatusInternalServerError, err.Error())
			return
		}

		for _, allowedRole := range allowedRoles {
			if userRole == allowedRole {
				c.Next()
				return
			}
		}
		abortWithError(c, http.StatusForbidden, fmt.Sprintf("Access denied: Role '%s' does not have permission", userRole))
	}
}

// RequestLogger logs one line per request.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		kv := []interface{}{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
		}
		if uid, ok := c.Get(ContextUserIDKey); ok {
			kv = append(kv, "userId", uid)
		}
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			log.Error("HTTP request", kv...)
		case c.Writer.Status() >= http.StatusBadRequest:
			log.Warn("HTTP request", kv...)
		default:
			log.Info("HTTP request", kv...)
		}
	}
}

// Helper function to get User ID from context (used by handlers)
func getUserIDFromContext(c *gin.Context) (string, error) {
	idRaw, exists := c.Get(ContextUserIDKey)
	if !exists {
		return "", errors.New("user ID not found in context")
	}
	idStr, ok := idRaw.(string)
	if !ok {
		return "", errors.New("invalid user ID type in context")
	}
	return idStr, nil
}

// Helper function to get User Role from context (used by handlers)
func getUserRoleFromContext(c *gin.Context) (domain.Role, error) {
	roleRaw, exists := c.Get(ContextUserRoleKey)
	if !exists {
		return "", errors.New("user role not found in context")
	}
	role, ok := roleRaw.(domain.Role)
	if !ok {
		return "", errors.New("invalid user role type in context")
	}
	return role, nil
}

// identityFromContext builds the operator identity, aborting the request on failure.
func identityFromContext(c *gin.Context) (domain.Identity, bool) {
	idStr, err := getUserIDFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, "Unable to identify user from token.")
		return domain.Identity{}, false
	}
	userID, err := primitive.ObjectIDFromHex(idStr)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid user ID format in token.")
		return domain.Identity{}, false
	}
	role, err := getUserRoleFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, "Unable to identify user role from token.")
		return domain.Identity{}, false
	}
	return domain.Identity{UserID: userID, Role: role}, true
}

// objectIDParam parses a path parameter, aborting the request on failure.
func objectIDParam(c *gin.Context, name string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param(name))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, fmt.Sprintf("Invalid %s format.", name))
		return primitive.NilObjectID, false
	}
	return id, true
}

// respondWithError maps service and domain errors to HTTP responses. extra is
// merged into the body.
func respondWithError(c *gin.Context, log *logger.Logger, err error, extra gin.H) {
	status := http.StatusInternalServerError
	body := gin.H{"error": err.Error()}

	var (
		ve *domain.ValidationError
		nf *domain.NotFoundError
		sg *domain.SafetyGateError
		ge *domain.GenerationError
		pe *domain.PersistenceError
	)
	switch {
	case errors.As(err, &ve):
		status = http.StatusBadRequest
		body["field"] = ve.Field
	case errors.As(err, &nf):
		status = http.StatusNotFound
	case errors.As(err, &sg):
		status = http.StatusConflict
		body["safety"] = sg.Assessment
	case errors.As(err, &ge):
		status = http.StatusBadGateway
		body["fallbackAvailable"] = ge.FallbackAvailable
	case errors.As(err, &pe):
		status = http.StatusServiceUnavailable
	case errors.Is(err, service.ErrAssignmentAccessDenied):
		status = http.StatusForbidden
	default:
		log.Error("Unhandled request error", "path", c.FullPath(), "error", err)
		body["error"] = "Internal server error."
	}
	for k, v := range extra {
		body[k] = v
	}
	c.AbortWithStatusJSON(status, body)
}
