package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	pkglog "github.com/weiawesome/wes-dm-relay/pkg/log"
	"github.com/weiawesome/wes-dm-relay/pkg/middleware"
	"github.com/weiawesome/wes-dm-relay/pkg/response"
	"github.com/weiawesome/wes-dm-relay/relay-service/internal/domain"
	"github.com/weiawesome/wes-dm-relay/relay-service/internal/repository"
	"github.com/weiawesome/wes-dm-relay/relay-service/internal/service"
)

// Handler handles HTTP requests for the relay service.
type Handler struct {
	accounts       service.AccountService
	contacts       service.ContactService
	delivery       service.DeliveryService
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler creates a new HTTP handler.
func NewHandler(
	accounts service.AccountService,
	contacts service.ContactService,
	delivery service.DeliveryService,
	authMiddleware *middleware.AuthMiddleware,
) *Handler {
	return &Handler{
		accounts:       accounts,
		contacts:       contacts,
		delivery:       delivery,
		authMiddleware: authMiddleware,
	}
}

// RegisterRoutes registers all routes onto the Gin engine.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)

	api := r.Group("/api/v1")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/signup", h.Signup)
			auth.POST("/login", h.Login)
			auth.GET("/recovery-question/:username", h.RecoveryQuestion)
			auth.POST("/verify-recovery", h.VerifyRecovery)
			auth.POST("/reset-password", h.ResetPassword)
		}

		protected := api.Group("", h.authMiddleware.RequireAuth())
		{
			protected.GET("/users", h.ListUsers)
			protected.GET("/history/:user1/:user2", h.History)
			protected.GET("/contacts/:username", h.ListRelationships)

			requests := protected.Group("/requests")
			{
				requests.POST("", h.CreateRequest)
				requests.GET("/pending/:username", h.ListPending)
				requests.POST("/accept", h.AcceptRequest)
				requests.POST("/reject", h.RejectRequest)
				requests.POST("/status", h.UpdateStatus)
			}
		}
	}
}

// Health handles GET /health.
func (h *Handler) Health(c *gin.Context) {
	response.Success(c, gin.H{"status": "ok"})
}

// Signup handles POST /api/v1/auth/signup.
func (h *Handler) Signup(c *gin.Context) {
	var req domain.SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	user, err := h.accounts.Signup(c.Request.Context(), &req)
	if err != nil {
		h.writeError(c, err, "signup failed")
		return
	}
	response.Created(c, user)
}

// Login handles POST /api/v1/auth/login.
func (h *Handler) Login(c *gin.Context) {
	var req domain.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	resp, err := h.accounts.Login(c.Request.Context(), &req)
	if err != nil {
		h.writeError(c, err, "login failed")
		return
	}
	response.Success(c, resp)
}

// RecoveryQuestion handles GET /api/v1/auth/recovery-question/:username.
func (h *Handler) RecoveryQuestion(c *gin.Context) {
	resp, err := h.accounts.RecoveryQuestion(c.Request.Context(), c.Param("username"))
	if err != nil {
		h.writeError(c, err, "recovery question lookup failed")
		return
	}
	response.Success(c, resp)
}

// VerifyRecovery handles POST /api/v1/auth/verify-recovery.
func (h *Handler) VerifyRecovery(c *gin.Context) {
	var req domain.VerifyRecoveryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if err := h.accounts.VerifyRecovery(c.Request.Context(), &req); err != nil {
		h.writeError(c, err, "recovery verification failed")
		return
	}
	response.Success(c, gin.H{"message": "answer verified"})
}

// ResetPassword handles POST /api/v1/auth/reset-password.
func (h *Handler) ResetPassword(c *gin.Context) {
	var req domain.ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if err := h.accounts.ResetPassword(c.Request.Context(), &req); err != nil {
		h.writeError(c, err, "password reset failed")
		return
	}
	response.Success(c, gin.H{"message": "password reset successful"})
}

// ListUsers handles GET /api/v1/users.
func (h *Handler) ListUsers(c *gin.Context) {
	users, err := h.accounts.ListUsers(c.Request.Context())
	if err != nil {
		h.writeError(c, err, "list users failed")
		return
	}
	response.Success(c, users)
}

// History handles GET /api/v1/history/:user1/:user2.
// The caller must be one of the two users.
func (h *Handler) History(c *gin.Context) {
	user1, user2 := c.Param("user1"), c.Param("user2")
	if !h.requireParty(c, user1, user2) {
		return
	}

	messages, err := h.delivery.History(c.Request.Context(), user1, user2)
	if err != nil {
		h.writeError(c, err, "history lookup failed")
		return
	}
	response.Success(c, messages)
}

// CreateRequest handles POST /api/v1/requests.
// The caller must be the requester.
func (h *Handler) CreateRequest(c *gin.Context) {
	var body domain.ChatRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if !h.requireSelf(c, body.FromUser) {
		return
	}

	req, err := h.contacts.Create(c.Request.Context(), body.FromUser, body.ToUser)
	if err != nil {
		h.writeError(c, err, "create chat request failed")
		return
	}
	response.Created(c, req)
}

// ListPending handles GET /api/v1/requests/pending/:username.
func (h *Handler) ListPending(c *gin.Context) {
	username := c.Param("username")
	if !h.requireSelf(c, username) {
		return
	}

	requests, err := h.contacts.ListPending(c.Request.Context(), username)
	if err != nil {
		h.writeError(c, err, "list pending requests failed")
		return
	}
	response.Success(c, requests)
}

// AcceptRequest handles POST /api/v1/requests/accept.
func (h *Handler) AcceptRequest(c *gin.Context) {
	var body domain.ChatRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if !h.requireParty(c, body.FromUser, body.ToUser) {
		return
	}

	req, err := h.contacts.Accept(c.Request.Context(), body.FromUser, body.ToUser)
	if err != nil {
		h.writeError(c, err, "accept chat request failed")
		return
	}
	response.Success(c, req)
}

// RejectRequest handles POST /api/v1/requests/reject.
func (h *Handler) RejectRequest(c *gin.Context) {
	var body domain.ChatRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if !h.requireParty(c, body.FromUser, body.ToUser) {
		return
	}

	if err := h.contacts.Reject(c.Request.Context(), body.FromUser, body.ToUser); err != nil {
		h.writeError(c, err, "reject chat request failed")
		return
	}
	response.Success(c, gin.H{"message": "request rejected and removed"})
}

// UpdateStatus handles POST /api/v1/requests/status.
func (h *Handler) UpdateStatus(c *gin.Context) {
	var body domain.UpdateStatusBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if !h.requireParty(c, body.FromUser, body.ToUser) {
		return
	}

	req, err := h.contacts.UpdateStatus(c.Request.Context(), body.FromUser, body.ToUser, body.NewStatus)
	if err != nil {
		h.writeError(c, err, "update request status failed")
		return
	}
	response.Success(c, req)
}

// ListRelationships handles GET /api/v1/contacts/:username.
func (h *Handler) ListRelationships(c *gin.Context) {
	username := c.Param("username")
	if !h.requireSelf(c, username) {
		return
	}

	rels, err := h.contacts.ListRelationships(c.Request.Context(), username)
	if err != nil {
		h.writeError(c, err, "list relationships failed")
		return
	}
	response.Success(c, rels)
}

func (h *Handler) requireSelf(c *gin.Context, username string) bool {
	caller := middleware.GetUsername(c)
	if caller == "" {
		response.Unauthorized(c, "unauthorized")
		return false
	}
	if caller != strings.TrimSpace(username) {
		response.Forbidden(c, "not allowed to act for another user")
		return false
	}
	return true
}

func (h *Handler) requireParty(c *gin.Context, userA, userB string) bool {
	caller := middleware.GetUsername(c)
	if caller == "" {
		response.Unauthorized(c, "unauthorized")
		return false
	}
	if caller != strings.TrimSpace(userA) && caller != strings.TrimSpace(userB) {
		response.Forbidden(c, "not a party to this conversation")
		return false
	}
	return true
}

// writeError maps service and repository errors onto HTTP responses.
func (h *Handler) writeError(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, repository.ErrUserNotFound):
		response.NotFound(c, "user not found")
	case errors.Is(err, repository.ErrRequestNotFound):
		response.NotFound(c, "chat request not found")
	case errors.Is(err, repository.ErrUsernameExists):
		response.Conflict(c, "username already exists")
	case errors.Is(err, repository.ErrRequestExists):
		response.Conflict(c, "an active chat request already exists")
	case errors.Is(err, repository.ErrPairBlocked):
		response.Forbidden(c, "chat between these users is blocked")
	case errors.Is(err, service.ErrInvalidCredentials):
		response.Unauthorized(c, "invalid credentials")
	case errors.Is(err, service.ErrIncorrectAnswer):
		response.Unauthorized(c, "incorrect answer")
	case errors.Is(err, service.ErrSelfRequest),
		errors.Is(err, service.ErrInvalidStatus),
		errors.Is(err, service.ErrInvalidUsername),
		errors.Is(err, service.ErrSecretTooLong):
		response.BadRequest(c, err.Error())
	default:
		l := pkglog.Ctx(c.Request.Context())
		l.Error().Err(err).Msg(msg)
		response.Error(c, http.StatusInternalServerError, response.CodeInternal, msg)
	}
}
