// Package handlers provides the HTTP account routes served next to the room websockets.
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cory-johannsen/roomsync/internal/storage"
)

// Response messages returned in the "message" field.
const (
	MsgLoginSuccessful    = "Login successful"
	MsgSignUpSuccessful   = "SignUp successful"
	MsgInvalidCredentials = "Invalid credentials"
	MsgAccountExists      = "Username already taken"
	MsgBadRequest         = "Username and password are required"
	MsgInternalError      = "Internal server error"
)

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthHandler serves login and signup over JSON.
type AuthHandler struct {
	accounts storage.AccountStore
	logger   *zap.Logger
}

// NewAuthHandler creates an AuthHandler backed by accounts.
//
// Precondition: accounts and logger must be non-nil.
func NewAuthHandler(accounts storage.AccountStore, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		accounts: accounts,
		logger:   logger,
	}
}

// Register mounts POST /login and POST /signup on routes.
func (h *AuthHandler) Register(routes gin.IRoutes) {
	routes.POST("/login", h.Login)
	routes.POST("/signup", h.Signup)
}

// Login authenticates a username/password pair.
//
// Postcondition: Responds 200 on success, 401 when the account is unknown or
// the password is wrong, 400 for a malformed body and 500 otherwise.
func (h *AuthHandler) Login(c *gin.Context) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil || req.Username == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": MsgBadRequest})
		return
	}

	start := time.Now()
	acct, err := h.accounts.Authenticate(c.Request.Context(), req.Username, req.Password)
	elapsed := time.Since(start)

	if err != nil {
		switch {
		case errors.Is(err, storage.ErrAccountNotFound), errors.Is(err, storage.ErrInvalidCredentials):
			h.logger.Debug("login rejected", zap.String("username", req.Username), zap.Duration("elapsed", elapsed))
			c.JSON(http.StatusUnauthorized, gin.H{"message": MsgInvalidCredentials})
		default:
			h.logger.Error("authentication error", zap.Error(err), zap.Duration("elapsed", elapsed))
			c.JSON(http.StatusInternalServerError, gin.H{"message": MsgInternalError})
		}
		return
	}

	h.logger.Info("login",
		zap.String("username", acct.Username),
		zap.Int64("account_id", acct.ID),
		zap.Duration("elapsed", elapsed),
	)
	c.JSON(http.StatusOK, gin.H{"message": MsgLoginSuccessful})
}

// Signup creates an account.
//
// Postcondition: Responds 200 on success, 409 for a taken username, 400 for a
// malformed body or unusable credentials and 500 otherwise.
func (h *AuthHandler) Signup(c *gin.Context) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": MsgBadRequest})
		return
	}
	if err := storage.ValidateCredentials(req.Username, req.Password); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	start := time.Now()
	acct, err := h.accounts.Create(c.Request.Context(), req.Username, req.Password)
	elapsed := time.Since(start)

	if err != nil {
		switch {
		case errors.Is(err, storage.ErrAccountExists):
			c.JSON(http.StatusConflict, gin.H{"message": MsgAccountExists})
		case errors.Is(err, storage.ErrInvalidInput):
			c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		default:
			h.logger.Error("registration error", zap.Error(err), zap.Duration("elapsed", elapsed))
			c.JSON(http.StatusInternalServerError, gin.H{"message": MsgInternalError})
		}
		return
	}

	h.logger.Info("account created",
		zap.String("username", acct.Username),
		zap.Int64("account_id", acct.ID),
		zap.Duration("elapsed", elapsed),
	)
	c.JSON(http.StatusOK, gin.H{"message": MsgSignUpSuccessful})
}
