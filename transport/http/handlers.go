package http

import (
	"errors"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/layer-3/rangda/core"
	"github.com/layer-3/rangda/service"
)

// Handlers contains HTTP handlers for the controller endpoints
type Handlers struct {
	sessions *service.SessionManager
	profiles *service.ProfileController
}

// NewHandlers creates new handlers
func NewHandlers(sessions *service.SessionManager, profiles *service.ProfileController) *Handlers {
	return &Handlers{
		sessions: sessions,
		profiles: profiles,
	}
}

// Session returns the current session snapshot
func (h *Handlers) Session(c *gin.Context) {
	snap := h.sessions.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"phase":          snap.Phase,
		"ready":          snap.Ready,
		"accounts":       snap.Accounts,
		"active_account": snap.ActiveAccount,
	})
}

// Methods lists the registered auth providers
func (h *Handlers) Methods(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"methods": h.sessions.Methods()})
}

// Login begins a redirect-based login
func (h *Handlers) Login(c *gin.Context) {
	kind := core.ProviderKind(c.DefaultQuery("provider", string(core.ProviderGoogle)))

	url, err := h.sessions.BeginAuthentication(kind)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown provider"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"redirect_url": url})
}

// Callback completes a redirect-based login
func (h *Handlers) Callback(c *gin.Context) {
	kind := core.ProviderKind(c.DefaultQuery("provider", string(core.ProviderGoogle)))

	err := h.sessions.Authenticate(c.Request.Context(), kind, c.Request.URL.String())
	if err != nil {
		status := http.StatusUnauthorized
		msg := "Authentication failed"

		switch {
		case errors.Is(err, core.ErrNoKeysAndMintFailed):
			status = http.StatusBadGateway
			msg = "Key mint failed"
		case errors.Is(err, core.ErrNetworkUnavailable):
			status = http.StatusBadGateway
			msg = "Signing network unavailable"
		}

		c.JSON(status, gin.H{"error": msg})
		return
	}

	c.JSON(http.StatusOK, h.sessions.Snapshot())
}

// SetActiveKey selects a different known key
func (h *Handlers) SetActiveKey(c *gin.Context) {
	var req struct {
		Account string `json:"account" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	if err := h.sessions.SetActiveKey(c.Request.Context(), req.Account); err != nil {
		if errors.Is(err, core.ErrUnknownKey) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Unknown account"})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to activate key"})
		return
	}

	c.JSON(http.StatusOK, h.sessions.Snapshot())
}

// ListProfiles lists the active controller's profiles
func (h *Handlers) ListProfiles(c *gin.Context) {
	profiles, err := h.profiles.ListProfiles(c.Request.Context())
	if err != nil {
		if errors.Is(err, core.ErrNotReady) {
			c.JSON(http.StatusConflict, gin.H{"error": "No active account"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list profiles"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"profiles": profiles})
}

// CreateProfile deploys a new smart account for the active controller
func (h *Handlers) CreateProfile(c *gin.Context) {
	profile, err := h.profiles.CreateProfile(c.Request.Context())
	if err != nil {
		if errors.Is(err, core.ErrNotReady) {
			c.JSON(http.StatusConflict, gin.H{"error": "No active account"})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": "Deployment failed"})
		return
	}

	c.JSON(http.StatusCreated, profile)
}

// ProfileDetails returns the on-chain view of one profile
func (h *Handlers) ProfileDetails(c *gin.Context) {
	address := c.Param("address")
	if !common.IsHexAddress(address) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid address"})
		return
	}

	details, err := h.profiles.ProfileDetails(c.Request.Context(), common.HexToAddress(address))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to read profile"})
		return
	}

	c.JSON(http.StatusOK, details)
}

// SetGreeting performs the relayed setData operation on a profile
func (h *Handlers) SetGreeting(c *gin.Context) {
	address := c.Param("address")
	if !common.IsHexAddress(address) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid address"})
		return
	}

	var req struct {
		Message string `json:"message" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Greeting message is required"})
		return
	}

	receipt, err := h.profiles.SetGreeting(c.Request.Context(), common.HexToAddress(address), req.Message)
	if err != nil {
		status := http.StatusBadGateway
		msg := "Relay call failed"

		var revert *core.RelayRevertError
		switch {
		case errors.Is(err, core.ErrNotReady):
			status = http.StatusConflict
			msg = "No active account"
		case errors.Is(err, core.ErrSessionExpired):
			status = http.StatusUnauthorized
			msg = "Session expired"
		case errors.Is(err, core.ErrCapabilityDenied):
			status = http.StatusForbidden
			msg = "Capability denied"
		case errors.Is(err, core.ErrBadSignature):
			status = http.StatusUnprocessableEntity
			msg = "Signature verification failed"
		case errors.Is(err, core.ErrEstimationFailed):
			status = http.StatusUnprocessableEntity
			msg = "Estimation rejected the relay call"
		case errors.As(err, &revert):
			status = http.StatusUnprocessableEntity
			msg = revert.Error()
		}

		c.JSON(status, gin.H{"error": msg})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tx_hash":  receipt.TxHash.Hex(),
		"block":    receipt.BlockNumber.String(),
		"gas_used": receipt.GasUsed,
	})
}
