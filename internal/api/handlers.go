package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"WalletSentinel/internal/chain"
	"WalletSentinel/internal/gate"
	"WalletSentinel/internal/history"
	"WalletSentinel/internal/model"
	"WalletSentinel/internal/registry"
)

// WalletRisk handles GET /api/v1/wallets/:address/risk
func (s *Server) WalletRisk(c *gin.Context) {
	address, err := chain.CanonicalAddress(c.Param("address"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_address", "message": "Invalid Ethereum address"})
		return
	}

	analysis, err := s.deps.Analyzer.Analyze(c.Request.Context(), address)
	if err != nil {
		status, code := http.StatusServiceUnavailable, "chain_unavailable"
		switch {
		case errors.Is(err, chain.ErrNotFound):
			status, code = http.StatusNotFound, "not_found"
		case errors.Is(err, chain.ErrRateLimited):
			status, code = http.StatusTooManyRequests, "rate_limited"
		}
		c.JSON(status, gin.H{"error": code, "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"address":        address,
		"wallet":         analysis.Wallet,
		"features":       analysis.Features,
		"classification": analysis.Classification,
	})
}

// GetSubscriber handles GET /api/v1/subscribers/:chat_id
func (s *Server) GetSubscriber(c *gin.Context) {
	chatID, ok := chatIDParam(c)
	if !ok {
		return
	}
	sub, found := s.deps.Registry.Get(chatID)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "Subscriber not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscriber": subscriberView(sub)})
}

type watchRequest struct {
	Address string `json:"address" binding:"required"`
}

// WatchWallet handles POST /api/v1/subscribers/:chat_id/wallets
func (s *Server) WatchWallet(c *gin.Context) {
	chatID, ok := chatIDParam(c)
	if !ok {
		return
	}
	var req watchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "Invalid request body"})
		return
	}
	address, err := chain.CanonicalAddress(req.Address)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_address", "message": "Invalid Ethereum address"})
		return
	}

	if err := s.deps.Registry.Watch(c.Request.Context(), chatID, address); err != nil {
		if errors.Is(err, registry.ErrAlreadyWatched) {
			c.JSON(http.StatusConflict, gin.H{"error": "already_watched", "message": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}
	sub, _ := s.deps.Registry.Get(chatID)
	c.JSON(http.StatusCreated, gin.H{"subscriber": subscriberView(sub)})
}

// UnwatchWallet handles DELETE /api/v1/subscribers/:chat_id/wallets/:address
func (s *Server) UnwatchWallet(c *gin.Context) {
	chatID, ok := chatIDParam(c)
	if !ok {
		return
	}
	address, err := chain.CanonicalAddress(c.Param("address"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_address", "message": "Invalid Ethereum address"})
		return
	}
	if err := s.deps.Registry.Unwatch(c.Request.Context(), chatID, address); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_watched", "message": err.Error()})
		return
	}
	sub, _ := s.deps.Registry.Get(chatID)
	c.JSON(http.StatusOK, gin.H{"subscriber": subscriberView(sub)})
}

type preferenceRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// SetPreference handles PUT /api/v1/subscribers/:chat_id/preferences/:alert_type
func (s *Server) SetPreference(c *gin.Context) {
	chatID, ok := chatIDParam(c)
	if !ok {
		return
	}
	t, ok := model.ParseAlertType(c.Param("alert_type"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_alert_type", "message": "Unknown alert type"})
		return
	}
	var req preferenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "Invalid request body"})
		return
	}

	s.deps.Registry.SetPreference(c.Request.Context(), chatID, t, *req.Enabled)
	sub, _ := s.deps.Registry.Get(chatID)
	c.JSON(http.StatusOK, gin.H{"subscriber": subscriberView(sub)})
}

// ListAlerts handles GET /api/v1/alerts
func (s *Server) ListAlerts(c *gin.Context) {
	var f history.Filter
	if v := c.Query("type"); v != "" {
		t, ok := model.ParseAlertType(v)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_alert_type", "message": "Unknown alert type"})
			return
		}
		f.Type = t
	}
	f.Limit = parseLimit(c, 50, 500)

	alerts := s.deps.History.List(f)
	c.JSON(http.StatusOK, gin.H{"alerts": alerts, "count": len(alerts)})
}

// ActivateAlert handles POST /api/v1/alerts/:alert_type/:subject/activate
func (s *Server) ActivateAlert(c *gin.Context) {
	s.switchAlert(c, true)
}

// DeactivateAlert handles POST /api/v1/alerts/:alert_type/:subject/deactivate
func (s *Server) DeactivateAlert(c *gin.Context) {
	s.switchAlert(c, false)
}

func (s *Server) switchAlert(c *gin.Context, active bool) {
	t, ok := model.ParseAlertType(c.Param("alert_type"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_alert_type", "message": "Unknown alert type"})
		return
	}
	key := model.NewAlertKey(t, c.Param("subject"))
	if addr, err := chain.CanonicalAddress(key.Subject); err == nil {
		key.Subject = addr
	}

	var err error
	if active {
		err = s.deps.Alerts.Activate(c.Request.Context(), key)
	} else {
		err = s.deps.Alerts.Deactivate(c.Request.Context(), key)
	}
	if err != nil {
		if errors.Is(err, gate.ErrUnknownKey) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}
	rec, _ := s.deps.History.Get(key)
	c.JSON(http.StatusOK, gin.H{"alert": rec})
}

func chatIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("chat_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_chat_id", "message": "chat_id must be an integer"})
		return 0, false
	}
	return id, true
}

func parseLimit(c *gin.Context, def, max int) int {
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

type subscriberResponse struct {
	ChatID      int64           `json:"chat_id"`
	Wallets     []string        `json:"wallets"`
	Preferences map[string]bool `json:"preferences"`
}

func subscriberView(s *model.Subscriber) subscriberResponse {
	prefs := make(map[string]bool, len(model.AlertTypes))
	for _, t := range model.AlertTypes {
		prefs[string(t)] = s.Enabled(t)
	}
	wallets := s.Wallets
	if wallets == nil {
		wallets = []string{}
	}
	return subscriberResponse{ChatID: s.ChatID, Wallets: wallets, Preferences: prefs}
}
