package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	solanaclient "github.com/lalitcap23/defess-v3/internal/client/solana"
	"github.com/lalitcap23/defess-v3/internal/period"
	"github.com/lalitcap23/defess-v3/internal/reward"
	"github.com/lalitcap23/defess-v3/internal/service"
)

const (
	actionProcessPeriod       = "process_period"
	actionTestWinnerSelection = "test_winner_selection"
)

var availableActions = []string{actionProcessPeriod, actionTestWinnerSelection}

type ChainInspector interface {
	Health(ctx context.Context) solanaclient.Health
	DeriveAddresses(periodStart *int64, postID string) (reward.Addresses, error)
}

type AdminHandler struct {
	Stats      *service.StatsService
	Processor  PeriodRunner
	Chain      ChainInspector
	CronSecret string
	Logger     *zap.Logger
}

func (h *AdminHandler) Register(r *gin.Engine) {
	g := r.Group("/api/admin", RequireCronSecret(h.CronSecret))
	g.GET("/nft-stats", h.stats)
	g.POST("/nft-stats", h.action)
	g.GET("/chain-health", h.chainHealth)
	g.GET("/addresses", h.addresses)
}

func (h *AdminHandler) stats(c *gin.Context) {
	if h.Stats == nil {
		Error(c, http.StatusInternalServerError, "stats unavailable", nil)
		return
	}
	st, err := h.Stats.Stats(c.Request.Context())
	if err != nil {
		if h.Logger != nil {
			h.Logger.Warn("admin stats failed", zap.Error(err))
		}
		Error(c, http.StatusInternalServerError, "Failed to fetch statistics: "+err.Error(), nil)
		return
	}
	Ok(c, st, nil)
}

type actionRequest struct {
	Action string `json:"action"`
}

func (h *AdminHandler) action(c *gin.Context) {
	var req actionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", map[string]any{"available_actions": availableActions})
		return
	}
	action := strings.TrimSpace(req.Action)
	switch action {
	case actionProcessPeriod:
		if h.Processor == nil {
			Error(c, http.StatusInternalServerError, "processor unavailable", nil)
			return
		}
		res := h.Processor.ProcessPreviousPeriod(context.WithoutCancel(c.Request.Context()))
		Ok(c, gin.H{"action": action, "result": res}, nil)
	case actionTestWinnerSelection:
		if h.Stats == nil || h.Stats.Selector == nil {
			Error(c, http.StatusInternalServerError, "selector unavailable", nil)
			return
		}
		preview, err := h.Stats.PreviewPreviousWinner(c.Request.Context())
		if err != nil {
			Error(c, http.StatusInternalServerError, "Admin operation failed: "+err.Error(), nil)
			return
		}
		Ok(c, gin.H{"action": action, "winner": preview}, nil)
	default:
		Error(c, http.StatusBadRequest, "Invalid action", map[string]any{"available_actions": availableActions})
	}
}

func (h *AdminHandler) chainHealth(c *gin.Context) {
	if h.Chain == nil {
		Error(c, http.StatusServiceUnavailable, "solana not configured", nil)
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()
	health := h.Chain.Health(ctx)
	if !health.Connected {
		c.JSON(http.StatusServiceUnavailable, apiResponse{Code: http.StatusServiceUnavailable, Message: "rpc unreachable", Data: health})
		return
	}
	Ok(c, health, nil)
}

func (h *AdminHandler) addresses(c *gin.Context) {
	if h.Chain == nil {
		Error(c, http.StatusServiceUnavailable, "solana not configured", nil)
		return
	}
	periodStart, err := int64Query(c, "period")
	if err != nil {
		Error(c, http.StatusBadRequest, "invalid period", nil)
		return
	}
	if periodStart != nil {
		if _, err := period.Parse(*periodStart); err != nil {
			Error(c, http.StatusBadRequest, err.Error(), nil)
			return
		}
	}
	addrs, err := h.Chain.DeriveAddresses(periodStart, strings.TrimSpace(c.Query("post")))
	if err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	Ok(c, addrs, nil)
}
