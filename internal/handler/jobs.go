package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lalitcap23/defess-v3/internal/service"
)

type PeriodRunner interface {
	ProcessPreviousPeriod(ctx context.Context) service.Result
}

// JobsHandler is the scheduler-facing trigger. Responses are the bare result
// object, not the admin envelope.
type JobsHandler struct {
	Processor  PeriodRunner
	CronSecret string
}

type jobResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Signature string `json:"signature,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (h *JobsHandler) Register(r *gin.Engine) {
	g := r.Group("/api/jobs")
	g.GET("/process-period", h.status)
	g.POST("/process-period", RequireCronSecret(h.CronSecret), h.processPeriod)
}

func (h *JobsHandler) status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "NFT period processing endpoint",
		"status":  "ready",
	})
}

func (h *JobsHandler) processPeriod(c *gin.Context) {
	if h.Processor == nil {
		c.JSON(http.StatusInternalServerError, jobResponse{Message: "processor unavailable", Error: "processor unavailable"})
		return
	}
	// A dropped client must not abort a mint in flight.
	res := h.Processor.ProcessPreviousPeriod(context.WithoutCancel(c.Request.Context()))
	c.JSON(resultStatus(res), jobResponse{
		Success:   res.Success,
		Message:   res.Message,
		Signature: res.Signature,
		Error:     res.Error,
	})
}

// resultStatus: 200 for the outcomes a caller should not retry, 500 otherwise.
func resultStatus(res service.Result) int {
	if res.Kind.Failure() {
		return http.StatusInternalServerError
	}
	return http.StatusOK
}
