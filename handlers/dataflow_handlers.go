package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"studentparent-server-go/charts"
	"studentparent-server-go/dataflow"
)

// DataflowHandler serves the /dataflow routes.
type DataflowHandler struct {
	Service *dataflow.Service
	log     *logrus.Logger
}

// NewDataflowHandler creates a new DataflowHandler
func NewDataflowHandler(svc *dataflow.Service, log *logrus.Logger) *DataflowHandler {
	return &DataflowHandler{Service: svc, log: log}
}

// Flow handles GET /dataflow/<kind>
func (h *DataflowHandler) Flow(kind charts.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := h.Service.Flow(c.Request.Context(), kind)
		if err != nil {
			h.log.WithError(err).WithField("flow", kind).Error("数据流执行失败")
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

type testTransformRequest struct {
	Data any    `json:"data"`
	Type string `json:"type"`
}

// TestTransform handles POST /dataflow/test-jolt-transform
func (h *DataflowHandler) TestTransform(c *gin.Context) {
	var req testTransformRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}
	res, err := h.Service.TestTransform(req.Type, req.Data)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, dataflow.ErrUnsupportedType) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}

// Status handles GET /dataflow/status
func (h *DataflowHandler) Status(c *gin.Context) {
	report := h.Service.Status(c.Request.Context())
	status := http.StatusOK
	if !report.Success {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}
