package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"studentparent-server-go/jolt"
)

const (
	joltServiceName = "JOLT JSON转换服务"
	joltVersion     = "0.1.7"
)

// JoltHandler serves the transform endpoints under /jolt.
type JoltHandler struct {
	Registry *jolt.Registry
	log      *logrus.Logger
}

// NewJoltHandler creates a new JoltHandler
func NewJoltHandler(registry *jolt.Registry, log *logrus.Logger) *JoltHandler {
	return &JoltHandler{Registry: registry, log: log}
}

func joltError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{
		"success":   false,
		"error":     message,
		"timestamp": time.Now().UnixMilli(),
	})
}

type transformRequest struct {
	Input any `json:"input"`
	Spec  any `json:"spec"`
}

// Transform handles POST /jolt/transform with {"input": ..., "spec": [...]}.
func (h *JoltHandler) Transform(c *gin.Context) {
	var req transformRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		joltError(c, http.StatusBadRequest, "请求体不是有效的JSON: "+err.Error())
		return
	}
	if req.Input == nil || req.Spec == nil {
		joltError(c, http.StatusBadRequest, "缺少必要参数: input 或 spec")
		return
	}
	if _, ok := req.Spec.([]any); !ok {
		joltError(c, http.StatusBadRequest, "spec必须是数组格式")
		return
	}

	chain, err := jolt.NewChainr(req.Spec)
	if err == nil {
		var output any
		if output, err = chain.Transform(req.Input); err == nil {
			c.JSON(http.StatusOK, gin.H{
				"success": true,
				"input":   req.Input,
				"spec":    req.Spec,
				"output":  output,
				"message": "转换成功",
			})
			return
		}
	}
	h.log.WithError(err).Warn("JOLT转换失败")
	joltError(c, http.StatusBadRequest, "转换失败: "+err.Error())
}

// Named handles POST /jolt/<name> for a registered transform.
func (h *JoltHandler) Named(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		t, ok := h.Registry.Lookup(name)
		if !ok {
			joltError(c, http.StatusNotFound, "未知的转换类型: "+name)
			return
		}
		failure := strings.TrimPrefix(t.Title, "学生") + "数据转换失败: "

		var input any
		if err := c.ShouldBindJSON(&input); err != nil {
			joltError(c, http.StatusBadRequest, failure+err.Error())
			return
		}
		output, err := t.Apply(input)
		if err != nil {
			h.log.WithError(err).WithField("transform", name).Warn("JOLT转换失败")
			joltError(c, http.StatusBadRequest, failure+err.Error())
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success":   true,
			"type":      t.Name,
			"chartType": t.ChartType,
			"data":      output,
		})
	}
}

// Info handles GET /jolt/info
func (h *JoltHandler) Info(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success":             true,
		"service":             joltServiceName,
		"version":             "1.0.0",
		"description":         "基于JOLT规范的JSON转换服务，专用于APIJSON数据格式转换",
		"supportedTransforms": h.Registry.Names(),
		"joltVersion":         joltVersion,
	})
}

// SampleInput is the query result used by GET /jolt/test.
func SampleInput() map[string]any {
	return map[string]any{"Student[]": []any{
		map[string]any{"grade": "七年级", "count": 3},
		map[string]any{"grade": "八年级", "count": 2},
	}}
}

// Test handles GET /jolt/test with the grade transform and SampleInput.
func (h *JoltHandler) Test(c *gin.Context) {
	t, ok := h.Registry.Lookup("grade-distribution")
	if !ok {
		joltError(c, http.StatusInternalServerError, "JOLT转换测试失败: grade-distribution 未注册")
		return
	}
	input := SampleInput()
	output, err := t.Apply(input)
	if err != nil {
		joltError(c, http.StatusInternalServerError, "JOLT转换测试失败: "+err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"message":    "JOLT转换测试成功",
		"testInput":  input,
		"testOutput": output,
		"spec":       t.Spec,
	})
}
