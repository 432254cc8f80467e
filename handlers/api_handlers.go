package handlers

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"studentparent-server-go/db"
	"studentparent-server-go/models"
	"studentparent-server-go/query"
)

// Store is the storage the HTTP layer talks to directly.
type Store interface {
	Ping(ctx context.Context) error
	ImportStudentsFromExcel(ctx context.Context, file io.Reader) (int, error)
	ExportTableToExcel(ctx context.Context, table string, w io.Writer) (int, error)
}

// APIHandler serves the query protocol endpoints and the spreadsheet routes.
type APIHandler struct {
	Engine *query.Engine
	Store  Store
	log    *logrus.Logger
}

// NewAPIHandler creates a new APIHandler
func NewAPIHandler(engine *query.Engine, store Store, log *logrus.Logger) *APIHandler {
	return &APIHandler{Engine: engine, Store: store, log: log}
}

// --- Query Handlers ---

// Query handles POST /get, /head, /gets, /heads, /post, /put and /delete.
// The answer is always HTTP 200; failures are reported in the envelope.
func (h *APIHandler) Query(method models.Method) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := c.GetRawData()
		if err != nil {
			h.log.WithError(err).Warn("Error reading request body")
			c.JSON(http.StatusOK, gin.H{"ok": false, "code": http.StatusBadRequest, "msg": "failed to read request body"})
			return
		}
		resp := h.Engine.Execute(c.Request.Context(), method, RoleFrom(c), body)
		c.Data(http.StatusOK, "application/json; charset=utf-8", resp)
	}
}

// --- Import/Export Handlers ---

// ImportStudents handles POST /import/students
func (h *APIHandler) ImportStudents(c *gin.Context) {
	if RoleFrom(c) != models.RoleAdmin {
		c.JSON(http.StatusForbidden, gin.H{"message": "Only administrators may import students"})
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		h.log.WithError(err).Warn("Error getting form file")
		c.JSON(http.StatusBadRequest, gin.H{"message": "Error retrieving uploaded file: " + err.Error()})
		return
	}
	defer file.Close()

	h.log.WithField("file", header.Filename).Info("Received file upload")

	importedCount, err := h.Store.ImportStudentsFromExcel(c.Request.Context(), file)
	if err != nil {
		h.log.WithError(err).WithField("file", header.Filename).Error("Error importing students")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to import students: " + err.Error()})
		return
	}
	if importedCount > 0 {
		h.Engine.Invalidate(c.Request.Context())
	}

	c.JSON(http.StatusOK, gin.H{
		"message":       "Import successful",
		"importedCount": importedCount,
	})
}

// ExportTable handles GET /export/:table
func (h *APIHandler) ExportTable(c *gin.Context) {
	table := c.Param("table")
	if _, ok := db.LookupTable(table); !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "Table not found"})
		return
	}

	var buf bytes.Buffer
	n, err := h.Store.ExportTableToExcel(c.Request.Context(), table, &buf)
	if err != nil {
		h.log.WithError(err).WithField("table", table).Error("Error exporting table")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to export table"})
		return
	}

	h.log.WithFields(logrus.Fields{"table": table, "rows": n}).Info("Exported table")
	filename := table + "-" + time.Now().Format("20060102150405") + ".xlsx"
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}

// --- Ping Handler ---

// Ping handles GET /ping and checks the database.
func (h *APIHandler) Ping(c *gin.Context) {
	if err := h.Store.Ping(c.Request.Context()); err != nil {
		h.log.WithError(err).Error("Ping failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"message": "Database unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Pong!"})
}
