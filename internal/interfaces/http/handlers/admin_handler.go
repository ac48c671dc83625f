package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ruziba3vich/tax-filing-service/internal/application/services"
	"github.com/ruziba3vich/tax-filing-service/pkg/logger"
)

const defaultLogPageSize = 50

// LogQuerier reads stored log entries.
type LogQuerier interface {
	Query(ctx context.Context, filter logger.QueryFilter) ([]logger.LogEntry, int64, error)
}

// AdminHandler serves operator endpoints: session counters and log search.
type AdminHandler struct {
	stats *services.StatsService
	logs  LogQuerier
}

// NewAdminHandler creates a new admin handler. logs may be nil when the
// SQLite log sink is disabled.
func NewAdminHandler(stats *services.StatsService, logs LogQuerier) *AdminHandler {
	return &AdminHandler{stats: stats, logs: logs}
}

// Stats returns session counts by status.
// GET /api/v1/admin/stats
func (h *AdminHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.stats.Snapshot())
}

// LogEntryView is a log entry as returned by the log search.
type LogEntryView struct {
	Time      string                 `json:"time"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Caller    string                 `json:"caller,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
	SessionID string                 `json:"session_id,omitempty"`
	ClientID  string                 `json:"client_id,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Logs searches the SQLite log sink.
// GET /api/v1/admin/logs
func (h *AdminHandler) Logs(c *gin.Context) {
	if h.logs == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":             "not_found",
			"error_description": "log sink disabled",
		})
		return
	}

	filter := logger.QueryFilter{
		Level:     strings.ToLower(c.Query("level")),
		Search:    c.Query("search"),
		RequestID: c.Query("request_id"),
		SessionID: c.Query("session_id"),
		ClientID:  c.Query("client_id"),
		Limit:     defaultLogPageSize,
	}

	if startTime := c.Query("start_time"); startTime != "" {
		t, err := time.Parse(time.RFC3339, startTime)
		if err != nil {
			badRequest(c, err)
			return
		}
		filter.StartTime = &t
	}

	if endTime := c.Query("end_time"); endTime != "" {
		t, err := time.Parse(time.RFC3339, endTime)
		if err != nil {
			badRequest(c, err)
			return
		}
		filter.EndTime = &t
	}

	if limit := c.Query("limit"); limit != "" {
		if l, err := strconv.Atoi(limit); err == nil && l > 0 {
			filter.Limit = l
		}
	}

	if offset := c.Query("offset"); offset != "" {
		if o, err := strconv.Atoi(offset); err == nil && o >= 0 {
			filter.Offset = o
		}
	}

	entries, total, err := h.logs.Query(c.Request.Context(), filter)
	if err != nil {
		handleError(c, err)
		return
	}

	views := make([]LogEntryView, len(entries))
	for i, entry := range entries {
		views[i] = LogEntryView{
			Time:      time.UnixMilli(entry.Timestamp).UTC().Format(time.RFC3339Nano),
			Level:     entry.Level,
			Message:   entry.Message,
			Caller:    entry.Caller,
			RequestID: entry.RequestID,
			SessionID: entry.SessionID,
			ClientID:  entry.ClientID,
			Fields:    entry.Fields,
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"entries": views,
		"total":   total,
		"limit":   filter.Limit,
		"offset":  filter.Offset,
	})
}
