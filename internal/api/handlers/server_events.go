package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/amitpaz1/formbridge-sub001/internal/domain"
	apperrors "github.com/amitpaz1/formbridge-sub001/internal/pkg/errors"
	"github.com/amitpaz1/formbridge-sub001/internal/store"
)

// ListEvents handles GET /submissions/:submissionId/events.
//
// Query parameters: type (repeatable), actorKind, since, until (RFC3339),
// limit, offset. Event payloads come back with resume tokens redacted.
func (s *Server) ListEvents(c *gin.Context) {
	filter, err := eventFilterFromQuery(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	events, total, err := s.manager.ListEvents(c.Request.Context(),
		c.Param("submissionId"), tenantOf(c), filter)
	if err != nil {
		_ = c.Error(err)
		return
	}

	redacted := make([]*domain.Event, len(events))
	for i, ev := range events {
		redacted[i] = ev.Redacted()
	}
	c.JSON(http.StatusOK, gin.H{
		"events": redacted,
		"total":  total,
	})
}

func eventFilterFromQuery(c *gin.Context) (store.EventFilter, error) {
	var filter store.EventFilter

	for _, t := range c.QueryArray("type") {
		filter.Types = append(filter.Types, domain.EventType(t))
	}
	filter.ActorKind = domain.ActorKind(c.Query("actorKind"))

	if raw := c.Query("since"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, apperrors.InvalidRequest("since must be RFC3339: " + err.Error())
		}
		filter.Since = &ts
	}
	if raw := c.Query("until"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, apperrors.InvalidRequest("until must be RFC3339: " + err.Error())
		}
		filter.Until = &ts
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return filter, apperrors.InvalidRequest("limit must be a non-negative integer")
		}
		filter.Limit = &n
	}
	if raw := c.Query("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return filter, apperrors.InvalidRequest("offset must be a non-negative integer")
		}
		filter.Offset = n
	}
	return filter, nil
}
