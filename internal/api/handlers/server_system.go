package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Healthz handles GET /healthz.
func (s *Server) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// intakeSummary is the public listing view of an intake definition.
// The destination stays private; callers only need the form surface.
type intakeSummary struct {
	ID      string `json:"id"`
	Version string `json:"version"`
	Title   string `json:"title,omitempty"`
}

// ListIntakes handles GET /intakes.
func (s *Server) ListIntakes(c *gin.Context) {
	ids := s.registry.ListIDs()
	summaries := make([]intakeSummary, 0, len(ids))
	for _, id := range ids {
		def, err := s.registry.Get(id)
		if err != nil {
			continue
		}
		summaries = append(summaries, intakeSummary{
			ID:      def.ID,
			Version: def.Version,
			Title:   def.Title,
		})
	}
	c.JSON(http.StatusOK, gin.H{"intakes": summaries})
}

// GetIntake handles GET /intakes/:intakeId, returning the full definition
// minus its destination.
func (s *Server) GetIntake(c *gin.Context) {
	def, err := s.registry.Get(c.Param("intakeId"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":            def.ID,
		"version":       def.Version,
		"title":         def.Title,
		"schema":        def.Schema,
		"fieldHints":    def.FieldHints,
		"approvalGates": def.ApprovalGates,
	})
}

// AdminStats handles GET /admin/stats.
func (s *Server) AdminStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"submissions": s.manager.StoreStats(),
		"deliveries":  s.engine.Queue().Stats(),
	})
}

// ListTools handles GET /tools: the tool-surface catalog over HTTP.
func (s *Server) ListTools(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tools": s.tools.ListTools()})
}

// CallTool handles POST /tools/:toolName. Tool failures are part of the
// protocol, so the response is always 200 with the flat error inside.
func (s *Server) CallTool(c *gin.Context) {
	var args map[string]any
	if err := bindJSON(c, &args); err != nil {
		_ = c.Error(err)
		return
	}
	res := s.tools.Execute(c.Request.Context(), c.Param("toolName"), args)
	c.JSON(http.StatusOK, res)
}
