package rest

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/felixgeelhaar/agent-registry/application"
	"github.com/felixgeelhaar/agent-registry/domain/registry"
)

// API serves the registry operations over HTTP.
type API struct {
	registry application.Registry
	name     string
	version  string
}

// NewAPI creates the registry HTTP handlers.
func NewAPI(svc application.Registry, name, version string) *API {
	return &API{registry: svc, name: name, version: version}
}

// Banner describes the running service.
func (a *API) Banner(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":    a.name,
		"version": a.version,
		"status":  "running",
	})
}

// RegisterAgent handles POST /register.
func (a *API) RegisterAgent(c *gin.Context) {
	var reg registry.AgentRegistration
	if err := c.ShouldBindJSON(&reg); err != nil {
		abortBadRequest(c, err)
		return
	}

	result, err := a.registry.Register(c.Request.Context(), reg)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ListAgents handles GET /list?status=.
func (a *API) ListAgents(c *gin.Context) {
	agents, err := a.registry.List(c.Request.Context(), registry.Status(c.Query("status")))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"agents": agents, "count": len(agents)})
}

// SearchAgents handles GET /search?capabilities=a,b&domain=&q=.
func (a *API) SearchAgents(c *gin.Context) {
	query := registry.SearchQuery{
		Capabilities: splitList(c.QueryArray("capabilities")),
		Domain:       c.Query("domain"),
		Query:        c.Query("q"),
	}

	agents, err := a.registry.Search(c.Request.Context(), query)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"agents": agents, "count": len(agents)})
}

// LookupAgent handles GET /lookup/:agent_id.
func (a *API) LookupAgent(c *gin.Context) {
	rec, err := a.registry.Get(c.Request.Context(), c.Param("agent_id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// UpdateAgent handles PUT /update/:agent_id.
func (a *API) UpdateAgent(c *gin.Context) {
	var update registry.AgentUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		abortBadRequest(c, err)
		return
	}

	result, err := a.registry.Update(c.Request.Context(), c.Param("agent_id"), update)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// DeleteAgent handles DELETE /agents/:agent_id.
func (a *API) DeleteAgent(c *gin.Context) {
	result, err := a.registry.Delete(c.Request.Context(), c.Param("agent_id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Health handles GET /health.
func (a *API) Health(c *gin.Context) {
	status := a.registry.HealthCheck(c.Request.Context())
	code := http.StatusOK
	if !status.Healthy() {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}

// FactsDocument handles GET /@{username}.json.
func (a *API) FactsDocument(c *gin.Context) {
	file := c.Param("file")
	if !strings.HasPrefix(file, "@") || !strings.HasSuffix(file, ".json") || len(file) <= len("@.json") {
		c.AbortWithStatusJSON(http.StatusNotFound, ErrorResponse{Error: "not found", Kind: "not_found"})
		return
	}
	a.serveFacts(c, strings.TrimSuffix(strings.TrimPrefix(file, "@"), ".json"))
}

// Facts handles GET /facts/:username.
func (a *API) Facts(c *gin.Context) {
	a.serveFacts(c, c.Param("username"))
}

func (a *API) serveFacts(c *gin.Context, username string) {
	facts, err := a.registry.GetAgentFacts(c.Request.Context(), username)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, facts)
}

// splitList flattens repeated and comma-separated query values. Blank parts
// are kept so a parameter holding only blanks fails validation.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		out = append(out, strings.Split(v, ",")...)
	}
	return out
}
