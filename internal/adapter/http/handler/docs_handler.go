package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// DocsHandler serves the API description and a browser for it.
type DocsHandler struct {
	openAPI []byte
	page    []byte
}

func NewDocsHandler(openAPI, page []byte) *DocsHandler {
	return &DocsHandler{openAPI: openAPI, page: page}
}

// OpenAPI handles GET /docs/openapi.yaml.
func (h *DocsHandler) OpenAPI(c *gin.Context) {
	c.Data(http.StatusOK, "application/yaml", h.openAPI)
}

// UI handles GET /docs. The page fetches /docs/openapi.yaml.
func (h *DocsHandler) UI(c *gin.Context) {
	if len(h.page) == 0 {
		c.Redirect(http.StatusFound, "/docs/openapi.yaml")
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", h.page)
}
