package server

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
)

const probeTimeout = 2 * time.Second

type dependencyStatus struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

func (h *handlers) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), probeTimeout)
	defer cancel()

	names := make([]string, 0, len(h.deps.Probes))
	for name := range h.deps.Probes {
		names = append(names, name)
	}
	sort.Strings(names)

	deps := make(map[string]dependencyStatus, len(names))
	allOK := true
	for _, name := range names {
		st := dependencyStatus{OK: true}
		if err := h.deps.Probes[name](ctx); err != nil {
			st = dependencyStatus{OK: false, Message: err.Error()}
			allOK = false
			h.logger.Warn("health.probe_failed", "dependency", name, "error", err)
		}
		deps[name] = st
	}

	status, code := "ok", http.StatusOK
	if !allOK {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"status": status, "dependencies": deps})
}
