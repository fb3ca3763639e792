package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/oneboxhq/onebox/interfaces"
	"github.com/oneboxhq/onebox/internal/tracing"
)

// TriggerSync runs a reconciliation sync on demand and returns the
// newly indexed messages. Concurrent triggers are serialized by the
// engine.
func TriggerSync(engine interfaces.SyncEngine) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "TriggerSync", c.Request.Header)
		defer span.Finish()
		tracing.TagComponentRest(span)

		emails, err := engine.FullSync(ctx)
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		span.LogKV("new", len(emails))
		c.JSON(http.StatusOK, gin.H{
			"status": "completed",
			"new":    len(emails),
			"emails": emails,
		})
	}
}
