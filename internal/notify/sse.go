package notify

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"forge/internal/common"
	"forge/internal/pipeline"

	"github.com/gin-gonic/gin"
)

const keepAlive = 20 * time.Second

// Lookup reads the current snapshot of a pipeline.
type Lookup func(ctx context.Context, id string) (*pipeline.Pipeline, error)

// ServeSSE streams events for ?pipeline=<id>, or for the caller's own
// pipelines when only an identity is present. With a lookup, a pipeline
// stream of an unknown id is a 404 and one that already finished gets its
// final event and closes.
func (h *Hub) ServeSSE(userID func(*gin.Context) string, lookup Lookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		topic := c.Query("pipeline")
		if topic == "" {
			if uid := userID(c); uid != "" {
				topic = UserTopic(uid)
			}
		}
		if topic == "" {
			common.Error(c, common.WithMsg(common.REQUEST_INVALID, "pipeline query parameter is required"))
			return
		}

		events, unsubscribe := h.Subscribe(topic)
		defer unsubscribe()

		// read after subscribing so a transition in between is not lost
		var final *pipeline.Event
		if id := c.Query("pipeline"); id != "" && lookup != nil {
			p, err := lookup(c.Request.Context(), id)
			switch {
			case errors.Is(err, pipeline.ErrNotFound):
				common.Error(c, common.NewErrNo(common.PIPELINE_NOT_EXISTS))
				return
			case err == nil && p.Status.Terminal():
				e := pipeline.PipelineEvent(p)
				final = &e
			}
		}

		c.Writer.Header().Set("Content-Type", "text/event-stream")
		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Writer.Header().Set("Connection", "keep-alive")
		c.Status(http.StatusOK)

		if final != nil {
			c.SSEvent(string(final.Type), *final)
			c.Writer.Flush()
			return
		}

		ticker := time.NewTicker(keepAlive)
		defer ticker.Stop()

		c.Stream(func(w io.Writer) bool {
			select {
			case <-c.Request.Context().Done():
				return false
			case e := <-events:
				c.SSEvent(string(e.Type), e)
				return !terminalEvent(e, topic)
			case <-ticker.C:
				_, _ = io.WriteString(w, ": ping\n\n")
				return true
			}
		})
	}
}

// a pipeline stream ends with the pipeline
func terminalEvent(e pipeline.Event, topic string) bool {
	return topic == e.PipelineID && e.Type == pipeline.EventPipeline && e.Status.Terminal()
}
