// Package httpapi is the thin Gin shell around the core: job submission and
// status, debug/stats surfaces, and a dashboard websocket passthrough. All
// routing, serialization, and auth concerns beyond this sit outside the
// core's scope (see SPEC_FULL.md Non-goals); this package exists only to
// exercise the gin-gonic/gin and gorilla/websocket dependencies the way
// go-services/ml-stream-processor does.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/nexuscore/inference-core/internal/broadcaster"
	"github.com/nexuscore/inference-core/internal/corerr"
	"github.com/nexuscore/inference-core/internal/job"
	"github.com/nexuscore/inference-core/internal/modelcache"
	"github.com/nexuscore/inference-core/internal/scheduler"
	"github.com/nexuscore/inference-core/internal/stream"
)

// Deps bundles the components the HTTP shell exposes.
type Deps struct {
	Scheduler   *scheduler.Scheduler
	Registry    *scheduler.Registry
	Cache       *modelcache.Cache
	Streams     *stream.Manager
	Broadcaster *broadcaster.Broadcaster
	Logger      *zap.Logger
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// NewRouter builds the gin.Engine with every route wired to deps.
func NewRouter(deps Deps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/debug/scheduler", deps.handleDebugScheduler)
	router.GET("/debug/cache", deps.handleDebugCache)
	router.GET("/debug/streams", deps.handleDebugStreams)
	router.GET("/debug/streams/:camera_id/snapshot", deps.handleStreamSnapshot)

	router.POST("/jobs", deps.handleSubmitJob)
	router.GET("/jobs/:id", deps.handleJobStatus)

	router.GET("/dashboard/ws", deps.handleDashboardWS)

	return router
}

func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now()})
}

func (d Deps) handleDebugScheduler(c *gin.Context) {
	c.JSON(http.StatusOK, d.Scheduler.Stats())
}

func (d Deps) handleDebugCache(c *gin.Context) {
	c.JSON(http.StatusOK, d.Cache.Snapshot())
}

func (d Deps) handleDebugStreams(c *gin.Context) {
	out := make(map[string]stream.Stats)
	for _, id := range d.Streams.List() {
		if session, ok := d.Streams.Get(id); ok {
			out[id] = session.Stats()
		}
	}
	c.JSON(http.StatusOK, out)
}

func (d Deps) handleStreamSnapshot(c *gin.Context) {
	cameraID := c.Param("camera_id")
	session, ok := d.Streams.Get(cameraID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "camera not found"})
		return
	}

	c.Writer.Header().Set("Content-Type", "image/jpeg")
	if err := session.Snapshot(c.Writer); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "snapshot not available"})
		return
	}
}

type submitJobRequest struct {
	ModelRef string                 `json:"model_ref" binding:"required"`
	Kind     job.Kind               `json:"kind" binding:"required"`
	Payload  []byte                 `json:"payload"`
	Params   map[string]interface{} `json:"params"`
	Priority int                    `json:"priority"`
}

func (d Deps) handleSubmitJob(c *gin.Context) {
	var req submitJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	j := job.New(uuid.NewString(), req.ModelRef, req.Kind, req.Payload, req.Params, req.Priority, time.Now())
	if err := d.Scheduler.Submit(j); err != nil {
		status := http.StatusInternalServerError
		switch err {
		case corerr.ErrQueueFull:
			status = http.StatusTooManyRequests
		case corerr.ErrShuttingDown:
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"id": j.ID, "status": j.Status})
}

func (d Deps) handleJobStatus(c *gin.Context) {
	id := c.Param("id")
	j, ok := d.Registry.Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}

	resp := gin.H{
		"id":           j.ID,
		"model_ref":    j.ModelRef,
		"kind":         j.Kind,
		"status":       j.Status,
		"priority":     j.Priority,
		"submitted_at": j.SubmittedAt,
		"started_at":   j.StartedAt,
		"completed_at": j.CompletedAt,
	}
	if j.IsTerminal() {
		if j.Result.Err != nil {
			resp["error"] = j.Result.Err.Error()
		} else {
			resp["result"] = j.Result.Output
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (d Deps) handleDashboardWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		if d.Logger != nil {
			d.Logger.Error("dashboard websocket upgrade failed", zap.Error(err))
		}
		return
	}
	defer conn.Close()

	sub := d.Broadcaster.Subscribe()
	defer d.Broadcaster.Unsubscribe(sub)

	go readDashboardClientMessages(conn, d, sub)

	for {
		select {
		case snap, ok := <-sub.C():
			if !ok {
				return
			}
			if err := conn.WriteJSON(snap); err != nil {
				return
			}
		case <-sub.Done():
			return
		}
	}
}

// readDashboardClientMessages handles ping/snapshot-request messages from a
// connected dashboard client (spec §4.5).
func readDashboardClientMessages(conn *websocket.Conn, d Deps, sub *broadcaster.Subscriber) {
	for {
		var msg struct {
			Type string `json:"type"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		switch msg.Type {
		case "ping":
			conn.WriteJSON(gin.H{"type": "pong"})
		case "snapshot":
			conn.WriteJSON(d.Broadcaster.RequestSnapshot())
		}
	}
}
