package httpserver

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/localinfer/localinfer/internal/engine"
	"github.com/localinfer/localinfer/internal/sampler"
)

// StateHandler reports the engine's current lifecycle state.
func (s *Server) StateHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"state": s.Engine.State().String()})
}

// loadRequest is the JSON body of POST /api/load.
type loadRequest struct {
	BundleDir         string `json:"bundle_dir" binding:"required"`
	Device            string `json:"device"`
	MaxSequenceLength int    `json:"max_sequence_length"`
}

// LoadHandler streams ndjson engine.Event objects for a Load call, one
// JSON object per line, flushed as each arrives -- the same
// Content-Type: application/x-ndjson convention the reference
// generate/chat handlers stream with.
func (s *Server) LoadHandler(c *gin.Context) {
	var req loadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	events, err := s.Engine.Load(c.Request.Context(), s.Store, engine.LoadOptions{
		BundleDir:         req.BundleDir,
		DeviceName:        req.Device,
		MaxSequenceLength: req.MaxSequenceLength,
	})
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	streamEvents(c, events)
}

// generateRequest is the JSON body of POST /api/generate.
type generateRequest struct {
	PromptTokens []int   `json:"prompt_tokens" binding:"required"`
	MaxNewTokens int     `json:"max_new_tokens"`
	Temperature  float64 `json:"temperature"`
	TopK         int     `json:"top_k"`
	TopP         float64 `json:"top_p"`
	Seed         int64   `json:"seed"`
	StopTokenIDs []int   `json:"stop_token_ids"`
}

// GenerateHandler streams ndjson engine.Event objects (EventToken per
// sampled token, then EventDone or EventError) for a Generate call.
func (s *Server) GenerateHandler(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	events, err := s.Engine.Generate(c.Request.Context(), engine.GenerateParams{
		PromptTokens: req.PromptTokens,
		MaxNewTokens: req.MaxNewTokens,
		Sampler: sampler.Params{
			Temperature: req.Temperature,
			TopK:        req.TopK,
			TopP:        req.TopP,
			Seed:        req.Seed,
		},
		StopTokenIDs: req.StopTokenIDs,
	})
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	streamEvents(c, events)
}

// StopHandler requests the in-flight Generate end after its current
// token; it is a no-op if no generation is running.
func (s *Server) StopHandler(c *gin.Context) {
	s.Engine.Stop()
	c.JSON(http.StatusOK, gin.H{"state": s.Engine.State().String()})
}

// UnloadHandler releases the loaded model and returns the engine to Empty.
func (s *Server) UnloadHandler(c *gin.Context) {
	if err := s.Engine.Unload(); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": s.Engine.State().String()})
}

type eventJSON struct {
	Kind            string  `json:"kind"`
	Phase           string  `json:"phase,omitempty"`
	Percent         int     `json:"percent,omitempty"`
	TokenID         int     `json:"token_id,omitempty"`
	Text            string  `json:"text,omitempty"`
	TokenCount      int     `json:"token_count,omitempty"`
	TokensPerSecond float64 `json:"tokens_per_second,omitempty"`
	Error           string  `json:"error,omitempty"`
}

func kindString(k engine.EventKind) string {
	switch k {
	case engine.EventProgress:
		return "progress"
	case engine.EventToken:
		return "token"
	case engine.EventDone:
		return "done"
	case engine.EventError:
		return "error"
	default:
		return "unknown"
	}
}

func streamEvents(c *gin.Context, events <-chan engine.Event) {
	c.Header("Content-Type", "application/x-ndjson")
	c.Status(http.StatusOK)

	for ev := range events {
		out := eventJSON{
			Kind:            kindString(ev.Kind),
			Phase:           ev.Phase,
			Percent:         ev.Percent,
			TokenID:         ev.TokenID,
			Text:            ev.Text,
			TokenCount:      ev.TokenCount,
			TokensPerSecond: ev.TokensPerSecond,
		}
		if ev.Err != nil {
			out.Error = ev.Err.Error()
		}

		data, err := json.Marshal(out)
		if err != nil {
			return
		}
		if _, err := c.Writer.Write(append(data, '\n')); err != nil {
			return
		}
		c.Writer.Flush()
	}
}
