package httpserver

import (
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/localinfer/localinfer/internal/converter"
	"github.com/localinfer/localinfer/internal/quant"
	"github.com/localinfer/localinfer/internal/safetensors"
)

// convertRequest is the JSON body of POST /api/convert.
type convertRequest struct {
	SourcePath      string `json:"source_path" binding:"required"`
	TokenizerPath   string `json:"tokenizer_path"`
	BundleDir       string `json:"bundle_dir" binding:"required"`
	TargetQuant     string `json:"target_quant"`
	BlockSize       int    `json:"block_size"`
	Calibrate       bool   `json:"calibrate"`
	MaxShardBytes   int64  `json:"max_shard_bytes"`
	MistralOverride bool   `json:"mistral_override"`
	GemmaOverride   bool   `json:"gemma_override"`
}

// ConvertHandler runs a safetensors->shard conversion synchronously and
// returns the resulting manifest and config. There is no streaming
// progress over HTTP; callers that want phase-by-phase progress should
// use the CLI's convert command, which reports converter.Options.OnProgress
// to stderr directly.
func (s *Server) ConvertHandler(c *gin.Context) {
	var req convertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	targetQuant := quant.Q4
	if req.TargetQuant != "" {
		dt, err := quant.ParseDType(req.TargetQuant)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		targetQuant = dt
	}

	f, err := os.Open(req.SourcePath)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer f.Close()

	src, err := safetensors.NewFileSource(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	reader, err := safetensors.Open(src)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var tokenizerJSON []byte
	if req.TokenizerPath != "" {
		tokenizerJSON, err = os.ReadFile(req.TokenizerPath)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	result, err := converter.Convert(reader, s.Store, req.BundleDir, tokenizerJSON, converter.Options{
		TargetQuant:     targetQuant,
		BlockSize:       req.BlockSize,
		Calibrate:       req.Calibrate,
		MaxShardBytes:   req.MaxShardBytes,
		MistralOverride: req.MistralOverride,
		GemmaOverride:   req.GemmaOverride,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"manifest": result.Manifest,
		"config":   result.Config,
	})
}
