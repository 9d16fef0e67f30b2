package server

import (
	"encoding/hex"
	"net/http"
	"strconv"
	"time"

	"github.com/danmuck/v4link/internal/isa"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const maxJournalLimit = 500

// WordInfo is the JSON shape of one dictionary entry.
type WordInfo struct {
	Index   int    `json:"index"`
	Name    string `json:"name"`
	CodeLen int    `json:"code_len"`
	Code    string `json:"code,omitempty"`
	Listing string `json:"listing,omitempty"`
}

func (s *Server) registerRoutes() {
	r := s.router
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.started).String(),
			"node":    s.cfg.Name,
			"version": Version,
			"isa":     isa.Version,
		})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/state", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.target.Snapshot())
	})

	r.GET("/words", func(c *gin.Context) {
		words := s.target.Words()
		list := make([]WordInfo, 0, len(words))
		for _, w := range words {
			list = append(list, WordInfo{Index: w.Index, Name: w.Name, CodeLen: len(w.Code)})
		}
		c.JSON(http.StatusOK, gin.H{"words": list})
	})

	r.GET("/words/:idx", func(c *gin.Context) {
		idx, err := strconv.Atoi(c.Param("idx"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "word index must be an integer"})
			return
		}
		w, ok := s.target.Word(idx)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "word not found"})
			return
		}
		c.JSON(http.StatusOK, WordInfo{
			Index:   w.Index,
			Name:    w.Name,
			CodeLen: len(w.Code),
			Code:    hex.EncodeToString(w.Code),
			Listing: isa.Disassemble(w.Code),
		})
	})

	r.POST("/reset", func(c *gin.Context) {
		s.target.Reset()
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/journal", func(c *gin.Context) {
		if s.frames == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "journal disabled"})
			return
		}
		limit := 50
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
				return
			}
			limit = min(n, maxJournalLimit)
		}
		entries, err := s.frames.Recent(c.Request.Context(), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"frames": entries})
	})
}
