package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ceyewan/voteguard/clog"
	"github.com/ceyewan/voteguard/perf"
	"github.com/ceyewan/voteguard/queue"
	"github.com/ceyewan/voteguard/vote"
	"github.com/ceyewan/voteguard/voting"
)

// VoteRequest 投票请求体
type VoteRequest struct {
	VoterID string `json:"voter_id" binding:"required"`
	ItemID  string `json:"item_id" binding:"required"`
}

// VoteResponse 投票结果，Total 为提交后观察到的票数
type VoteResponse struct {
	EntityID string `json:"entity_id"`
	ItemID   string `json:"item_id"`
	Total    int64  `json:"total"`
	Delta    int64  `json:"delta"`
}

// PerfResponse 耗时与队列快照
type PerfResponse struct {
	Operations map[string]perf.Stats  `json:"operations"`
	Queues     map[string]queue.Stats `json:"queues"`
}

func (s *Server) fail(c *gin.Context, err error) {
	status, body := StatusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.WarnContext(c.Request.Context(), "request failed",
			clog.String("route", c.FullPath()),
			clog.Int("status", status),
			clog.Error(err))
	}
	c.AbortWithStatusJSON(status, body)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) listEntities(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"entities": s.svc.Entities()})
}

func (s *Server) entity(c *gin.Context) (vote.EntityStatus, bool) {
	id := c.Param("id")
	es, ok := s.svc.Entity(id)
	if !ok {
		s.fail(c, voting.ErrEntityNotFound)
	}
	return es, ok
}

func (s *Server) getEntity(c *gin.Context) {
	if es, ok := s.entity(c); ok {
		c.JSON(http.StatusOK, es)
	}
}

func (s *Server) getRanking(c *gin.Context) {
	n := 0
	if raw := c.Query("n"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: "n must be a non-negative integer"})
			return
		}
		n = v
	}
	if _, ok := s.entity(c); !ok {
		return
	}
	c.JSON(http.StatusOK, s.svc.RankedView(c.Param("id"), n))
}

func (s *Server) submitVote(c *gin.Context) {
	var req VoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	tally, err := s.svc.SubmitVote(c.Request.Context(), c.Param("id"), req.VoterID, req.ItemID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, VoteResponse{
		EntityID: tally.EntityID,
		ItemID:   tally.ItemID,
		Total:    tally.Current,
		Delta:    tally.Delta(),
	})
}

func (s *Server) getBreaker(c *gin.Context) {
	stats, err := s.svc.CircuitStats(c.Param("policy"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) getPerf(c *gin.Context) {
	c.JSON(http.StatusOK, PerfResponse{
		Operations: s.svc.PerfSnapshot(),
		Queues:     s.svc.QueueStats(),
	})
}
