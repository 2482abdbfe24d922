package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dshills/analyst-agent/agent"
	"github.com/dshills/analyst-agent/agent/analyst"
	"github.com/dshills/analyst-agent/agent/interview"
	"github.com/dshills/analyst-agent/agent/interview/market"
	"github.com/dshills/analyst-agent/agent/interview/research"
	"github.com/dshills/analyst-agent/graph"
	"github.com/dshills/analyst-agent/graph/emit"
	"github.com/dshills/analyst-agent/graph/model"
)

// PlanRequest starts an analyst run.
type PlanRequest struct {
	RunID       string `json:"run_id"`
	Topic       string `json:"topic" binding:"required"`
	MaxAnalysts int    `json:"max_analysts"`
}

// ReviewRequest answers a paused analyst run. UpdatedAnalysts, when set,
// replace the drafted team.
type ReviewRequest struct {
	Feedback        string              `json:"feedback"`
	UpdatedAnalysts []interview.Analyst `json:"updated_analysts"`
}

// InterviewRequest runs interviews on topic. Without analysts a single
// interview is held with the default analyst.
type InterviewRequest struct {
	RunID       string              `json:"run_id"`
	Topic       string              `json:"topic" binding:"required"`
	Analysts    []interview.Analyst `json:"analysts"`
	MaxNumTurns int                 `json:"max_num_turns"`
}

// InterviewResponse lists the sections written per analyst.
type InterviewResponse struct {
	RunID    string          `json:"run_id"`
	Sections []agent.Section `json:"sections"`
}

// QuestionRequest is the body of the ask, market and research endpoints.
type QuestionRequest struct {
	RunID    string `json:"run_id"`
	Question string `json:"question" binding:"required"`
}

// AnswerResponse carries the final answer of a question run.
type AnswerResponse struct {
	RunID    string          `json:"run_id"`
	Category string          `json:"category,omitempty"`
	Answer   string          `json:"answer"`
	Messages []model.Message `json:"messages,omitempty"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Code   string `json:"code,omitempty"`
	NodeID string `json:"node_id,omitempty"`
}

func (s *Server) runID(requested string) string {
	if requested != "" {
		return requested
	}
	return s.newID()
}

func (s *Server) bind(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "INVALID_REQUEST"})
		return false
	}
	return true
}

// fail maps engine errors to HTTP statuses.
func (s *Server) fail(c *gin.Context, err error) {
	resp := errorResponse{Error: err.Error()}
	status := http.StatusInternalServerError

	var ee *graph.EngineError
	var ne *graph.NodeError
	switch {
	case errors.As(err, &ne):
		resp.Code = ne.Code
		resp.NodeID = ne.NodeID
	case errors.As(err, &ee):
		resp.Code = ee.Code
		switch ee.Code {
		case graph.CodeRunNotFound:
			status = http.StatusNotFound
		case graph.CodeNotInterrupted:
			status = http.StatusConflict
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusGatewayTimeout
	}
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, resp)
}

func (s *Server) planAnalysts(c *gin.Context) {
	var req PlanRequest
	if !s.bind(c, &req) {
		return
	}
	if req.MaxAnalysts <= 0 {
		req.MaxAnalysts = analyst.DefaultMaxAnalysts
	}
	d, err := s.app.Pipeline.Plan(c.Request.Context(), s.runID(req.RunID), req.Topic, req.MaxAnalysts)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (s *Server) reviewAnalysts(c *gin.Context) {
	var req ReviewRequest
	if !s.bind(c, &req) {
		return
	}
	var value any = req.Feedback
	if len(req.UpdatedAnalysts) > 0 {
		value = analyst.Review{Feedback: req.Feedback, UpdatedAnalysts: req.UpdatedAnalysts}
	}
	d, err := s.app.Pipeline.Review(c.Request.Context(), c.Param("run_id"), value)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (s *Server) interview(c *gin.Context) {
	var req InterviewRequest
	if !s.bind(c, &req) {
		return
	}
	ctx := c.Request.Context()
	runID := s.runID(req.RunID)

	if len(req.Analysts) > 0 {
		p := *s.app.Pipeline
		if req.MaxNumTurns > 0 {
			p.MaxNumTurns = req.MaxNumTurns
		}
		sections, err := p.Interview(ctx, runID, req.Topic, req.Analysts)
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, InterviewResponse{RunID: runID, Sections: sections})
		return
	}

	final, err := s.app.Agent.Run(ctx, runID, agent.State{Messages: []model.Message{model.User(req.Topic)}})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, InterviewResponse{RunID: runID, Sections: []agent.Section{{
		Analyst:  interview.DefaultAnalyst(),
		Sections: final.Sections,
	}}})
}

func (s *Server) ask(c *gin.Context) {
	var req QuestionRequest
	if !s.bind(c, &req) {
		return
	}
	runID := s.runID(req.RunID)
	answer, category, err := agent.Ask(c.Request.Context(), s.app.Router, runID, req.Question)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, AnswerResponse{RunID: runID, Category: category, Answer: answer.Content})
}

func (s *Server) market(c *gin.Context) {
	var req QuestionRequest
	if !s.bind(c, &req) {
		return
	}
	runID := s.runID(req.RunID)
	msgs, err := market.Answer(c.Request.Context(), s.app.Market, runID, []model.Message{model.User(req.Question)})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, AnswerResponse{RunID: runID, Answer: model.Last(msgs).Content, Messages: msgs})
}

func (s *Server) research(c *gin.Context) {
	var req QuestionRequest
	if !s.bind(c, &req) {
		return
	}
	runID := s.runID(req.RunID)
	answer, err := research.Answer(c.Request.Context(), s.app.Research, runID, req.Question)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, AnswerResponse{RunID: runID, Answer: answer.Content})
}

func (s *Server) events(c *gin.Context) {
	filter := emit.HistoryFilter{NodeID: c.Query("node_id"), Msg: c.Query("msg")}
	if v := c.Query("min_step"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorResponse{Error: "min_step must be an integer", Code: "INVALID_REQUEST"})
			return
		}
		filter.MinStep = n
	}
	events := s.app.Events.History(c.Param("run_id"), filter)
	if len(events) == 0 {
		c.JSON(http.StatusNotFound, errorResponse{Error: "no events for run", Code: graph.CodeRunNotFound})
		return
	}
	c.JSON(http.StatusOK, gin.H{"run_id": c.Param("run_id"), "events": events})
}
