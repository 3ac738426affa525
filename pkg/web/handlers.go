package web

import (
	"context"
	"errors"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-voiceturn/pkg/hub"
	"github.com/teslashibe/go-voiceturn/pkg/voice"
)

// SubmitRequest is the body of POST /api/utterances.
type SubmitRequest struct {
	ID   string `json:"id"`
	Path string `json:"path"`
}

// handleSubmit starts a turn for a recording on local storage.
func (s *Server) handleSubmit(c *fiber.Ctx) error {
	var req SubmitRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	path, err := s.spool.Accept(req.Path)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	turnID, err := s.ctrl.Submit(context.Background(), voice.Utterance{ID: req.ID, Path: path})
	switch {
	case errors.Is(err, voice.ErrBusy):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "busy"})
	case err != nil:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"turn_id": turnID})
}

// LastTurn summarizes the most recent turn.
type LastTurn struct {
	ID         string `json:"turn_id"`
	Transcript string `json:"transcript"`
	Reply      string `json:"reply"`
	Outcome    string `json:"outcome"`
	Error      string `json:"error,omitempty"`
	Latency    string `json:"latency"`
}

// Status is the body of GET /api/status.
type Status struct {
	Phase          string    `json:"phase"`
	Busy           bool      `json:"busy"`
	ConversationID string    `json:"conversation_id,omitempty"`
	ContextMode    string    `json:"context_mode"`
	Turns          int       `json:"turns"`
	CompletedTurns int       `json:"completed_turns"`
	EventClients   int       `json:"event_clients"`
	Last           *LastTurn `json:"last,omitempty"`
}

func (s *Server) status() Status {
	state := s.ctrl.State()
	ctx := state.Context()
	st := Status{
		Phase:          state.Phase().String(),
		Busy:           state.Busy(),
		ConversationID: state.ID(),
		ContextMode:    ctx.Mode().String(),
		Turns:          ctx.Turns(),
		CompletedTurns: s.ctrl.Metrics().Turns(),
		EventClients:   s.eventHub.ClientCount(),
	}
	if last := s.ctrl.Last(); last.ID != "" {
		lt := &LastTurn{
			ID:         last.ID,
			Transcript: last.Transcript,
			Reply:      last.Reply,
			Outcome:    string(last.Outcome),
			Latency:    last.Metrics.FormatLatency(),
		}
		if last.Err != nil {
			lt.Error = last.Err.Error()
		}
		st.Last = lt
	}
	return st
}

// handleStatus returns the conversation state
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.status())
}

// handleConversation returns the current conversation context
func (s *Server) handleConversation(c *fiber.Ctx) error {
	return c.JSON(s.ctrl.State().Context().Snapshot())
}

// handleReset ends the conversation
func (s *Server) handleReset(c *fiber.Ctx) error {
	ended, err := s.ctrl.Reset()
	if errors.Is(err, voice.ErrBusy) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "busy"})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"ended": ended})
}

// handleHealth runs every dependency check concurrently
func (s *Server) handleHealth(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), s.healthLimit)
	defer cancel()

	results := make(map[string]string, len(s.checkOrder))
	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		healthy = true
	)
	for _, name := range s.checkOrder {
		check := s.checks[name]
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := "ok"
			if err := check(ctx); err != nil {
				res = err.Error()
			}
			mu.Lock()
			results[name] = res
			if res != "ok" {
				healthy = false
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	status := fiber.StatusOK
	if !healthy {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(fiber.Map{
		"healthy": healthy,
		"checks":  results,
	})
}

// handleGetEvents returns recent events
func (s *Server) handleGetEvents(c *fiber.Ctx) error {
	return c.JSON(s.Events())
}

// handleEventsWS streams events. The current status is sent first.
func (s *Server) handleEventsWS(c *websocket.Conn) {
	client := hub.NewClient(s.eventHub, c)
	if err := c.WriteJSON(fiber.Map{"type": "status", "status": s.status()}); err != nil {
		s.logger.Debug("status greeting failed", "error", err)
	}
	client.Run()
}
