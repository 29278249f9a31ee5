package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vbonduro/unlabel/internal/conversation"
	"github.com/vbonduro/unlabel/internal/domain"
)

const maxMessageBody = 64 << 10

type transcriptResponse struct {
	Messages []domain.Message `json:"messages"`
	Awaiting bool             `json:"awaiting"`
}

type submitTextRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, transcriptResponse{
		Messages: s.conv.Transcript(),
		Awaiting: s.conv.Awaiting(),
	})
}

func (s *Server) handleSubmitText(w http.ResponseWriter, r *http.Request) {
	var req submitTextRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMessageBody)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	msg, err := s.conv.SubmitText(r.Context(), req.Text)
	if err != nil {
		s.writeSubmitError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, msg)
}

func (s *Server) writeSubmitError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, conversation.ErrEmptyText):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, conversation.ErrClosed):
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.Error("submit failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to submit message")
	}
}
