package web

import (
	"bufio"
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/vbonduro/unlabel/internal/capture"
)

// cameraReadyTimeout bounds how long a camera capture waits for frames.
const cameraReadyTimeout = 10 * time.Second

// handleUploadCapture runs an uploaded "file" part through a capture session
// and submits the confirmed result to the conversation.
func (s *Server) handleUploadCapture(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, capture.MaxFileSize+(1<<20))
	if err := r.ParseMultipartForm(capture.MaxFileSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge, (&capture.Error{Kind: capture.FileTooLarge}).Message())
			return
		}
		s.writeError(w, http.StatusBadRequest, "failed to parse form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "file required")
		return
	}
	defer closeWithLog(file, "upload file", s.logger)

	body := bufio.NewReader(file)
	mediaType := header.Header.Get("Content-Type")
	if mediaType == "" || mediaType == "application/octet-stream" {
		head, _ := body.Peek(512)
		mediaType = capture.SniffMediaType(head)
	}

	session := capture.NewSession(nil, s.logger)
	defer closeSession(session)

	err = session.PickFile(capture.Candidate{
		Name:      header.Filename,
		MediaType: mediaType,
		Size:      header.Size,
		Body:      body,
	})
	if err != nil {
		s.writeCaptureError(w, err)
		return
	}
	s.confirmAndSubmit(w, r, session)
}

// handleCameraCapture grabs one frame from the local camera and submits it.
func (s *Server) handleCameraCapture(w http.ResponseWriter, r *http.Request) {
	session := capture.NewSession(s.camera, s.logger)
	defer closeSession(session)

	if err := session.UseCamera(r.Context()); err != nil {
		s.writeCaptureError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), cameraReadyTimeout)
	defer cancel()
	if err := session.WaitReady(ctx); err != nil {
		s.logger.Warn("camera not ready", "error", err)
		s.writeError(w, http.StatusGatewayTimeout, "The camera did not start in time. Please try again.")
		return
	}
	if err := session.Capture(ctx); err != nil {
		s.writeCaptureError(w, err)
		return
	}
	s.confirmAndSubmit(w, r, session)
}

func (s *Server) confirmAndSubmit(w http.ResponseWriter, r *http.Request, session *capture.Session) {
	res, err := session.Confirm()
	if err != nil {
		s.writeCaptureError(w, err)
		return
	}
	msg, err := s.conv.SubmitCapture(r.Context(), res)
	if err != nil {
		s.writeSubmitError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, msg)
}

func (s *Server) writeCaptureError(w http.ResponseWriter, err error) {
	var capErr *capture.Error
	if !errors.As(err, &capErr) {
		s.logger.Error("capture failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "capture failed")
		return
	}
	switch capErr.Kind {
	case capture.FileTooLarge:
		s.writeError(w, http.StatusRequestEntityTooLarge, capErr.Message())
	case capture.FileTypeRejected, capture.FileUnreadable:
		s.writeError(w, http.StatusBadRequest, capErr.Message())
	case capture.DeviceBusy:
		s.writeError(w, http.StatusConflict, capErr.Message())
	default:
		s.writeError(w, http.StatusServiceUnavailable, capErr.Message())
	}
}

func closeSession(session *capture.Session) {
	// Close on a confirmed session is a no-op.
	_ = session.Close()
}
