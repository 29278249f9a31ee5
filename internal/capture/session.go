package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/jpeg"
	"io"
	"log/slog"
	"sync"
	"time"
)

type Mode int

const (
	Choosing Mode = iota
	CameraActive
	Previewing
	Closed
)

func (m Mode) String() string {
	switch m {
	case Choosing:
		return "choosing"
	case CameraActive:
		return "camera_active"
	case Previewing:
		return "previewing"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// JPEGQuality is used for every captured camera frame.
const JPEGQuality = 90

// Candidate is a file offered for capture. MediaType and Size are the
// declared values, checked before Body is read.
type Candidate struct {
	Name      string
	MediaType string
	Size      int64
	Body      io.Reader
}

type File struct {
	Name      string
	MediaType string
	Data      []byte
}

// Result is the confirmed output of a session. Preview is "" exactly when
// the payload is a PDF.
type Result struct {
	File    File
	Preview string
}

type Snapshot struct {
	Mode        Mode
	Ready       bool
	LastError   string
	PendingName string
	PendingType string
	Preview     string
}

type Option func(*Session)

func WithLadder(ladder []Constraints) Option {
	return func(s *Session) { s.ladder = ladder }
}

// WithReadyPolling sets how often and how many times the stream geometry is
// polled before giving up on readiness.
func WithReadyPolling(interval time.Duration, attempts int) Option {
	return func(s *Session) {
		s.readyInterval = interval
		s.readyAttempts = attempts
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithOnClose registers fn to run after an explicit Close has released the
// device.
func WithOnClose(fn func()) Option {
	return func(s *Session) { s.onClose = fn }
}

// Session owns one attempt to obtain a label image or document. All methods
// are safe for concurrent use; the device stream is released exactly once on
// every transition out of CameraActive.
type Session struct {
	camera        Camera
	logger        *slog.Logger
	ladder        []Constraints
	readyInterval time.Duration
	readyAttempts int
	now           func() time.Time
	onClose       func()

	mu         sync.Mutex
	mode       Mode
	busy       bool
	stream     Stream
	streamDone chan struct{}
	readyCh    chan struct{}
	ready      bool
	pending    *File
	preview    string
	lastErr    *Error
}

// NewSession starts a session in Choosing. camera may be nil for file-only
// sessions.
func NewSession(camera Camera, logger *slog.Logger, opts ...Option) *Session {
	s := &Session{
		camera:        camera,
		logger:        logger,
		ladder:        DefaultLadder,
		readyInterval: 100 * time.Millisecond,
		readyAttempts: 100,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Ready reports whether the live stream has produced real frames.
func (s *Session) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// Err returns the last failure, or nil.
func (s *Session) Err() *Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// LastError returns the user-facing text of the last failure, or "".
func (s *Session) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastErr == nil {
		return ""
	}
	return s.lastErr.Message()
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{Mode: s.mode, Ready: s.ready, Preview: s.preview}
	if s.lastErr != nil {
		snap.LastError = s.lastErr.Message()
	}
	if s.pending != nil {
		snap.PendingName = s.pending.Name
		snap.PendingType = s.pending.MediaType
	}
	return snap
}

// UseCamera acquires a camera stream, relaxing constraints down the ladder.
// On failure the session stays in Choosing with the classified error set.
func (s *Session) UseCamera(ctx context.Context) error {
	s.mu.Lock()
	if err := s.beginLocked(Choosing); err != nil {
		s.mu.Unlock()
		return err
	}
	s.lastErr = nil
	s.mu.Unlock()

	stream, err := s.acquire(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false

	if s.mode != Choosing {
		// Closed while the device was being opened.
		if stream != nil {
			s.closeStream(stream)
		}
		return ErrClosed
	}
	if err != nil {
		s.lastErr = &Error{Kind: classifyCameraError(err), Err: err}
		s.logger.Warn("camera unavailable", "kind", s.lastErr.Kind.String(), "error", err)
		return s.lastErr
	}

	s.stream = stream
	s.streamDone = make(chan struct{})
	s.readyCh = make(chan struct{})
	s.ready = false
	s.mode = CameraActive
	go s.watchReady(stream, s.streamDone, s.readyCh)

	s.logger.Info("camera active")
	return nil
}

func (s *Session) acquire(ctx context.Context) (Stream, error) {
	if s.camera == nil {
		return nil, ErrDeviceNotFound
	}
	var lastErr error
	for i, c := range s.ladder {
		stream, err := s.camera.Open(ctx, c)
		if err == nil {
			s.logger.Debug("camera opened", "attempt", i+1, "facing", string(c.Facing), "width", c.Width, "height", c.Height)
			return stream, nil
		}
		lastErr = err
		s.logger.Debug("camera open failed", "attempt", i+1, "facing", string(c.Facing), "error", err)
		if errors.Is(err, ErrPermissionDenied) || ctx.Err() != nil {
			break
		}
	}
	if lastErr == nil {
		lastErr = ErrDeviceNotFound
	}
	return nil, lastErr
}

// watchReady marks the session ready once stream reports a positive
// geometry. It gives up silently after the configured attempts; Capture then
// stays disabled until the user cancels.
func (s *Session) watchReady(stream Stream, done <-chan struct{}, readyCh chan struct{}) {
	ticker := time.NewTicker(s.readyInterval)
	defer ticker.Stop()

	for attempt := 0; attempt < s.readyAttempts; attempt++ {
		if w, h := stream.Dimensions(); w > 0 && h > 0 {
			s.mu.Lock()
			if s.stream == stream {
				s.ready = true
				close(readyCh)
				s.logger.Debug("camera ready", "width", w, "height", h)
			}
			s.mu.Unlock()
			return
		}
		select {
		case <-done:
			return
		case <-ticker.C:
		}
	}
	s.logger.Warn("camera never reported frame geometry", "attempts", s.readyAttempts)
}

// WaitReady blocks until the stream is ready, the stream is released, or ctx
// is done.
func (s *Session) WaitReady(ctx context.Context) error {
	s.mu.Lock()
	if s.mode != CameraActive {
		s.mu.Unlock()
		return ErrInvalidTransition
	}
	readyCh, done := s.readyCh, s.streamDone
	s.mu.Unlock()

	select {
	case <-readyCh:
		return nil
	case <-done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Capture grabs the current frame, encodes it as JPEG and moves to
// Previewing. It returns ErrNotReady without changing state while the stream
// has not produced frames.
func (s *Session) Capture(ctx context.Context) error {
	s.mu.Lock()
	if err := s.beginLocked(CameraActive); err != nil {
		s.mu.Unlock()
		return err
	}
	if !s.ready {
		s.busy = false
		s.mu.Unlock()
		return ErrNotReady
	}
	stream := s.stream
	s.mu.Unlock()

	data, err := encodeFrame(ctx, stream)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false

	if s.stream != stream {
		return ErrClosed
	}
	s.releaseLocked()

	if err != nil {
		s.mode = Choosing
		s.lastErr = &Error{Kind: EncodeFailed, Err: err}
		s.logger.Warn("frame capture failed", "error", err)
		return s.lastErr
	}

	s.lastErr = nil
	s.pending = &File{
		Name:      fmt.Sprintf("food-scan-%d.jpg", s.now().UnixMilli()),
		MediaType: MediaJPEG,
		Data:      data,
	}
	s.preview = DataURL(MediaJPEG, data)
	s.mode = Previewing
	s.logger.Info("frame captured", "bytes", len(data))
	return nil
}

func encodeFrame(ctx context.Context, stream Stream) ([]byte, error) {
	frame, err := stream.Frame(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read frame: %w", err)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	return buf.Bytes(), nil
}

// PickFile validates a chosen file and moves to Previewing. Rejected files
// leave the session in Choosing with the error set.
func (s *Session) PickFile(c Candidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.beginLocked(Choosing); err != nil {
		return err
	}
	defer func() { s.busy = false }()
	s.lastErr = nil

	if !Allowed(c.MediaType) {
		return s.rejectLocked(&Error{Kind: FileTypeRejected, Err: fmt.Errorf("media type %q", c.MediaType)}, c)
	}
	if c.Size > MaxFileSize {
		return s.rejectLocked(&Error{Kind: FileTooLarge, Err: fmt.Errorf("%d bytes", c.Size)}, c)
	}
	if c.Body == nil {
		return s.rejectLocked(&Error{Kind: FileUnreadable, Err: errors.New("no content")}, c)
	}

	data, err := io.ReadAll(io.LimitReader(c.Body, MaxFileSize+1))
	if err != nil {
		return s.rejectLocked(&Error{Kind: FileUnreadable, Err: err}, c)
	}
	if len(data) > MaxFileSize {
		return s.rejectLocked(&Error{Kind: FileTooLarge, Err: fmt.Errorf("more than %d bytes", MaxFileSize)}, c)
	}

	mediaType := baseType(c.MediaType)
	s.pending = &File{Name: c.Name, MediaType: mediaType, Data: data}
	s.preview = ""
	if Previewable(mediaType) {
		s.preview = DataURL(mediaType, data)
	}
	s.mode = Previewing
	s.logger.Info("file selected", "name", c.Name, "media_type", mediaType, "bytes", len(data))
	return nil
}

func (s *Session) rejectLocked(e *Error, c Candidate) error {
	s.lastErr = e
	s.logger.Info("file rejected", "name", c.Name, "kind", e.Kind.String(), "error", e.Err)
	return e
}

// Retake discards the pending file and returns to Choosing.
func (s *Session) Retake() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.beginLocked(Previewing); err != nil {
		return err
	}
	s.busy = false
	s.releaseLocked()
	s.pending = nil
	s.preview = ""
	s.lastErr = nil
	s.mode = Choosing
	return nil
}

// Confirm hands back the pending file and ends the session.
func (s *Session) Confirm() (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.beginLocked(Previewing); err != nil {
		return Result{}, err
	}
	s.busy = false
	if s.pending == nil {
		return Result{}, ErrInvalidTransition
	}

	res := Result{File: *s.pending, Preview: s.preview}
	s.releaseLocked()
	s.pending = nil
	s.preview = ""
	s.mode = Closed
	s.logger.Info("capture confirmed", "name", res.File.Name, "media_type", res.File.MediaType)
	return res, nil
}

// Cancel abandons a live camera and ends the session.
func (s *Session) Cancel() error {
	s.mu.Lock()
	if s.mode == Closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.mode != CameraActive {
		s.mu.Unlock()
		return ErrInvalidTransition
	}
	s.mu.Unlock()
	return s.Close()
}

// Close ends the session from any mode, releasing any held device before
// notifying the caller. Closing twice is a no-op.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.mode == Closed {
		s.mu.Unlock()
		return nil
	}
	s.releaseLocked()
	s.pending = nil
	s.preview = ""
	s.mode = Closed
	onClose := s.onClose
	s.mu.Unlock()

	if onClose != nil {
		onClose()
	}
	return nil
}

// beginLocked checks that the session is in want and idle, and marks it
// busy. Callers clear busy when their transition completes.
func (s *Session) beginLocked(want Mode) error {
	if s.mode == Closed {
		return ErrClosed
	}
	if s.mode != want || s.busy {
		return ErrInvalidTransition
	}
	s.busy = true
	return nil
}

// releaseLocked is the single teardown path for the device stream.
func (s *Session) releaseLocked() {
	if s.stream == nil {
		return
	}
	stream := s.stream
	s.stream = nil
	s.ready = false
	close(s.streamDone)
	s.closeStream(stream)
}

func (s *Session) closeStream(stream Stream) {
	if err := stream.Close(); err != nil {
		s.logger.Error("failed to release camera", "error", err)
	}
}
