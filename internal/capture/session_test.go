package capture

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStream struct {
	width, height atomic.Int64
	closes        atomic.Int32
	frameErr      error
}

func newFakeStream(w, h int) *fakeStream {
	s := &fakeStream{}
	s.width.Store(int64(w))
	s.height.Store(int64(h))
	return s
}

func (s *fakeStream) Dimensions() (int, int) {
	return int(s.width.Load()), int(s.height.Load())
}

func (s *fakeStream) Frame(ctx context.Context) (image.Image, error) {
	if s.frameErr != nil {
		return nil, s.frameErr
	}
	w, h := s.Dimensions()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	return img, nil
}

func (s *fakeStream) Close() error {
	s.closes.Add(1)
	return nil
}

type fakeCamera struct {
	mu       sync.Mutex
	stream   *fakeStream
	errs     []error
	attempts []Constraints
}

func (c *fakeCamera) Open(ctx context.Context, cons Constraints) (Stream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts = append(c.attempts, cons)
	if len(c.errs) > 0 {
		err := c.errs[0]
		c.errs = c.errs[1:]
		return nil, err
	}
	if c.stream == nil {
		return nil, ErrDeviceNotFound
	}
	return c.stream, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSession(cam Camera, opts ...Option) *Session {
	opts = append([]Option{
		WithReadyPolling(time.Millisecond, 50),
		WithClock(func() time.Time { return time.UnixMilli(1700000000000) }),
	}, opts...)
	return NewSession(cam, testLogger(), opts...)
}

func activeSession(t *testing.T, stream *fakeStream) *Session {
	t.Helper()
	s := newTestSession(&fakeCamera{stream: stream})
	require.NoError(t, s.UseCamera(context.Background()))
	require.Equal(t, CameraActive, s.Mode())
	return s
}

func TestUseCameraAndCapture(t *testing.T) {
	stream := newFakeStream(64, 48)
	s := activeSession(t, stream)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.WaitReady(ctx))
	require.NoError(t, s.Capture(ctx))

	snap := s.Snapshot()
	assert.Equal(t, Previewing, snap.Mode)
	assert.Equal(t, "food-scan-1700000000000.jpg", snap.PendingName)
	assert.Equal(t, MediaJPEG, snap.PendingType)
	assert.True(t, strings.HasPrefix(snap.Preview, "data:image/jpeg;base64,"))
	assert.Equal(t, int32(1), stream.closes.Load())

	res, err := s.Confirm()
	require.NoError(t, err)
	assert.Equal(t, Closed, s.Mode())
	assert.Equal(t, MediaJPEG, res.File.MediaType)
	assert.NotEmpty(t, res.Preview)

	decoded, _, err := image.Decode(bytes.NewReader(res.File.Data))
	require.NoError(t, err)
	assert.Equal(t, 64, decoded.Bounds().Dx())
	assert.Equal(t, 48, decoded.Bounds().Dy())
	assert.Equal(t, int32(1), stream.closes.Load())
}

func TestCaptureBeforeReadyIsNoOp(t *testing.T) {
	stream := newFakeStream(0, 0)
	s := activeSession(t, stream)

	err := s.Capture(context.Background())
	assert.ErrorIs(t, err, ErrNotReady)
	assert.Equal(t, CameraActive, s.Mode())
	assert.False(t, s.Ready())
	assert.Empty(t, s.LastError())
	assert.Equal(t, int32(0), stream.closes.Load())

	stream.width.Store(640)
	stream.height.Store(480)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.WaitReady(ctx))
	assert.NoError(t, s.Capture(ctx))
}

func TestCameraLadderFallsBack(t *testing.T) {
	stream := newFakeStream(10, 10)
	cam := &fakeCamera{
		stream: stream,
		errs:   []error{errors.New("overconstrained"), errors.New("no rear camera")},
	}
	s := newTestSession(cam)

	require.NoError(t, s.UseCamera(context.Background()))
	require.Len(t, cam.attempts, 3)
	assert.Equal(t, DefaultLadder, cam.attempts)
	require.NoError(t, s.Close())
}

func TestCameraPermissionDeniedStopsLadder(t *testing.T) {
	cam := &fakeCamera{errs: []error{ErrPermissionDenied}}
	s := newTestSession(cam)

	err := s.UseCamera(context.Background())
	var capErr *Error
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, PermissionDenied, capErr.Kind)
	assert.Len(t, cam.attempts, 1)
	assert.Equal(t, Choosing, s.Mode())
	assert.Equal(t, "Camera permission was denied. Allow camera access or upload a file instead.", s.LastError())
}

func TestCameraFailureClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind ErrorKind
	}{
		{"not found", ErrDeviceNotFound, DeviceNotFound},
		{"busy", ErrDeviceBusy, DeviceBusy},
		{"other", errors.New("driver exploded"), DeviceUnsupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cam := &fakeCamera{errs: []error{tt.err, tt.err, tt.err}}
			s := newTestSession(cam)

			err := s.UseCamera(context.Background())
			var capErr *Error
			require.ErrorAs(t, err, &capErr)
			assert.Equal(t, tt.kind, capErr.Kind)
			assert.Equal(t, Choosing, s.Mode())
			assert.NotEmpty(t, s.LastError())
		})
	}
}

func TestNilCameraReportsNotFound(t *testing.T) {
	s := newTestSession(nil)
	err := s.UseCamera(context.Background())
	var capErr *Error
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, DeviceNotFound, capErr.Kind)
}

func TestStreamReleasedExactlyOnce(t *testing.T) {
	t.Run("cancel", func(t *testing.T) {
		stream := newFakeStream(10, 10)
		closed := 0
		s := newTestSession(&fakeCamera{stream: stream}, WithOnClose(func() { closed++ }))
		require.NoError(t, s.UseCamera(context.Background()))

		require.NoError(t, s.Cancel())
		assert.Equal(t, Closed, s.Mode())
		assert.Equal(t, int32(1), stream.closes.Load())
		assert.Equal(t, 1, closed)

		require.NoError(t, s.Close())
		assert.Equal(t, int32(1), stream.closes.Load())
		assert.Equal(t, 1, closed)
	})

	t.Run("close while active", func(t *testing.T) {
		stream := newFakeStream(10, 10)
		s := activeSession(t, stream)
		require.NoError(t, s.Close())
		assert.Equal(t, int32(1), stream.closes.Load())
	})

	t.Run("capture retake close", func(t *testing.T) {
		stream := newFakeStream(10, 10)
		s := activeSession(t, stream)
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		require.NoError(t, s.WaitReady(ctx))
		require.NoError(t, s.Capture(ctx))
		require.NoError(t, s.Retake())
		assert.Equal(t, Choosing, s.Mode())
		require.NoError(t, s.Close())
		assert.Equal(t, int32(1), stream.closes.Load())
	})

	t.Run("frame failure", func(t *testing.T) {
		stream := newFakeStream(10, 10)
		stream.frameErr = errors.New("device vanished")
		s := activeSession(t, stream)
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		require.NoError(t, s.WaitReady(ctx))

		err := s.Capture(ctx)
		var capErr *Error
		require.ErrorAs(t, err, &capErr)
		assert.Equal(t, EncodeFailed, capErr.Kind)
		assert.Equal(t, Choosing, s.Mode())
		assert.Equal(t, int32(1), stream.closes.Load())
	})
}

func TestPickFile(t *testing.T) {
	tests := []struct {
		name        string
		candidate   Candidate
		wantKind    ErrorKind
		wantPreview bool
	}{
		{
			name:        "jpeg",
			candidate:   Candidate{Name: "label.jpg", MediaType: "image/jpeg", Size: 4, Body: strings.NewReader("jpeg")},
			wantPreview: true,
		},
		{
			name:        "webp",
			candidate:   Candidate{Name: "label.webp", MediaType: "image/webp", Size: 4, Body: strings.NewReader("webp")},
			wantPreview: true,
		},
		{
			name:      "pdf",
			candidate: Candidate{Name: "label.pdf", MediaType: "application/pdf", Size: 8, Body: strings.NewReader("%PDF-1.7")},
		},
		{
			name:      "gif rejected",
			candidate: Candidate{Name: "label.gif", MediaType: "image/gif", Size: 3, Body: strings.NewReader("gif")},
			wantKind:  FileTypeRejected,
		},
		{
			name:      "declared too large",
			candidate: Candidate{Name: "big.png", MediaType: "image/png", Size: MaxFileSize + 1, Body: strings.NewReader("x")},
			wantKind:  FileTooLarge,
		},
		{
			name:      "actual too large",
			candidate: Candidate{Name: "big.png", MediaType: "image/png", Size: 1, Body: bytes.NewReader(make([]byte, MaxFileSize+1))},
			wantKind:  FileTooLarge,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSession(nil)
			err := s.PickFile(tt.candidate)

			if tt.wantKind != 0 {
				var capErr *Error
				require.ErrorAs(t, err, &capErr)
				assert.Equal(t, tt.wantKind, capErr.Kind)
				assert.Equal(t, Choosing, s.Mode())
				assert.Equal(t, capErr.Message(), s.LastError())
				return
			}

			require.NoError(t, err)
			assert.Equal(t, Previewing, s.Mode())
			res, err := s.Confirm()
			require.NoError(t, err)
			assert.Equal(t, tt.candidate.Name, res.File.Name)
			assert.Equal(t, tt.wantPreview, res.Preview != "")
			assert.Equal(t, tt.candidate.MediaType == MediaPDF, res.Preview == "")
		})
	}
}

func TestPickFileRejectsTwelveMegabyteJPEG(t *testing.T) {
	const size = 12 << 20
	s := newTestSession(nil)

	err := s.PickFile(Candidate{Name: "label.jpg", MediaType: "image/jpeg", Size: size, Body: bytes.NewReader(make([]byte, size))})
	var capErr *Error
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, FileTooLarge, capErr.Kind)

	snap := s.Snapshot()
	assert.Equal(t, Choosing, s.Mode())
	assert.Empty(t, snap.PendingName)
	assert.Empty(t, snap.PendingType)
	assert.Empty(t, snap.Preview)
	assert.Equal(t, capErr.Message(), s.LastError())
}

func TestPickFileExactLimitAccepted(t *testing.T) {
	s := newTestSession(nil)
	err := s.PickFile(Candidate{Name: "max.png", MediaType: "image/png", Size: MaxFileSize, Body: bytes.NewReader(make([]byte, MaxFileSize))})
	require.NoError(t, err)
	assert.Equal(t, Previewing, s.Mode())
}

func TestRejectedFileClearsOnNextPick(t *testing.T) {
	s := newTestSession(nil)
	require.Error(t, s.PickFile(Candidate{Name: "a.gif", MediaType: "image/gif", Body: strings.NewReader("x")}))
	require.NotEmpty(t, s.LastError())

	require.NoError(t, s.PickFile(Candidate{Name: "a.png", MediaType: "image/png", Size: 1, Body: strings.NewReader("x")}))
	assert.Empty(t, s.LastError())
}

func TestInvalidTransitions(t *testing.T) {
	s := newTestSession(nil)
	assert.ErrorIs(t, s.Capture(context.Background()), ErrInvalidTransition)
	assert.ErrorIs(t, s.Retake(), ErrInvalidTransition)
	assert.ErrorIs(t, s.Cancel(), ErrInvalidTransition)
	_, err := s.Confirm()
	assert.ErrorIs(t, err, ErrInvalidTransition)

	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.UseCamera(context.Background()), ErrClosed)
	assert.ErrorIs(t, s.PickFile(Candidate{}), ErrClosed)
	assert.ErrorIs(t, s.Cancel(), ErrClosed)
	_, err = s.Confirm()
	assert.ErrorIs(t, err, ErrClosed)
}

type blockingCamera struct {
	stream  *fakeStream
	entered chan struct{}
	release chan struct{}
}

func (c *blockingCamera) Open(ctx context.Context, cons Constraints) (Stream, error) {
	close(c.entered)
	<-c.release
	return c.stream, nil
}

func TestCloseDuringAcquisitionReleasesStream(t *testing.T) {
	cam := &blockingCamera{stream: newFakeStream(10, 10), entered: make(chan struct{}), release: make(chan struct{})}
	s := newTestSession(cam)

	errCh := make(chan error, 1)
	go func() { errCh <- s.UseCamera(context.Background()) }()

	<-cam.entered
	require.NoError(t, s.Close())
	close(cam.release)

	assert.ErrorIs(t, <-errCh, ErrClosed)
	assert.Equal(t, Closed, s.Mode())
	assert.Equal(t, int32(1), cam.stream.closes.Load())
}

func TestModeString(t *testing.T) {
	assert.Equal(t, "choosing", Choosing.String())
	assert.Equal(t, "camera_active", CameraActive.String())
	assert.Equal(t, "previewing", Previewing.String())
	assert.Equal(t, "closed", Closed.String())
}
