// Package v4l implements capture.Camera on Video4Linux device nodes, grabbing
// single frames through the ffmpeg CLI.
package v4l

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"

	"github.com/vbonduro/unlabel/internal/capture"
)

// Runner executes a command and returns its stdout. A failing command's
// error should carry its stderr.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

type Option func(*Camera)

// WithDeviceLister replaces the /dev/video* scan.
func WithDeviceLister(fn func() ([]string, error)) Option {
	return func(c *Camera) { c.listDevices = fn }
}

func WithOpener(fn func(path string) (io.Closer, error)) Option {
	return func(c *Camera) { c.openNode = fn }
}

func WithRunner(fn Runner) Option {
	return func(c *Camera) { c.run = fn }
}

type Camera struct {
	device      string
	ffmpegPath  string
	logger      *slog.Logger
	listDevices func() ([]string, error)
	openNode    func(path string) (io.Closer, error)
	run         Runner
}

// New returns a camera preferring device for environment-facing requests.
func New(device, ffmpegPath string, logger *slog.Logger, opts ...Option) *Camera {
	c := &Camera{
		device:      device,
		ffmpegPath:  ffmpegPath,
		logger:      logger,
		listDevices: listVideoNodes,
		openNode:    openVideoNode,
		run:         runCommand,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Open acquires the first usable node for constraints and probes one frame
// so that unsupported resolutions fail here rather than at capture time.
func (c *Camera) Open(ctx context.Context, cons capture.Constraints) (capture.Stream, error) {
	nodes, err := c.nodesFor(cons)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, capture.ErrDeviceNotFound
	}

	var lastErr error
	for _, node := range nodes {
		s, err := c.openStream(ctx, node, cons)
		if err == nil {
			return s, nil
		}
		lastErr = err
		c.logger.Debug("video node unusable", "device", node, "error", err)
		if errors.Is(err, capture.ErrPermissionDenied) {
			break
		}
	}
	return nil, lastErr
}

func (c *Camera) nodesFor(cons capture.Constraints) ([]string, error) {
	if cons.Facing == capture.FacingEnvironment {
		return []string{c.device}, nil
	}
	nodes, err := c.listDevices()
	if err != nil {
		return nil, fmt.Errorf("failed to list video devices: %w", classify(err))
	}
	if len(nodes) == 0 {
		return nil, nil
	}
	// The preferred device is still tried first.
	out := []string{c.device}
	for _, n := range nodes {
		if n != c.device {
			out = append(out, n)
		}
	}
	return out, nil
}

func (c *Camera) openStream(ctx context.Context, node string, cons capture.Constraints) (*stream, error) {
	handle, err := c.openNode(node)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", node, classify(err))
	}
	s := &stream{cam: c, device: node, handle: handle, wantWidth: cons.Width, wantHeight: cons.Height}
	if _, err := s.Frame(ctx); err != nil {
		if cerr := s.Close(); cerr != nil {
			c.logger.Error("failed to close video node", "device", node, "error", cerr)
		}
		return nil, err
	}
	return s, nil
}

func (c *Camera) grab(ctx context.Context, device string, width, height int) (image.Image, error) {
	args := []string{"-hide_banner", "-loglevel", "error", "-f", "v4l2"}
	if width > 0 && height > 0 {
		args = append(args, "-video_size", fmt.Sprintf("%dx%d", width, height))
	}
	args = append(args, "-i", device, "-frames:v", "1", "-f", "image2pipe", "-vcodec", "png", "-")

	out, err := c.run(ctx, c.ffmpegPath, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to grab frame from %s: %w", device, classifyOutput(err))
	}
	img, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}
	return img, nil
}

type stream struct {
	cam        *Camera
	device     string
	handle     io.Closer
	wantWidth  int
	wantHeight int

	mu     sync.Mutex
	width  int
	height int
	closed bool
	once   sync.Once
}

func (s *stream) Dimensions() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width, s.height
}

func (s *stream) Frame(ctx context.Context) (image.Image, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, errors.New("stream closed")
	}
	s.mu.Unlock()

	img, err := s.cam.grab(ctx, s.device, s.wantWidth, s.wantHeight)
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	s.mu.Lock()
	s.width, s.height = b.Dx(), b.Dy()
	s.mu.Unlock()
	return img, nil
}

func (s *stream) Close() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.width, s.height = 0, 0
		s.mu.Unlock()
		err = s.handle.Close()
	})
	return err
}

func classify(err error) error {
	switch {
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %v", capture.ErrPermissionDenied, err)
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %v", capture.ErrDeviceNotFound, err)
	case errors.Is(err, syscall.EBUSY):
		return fmt.Errorf("%w: %v", capture.ErrDeviceBusy, err)
	default:
		return err
	}
}

// classifyOutput maps ffmpeg's stderr text, which is all it reports, onto
// device errors.
func classifyOutput(err error) error {
	if errors.Is(err, exec.ErrNotFound) {
		return err
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "permission denied"):
		return fmt.Errorf("%w: %v", capture.ErrPermissionDenied, err)
	case strings.Contains(msg, "no such file or directory"):
		return fmt.Errorf("%w: %v", capture.ErrDeviceNotFound, err)
	case strings.Contains(msg, "device or resource busy"):
		return fmt.Errorf("%w: %v", capture.ErrDeviceBusy, err)
	default:
		return classify(err)
	}
}

func listVideoNodes() ([]string, error) {
	nodes, err := filepath.Glob("/dev/video*")
	if err != nil {
		return nil, err
	}
	sort.Strings(nodes)
	return nodes, nil
}

func openVideoNode(path string) (io.Closer, error) {
	return os.OpenFile(path, os.O_RDWR, 0)
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return stdout.Bytes(), nil
}
