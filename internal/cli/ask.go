package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vbonduro/unlabel/internal/capture"
	"github.com/vbonduro/unlabel/internal/conversation"
	"github.com/vbonduro/unlabel/internal/domain"
	"github.com/vbonduro/unlabel/internal/render"
)

// cameraReadyTimeout bounds how long a scan waits for the camera to deliver
// frames.
const cameraReadyTimeout = 10 * time.Second

func newAskCmd(app *App) *cobra.Command {
	var opts render.Options
	var intent string

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask the decision engine about a food",
		Example: `  unlabel ask "Is soda okay daily?"
  unlabel ask --details --intent health "Are oats a good breakfast?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conv := app.newConversation(conversation.WithUserIntent(intent))
			defer closeConversation(app, conv)

			if _, err := conv.SubmitText(cmd.Context(), strings.Join(args, " ")); err != nil {
				return err
			}
			app.println(render.Thinking())
			conv.Wait()
			app.printReplies(conv, opts)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&opts.Details, "details", "d", false, "Show the full explanation")
	cmd.Flags().StringVar(&intent, "intent", "", "Why you are asking (e.g. health, curiosity)")
	return cmd
}

func newScanCmd(app *App) *cobra.Command {
	var opts render.Options
	var useCamera, save bool

	cmd := &cobra.Command{
		Use:   "scan [file]",
		Short: "Analyze a food label image or PDF",
		Example: `  unlabel scan label.jpg
  unlabel scan --camera --save`,
		Args: func(cmd *cobra.Command, args []string) error {
			if useCamera {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var (
				res capture.Result
				err error
			)
			if useCamera {
				res, err = app.captureCamera(ctx)
			} else {
				res, err = app.captureFile(ctx, args[0])
			}
			if err != nil {
				return err
			}
			app.println(render.CapturePreview(res))

			if save {
				if err := app.archive(ctx, res); err != nil {
					return err
				}
			}

			conv := app.newConversation()
			defer closeConversation(app, conv)
			if _, err := conv.SubmitCapture(ctx, res); err != nil {
				return err
			}
			app.println(render.Thinking())
			conv.Wait()
			app.printReplies(conv, opts)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&useCamera, "camera", "c", false, "Capture a frame from the camera instead of reading a file")
	cmd.Flags().BoolVar(&save, "save", false, "Keep a copy of the capture in the capture directory")
	cmd.Flags().BoolVarP(&opts.Details, "details", "d", false, "Show the full explanation")
	return cmd
}

// captureFile runs name through a capture session and returns the confirmed
// result.
func (a *App) captureFile(ctx context.Context, name string) (capture.Result, error) {
	files, err := a.fileStore()
	if err != nil {
		return capture.Result{}, err
	}
	candidate, closer, err := files.Open(ctx, name)
	if err != nil {
		return capture.Result{}, err
	}
	defer closeWithLog(a, closer, "capture file")

	session := a.newSession()
	defer closeWithLog(a, session, "capture session")
	if err := session.PickFile(candidate); err != nil {
		return capture.Result{}, userError(err)
	}
	return session.Confirm()
}

// captureCamera grabs one frame as soon as the camera delivers real frames.
func (a *App) captureCamera(ctx context.Context) (capture.Result, error) {
	session := a.newSession()
	defer closeWithLog(a, session, "capture session")

	if err := session.UseCamera(ctx); err != nil {
		return capture.Result{}, userError(err)
	}
	readyCtx, cancel := context.WithTimeout(ctx, cameraReadyTimeout)
	defer cancel()
	if err := session.WaitReady(readyCtx); err != nil {
		return capture.Result{}, fmt.Errorf("camera did not start: %w", err)
	}
	if err := session.Capture(ctx); err != nil {
		return capture.Result{}, userError(err)
	}
	return session.Confirm()
}

func (a *App) archive(ctx context.Context, res capture.Result) error {
	files, err := a.fileStore()
	if err != nil {
		return err
	}
	path, err := files.Save(ctx, res.File)
	if err != nil {
		return fmt.Errorf("failed to save capture: %w", err)
	}
	a.println("Saved " + path)
	return nil
}

// printReplies prints every system message after the last user message.
func (a *App) printReplies(conv *conversation.Controller, opts render.Options) {
	msgs := conv.Transcript()
	start := 0
	for i, m := range msgs {
		if m.Role == domain.RoleUser {
			start = i + 1
		}
	}
	for _, m := range msgs[start:] {
		a.println(render.Message(m, opts))
	}
}

// userError replaces a capture failure with its user-facing message.
func userError(err error) error {
	var capErr *capture.Error
	if errors.As(err, &capErr) {
		return errors.New(capErr.Message())
	}
	return err
}

func closeConversation(app *App, conv *conversation.Controller) {
	closeWithLog(app, conv, "conversation")
}

func closeWithLog(app *App, c io.Closer, label string) {
	if err := c.Close(); err != nil {
		app.logger.Error("failed to close resource", "label", label, "error", err)
	}
}
