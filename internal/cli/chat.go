package cli

import (
	"bufio"
	"context"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/vbonduro/unlabel/internal/capture"
	"github.com/vbonduro/unlabel/internal/conversation"
	"github.com/vbonduro/unlabel/internal/render"
)

const chatHelp = `Type a question, or:
  /scan <file>   analyze a label image or PDF
  /camera        capture a label with the camera
  /details       toggle full explanations
  /quit          leave`

func newChatCmd(app *App) *cobra.Command {
	var opts render.Options

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive copilot conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.chat(cmd.Context(), opts)
		},
	}
	cmd.Flags().BoolVarP(&opts.Details, "details", "d", false, "Show full explanations")
	return cmd
}

// chat runs a line-oriented loop over In. Replies are printed as they arrive,
// so several questions may be outstanding at once.
func (a *App) chat(ctx context.Context, opts render.Options) error {
	conv := a.newConversation()
	events, unsubscribe := conv.Subscribe()
	defer unsubscribe()

	var mu sync.Mutex
	details := opts.Details
	printer := make(chan struct{})
	go func() {
		defer close(printer)
		for ev := range events {
			mu.Lock()
			o := render.Options{Details: details}
			mu.Unlock()
			if out := render.Event(ev, o); out != "" {
				a.println(out)
			}
		}
	}()

	// The welcome message was appended before the subscription.
	a.println(render.Transcript(conv.Transcript(), false, opts))
	a.println(chatHelp)

	scanner := bufio.NewScanner(a.In)
loop:
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		cmd, arg, _ := strings.Cut(line, " ")
		switch cmd {
		case "":
			continue
		case "/quit", "/exit":
			break loop
		case "/help":
			a.println(chatHelp)
		case "/details":
			mu.Lock()
			details = !details
			mu.Unlock()
		case "/scan":
			if arg == "" {
				a.println("Usage: /scan <file>")
				continue
			}
			a.submitCapture(ctx, conv, func() (capture.Result, error) { return a.captureFile(ctx, strings.TrimSpace(arg)) })
		case "/camera":
			a.submitCapture(ctx, conv, func() (capture.Result, error) { return a.captureCamera(ctx) })
		default:
			if _, err := conv.SubmitText(ctx, line); err != nil {
				a.println(err.Error())
			}
		}
		if ctx.Err() != nil {
			break
		}
	}
	scanErr := scanner.Err()

	// Let outstanding answers arrive before leaving.
	conv.Wait()
	closeConversation(a, conv)
	<-printer
	return scanErr
}

func (a *App) submitCapture(ctx context.Context, conv *conversation.Controller, take func() (capture.Result, error)) {
	res, err := take()
	if err != nil {
		a.println(err.Error())
		return
	}
	a.println(render.CapturePreview(res))
	if _, err := conv.SubmitCapture(ctx, res); err != nil {
		a.println(err.Error())
	}
}
