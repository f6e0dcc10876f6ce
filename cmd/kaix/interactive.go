package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ReOpsIL/KAIX/internal/async"
	"github.com/ReOpsIL/KAIX/internal/plan"
)

// runInteractive drives the line-oriented REPL described in spec.md §6:
// a bufio.Scanner loop over stdin that either forwards a line verbatim
// to the coordinator as a normal-priority prompt, or interprets it as
// one of the slash commands below. No widget layout or fuzzy completion
// is introduced, per spec.md's explicit Non-goals — this mirrors
// cklxx-elephant.ai's own `RunNativeChatUI` fallback path for
// non-TTY/`ALEX_DISABLE_TUI` sessions rather than its gocui-based
// default TUI.
func runInteractive(ctx context.Context, flags *rootFlags) error {
	container, err := buildContainer(flags.workdir, flags.logLevel)
	if err != nil {
		return err
	}
	defer container.Cleanup()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return container.Coordinator.Run(gctx) })

	async.Go(container.Logger, "interactive.snapshots", func() {
		drainSnapshots(gctx, container)
	})

	session := &replSession{container: container, cancel: cancel}
	session.run(runCtx)

	cancel()
	return g.Wait()
}

func drainSnapshots(ctx context.Context, container *Container) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-container.Coordinator.Snapshots():
			if !ok {
				return
			}
			container.Presenter.PresentSnapshot(snap)
		}
	}
}

// replSession tracks the per-session state slash commands mutate:
// submitted-prompt history for /history and the workdir/model/provider
// labels /workdir, /model, and /provider report back.
type replSession struct {
	container *Container
	cancel    context.CancelFunc
	history   []string
}

func (s *replSession) run(ctx context.Context) {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Fprintln(os.Stdout, "kaix ready. Type a prompt, or /status, /history, /reset-context, /model, /provider, /workdir.")
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if !s.handleSlashCommand(ctx, line) {
				return
			}
			continue
		}
		s.submit(line, plan.PriorityNormal)
	}
}

// handleSlashCommand interprets one slash command. It returns false
// when the session should end.
func (s *replSession) handleSlashCommand(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	cmd := fields[0]
	arg := strings.TrimSpace(strings.TrimPrefix(line, cmd))

	switch cmd {
	case "/status":
		snap := s.container.Coordinator.StatusSnapshot()
		s.container.Presenter.PresentSnapshot(snap)
	case "/history":
		if len(s.history) == 0 {
			s.container.Presenter.PresentMessage("info", "no prompts submitted yet")
			break
		}
		for i, h := range s.history {
			s.container.Presenter.PresentMessage("info", fmt.Sprintf("%d: %s", i+1, h))
		}
	case "/reset-context":
		s.container.Presenter.PresentMessage("info", "scratchpads are discarded automatically when their plan finishes; there is no separate reset operation")
	case "/model":
		if arg == "" {
			active, ok := s.container.Config.ActiveProviderConfig()
			if ok {
				s.container.Presenter.PresentMessage("info", "model: "+active.Model)
			}
			break
		}
		s.container.Presenter.PresentMessage("info", "model switching takes effect on the next `kaix provider add`; no live model override here")
	case "/provider":
		if arg == "" {
			s.container.Presenter.PresentMessage("info", "provider: "+s.container.Config.ActiveProvider)
			break
		}
		s.container.Presenter.PresentMessage("info", "switch providers with `kaix provider set "+arg+"` and restart")
	case "/workdir":
		if arg == "" {
			s.container.Presenter.PresentMessage("info", "workdir: "+s.container.Config.Workdir)
			break
		}
		s.container.Presenter.PresentMessage("info", "workdir is fixed for the lifetime of a running session; restart kaix with --workdir "+arg)
	case "/quit", "/exit":
		return false
	default:
		s.container.Presenter.PresentMessage("warn", "unrecognized command: "+cmd)
	}
	return true
}

func (s *replSession) submit(content string, priority plan.PromptPriority) {
	s.history = append(s.history, content)
	if _, err := s.container.Coordinator.SubmitPrompt(content, priority, ""); err != nil {
		s.container.Presenter.PresentMessage("error", err.Error())
	}
}
