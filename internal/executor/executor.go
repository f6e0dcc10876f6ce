package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ReOpsIL/KAIX/internal/logging"
	"github.com/ReOpsIL/KAIX/internal/plan"
	"github.com/ReOpsIL/KAIX/internal/provider"
)

// Executor is the Task Executor contract from spec.md §4.5: one primitive
// operation in, one structured plan.TaskResult out, always confined to the
// sandbox.
type Executor interface {
	Execute(ctx context.Context, task *plan.Task, refinedInstruction string, refinedParams map[string]any) (*plan.TaskResult, error)
}

const (
	// maxCapturedOutputBytes bounds captured stdout/file content so a
	// runaway command or an enormous file never blows up scratchpad memory.
	maxCapturedOutputBytes = 256 * 1024

	defaultCommandTimeout = 30 * time.Second
)

// Default implements Executor against a Sandbox, delegating analyze-code
// to a provider.Provider's Summarize; generate-content returns the refined
// instruction without a provider call. Grounded on original_source/src/execution/executor.rs's
// task_type dispatch (execute_task's match over TaskType), reworked from
// tokio::fs/tokio::process into synchronous os/exec calls guarded by
// context cancellation, and with sandbox confinement the original lacks
// entirely (it calls fs::read_to_string(path) directly on the raw
// parameter).
type Default struct {
	sandbox        *Sandbox
	provider       provider.Provider
	commandTimeout time.Duration
	allowedArgv0   map[string]bool
	logger         logging.Logger
}

// Option configures a Default executor.
type Option func(*Default)

// WithCommandTimeout overrides the default wall-clock timeout applied to
// execute-command when the task itself specifies none.
func WithCommandTimeout(d time.Duration) Option {
	return func(e *Default) { e.commandTimeout = d }
}

// WithAllowedCommands restricts execute-command to an allow-list of argv[0]
// values. An empty list (the default) permits any command; sandbox
// confinement of the working directory is enforced regardless.
func WithAllowedCommands(names ...string) Option {
	return func(e *Default) {
		e.allowedArgv0 = make(map[string]bool, len(names))
		for _, n := range names {
			e.allowedArgv0[n] = true
		}
	}
}

// New builds a Default executor rooted at sandbox, using p for the
// provider-assisted task kinds.
func New(sandbox *Sandbox, p provider.Provider, opts ...Option) *Default {
	e := &Default{
		sandbox:        sandbox,
		provider:       p,
		commandTimeout: defaultCommandTimeout,
		logger:         logging.NewComponentLogger("executor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Default) Execute(ctx context.Context, task *plan.Task, instruction string, params map[string]any) (*plan.TaskResult, error) {
	start := time.Now()
	var result *plan.TaskResult
	var err error

	switch task.Kind {
	case plan.KindReadFile:
		result, err = e.readFile(params)
	case plan.KindWriteFile:
		result, err = e.writeFile(params, instruction)
	case plan.KindCreateDirectory:
		result, err = e.createDirectory(params)
	case plan.KindDeletePath:
		result, err = e.deletePath(params)
	case plan.KindListDirectory:
		result, err = e.listDirectory(params)
	case plan.KindExecuteCommand:
		result, err = e.executeCommand(ctx, params, instruction)
	case plan.KindAnalyzeCode:
		result, err = e.analyzeCode(ctx, params, instruction)
	case plan.KindGenerateContent:
		result, err = e.generateContent(ctx, params, instruction)
	default:
		return nil, fmt.Errorf("executor: unrecognized task kind %q", task.Kind)
	}

	if err != nil {
		return nil, err
	}
	result.Duration = time.Since(start)
	return result, nil
}

func stringParam(params map[string]any, key string) (string, bool) {
	v, ok := params[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func boolParam(params map[string]any, key string) bool {
	v, ok := params[key]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

func failure(category, message string) *plan.TaskResult {
	return &plan.TaskResult{Success: false, ErrorCategory: category, ErrorMessage: message}
}

func (e *Default) readFile(params map[string]any) (*plan.TaskResult, error) {
	path, ok := stringParam(params, "path")
	if !ok || path == "" {
		return failure("invalid-request", "read-file requires a path parameter"), nil
	}
	resolved, err := e.sandbox.Resolve(path)
	if err != nil {
		return failure("not-in-sandbox", err.Error()), nil
	}

	info, statErr := os.Stat(resolved)
	if statErr != nil {
		if os.IsNotExist(statErr) {
			return failure("not-found", statErr.Error()), nil
		}
		return failure("io", statErr.Error()), nil
	}
	if info.Size() > maxCapturedOutputBytes {
		return failure("too-large", fmt.Sprintf("file exceeds %d byte executor ceiling", maxCapturedOutputBytes)), nil
	}

	content, err := os.ReadFile(resolved)
	if err != nil {
		return failure("io", err.Error()), nil
	}
	text := string(content)

	if startLine, ok := intParam(params, "start_line"); ok {
		endLine, hasEnd := intParam(params, "end_line")
		lines := strings.Split(text, "\n")
		if startLine < 0 {
			startLine = 0
		}
		if !hasEnd || endLine > len(lines) {
			endLine = len(lines)
		}
		if startLine < len(lines) && endLine >= startLine {
			text = strings.Join(lines[startLine:endLine], "\n")
		} else {
			text = ""
		}
	}

	return &plan.TaskResult{
		Success:   true,
		Output:    text,
		Artifacts: map[string]any{"path": path, "size_bytes": info.Size()},
	}, nil
}

func intParam(params map[string]any, key string) (int, bool) {
	v, ok := params[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

func (e *Default) writeFile(params map[string]any, instruction string) (*plan.TaskResult, error) {
	path, ok := stringParam(params, "path")
	if !ok || path == "" {
		return failure("invalid-request", "write-file requires a path parameter"), nil
	}
	resolved, err := e.sandbox.Resolve(path)
	if err != nil {
		return failure("not-in-sandbox", err.Error()), nil
	}

	content, hasContent := stringParam(params, "content")
	if !hasContent {
		content = instruction
	}
	overwrite := boolParam(params, "overwrite")

	if _, statErr := os.Stat(resolved); statErr == nil && !overwrite {
		return failure("exists-and-no-overwrite", fmt.Sprintf("%s already exists and overwrite was not set", path)), nil
	}

	previous, _ := os.ReadFile(resolved)

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return failure("io", err.Error()), nil
	}
	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return failure("io", err.Error()), nil
	}

	artifacts := map[string]any{"path": path, "bytes_written": len(content)}
	if previous != nil {
		artifacts["diff"] = UnifiedDiff(path, string(previous), content)
	}

	return &plan.TaskResult{
		Success:   true,
		Output:    fmt.Sprintf("wrote %d bytes to %s", len(content), path),
		Artifacts: artifacts,
	}, nil
}

func (e *Default) createDirectory(params map[string]any) (*plan.TaskResult, error) {
	path, ok := stringParam(params, "path")
	if !ok || path == "" {
		return failure("invalid-request", "create-directory requires a path parameter"), nil
	}
	resolved, err := e.sandbox.Resolve(path)
	if err != nil {
		return failure("not-in-sandbox", err.Error()), nil
	}

	if info, statErr := os.Stat(resolved); statErr == nil && info.IsDir() {
		return failure("exists", fmt.Sprintf("%s already exists", path)), nil
	}

	recursive := boolParam(params, "recursive")
	var mkErr error
	if recursive {
		mkErr = os.MkdirAll(resolved, 0o755)
	} else {
		mkErr = os.Mkdir(resolved, 0o755)
	}
	if mkErr != nil {
		return failure("io", mkErr.Error()), nil
	}
	return &plan.TaskResult{Success: true, Output: fmt.Sprintf("created %s", path)}, nil
}

func (e *Default) deletePath(params map[string]any) (*plan.TaskResult, error) {
	path, ok := stringParam(params, "path")
	if !ok || path == "" {
		return failure("invalid-request", "delete-path requires a path parameter"), nil
	}
	resolved, err := e.sandbox.Resolve(path)
	if err != nil {
		return failure("not-in-sandbox", err.Error()), nil
	}

	info, statErr := os.Stat(resolved)
	if statErr != nil {
		if os.IsNotExist(statErr) {
			return failure("not-found", statErr.Error()), nil
		}
		return failure("io", statErr.Error()), nil
	}

	recursive := boolParam(params, "recursive")
	if info.IsDir() {
		entries, readErr := os.ReadDir(resolved)
		if readErr != nil {
			return failure("io", readErr.Error()), nil
		}
		if len(entries) > 0 && !recursive {
			return failure("non-empty", fmt.Sprintf("%s is not empty and recursive was not set", path)), nil
		}
		if recursive {
			err = os.RemoveAll(resolved)
		} else {
			err = os.Remove(resolved)
		}
	} else {
		err = os.Remove(resolved)
	}
	if err != nil {
		return failure("io", err.Error()), nil
	}
	return &plan.TaskResult{Success: true, Output: fmt.Sprintf("deleted %s", path)}, nil
}

func (e *Default) listDirectory(params map[string]any) (*plan.TaskResult, error) {
	path, ok := stringParam(params, "path")
	if !ok || path == "" {
		path = "."
	}
	resolved, err := e.sandbox.Resolve(path)
	if err != nil {
		return failure("not-in-sandbox", err.Error()), nil
	}
	info, statErr := os.Stat(resolved)
	if statErr != nil {
		if os.IsNotExist(statErr) {
			return failure("not-found", statErr.Error()), nil
		}
		return failure("io", statErr.Error()), nil
	}
	if !info.IsDir() {
		return failure("io", fmt.Sprintf("%s is not a directory", path)), nil
	}

	recursive := boolParam(params, "recursive")
	var relPaths []string
	if err := e.walkDirectory(resolved, resolved, recursive, &relPaths); err != nil {
		return failure("io", err.Error()), nil
	}
	sort.Strings(relPaths)

	return &plan.TaskResult{
		Success:   true,
		Output:    strings.Join(relPaths, "\n"),
		Artifacts: map[string]any{"paths": relPaths, "count": len(relPaths)},
	}, nil
}

func (e *Default) walkDirectory(root, dir string, recursive bool, out *[]string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		full := filepath.Join(dir, entry.Name())
		rel, err := filepath.Rel(root, full)
		if err != nil {
			continue
		}
		*out = append(*out, rel)
		if entry.IsDir() && recursive {
			if err := e.walkDirectory(root, full, recursive, out); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Default) executeCommand(ctx context.Context, params map[string]any, instruction string) (*plan.TaskResult, error) {
	argv, err := commandArgv(params, instruction)
	if err != nil {
		return failure("invalid-request", err.Error()), nil
	}
	if len(argv) == 0 {
		return failure("invalid-request", "execute-command requires a non-empty argv"), nil
	}
	if len(e.allowedArgv0) > 0 && !e.allowedArgv0[argv[0]] {
		return failure("not-allowed", fmt.Sprintf("command %q is not in the allow-list", argv[0])), nil
	}

	timeout := e.commandTimeout
	if secs, ok := intParam(params, "timeout"); ok && secs > 0 {
		timeout = time.Duration(secs) * time.Second
	}
	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	workDir := e.sandbox.Root()
	if wd, ok := stringParam(params, "working_dir"); ok && wd != "" {
		resolved, resolveErr := e.sandbox.Resolve(wd)
		if resolveErr != nil {
			return failure("not-in-sandbox", resolveErr.Error()), nil
		}
		workDir = resolved
	}

	cmd := exec.CommandContext(cmdCtx, argv[0], argv[1:]...)
	cmd.Dir = workDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = boundedWriter(&stdout, maxCapturedOutputBytes)
	cmd.Stderr = boundedWriter(&stderr, maxCapturedOutputBytes)

	if stdin, ok := stringParam(params, "stdin"); ok {
		cmd.Stdin = strings.NewReader(stdin)
	}

	runErr := cmd.Run()

	if cmdCtx.Err() == context.DeadlineExceeded {
		return failure("timeout", fmt.Sprintf("command %q exceeded %s", strings.Join(argv, " "), timeout)), nil
	}

	exitCode := 0
	var exitErr *exec.ExitError
	if runErr != nil {
		if errors.As(runErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return failure("spawn-failure", runErr.Error()), nil
		}
	}

	success := exitCode == 0
	result := &plan.TaskResult{
		Success: success,
		Output:  stdout.String(),
		Artifacts: map[string]any{
			"command":   argv,
			"exit_code": exitCode,
			"stderr":    stderr.String(),
		},
	}
	if !success {
		result.ErrorCategory = "nonzero-exit"
		result.ErrorMessage = stderr.String()
	}
	return result, nil
}

func commandArgv(params map[string]any, instruction string) ([]string, error) {
	if raw, ok := params["argv"]; ok {
		list, ok := raw.([]any)
		if !ok {
			return nil, errors.New("argv must be an array of strings")
		}
		argv := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, errors.New("argv entries must be strings")
			}
			argv = append(argv, s)
		}
		return argv, nil
	}
	if cmd, ok := stringParam(params, "command"); ok && cmd != "" {
		return strings.Fields(cmd), nil
	}
	return strings.Fields(instruction), nil
}

// boundedWriter caps how many bytes get copied into buf, discarding the
// remainder rather than growing without limit.
func boundedWriter(buf *bytes.Buffer, limit int) io.Writer {
	return &ceilingWriter{buf: buf, limit: limit}
}

type ceilingWriter struct {
	buf   *bytes.Buffer
	limit int
}

func (c *ceilingWriter) Write(p []byte) (int, error) {
	remaining := c.limit - c.buf.Len()
	if remaining <= 0 {
		return len(p), nil
	}
	if len(p) > remaining {
		c.buf.Write(p[:remaining])
	} else {
		c.buf.Write(p)
	}
	return len(p), nil
}

func (e *Default) analyzeCode(ctx context.Context, params map[string]any, instruction string) (*plan.TaskResult, error) {
	var snippet string
	if path, ok := stringParam(params, "path"); ok && path != "" {
		readResult, err := e.readFile(params)
		if err != nil {
			return nil, err
		}
		if !readResult.Success {
			return readResult, nil
		}
		snippet = readResult.Output
	} else if s, ok := stringParam(params, "snippet"); ok {
		snippet = s
	} else {
		return failure("invalid-request", "analyze-code requires a path or snippet parameter"), nil
	}

	summary, err := e.provider.Summarize(ctx, snippet, instruction)
	if err != nil {
		return failure("provider-error", err.Error()), nil
	}

	return &plan.TaskResult{
		Success: true,
		Output:  summary,
		Artifacts: map[string]any{
			"lines":         strings.Count(snippet, "\n") + 1,
			"characters":    len(snippet),
			"has_tests":     strings.Contains(snippet, "test") || strings.Contains(snippet, "Test"),
			"has_comments":  strings.Contains(snippet, "//") || strings.Contains(snippet, "/*") || strings.Contains(snippet, "#"),
		},
	}, nil
}

// generateContent packages the already-provider-refined instruction as the
// task's generated text. Refinement (the phase before Execute runs) is
// where the provider call for this kind happens — RefineInstruction turns
// "generate content matching intent X" into the concrete text — so the
// executor's job is just to surface it as a result, matching
// original_source/src/execution/executor.rs's execute_generate_content.
func (e *Default) generateContent(_ context.Context, params map[string]any, instruction string) (*plan.TaskResult, error) {
	if instruction == "" {
		return failure("invalid-request", "generate-content requires a non-empty refined instruction"), nil
	}
	return &plan.TaskResult{
		Success:   true,
		Output:    instruction,
		Artifacts: map[string]any{"intent": params["intent"]},
	}, nil
}

var _ Executor = (*Default)(nil)
