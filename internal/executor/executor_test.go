package executor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ReOpsIL/KAIX/internal/plan"
	"github.com/ReOpsIL/KAIX/internal/provider"
)

func newTestExecutor(t *testing.T) (*Default, string) {
	t.Helper()
	root := t.TempDir()
	return New(NewSandbox(root), provider.NewMock()), root
}

func TestDefault_ReadFile_Success(t *testing.T) {
	ex, root := newTestExecutor(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "hello.txt"), []byte("hello world"), 0o644))

	task := &plan.Task{Kind: plan.KindReadFile}
	result, err := ex.Execute(context.Background(), task, "", map[string]any{"path": "hello.txt"})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "hello world", result.Output)
}

func TestDefault_ReadFile_NotFound(t *testing.T) {
	ex, _ := newTestExecutor(t)
	task := &plan.Task{Kind: plan.KindReadFile}
	result, err := ex.Execute(context.Background(), task, "", map[string]any{"path": "missing.txt"})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "not-found", result.ErrorCategory)
}

func TestDefault_ReadFile_RejectsSandboxEscape(t *testing.T) {
	ex, _ := newTestExecutor(t)
	task := &plan.Task{Kind: plan.KindReadFile}
	result, err := ex.Execute(context.Background(), task, "", map[string]any{"path": "../../etc/passwd"})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "not-in-sandbox", result.ErrorCategory)
}

func TestDefault_WriteFile_CreatesFileAndParentDirs(t *testing.T) {
	ex, root := newTestExecutor(t)
	task := &plan.Task{Kind: plan.KindWriteFile}
	result, err := ex.Execute(context.Background(), task, "generated body", map[string]any{"path": "nested/out.txt"})
	require.NoError(t, err)
	require.True(t, result.Success)

	content, readErr := os.ReadFile(filepath.Join(root, "nested/out.txt"))
	require.NoError(t, readErr)
	assert.Equal(t, "generated body", string(content))
}

func TestDefault_WriteFile_RejectsOverwriteWithoutFlag(t *testing.T) {
	ex, root := newTestExecutor(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "exists.txt"), []byte("old"), 0o644))

	task := &plan.Task{Kind: plan.KindWriteFile}
	result, err := ex.Execute(context.Background(), task, "new", map[string]any{"path": "exists.txt"})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "exists-and-no-overwrite", result.ErrorCategory)
}

func TestDefault_WriteFile_OverwriteEmitsDiff(t *testing.T) {
	ex, root := newTestExecutor(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "exists.txt"), []byte("old content\n"), 0o644))

	task := &plan.Task{Kind: plan.KindWriteFile}
	result, err := ex.Execute(context.Background(), task, "", map[string]any{
		"path": "exists.txt", "content": "new content\n", "overwrite": true,
	})
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.NotEmpty(t, result.Artifacts["diff"])
}

func TestDefault_CreateDirectory_RejectsExisting(t *testing.T) {
	ex, root := newTestExecutor(t)
	require.NoError(t, os.Mkdir(filepath.Join(root, "sub"), 0o755))

	task := &plan.Task{Kind: plan.KindCreateDirectory}
	result, err := ex.Execute(context.Background(), task, "", map[string]any{"path": "sub"})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "exists", result.ErrorCategory)
}

func TestDefault_DeletePath_RejectsNonEmptyWithoutRecursive(t *testing.T) {
	ex, root := newTestExecutor(t)
	require.NoError(t, os.Mkdir(filepath.Join(root, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub/f.txt"), []byte("x"), 0o644))

	task := &plan.Task{Kind: plan.KindDeletePath}
	result, err := ex.Execute(context.Background(), task, "", map[string]any{"path": "sub"})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "non-empty", result.ErrorCategory)
}

func TestDefault_DeletePath_RecursiveSucceeds(t *testing.T) {
	ex, root := newTestExecutor(t)
	require.NoError(t, os.Mkdir(filepath.Join(root, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub/f.txt"), []byte("x"), 0o644))

	task := &plan.Task{Kind: plan.KindDeletePath}
	result, err := ex.Execute(context.Background(), task, "", map[string]any{"path": "sub", "recursive": true})
	require.NoError(t, err)
	assert.True(t, result.Success)
	_, statErr := os.Stat(filepath.Join(root, "sub"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestDefault_ListDirectory_Recursive(t *testing.T) {
	ex, root := newTestExecutor(t)
	require.NoError(t, os.Mkdir(filepath.Join(root, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub/f.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "top.txt"), []byte("y"), 0o644))

	task := &plan.Task{Kind: plan.KindListDirectory}
	result, err := ex.Execute(context.Background(), task, "", map[string]any{"path": ".", "recursive": true})
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, 3, result.Artifacts["count"])
}

func TestDefault_ExecuteCommand_CapturesStdoutAndExitCode(t *testing.T) {
	ex, _ := newTestExecutor(t)
	task := &plan.Task{Kind: plan.KindExecuteCommand}
	result, err := ex.Execute(context.Background(), task, "", map[string]any{"command": "echo hi"})
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Contains(t, result.Output, "hi")
	assert.Equal(t, 0, result.Artifacts["exit_code"])
}

func TestDefault_ExecuteCommand_NonZeroExitIsNotSuccess(t *testing.T) {
	ex, _ := newTestExecutor(t)
	task := &plan.Task{Kind: plan.KindExecuteCommand}
	result, err := ex.Execute(context.Background(), task, "", map[string]any{"command": "false"})
	require.NoError(t, err)
	assert.False(t, result.Success)
}

func TestDefault_ExecuteCommand_RejectsDisallowedCommand(t *testing.T) {
	sb := NewSandbox(t.TempDir())
	ex := New(sb, provider.NewMock(), WithAllowedCommands("echo"))

	task := &plan.Task{Kind: plan.KindExecuteCommand}
	result, err := ex.Execute(context.Background(), task, "", map[string]any{"command": "rm -rf /"})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "not-allowed", result.ErrorCategory)
}

func TestDefault_GenerateContent_ReturnsRefinedInstruction(t *testing.T) {
	ex, _ := newTestExecutor(t)
	task := &plan.Task{Kind: plan.KindGenerateContent}
	result, err := ex.Execute(context.Background(), task, "a poem about go", map[string]any{})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "a poem about go", result.Output)
}

func TestDefault_AnalyzeCode_UsesProviderSummarize(t *testing.T) {
	ex, root := newTestExecutor(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "code.go"), []byte("package main\nfunc main() {}\n"), 0o644))

	task := &plan.Task{Kind: plan.KindAnalyzeCode}
	result, err := ex.Execute(context.Background(), task, "assess complexity", map[string]any{"path": "code.go"})
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Contains(t, result.Output, "summary:")
}
