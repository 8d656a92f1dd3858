package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// ToolConfig configures one external program invocation.
type ToolConfig struct {
	// Program is the executable name or path.
	Program string
	// Args are the fully expanded arguments.
	Args []string
	// Dir is the working directory. Outputs with relative names land here.
	Dir string
	// Env holds extra KEY=VALUE entries appended to the inherited environment.
	// Later entries win over inherited duplicates.
	Env []string
	// StdoutPath, when set, receives the program's stdout. Otherwise stdout
	// is discarded.
	StdoutPath string
}

// ToolResult represents the result of a program run.
type ToolResult struct {
	// ExitCode is the process exit code.
	ExitCode int
	// StderrBytes is the captured stderr output.
	StderrBytes []byte
	// Duration is the wall time between Start and Wait.
	Duration time.Duration
}

// Launcher abstracts program lifecycle for testing.
type Launcher interface {
	Start(ctx context.Context) error
	Wait() (*ToolResult, error)
	Kill() error
}

// LauncherFactory creates a Launcher. Used for test injection.
type LauncherFactory func(config *ToolConfig) Launcher

// ToolManager manages one external program process.
type ToolManager struct {
	config  *ToolConfig
	cmd     *exec.Cmd
	stderr  io.ReadCloser
	stdout  *os.File
	started time.Time
}

// NewToolManager creates a new tool manager.
func NewToolManager(config *ToolConfig) *ToolManager {
	return &ToolManager{config: config}
}

// Start starts the program. Cancelling ctx kills it.
func (m *ToolManager) Start(ctx context.Context) error {
	m.cmd = exec.CommandContext(ctx, m.config.Program, m.config.Args...)
	m.cmd.Dir = m.config.Dir
	if len(m.config.Env) > 0 {
		m.cmd.Env = deduplicateEnv(append(os.Environ(), m.config.Env...))
	}

	if m.config.StdoutPath != "" {
		f, err := os.Create(m.config.StdoutPath)
		if err != nil {
			return fmt.Errorf("failed to create stdout file: %w", err)
		}
		m.stdout = f
		m.cmd.Stdout = f
	}

	stderr, err := m.cmd.StderrPipe()
	if err != nil {
		m.closeStdout()
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}
	m.stderr = stderr

	if err := m.cmd.Start(); err != nil {
		m.closeStdout()
		return fmt.Errorf("failed to start %s: %w", m.config.Program, err)
	}
	m.started = time.Now()
	return nil
}

// Wait waits for the program to exit and returns the result.
// Must be called after Start. A non-zero exit is a result, not an error.
func (m *ToolManager) Wait() (*ToolResult, error) {
	if m.cmd == nil {
		return nil, errors.New("tool not started")
	}
	defer m.closeStdout()

	// Drain stderr before Wait closes the pipe.
	stderrBytes, _ := io.ReadAll(m.stderr)

	err := m.cmd.Wait()
	result := &ToolResult{
		StderrBytes: stderrBytes,
		Duration:    time.Since(m.started),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("%s wait failed: %w", m.config.Program, err)
		}
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && !status.Signaled() {
			result.ExitCode = status.ExitStatus()
		} else {
			result.ExitCode = -1
		}
	}
	return result, nil
}

// Kill terminates the program.
func (m *ToolManager) Kill() error {
	if m.cmd != nil && m.cmd.Process != nil {
		return m.cmd.Process.Kill()
	}
	return nil
}

func (m *ToolManager) closeStdout() {
	if m.stdout != nil {
		_ = m.stdout.Close()
		m.stdout = nil
	}
}

// deduplicateEnv keeps the last occurrence of each env var key, so
// configured values win over inherited duplicates from os.Environ().
func deduplicateEnv(env []string) []string {
	seen := make(map[string]int, len(env))
	for i, entry := range env {
		key, _, _ := strings.Cut(entry, "=")
		seen[key] = i
	}
	result := make([]string, 0, len(seen))
	for i, entry := range env {
		key, _, _ := strings.Cut(entry, "=")
		if seen[key] == i {
			result = append(result, entry)
		}
	}
	return result
}

// Verify ToolManager implements Launcher.
var _ Launcher = (*ToolManager)(nil)
