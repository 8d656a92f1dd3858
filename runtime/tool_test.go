package runtime

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
)

// fakeLauncher is a test launcher. run is called on Wait with the config
// so tests can create output files in the work directory.
type fakeLauncher struct {
	cfg      *ToolConfig
	startErr error
	exitCode int
	stderr   string
	run      func(cfg *ToolConfig) error
	killed   bool
}

func (f *fakeLauncher) Start(_ context.Context) error { return f.startErr }

func (f *fakeLauncher) Wait() (*ToolResult, error) {
	if f.run != nil {
		if err := f.run(f.cfg); err != nil {
			return nil, err
		}
	}
	return &ToolResult{ExitCode: f.exitCode, StderrBytes: []byte(f.stderr)}, nil
}

func (f *fakeLauncher) Kill() error {
	f.killed = true
	return nil
}

// recordingFactory returns a factory that records every launched config.
type recordingFactory struct {
	mu      sync.Mutex
	configs []ToolConfig
	build   func(cfg *ToolConfig) *fakeLauncher
}

func (r *recordingFactory) Factory(cfg *ToolConfig) Launcher {
	r.mu.Lock()
	r.configs = append(r.configs, *cfg)
	r.mu.Unlock()
	if r.build != nil {
		l := r.build(cfg)
		l.cfg = cfg
		return l
	}
	return &fakeLauncher{cfg: cfg}
}

func (r *recordingFactory) Programs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.configs))
	for _, c := range r.configs {
		out = append(out, c.Program)
	}
	return out
}

func TestDeduplicateEnv(t *testing.T) {
	env := []string{"A=1", "B=2", "A=3", "C=4", "B=5"}
	got := deduplicateEnv(env)
	want := []string{"A=3", "C=4", "B=5"}
	if !slices.Equal(got, want) {
		t.Errorf("deduplicateEnv = %v, want %v", got, want)
	}
}

func TestToolManager_WaitBeforeStart(t *testing.T) {
	m := NewToolManager(&ToolConfig{Program: "true"})
	if _, err := m.Wait(); err == nil {
		t.Fatal("expected error from Wait before Start")
	}
	if err := m.Kill(); err != nil {
		t.Errorf("Kill before Start: %v", err)
	}
}

func TestToolManager_Shell(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}

	t.Run("stdout and exit code", func(t *testing.T) {
		dir := t.TempDir()
		m := NewToolManager(&ToolConfig{
			Program:    sh,
			Args:       []string{"-c", `echo "$GREETING"; echo oops >&2; exit 3`},
			Dir:        dir,
			Env:        []string{"GREETING=hello"},
			StdoutPath: filepath.Join(dir, "out.txt"),
		})
		if err := m.Start(t.Context()); err != nil {
			t.Fatalf("Start: %v", err)
		}
		res, err := m.Wait()
		if err != nil {
			t.Fatalf("Wait: %v", err)
		}
		if res.ExitCode != 3 {
			t.Errorf("ExitCode = %d, want 3", res.ExitCode)
		}
		if strings.TrimSpace(string(res.StderrBytes)) != "oops" {
			t.Errorf("stderr = %q", res.StderrBytes)
		}
		b, err := os.ReadFile(filepath.Join(dir, "out.txt"))
		if err != nil {
			t.Fatalf("read stdout: %v", err)
		}
		if strings.TrimSpace(string(b)) != "hello" {
			t.Errorf("stdout = %q, want hello", b)
		}
	})

	t.Run("runs in work dir", func(t *testing.T) {
		dir := t.TempDir()
		m := NewToolManager(&ToolConfig{Program: sh, Args: []string{"-c", "touch marker"}, Dir: dir})
		if err := m.Start(t.Context()); err != nil {
			t.Fatalf("Start: %v", err)
		}
		if _, err := m.Wait(); err != nil {
			t.Fatalf("Wait: %v", err)
		}
		if _, err := os.Stat(filepath.Join(dir, "marker")); err != nil {
			t.Errorf("marker not created in work dir: %v", err)
		}
	})
}

func TestToolManager_StartMissingProgram(t *testing.T) {
	m := NewToolManager(&ToolConfig{Program: filepath.Join(t.TempDir(), "no-such-tool")})
	err := m.Start(t.Context())
	if err == nil {
		t.Fatal("expected start error")
	}
	if !errors.Is(err, os.ErrNotExist) && !strings.Contains(err.Error(), "no-such-tool") {
		t.Errorf("unexpected error: %v", err)
	}
}
