// Package procbridge shells out to the external content generator and turns
// its exit status and stdout into structured results.
//
// The generator contract: the bridge writes an options JSON artifact, invokes
// `<executable> <scriptsDir>/<script> <artifact-path>`, and the script's final
// stdout line must be a JSON object naming the produced output artifact.
// Everything that can go wrong resolves to a failure result, never a panic or
// an error escaping GenerateContent.
package procbridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	logx "trendpipe/pkg/logx"
)

// Config locates the external generator.
type Config struct {
	Executable string // e.g. a venv python binary
	ScriptsDir string
	OutputDir  string // options artifacts are written here

	InvokeTimeout time.Duration // default 2m
	ReadyTimeout  time.Duration // default 5s
	ReadyArgs     []string      // trivial invocation proving the runtime works
}

func (c Config) withDefaults() Config {
	if c.InvokeTimeout <= 0 {
		c.InvokeTimeout = 2 * time.Minute
	}
	if c.ReadyTimeout <= 0 {
		c.ReadyTimeout = 5 * time.Second
	}
	if len(c.ReadyArgs) == 0 {
		c.ReadyArgs = []string{"-c", "print('ok')"}
	}
	return c
}

// ExitError carries a non-zero exit from the generator.
type ExitError struct {
	Code       int
	StderrTail string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("generator exited with code %d: %s", e.Code, e.StderrTail)
}

// Result is the tagged outcome of GenerateContent. On failure the payload
// fields are left empty.
type Result struct {
	Success    bool   `json:"success"`
	OutputPath string `json:"outputPath,omitempty"`
	Prompt     string `json:"prompt,omitempty"`
	Message    string `json:"message,omitempty"`
}

type Bridge struct {
	cfg Config
	log logx.Logger
}

func New(cfg Config, log logx.Logger) *Bridge {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Bridge{cfg: cfg.withDefaults(), log: log}
}

// CheckReadiness verifies the executable and scripts directory exist and that
// a trivial invocation succeeds within the readiness timeout. Failures are
// logged and reported as false so callers can fall back transparently.
func (b *Bridge) CheckReadiness(ctx context.Context) bool {
	if _, err := os.Stat(b.cfg.Executable); err != nil {
		b.log.Warn("generator executable missing", logx.String("path", b.cfg.Executable), logx.Err(err))
		return false
	}
	if fi, err := os.Stat(b.cfg.ScriptsDir); err != nil || !fi.IsDir() {
		b.log.Warn("generator scripts dir missing", logx.String("path", b.cfg.ScriptsDir), logx.Err(err))
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, b.cfg.ReadyTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, b.cfg.Executable, b.cfg.ReadyArgs...)
	if out, err := cmd.CombinedOutput(); err != nil {
		b.log.Warn("generator readiness probe failed",
			logx.Err(err),
			logx.String("output", truncateTail(string(out), 400)))
		return false
	}
	return true
}

// Invoke runs a script with args under the invoke timeout, buffering
// stdout/stderr. Zero exit returns accumulated stdout; non-zero exit returns
// an *ExitError with the code and a stderr tail. On timeout the subprocess is
// killed and the call fails.
func (b *Bridge) Invoke(ctx context.Context, scriptName string, args ...string) (string, error) {
	scriptPath := filepath.Join(b.cfg.ScriptsDir, scriptName)
	if _, err := os.Stat(scriptPath); err != nil {
		return "", fmt.Errorf("script not found: %s", scriptPath)
	}

	ctx, cancel := context.WithTimeout(ctx, b.cfg.InvokeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, b.cfg.Executable, append([]string{scriptPath}, args...)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	b.log.Debug("invoking generator", logx.String("script", scriptName), logx.Int("args", len(args)))
	err := cmd.Run()
	dur := time.Since(start)

	if err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			exitErr := &ExitError{Code: ee.ExitCode(), StderrTail: truncateTail(stderr.String(), 800)}
			b.log.Warn("generator failed",
				logx.String("script", scriptName),
				logx.Int("exit_code", exitErr.Code),
				logx.Duration("dur", dur))
			return "", exitErr
		}
		if ctx.Err() != nil {
			b.log.Warn("generator timed out", logx.String("script", scriptName), logx.Duration("dur", dur))
			return "", fmt.Errorf("generator timed out after %s", dur.Round(time.Millisecond))
		}
		return "", err
	}

	b.log.Debug("generator finished", logx.String("script", scriptName), logx.Duration("dur", dur))
	return stdout.String(), nil
}

// GenerateContent serializes options to a transient artifact, invokes the
// script with that artifact's path as its sole argument, and parses the last
// stdout line as the structured result. Any failure resolves to
// Result{Success: false}; nothing is thrown past this boundary.
func (b *Bridge) GenerateContent(ctx context.Context, scriptName string, options any) Result {
	optionsPath, err := b.writeOptionsFile(options)
	if err != nil {
		b.log.Error("options artifact write failed", logx.Err(err))
		return Result{Success: false, Message: "failed preparing generator input"}
	}
	defer os.Remove(optionsPath)

	stdout, err := b.Invoke(ctx, scriptName, optionsPath)
	if err != nil {
		return Result{Success: false, Message: err.Error()}
	}

	outputPath, err := parseFinalLine(stdout)
	if err != nil {
		b.log.Warn("generator output unparseable", logx.Err(err))
		return Result{Success: false, Message: "generator produced no parseable result"}
	}
	if _, err := os.Stat(outputPath); err != nil {
		b.log.Warn("generator output artifact missing", logx.String("path", outputPath), logx.Err(err))
		return Result{Success: false, Message: "generated artifact not found"}
	}

	prompt := ""
	if m, ok := options.(map[string]any); ok {
		prompt, _ = m["prompt"].(string)
	}
	return Result{Success: true, OutputPath: outputPath, Prompt: prompt}
}

func (b *Bridge) writeOptionsFile(options any) (string, error) {
	if err := os.MkdirAll(b.cfg.OutputDir, 0o755); err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(options, "", "  ")
	if err != nil {
		return "", err
	}
	path := filepath.Join(b.cfg.OutputDir, fmt.Sprintf("options_%s.json", uuid.NewString()))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// parseFinalLine extracts the output artifact path from the last stdout line,
// a JSON object like {"output_path": "/path/to/artifact"}. The legacy
// "image_path" key is accepted too.
func parseFinalLine(stdout string) (string, error) {
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	if last == "" {
		return "", errors.New("empty generator output")
	}

	var payload struct {
		OutputPath string `json:"output_path"`
		ImagePath  string `json:"image_path"`
	}
	if err := json.Unmarshal([]byte(last), &payload); err != nil {
		return "", fmt.Errorf("final line is not valid JSON: %w", err)
	}
	path := payload.OutputPath
	if path == "" {
		path = payload.ImagePath
	}
	if path == "" {
		return "", errors.New("final line names no output artifact")
	}
	return path, nil
}

func truncateTail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
