// Package buildtool wraps invocation of the external build tool that
// produces per-target source-database fragments. It is a narrow interface:
// query (what targets exist) and build (force artifact generation), both
// returning raw JSON for a higher layer (buildinterface) to parse.
package buildtool

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"
)

// maxLogLines bounds the tail of diagnostic output retained with each
// invocation and surfaced in a ToolError.
const maxLogLines = 200

// Mode selects a build-tool operating mode (forwarded unchanged to the
// underlying command, e.g. "dev" vs "opt").
type Mode string

// Options carries the optional knobs every RawBuildTool call accepts.
type Options struct {
	Mode            Mode
	IsolationPrefix string
}

// ToolError reports the external tool failing: fatal for the current
// operation, and carrying enough to reproduce the invocation.
type ToolError struct {
	Command     string
	Args        []string
	Description string
	ExitCode    *int // nil if the process was terminated by a signal
	Logs        []string
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("buildtool: %s failed (%s): %s\nargv: %s %s\nlogs:\n%s",
		e.Command, e.description(), e.Description, e.Command, strings.Join(e.Args, " "), strings.Join(e.Logs, "\n"))
}

func (e *ToolError) description() string {
	if e.ExitCode == nil {
		return "terminated by signal"
	}
	return fmt.Sprintf("exit %d", *e.ExitCode)
}

// RawBuildTool invokes the external build tool's query and build commands.
type RawBuildTool struct {
	command string
	logger  *lumberjack.Logger
}

// New creates a RawBuildTool that invokes command (e.g. "buck2") and
// appends every invocation's stderr output to a size-rotated log at
// logPath, if logPath is non-empty.
func New(command, logPath string) *RawBuildTool {
	rbt := &RawBuildTool{command: command}
	if logPath != "" {
		rbt.logger = &lumberjack.Logger{
			Filename:   logPath,
			MaxSize:    20, // megabytes
			MaxBackups: 3,
			Compress:   true,
		}
	}
	return rbt
}

// Query issues a "query" invocation (e.g. resolving target patterns) and
// returns its raw JSON stdout.
func (t *RawBuildTool) Query(ctx context.Context, args []string, opts Options) ([]byte, error) {
	return t.run(ctx, "query", args, opts)
}

// Build issues a "build" invocation (forcing artifact generation) and
// returns its raw JSON stdout.
func (t *RawBuildTool) Build(ctx context.Context, args []string, opts Options) ([]byte, error) {
	return t.run(ctx, "build", args, opts)
}

func (t *RawBuildTool) run(ctx context.Context, subcommand string, args []string, opts Options) ([]byte, error) {
	isolation := opts.IsolationPrefix
	if isolation == "" {
		isolation = uuid.NewString()
	}

	fullArgs := make([]string, 0, len(args)+4)
	fullArgs = append(fullArgs, subcommand)
	if opts.Mode != "" {
		fullArgs = append(fullArgs, "--mode", string(opts.Mode))
	}
	fullArgs = append(fullArgs, "--isolation-dir", isolation)
	fullArgs = append(fullArgs, args...)

	cmd := exec.CommandContext(ctx, t.command, fullArgs...)

	var stdout, combined bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &combined

	err := cmd.Run()
	if t.logger != nil && combined.Len() > 0 {
		_, _ = t.logger.Write(combined.Bytes())
	}

	if err != nil {
		return nil, &ToolError{
			Command:     t.command,
			Args:        fullArgs,
			Description: err.Error(),
			ExitCode:    exitCode(err),
			Logs:        tail(combined.String(), maxLogLines),
		}
	}
	return stdout.Bytes(), nil
}

func exitCode(err error) *int {
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return nil
	}
	if exitErr.ProcessState != nil && exitErr.ProcessState.Exited() {
		code := exitErr.ExitCode()
		return &code
	}
	return nil // signaled
}

// tail returns the last n lines of s.
func tail(s string, n int) []string {
	sc := bufio.NewScanner(strings.NewReader(s))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	var lines []string
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if len(lines) <= n {
		return lines
	}
	return lines[len(lines)-n:]
}
