// Package git provides access to the Git CLI with a Git library-like
// interface.
//
// All shell-to-Git interactions should be done through this package.
package git

//go:generate mockgen -destination=mock_execer_test.go -package=git -write_package_comment=false . execer

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"go.branchstack.dev/bse/internal/silog"
)

type execer interface {
	Run(*exec.Cmd) error
	Output(*exec.Cmd) ([]byte, error)
	Start(*exec.Cmd) error
	Wait(*exec.Cmd) error
	Kill(*exec.Cmd) error
}

type realExecer struct{}

var _realExec execer = realExecer{}

func (realExecer) Run(cmd *exec.Cmd) error              { return cmd.Run() }
func (realExecer) Output(cmd *exec.Cmd) ([]byte, error) { return cmd.Output() }
func (realExecer) Start(cmd *exec.Cmd) error            { return cmd.Start() }
func (realExecer) Wait(cmd *exec.Cmd) error             { return cmd.Wait() }
func (realExecer) Kill(cmd *exec.Cmd) error             { return cmd.Process.Kill() }

// gitCmd provides a fluent API around exec.Cmd,
// unconditionally capturing stderr into errors.
type gitCmd struct {
	cmd  *exec.Cmd
	log  *silog.Logger
	exec execer

	// Wraps an error with stderr output.
	wrap func(error) error
}

func newGitCmd(ctx context.Context, log *silog.Logger, args ...string) *gitCmd {
	name := "git"
	if len(args) > 0 {
		name += " " + args[0]
	}
	if log == nil {
		log = silog.Nop(&silog.Options{Level: silog.LevelInfo})
	}
	log = log.WithPrefix(name)

	stderr, wrap := outputWriter("stderr", log)
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Stderr = stderr

	return &gitCmd{
		cmd:  cmd,
		log:  log,
		exec: _realExec,
		wrap: wrap,
	}
}

// WithExecer overrides the execer used when a call site omits one,
// mainly for tests that need to observe or fail the underlying exec.Cmd.
func (c *gitCmd) WithExecer(e execer) *gitCmd {
	c.exec = e
	return c
}

// resolveExec returns the execer to use for this invocation: the explicit
// one passed by old-style call sites, or the command's own default.
func (c *gitCmd) resolveExec(execs []execer) execer {
	if len(execs) > 0 && execs[0] != nil {
		return execs[0]
	}
	return c.exec
}

// Dir sets the working directory for the command.
func (c *gitCmd) Dir(dir string) *gitCmd {
	c.cmd.Dir = dir
	return c
}

// WithDir is an alias for Dir.
func (c *gitCmd) WithDir(dir string) *gitCmd { return c.Dir(dir) }

// Stdout sets the writer for the command's stdout.
func (c *gitCmd) Stdout(w io.Writer) *gitCmd {
	c.cmd.Stdout = w
	return c
}

// WithStdout is an alias for Stdout.
func (c *gitCmd) WithStdout(w io.Writer) *gitCmd { return c.Stdout(w) }

func (c *gitCmd) Stderr(w io.Writer) *gitCmd {
	c.cmd.Stderr = w
	c.wrap = func(err error) error { return err }
	return c
}

// WithStderr is an alias for Stderr.
func (c *gitCmd) WithStderr(w io.Writer) *gitCmd { return c.Stderr(w) }

// Stdin supplies the command's stdin from the given reader.
func (c *gitCmd) Stdin(r io.Reader) *gitCmd {
	c.cmd.Stdin = r
	return c
}

// WithStdin is an alias for Stdin.
func (c *gitCmd) WithStdin(r io.Reader) *gitCmd { return c.Stdin(r) }

// StdinString supplies the command's stdin from the given string.
func (c *gitCmd) StdinString(s string) *gitCmd {
	return c.Stdin(strings.NewReader(s))
}

// WithStdinString is an alias for StdinString.
func (c *gitCmd) WithStdinString(s string) *gitCmd { return c.StdinString(s) }

// WithLogPrefix overrides the prefix used for this command's debug/error
// logging, replacing the "git <subcommand>" default picked in newGitCmd.
func (c *gitCmd) WithLogPrefix(prefix string) *gitCmd {
	c.log = c.log.WithPrefix(prefix)
	stderr, wrap := outputWriter("stderr", c.log)
	c.cmd.Stderr = stderr
	c.wrap = wrap
	return c
}

// extraConfig holds ad-hoc "-c key=value" overrides for a single git
// invocation, applied in front of the subcommand name.
type extraConfig struct {
	Editor             string
	MergeConflictStyle string
}

// WithArgs injects this config's "-c" overrides into cmd's argument list
// and returns cmd for chaining.
func (e extraConfig) WithArgs(cmd *gitCmd) *gitCmd {
	var kvs []string
	if e.Editor != "" {
		kvs = append(kvs, "core.editor="+e.Editor)
	}
	if e.MergeConflictStyle != "" {
		kvs = append(kvs, "merge.conflictStyle="+e.MergeConflictStyle)
	}
	if len(kvs) == 0 {
		return cmd
	}

	extra := make([]string, 0, len(kvs)*2)
	for _, kv := range kvs {
		extra = append(extra, "-c", kv)
	}

	args := cmd.cmd.Args
	newArgs := make([]string, 0, len(args)+len(extra))
	newArgs = append(newArgs, args[0])
	newArgs = append(newArgs, extra...)
	newArgs = append(newArgs, args[1:]...)
	cmd.cmd.Args = newArgs
	return cmd
}

// WithConfig applies extraConfig's "-c" overrides to cmd.
func (c *gitCmd) WithConfig(cfg extraConfig) *gitCmd {
	return cfg.WithArgs(c)
}

// CaptureStdout configures the command to also capture stdout (like
// stderr is by default) and surface it either in the logs or in the
// returned error.
func (c *gitCmd) CaptureStdout() *gitCmd {
	stdout, wrap := outputWriter("stdout", c.log)
	c.cmd.Stdout = stdout
	oldWrap := c.wrap
	c.wrap = func(err error) error {
		return wrap(oldWrap(err))
	}
	return c
}

// AppendEnv appends environment variables to the command.
func (c *gitCmd) AppendEnv(env ...string) *gitCmd {
	if len(env) == 0 {
		return c
	}

	if c.cmd.Env == nil {
		c.cmd.Env = os.Environ()
	}
	c.cmd.Env = append(c.cmd.Env, env...)
	return c
}

// StdoutPipe returns a pipe that will be connected to the command's stdout.
func (c *gitCmd) StdoutPipe() (io.ReadCloser, error) {
	return c.cmd.StdoutPipe()
}

// StdinPipe returns a pipe that will be connected to the command's stdin.
func (c *gitCmd) StdinPipe() (io.WriteCloser, error) {
	return c.cmd.StdinPipe()
}

// Run runs the command, blocking until it completes.
// It returns an error if the command fails with a non-zero exit code.
//
// Callers may pass an explicit execer (legacy call sites); call sites that
// omit it use the command's default, the real execer unless overridden
// via WithExecer.
func (c *gitCmd) Run(execs ...execer) error {
	return c.wrap(c.resolveExec(execs).Run(c.cmd))
}

// Start starts the command, returning immediately.
func (c *gitCmd) Start(execs ...execer) error {
	return c.wrap(c.resolveExec(execs).Start(c.cmd))
}

// Wait waits for a command started with Start to complete.
// It returns an error if the command fails with a non-zero exit code.
func (c *gitCmd) Wait(execs ...execer) error {
	return c.wrap(c.resolveExec(execs).Wait(c.cmd))
}

// Kill kills a command started with Start.
func (c *gitCmd) Kill(execs ...execer) error {
	return c.wrap(c.resolveExec(execs).Kill(c.cmd))
}

// Output runs the command and returns its stdout.
// It returns an error if the command fails with a non-zero exit code.
func (c *gitCmd) Output(execs ...execer) ([]byte, error) {
	out, err := c.resolveExec(execs).Output(c.cmd)
	return out, c.wrap(err)
}

// OutputString runs the command and returns its stdout as a string,
// with the trailing newline removed.
// It returns an error if the command fails with a non-zero exit code.
func (c *gitCmd) OutputString(execs ...execer) (string, error) {
	out, err := c.Output(execs...)
	out, _ = bytes.CutSuffix(out, []byte{'\n'})
	return string(out), err
}

// OutputChomp is an alias for OutputString.
func (c *gitCmd) OutputChomp(execs ...execer) (string, error) {
	return c.OutputString(execs...)
}

// ScanLines runs the command and streams its stdout line by line.
//
// An explicit execer may be passed by legacy call sites; omitting it uses
// the command's default.
func (c *gitCmd) ScanLines(execs ...execer) func(yield func([]byte, error) bool) {
	return c.Scan(bufio.ScanLines, execs...)
}

// Scan runs the command and streams its stdout split by the given function.
// An explicit execer may be passed by legacy call sites; omitting it uses
// the command's default.
//
// The byte slice is re-used between iterations; callers must not retain
// a reference to it past one iteration.
func (c *gitCmd) Scan(split bufio.SplitFunc, execs ...execer) func(yield func([]byte, error) bool) {
	exec := c.resolveExec(execs)
	return func(yield func([]byte, error) bool) {
		out, err := c.StdoutPipe()
		if err != nil {
			yield(nil, fmt.Errorf("pipe stdout: %w", err))
			return
		}

		if err := c.Start(exec); err != nil {
			yield(nil, fmt.Errorf("start: %w", err))
			return
		}

		var finished bool
		defer func() {
			if !finished {
				_ = c.Kill(exec)
			}
		}()

		scanner := bufio.NewScanner(out)
		scanner.Split(split)
		for scanner.Scan() {
			if !yield(scanner.Bytes(), nil) {
				return
			}
		}

		if err := scanner.Err(); err != nil {
			yield(nil, fmt.Errorf("scan: %w", err))
			return
		}

		if err := c.Wait(exec); err != nil {
			yield(nil, fmt.Errorf("wait: %w", err))
			return
		}

		finished = true
	}
}

// cmdStdinWriter is an io.WriteCloser that writes to a command's stdin,
// and upon closure, closes the stdin stream and waits for the command to exit.
type cmdStdinWriter struct {
	cmd   *gitCmd
	exec  execer
	stdin io.WriteCloser
}

var _ io.WriteCloser = (*cmdStdinWriter)(nil)

func (w *cmdStdinWriter) Write(p []byte) (n int, err error) {
	return w.stdin.Write(p)
}

func (w *cmdStdinWriter) Close() error {
	err := w.stdin.Close()
	if err != nil {
		return errors.Join(err, w.cmd.Kill(w.exec))
	}
	return w.cmd.Wait(w.exec)
}

// outputWriter returns an io.Writer that records output under the given
// label for later use, and a wrap function that wraps an error with the
// recorded output.
func outputWriter(label string, logger *silog.Logger) (w io.Writer, wrap func(error) error) {
	if logger.Level() <= silog.LevelDebug {
		// If logging is enabled, return an io.Writer
		// that writes to the logger.
		w, flush := silog.Writer(logger, silog.LevelDebug)
		return w, func(err error) error {
			flush()
			return err
		}
	}

	// Otherwise, buffer it all in-memory to put into the error.
	var buf bytes.Buffer
	return &buf, func(err error) error {
		out := bytes.TrimSpace(buf.Bytes())
		if err == nil || len(out) == 0 {
			return err
		}

		return errors.Join(err, fmt.Errorf("%s:\n%s", label, out))
	}
}
