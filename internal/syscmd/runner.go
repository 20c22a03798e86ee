package syscmd

import (
	"bytes"
	"context"
	"errors"
	"log"
	"os/exec"
	"strings"
	"time"
)

// Result is the outcome of one external command. A timed-out command is
// reported as Code -1 with a "command timed out" stderr, not as a crash.
type Result struct {
	Code   int
	Stdout string
	Stderr string
}

// OK reports whether the command exited zero.
func (r Result) OK() bool { return r.Code == 0 }

// Runner executes external commands with bounded timeouts and optional
// privilege elevation through the session credential store.
type Runner struct {
	creds  *Credentials
	logger *log.Logger
}

// NewRunner creates a Runner. creds may be nil when privileged execution is
// never needed.
func NewRunner(creds *Credentials, logger *log.Logger) *Runner {
	return &Runner{creds: creds, logger: logger}
}

// Credentials exposes the session credential store backing this runner.
func (r *Runner) Credentials() *Credentials { return r.creds }

// Run executes a command and waits up to timeout for it to finish.
func (r *Runner) Run(ctx context.Context, timeout time.Duration, name string, args ...string) Result {
	return r.run(ctx, timeout, nil, name, args...)
}

// RunPrivileged executes a command under sudo. With a stored credential it
// uses sudo -S and pipes the password on stdin; otherwise it relies on cached
// sudo credentials via sudo -n.
func (r *Runner) RunPrivileged(ctx context.Context, timeout time.Duration, name string, args ...string) Result {
	full := append([]string{name}, args...)
	if r.creds != nil {
		if password, ok := r.creds.Get(); ok {
			stdin := []byte(password + "\n")
			return r.run(ctx, timeout, stdin, "sudo", append([]string{"-S"}, full...)...)
		}
	}
	return r.run(ctx, timeout, nil, "sudo", append([]string{"-n"}, full...)...)
}

// ValidateCredential checks a password against sudo -S -v without storing it.
func (r *Runner) ValidateCredential(ctx context.Context, password string) bool {
	res := r.run(ctx, 15*time.Second, []byte(password+"\n"), "sudo", "-S", "-v")
	return res.OK()
}

// SudoCached reports whether sudo credentials are already cached for this
// process (sudo -n true succeeds).
func (r *Runner) SudoCached(ctx context.Context) bool {
	return r.run(ctx, 10*time.Second, nil, "sudo", "-n", "true").OK()
}

func (r *Runner) run(ctx context.Context, timeout time.Duration, stdin []byte, name string, args ...string) Result {
	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, name, args...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if errors.Is(cmdCtx.Err(), context.DeadlineExceeded) {
		if r.logger != nil {
			r.logger.Printf("[Runner] %s timed out after %v", name, timeout)
		}
		return Result{Code: -1, Stderr: "command timed out"}
	}

	res := Result{
		Stdout: strings.TrimSpace(stdout.String()),
		Stderr: strings.TrimSpace(stderr.String()),
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.Code = exitErr.ExitCode()
		} else {
			// Spawn failure (binary missing, not executable).
			res.Code = -1
			if res.Stderr == "" {
				res.Stderr = err.Error()
			}
		}
	}
	return res
}
