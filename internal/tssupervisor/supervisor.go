// Package tssupervisor spawns tsserver, routes its stdio/IPC pipes, watches
// for exit, and enforces the bounded crash-restart policy.
package tssupervisor

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/armon/circbuf"
	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"

	"github.com/typescript-language-server/tsla/internal/tsversion"
)

// crash-policy thresholds
const (
	fatalWindow = 10 * time.Second
	fatalThreshold = 5
	warnWindow = 5 * time.Minute
	warnThreshold = 5
	stderrTailBytes = 8 << 10
)

// Options configures how tsserver is spawned.
type Options struct {
	NodePath string // path to the node binary
	ServerPath string // resolved tsserver.js, from tsversion.Resolver
	Version tsversion.ApiVersion
	UseNodeIPC bool
	DisableAutomaticTypingAcquisition bool
	CancellationPipeName string
	LogFile string
	LogVerbosity string // terse|normal|verbose
	Locale string
	GlobalPlugins []string
	PluginProbeLocations []string
	NpmLocation string
	MaxOldSpaceSizeMB int
	BundledLibRoot string // patched onto NODE_PATH
}

// Args builds the tsserver.js argv
func (o Options) Args() []string {
	args := []string{o.ServerPath}
	if o.Version.AtLeast(tsversion.MinInferredProjectArg) {
		args = append(args, "--useInferredProjectPerProjectRoot")
	}
	if o.DisableAutomaticTypingAcquisition {
		args = append(args, "--disableAutomaticTypingAcquisition")
	}
	if o.CancellationPipeName != "" {
		args = append(args, "--cancellationPipeName", o.CancellationPipeName+"*")
	}
	if o.LogFile != "" {
		args = append(args, "--logFile", o.LogFile)
	}
	if o.LogVerbosity != "" {
		args = append(args, "--logVerbosity", o.LogVerbosity)
	}
	if o.Locale != "" {
		args = append(args, "--locale", o.Locale)
	}
	for _, p := range o.GlobalPlugins {
		args = append(args, "--globalPlugins", p)
	}
	for _, p := range o.PluginProbeLocations {
		args = append(args, "--pluginProbeLocations", p)
	}
	if o.NpmLocation != "" {
		args = append(args, "--npmLocation", o.NpmLocation)
	}
	if o.UseNodeIPC && o.Version.AtLeast(tsversion.MinNodeIpcFlag) {
		args = append(args, "--useNodeIpc")
	}
	return args
}

// nodeArgs builds the arguments passed to the node interpreter itself,
// before tsserver.js's own flags.
func (o Options) nodeArgs() []string {
	var node []string
	if o.MaxOldSpaceSizeMB > 0 {
		node = append(node, fmt.Sprintf("--max-old-space-size=%d", o.MaxOldSpaceSizeMB))
	}
	return node
}

// Process is one live tsserver child.
type Process struct {
	cmd *exec.Cmd
	Stdin io.WriteCloser
	Stdout io.ReadCloser
	StderrTail *circbuf.Buffer

	exited chan struct{}
	exitErr error
}

// Wait blocks until the process exits and returns its exit error, if any.
func (p *Process) Wait() error {
	<-p.exited
	return p.exitErr
}

// Done returns a channel that is closed once the process has exited.
func (p *Process) Done() <-chan struct{} { return p.exited }

// Pid returns the OS process id, used to build the per-process cancellation
// pipe filename tsserver expects (--cancellationPipeName<pid>).
func (p *Process) Pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func spawn(ctx context.Context, opts Options) (*Process, error) {
	node := opts.NodePath
	if node == "" {
		node = "node"
	}
	nodeArgs := append(opts.nodeArgs(), opts.Args()...)
	cmd := exec.CommandContext(ctx, node, nodeArgs...)

	env := os.Environ()
	if opts.BundledLibRoot != "" {
		env = append(env, "NODE_PATH="+opts.BundledLibRoot)
	}
	if v := os.Getenv("TSS_DEBUG"); v != "" {
		env = append(env, "TSS_DEBUG="+v)
	}
	if v := os.Getenv("TSS_DEBUG_BRK"); v != "" {
		env = append(env, "TSS_DEBUG_BRK="+v)
	}
	cmd.Env = env

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("tssupervisor: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("tssupervisor: stdout pipe: %w", err)
	}
	tail, err := circbuf.NewBuffer(stderrTailBytes)
	if err != nil {
		return nil, fmt.Errorf("tssupervisor: allocating stderr tail buffer: %w", err)
	}
	cmd.Stderr = tail

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("tssupervisor: starting tsserver: %w", err)
	}

	p := &Process{
		cmd: cmd,
		Stdin: stdin,
		Stdout: stdout,
		StderrTail: tail,
		exited: make(chan struct{}),
	}
	go func() {
		p.exitErr = cmd.Wait()
		close(p.exited)
	}()
	return p, nil
}

// Terminate sends SIGTERM, the graceful-shutdown step before Kill.
func (p *Process) Terminate() error {
	if p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Signal(syscall.SIGTERM)
}

// Kill forcibly ends the process, used when SIGTERM doesn't land in time.
func (p *Process) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Kill()
}

// crashWindow is a moving record of recent (non-intentional) restarts used
// to evaluate the fatal/warn restart thresholds.
type crashWindow struct {
	mu sync.Mutex
	times []time.Time
}

func (c *crashWindow) record(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.times = append(c.times, now)
}

func (c *crashWindow) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.times = nil
}

// countSince returns how many recorded crashes fall within window of now.
func (c *crashWindow) countSince(now time.Time, window time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.times {
		if now.Sub(t) <= window {
			n++
		}
	}
	return n
}

// Verdict is returned by Supervisor.OnExit to tell the caller what to do
// about an unintentional tsserver exit.
type Verdict int

const (
	VerdictRestart Verdict = iota
	VerdictWarnAndRestart
	VerdictFatal
)

// Supervisor owns the restart policy and the backoff delay between spawn
// attempts; it does not itself own the transport, which is the caller's
// (TsServerClient's) job once a Process is handed back.
type Supervisor struct {
	log logrus.FieldLogger
	window crashWindow
	curve *backoff.ExponentialBackOff
	attempt int
	attemptMu sync.Mutex
}

// NewSupervisor builds a Supervisor using an exponential backoff curve for
// the delay between unintentional restarts; the crash-loop fatal/warn
// counters themselves are bespoke windowed bookkeeping, not something a
// generic backoff library models. The curve's fields (not its Retry driver,
// which assumes a single blocking call site) shape the per-attempt delay,
// since spawning the next process is driven by the caller's own event loop
// rather than by backoff.Retry itself.
func NewSupervisor(log logrus.FieldLogger) *Supervisor {
	curve := backoff.NewExponentialBackOff()
	curve.InitialInterval = 50 * time.Millisecond
	curve.MaxInterval = 2 * time.Second
	curve.Multiplier = 2.0
	return &Supervisor{log: log, curve: curve}
}

// Spawn starts a new tsserver process.
func (s *Supervisor) Spawn(ctx context.Context, opts Options) (*Process, error) {
	return spawn(ctx, opts)
}

// NoteIntentionalRestart resets the crash-window counter; call it before an
// intentional restart (a configuration change or plugin change) so it isn't
// counted against the unintentional-crash thresholds.
func (s *Supervisor) NoteIntentionalRestart() {
	s.window.reset()
	s.attemptMu.Lock()
	s.attempt = 0
	s.attemptMu.Unlock()
}

// OnExit records an unintentional exit at the given time and returns the
// verdict the caller should act on.
func (s *Supervisor) OnExit(now time.Time) Verdict {
	s.window.record(now)
	if s.window.countSince(now, fatalWindow) >= fatalThreshold {
		return VerdictFatal
	}
	if s.window.countSince(now, warnWindow) >= warnThreshold {
		return VerdictWarnAndRestart
	}
	return VerdictRestart
}

// NextDelay returns how long to wait before the next spawn attempt,
// doubling each time up to the curve's MaxInterval.
func (s *Supervisor) NextDelay() time.Duration {
	s.attemptMu.Lock()
	defer s.attemptMu.Unlock()
	d := time.Duration(float64(s.curve.InitialInterval) * pow(s.curve.Multiplier, s.attempt))
	if d > s.curve.MaxInterval {
		d = s.curve.MaxInterval
	}
	s.attempt++
	return d
}

func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}
