// Package tssession wires TransportCodec, RequestQueue, ProcessSupervisor,
// DocumentMirror, DiagnosticsScheduler and ConfigurationManager into the
// single running Session an LspFacade drives.
package tssession

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/typescript-language-server/tsla/internal/diagnostics"
	"github.com/typescript-language-server/tsla/internal/docsync"
	"github.com/typescript-language-server/tsla/internal/tsclient"
	"github.com/typescript-language-server/tsla/internal/tsconfig"
	"github.com/typescript-language-server/tsla/internal/tserr"
	"github.com/typescript-language-server/tsla/internal/tsproto"
	"github.com/typescript-language-server/tsla/internal/tssupervisor"
	"github.com/typescript-language-server/tsla/internal/tsversion"
)

// State is the session's tagged running-state variant.
type State int32

const (
	StateNone State = iota
	StateRunning
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "Running"
	case StateErrored:
		return "Errored"
	default:
		return "None"
	}
}

// Options configures a Session.
type Options struct {
	WorkspaceRoot string
	NodePath string
	UserTsServerPath string
	BundledTsServerPath string
	BundledVersion tsversion.ApiVersion
	UseSyntaxServer bool
	CancellationPipeBase string
	LogFile string
	LogVerbosity string
	IgnoredDiagnosticCodes []int
}

// Session owns one running tsserver process pair and every in-process
// concern layered on top of it.
type Session struct {
	log logrus.FieldLogger
	opts Options
	group *errgroup.Group
	cancel context.CancelFunc

	resolver *tsversion.Resolver
	supervisor *tssupervisor.Supervisor
	workspaceFolders []string

	mu sync.Mutex
	proc *tssupervisor.Process
	cancelFile *os.File

	client *tsclient.Client
	Mirror *docsync.Mirror
	Diagnostics *diagnostics.Scheduler
	Config *tsconfig.Manager

	state atomic.Int32
	version atomic.Pointer[tsversion.ApiVersion]

	onDiagnostic func(uri string, diags []diagnostics.Diagnostic)
	onNotify func(method string, params any)
}

// Version returns the currently resolved tsserver ApiVersion, used to gate
// min-version features such as inlay hints.
func (s *Session) Version() tsversion.ApiVersion {
	if v := s.version.Load(); v != nil {
		return *v
	}
	return tsversion.ApiVersion{}
}

// WorkspaceRoot returns the configured workspace root.
func (s *Session) WorkspaceRoot() string { return s.opts.WorkspaceRoot }

// ConfigManager exposes the running ConfigurationManager so lspserver can
// apply workspace/didChangeConfiguration payloads.
func (s *Session) ConfigManager() *tsconfig.Manager { return s.Config }

// OpenDocuments exposes the running DocumentMirror; nil until Start has
// completed.
func (s *Session) OpenDocuments() *docsync.Mirror { return s.Mirror }

// New builds a Session. onDiagnostic is invoked with each file's merged,
// translated diagnostics, ready for textDocument/publishDiagnostics.
// onNotify is invoked for adapter-initiated LSP notifications outside the
// diagnostics stream: `$/typescriptVersion` once at startup, and
// `window/showMessage` forwarding tsserver's install-types chatter.
func New(log logrus.FieldLogger, opts Options, onDiagnostic func(string, []diagnostics.Diagnostic), onNotify func(string, any)) *Session {
	return &Session{
		log: log,
		opts: opts,
		resolver: tsversion.NewResolver(log, opts.UserTsServerPath, opts.BundledTsServerPath, opts.BundledVersion),
		supervisor: tssupervisor.NewSupervisor(log),
		onDiagnostic: onDiagnostic,
		onNotify: onNotify,
	}
}

// State reports the current ServerState.
func (s *Session) State() State { return State(s.state.Load()) }

// Start resolves the TypeScript version, spawns tsserver, and starts the
// read/event-dispatch task in an errgroup; the geterr debounce runs on the
// diagnostics scheduler's own timer, outside the errgroup.
func (s *Session) Start(ctx context.Context, workspaceFolders []string) error {
	s.workspaceFolders = workspaceFolders
	cand, err := s.resolver.Resolve(ctx, workspaceFolders)
	if err != nil {
		return fmt.Errorf("tssession: resolving tsserver: %w", err)
	}
	s.log.WithField("source", cand.Source).WithField("version", cand.Version.String()).Info("tssession: resolved tsserver")

	groupCtx, cancel := context.WithCancel(ctx)
	g, groupCtx := errgroup.WithContext(groupCtx)
	s.group = g
	s.cancel = cancel

	if err := s.spawnAndWire(groupCtx, cand); err != nil {
		cancel()
		return err
	}

	s.Config, err = tsconfig.New(s.client, s.opts.WorkspaceRoot)
	if err != nil {
		cancel()
		return fmt.Errorf("tssession: building configuration manager: %w", err)
	}

	s.Mirror = docsync.NewMirror(s.client, func(d *docsync.Document) {
		s.Diagnostics.Enqueue(d.FilePath)
	}, func(uri string, remaining []*docsync.Document) {
		for _, d := range remaining {
			s.Diagnostics.Enqueue(d.FilePath)
		}
	})

	s.Diagnostics = diagnostics.New(s.log, s.client, s.Mirror, s.opts.IgnoredDiagnosticCodes, s.onDiagnostic)

	s.client.OnEvent(func(ev *tsproto.Event) {
		s.Diagnostics.HandleEvent(ev)
		s.forwardInstallTypesEvent(ev)
	})
	s.client.OnFatalError(func(err error) {
		s.log.WithError(err).Error("tssession: fatal transport error, restarting tsserver")
		s.state.Store(int32(StateErrored))
		_ = s.restart(groupCtx)
	})

	g.Go(func() error {
		err := s.client.ReadLoop(groupCtx, tsclient.ExecutionTargetSemantic)
		return s.handleReadLoopExit(groupCtx, err)
	})

	s.state.Store(int32(StateRunning))
	if err := s.Config.InitialConfigure(groupCtx); err != nil {
		return err
	}
	if s.onNotify != nil {
		s.onNotify("$/typescriptVersion", map[string]string{"version": cand.Version.String()})
	}
	return nil
}

// forwardInstallTypesEvent relays tsserver's automatic-typing-acquisition
// chatter as window/showMessage notifications: forwarding the chatter is in
// scope, building a prompt/dialog UX around it is not.
func (s *Session) forwardInstallTypesEvent(ev *tsproto.Event) {
	if s.onNotify == nil {
		return
	}
	switch ev.Event {
	case "beginInstallTypes":
		s.onNotify("window/showMessage", map[string]any{"type": 3, "message": "TypeScript: acquiring type definitions..."})
	case "endInstallTypes":
		s.onNotify("window/showMessage", map[string]any{"type": 3, "message": "TypeScript: finished acquiring type definitions."})
	}
}

// spawnAndWire starts the tsserver process(es) and builds the Client over
// their stdio pipes.
func (s *Session) spawnAndWire(ctx context.Context, cand tsversion.Candidate) error {
	cancellationPipe := ""
	if s.opts.CancellationPipeBase != "" {
		cancellationPipe = s.opts.CancellationPipeBase
	}
	opts := tssupervisor.Options{
		NodePath: s.opts.NodePath,
		ServerPath: cand.ServerPath,
		Version: cand.Version,
		CancellationPipeName: cancellationPipe,
		LogFile: s.opts.LogFile,
		LogVerbosity: s.opts.LogVerbosity,
	}
	proc, err := s.supervisor.Spawn(ctx, opts)
	if err != nil {
		return fmt.Errorf("tssession: spawning tsserver: %w", err)
	}

	s.mu.Lock()
	s.proc = proc
	s.mu.Unlock()
	v := cand.Version
	s.version.Store(&v)

	s.client = tsclient.New(s.log, tsproto.HeaderFramer(), proc.Stdout, proc.Stdin, nil, nil)

	if cancellationPipe != "" {
		if pid := proc.Pid(); pid > 0 {
			path := cancellationPipe + strconv.Itoa(pid)
			f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o600)
			if err == nil {
				s.mu.Lock()
				s.cancelFile = f
				s.mu.Unlock()
				s.client.SetCancellationPipe(f)
			} else {
				s.log.WithError(err).Warn("tssession: could not open cancellation pipe file")
			}
		}
	}
	return nil
}

// handleReadLoopExit decides crash policy, whether to
// restart tsserver after its stdio transport closes.
func (s *Session) handleReadLoopExit(ctx context.Context, readErr error) error {
	select {
	case <-ctx.Done():
		return nil
	default:
	}
	s.client.Shutdown("tsserver process exited")

	verdict := s.supervisor.OnExit(time.Now())
	switch verdict {
	case tssupervisor.VerdictFatal:
		s.state.Store(int32(StateErrored))
		return fmt.Errorf("tssession: tsserver crash-looped: %w", readErr)
	case tssupervisor.VerdictWarnAndRestart:
		s.log.Warn("tssession: tsserver has crashed repeatedly; restarting with backoff")
	}

	delay := s.supervisor.NextDelay()
	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return nil
	}
	return s.restart(ctx)
}

// restart spawns a fresh tsserver and rewires the Client in place, then
// replays the current configuration and re-opens every currently open
// document against the new process.
func (s *Session) restart(ctx context.Context) error {
	cand, err := s.resolver.Resolve(ctx, s.workspaceFolders)
	if err != nil {
		return fmt.Errorf("tssession: re-resolving tsserver on restart: %w", err)
	}
	if err := s.spawnAndWire(ctx, cand); err != nil {
		return err
	}
	s.client.OnEvent(func(ev *tsproto.Event) {
		s.Diagnostics.HandleEvent(ev)
		s.forwardInstallTypesEvent(ev)
	})
	s.client.OnFatalError(func(err error) {
		s.log.WithError(err).Error("tssession: fatal transport error, restarting tsserver")
		_ = s.restart(ctx)
	})

	s.state.Store(int32(StateRunning))
	if s.Config != nil {
		if err := s.Config.InitialConfigure(ctx); err != nil {
			s.log.WithError(err).Warn("tssession: failed to replay configuration after restart")
		}
	}
	if s.Mirror != nil {
		for _, d := range s.Mirror.OpenDocuments() {
			if err := s.Mirror.Reopen(ctx, d); err != nil {
				s.log.WithError(err).WithField("file", d.FilePath).Warn("tssession: failed to replay open document after restart")
			}
		}
	}

	s.group.Go(func() error {
		err := s.client.ReadLoop(ctx, tsclient.ExecutionTargetSemantic)
		return s.handleReadLoopExit(ctx, err)
	})
	return nil
}

// Execute delegates to the underlying TsServerClient.
func (s *Session) Execute(ctx context.Context, command string, args any, cfg tsclient.Config) tserr.Outcome {
	return s.client.Execute(ctx, command, args, cfg)
}

// ExecuteAsync delegates to the underlying TsServerClient.
func (s *Session) ExecuteAsync(ctx context.Context, command string, args any, cfg tsclient.Config) (tsproto.Seq, <-chan tserr.Outcome, error) {
	return s.client.ExecuteAsync(ctx, command, args, cfg)
}

// Notify delegates to the underlying TsServerClient.
func (s *Session) Notify(ctx context.Context, command string, args any) error {
	return s.client.Notify(ctx, command, args)
}

// Shutdown gracefully terminates tsserver and waits for every session task
// to finish SIGTERM-then-SIGKILL shutdown sequence.
func (s *Session) Shutdown(ctx context.Context) error {
	// cancel first so handleReadLoopExit sees ctx.Done() once tsserver's
	// stdio closes, instead of treating this as a crash to restart from.
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Lock()
	proc := s.proc
	cancelFile := s.cancelFile
	s.mu.Unlock()

	if s.client != nil {
		s.client.Shutdown("session shutdown")
	}
	if proc != nil {
		_ = proc.Terminate()
		select {
		case <-proc.Done():
		case <-time.After(2 * time.Second):
			_ = proc.Kill()
		}
	}
	if cancelFile != nil {
		_ = cancelFile.Close()
	}
	if s.resolver != nil {
		_ = s.resolver.Close()
	}
	if s.group != nil {
		_ = s.group.Wait()
	}
	return nil
}
