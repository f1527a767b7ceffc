package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/urfave/cli/v3"

	"github.com/typescript-language-server/tsla/internal/diagnostics"
	"github.com/typescript-language-server/tsla/internal/logging"
	"github.com/typescript-language-server/tsla/internal/lspserver"
	"github.com/typescript-language-server/tsla/internal/tssession"
)

// logLevelNames maps the numeric --log-level scale to logrus level names.
var logLevelNames = map[int64]string{1: "error", 2: "warn", 3: "info", 4: "debug"}

func lspCommand() *cli.Command {
	return &cli.Command{
		Name: "lsp",
		Usage: "Start the Language Server Protocol server",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name: "stdio",
				Usage: "Use stdin/stdout for the LSP connection (required)",
				Required: true,
			},
			&cli.IntFlag{
				Name: "log-level",
				Usage: "1=error, 2=warn, 3=info, 4=debug",
				Value: 3,
			},
			// --log-level is also accepted as --loglevel; expose both and
			// warn if they disagree.
			&cli.IntFlag{
				Name: "loglevel",
				Usage: "alias of --log-level, kept for backward compatibility",
				Value: 3,
			},
			&cli.StringFlag{Name: "tsserver-log-file", Usage: "path tsserver should append its own --logFile to"},
			&cli.StringFlag{Name: "tsserver-log-verbosity", Value: "normal", Usage: "terse|normal|verbose, forwarded to tsserver as --logVerbosity"},
			&cli.StringFlag{Name: "tsserver-path", Usage: "path to a user-installed tsserver.js; overrides workspace/bundled resolution"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if !cmd.Bool("stdio") {
				fmt.Fprintln(os.Stderr, "tsla: only --stdio transport is supported")
				return cli.Exit("", ExitConfigError)
			}

			level := resolveLogLevel(cmd)
			log, crashTail := logging.New(logging.Options{Level: level})

			// sess's onDiagnostic/onNotify callbacks need to call back into
			// srv, but srv needs sess to exist first. srv is only ever
			// dereferenced once Session.Start runs, which happens inside
			// srv.Initialize, long after both are assigned below.
			var srv *lspserver.Server
			sess := tssession.New(log, tssession.Options{
				UserTsServerPath: cmd.String("tsserver-path"),
				LogFile: cmd.String("tsserver-log-file"),
				LogVerbosity: cmd.String("tsserver-log-verbosity"),
			},
				func(uri string, diags []diagnostics.Diagnostic) { srv.PublishDiagnostics(uri, diags) },
				func(method string, params any) { srv.Notify(method, params) },
			)

			srv = lspserver.New(log, sess, os.Stdin, os.Stdout)
			srv.Run()

			if err := sess.Shutdown(ctx); err != nil {
				log.WithError(crashTail.WrapFatal(err)).Error("tsla: tsserver shutdown error")
				return cli.Exit("", ExitCrashLoop)
			}
			return nil
		},
	}
}

// resolveLogLevel prefers whichever flag the user actually set, and warns
// if both are set and disagree.
func resolveLogLevel(cmd *cli.Command) string {
	primarySet := cmd.IsSet("log-level")
	aliasSet := cmd.IsSet("loglevel")
	primary := cmd.Int("log-level")
	alias := cmd.Int("loglevel")

	if primarySet && aliasSet && primary != alias {
		fmt.Fprintf(os.Stderr, "tsla: --log-level=%d and --loglevel=%d disagree; using --log-level\n", primary, alias)
	}

	level := primary
	if !primarySet && aliasSet {
		level = alias
	}
	name, ok := logLevelNames[level]
	if !ok {
		fmt.Fprintf(os.Stderr, "tsla: --log-level must be 1-4, got %s; defaulting to info\n", strconv.FormatInt(level, 10))
		return "info"
	}
	return name
}
