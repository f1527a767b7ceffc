package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/typescript-language-server/tsla/internal/version"
)

func versionCommand() *cli.Command {
	return &cli.Command{
		Name: "version",
		Usage: "Print the adapter's version",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "print version information as JSON"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Bool("json") {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", " ")
				return enc.Encode(version.GetInfo())
			}
			fmt.Printf("tsla version %s\n", version.Version())
			return nil
		},
	}
}
