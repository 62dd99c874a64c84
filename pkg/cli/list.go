package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/bookworm/pkg/usecase/pipeline"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func listCommand() *cli.Command {
	var (
		cfg config
		all bool
	)

	flags := []cli.Flag{
		&cli.BoolFlag{
			Name:        "all",
			Aliases:     []string{"a"},
			Usage:       "Include answers whose audio could not be generated",
			Sources:     cli.EnvVars("BOOKWORM_LIST_ALL"),
			Destination: &all,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "list",
		Usage: "List answered questions, newest first",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, err := cfg.setupLogger(ctx)
			if err != nil {
				return err
			}

			uc, err := cfg.newLocalPipeline(ctx)
			if err != nil {
				return err
			}

			sessions, err := uc.ListSessions(ctx, pipeline.ListOptions{IncludePartial: all})
			if err != nil {
				return goerr.Wrap(err, "failed to list sessions")
			}

			for _, s := range sessions {
				audio := s.AudioFile
				if s.Partial() {
					audio = "(no audio)"
				}
				fmt.Fprintf(c.Root().Writer, "%s\t%s\t%s\n", s.ID, audio, s.Answer)
			}
			return nil
		},
	}
}
