package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/m-mizutani/bookworm/pkg/service/document"
	"github.com/m-mizutani/bookworm/pkg/usecase/pipeline"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func extractCommand() *cli.Command {
	var (
		cfg  config
		save bool
	)

	flags := []cli.Flag{
		&cli.BoolFlag{
			Name:        "save",
			Aliases:     []string{"s"},
			Usage:       "Make the document the current book instead of printing its text",
			Destination: &save,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:      "extract",
		Usage:     "Extract the text of a PDF book",
		ArgsUsage: "<pdf-file>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() == 0 {
				return goerr.New("document file is required")
			}
			docPath := c.Args().Get(0)
			ctx, err := cfg.setupLogger(ctx)
			if err != nil {
				return err
			}

			if !save {
				text, err := document.NewExtractor().Extract(ctx, docPath)
				if err != nil {
					return goerr.Wrap(err, "failed to extract document")
				}
				fmt.Fprintf(c.Root().Writer, "%s\n", text)
				return nil
			}

			f, err := os.Open(docPath)
			if err != nil {
				return goerr.Wrap(err, "failed to open document", goerr.V("path", docPath))
			}
			defer f.Close()

			uc, err := cfg.newLocalPipeline(ctx)
			if err != nil {
				return err
			}

			result, err := uc.UploadDocument(ctx, &pipeline.DocumentInput{
				Document: f,
				Filename: filepath.Base(docPath),
			})
			if err != nil {
				return goerr.Wrap(err, "failed to save document")
			}

			fmt.Fprintf(c.Root().Writer, "Book saved: %s (%d characters", result.Path, result.Characters)
			if result.Truncated {
				fmt.Fprintf(c.Root().Writer, ", truncated to %d", uc.ContextStatus().Characters)
			}
			fmt.Fprintf(c.Root().Writer, ")\n")
			return nil
		},
	}
}
