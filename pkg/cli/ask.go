package cli

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/m-mizutani/bookworm/pkg/service/inference"
	"github.com/m-mizutani/bookworm/pkg/usecase/pipeline"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func askCommand() *cli.Command {
	var (
		cfg         config
		contentType string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "content-type",
			Usage:       "Media type of the recording (guessed from the extension when empty)",
			Sources:     cli.EnvVars("BOOKWORM_CONTENT_TYPE"),
			Destination: &contentType,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, cloudFlags(&cfg)...)

	return &cli.Command{
		Name:      "ask",
		Usage:     "Answer a recorded question about the current book",
		ArgsUsage: "<audio-file>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() == 0 {
				return goerr.New("audio file is required")
			}
			audioPath := c.Args().Get(0)
			ctx, err := cfg.setupLogger(ctx)
			if err != nil {
				return err
			}

			f, err := os.Open(audioPath)
			if err != nil {
				return goerr.Wrap(err, "failed to open audio file", goerr.V("path", audioPath))
			}
			defer f.Close()

			if contentType == "" {
				contentType = audioTypeByExtension(audioPath)
			}

			uc, closer, err := cfg.newPipeline(ctx)
			if err != nil {
				return err
			}
			defer closer()

			result, err := uc.Ask(ctx, &pipeline.AskInput{
				Audio:       f,
				Filename:    filepath.Base(audioPath),
				ContentType: contentType,
			})
			if result != nil && result.Session != nil {
				fmt.Fprintf(c.Root().Writer, "%s\n", result.Session.Answer)
				fmt.Fprintf(c.Root().Writer, "text:  %s\n", filepath.Join(cfg.resultDir, result.Session.TextFile))
				if result.Session.AudioFile != "" {
					fmt.Fprintf(c.Root().Writer, "audio: %s\n", filepath.Join(cfg.resultDir, result.Session.AudioFile))
				}
			}
			if err != nil {
				return goerr.Wrap(err, "failed to answer question")
			}
			return nil
		},
	}
}

// audioTypeByExtension guesses the media type of a recording. System MIME tables map
// .webm to video/webm, so anything that is not audio/* falls back to the default.
func audioTypeByExtension(path string) string {
	ct := mime.TypeByExtension(filepath.Ext(path))
	if !strings.HasPrefix(ct, "audio/") {
		return inference.DefaultMIMEType
	}
	return ct
}
