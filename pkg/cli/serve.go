package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/m-mizutani/bookworm/pkg/server"
	"github.com/m-mizutani/bookworm/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

func serveCommand() *cli.Command {
	var (
		cfg             config
		addr            string
		port            int64
		questionRate    float64
		questionBurst   int64
		shutdownTimeout time.Duration
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "Listen address",
			Value:       "0.0.0.0",
			Sources:     cli.EnvVars("BOOKWORM_ADDR"),
			Destination: &addr,
		},
		&cli.IntFlag{
			Name:        "port",
			Usage:       "Listen port",
			Value:       8080,
			Sources:     cli.EnvVars("PORT"),
			Destination: &port,
		},
		&cli.FloatFlag{
			Name:        "question-rate",
			Usage:       "Questions accepted per second, 0 for no limit",
			Sources:     cli.EnvVars("BOOKWORM_QUESTION_RATE"),
			Destination: &questionRate,
		},
		&cli.IntFlag{
			Name:        "question-burst",
			Usage:       "Questions accepted at once when rate limited",
			Value:       1,
			Sources:     cli.EnvVars("BOOKWORM_QUESTION_BURST"),
			Destination: &questionBurst,
		},
		&cli.DurationFlag{
			Name:        "shutdown-timeout",
			Usage:       "Time to wait for in-flight questions on shutdown",
			Value:       30 * time.Second,
			Sources:     cli.EnvVars("BOOKWORM_SHUTDOWN_TIMEOUT"),
			Destination: &shutdownTimeout,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, cloudFlags(&cfg)...)

	return &cli.Command{
		Name:  "serve",
		Usage: "Run the web interface",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, err := cfg.setupLogger(ctx)
			if err != nil {
				return err
			}
			logger := logging.From(ctx)

			uc, closer, err := cfg.newPipeline(ctx)
			if err != nil {
				return err
			}
			defer closer()

			gin.SetMode(gin.ReleaseMode)
			srv := server.New(uc,
				server.WithLogger(logger),
				server.WithQuestionLimit(questionRate, int(questionBurst)),
			)

			httpServer := &http.Server{
				Addr:              net.JoinHostPort(addr, strconv.FormatInt(port, 10)),
				Handler:           srv,
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			eg, ctx := errgroup.WithContext(ctx)
			eg.Go(func() error {
				logger.Info("starting server", "addr", httpServer.Addr)
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return goerr.Wrap(err, "failed to serve", goerr.V("addr", httpServer.Addr))
				}
				return nil
			})
			eg.Go(func() error {
				<-ctx.Done()
				logger.Info("shutting down server")

				shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
				defer cancel()
				if err := httpServer.Shutdown(shutdownCtx); err != nil {
					return goerr.Wrap(err, "failed to shutdown server")
				}
				return nil
			})

			return eg.Wait()
		},
	}
}
