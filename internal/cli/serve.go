package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/qqqlq/itf-ensyu/pkg/integrations/posters"
	"github.com/qqqlq/itf-ensyu/pkg/server"
)

const shutdownTimeout = 5 * time.Second

// serveCommand creates the serve command.
func (c *CLI) serveCommand() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve every board variant over a JSON HTTP API",
		Long: `Mount one board per configured variant and serve them over HTTP until
interrupted. Boards load in the background; requests against a board that
has not loaded yet are answered with 409 Conflict.`,
		Example: `  posterboard serve --listen :8080
  curl localhost:8080/boards/second
  curl -X POST localhost:8080/boards/second/tags/art/toggle`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if listen != "" {
				c.config().Listen = listen
			}
			return c.serve(cmd.Context())
		},
	}

	cmd.Flags().StringVarP(&listen, "listen", "l", "", "listen address (default from config, :8080)")

	return cmd
}

func (c *CLI) serve(ctx context.Context) error {
	logger := loggerFromContext(ctx)
	cfg := c.config()

	cc, err := c.newCache(ctx)
	if err != nil {
		return err
	}
	defer cc.Close()

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	g, gctx := errgroup.WithContext(runCtx)

	boards := make([]server.Board, 0, len(cfg.Variants))
	for _, v := range cfg.Variants {
		client := posters.NewClient(cfg.Origin, v.Path, cc, cfg.Cache.TTL)
		s := c.newScreen(v, c.catalogSource(client))
		g.Go(func() error {
			if err := s.Run(gctx); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
		boards = append(boards, server.Board{Name: v.Name, Route: v.Route, Screen: s, Images: client})
	}
	for _, b := range boards {
		if err := b.Screen.Mount(gctx); err != nil {
			stop()
			_ = g.Wait()
			return err
		}
	}

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           server.New(boards, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		printInfo("Serving %d boards", len(boards))
		printLink("Listening", "http://"+displayAddr(cfg.Listen))
		printNextStep("Try", "curl http://"+displayAddr(cfg.Listen)+"/variants")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// displayAddr turns ":8080" into "localhost:8080".
func displayAddr(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "localhost" + addr
	}
	return addr
}
