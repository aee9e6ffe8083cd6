package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/itish2003/docchat/controller"
	"github.com/itish2003/docchat/models"
)

func main() {
	var cfgPath string
	root := &cobra.Command{
		Use:           "docchat",
		Short:         "Chat with your documents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config.yaml)")
	root.AddCommand(serveCMD(&cfgPath), ingestCMD(&cfgPath), rebuildCMD(&cfgPath))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "docchat:", err)
		os.Exit(1)
	}
}

func serveCMD(cfgPath *string) *cobra.Command {
	var addr string
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP chat API",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), *cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()
			if addr != "" {
				a.cfg.Server.Address = addr
			}
			return a.serve()
		},
	}
	serve.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.address)")
	return serve
}

func ingestCMD(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest [dir]",
		Short: "Index every supported file in a directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), *cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()
			results, err := a.indexing.IngestDirectory(cmd.Context(), a.dirArg(args))
			printResults(cmd, results)
			return err
		},
	}
}

func rebuildCMD(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild-index [dir]",
		Short: "Drop the index and re-ingest a directory",
		Long:  "Drop the index and re-ingest a directory. Use it after changing the embedding model.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), *cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()
			results, err := a.indexing.RebuildIndex(cmd.Context(), a.dirArg(args))
			printResults(cmd, results)
			return err
		},
	}
}

func printResults(cmd *cobra.Command, results []models.UploadResult) {
	for _, r := range results {
		line := fmt.Sprintf("%-8s %s (%d chunks)", r.Status, r.Filename, r.Chunks)
		if r.Message != "" {
			line += ": " + r.Message
		}
		cmd.Println(line)
	}
}

func (a *app) dirArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return a.cfg.Docs.Dir
}

func (a *app) serve() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if a.cfg.Watch.Enabled {
		go func() {
			if err := a.indexing.WatchDirectory(ctx, a.archive.DocsDir); err != nil {
				a.log.Error("Folder watcher stopped", slog.Any("error", err))
			}
		}()
	}

	router := controller.NewRouter(controller.NewRAGController(a.rag, a.indexing, a.archive.DocsDir, a.log))
	server := &http.Server{
		Addr:              a.cfg.Server.Address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("Server starting", slog.String("addr", server.Addr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	a.log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
