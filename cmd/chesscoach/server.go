package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/chesscoach/internal/api"
	"github.com/kalambet/chesscoach/internal/config"
	"github.com/kalambet/chesscoach/internal/session"
	"github.com/kalambet/chesscoach/internal/storage"
	"github.com/kalambet/chesscoach/internal/watch"
)

const sessionTTL = 12 * time.Hour

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the browser UI and watch pending runs (foreground)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		origins, _ := cmd.Flags().GetStringSlice("cors-origin")
		return runServer(cmd.Context(), origins)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a running chesscoach server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Expose the coach as MCP tools over stdio",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		s := api.NewMCPServer(api.MCPDeps{
			Service:  e.client,
			History:  e.store,
			Recorder: session.NewStoreRecorder(e.store),
		}, version)

		slog.Info("MCP server started (stdio transport)", "service", e.cfg.BaseURL())
		err = server.NewStdioServer(s).Listen(cmd.Context(), os.Stdin, os.Stdout)
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("MCP stdio server: %w", err)
		}
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show service reachability and local state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().StringSlice("cors-origin", nil, "origins allowed to read /state.json (repeatable)")
	rootCmd.AddCommand(stopCmd)
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "chesscoach.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func localURL(cfg config.Config) string {
	return fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
}

// serverRunning reports whether something answers /health on the UI port.
func serverRunning(cfg config.Config) bool {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(localURL(cfg) + "/health")
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func runServer(ctx context.Context, origins []string) error {
	fmt.Fprintf(os.Stderr, "chesscoach version %s\n", version)

	e, err := newEnv()
	if err != nil {
		return err
	}
	defer e.Close()
	cfg := e.cfg

	pidPath := pidFilePath(cfg.Storage.DataDir)
	if serverRunning(cfg) {
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer os.Remove(pidPath)

	if !e.client.Ping(ctx) {
		printWarning("analysis service at %s is not reachable; requests will fail until it is", cfg.BaseURL())
	}

	registry := session.NewRegistry(e.client, session.NewStoreRecorder(e.store), sessionTTL)
	handler := api.NewUIHandler(api.UIDeps{
		Sessions:       registry,
		History:        e.store,
		AllowedOrigins: origins,
		Logger:         slog.Default(),
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	watcher := watch.NewWatcher(e.store, e.client, cfg.WatchInterval(), cfg.Watch.MaxAttempts)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		watcher.Run(gCtx)
		return nil
	})
	g.Go(func() error {
		printSuccess("Listening on %s", localURL(cfg))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func stopServer() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("chesscoach is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("finding process %d: %w", pid, err)
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		os.Remove(pidPath)
		return fmt.Errorf("stopping chesscoach (PID %d): %w", pid, err)
	}

	printSuccess("Sent stop signal to chesscoach (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	e, err := newEnv()
	if err != nil {
		// Still show partial status even if config or storage fails.
		printError("%v", err)
		return nil
	}
	defer e.Close()
	cfg := e.cfg

	if e.client.Ping(ctx) {
		printStatus("Service", "reachable at %s", cfg.BaseURL())
	} else {
		printStatus("Service", "not reachable at %s", cfg.BaseURL())
	}

	if serverRunning(cfg) {
		printStatus("UI", "running on %s", localURL(cfg))
	} else {
		printStatus("UI", "stopped")
	}

	runs, err := e.store.ListRuns(100)
	if err == nil {
		pending := 0
		for _, r := range runs {
			if r.Status == storage.RunPending {
				pending++
			}
		}
		printStatus("Runs", "%s recorded, %d pending", countLabel(len(runs), 100), pending)
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	printStatus("Config", "%s", config.ConfigFilePath())
	return nil
}

func countLabel(count, limit int) string {
	if count >= limit {
		return fmt.Sprintf("%d+", count)
	}
	return fmt.Sprintf("%d", count)
}
