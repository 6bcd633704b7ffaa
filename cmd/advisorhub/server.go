package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/advisorhub/internal/advisor"
	"github.com/kalambet/advisorhub/internal/api"
	"github.com/kalambet/advisorhub/internal/config"
	"github.com/kalambet/advisorhub/internal/contactlog"
	"github.com/kalambet/advisorhub/internal/logging"
	"github.com/kalambet/advisorhub/internal/metrics"
	"github.com/kalambet/advisorhub/internal/portfolio"
	"github.com/kalambet/advisorhub/internal/storage"
)

// csvLogFile is the contact log file name inside the data directory.
const csvLogFile = "contact_log.csv"

// maxConns caps concurrent API connections.
const maxConns = 64

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the advisorhub server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		return runServer(withMCP)
	},
}

func init() {
	startCmd.Flags().Bool("mcp", true, "serve MCP tools over stdin/stdout")
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running advisorhub server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show advisorhub server status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "advisorhub.pid")
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

func removePIDFile(path string) {
	os.Remove(path)
}

// openStore opens the contact log backend named in cfg, instrumented for metrics.
func openStore(cfg config.Config, logger *zap.Logger) (contactlog.Store, error) {
	var (
		store contactlog.Store
		err   error
	)
	switch cfg.Storage.Backend {
	case config.BackendMemory:
		store = contactlog.NewMemoryStore()
	case config.BackendCSV:
		store, err = contactlog.OpenCSV(filepath.Join(cfg.Storage.DataDir, csvLogFile), logger)
	case config.BackendSQLite:
		store, err = storage.Open(cfg.Storage.DataDir, logger)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
	if err != nil {
		return nil, err
	}
	return metrics.Instrument(store, cfg.Storage.Backend), nil
}

func runServer(withMCP bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log.Level)
	if err != nil {
		return err
	}
	defer logger.Sync()
	logger.Info("starting", zap.String("version", version), zap.String("backend", cfg.Storage.Backend))

	// Ensure API token exists in platform secret store.
	apiToken, err := cfg.APIToken(config.NewKeychain())
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	logger.Info("API bearer token available")

	// The contact log has a single owning process: refuse to start twice.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("advisorhub is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("advisorhub is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	catalog, err := portfolio.Load()
	if err != nil {
		return fmt.Errorf("loading portfolio: %w", err)
	}
	metrics.RecordPortfolio(catalog.Summary())

	store, err := openStore(cfg, logger)
	if err != nil {
		return fmt.Errorf("opening contact log: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("closing contact log", zap.Error(err))
		}
	}()

	svc := advisor.NewService(catalog, store, logger)

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.NewAppHandler(api.AppDeps{Service: svc, Token: apiToken, Logger: logger}),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("listening", zap.String("addr", addr))
		if err := srv.Serve(netutil.LimitListener(ln, maxConns)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if withMCP {
		mcpSrv := api.NewMCPServer(api.MCPDeps{
			Service:        svc,
			Logger:         logger,
			DefaultAdvisor: cfg.Advisor.Name,
		}, version)
		stdioSrv := server.NewStdioServer(mcpSrv)
		g.Go(func() error {
			// A closed stdin ends the MCP session, not the HTTP server.
			if err := stdioSrv.Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("MCP stdio server stopped", zap.Error(err))
			}
			return nil
		})
		logger.Info("MCP server started (stdio transport)")
	}

	return g.Wait()
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("advisorhub is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop advisorhub (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to advisorhub (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	running := false
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			running = true
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Backend", "%s", cfg.Storage.Backend)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	if cfg.Advisor.Name != "" {
		printStatus("Advisor", "%s", cfg.Advisor.Name)
	} else {
		printStatus("Advisor", "not set (ADVISORHUB_ADVISOR)")
	}

	if running {
		if tok, err := cfg.APIToken(config.NewKeychain()); err == nil {
			c := &apiClient{baseURL: serverURL, token: tok, httpClient: client}
			if n, err := countMerchants(context.Background(), c); err == nil {
				printStatus("Merchants", "%d", n)
			}
		}
	}
	return nil
}

func countMerchants(ctx context.Context, c *apiClient) (int, error) {
	resp, err := c.get(ctx, "/merchants")
	if err != nil {
		return 0, err
	}
	var list api.MerchantList
	if err := decodeJSON(resp, &list); err != nil {
		return 0, err
	}
	return len(list.Merchants), nil
}
