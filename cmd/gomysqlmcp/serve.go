package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	mysqlmcp "github.com/rickchristie/mysql-mcp"
	"github.com/rickchristie/mysql-mcp/internal/meta"
	"github.com/rickchristie/mysql-mcp/internal/sqldb"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(opts *cliOptions) *cobra.Command {
	var promptPassword bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the MCP server on HOST:PORT using the SSE transport.

Clients connect to /sse and post messages to /message. The server stops
gracefully on SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts.envFile, promptPassword)
		},
	}
	cmd.Flags().BoolVar(&promptPassword, "prompt-password", false, "read the MySQL password from the terminal instead of MYSQL_PASSWORD")
	return cmd
}

func runServe(ctx context.Context, envFile string, promptPassword bool) error {
	// 1. Load ServerConfig
	serverConfig, err := loadServerConfig(envFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// 2. Resolve password
	if promptPassword {
		password, err := readPassword(os.Stdin, os.Stderr, "MySQL password: ")
		if err != nil {
			return err
		}
		serverConfig.Connection.Password = password
	}

	// 3. Setup logger
	logger, closeLog, err := setupLogger(serverConfig.Logging)
	if err != nil {
		return err
	}
	defer closeLog()

	if isTTY(os.Stderr.Fd()) {
		printBanner(os.Stderr, true)
	}
	if serverConfig.Connection.Database == "" {
		logger.Warn().Msg("MYSQL_DATABASE is not set: statements must qualify table names with a database")
	}

	// 4. Open the pool and test the connection
	db, err := sqldb.OpenMySQL(serverConfig.Connection, serverConfig.Pool)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	logger.Info().
		Str("host", serverConfig.Connection.Host).
		Int("port", serverConfig.Connection.Port).
		Str("database", serverConfig.Connection.Database).
		Msg("testing database connection")
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout(serverConfig.Connection))
	err = db.Ping(pingCtx)
	cancel()
	if err != nil {
		logger.Error().Err(err).Msg("database connection test failed")
		return fmt.Errorf("database connection test failed: %w", err)
	}
	logger.Info().Msg("database connection test successful")

	// 5. Create the gate
	mysqlMcp := mysqlmcp.New(db, serverConfig.Config, logger)
	levels := mysqlMcp.AllowedRiskLevels()
	levelNames := make([]string, len(levels))
	for i, l := range levels {
		levelNames[i] = l.String()
	}
	logger.Info().
		Str("environment", string(mysqlMcp.Environment())).
		Strs("allowed_risk_levels", levelNames).
		Int("blocked_patterns", len(serverConfig.BlockedPatterns)).
		Msg("query policy loaded")

	// 6. Create MCP server with initialize lifecycle logging
	hooks := &server.Hooks{}
	hooks.AddAfterInitialize(func(ctx context.Context, id any, req *mcp.InitializeRequest, result *mcp.InitializeResult) {
		logger.Info().
			Str("client_name", req.Params.ClientInfo.Name).
			Str("client_version", req.Params.ClientInfo.Version).
			Msg("AI agent connected (MCP initialize)")
	})

	mcpServer := server.NewMCPServer(meta.Name, meta.Version,
		server.WithToolCapabilities(true),
		server.WithHooks(hooks),
	)
	mysqlmcp.RegisterMCPTools(mcpServer, mysqlMcp)

	// 7. Serve SSE until the context ends
	addr := net.JoinHostPort(serverConfig.Server.Host, strconv.Itoa(serverConfig.Server.Port))
	sseServer := server.NewSSEServer(mcpServer, server.WithBaseURL("http://"+addr))
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           newHTTPHandler(sseServer, serverConfig.Server.HealthCheckPath),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Str("version", meta.Version).Msg("starting gomysqlmcp server")
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	// Open SSE streams only end once the SSE server closes them.
	if err := sseServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("sse shutdown failed")
	}
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown failed: %w", err)
	}
	return nil
}

// newHTTPHandler mounts the SSE transport and, when healthPath is set, a
// liveness endpoint that does not touch the database.
func newHTTPHandler(sseServer *server.SSEServer, healthPath string) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/sse", sseServer.SSEHandler())
	mux.Handle("/message", sseServer.MessageHandler())
	if healthPath != "" {
		mux.HandleFunc(healthPath, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		})
	}
	return mux
}

func pingTimeout(conn mysqlmcp.ConnectionConfig) time.Duration {
	d, err := time.ParseDuration(conn.ConnectTimeout)
	if err != nil || d <= 0 {
		return 5 * time.Second
	}
	return d
}

// setupLogger builds the process logger. The returned func closes the log
// file when LOG_OUTPUT names one.
func setupLogger(config mysqlmcp.LoggingConfig) (zerolog.Logger, func(), error) {
	level, err := zerolog.ParseLevel(config.Level)
	if err != nil || config.Level == "" {
		level = zerolog.InfoLevel
	}

	var output io.Writer = os.Stderr
	closeFn := func() {}
	switch config.Output {
	case "", "stderr":
	case "stdout":
		output = os.Stdout
	default:
		f, err := os.OpenFile(config.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return zerolog.Nop(), closeFn, fmt.Errorf("failed to open log file %s: %w", config.Output, err)
		}
		output = f
		closeFn = func() { f.Close() }
	}

	if config.Format == "text" {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
	}

	return zerolog.New(output).Level(level).With().Timestamp().Logger(), closeFn, nil
}

// readPassword reads a password without echo when in is a terminal, and a
// plain line otherwise so the password can be piped in.
func readPassword(in *os.File, prompt io.Writer, label string) (string, error) {
	fmt.Fprint(prompt, label)
	if term.IsTerminal(int(in.Fd())) {
		password, err := term.ReadPassword(int(in.Fd()))
		fmt.Fprintln(prompt) // newline after password input
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(password), nil
	}
	var password string
	if _, err := fmt.Fscanln(in, &password); err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return password, nil
}
