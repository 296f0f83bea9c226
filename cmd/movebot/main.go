package main

import (
	"context"
	"crypto/rand"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"

	"github.com/olehk/movebot/internal/api"
	"github.com/olehk/movebot/internal/bot"
	"github.com/olehk/movebot/internal/engine"
	"github.com/olehk/movebot/internal/model"
	"github.com/olehk/movebot/internal/notify"
	"github.com/olehk/movebot/internal/store"
	"github.com/olehk/movebot/internal/store/postgres"
	"github.com/olehk/movebot/internal/store/sqlite"
)

// levelRouter is a slog.Handler that routes INFO/WARN to stdout and ERROR+ to stderr.
type levelRouter struct {
	stdout slog.Handler
	stderr slog.Handler
}

func (lr *levelRouter) Enabled(_ context.Context, level slog.Level) bool {
	return level >= slog.LevelInfo
}

func (lr *levelRouter) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelError {
		return lr.stderr.Handle(ctx, r)
	}
	return lr.stdout.Handle(ctx, r)
}

func (lr *levelRouter) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelRouter{
		stdout: lr.stdout.WithAttrs(attrs),
		stderr: lr.stderr.WithAttrs(attrs),
	}
}

func (lr *levelRouter) WithGroup(name string) slog.Handler {
	return &levelRouter{
		stdout: lr.stdout.WithGroup(name),
		stderr: lr.stderr.WithGroup(name),
	}
}

// setupLogger configures structured logging. INFO/WARN go to stdout, ERROR goes
// to stderr. If logPath is non-empty, all levels are also written to that file.
// Returns a cleanup function that closes the log file (if opened).
func setupLogger(logPath string) (func(), error) {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}

	var cleanup func()

	stdoutW := io.Writer(os.Stdout)
	stderrW := io.Writer(os.Stderr)

	if logPath != "" {
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		cleanup = func() { f.Close() }
		stdoutW = io.MultiWriter(os.Stdout, f)
		stderrW = io.MultiWriter(os.Stderr, f)
	}

	handler := &levelRouter{
		stdout: slog.NewTextHandler(stdoutW, opts),
		stderr: slog.NewTextHandler(stderrW, opts),
	}
	slog.SetDefault(slog.New(handler))
	return cleanup, nil
}

func main() {
	// .env is optional; real deployments use environment variables directly.
	godotenv.Load()

	fs := flag.NewFlagSet("movebot", flag.ContinueOnError)

	var dbPath string
	fs.StringVar(&dbPath, "db", envOr("DB_PATH", "movebot.sqlite3"), "")
	fs.StringVar(&dbPath, "d", envOr("DB_PATH", "movebot.sqlite3"), "")

	var addr string
	fs.StringVar(&addr, "addr", envOr("ADDR", ":8080"), "")
	fs.StringVar(&addr, "a", envOr("ADDR", ":8080"), "")

	var adminUser string
	fs.StringVar(&adminUser, "user", "Admin", "")
	fs.StringVar(&adminUser, "u", "Admin", "")

	var logPath string
	fs.StringVar(&logPath, "log", envOr("LOG_PATH", ""), "")
	fs.StringVar(&logPath, "l", envOr("LOG_PATH", ""), "")

	fs.Usage = func() {
		fmt.Fprint(os.Stdout, `Usage: movebot [flags]

Flags:
  -d, -db <path>          SQLite database path (default: movebot.sqlite3)
  -a, -addr <host:port>   API listen address (default: :8080)
  -u, -user <name>        admin operator username on first run (default: Admin)
  -l, -log <path>         log file path (default: no file, stdout/stderr only)
  -h, -help               show this help and exit

Environment:
  BOT_TOKEN      Telegram bot token (required)
  DATABASE_URL   PostgreSQL DSN; when set, used instead of the SQLite file
  ADMINS         comma-separated operator chat IDs for bot notifications
  DB_PATH, ADDR, LOG_PATH  defaults for the flags above
`)
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	if fs.NArg() > 0 {
		fmt.Fprintf(os.Stderr, "unexpected argument: %s\n", fs.Arg(0))
		fs.Usage()
		os.Exit(1)
	}

	closeLog, err := setupLogger(logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if closeLog != nil {
		defer closeLog()
	}

	token := os.Getenv("BOT_TOKEN")
	if token == "" {
		slog.Error("BOT_TOKEN is not set")
		os.Exit(1)
	}

	// Backend selection: a DATABASE_URL means PostgreSQL, otherwise the
	// embedded SQLite file.
	st, err := openStore(dbPath)
	if err != nil {
		slog.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	ctx := context.Background()

	// First run: create the admin operator with a generated password.
	if err := ensureAdminOperator(ctx, st, adminUser); err != nil {
		slog.Error("failed to ensure admin operator", "error", err)
		os.Exit(1)
	}

	if n, err := st.CountPoints(ctx); err == nil {
		slog.Info("directory loaded", "points", n)
	}

	jwtSecret, err := st.JWTSecret(ctx)
	if err != nil {
		slog.Error("failed to get JWT secret", "error", err)
		os.Exit(1)
	}

	botAPI, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		slog.Error("failed to connect to Telegram", "error", err)
		os.Exit(1)
	}

	notifier := notify.New(bot.NewChannel(botAPI))
	eng := engine.New(st, notifier)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	tgBot := bot.New(botAPI, st, eng, parseAdmins(os.Getenv("ADMINS")))
	go tgBot.Run(runCtx)

	server := &http.Server{
		Addr:              addr,
		Handler:           api.LoggingMiddleware(api.NewRouter(st, eng, jwtSecret)),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-quit
		slog.Info("shutdown signal received", "signal", sig.String())
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server forced to shutdown", "error", err)
		}
	}()

	slog.Info("server started", "addr", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped, closing store")
}

// openStore picks the storage backend.
func openStore(dbPath string) (store.Store, error) {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		st, err := postgres.Open(url)
		if err != nil {
			return nil, fmt.Errorf("opening postgres store: %w", err)
		}
		slog.Info("store ready", "backend", "postgres")
		return st, nil
	}

	st, err := sqlite.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite store: %w", err)
	}
	slog.Info("store ready", "backend", "sqlite", "path", dbPath)
	return st, nil
}

// ensureAdminOperator creates the first admin account with a generated
// password and prints the credentials once.
func ensureAdminOperator(ctx context.Context, st store.Store, username string) error {
	count, err := st.CountOperators(ctx)
	if err != nil {
		return fmt.Errorf("counting operators: %w", err)
	}
	if count > 0 {
		return nil
	}

	password, err := generatePassword(16)
	if err != nil {
		return fmt.Errorf("generating password: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	if _, err := st.CreateOperator(ctx, username, string(hash), model.OperatorRoleAdmin); err != nil {
		return fmt.Errorf("creating admin operator: %w", err)
	}

	fmt.Println("Admin operator created:")
	fmt.Printf("  Username: %s\n", username)
	fmt.Printf("  Password: %s\n", password)
	fmt.Println()
	fmt.Println("Save this password — it cannot be recovered.")
	return nil
}

// parseAdmins parses a comma-separated chat ID list, skipping junk entries.
func parseAdmins(raw string) []int64 {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			slog.Warn("ignoring bad ADMINS entry", "entry", part)
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// generatePassword creates a random password of the given length.
func generatePassword(length int) (string, error) {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%&*"
	result := make([]byte, length)
	for i := range result {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		result[i] = charset[n.Int64()]
	}
	return string(result), nil
}
