package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/najdbe/internal/api"
	"github.com/erazemk/najdbe/internal/auth"
	"github.com/erazemk/najdbe/internal/catalog"
	"github.com/erazemk/najdbe/internal/config"
	"github.com/erazemk/najdbe/internal/db"
	"github.com/erazemk/najdbe/internal/imaging"
	"github.com/erazemk/najdbe/internal/matching"
	"github.com/erazemk/najdbe/internal/model"
	"github.com/erazemk/najdbe/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVarP(&addrFlag, "addr", "a", "", "listen address (default :8080)")
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context) error {
	database, err := openDatabase()
	if err != nil {
		return err
	}
	defer database.Close()

	accounts := store.NewAccounts(database)
	if err := ensureAdmin(ctx, accounts, cfg.AdminUsername); err != nil {
		return err
	}

	reports, closeReports, err := openReports(ctx, database)
	if err != nil {
		return err
	}
	defer closeReports()

	deps := api.Deps{Accounts: accounts}
	switch cfg.Auth.Mode {
	case config.AuthOIDC:
		gw, err := auth.NewOIDCGateway(ctx, cfg.Auth.OIDC)
		if err != nil {
			return err
		}
		deps.Gateway = gw
	default:
		key, err := accounts.SigningKey(ctx)
		if err != nil {
			return err
		}
		deps.Issuer = auth.NewIssuer(key, cfg.Auth.TokenTTL)
		deps.Gateway = auth.NewJWTGateway(deps.Issuer, accounts)
	}

	photos := imaging.NewNormalizer()
	photos.MaxDimension = cfg.PhotoMaxDimension

	matcher := matching.New(reports, cfg.Policy)
	deps.Catalog = catalog.New(reports, matcher,
		catalog.WithPageSize(cfg.PageSize, cfg.MaxPageSize),
		catalog.WithPhotos(photos),
	)

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.LoggingMiddleware(api.NewRouter(deps)),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		slog.Info("Shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server forced to shutdown", "error", err)
		}
	}()

	slog.Info("Server started", "addr", cfg.Addr, "backend", cfg.Backend, "auth", cfg.Auth.Mode)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving: %w", err)
	}
	slog.Info("Server stopped")
	return nil
}

func openDatabase() (*sql.DB, error) {
	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := db.EnsureSchema(database); err != nil {
		database.Close()
		return nil, err
	}
	slog.Info("Database ready", "path", cfg.DBPath)
	return database, nil
}

// openReports returns the report store selected by the configured backend.
func openReports(ctx context.Context, database *sql.DB) (store.Store, func(), error) {
	switch cfg.Backend {
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Redis.Addr, err)
		}
		return store.NewRedis(client, cfg.Redis.Prefix), func() { client.Close() }, nil
	case config.BackendMemory:
		slog.Warn("Reports are kept in memory and lost on restart")
		return store.NewMemory(), func() {}, nil
	default:
		return store.NewSQLite(database), func() {}, nil
	}
}

// ensureAdmin creates the first admin account with a generated password
// when there are no accounts yet.
func ensureAdmin(ctx context.Context, accounts *store.Accounts, username string) error {
	n, err := accounts.CountUsers(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
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
	if _, err := accounts.CreateUser(ctx, username, "Administrator", string(hash), model.RoleAdmin); err != nil {
		return fmt.Errorf("creating admin user: %w", err)
	}

	fmt.Println("Admin account created:")
	fmt.Printf("  Username: %s\n", username)
	fmt.Printf("  Password: %s\n", password)
	fmt.Println()
	fmt.Println("Save this password, it cannot be recovered.")
	fmt.Println()
	return nil
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
