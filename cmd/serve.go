package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/secinto/httpobservatory/internal/api"
	"github.com/secinto/httpobservatory/internal/application/scanning"
	"github.com/secinto/httpobservatory/internal/hstspreload"
	"github.com/secinto/httpobservatory/internal/persistence"
	"github.com/secinto/httpobservatory/internal/retriever"
	"github.com/secinto/httpobservatory/internal/scancache"
	"github.com/secinto/httpobservatory/internal/scanner"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scanner as a REST API service",
	RunE: func(cmd *cobra.Command, args []string) error {
		shutdownTimeout, _ := cmd.Flags().GetDuration("shutdown-timeout")
		corsOrigins, _ := cmd.Flags().GetStringSlice("cors-origins")
		rateBurst, _ := cmd.Flags().GetInt("rate-burst")

		srvLogger := newRotatingLogger(appCfg.LogPath)
		defer srvLogger.Sync()

		repo, err := persistence.Open(appCfg.PersistencePath)
		if err != nil {
			return fmt.Errorf("opening persistence store: %w", err)
		}

		preloadCtx, cancelPreload := context.WithCancel(context.Background())
		defer cancelPreload()
		preload := hstspreload.NewChecker(24 * time.Hour)
		preload.StartAutoRefresh(preloadCtx)
		rtr := retriever.New(retriever.Config{
			MaxRedirects: appCfg.MaxRedirects,
			ProbeTimeout: appCfg.ProbeTimeout,
			WallClock:    appCfg.ScanWallClock,
			BodyCap:      appCfg.BodySizeCapKB * 1024,
		}, preload)
		scn := scanner.New(rtr)
		cache := scancache.New(scn, appCfg.Cooldown)

		var batchLimiter *rate.Limiter
		if appCfg.APIRateLimit > 0 {
			batchLimiter = rate.NewLimiter(rate.Limit(appCfg.APIRateLimit), rateBurst)
		}
		orchestrator := scanning.New(cache, repo, appCfg.CacheTimeForGet, appCfg.BatchConcurrency, batchLimiter)

		server := api.NewServer(api.Config{
			Orchestrator: orchestrator,
			Stats:        repo,
			BaseURL:      appCfg.BaseURL,
			AuthToken:    appCfg.AuthToken,
			Logger:       srvLogger,
			CORSOrigins:  corsOrigins,
			RateLimit:    appCfg.APIRateLimit,
			RateBurst:    rateBurst,
		})

		httpServer := &http.Server{
			Addr:         appCfg.ListenAddr,
			Handler:      server,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		}

		serverErrors := make(chan error, 1)
		go func() {
			fmt.Printf("%s API server listening on %s\n", colorInfo("→"), appCfg.ListenAddr)
			fmt.Printf("%s Press Ctrl+C to gracefully shutdown\n", colorInfo("→"))
			serverErrors <- httpServer.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-serverErrors:
			if !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server error: %w", err)
			}
		case sig := <-shutdown:
			fmt.Printf("\n%s Received signal %v, initiating graceful shutdown...\n", colorInfo("→"), sig)
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := httpServer.Shutdown(ctx); err != nil {
				if closeErr := httpServer.Close(); closeErr != nil {
					return fmt.Errorf("failed to gracefully shutdown server: %w (close error: %v)", err, closeErr)
				}
				return fmt.Errorf("failed to gracefully shutdown server: %w", err)
			}
			fmt.Printf("%s Server shutdown complete\n", colorInfo("✓"))
		}

		return nil
	},
}

// newRotatingLogger builds a zap logger writing JSON lines through a
// lumberjack-rotated file, the way a production API service in this corpus
// manages its own log file instead of relying purely on stdout.
func newRotatingLogger(path string) *zap.Logger {
	rotator := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    100, // megabytes
		MaxBackups: 5,
		MaxAge:     28, // days
		Compress:   true,
	}
	encoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	core := zapcore.NewCore(encoder, zapcore.AddSync(rotator), zap.InfoLevel)
	return zap.New(core)
}

func init() {
	serveCmd.Flags().Duration("shutdown-timeout", 30*time.Second, "graceful shutdown timeout")
	serveCmd.Flags().StringSlice("cors-origins", []string{}, "allowed CORS origins (empty = allow all)")
	serveCmd.Flags().Int("rate-burst", 20, "per-client API rate limit burst size")
}
