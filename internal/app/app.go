// Package app はアプリケーションの初期化と起動を提供する。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/calman/internal/appointment"
	"github.com/hitoshi/calman/internal/cache"
	"github.com/hitoshi/calman/internal/category"
	"github.com/hitoshi/calman/internal/config"
	"github.com/hitoshi/calman/internal/graph"
	"github.com/hitoshi/calman/internal/handler"
	"github.com/hitoshi/calman/internal/logger"
	"github.com/hitoshi/calman/internal/metrics"
	"github.com/hitoshi/calman/internal/middleware"
	"github.com/hitoshi/calman/internal/normalize"
	"github.com/hitoshi/calman/internal/security"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたレベルでログを再セットアップする
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("calendar_name", cfg.CalendarName),
	)

	return runServe(cfg)
}

// runServe はAPIサーバーモードで起動する。
// Graph APIクライアントと全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. 配信タイムゾーンの解決
	loc := time.Local
	if cfg.Timezone != "" {
		resolved, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return fmt.Errorf("failed to load timezone %q: %w", cfg.Timezone, err)
		}
		loc = resolved
	}

	// 2. Graph APIクライアントの初期化（client credentialsフロー）
	httpClient, err := graph.NewTokenClient(ctx,
		cfg.GraphTokenURL, cfg.GraphClientID, cfg.GraphClientSecret,
		cfg.GraphEndpoint, cfg.FetchTimeout,
	)
	if err != nil {
		return fmt.Errorf("failed to build graph token client: %w", err)
	}

	graphClient := graph.NewClient(httpClient, slog.Default(), cfg.GraphUserID)
	graphClient.SetEndpoint(cfg.GraphEndpoint)

	slog.Info("graph client initialized",
		slog.String("endpoint", cfg.GraphEndpoint),
	)

	// 3. カテゴリリゾルバの初期化
	resolver, err := category.NewResolver(cfg.CategoriesFile, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to load categories: %w", err)
	}
	if cfg.CategoriesFile != "" && cfg.CategoryReloadInterval > 0 {
		go resolver.Watch(ctx, cfg.CategoryReloadInterval)
	}

	// 4. 正規化層の初期化
	var sanitizer normalize.Sanitizer
	if cfg.SanitizeBody {
		sanitizer = security.NewBodySanitizer()
	}
	normalizer := normalize.New(resolver, sanitizer, loc, slog.Default())

	// 5. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 6. キャッシュとクエリファサードのワイヤリング
	appCache := cache.New(cfg.CacheTTL, loc, collector)

	providerSource := appointment.NewProviderSource(
		graphClient, normalizer, cfg.CalendarName, loc, slog.Default(),
	)
	providerSource.SetFetchRecorder(collector)

	cachingSource := appointment.NewCachingSource(providerSource, appCache, loc)
	service := appointment.NewService(cachingSource, appCache)

	// 7. ルーターの構築
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	if cfg.RateLimitGeneral > 0 {
		rateLimiterCfg.RequestsPerMinute = cfg.RateLimitGeneral
	}
	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		StatusRecorder:    collector,

		AppointmentService: service,
		CategoryProvider:   resolver,
		ServedRecorder:     collector,

		Location:       loc,
		MetricsHandler: metrics.Handler(registry),
	})

	// 8. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
			slog.String("timezone", loc.String()),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}
