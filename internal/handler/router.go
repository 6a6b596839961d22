// Package handler はAPIエンドポイントのHTTPハンドラーとルーティングを提供する。
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/calman/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// ミドルウェア依存
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter   // nilでレート制限無効
	StatusRecorder    middleware.StatusRecorder // nilでメトリクス記録なし

	// サービス
	AppointmentService AppointmentServiceInterface
	CategoryProvider   CategoryProviderInterface
	ServedRecorder     ServedRecorder // nil可

	// クエリパラメータの日付を解釈するタイムゾーン
	Location *time.Location

	// Prometheusスクレイプ用ハンドラー。nilで/metricsを公開しない
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Logging → Recovery → SecurityHeaders → CORS → RateLimit
//
// /health と /metrics はレート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger, deps.StatusRecorder))
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	appointmentHandler := NewAppointmentHandler(deps.AppointmentService, deps.ServedRecorder, deps.Location, deps.Logger)
	categoryHandler := NewCategoryHandler(deps.CategoryProvider)

	// --- 運用ルート（レート制限の外） ---

	r.Get("/health", HealthCheck)

	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// --- APIルート ---

	r.Group(func(r chi.Router) {
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.Middleware())
		}

		r.Route("/api/appointments", func(r chi.Router) {
			r.Get("/", appointmentHandler.GetAppointments)
			r.Get("/cache/clear", appointmentHandler.ClearCache)
		})

		r.Get("/api/categories", categoryHandler.ListCategories)
	})

	return r
}

// HealthCheck は死活監視エンドポイント。
// GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(statusResponse{Status: "ok"})
}
