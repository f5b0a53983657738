package handler

import (
	"embed"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/familycal/internal/metrics"
	"github.com/hitoshi/familycal/internal/middleware"
	"github.com/hitoshi/familycal/internal/realtime"
)

//go:embed static/*
var staticFS embed.FS

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionMiddleware *middleware.SessionMiddleware
	RateLimiter       *middleware.RateLimiter
	CORSAllowedOrigin string
	CSRFConfig        middleware.CSRFConfig
	Logger            *slog.Logger

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// イベント
	EventStore EventStoreInterface
	Scheduler  SchedulerInterface

	// ページ
	MemberLister MemberListerInterface
	PageConfig   PageHandlerConfig

	// リアルタイム
	Stream *realtime.Stream

	// 運用系
	Metrics  metrics.MetricsCollector
	Gatherer prometheus.Gatherer
	Health   http.HandlerFunc
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS → CSRF
//	→（認証グループのみ）Session → RateLimit(General)
//
// マジックリンク発行は未認証エンドポイントのため、専用のIPベースレート制限を付ける。
func NewRouter(deps *RouterDeps) (http.Handler, error) {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

	authHandler := NewAuthHandler(deps.AuthService, deps.SessionMiddleware, deps.AuthConfig)
	eventHandler := NewEventHandler(deps.EventStore, deps.Scheduler, deps.Metrics)
	streamHandler := NewStreamHandler(deps.Stream, deps.Metrics)
	icsHandler := NewICSHandler(deps.EventStore, "Family Calendar")
	pageHandler, err := NewPageHandler(deps.MemberLister, deps.EventStore, deps.SessionMiddleware, deps.PageConfig)
	if err != nil {
		return nil, err
	}

	// --- 認証不要のルート ---

	r.Get("/", pageHandler.Home)
	r.Get("/login", pageHandler.Login)

	r.Route("/auth", func(r chi.Router) {
		r.Get("/callback", authHandler.Callback)
		r.Get("/verifying", authHandler.Verifying)
	})

	// マジックリンク発行（IP単位のレート制限）
	r.With(deps.RateLimiter.MagicLinkMiddleware()).
		Post("/api/auth/magic-link", authHandler.MagicLink)

	// 静的アセット
	staticRoot, err := fs.Sub(staticFS, "static")
	if err != nil {
		return nil, err
	}
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(staticRoot))))

	// 運用エンドポイント
	r.Get("/health", deps.Health)
	r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	r.Handle("/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

	// --- 認証が必要なページ ---
	r.Group(func(r chi.Router) {
		r.Use(deps.SessionMiddleware.RequirePage)

		r.Get("/calendar", pageHandler.Calendar)
		r.Get("/calendar.ics", icsHandler.Export)
	})

	// --- 認証が必要なAPI ---
	// ミドルウェアスタック: Session → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(deps.SessionMiddleware.RequireAPI)
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Route("/api/events", func(r chi.Router) {
			r.Get("/", eventHandler.List)
			r.Post("/", eventHandler.Create)
			r.Get("/stream", streamHandler.Subscribe)

			r.Route("/{id}", func(r chi.Router) {
				r.Patch("/", eventHandler.Update)
				r.Delete("/", eventHandler.Delete)
				r.Patch("/schedule", eventHandler.Schedule)
			})
		})

		r.Post("/auth/logout", authHandler.Logout)
		r.Get("/auth/me", authHandler.Me)
	})

	return r, nil
}
