// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/hitoshi/familycal/internal/middleware"
	"github.com/hitoshi/familycal/internal/model"
	"github.com/hitoshi/familycal/internal/session"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	IssueLink(ctx context.Context, email, redirectTo string) error
	ExchangeCode(ctx context.Context, code string) (*model.ProviderSession, error)
	VerifyToken(ctx context.Context, tokenHash, tokenType string) (*model.ProviderSession, error)
	SignOut(ctx context.Context, accessToken string) error
}

// SessionResolver はリクエスト単位のセッション解決インターフェース。
type SessionResolver interface {
	Resolve(w http.ResponseWriter, r *http.Request) session.Snapshot
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	// SiteURL は外部公開URL。設定されていればコールバックURLの組み立てに最優先で使う。
	SiteURL string
	Cookie  middleware.CookieConfig
}

// AuthHandler はマジックリンク認証関連のHTTPハンドラー。
type AuthHandler struct {
	service  AuthServiceInterface
	resolver SessionResolver
	config   AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, resolver SessionResolver, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service:  service,
		resolver: resolver,
		config:   config,
	}
}

// baseURL はリダイレクト先の組み立てに使う公開URLを決定する。
// 優先順位: 設定されたサイトURL → X-Forwarded-Host → Hostヘッダー。
func (h *AuthHandler) baseURL(r *http.Request) string {
	if h.config.SiteURL != "" {
		return strings.TrimRight(h.config.SiteURL, "/")
	}
	scheme := "https"
	if r.TLS == nil && r.Header.Get("X-Forwarded-Proto") != "https" {
		scheme = "http"
	}
	if fwd := r.Header.Get("X-Forwarded-Host"); fwd != "" {
		return scheme + "://" + fwd
	}
	return scheme + "://" + r.Host
}

// sanitizeNext はリダイレクト先パスを検証する。外部URLへの誘導は許さない。
func sanitizeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") {
		return "/calendar"
	}
	return next
}

// loginErrorRedirect はエラータグ付きでログイン画面へ戻す。
func loginErrorRedirect(w http.ResponseWriter, r *http.Request, tag string) {
	http.Redirect(w, r, "/login?error="+url.QueryEscape(tag), http.StatusSeeOther)
}

// MagicLink はマジックリンクの発行を受け付ける。
// POST /api/auth/magic-link {"email": "...", "next": "/calendar"}
func (h *AuthHandler) MagicLink(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
		Next  string `json:"next"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError("invalid JSON body"))
		return
	}

	callback := h.baseURL(r) + "/auth/callback?next=" + url.QueryEscape(sanitizeNext(body.Next))
	if err := h.service.IssueLink(r.Context(), body.Email, callback); err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			status := http.StatusBadGateway
			switch apiErr.Category {
			case "validation":
				status = http.StatusBadRequest
			case "data":
				status = http.StatusInternalServerError
			}
			// 未登録メールは列挙攻撃を避けるため発行成功と同じ応答にする
			if apiErr.Code == "USER_NOT_FOUND" {
				slog.Info("magic link requested for unknown email")
				writeMagicLinkAccepted(w)
				return
			}
			middleware.WriteErrorResponse(w, status, apiErr)
			return
		}
		middleware.WriteInternalServerError(w)
		return
	}

	writeMagicLinkAccepted(w)
}

func writeMagicLinkAccepted(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "sent",
		"message": "ログイン用のリンクをメールで送信しました。",
	})
}

// Callback はメール内リンクからの戻りを処理する。
// GET /auth/callback?code=xxx&next=/calendar
// GET /auth/callback?token_hash=xxx&type=magiclink&next=/calendar
//
// 成功時はセッションCookieを設定して検証ページへ転送する。
// 失敗時はエラータグ付きでログイン画面へ戻す。
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	next := sanitizeNext(q.Get("next"))

	code := q.Get("code")
	tokenHash := q.Get("token_hash")
	tokenType := q.Get("type")

	var sess *model.ProviderSession
	var err error
	switch {
	case code != "":
		sess, err = h.service.ExchangeCode(r.Context(), code)
		if err != nil {
			slog.Warn("code exchange failed", slog.String("error", err.Error()))
			loginErrorRedirect(w, r, "exchange_error")
			return
		}
	case tokenHash != "" && tokenType != "":
		sess, err = h.service.VerifyToken(r.Context(), tokenHash, tokenType)
		if err != nil {
			slog.Warn("token verification failed", slog.String("error", err.Error()))
			loginErrorRedirect(w, r, "verify_error")
			return
		}
	default:
		loginErrorRedirect(w, r, "missing_params")
		return
	}

	middleware.SetSessionCookies(w, sess, h.config.Cookie)
	http.Redirect(w, r, "/auth/verifying?next="+url.QueryEscape(next), http.StatusSeeOther)
}

// Verifying はコールバック直後の確認ページ。
// GET /auth/verifying?next=/calendar
//
// Cookieに設定したばかりのセッションをもう一度プロバイダーに検証させ、
// プロフィール解決と認証参照の修復を済ませてから目的地へ転送する。
// ここで失敗した場合はCookieを破棄してログイン画面へ戻す。
func (h *AuthHandler) Verifying(w http.ResponseWriter, r *http.Request) {
	next := sanitizeNext(r.URL.Query().Get("next"))

	snap := h.resolver.Resolve(w, r)
	if snap.State != session.StateAuthenticated {
		loginErrorRedirect(w, r, "auth_error")
		return
	}

	http.Redirect(w, r, next, http.StatusSeeOther)
}

// Logout はセッションを破棄する。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if sess, err := middleware.SessionFromContext(r.Context()); err == nil {
		if signOutErr := h.service.SignOut(r.Context(), sess.AccessToken); signOutErr != nil {
			slog.Warn("provider sign-out failed", slog.String("error", signOutErr.Error()))
			// プロバイダー側の失敗でもCookieはクリアする
		}
	}

	middleware.ClearSessionCookies(w, h.config.Cookie)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// Me は現在のログインユーザー情報を返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewAuthError(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"id":    user.ID,
		"email": user.Email,
		"name":  user.Name,
		"role":  user.Role,
	})
}
