package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hitoshi/familycal/internal/model"
)

// GoTrueConfig はGoTrueクライアントの設定。
type GoTrueConfig struct {
	BaseURL string // 例: "https://xyz.supabase.co/auth/v1"
	AnonKey string // 公開APIキー。apikeyヘッダーとして送信する

	// テスト用に差し替え可能なHTTPクライアント
	HTTPClient *http.Client
}

// GoTrueClient はGoTrue互換の認証APIを呼び出すHTTPクライアント。
type GoTrueClient struct {
	config GoTrueConfig
}

// NewGoTrueClient はGoTrueClientを生成する。
func NewGoTrueClient(config GoTrueConfig) *GoTrueClient {
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &GoTrueClient{config: config}
}

// sessionResponse はセッションを返すエンドポイントの共通レスポンス。
type sessionResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	User         struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

// errorResponse はGoTrueのエラーレスポンス。バージョンによりフィールド名が異なる。
type errorResponse struct {
	Message          string `json:"msg"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// message はレスポンスから最も具体的なエラーメッセージを返す。
func (e *errorResponse) message() string {
	switch {
	case e.Message != "":
		return e.Message
	case e.ErrorDescription != "":
		return e.ErrorDescription
	default:
		return e.Error
	}
}

// SignInWithOneTimeLink はワンタイムログインリンクをメール送信する。
// 失敗時はプロバイダーの生のエラーメッセージを含むエラーを返す。
func (c *GoTrueClient) SignInWithOneTimeLink(ctx context.Context, email string, opts OneTimeLinkOptions) error {
	endpoint := c.config.BaseURL + "/otp"
	if opts.RedirectTo != "" {
		endpoint += "?redirect_to=" + url.QueryEscape(opts.RedirectTo)
	}

	payload := map[string]any{
		"email":       email,
		"create_user": opts.AllowNewUsers,
	}

	if _, err := c.post(ctx, endpoint, "", payload); err != nil {
		return model.NewMagicLinkError(err)
	}
	return nil
}

// ExchangeCodeForSession は認可コードをセッションに交換する。
func (c *GoTrueClient) ExchangeCodeForSession(ctx context.Context, code string) (*model.ProviderSession, error) {
	body, err := c.post(ctx, c.config.BaseURL+"/token?grant_type=pkce", "", map[string]any{
		"auth_code": code,
	})
	if err != nil {
		return nil, model.NewExchangeError(err)
	}
	return parseSession(body)
}

// VerifyOneTimeToken はtoken_hash形式のワンタイムトークンを検証しセッションを得る。
func (c *GoTrueClient) VerifyOneTimeToken(ctx context.Context, tokenHash, tokenType string) (*model.ProviderSession, error) {
	body, err := c.post(ctx, c.config.BaseURL+"/verify", "", map[string]any{
		"token_hash": tokenHash,
		"type":       tokenType,
	})
	if err != nil {
		return nil, model.NewExchangeError(err)
	}
	return parseSession(body)
}

// GetValidatedUser はアクセストークンをプロバイダーに対して再検証する。
func (c *GoTrueClient) GetValidatedUser(ctx context.Context, accessToken string) (*Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/user", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create user request: %w", err)
	}
	c.setHeaders(req, accessToken)

	resp, err := c.config.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("user request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read user response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, model.NewAuthError(responseError(resp.StatusCode, body))
	}

	var user struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	}
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, fmt.Errorf("failed to parse user response: %w", err)
	}
	if user.ID == "" {
		return nil, model.NewAuthError(fmt.Errorf("empty user id in response"))
	}

	return &Identity{UserID: user.ID, Email: user.Email}, nil
}

// SignOut はプロバイダー側のセッションを失効させる。
func (c *GoTrueClient) SignOut(ctx context.Context, accessToken string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/logout", nil)
	if err != nil {
		return fmt.Errorf("failed to create logout request: %w", err)
	}
	c.setHeaders(req, accessToken)

	resp, err := c.config.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("logout request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	// 204が正常。トークンが既に無効な場合の401も失効済みとして成功扱いにする
	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK &&
		resp.StatusCode != http.StatusUnauthorized {
		return fmt.Errorf("logout failed with status %d", resp.StatusCode)
	}
	return nil
}

// post はJSONボディをPOSTし、2xxのレスポンスボディを返す。
func (c *GoTrueClient) post(ctx context.Context, endpoint, accessToken string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req, accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.config.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, responseError(resp.StatusCode, body)
	}
	return body, nil
}

// setHeaders は共通ヘッダー（apikey、Bearerトークン）を設定する。
func (c *GoTrueClient) setHeaders(req *http.Request, accessToken string) {
	req.Header.Set("apikey", c.config.AnonKey)
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
}

// responseError はエラーレスポンスボディからエラーを構築する。
func responseError(status int, body []byte) error {
	var errResp errorResponse
	if json.Unmarshal(body, &errResp) == nil && errResp.message() != "" {
		return fmt.Errorf("auth provider returned status %d: %s", status, errResp.message())
	}
	return fmt.Errorf("auth provider returned status %d", status)
}

// parseSession はセッションレスポンスをmodel.ProviderSessionに変換する。
// 動的な行形状をこの境界で強い型に写し、型の無いデータを先へ伝播させない。
func parseSession(body []byte) (*model.ProviderSession, error) {
	var sess sessionResponse
	if err := json.Unmarshal(body, &sess); err != nil {
		return nil, fmt.Errorf("failed to parse session response: %w", err)
	}
	if sess.AccessToken == "" {
		return nil, model.NewExchangeError(fmt.Errorf("empty access token in session response"))
	}

	expiresAt := time.Time{}
	switch {
	case sess.ExpiresAt > 0:
		expiresAt = time.Unix(sess.ExpiresAt, 0)
	case sess.ExpiresIn > 0:
		expiresAt = time.Now().Add(time.Duration(sess.ExpiresIn) * time.Second)
	}

	return &model.ProviderSession{
		AccessToken:  sess.AccessToken,
		RefreshToken: sess.RefreshToken,
		ExpiresAt:    expiresAt,
		UserID:       sess.User.ID,
		Email:        sess.User.Email,
	}, nil
}

// compile-time interface check
var _ AuthClient = (*GoTrueClient)(nil)
