package provider

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hitoshi/familycal/internal/model"
)

// tokenClaims はプロバイダー発行アクセストークンのクレーム。
type tokenClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// ParseAccessToken はアクセストークンからプロバイダー側の識別情報を取り出す。
// secretが設定されている場合はHS256署名を検証する。
// 未設定の場合は署名検証をスキップし期限のみ確認する
// （権威ある検証はGetValidatedUserのラウンドトリップで行うため、
// ここでの結果はあくまでCookie復元時のヒントとして扱う）。
func ParseAccessToken(accessToken, secret string) (*model.ProviderSession, error) {
	claims := &tokenClaims{}

	var err error
	if secret != "" {
		_, err = jwt.ParseWithClaims(accessToken, claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return []byte(secret), nil
		})
	} else {
		_, _, err = jwt.NewParser().ParseUnverified(accessToken, claims)
	}
	if err != nil {
		return nil, model.NewAuthError(fmt.Errorf("failed to parse access token: %w", err))
	}

	var expiresAt time.Time
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}

	sess := &model.ProviderSession{
		AccessToken: accessToken,
		ExpiresAt:   expiresAt,
		UserID:      claims.Subject,
		Email:       claims.Email,
	}
	if sess.Expired(time.Now()) {
		return nil, model.NewAuthError(fmt.Errorf("access token expired at %s", expiresAt.Format(time.RFC3339)))
	}
	return sess, nil
}
