// Package model はドメインモデルを定義する。
package model

import "time"

// Role はユーザーの権限区分を表す。
type Role string

const (
	// RoleAdmin は管理者。家族メンバーの管理が可能。
	RoleAdmin Role = "admin"
	// RoleMember は一般メンバー。
	RoleMember Role = "member"
)

// User は家族カレンダーの利用ユーザー（プロフィール行）を表す。
// プロフィール行はこのアプリケーションの外で事前に登録される。
// AuthRefは外部認証プロバイダーのユーザーIDへの後方参照で、
// 初回セッション解決時に未設定であれば遅延的に補修される（self-healing）。
type User struct {
	ID        string
	Email     string
	Name      string
	Role      Role
	AuthRef   *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasAuthRef は認証プロバイダーへの後方参照が設定済みかを返す。
func (u *User) HasAuthRef() bool {
	return u.AuthRef != nil && *u.AuthRef != ""
}
