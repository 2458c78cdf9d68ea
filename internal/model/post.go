package model

import "time"

// Post はユーザーが作成したブログ記事を表す。
// 作成後の更新・削除は行わない。
type Post struct {
	ID        string
	Title     string
	Content   string // サニタイズ済みHTML
	PicURL    string // 任意。未指定の場合は空文字列
	Date      time.Time
	UserID    string
	CreatedAt time.Time
}
