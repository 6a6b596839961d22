// Package model はドメインモデルを定義する。
package model

// Appointment は正規化済みの予定を表す。
// Normalizerが1回だけ構築し、以降は変更されない値として扱う。
// StartとEndはUTC基準のUnixエポックミリ秒（Webクライアント向けのワイヤ形式）。
type Appointment struct {
	ID        string `json:"id"`
	Subject   string `json:"subject"`
	Body      string `json:"body"` // HTML。インライン画像はdata URIとして埋め込み済み
	Location  string `json:"location"`
	HTMLColor string `json:"htmlColour"` // HTML16進カラー。カテゴリ未一致の場合は空文字列
	Start     int64  `json:"start"`
	End       int64  `json:"end"`
	AllDay    bool   `json:"allDay"`
}

// CategoryDefinition はカテゴリ名とカラーの対応を表す。
// 名前は大文字小文字を区別しない識別子として扱う。
type CategoryDefinition struct {
	Name      string `json:"name"`
	HTMLColor string `json:"htmlColor"`
	// IsDefault は組み込みデフォルト由来（true）か設定による上書き（false）かを示す。
	IsDefault bool `json:"isDefault"`
}
