package model

import (
	"errors"
	"fmt"
)

// ErrCalendarNotFound は設定されたカレンダー名がアカウント上に存在しない場合のセンチネルエラー。
// errors.Isで判定する。構成ミスとして扱い、自動リトライはしない。
var ErrCalendarNotFound = errors.New("指定されたカレンダーが見つかりません")

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, calendar, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidRange      = "INVALID_RANGE"
	ErrCodeMissingDateParam  = "MISSING_DATE_PARAM"
	ErrCodeInvalidDateFormat = "INVALID_DATE_FORMAT"
	ErrCodeCalendarNotFound  = "CALENDAR_NOT_FOUND"
	ErrCodeUpstreamFailure   = "UPSTREAM_FAILURE"
)

// NewInvalidRangeError は終了日が開始日より前の場合のエラーを生成する。
func NewInvalidRangeError(start, end string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRange,
		Message:  fmt.Sprintf("終了日が開始日より前です: %s < %s", end, start),
		Category: "validation",
		Action:   "endDateにはstartDate以降の日付を指定してください。",
	}
}

// NewMissingDateParamError は日付パラメータが片方だけ指定された場合のエラーを生成する。
func NewMissingDateParamError() *APIError {
	return &APIError{
		Code:     ErrCodeMissingDateParam,
		Message:  "startDateとendDateは必ずペアで指定してください。",
		Category: "validation",
		Action:   "両方の日付パラメータを指定するか、両方とも省略してください。",
	}
}

// NewInvalidDateFormatError は日付パラメータの形式が不正な場合のエラーを生成する。
func NewInvalidDateFormatError(param, value string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidDateFormat,
		Message:  fmt.Sprintf("日付パラメータの形式が不正です: %s=%s", param, value),
		Category: "validation",
		Action:   "日付はYYYY-MM-DD形式で指定してください。",
	}
}

// NewCalendarNotFoundError はカレンダー未検出エラーを生成する。
// 構成値（テナントIDやカレンダー名）はレスポンスに含めない。
func NewCalendarNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeCalendarNotFound,
		Message:  "カレンダーの参照に失敗しました。",
		Category: "calendar",
		Action:   "サーバーの構成を確認してください。",
	}
}

// NewUpstreamError は上流カレンダーAPIの呼び出し失敗エラーを生成する。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func NewUpstreamError() *APIError {
	return &APIError{
		Code:     ErrCodeUpstreamFailure,
		Message:  "カレンダーサービスへの接続に失敗しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
