package model

// DateTimeTimeZone はプロバイダのタイムゾーン付き日時表現。
// DateTimeは "2006-01-02T15:04:05.9999999" 形式の壁時計時刻、
// TimeZoneは "UTC" などのゾーン名。
type DateTimeTimeZone struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

// Attachment はプロバイダイベントの添付ファイルメタデータ。
// ContentBytesはプロバイダから返されるbase64文字列をそのまま保持する。
type Attachment struct {
	ContentID    string `json:"contentId"`
	ContentType  string `json:"contentType"`
	IsInline     bool   `json:"isInline"`
	ContentBytes string `json:"contentBytes"`
}

// ItemBody はイベント本文。ContentTypeは "html" または "text"。
type ItemBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

// Location はイベントの場所。
type Location struct {
	DisplayName string `json:"displayName"`
}

// ProviderEvent は上流カレンダーAPIが返す正規化前のイベント。
// Normalizerへの入力となる。フィールド欠落はゼロ値として扱われる。
type ProviderEvent struct {
	ID          string           `json:"id"`
	Subject     string           `json:"subject"`
	Body        ItemBody         `json:"body"`
	Location    Location         `json:"location"`
	Start       DateTimeTimeZone `json:"start"`
	End         DateTimeTimeZone `json:"end"`
	IsAllDay    bool             `json:"isAllDay"`
	Categories  []string         `json:"categories"`
	Attachments []Attachment     `json:"attachments"`
}
