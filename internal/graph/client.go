// Package graph はMicrosoft Graph APIのカレンダー参照クライアントを提供する。
//
// コアから見た上流カレンダープロバイダとの境界であり、
// カレンダー名からIDへの解決と期間指定のイベント取得のみを公開する。
// 呼び出しはネットワーク依存で失敗しうる。リトライは行わず、
// キャッシュも持たない（キャッシュは呼び出し側のCaching Layerの責務）。
package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/hitoshi/calman/internal/model"
)

const (
	// defaultEndpoint はMicrosoft Graph APIのエンドポイント。
	defaultEndpoint = "https://graph.microsoft.com/v1.0"
	// eventsPageSize は1ページあたりのイベント取得件数。
	eventsPageSize = 50
	// maxErrorBodyBytes はエラーログに記録するレスポンスボディの上限。
	maxErrorBodyBytes = 2048
)

// Client はMicrosoft Graph APIのカレンダー参照クライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	endpoint   string // テスト用にエンドポイントを差し替え可能
	userID     string
}

// NewClient はClientの新しいインスタンスを生成する。
// userIDはカレンダーを参照するメールボックスのID（UPNまたはオブジェクトID）。
func NewClient(httpClient *http.Client, logger *slog.Logger, userID string) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		endpoint:   defaultEndpoint,
		userID:     userID,
	}
}

// SetEndpoint はGraph APIのエンドポイントを上書きする。
// 既定以外のクラウド環境やテストで使用する。
func (c *Client) SetEndpoint(endpoint string) {
	c.endpoint = strings.TrimRight(endpoint, "/")
}

// NewTokenClient はクライアントクレデンシャルフローでトークンを自動取得・更新する
// *http.Clientを生成する。トークンの取得と更新はoauth2ライブラリに委譲する。
// scopeはGraphエンドポイントのホストに対する ".default" スコープを導出する。
func NewTokenClient(ctx context.Context, tokenURL, clientID, clientSecret, graphEndpoint string, timeout time.Duration) (*http.Client, error) {
	u, err := url.Parse(graphEndpoint)
	if err != nil {
		return nil, fmt.Errorf("Graphエンドポイントのパースに失敗しました: %w", err)
	}

	conf := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
		Scopes:       []string{u.Scheme + "://" + u.Host + "/.default"},
	}

	client := conf.Client(ctx)
	client.Timeout = timeout
	return client, nil
}

// calendarsPage はカレンダー一覧APIの1ページ分のレスポンス。
type calendarsPage struct {
	Value []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"value"`
	NextLink string `json:"@odata.nextLink"`
}

// eventsPage はcalendarView APIの1ページ分のレスポンス。
type eventsPage struct {
	Value    []model.ProviderEvent `json:"value"`
	NextLink string                `json:"@odata.nextLink"`
}

// ResolveCalendarID はカレンダー表示名からカレンダーIDを解決する。
// 照合は大文字小文字を区別しない。一覧はページングされるため全ページを走査する。
// 一致するカレンダーが存在しない場合はmodel.ErrCalendarNotFoundを返す。
func (c *Client) ResolveCalendarID(ctx context.Context, calendarName string) (string, error) {
	next := fmt.Sprintf("%s/users/%s/calendars?$select=id,name",
		c.endpoint, url.PathEscape(c.userID))

	for next != "" {
		var page calendarsPage
		if err := c.get(ctx, next, &page); err != nil {
			return "", err
		}

		for _, cal := range page.Value {
			if strings.EqualFold(cal.Name, calendarName) {
				return cal.ID, nil
			}
		}
		next = page.NextLink
	}

	c.logger.Error("設定されたカレンダーがアカウント上に見つかりません",
		slog.String("calendar_name", calendarName),
	)
	return "", fmt.Errorf("カレンダー %q: %w", calendarName, model.ErrCalendarNotFound)
}

// QueryEvents は指定期間に重なるイベントを取得する。
// 添付ファイルを展開し、タイムスタンプはUTCで返すようPreferヘッダーで指示する。
// ページングされたレスポンスを結合して返す。順序はプロバイダの返却順を保持する。
func (c *Client) QueryEvents(ctx context.Context, calendarID string, start, end time.Time) ([]model.ProviderEvent, error) {
	q := url.Values{}
	q.Set("startDateTime", start.UTC().Format(time.RFC3339))
	q.Set("endDateTime", end.UTC().Format(time.RFC3339))
	q.Set("$expand", "attachments")
	q.Set("$orderby", "start/dateTime")
	q.Set("$top", fmt.Sprintf("%d", eventsPageSize))

	next := fmt.Sprintf("%s/users/%s/calendars/%s/calendarView?%s",
		c.endpoint, url.PathEscape(c.userID), url.PathEscape(calendarID), q.Encode())

	var events []model.ProviderEvent
	for next != "" {
		var page eventsPage
		if err := c.get(ctx, next, &page); err != nil {
			return nil, err
		}
		events = append(events, page.Value...)
		next = page.NextLink
	}

	return events, nil
}

// get はGETリクエストを実行してJSONレスポンスをデコードする。
func (c *Client) get(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	// タイムゾーン変換をNormalizer側で一元管理するため、常にUTCで返させる
	req.Header.Set("Prefer", `outlook.timezone="UTC"`)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Graph APIの呼び出しに失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("Graph APIの呼び出しに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		c.logger.Error("Graph APIがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
			slog.String("body", string(body)),
		)
		return fmt.Errorf("Graph APIがステータス %d を返しました", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		c.logger.Error("Graph APIのレスポンスのパースに失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}

	return nil
}
