// Package normalize はプロバイダイベントから正規化済み予定への変換を提供する。
//
// 変換は1イベント単位で完結し、決してエラーを返さない。
// タイムスタンプの欠落やパース不能などイベント単位の不正データは
// 安全なデフォルト値に落とし、バッチ内の他イベントの処理を妨げない。
package normalize

import (
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/hitoshi/calman/internal/model"
)

// graphTimeLayout はプロバイダのタイムスタンプ形式。
// 小数秒（最大7桁）は省略可能としてパースされる。
const graphTimeLayout = "2006-01-02T15:04:05.9999999"

// ColorResolver はカテゴリラベルからカラーを解決するインターフェース。
// category.Resolverが実装する。
type ColorResolver interface {
	ColorFor(label string) (string, bool)
}

// Sanitizer は本文HTMLをサニタイズするインターフェース。
type Sanitizer interface {
	Sanitize(rawHTML string) string
}

// Normalizer はプロバイダイベントをAppointmentに変換する。
type Normalizer struct {
	categories ColorResolver
	sanitizer  Sanitizer // nilの場合はサニタイズを行わない
	loc        *time.Location
	logger     *slog.Logger
}

// New はNormalizerを生成する。
// locは時刻指定イベントの変換先となる配信タイムゾーン。
func New(categories ColorResolver, sanitizer Sanitizer, loc *time.Location, logger *slog.Logger) *Normalizer {
	return &Normalizer{
		categories: categories,
		sanitizer:  sanitizer,
		loc:        loc,
		logger:     logger,
	}
}

// NormalizeAll は複数のプロバイダイベントを変換する。順序は入力順を保持する。
func (n *Normalizer) NormalizeAll(events []model.ProviderEvent) []model.Appointment {
	out := make([]model.Appointment, 0, len(events))
	for _, ev := range events {
		out = append(out, n.Normalize(ev))
	}
	return out
}

// Normalize は1つのプロバイダイベントをAppointmentに変換する。
//
//   - 時刻指定イベントはプロバイダのタイムゾーンでパースして配信ゾーンに変換する
//   - 終日イベントはタイムゾーン変換せず、日付をそのまま保持する
//   - 本文のインライン画像をdata URIとして埋め込む
//   - イベントのカテゴリラベルを先頭から走査し、最初に一致したカラーを採用する
func (n *Normalizer) Normalize(ev model.ProviderEvent) model.Appointment {
	start := n.parseTime(ev.Start, ev.IsAllDay)
	end := n.parseTime(ev.End, ev.IsAllDay)

	return model.Appointment{
		ID:        ev.ID,
		Subject:   ev.Subject,
		Body:      n.buildBody(ev),
		Location:  ev.Location.DisplayName,
		HTMLColor: n.resolveColor(ev.Categories),
		Start:     start.UnixMilli(),
		End:       end.UnixMilli(),
		AllDay:    ev.IsAllDay,
	}
}

// parseTime はタイムゾーン付き日時表現をtime.Timeに変換する。
// 終日イベントはUTC壁時計としてパースし変換しない（配信ホストのゾーンに
// 依存せず、日付の字義どおりのエポックミリ秒になる）。
// 欠落・パース不能の場合はゼロ値（表現可能な最小の時刻、UTC）を返す。
func (n *Normalizer) parseTime(dtz model.DateTimeTimeZone, allDay bool) time.Time {
	if dtz.DateTime == "" {
		return time.Time{}
	}

	if allDay {
		t, err := time.ParseInLocation(graphTimeLayout, dtz.DateTime, time.UTC)
		if err != nil {
			n.logger.Warn("終日イベントのタイムスタンプをパースできません",
				slog.String("datetime", dtz.DateTime),
			)
			return time.Time{}
		}
		return t
	}

	zone := n.loadZone(dtz.TimeZone)
	t, err := time.ParseInLocation(graphTimeLayout, dtz.DateTime, zone)
	if err != nil {
		n.logger.Warn("イベントのタイムスタンプをパースできません",
			slog.String("datetime", dtz.DateTime),
			slog.String("timezone", dtz.TimeZone),
		)
		return time.Time{}
	}
	return t.In(n.loc)
}

// loadZone はプロバイダのゾーン名をtime.Locationに解決する。
// 解決できない場合はUTCとして扱う（Preferヘッダー指定により通常はUTCが返る）。
func (n *Normalizer) loadZone(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	zone, err := time.LoadLocation(name)
	if err != nil {
		n.logger.Warn("未知のタイムゾーン名をUTCとして扱います",
			slog.String("timezone", name),
		)
		return time.UTC
	}
	return zone
}

// buildBody は本文HTMLを構築する。
// インライン画像添付のcid:参照をdata URIに置換し、
// サニタイザが設定されていれば最後にサニタイズする。
func (n *Normalizer) buildBody(ev model.ProviderEvent) string {
	body := ev.Body.Content

	for _, att := range ev.Attachments {
		if !att.IsInline {
			continue
		}
		if !strings.Contains(strings.ToLower(att.ContentType), "image") {
			continue
		}
		if att.ContentBytes == "" || att.ContentID == "" {
			continue
		}

		// cid:参照は大文字小文字を区別せず全出現を置換する。
		// 添付の処理順はプロバイダの返却順。
		pattern, err := regexp.Compile(`(?i)` + regexp.QuoteMeta("cid:"+att.ContentID))
		if err != nil {
			continue
		}
		body = pattern.ReplaceAllLiteralString(body, "data:image;base64,"+att.ContentBytes)
	}

	if n.sanitizer != nil {
		body = n.sanitizer.Sanitize(body)
	}
	return body
}

// resolveColor はカテゴリラベルのリストからカラーを解決する。
// ラベルの並び順で最初に一致したエントリが勝つ。一致がなければ空文字列。
func (n *Normalizer) resolveColor(labels []string) string {
	for _, label := range labels {
		if color, ok := n.categories.ColorFor(label); ok {
			return color
		}
	}
	return ""
}
