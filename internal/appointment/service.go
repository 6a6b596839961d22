// Package appointment は予定クエリのファサードを提供する。
//
// 取得能力は Source インターフェース（今日・期間の2操作）として抽象化し、
// プロバイダ直結の実装とそれをキャッシュで包むデコレータ実装を持つ。
// どちらを使うかは配線時に決まり、実行時の型検査は行わない。
package appointment

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/calman/internal/cache"
	"github.com/hitoshi/calman/internal/model"
)

// todayWindow は「今日」クエリの期間幅（ローカル深夜0時から23時間59分）。
const todayWindow = 23*time.Hour + 59*time.Minute

// Source は予定の取得能力を表すインターフェース。
type Source interface {
	// Today は今日の予定を返す。
	Today(ctx context.Context) ([]model.Appointment, error)
	// Range は指定期間に重なる予定を返す。範囲検証は呼び出し側の責務。
	Range(ctx context.Context, start, end time.Time) ([]model.Appointment, error)
}

// EventQuerier は上流カレンダークライアントのインターフェース。
// graph.Clientが実装する。テスト時にフェイクへ差し替え可能。
type EventQuerier interface {
	ResolveCalendarID(ctx context.Context, calendarName string) (string, error)
	QueryEvents(ctx context.Context, calendarID string, start, end time.Time) ([]model.ProviderEvent, error)
}

// EventNormalizer はプロバイダイベント列の正規化インターフェース。
type EventNormalizer interface {
	NormalizeAll(events []model.ProviderEvent) []model.Appointment
}

// FetchRecorder は上流フェッチの結果とレイテンシの通知先インターフェース。
type FetchRecorder interface {
	RecordFetchSuccess()
	RecordFetchFailure()
	RecordFetchLatency(duration time.Duration)
}

// ProviderSource はプロバイダ直結のSource実装。
// カレンダー名からIDへの解決結果はプロセス生存期間メモ化する
// （名前とIDの対応は安定しているとみなす）。解決失敗は記録しない。
type ProviderSource struct {
	client       EventQuerier
	normalizer   EventNormalizer
	calendarName string
	loc          *time.Location
	logger       *slog.Logger
	recorder     FetchRecorder // nilでメトリクス記録なし
	now          func() time.Time

	mu         sync.Mutex
	calendarID string
}

// NewProviderSource はProviderSourceを生成する。
func NewProviderSource(client EventQuerier, normalizer EventNormalizer, calendarName string, loc *time.Location, logger *slog.Logger) *ProviderSource {
	return &ProviderSource{
		client:       client,
		normalizer:   normalizer,
		calendarName: calendarName,
		loc:          loc,
		logger:       logger,
		now:          time.Now,
	}
}

// SetFetchRecorder は上流フェッチのメトリクス通知先を設定する。
func (s *ProviderSource) SetFetchRecorder(recorder FetchRecorder) {
	s.recorder = recorder
}

// Today は今日の期間（ローカル深夜0時〜23時59分）の予定を返す。
func (s *ProviderSource) Today(ctx context.Context) ([]model.Appointment, error) {
	start, end := todayBounds(s.now().In(s.loc))
	return s.Range(ctx, start, end)
}

// Range は指定期間の予定をプロバイダから取得して正規化する。
// 失敗時はエントリを残さずエラーを伝播する。リトライは行わない。
func (s *ProviderSource) Range(ctx context.Context, start, end time.Time) ([]model.Appointment, error) {
	calendarID, err := s.resolveCalendarID(ctx)
	if err != nil {
		return nil, err
	}

	began := time.Now()
	events, err := s.client.QueryEvents(ctx, calendarID, start, end)
	if s.recorder != nil {
		s.recorder.RecordFetchLatency(time.Since(began))
		if err != nil {
			s.recorder.RecordFetchFailure()
		} else {
			s.recorder.RecordFetchSuccess()
		}
	}
	if err != nil {
		return nil, fmt.Errorf("イベントの取得に失敗しました: %w", err)
	}

	return s.normalizer.NormalizeAll(events), nil
}

// resolveCalendarID はカレンダーIDを解決する。
// 成功した解決結果のみをメモ化し、以降のプロバイダ呼び出しを省略する。
func (s *ProviderSource) resolveCalendarID(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.calendarID != "" {
		return s.calendarID, nil
	}

	id, err := s.client.ResolveCalendarID(ctx, s.calendarName)
	if err != nil {
		return "", err
	}

	s.logger.Info("カレンダーIDを解決しました",
		slog.String("calendar_name", s.calendarName),
	)
	s.calendarID = id
	return id, nil
}

// CachingSource は別のSourceをキャッシュで包むデコレータ。
// 今日クエリは現在のカレンダー日付、期間クエリは日付ペアをキーとする。
type CachingSource struct {
	next  Source
	cache *cache.AppointmentCache
	loc   *time.Location
	now   func() time.Time
}

// NewCachingSource はCachingSourceを生成する。
func NewCachingSource(next Source, c *cache.AppointmentCache, loc *time.Location) *CachingSource {
	return &CachingSource{
		next:  next,
		cache: c,
		loc:   loc,
		now:   time.Now,
	}
}

// Today はキャッシュ経由で今日の予定を返す。
// キーが日付単位のため、深夜0時を跨ぐと明示的な無効化なしにキーが切り替わる。
func (s *CachingSource) Today(ctx context.Context) ([]model.Appointment, error) {
	key := cache.TodayKey(s.now().In(s.loc))
	return s.cache.GetOrFetch(ctx, key, func(ctx context.Context) ([]model.Appointment, error) {
		return s.next.Today(ctx)
	})
}

// Range はキャッシュ経由で期間の予定を返す。
func (s *CachingSource) Range(ctx context.Context, start, end time.Time) ([]model.Appointment, error) {
	key := cache.RangeKey(start, end)
	return s.cache.GetOrFetch(ctx, key, func(ctx context.Context) ([]model.Appointment, error) {
		return s.next.Range(ctx, start, end)
	})
}

// CacheClearer はキャッシュの一括無効化インターフェース。
type CacheClearer interface {
	Clear()
}

// Service は予定クエリの公開操作面。
// 範囲検証を行い、配線されたSourceに委譲する。
type Service struct {
	source  Source
	clearer CacheClearer // nilの場合（キャッシュ無効構成）は何もしない
}

// NewService はServiceを生成する。
func NewService(source Source, clearer CacheClearer) *Service {
	return &Service{
		source:  source,
		clearer: clearer,
	}
}

// Todays は今日の予定を返す。
func (s *Service) Todays(ctx context.Context) ([]model.Appointment, error) {
	return s.source.Today(ctx)
}

// Range は指定期間の予定を返す。
// end < start の場合は検証エラーを返す。start == end は有効。
func (s *Service) Range(ctx context.Context, start, end time.Time) ([]model.Appointment, error) {
	if end.Before(start) {
		return nil, model.NewInvalidRangeError(
			start.Format("2006-01-02"), end.Format("2006-01-02"))
	}
	return s.source.Range(ctx, start, end)
}

// ClearCache はキャッシュの一括無効化を行う。
// キャッシュが配線されていない構成では何もしない（エンドポイントは常に200を返す）。
func (s *Service) ClearCache() {
	if s.clearer != nil {
		s.clearer.Clear()
	}
}

// todayBounds は基準時刻のカレンダー日付に対する今日クエリの期間を返す。
func todayBounds(now time.Time) (time.Time, time.Time) {
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return start, start.Add(todayWindow)
}
