// Package cache は正規化済み予定のプロセス内キャッシュを提供する。
//
// クエリ形状から導出したキーごとに、絶対時刻の期限を持つエントリを保持する。
// 期限切れの掃除は行わず、読み取り時に遅延判定する（期限切れは不在と同じ）。
// 同一キーへの同時ミスはシングルフライトで1回の上流フェッチに集約される。
package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hitoshi/calman/internal/model"
)

// keyDateLayout はキャッシュキーに使用する日付形式。
// 「今日」クエリのキーは日付単位のため、ローカル深夜0時に自然にロールオーバーする。
const keyDateLayout = "2006-01-02"

// TodayKey は「今日」クエリのキャッシュキーを返す。
// 呼び出し時点のカレンダー日付（配信ゾーン基準）から導出する。
func TodayKey(t time.Time) string {
	return t.Format(keyDateLayout)
}

// RangeKey は期間クエリのキャッシュキーを返す。
// 日付粒度であり、時刻成分はキーに影響しない。
func RangeKey(start, end time.Time) string {
	return start.Format(keyDateLayout) + "_" + end.Format(keyDateLayout)
}

// MetricsRecorder はキャッシュのヒット・ミスを記録するインターフェース。
type MetricsRecorder interface {
	RecordCacheHit()
	RecordCacheMiss()
}

// FetchFunc はキャッシュミス時に呼ばれる上流フェッチ関数。
// プロバイダ呼び出しと正規化を行う。
type FetchFunc func(ctx context.Context) ([]model.Appointment, error)

// entry はキャッシュエントリ。期限は生成時刻 + 有効期間で絶対時刻として確定する。
type entry struct {
	value     []model.Appointment
	createdAt time.Time
	expiresAt time.Time
}

// AppointmentCache は予定のキー付きキャッシュ。
// エントリの生存期間はこのキャッシュが排他的に所有する。
type AppointmentCache struct {
	ttl     time.Duration
	loc     *time.Location
	metrics MetricsRecorder // nilの場合は記録しない
	now     func() time.Time

	mu      sync.Mutex
	entries map[string]entry

	group singleflight.Group
}

// New はAppointmentCacheを生成する。
// ttlは検証済みの正の期間であること（configが1〜1440分を保証する）。
// locは「今日」キーの算出に使用する配信タイムゾーン。
func New(ttl time.Duration, loc *time.Location, metrics MetricsRecorder) *AppointmentCache {
	return &AppointmentCache{
		ttl:     ttl,
		loc:     loc,
		metrics: metrics,
		now:     time.Now,
		entries: make(map[string]entry),
	}
}

// GetOrFetch はキーに対応する生存中のエントリを返す。
// エントリが存在しない・期限切れの場合はfetchを呼び、結果を新しい期限付きで
// 格納して返す。同一キーに対する同時フェッチは1回に集約され、
// 待機中の呼び出しは全て同じ結果を受け取る。
//
// 呼び出し元のコンテキストがキャンセルされた場合、その呼び出しの待機のみを
// 中断する。進行中のフェッチ自体は継続し、他の待機者と将来の呼び出しの
// ためにキャッシュへ書き込まれる。
//
// フェッチ失敗時は何も格納しない（失敗結果でキャッシュを汚染しない）。
func (c *AppointmentCache) GetOrFetch(ctx context.Context, key string, fetch FetchFunc) ([]model.Appointment, error) {
	if value, ok := c.lookup(key); ok {
		if c.metrics != nil {
			c.metrics.RecordCacheHit()
		}
		return value, nil
	}

	ch := c.group.DoChan(key, func() (any, error) {
		// フェッチ中に別のフライトが完了・格納している場合があるため再確認する
		if value, ok := c.lookup(key); ok {
			return value, nil
		}

		if c.metrics != nil {
			c.metrics.RecordCacheMiss()
		}

		// フェッチは呼び出し元のキャンセルから切り離す
		value, err := fetch(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}

		c.store(key, value)
		return value, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]model.Appointment), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Invalidate は指定キーのエントリを即時に削除する。
// 次のGetOrFetchは必ずミスしてフェッチし直す。
func (c *AppointmentCache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()

	// 進行中のフライト結果を次回呼び出しが採用しないようにする
	c.group.Forget(key)
}

// Clear は「今日」キーのエントリを無効化する。
// 保証するのは最もアクセス頻度の高い現在日付のキーのみで、
// その他のキーは有効期限による自然な失効に委ねる（仕様上の緩和された保証）。
func (c *AppointmentCache) Clear() {
	c.Invalidate(TodayKey(c.now().In(c.loc)))
}

// lookup は生存中のエントリを返す。期限切れエントリは不在として扱い、削除する。
func (c *AppointmentCache) lookup(key string) ([]model.Appointment, bool) {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !e.expiresAt.After(now) {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

// store はエントリを新しい絶対期限付きで格納する。
func (c *AppointmentCache) store(key string, value []model.Appointment) {
	now := c.now()

	c.mu.Lock()
	c.entries[key] = entry{
		value:     value,
		createdAt: now,
		expiresAt: now.Add(c.ttl),
	}
	c.mu.Unlock()
}
