// Package category はカテゴリ名とカラーの対応解決を提供する。
//
// 組み込みデフォルトと設定ファイルによる上書きをマージし、
// イベント正規化時のカラー解決とカテゴリ一覧エンドポイントの両方から参照される。
// マージ済みセットはスナップショットとして保持し、ホットリロード時は
// 完全に構築してから入れ替える。読み手が部分更新を観測することはない。
package category

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hitoshi/calman/internal/model"
)

// defaultCategories は組み込みデフォルトのカテゴリ定義。
// 宣言順がマージ結果の順序に反映されるため、並び替えてはならない。
var defaultCategories = []model.CategoryDefinition{
	{Name: "Holiday", HTMLColor: "#41DC6A", IsDefault: true},
	{Name: "Payday", HTMLColor: "#FBB117", IsDefault: true},
	{Name: "Birthday", HTMLColor: "#C45AEC", IsDefault: true},
	{Name: "Vacation", HTMLColor: "#3EA99F", IsDefault: true},
}

// Override は設定ファイルで指定するカテゴリ上書きの1エントリ。
type Override struct {
	Name  string `yaml:"name"`
	Color string `yaml:"color"`
}

// overridesFile はカテゴリ上書き設定ファイルの構造。
type overridesFile struct {
	Categories []Override `yaml:"categories"`
}

// snapshot はマージ済みカテゴリセットの不変スナップショット。
type snapshot struct {
	merged []model.CategoryDefinition
	index  map[string]string // 小文字化した名前 -> カラー
}

// Resolver はマージ済みカテゴリセットを保持し、カラー解決を提供する。
// スナップショットの入れ替えのみ排他し、読み取りはRLockで行う。
type Resolver struct {
	defaults []model.CategoryDefinition
	path     string // 上書き設定ファイルのパス。空文字列の場合はデフォルトのみ
	logger   *slog.Logger

	mu    sync.RWMutex
	snap  *snapshot
	mtime time.Time
}

// NewResolver はResolverを生成し、初回のマージを行う。
// pathが空文字列の場合は組み込みデフォルトのみを使用する。
// 起動時に設定ファイルが読めない・パースできない場合はエラーを返す。
func NewResolver(path string, logger *slog.Logger) (*Resolver, error) {
	r := &Resolver{
		defaults: defaultCategories,
		path:     path,
		logger:   logger,
	}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// newResolverWithDefaults はテスト用にデフォルトセットを差し替えたResolverを生成する。
func newResolverWithDefaults(defaults []model.CategoryDefinition, overrides []Override, logger *slog.Logger) *Resolver {
	r := &Resolver{
		defaults: defaults,
		logger:   logger,
	}
	r.swap(buildSnapshot(defaults, overrides))
	return r
}

// Merged はマージ済みカテゴリ定義の順序付きコピーを返す。
// 順序: 上書きエントリを設定順に、続いて上書きされなかったデフォルトを宣言順に。
// この順序はカテゴリ一覧エンドポイントでそのまま観測される。
func (r *Resolver) Merged() []model.CategoryDefinition {
	r.mu.RLock()
	snap := r.snap
	r.mu.RUnlock()

	out := make([]model.CategoryDefinition, len(snap.merged))
	copy(out, snap.merged)
	return out
}

// ColorFor はカテゴリラベルに対応するカラーを返す。
// 照合は大文字小文字を区別しない。未定義の場合は ok=false。
func (r *Resolver) ColorFor(label string) (string, bool) {
	r.mu.RLock()
	snap := r.snap
	r.mu.RUnlock()

	color, ok := snap.index[strings.ToLower(label)]
	return color, ok
}

// Reload は設定ファイルを読み直してスナップショットを再構築する。
// 進行中のリクエストは旧スナップショットを参照し続ける。
func (r *Resolver) Reload() error {
	var overrides []Override
	var mtime time.Time

	if r.path != "" {
		info, err := os.Stat(r.path)
		if err != nil {
			return fmt.Errorf("カテゴリ設定ファイルの参照に失敗しました: %w", err)
		}
		mtime = info.ModTime()

		data, err := os.ReadFile(r.path)
		if err != nil {
			return fmt.Errorf("カテゴリ設定ファイルの読み込みに失敗しました: %w", err)
		}

		var f overridesFile
		if err := yaml.Unmarshal(data, &f); err != nil {
			return fmt.Errorf("カテゴリ設定ファイルのパースに失敗しました: %w", err)
		}
		overrides = f.Categories
	}

	r.mu.Lock()
	r.snap = buildSnapshot(r.defaults, overrides)
	r.mtime = mtime
	r.mu.Unlock()
	return nil
}

// Watch は設定ファイルの更新時刻を定期的にポーリングし、
// 変更を検出したらスナップショットを再構築する。
// リロード失敗時は旧スナップショットを維持してログに記録する。
// コンテキストがキャンセルされるまで実行を継続する。
func (r *Resolver) Watch(ctx context.Context, interval time.Duration) {
	if r.path == "" || interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info("カテゴリ設定ファイルの監視を開始しました",
		slog.String("path", r.path),
		slog.Duration("interval", interval),
	)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("カテゴリ設定ファイルの監視を停止しました")
			return
		case <-ticker.C:
			info, err := os.Stat(r.path)
			if err != nil {
				r.logger.Warn("カテゴリ設定ファイルの参照に失敗しました",
					slog.String("path", r.path),
					slog.String("error", err.Error()),
				)
				continue
			}

			r.mu.RLock()
			changed := info.ModTime().After(r.mtime)
			r.mu.RUnlock()
			if !changed {
				continue
			}

			if err := r.Reload(); err != nil {
				r.logger.Error("カテゴリ設定のリロードに失敗しました。旧設定を維持します",
					slog.String("path", r.path),
					slog.String("error", err.Error()),
				)
				continue
			}
			r.logger.Info("カテゴリ設定をリロードしました",
				slog.String("path", r.path),
			)
		}
	}
}

// swap はスナップショットを入れ替える。
func (r *Resolver) swap(snap *snapshot) {
	r.mu.Lock()
	r.snap = snap
	r.mu.Unlock()
}

// buildSnapshot はデフォルトと上書きからマージ済みスナップショットを構築する。
// 上書きエントリを設定順に先頭へ置き、同名（大文字小文字を区別しない）の
// デフォルトは除外する。残ったデフォルトは宣言順に続ける。
func buildSnapshot(defaults []model.CategoryDefinition, overrides []Override) *snapshot {
	merged := make([]model.CategoryDefinition, 0, len(overrides)+len(defaults))
	index := make(map[string]string, len(overrides)+len(defaults))

	for _, o := range overrides {
		key := strings.ToLower(o.Name)
		if _, exists := index[key]; exists {
			// 上書きリスト内の重複は最初のエントリを優先する
			continue
		}
		merged = append(merged, model.CategoryDefinition{
			Name:      o.Name,
			HTMLColor: o.Color,
			IsDefault: false,
		})
		index[key] = o.Color
	}

	for _, d := range defaults {
		key := strings.ToLower(d.Name)
		if _, exists := index[key]; exists {
			continue
		}
		merged = append(merged, d)
		index[key] = d.HTMLColor
	}

	return &snapshot{merged: merged, index: index}
}
