package category

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hitoshi/calman/internal/model"
)

func newTestLogger() *slog.Logger {
	var buf bytes.Buffer
	return slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func writeCategoriesFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "categories.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("テスト用カテゴリファイルの作成に失敗した: %v", err)
	}
	return path
}

func TestMerged_OverrideReplacesDefaultAndComesFirst(t *testing.T) {
	defaults := []model.CategoryDefinition{
		{Name: "Holiday", HTMLColor: "#41DC6A", IsDefault: true},
		{Name: "Payday", HTMLColor: "#FBB117", IsDefault: true},
	}
	overrides := []Override{
		{Name: "Payday", Color: "#00FF00"},
	}

	r := newResolverWithDefaults(defaults, overrides, newTestLogger())
	merged := r.Merged()

	want := []model.CategoryDefinition{
		{Name: "Payday", HTMLColor: "#00FF00", IsDefault: false},
		{Name: "Holiday", HTMLColor: "#41DC6A", IsDefault: true},
	}
	if len(merged) != len(want) {
		t.Fatalf("マージ結果の件数 = %d, want %d", len(merged), len(want))
	}
	for i := range want {
		if merged[i] != want[i] {
			t.Errorf("merged[%d] = %+v, want %+v", i, merged[i], want[i])
		}
	}
}

func TestMerged_CaseInsensitiveShadowing(t *testing.T) {
	defaults := []model.CategoryDefinition{
		{Name: "Holiday", HTMLColor: "#41DC6A", IsDefault: true},
	}
	overrides := []Override{
		{Name: "HOLIDAY", Color: "#123456"},
	}

	r := newResolverWithDefaults(defaults, overrides, newTestLogger())
	merged := r.Merged()

	if len(merged) != 1 {
		t.Fatalf("マージ結果の件数 = %d, want 1（大文字小文字を区別せず上書きされるべき）", len(merged))
	}
	if merged[0].Name != "HOLIDAY" || merged[0].HTMLColor != "#123456" || merged[0].IsDefault {
		t.Errorf("merged[0] = %+v, want カスタムのHOLIDAY", merged[0])
	}
}

func TestMerged_CustomOrderPreserved(t *testing.T) {
	defaults := []model.CategoryDefinition{
		{Name: "Holiday", HTMLColor: "#41DC6A", IsDefault: true},
		{Name: "Payday", HTMLColor: "#FBB117", IsDefault: true},
	}
	overrides := []Override{
		{Name: "Zeta", Color: "#000001"},
		{Name: "Alpha", Color: "#000002"},
	}

	r := newResolverWithDefaults(defaults, overrides, newTestLogger())
	merged := r.Merged()

	wantNames := []string{"Zeta", "Alpha", "Holiday", "Payday"}
	if len(merged) != len(wantNames) {
		t.Fatalf("マージ結果の件数 = %d, want %d", len(merged), len(wantNames))
	}
	for i, name := range wantNames {
		if merged[i].Name != name {
			t.Errorf("merged[%d].Name = %q, want %q（設定順が保持されるべき）", i, merged[i].Name, name)
		}
	}
}

func TestColorFor_CaseInsensitiveLookup(t *testing.T) {
	defaults := []model.CategoryDefinition{
		{Name: "Holiday", HTMLColor: "#41DC6A", IsDefault: true},
	}
	r := newResolverWithDefaults(defaults, nil, newTestLogger())

	color, ok := r.ColorFor("holiday")
	if !ok {
		t.Fatal("holiday（小文字）でカラーが解決できるべき")
	}
	if color != "#41DC6A" {
		t.Errorf("ColorFor = %q, want #41DC6A", color)
	}

	if _, ok := r.ColorFor("unknown"); ok {
		t.Error("未定義カテゴリは ok=false を返すべき")
	}
}

func TestNewResolver_LoadsOverridesFromFile(t *testing.T) {
	path := writeCategoriesFile(t, `categories:
  - name: Payday
    color: "#00FF00"
  - name: 定例会議
    color: "#112233"
`)

	r, err := NewResolver(path, newTestLogger())
	if err != nil {
		t.Fatalf("NewResolver がエラーを返した: %v", err)
	}

	merged := r.Merged()
	if merged[0].Name != "Payday" || merged[0].HTMLColor != "#00FF00" || merged[0].IsDefault {
		t.Errorf("merged[0] = %+v, want カスタムのPayday", merged[0])
	}
	if merged[1].Name != "定例会議" {
		t.Errorf("merged[1].Name = %q, want 定例会議", merged[1].Name)
	}

	color, ok := r.ColorFor("定例会議")
	if !ok || color != "#112233" {
		t.Errorf("ColorFor(定例会議) = %q, %v", color, ok)
	}
}

func TestNewResolver_EmptyPathUsesDefaultsOnly(t *testing.T) {
	r, err := NewResolver("", newTestLogger())
	if err != nil {
		t.Fatalf("NewResolver がエラーを返した: %v", err)
	}

	merged := r.Merged()
	if len(merged) == 0 {
		t.Fatal("デフォルトカテゴリが空であってはならない")
	}
	for _, c := range merged {
		if !c.IsDefault {
			t.Errorf("デフォルトのみの構成でカスタムエントリが混入した: %+v", c)
		}
	}

	// 組み込みデフォルトの代表値を確認
	color, ok := r.ColorFor("Holiday")
	if !ok || color != "#41DC6A" {
		t.Errorf("ColorFor(Holiday) = %q, %v, want #41DC6A", color, ok)
	}
}

func TestNewResolver_InvalidFileReturnsError(t *testing.T) {
	path := writeCategoriesFile(t, "categories: [不正なyaml")

	if _, err := NewResolver(path, newTestLogger()); err == nil {
		t.Fatal("不正なyamlファイルに対して起動時エラーを返すべき")
	}

	if _, err := NewResolver(filepath.Join(t.TempDir(), "missing.yaml"), newTestLogger()); err == nil {
		t.Fatal("存在しないファイルに対して起動時エラーを返すべき")
	}
}

func TestReload_BadFileKeepsPreviousSnapshot(t *testing.T) {
	path := writeCategoriesFile(t, `categories:
  - name: Payday
    color: "#00FF00"
`)

	r, err := NewResolver(path, newTestLogger())
	if err != nil {
		t.Fatalf("NewResolver がエラーを返した: %v", err)
	}

	if err := os.WriteFile(path, []byte("categories: [壊れた"), 0o600); err != nil {
		t.Fatalf("ファイル更新に失敗した: %v", err)
	}

	if err := r.Reload(); err == nil {
		t.Fatal("壊れたファイルのリロードはエラーを返すべき")
	}

	// 旧スナップショットが維持されている
	color, ok := r.ColorFor("Payday")
	if !ok || color != "#00FF00" {
		t.Errorf("リロード失敗後も旧設定が参照できるべき: %q, %v", color, ok)
	}
}

func TestWatch_ReloadsOnFileChange(t *testing.T) {
	path := writeCategoriesFile(t, `categories:
  - name: Payday
    color: "#00FF00"
`)

	r, err := NewResolver(path, newTestLogger())
	if err != nil {
		t.Fatalf("NewResolver がエラーを返した: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		r.Watch(ctx, 10*time.Millisecond)
		close(done)
	}()

	// mtimeの分解能を考慮して未来の更新時刻を明示的に設定する
	if err := os.WriteFile(path, []byte(`categories:
  - name: Payday
    color: "#ABCDEF"
`), 0o600); err != nil {
		t.Fatalf("ファイル更新に失敗した: %v", err)
	}
	future := time.Now().Add(1 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("更新時刻の設定に失敗した: %v", err)
	}

	deadline := time.After(3 * time.Second)
	for {
		if color, _ := r.ColorFor("Payday"); color == "#ABCDEF" {
			break
		}
		select {
		case <-deadline:
			t.Fatal("ファイル変更後のリロードが観測できなかった")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("コンテキストキャンセル後にWatchが停止しなかった")
	}
}
