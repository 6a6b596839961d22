package handler

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/calman/internal/model"
)

// CategoryProviderInterface はカテゴリハンドラーが必要とするインターフェース。
// category.Resolverが実装する。
type CategoryProviderInterface interface {
	// Merged はカスタム定義を優先したマージ済みカテゴリ一覧を返す。
	Merged() []model.CategoryDefinition
}

// CategoryHandler はカテゴリ定義のHTTPハンドラー。
type CategoryHandler struct {
	provider CategoryProviderInterface
}

// NewCategoryHandler はCategoryHandlerを生成する。
func NewCategoryHandler(provider CategoryProviderInterface) *CategoryHandler {
	return &CategoryHandler{provider: provider}
}

// ListCategories は有効なカテゴリ定義の一覧を返す。
// GET /api/categories
func (h *CategoryHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories := h.provider.Merged()
	if categories == nil {
		categories = []model.CategoryDefinition{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(categories)
}
