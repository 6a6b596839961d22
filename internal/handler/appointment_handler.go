package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/calman/internal/middleware"
	"github.com/hitoshi/calman/internal/model"
)

// dateParamLayout はクエリパラメータの日付形式。
const dateParamLayout = "2006-01-02"

// AppointmentServiceInterface は予定ハンドラーが必要とするサービスインターフェース。
type AppointmentServiceInterface interface {
	// Todays は今日の予定を返す。
	Todays(ctx context.Context) ([]model.Appointment, error)
	// Range は指定期間の予定を返す。
	Range(ctx context.Context, start, end time.Time) ([]model.Appointment, error)
	// ClearCache はキャッシュを無効化する。
	ClearCache()
}

// ServedRecorder はレスポンスに載せた予定数を記録するインターフェース。
type ServedRecorder interface {
	RecordAppointmentsServed(count int)
}

// AppointmentHandler は予定取得のHTTPハンドラー。
type AppointmentHandler struct {
	service  AppointmentServiceInterface
	recorder ServedRecorder // nil可
	loc      *time.Location
	logger   *slog.Logger
}

// NewAppointmentHandler はAppointmentHandlerを生成する。
// locはクエリパラメータの日付を解釈するタイムゾーン。
func NewAppointmentHandler(service AppointmentServiceInterface, recorder ServedRecorder, loc *time.Location, logger *slog.Logger) *AppointmentHandler {
	return &AppointmentHandler{
		service:  service,
		recorder: recorder,
		loc:      loc,
		logger:   logger,
	}
}

// statusResponse は操作結果のみを返すレスポンス。
type statusResponse struct {
	Status string `json:"status"`
}

// GetAppointments は予定一覧を取得する。
// GET /api/appointments
//
// startDate/endDateを両方省略すると今日の予定、両方指定すると期間の予定を返す。
// 片方だけの指定は検証エラーとする。
func (h *AppointmentHandler) GetAppointments(w http.ResponseWriter, r *http.Request) {
	startParam := r.URL.Query().Get("startDate")
	endParam := r.URL.Query().Get("endDate")

	var (
		appointments []model.Appointment
		err          error
	)

	switch {
	case startParam == "" && endParam == "":
		appointments, err = h.service.Todays(r.Context())

	case startParam == "" || endParam == "":
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewMissingDateParamError())
		return

	default:
		start, perr := time.ParseInLocation(dateParamLayout, startParam, h.loc)
		if perr != nil {
			middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidDateFormatError("startDate", startParam))
			return
		}
		end, perr := time.ParseInLocation(dateParamLayout, endParam, h.loc)
		if perr != nil {
			middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidDateFormatError("endDate", endParam))
			return
		}

		// 終了日はその日のほぼ終わりまでを含む
		appointments, err = h.service.Range(r.Context(), start, end.Add(23*time.Hour+59*time.Minute))
	}

	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	if appointments == nil {
		appointments = []model.Appointment{}
	}
	if h.recorder != nil {
		h.recorder.RecordAppointmentsServed(len(appointments))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(appointments)
}

// ClearCache は予定キャッシュを無効化する。
// GET /api/appointments/cache/clear
func (h *AppointmentHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	h.service.ClearCache()

	h.logger.Info("キャッシュを無効化しました",
		slog.String("remote_addr", r.RemoteAddr),
	)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(statusResponse{Status: "キャッシュを無効化しました。"})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
//
// 検証エラーは400、カレンダー未検出（構成ミス）は500、
// それ以外の上流障害は502として扱う。詳細はログのみに記録する。
// レスポンスの書き込みはミドルウェア層と共通のライターに委譲する。
func (h *AppointmentHandler) handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	if errors.Is(err, model.ErrCalendarNotFound) {
		h.logger.Error("カレンダーの解決に失敗しました", slog.String("error", err.Error()))
		middleware.WriteErrorResponse(w, http.StatusInternalServerError, model.NewCalendarNotFoundError())
		return
	}

	h.logger.Error("上流カレンダーの取得に失敗しました", slog.String("error", err.Error()))
	middleware.WriteErrorResponse(w, http.StatusBadGateway, model.NewUpstreamError())
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeInvalidRange,
		model.ErrCodeMissingDateParam,
		model.ErrCodeInvalidDateFormat:
		return http.StatusBadRequest
	case model.ErrCodeCalendarNotFound:
		return http.StatusInternalServerError
	case model.ErrCodeUpstreamFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
