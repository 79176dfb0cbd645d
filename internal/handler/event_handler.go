package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/acadport/internal/middleware"
	"github.com/hitoshi/acadport/internal/model"
	"github.com/hitoshi/acadport/internal/security"
)

// upcomingEventsLimit は一覧取得で返すイベントの最大件数。
const upcomingEventsLimit = 50

// EventStore は学内イベントハンドラーが必要とする永続化インターフェース。
// repository.EventRepositoryの部分集合として定義する。
type EventStore interface {
	Create(ctx context.Context, event *model.Event) error
	ListFrom(ctx context.Context, from time.Time, limit int) ([]model.Event, error)
}

// EventHandler は学内イベントのHTTPハンドラー。
type EventHandler struct {
	events    EventStore
	sanitizer security.ContentSanitizerService
	staff     StaffProfileFinder
}

// NewEventHandler はEventHandlerを生成する。
func NewEventHandler(events EventStore, sanitizer security.ContentSanitizerService, staff StaffProfileFinder) *EventHandler {
	return &EventHandler{
		events:    events,
		sanitizer: sanitizer,
		staff:     staff,
	}
}

// createEventRequest はイベント作成リクエストのボディ。
type createEventRequest struct {
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description" validate:"max=5000"`
	Date        string `json:"date" validate:"required,datetime=2006-01-02"`
}

// eventResponse は学内イベントのAPIレスポンス。
type eventResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Date        string `json:"date"`
	CreatedBy   string `json:"created_by,omitempty"`
}

// List は今日以降のイベントを日付順に返す。
// GET /api/events
func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	events, err := h.events.ListFrom(r.Context(), from, upcomingEventsLimit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	responses := make([]eventResponse, 0, len(events))
	for i := range events {
		responses = append(responses, toEventResponse(&events[i]))
	}
	writeJSON(w, http.StatusOK, responses)
}

// Create は学内イベントを作成する。
// POST /api/events
func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req createEventRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	// created_byにはユーザーIDではなく教職員プロフィールIDを記録する
	creator, err := h.staff.FindByUserID(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if creator == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewStaffNotFoundError())
		return
	}

	date, _ := time.Parse("2006-01-02", req.Date)
	event := &model.Event{
		ID:          uuid.New().String(),
		Name:        h.sanitizer.SanitizeText(req.Name),
		Description: h.sanitizer.SanitizeHTML(req.Description),
		Date:        date,
		CreatedBy:   creator.ID,
		CreatedAt:   time.Now(),
	}

	if err := h.events.Create(r.Context(), event); err != nil {
		handleServiceError(w, err)
		return
	}

	slog.Info("event created",
		slog.String("event_id", event.ID),
		slog.String("name", event.Name),
	)
	writeJSON(w, http.StatusCreated, toEventResponse(event))
}

// toEventResponse はmodel.EventからAPIレスポンスに変換する。
func toEventResponse(event *model.Event) eventResponse {
	return eventResponse{
		ID:          event.ID,
		Name:        event.Name,
		Description: event.Description,
		Date:        event.Date.Format("2006-01-02"),
		CreatedBy:   event.CreatedBy,
	}
}
