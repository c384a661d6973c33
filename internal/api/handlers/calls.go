package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/acme/callbridge/internal/domain"
	callsvc "github.com/acme/callbridge/internal/service/call"
	"github.com/acme/callbridge/pkg/calls"
)

// IdempotencyHeader carries the client key that makes call placement retry-safe.
const IdempotencyHeader = "Idempotency-Key"

const (
	defaultPageLimit = 50
	maxPageLimit     = 500
)

type placeCallRequest struct {
	From  string `json:"from"`
	To    string `json:"to"`
	URL   string `json:"url"`
	TwiML string `json:"twiml"`
}

type callResponse struct {
	SID      string       `json:"sid"`
	From     string       `json:"from"`
	To       string       `json:"to"`
	Status   calls.Status `json:"status"`
	Terminal bool         `json:"terminal"`
}

type callEntryResponse struct {
	SID          string       `json:"sid"`
	From         string       `json:"from"`
	To           string       `json:"to"`
	LastStatus   calls.Status `json:"last_status"`
	Provider     string       `json:"provider"`
	Observations int64        `json:"observations"`
	FirstSeenAt  time.Time    `json:"first_seen_at"`
	LastSeenAt   time.Time    `json:"last_seen_at"`
}

type listCallsResponse struct {
	Calls    []callEntryResponse `json:"calls"`
	AfterSID string              `json:"next_after_sid,omitempty"`
}

type snapshotResponse struct {
	ID         uuid.UUID              `json:"id"`
	Status     calls.Status           `json:"status"`
	Kind       domain.ObservationKind `json:"kind"`
	Provider   string                 `json:"provider"`
	ObservedAt time.Time              `json:"observed_at"`
}

type listSnapshotsResponse struct {
	SID       string             `json:"sid"`
	Snapshots []snapshotResponse `json:"snapshots"`
	NextPage  string             `json:"next_page_token,omitempty"`
}

func (h *HandlerSet) placeCall(ctx *fiber.Ctx) error {
	var req placeCallRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}

	result, err := h.calls.Place(ctx.UserContext(), callsvc.PlaceInput{
		From:           req.From,
		To:             req.To,
		URL:            req.URL,
		TwiML:          req.TwiML,
		IdempotencyKey: ctx.Get(IdempotencyHeader),
	})
	if err != nil {
		return translateError(err)
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	return ctx.Status(status).JSON(toCallResponse(result.Call))
}

func (h *HandlerSet) getCall(ctx *fiber.Ctx) error {
	call, err := h.calls.Get(ctx.UserContext(), ctx.Params("sid"))
	if err != nil {
		return translateError(err)
	}
	return ctx.Status(http.StatusOK).JSON(toCallResponse(call))
}

func (h *HandlerSet) listCalls(ctx *fiber.Ctx) error {
	limit, err := queryLimit(ctx)
	if err != nil {
		return err
	}

	entries, err := h.calls.List(ctx.UserContext(), ctx.Query("after_sid"), limit)
	if err != nil {
		return translateError(err)
	}

	resp := listCallsResponse{Calls: make([]callEntryResponse, 0, len(entries))}
	for _, e := range entries {
		resp.Calls = append(resp.Calls, callEntryResponse{
			SID:          e.SID,
			From:         e.From,
			To:           e.To,
			LastStatus:   e.LastStatus,
			Provider:     e.Provider,
			Observations: e.Observations,
			FirstSeenAt:  e.FirstSeenAt,
			LastSeenAt:   e.LastSeenAt,
		})
	}
	// A short page is the last one.
	if n := len(entries); n > 0 && n == limit {
		resp.AfterSID = entries[n-1].SID
	}
	return ctx.Status(http.StatusOK).JSON(resp)
}

func (h *HandlerSet) listSnapshots(ctx *fiber.Ctx) error {
	limit, err := queryLimit(ctx)
	if err != nil {
		return err
	}

	sid := ctx.Params("sid")
	result, err := h.calls.History(ctx.UserContext(), sid, limit, ctx.Query("page_token"))
	if err != nil {
		return translateError(err)
	}

	resp := listSnapshotsResponse{
		SID:       sid,
		Snapshots: make([]snapshotResponse, 0, len(result.Snapshots)),
		NextPage:  result.NextPageToken,
	}
	for _, s := range result.Snapshots {
		resp.Snapshots = append(resp.Snapshots, snapshotResponse{
			ID:         s.ID,
			Status:     s.Status,
			Kind:       s.Kind,
			Provider:   s.Provider,
			ObservedAt: s.ObservedAt,
		})
	}
	return ctx.Status(http.StatusOK).JSON(resp)
}

// queryLimit resolves the page size so handlers know whether a page came back full.
func queryLimit(ctx *fiber.Ctx) (int, error) {
	raw := ctx.Query("limit")
	if raw == "" {
		return defaultPageLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, fiber.NewError(http.StatusBadRequest, "invalid limit")
	}
	if limit == 0 {
		return defaultPageLimit, nil
	}
	return min(limit, maxPageLimit), nil
}

func toCallResponse(call calls.Call) callResponse {
	return callResponse{
		SID:      call.SID,
		From:     call.From,
		To:       call.To,
		Status:   call.Status,
		Terminal: call.Status.Terminal(),
	}
}
