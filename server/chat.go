package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/flowchat-io/flowchat/store"
)

type chatRequest struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
	Message  string `json:"message"`
}

type chatResponse struct {
	Text   string   `json:"text"`
	Button []string `json:"button,omitempty"`
}

func (s *Server) chat(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request").SetInternal(err)
	}
	if req.UserID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id required")
	}
	if req.Message == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message required")
	}

	out, err := s.service.HandleMessage(c.Request().Context(), req.UserID, req.UserName, req.Message)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to handle message").SetInternal(err)
	}
	return c.JSON(http.StatusOK, chatResponse{Text: out.Text, Button: out.Button})
}

type conversationResponse struct {
	UID       string          `json:"uid"`
	UserID    string          `json:"user_id"`
	UserName  string          `json:"user_name"`
	Version   string          `json:"version"`
	Intent    json.RawMessage `json:"intent"`
	Slots     json.RawMessage `json:"slots"`
	Response  json.RawMessage `json:"response,omitempty"`
	CreatedTs int64           `json:"created_ts"`
}

func toConversationResponse(record *store.ConversationRecord) conversationResponse {
	out := conversationResponse{
		UID:       record.UID,
		UserID:    record.UserID,
		UserName:  record.UserName,
		Version:   record.Version,
		Intent:    json.RawMessage(record.Intent),
		Slots:     json.RawMessage(record.Slots),
		CreatedTs: record.CreatedTs,
	}
	if record.Response != nil {
		out.Response = json.RawMessage(*record.Response)
	}
	return out
}

func parseLimit(c echo.Context, fallback int) (int, error) {
	raw := c.QueryParam("limit")
	if raw == "" {
		return fallback, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
	}
	return limit, nil
}

// listConversations returns the newest snapshot per user.
func (s *Server) listConversations(c echo.Context) error {
	if s.store == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "persistence disabled")
	}
	limit, err := parseLimit(c, 50)
	if err != nil {
		return err
	}

	records, err := s.store.ListLatestConversationRecords(c.Request().Context(), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list conversations").SetInternal(err)
	}

	out := make([]conversationResponse, 0, len(records))
	for _, record := range records {
		out = append(out, toConversationResponse(record))
	}
	return c.JSON(http.StatusOK, out)
}

// conversationHistory returns one user's turns, newest first.
func (s *Server) conversationHistory(c echo.Context) error {
	if s.store == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "persistence disabled")
	}
	userID := c.Param("user_id")
	if userID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id required")
	}
	limit, err := parseLimit(c, 50)
	if err != nil {
		return err
	}

	records, err := s.store.ListConversationRecords(c.Request().Context(), &store.FindConversationRecord{
		UserID: &userID,
		Limit:  &limit,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list conversation history").SetInternal(err)
	}

	out := make([]conversationResponse, 0, len(records))
	for _, record := range records {
		out = append(out, toConversationResponse(record))
	}
	return c.JSON(http.StatusOK, out)
}
