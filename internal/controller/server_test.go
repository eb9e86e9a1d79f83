package controller

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Freeeeeet/pbl_scheduler/internal/clock"
	"github.com/Freeeeeet/pbl_scheduler/internal/controller/handlers"
	"github.com/Freeeeeet/pbl_scheduler/internal/partner"
	"github.com/Freeeeeet/pbl_scheduler/internal/repository/memory"
	"github.com/Freeeeeet/pbl_scheduler/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var now = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	logger := zap.NewNop()
	store := memory.NewStore()
	clk := clock.Fake(now)
	provider := partner.NewMockProvider(store)

	assignments := service.NewAssignmentService(store, partner.DefaultAliases(), service.DefaultPruneConfig(), clk, logger)
	availability := service.NewAvailabilityService(store, provider, assignments, clk, time.UTC, logger)
	slots := service.NewSlotService(store, clk, time.UTC, logger)
	bookings := service.NewBookingService(store, availability, clk, time.UTC, logger)
	users := service.NewUserService(store, provider, assignments, service.NewTokenIssuer("secret", time.Hour, clk), clk, logger)

	h := handlers.NewHandlers(users, slots, bookings, availability, clk, time.UTC, logger)
	srv := httptest.NewServer(NewHTTPController(h, nil, logger).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func call(t *testing.T, srv *httptest.Server, method, path, token string, body any) (int, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, srv.URL+"/api/v1"+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out any
	if resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	if m, ok := out.(map[string]any); ok {
		return resp.StatusCode, m
	}
	return resp.StatusCode, map[string]any{"items": out}
}

func login(t *testing.T, srv *httptest.Server, ssoToken string) string {
	t.Helper()
	status, body := call(t, srv, http.MethodPost, "/auth/sso", "", map[string]string{"token": ssoToken})
	require.Equal(t, http.StatusOK, status, body)
	return body["access_token"].(string)
}

func TestBookingFlowOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	faculty := login(t, srv, "mock_faculty")
	student := login(t, srv, "mock_student")

	status, body := call(t, srv, http.MethodPost, "/faculty/subject", faculty, map[string]string{"subject": "fswd"})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "Web Development", body["subject"])

	start := now.Add(24 * time.Hour)
	status, body = call(t, srv, http.MethodPost, "/faculty/slots/bulk", faculty, map[string]any{
		"start_time":     start,
		"end_time":       start.Add(time.Hour),
		"slot_duration":  15,
		"break_duration": 5,
	})
	require.Equal(t, http.StatusCreated, status, body)
	assert.Len(t, body["items"], 3)

	status, body = call(t, srv, http.MethodGet, "/student/slots?date="+start.Format("2006-01-02"), student, nil)
	require.Equal(t, http.StatusOK, status, body)
	slots := body["items"].([]any)
	require.Len(t, slots, 3)
	first := slots[0].(map[string]any)["id"].(string)
	second := slots[1].(map[string]any)["id"].(string)

	status, body = call(t, srv, http.MethodPost, "/student/bookings", student, map[string]string{"slot_id": first})
	require.Equal(t, http.StatusCreated, status, body)
	bookingID := body["id"].(string)
	assert.Equal(t, "confirmed", body["status"])

	status, body = call(t, srv, http.MethodPost, "/student/bookings", student, map[string]string{"slot_id": second})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "You already have a booking for this subject on this day.", body["detail"])

	status, body = call(t, srv, http.MethodDelete, "/faculty/today-slots", faculty, nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, float64(0), body["deleted_count"])

	status, body = call(t, srv, http.MethodPost, "/student/bookings/"+bookingID+"/cancel", student, map[string]string{"reason": "clash"})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "cancelled", body["status"])

	status, body = call(t, srv, http.MethodGet, "/faculty/bookings", faculty, nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.Len(t, body["items"], 1)
}

func TestAuthAndErrorMapping(t *testing.T) {
	srv := newTestServer(t)
	student := login(t, srv, "mock_student")
	faculty := login(t, srv, "mock_faculty")

	status, _ := call(t, srv, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, status)

	status, _ = call(t, srv, http.MethodGet, "/users/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = call(t, srv, http.MethodGet, "/users/me", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body := call(t, srv, http.MethodGet, "/users/me", student, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "student", body["role"])

	status, _ = call(t, srv, http.MethodGet, "/faculty/slots", student, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = call(t, srv, http.MethodDelete, "/faculty/slots/00000000-0000-0000-0000-000000000001", faculty, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = call(t, srv, http.MethodDelete, "/faculty/slots/not-a-uuid", faculty, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = call(t, srv, http.MethodPost, "/student/bookings", student, map[string]string{"slot_id": "nope"})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, map[string]any{"SlotID": "uuid"}, body["fields"])

	status, _ = call(t, srv, http.MethodPost, "/auth/sso", "", map[string]string{"token": "bad"})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body = call(t, srv, http.MethodGet, "/student/slots?date=02-03-2026", student, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body["detail"], "Invalid date")
}
