package availability

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandlerSlots(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store, &fakeBooked{})
	if err := svc.SetWeeklyTemplate(context.Background(), storedWeek(t)); err != nil {
		t.Fatal(err)
	}
	h := NewHandler(svc, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/slots?date=2026-01-05", nil)
	rec := httptest.NewRecorder()
	h.Slots(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp slotsResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Date != "2026-01-05" {
		t.Fatalf("unexpected date %q", resp.Date)
	}
	if len(resp.Slots) != 14 {
		t.Fatalf("expected 14 slots, got %d", len(resp.Slots))
	}
}

func TestHandlerSlotsRejectsMissingDate(t *testing.T) {
	h := NewHandler(newTestService(t, newFakeStore(), nil), nil)

	rec := httptest.NewRecorder()
	h.Slots(rec, httptest.NewRequest(http.MethodGet, "/api/slots", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandlerSlotsEmptyDayIsEmptyArray(t *testing.T) {
	h := NewHandler(newTestService(t, newFakeStore(), &fakeBooked{}), nil)

	// Tuesday is off in the default week; the body must carry [] not null.
	req := httptest.NewRequest(http.MethodGet, "/api/slots?date=2026-01-06", nil)
	rec := httptest.NewRecorder()
	h.Slots(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"slots":[]`) {
		t.Fatalf("expected empty slots array, got %s", rec.Body.String())
	}
}

func TestHandlerSetWeeklyTemplateRejectsInvalidWindow(t *testing.T) {
	h := NewHandler(newTestService(t, newFakeStore(), nil), nil)

	body := `{"mon":{"start":"18:00","end":"10:00"}}`
	req := httptest.NewRequest(http.MethodPut, "/api/schedule/template", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.SetWeeklyTemplate(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandlerOverrideLifecycle(t *testing.T) {
	store := newFakeStore()
	h := NewHandler(newTestService(t, store, &fakeBooked{}), nil)

	body := `{"date":"2026-01-05","is_day_off":true}`
	req := httptest.NewRequest(http.MethodPut, "/api/schedule/overrides", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.SetDateOverride(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(store.overrides) != 1 {
		t.Fatalf("expected stored override, got %d", len(store.overrides))
	}

	req = httptest.NewRequest(http.MethodDelete, "/api/schedule/overrides?date=2026-01-05", nil)
	rec = httptest.NewRecorder()
	h.ClearDateOverride(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}

	// Clearing again hits the not-found path.
	rec = httptest.NewRecorder()
	h.ClearDateOverride(rec, httptest.NewRequest(http.MethodDelete, "/api/schedule/overrides?date=2026-01-05", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandlerOverrideRejectsBadDate(t *testing.T) {
	h := NewHandler(newTestService(t, newFakeStore(), nil), nil)

	req := httptest.NewRequest(http.MethodPut, "/api/schedule/overrides", strings.NewReader(`{"date":"Jan 5"}`))
	rec := httptest.NewRecorder()
	h.SetDateOverride(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
