package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	flytimesqlite "github.com/skyfleet/flytime/internal/services/flytime/storage/sqlite"
)

func TestHealthEndpoint(t *testing.T) {
	mux := NewHandler(openTempStore(t)).Routes()

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("health status = %d, want %d", rr.Code, http.StatusOK)
	}
	var body map[string]bool
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode health body: %v", err)
	}
	if !body["ok"] {
		t.Fatalf("health body = %v, want ok=true", body)
	}
}

func TestDronesEndpoint(t *testing.T) {
	store := openTempStore(t)
	if err := store.RegisterDrone(context.Background(), "SN-1", "M350", "v1.0.0"); err != nil {
		t.Fatalf("register drone: %v", err)
	}
	mux := NewHandler(store).Routes()

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/drones", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("drones status = %d, want %d", rr.Code, http.StatusOK)
	}
	var body []map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode drones body: %v", err)
	}
	if len(body) != 1 {
		t.Fatalf("drones len = %d, want 1", len(body))
	}
	if body[0]["drone_sn"] != "SN-1" || body[0]["drone_type"] != "M350" {
		t.Fatalf("drone body = %v", body[0])
	}
}

func TestSummaryEndpoint(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	if err := store.RegisterDrone(ctx, "SN-1", "", ""); err != nil {
		t.Fatalf("register drone: %v", err)
	}
	if _, err := store.OpenToday(ctx, "SN-1", now, 500); err != nil {
		t.Fatalf("open today: %v", err)
	}
	if err := store.ReviseAnchorOnFirstSignal(ctx, "SN-1", now, 500); err != nil {
		t.Fatalf("revise: %v", err)
	}
	// 3661 seconds of flight -> 01:01.
	if err := store.UpdateTotal(ctx, "SN-1", now, 4161); err != nil {
		t.Fatalf("update: %v", err)
	}

	mux := NewHandler(store).Routes()
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/summary?start=2026-03-01&end=2026-03-02", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("summary status = %d, want %d", rr.Code, http.StatusOK)
	}
	var body []struct {
		DroneSN      string `json:"drone_sn"`
		TotalSeconds int64  `json:"total_seconds"`
		TotalHHMM    string `json:"total_hhmm"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode summary body: %v", err)
	}
	if len(body) != 1 {
		t.Fatalf("summary len = %d, want 1", len(body))
	}
	if body[0].TotalSeconds != 3661 || body[0].TotalHHMM != "01:01" {
		t.Fatalf("summary = %+v, want 3661 seconds / 01:01", body[0])
	}
}

func TestDroneRangeEndpoint(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	if err := store.RegisterDrone(ctx, "SN-1", "", ""); err != nil {
		t.Fatalf("register drone: %v", err)
	}
	if _, err := store.OpenToday(ctx, "SN-1", now, 0); err != nil {
		t.Fatalf("open today: %v", err)
	}
	if err := store.UpdateTotal(ctx, "SN-1", now, 90); err != nil {
		t.Fatalf("update: %v", err)
	}

	mux := NewHandler(store).Routes()
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/drone/SN-1/range?start=2026-03-01&end=2026-03-03", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("range status = %d, want %d", rr.Code, http.StatusOK)
	}
	var body struct {
		DroneSN string `json:"drone_sn"`
		Days    []struct {
			FlyDate string `json:"fly_date"`
			Seconds int64  `json:"seconds"`
			HHMM    string `json:"hhmm"`
		} `json:"days"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode range body: %v", err)
	}
	if body.DroneSN != "SN-1" {
		t.Fatalf("range sn = %q, want SN-1", body.DroneSN)
	}
	if len(body.Days) != 1 {
		t.Fatalf("range days = %d, want 1", len(body.Days))
	}
	if body.Days[0].FlyDate != "2026-03-02" || body.Days[0].Seconds != 90 || body.Days[0].HHMM != "00:01" {
		t.Fatalf("range day = %+v", body.Days[0])
	}
}

func TestRangeValidation(t *testing.T) {
	mux := NewHandler(openTempStore(t)).Routes()

	cases := []struct {
		name string
		url  string
	}{
		{name: "missing params", url: "/api/summary"},
		{name: "invalid date", url: "/api/summary?start=bogus&end=2026-03-02"},
		{name: "inverted range", url: "/api/summary?start=2026-03-02&end=2026-03-01"},
		{name: "drone range missing params", url: "/api/drone/SN-1/range"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, tc.url, nil))
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
			}
			var body map[string]string
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode error body: %v", err)
			}
			if body["error"] == "" {
				t.Fatal("expected error message in body")
			}
		})
	}
}

func openTempStore(t *testing.T) *flytimesqlite.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "flytime.db")
	store, err := flytimesqlite.Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return store
}
