// Package api serves the read-only flight-time query surface over HTTP.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/skyfleet/flytime/internal/services/flytime/storage"
)

// Store is the read surface the query API depends on.
type Store interface {
	ListDrones(ctx context.Context) ([]storage.Drone, error)
	UsageSummary(ctx context.Context, startDay, endDay string) ([]storage.DroneUsage, error)
	DroneDailyUsage(ctx context.Context, sn, startDay, endDay string) ([]storage.DayUsage, error)
}

// Handler exposes ledger read operations as JSON endpoints.
type Handler struct {
	store Store
}

// NewHandler builds the query handler around a ledger store.
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// Routes returns the API mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", h.handleHealth)
	mux.HandleFunc("GET /api/drones", h.handleDrones)
	mux.HandleFunc("GET /api/summary", h.handleSummary)
	mux.HandleFunc("GET /api/drone/{sn}/range", h.handleDroneRange)
	return mux
}

type droneResponse struct {
	DroneSN      string `json:"drone_sn"`
	DroneType    string `json:"drone_type"`
	DroneVersion string `json:"drone_version"`
}

type summaryResponse struct {
	DroneSN      string `json:"drone_sn"`
	DroneType    string `json:"drone_type"`
	DroneVersion string `json:"drone_version"`
	TotalSeconds int64  `json:"total_seconds"`
	TotalHHMM    string `json:"total_hhmm"`
}

type dayResponse struct {
	FlyDate string `json:"fly_date"`
	Seconds int64  `json:"seconds"`
	HHMM    string `json:"hhmm"`
}

type droneRangeResponse struct {
	DroneSN string        `json:"drone_sn"`
	Days    []dayResponse `json:"days"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) handleDrones(w http.ResponseWriter, r *http.Request) {
	drones, err := h.store.ListDrones(r.Context())
	if err != nil {
		writeStoreError(w, "list drones", err)
		return
	}
	response := make([]droneResponse, 0, len(drones))
	for _, drone := range drones {
		response = append(response, droneResponse{
			DroneSN:      drone.SN,
			DroneType:    drone.Type,
			DroneVersion: drone.Version,
		})
	}
	writeJSON(w, http.StatusOK, response)
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	startDay, endDay, ok := dayRange(w, r)
	if !ok {
		return
	}
	summary, err := h.store.UsageSummary(r.Context(), startDay, endDay)
	if err != nil {
		writeStoreError(w, "usage summary", err)
		return
	}
	response := make([]summaryResponse, 0, len(summary))
	for _, usage := range summary {
		response = append(response, summaryResponse{
			DroneSN:      usage.SN,
			DroneType:    usage.Type,
			DroneVersion: usage.Version,
			TotalSeconds: usage.TotalSeconds,
			TotalHHMM:    secondsToHHMM(usage.TotalSeconds),
		})
	}
	writeJSON(w, http.StatusOK, response)
}

func (h *Handler) handleDroneRange(w http.ResponseWriter, r *http.Request) {
	sn := strings.TrimSpace(r.PathValue("sn"))
	if sn == "" {
		writeError(w, http.StatusBadRequest, "drone sn is required")
		return
	}
	startDay, endDay, ok := dayRange(w, r)
	if !ok {
		return
	}
	daily, err := h.store.DroneDailyUsage(r.Context(), sn, startDay, endDay)
	if err != nil {
		writeStoreError(w, "drone daily usage", err)
		return
	}
	response := droneRangeResponse{DroneSN: sn, Days: make([]dayResponse, 0, len(daily))}
	for _, day := range daily {
		response.Days = append(response.Days, dayResponse{
			FlyDate: day.Day,
			Seconds: day.Seconds,
			HHMM:    secondsToHHMM(day.Seconds),
		})
	}
	writeJSON(w, http.StatusOK, response)
}

// dayRange validates the start/end query parameters and writes the 400
// response itself on failure.
func dayRange(w http.ResponseWriter, r *http.Request) (startDay, endDay string, ok bool) {
	start, startOK := parseDay(r.URL.Query().Get("start"))
	end, endOK := parseDay(r.URL.Query().Get("end"))
	if !startOK || !endOK {
		writeError(w, http.StatusBadRequest, "missing or invalid start/end (YYYY-MM-DD)")
		return "", "", false
	}
	if end < start {
		writeError(w, http.StatusBadRequest, "end must be >= start")
		return "", "", false
	}
	return start, end, true
}

func parseDay(value string) (string, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	parsed, err := time.Parse(storage.DayLayout, value)
	if err != nil {
		return "", false
	}
	return parsed.Format(storage.DayLayout), true
}

func secondsToHHMM(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/3600, (seconds%3600)/60)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("encode api response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeStoreError(w http.ResponseWriter, op string, err error) {
	log.Printf("%s: %v", op, err)
	writeError(w, http.StatusInternalServerError, "storage unavailable")
}
