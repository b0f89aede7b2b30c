package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"medcover-tracking/internal/middleware"
	"medcover-tracking/internal/models"
	"medcover-tracking/pkg/utils"

	"github.com/go-chi/chi/v5"
)

// TrackingStore persists ingested samples and events
type TrackingStore interface {
	SaveSamples(samples []models.PositionSample) (accepted int, duplicates int, err error)
	SaveShiftEvent(event models.ShiftEvent) error
	BookingTrail(bookingID string) ([]models.PositionSample, error)
}

// Broadcaster fans updates out to live feed clients
type Broadcaster interface {
	BroadcastToRole(role string, data interface{})
}

// ShiftNotifier pushes arrivals and departures to supervisors
type ShiftNotifier interface {
	SendShiftEventNotification(ctx context.Context, topic string, event models.ShiftEvent) error
}

// IngestSamples stores a batch of position samples (POST /api/tracking/samples).
// Repeated sample_ids are accepted and reported as duplicates.
func IngestSamples(store TrackingStore, hub Broadcaster) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var batch models.SampleBatch
		if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if len(batch.Samples) == 0 {
			utils.RespondError(w, http.StatusBadRequest, "No samples in batch")
			return
		}

		for i, s := range batch.Samples {
			if err := validateSample(s); err != nil {
				utils.RespondError(w, http.StatusUnprocessableEntity, fmt.Sprintf("sample %d: %v", i, err))
				return
			}
		}

		accepted, duplicates, err := store.SaveSamples(batch.Samples)
		if err != nil {
			log.Printf("❌ Error saving samples: %v", err)
			utils.RespondError(w, http.StatusInternalServerError, "Failed to save samples")
			return
		}

		offline := 0
		for _, s := range batch.Samples {
			if s.CapturedOffline {
				offline++
			}
		}
		log.Printf("📥 Ingested %d samples (%d new, %d duplicates, %d captured offline)", len(batch.Samples), accepted, duplicates, offline)

		if accepted > 0 {
			latest := batch.Samples[len(batch.Samples)-1]
			hub.BroadcastToRole(middleware.RoleSupervisor, map[string]interface{}{
				"type": "worker_location_update",
				"data": latest,
			})
		}

		utils.RespondJSON(w, http.StatusOK, models.IngestResponse{
			Success:    true,
			Accepted:   accepted,
			Duplicates: duplicates,
		})
	}
}

// IngestShiftEvent stores one shift event (POST /api/tracking/events) and
// forwards arrivals and departures to supervisors
func IngestShiftEvent(store TrackingStore, hub Broadcaster, notifier ShiftNotifier, topic string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var event models.ShiftEvent
		if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if err := validateEvent(event); err != nil {
			utils.RespondError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}

		if err := store.SaveShiftEvent(event); err != nil {
			log.Printf("❌ Error saving shift event: %v", err)
			utils.RespondError(w, http.StatusInternalServerError, "Failed to save shift event")
			return
		}

		log.Printf("📥 Shift event %s for worker %s on booking %s (%s)", event.Type, event.WorkerID, event.BookingID, event.Source)

		hub.BroadcastToRole(middleware.RoleSupervisor, map[string]interface{}{
			"type": "shift_event",
			"data": event,
		})

		if notifier != nil && event.IsSiteTransition() {
			if err := notifier.SendShiftEventNotification(r.Context(), topic, event); err != nil {
				log.Printf("⚠️  Failed to push %s to supervisors: %v", event.Type, err)
			}
		}

		utils.RespondJSON(w, http.StatusOK, models.IngestResponse{Success: true, Accepted: 1})
	}
}

// GetBookingTrail returns the stored samples for a booking (GET /api/tracking/bookings/{bookingID}/trail)
func GetBookingTrail(store TrackingStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bookingID := chi.URLParam(r, "bookingID")

		samples, err := store.BookingTrail(bookingID)
		if err != nil {
			log.Printf("❌ Error loading trail for booking %s: %v", bookingID, err)
			utils.RespondError(w, http.StatusInternalServerError, "Failed to load trail")
			return
		}
		if samples == nil {
			samples = []models.PositionSample{}
		}

		utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"data":    samples,
		})
	}
}

func validateSample(s models.PositionSample) error {
	switch {
	case s.SampleID == "":
		return fmt.Errorf("sample_id is required")
	case s.WorkerID == "" || s.BookingID == "":
		return fmt.Errorf("worker_id and booking_id are required")
	case s.Latitude < -90 || s.Latitude > 90 || s.Longitude < -180 || s.Longitude > 180:
		return fmt.Errorf("invalid coordinates %f,%f", s.Latitude, s.Longitude)
	case s.Accuracy < 0:
		return fmt.Errorf("accuracy must not be negative")
	case s.BatteryLevel < 0 || s.BatteryLevel > 100:
		return fmt.Errorf("battery_level must be between 0 and 100")
	case s.Timestamp <= 0:
		return fmt.Errorf("timestamp is required")
	}
	return nil
}

func validateEvent(e models.ShiftEvent) error {
	switch {
	case e.EventID == "":
		return fmt.Errorf("event_id is required")
	case e.WorkerID == "" || e.BookingID == "":
		return fmt.Errorf("worker_id and booking_id are required")
	case !e.Type.Valid():
		return fmt.Errorf("unknown event_type %q", e.Type)
	case !e.Source.Valid():
		return fmt.Errorf("unknown source %q", e.Source)
	case e.Timestamp <= 0:
		return fmt.Errorf("timestamp is required")
	}
	return nil
}
