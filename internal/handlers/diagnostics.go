package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"medcover-tracking/pkg/utils"
)

// DiagnosticLog is a tracker diagnostic (permission loss, drain failure, low battery)
// forwarded from a device
type DiagnosticLog struct {
	Timestamp string                 `json:"timestamp"`
	Context   string                 `json:"context"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	WorkerID  string                 `json:"worker_id"`
	BookingID string                 `json:"booking_id"`
	Data      map[string]interface{} `json:"data"`
	Platform  string                 `json:"platform"`
}

// ReceiveDiagnosticLog handles diagnostic logs from devices
// POST /api/logs/diagnostic
func ReceiveDiagnosticLog() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var logEntry DiagnosticLog
		if err := json.NewDecoder(r.Body).Decode(&logEntry); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		// Log to console with color coding
		prefix := "📱"
		switch logEntry.Level {
		case "ERROR":
			prefix = "🔴"
		case "WARNING":
			prefix = "🟡"
		case "INFO":
			prefix = "🔵"
		}

		// Pretty print the diagnostic log
		log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		log.Printf("%s DEVICE DIAGNOSTIC [%s]", prefix, logEntry.Level)
		log.Printf("   Platform:  %s", logEntry.Platform)
		log.Printf("   Worker:    %s (booking %s)", logEntry.WorkerID, logEntry.BookingID)
		log.Printf("   Context:   %s", logEntry.Context)
		log.Printf("   Timestamp: %s", logEntry.Timestamp)
		log.Printf("   Message:   %s", logEntry.Message)

		// Pretty print data if it exists
		if len(logEntry.Data) > 0 {
			log.Println("   Data:")
			dataJSON, err := json.MarshalIndent(logEntry.Data, "      ", "  ")
			if err == nil {
				log.Printf("      %s", string(dataJSON))
			}
		}
		log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

		utils.RespondJSON(w, http.StatusOK, map[string]string{
			"status": "received",
		})
	}
}
