package websocket

import (
	"log"
	"net/http"

	"medcover-tracking/internal/middleware"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// HandleWebSocket upgrades a supervisor connection to the live tracking feed.
// The token comes from the query string since browsers cannot set headers on upgrade.
func HandleWebSocket(hub *Hub, jwtSecret string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userClaims, ok := middleware.GetUserFromContext(r)
		if tokenString := r.URL.Query().Get("token"); tokenString != "" {
			claims, err := middleware.ParseToken(jwtSecret, tokenString)
			if err != nil {
				log.Printf("❌ Invalid token in query parameter: %v", err)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			userClaims, ok = claims, true
		}
		if !ok {
			log.Println("❌ No user for WebSocket connection")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		if userClaims.Role != middleware.RoleSupervisor {
			log.Printf("❌ Live feed requires %s role, got %s", middleware.RoleSupervisor, userClaims.Role)
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("❌ WebSocket upgrade failed: %v", err)
			return
		}

		client := NewClient(userClaims.UserID, userClaims.Role, conn, hub)
		if !hub.join(client) {
			conn.Close()
			return
		}

		go client.WritePump()
		go client.ReadPump()
	}
}
