package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"strconv"

	"medcover-tracking/internal/models"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// FCMService handles Firebase Cloud Messaging
type FCMService struct {
	client *messaging.Client
}

// NewFCMService creates a new FCM service instance from a credentials file
func NewFCMService(credentialsFile string) (*FCMService, error) {
	ctx := context.Background()

	// Initialize Firebase app
	opt := option.WithCredentialsFile(credentialsFile)
	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return nil, fmt.Errorf("error initializing Firebase app: %w", err)
	}

	// Get messaging client
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting messaging client: %w", err)
	}

	return &FCMService{client: client}, nil
}

// NewFCMServiceFromBase64 creates a new FCM service instance from base64-encoded credentials
// This is useful for cloud deployments (Railway, Fly.io, Render) where you can't upload files easily
func NewFCMServiceFromBase64(credentialsBase64 string) (*FCMService, error) {
	ctx := context.Background()

	// Decode base64 credentials
	credentialsJSON, err := base64.StdEncoding.DecodeString(credentialsBase64)
	if err != nil {
		return nil, fmt.Errorf("error decoding base64 credentials: %w", err)
	}

	// Initialize Firebase app with JSON credentials
	opt := option.WithCredentialsJSON(credentialsJSON)
	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return nil, fmt.Errorf("error initializing Firebase app: %w", err)
	}

	// Get messaging client
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting messaging client: %w", err)
	}

	return &FCMService{client: client}, nil
}

// ShiftEventMessage builds the supervisor push for an arrival or departure
func ShiftEventMessage(topic string, event models.ShiftEvent) *messaging.Message {
	title := "Medic arrived on site"
	if event.Type == models.EventLeftSite {
		title = "Medic left site"
	}

	body := fmt.Sprintf("Worker %s on booking %s", event.WorkerID, event.BookingID)
	if event.Source == models.SourceManualButton {
		body += " (marked manually)"
	}

	return &messaging.Message{
		Topic: topic,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: map[string]string{
			"type":       string(event.Type),
			"event_id":   event.EventID,
			"worker_id":  event.WorkerID,
			"booking_id": event.BookingID,
			"source":     string(event.Source),
			"timestamp":  strconv.FormatInt(event.Timestamp, 10),
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					ContentAvailable: true,
					Sound:            "default",
				},
			},
		},
	}
}

// SendShiftEventNotification pushes an arrival or departure to the supervisor topic
func (s *FCMService) SendShiftEventNotification(ctx context.Context, topic string, event models.ShiftEvent) error {
	response, err := s.client.Send(ctx, ShiftEventMessage(topic, event))
	if err != nil {
		return fmt.Errorf("error sending FCM message: %w", err)
	}

	log.Printf("✅ FCM notification sent for %s %s: %s", event.Type, event.EventID, response)
	return nil
}
