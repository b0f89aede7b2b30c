package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"medcover-tracking/internal/config"
	"medcover-tracking/internal/database"
	"medcover-tracking/internal/device"
	"medcover-tracking/internal/ingest"
	"medcover-tracking/internal/models"
	"medcover-tracking/internal/tracking"

	"github.com/spf13/cobra"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect or flush the offline ping queue",
}

var queueStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show queued pings and the persisted session",
	RunE: withDeviceStore(func(cmd *cobra.Command, store *database.DeviceStore, _ config.Device) error {
		out := cmd.OutOrStdout()
		ctx := cmd.Context()

		queued, err := store.LoadQueue(ctx)
		if err != nil {
			return err
		}

		fmt.Fprintf(out, "Queued pings: %d\n", len(queued))
		if len(queued) > 0 {
			oldest := time.UnixMilli(queued[0].Sample.Timestamp)
			newest := time.UnixMilli(queued[len(queued)-1].Sample.Timestamp)
			fmt.Fprintf(out, "  oldest: %s\n  newest: %s\n", oldest.Format(time.RFC3339), newest.Format(time.RFC3339))
		}

		session, err := store.LoadSession(ctx)
		if err != nil {
			return err
		}
		if session == nil {
			fmt.Fprintln(out, "No persisted session")
			return nil
		}
		fmt.Fprintf(out, "Session: worker %s, booking %s, %s since %s\n",
			session.WorkerID, session.BookingID, session.Status,
			time.UnixMilli(session.StartedAt).Format(time.RFC3339))
		return nil
	}),
}

var queueFlushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Deliver queued pings to the ingestion endpoint",
	RunE: withDeviceStore(func(cmd *cobra.Command, store *database.DeviceStore, cfg config.Device) error {
		endpoint, _ := cmd.Flags().GetString("endpoint")
		if endpoint == "" {
			endpoint = cfg.IngestBaseURL
		}
		token, _ := cmd.Flags().GetString("token")
		if token == "" {
			token = cfg.IngestToken
		}
		if endpoint == "" {
			return errors.New("no endpoint: pass --endpoint or set INGEST_BASE_URL")
		}

		queue := tracking.NewOfflineQueue(store)
		pending := queue.Restore(cmd.Context())
		if pending == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
			return nil
		}

		coordinator := tracking.NewSyncCoordinator(
			ingest.NewClient(endpoint, token, cfg.SendTimeout),
			queue,
			device.NewContextProvider(hostPlatform{}),
			tracking.SyncConfig{BatchSize: cfg.QueueBatchSize, SendTimeout: cfg.SendTimeout},
		)

		synced, err := coordinator.Drain(cmd.Context())
		fmt.Fprintf(cmd.OutOrStdout(), "Synced %d of %d queued pings, %d remaining\n", synced, pending, queue.Len())
		return err
	}),
}

// withDeviceStore opens the device database for the duration of a command
func withDeviceStore(fn func(*cobra.Command, *database.DeviceStore, config.Device) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadDevice()
		if err != nil {
			return err
		}
		if path, _ := cmd.Flags().GetString("db"); path != "" {
			cfg.DBPath = path
		}

		store, err := database.OpenDevice(cfg.DBPath)
		if err != nil {
			return err
		}
		defer store.Close()
		return fn(cmd, store, cfg)
	}
}

// hostPlatform treats the machine running the CLI as an online device
type hostPlatform struct{}

func (hostPlatform) BatteryLevel(context.Context) (int, error) {
	return 0, errors.New("battery level not available on host")
}

func (hostPlatform) Network(context.Context) (device.NetworkState, error) {
	return device.NetworkState{Type: models.ConnectionUnknown, Reachable: true}, nil
}

func (hostPlatform) InBackground(context.Context) bool { return false }

func init() {
	queueCmd.PersistentFlags().String("db", "", "Device database path (default TRACKING_DB_PATH)")
	queueFlushCmd.Flags().String("endpoint", "", "Ingestion base URL (default INGEST_BASE_URL)")
	queueFlushCmd.Flags().String("token", "", "Bearer token (default INGEST_TOKEN)")

	queueCmd.AddCommand(queueStatusCmd)
	queueCmd.AddCommand(queueFlushCmd)
}
