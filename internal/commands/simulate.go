package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"medcover-tracking/internal/config"
	"medcover-tracking/internal/database"
	"medcover-tracking/internal/device"
	"medcover-tracking/internal/geofence"
	"medcover-tracking/internal/ingest"
	"medcover-tracking/internal/models"
	"medcover-tracking/internal/tracking"

	"github.com/spf13/cobra"
)

// SimOptions controls a scenario run
type SimOptions struct {
	DBPath   string
	Endpoint string // empty runs against the dry-run ingestor
	Token    string
	Device   config.Device
}

// SimReport summarizes a scenario run
type SimReport struct {
	Ticks        int
	Delivered    int
	Queued       int
	Events       []models.ShiftEvent
	FinalInside  bool
	LowBatteries int
}

// EventsOfType returns the delivered events of one type
func (r *SimReport) EventsOfType(t models.ShiftEventType) []models.ShiftEvent {
	var out []models.ShiftEvent
	for _, e := range r.Events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type countingNotifier struct {
	count int
}

func (n *countingNotifier) NotifyLowBattery(ctx context.Context, level int) {
	n.count++
	device.LogNotifier{}.NotifyLowBattery(ctx, level)
}

// Simulate drives a tracker through the scenario one tick per ping and writes
// a line per tick to out
func Simulate(ctx context.Context, scenario *Scenario, opts SimOptions, out io.Writer) (*SimReport, error) {
	store, err := database.OpenDevice(opts.DBPath)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	var next tracking.Ingestor = dryRunIngestor{}
	if opts.Endpoint != "" {
		next = ingest.NewClient(opts.Endpoint, opts.Token, opts.Device.SendTimeout)
	}
	recorder := &recordingIngestor{next: next}

	scripted := newScriptedDevice(scenario.Site)
	battery := &countingNotifier{}
	scheduler := tracking.NewManualScheduler()
	queue := tracking.NewOfflineQueue(store)

	threshold := scenario.Threshold
	if threshold <= 0 {
		threshold = opts.Device.GeofenceThreshold
	}

	tracker := tracking.NewTracker(tracking.Config{
		SampleInterval:    opts.Device.SampleInterval,
		GeofenceThreshold: threshold,
		Sync: tracking.SyncConfig{
			BatchSize:   opts.Device.QueueBatchSize,
			SendTimeout: opts.Device.SendTimeout,
		},
	}, tracking.Deps{
		Location:  scripted,
		Device:    device.NewContextProvider(scripted),
		Battery:   device.NewBatteryMonitor(opts.Device.LowBatteryPercent, battery),
		Sessions:  store,
		Queue:     queue,
		Ingest:    recorder,
		Scheduler: scheduler,
	})

	site := scenario.Site
	if site.RadiusMeters <= 0 {
		site.RadiusMeters = opts.Device.SiteRadiusMeters
	}

	// Position the device before the first permission prompt and event
	scripted.apply(scenario.Pings[0])

	err = tracker.StartTracking(ctx, models.ShiftSession{
		WorkerID:  scenario.WorkerID,
		BookingID: scenario.BookingID,
		Site:      site,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start tracking: %w", err)
	}

	fmt.Fprintf(out, "%-5s %-10s %-8s %-4s %-4s %-7s %-6s %s\n", "TICK", "DISTANCE", "NETWORK", "IN", "OUT", "INSIDE", "QUEUE", "BATTERY")
	fmt.Fprintln(out, strings.Repeat("-", 60))

	for i, ping := range scenario.Pings {
		scripted.apply(ping)

		switch ping.Mark {
		case "arrived":
			err = tracker.MarkArrived(ctx, "", "")
		case "departed":
			err = tracker.MarkDeparture(ctx, "", "")
		}
		if err != nil {
			fmt.Fprintf(out, "manual %s failed: %v\n", ping.Mark, err)
			err = nil
		}

		scheduler.Fire(ctx)

		state, _ := tracker.GeofenceState()
		distance := "-"
		if !ping.NoFix {
			lat, lon := ping.Position(site)
			distance = fmt.Sprintf("%.0fm", geofence.Haversine(lat, lon, site.Latitude, site.Longitude))
		}
		network, _ := scripted.Network(ctx)
		level, _ := scripted.BatteryLevel(ctx)

		fmt.Fprintf(out, "%-5d %-10s %-8s %-4d %-4d %-7t %-6d %d%%\n",
			i+1, distance, network.Type, state.ConsecutiveInside, state.ConsecutiveOutside,
			state.Inside, tracker.QueueLength(), level)
	}

	state, _ := tracker.GeofenceState()
	if err := tracker.StopTracking(ctx); err != nil {
		return nil, fmt.Errorf("failed to stop tracking: %w", err)
	}

	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	return &SimReport{
		Ticks:        scheduler.Fired(),
		Delivered:    recorder.samples,
		Queued:       tracker.QueueLength(),
		Events:       append([]models.ShiftEvent(nil), recorder.events...),
		FinalInside:  state.Inside,
		LowBatteries: battery.count,
	}, nil
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Replay a scripted shift through the tracker",
	Long: `Replay a YAML scenario of pings through the tracker, one sampling tick per ping.
Without --endpoint, deliveries go to a dry-run ingestor that only logs them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("scenario")
		if path == "" {
			return errors.New("--scenario is required")
		}

		scenario, err := LoadScenario(path)
		if err != nil {
			return err
		}

		opts, err := simOptions(cmd)
		if err != nil {
			return err
		}

		report, err := Simulate(cmd.Context(), scenario, opts, cmd.OutOrStdout())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, strings.Repeat("-", 60))
		fmt.Fprintf(out, "Ticks: %d  Delivered: %d  Still queued: %d  Low-battery warnings: %d\n",
			report.Ticks, report.Delivered, report.Queued, report.LowBatteries)
		for _, e := range report.Events {
			notes := ""
			if e.Notes != nil {
				notes = *e.Notes
			}
			fmt.Fprintf(out, "  %-20s %-16s %s\n", e.Type, e.Source, notes)
		}
		return nil
	},
}

func simOptions(cmd *cobra.Command) (SimOptions, error) {
	cfg, err := config.LoadDevice()
	if err != nil {
		return SimOptions{}, err
	}

	opts := SimOptions{
		DBPath:   cfg.DBPath,
		Endpoint: cfg.IngestBaseURL,
		Token:    cfg.IngestToken,
		Device:   cfg,
	}
	if v, _ := cmd.Flags().GetString("db"); v != "" {
		opts.DBPath = v
	}
	if v, _ := cmd.Flags().GetString("endpoint"); v != "" {
		opts.Endpoint = v
	}
	if v, _ := cmd.Flags().GetString("token"); v != "" {
		opts.Token = v
	}
	if dry, _ := cmd.Flags().GetBool("dry-run"); dry {
		opts.Endpoint = ""
	}
	return opts, nil
}

func init() {
	simulateCmd.Flags().StringP("scenario", "s", "", "Path to a YAML scenario file")
	simulateCmd.Flags().String("endpoint", "", "Ingestion base URL (default INGEST_BASE_URL)")
	simulateCmd.Flags().String("token", "", "Bearer token (default INGEST_TOKEN)")
	simulateCmd.Flags().Bool("dry-run", false, "Log deliveries instead of sending them")
	simulateCmd.Flags().String("db", "", "Device database path (default TRACKING_DB_PATH)")
}
