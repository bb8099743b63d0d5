package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/batchforge/batchforge/internal/db"
	"github.com/batchforge/batchforge/internal/models"
)

var (
	eventsType       string
	eventsEntityType string
	eventsEntityID   string
	eventsSince      time.Duration
	eventsLimit      int
	eventsFollow     bool
)

func init() {
	rootCmd.AddCommand(eventsCmd)

	eventsCmd.Flags().StringVar(&eventsType, "type", "", "filter by event type")
	eventsCmd.Flags().StringVar(&eventsEntityType, "entity-type", "", "filter by entity type (job, run, system)")
	eventsCmd.Flags().StringVar(&eventsEntityID, "entity", "", "filter by entity ID")
	eventsCmd.Flags().DurationVar(&eventsSince, "since", 0, "only events newer than this (e.g. 1h)")
	eventsCmd.Flags().IntVar(&eventsLimit, "limit", 100, "max events to show")
	eventsCmd.Flags().BoolVarP(&eventsFollow, "follow", "f", false, "stream new events as JSON lines (requires --jsonl)")
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show the event log",
	Example: `  # Recent events for one job
  batchforge events --entity-type job --entity <job-id>

  # Stream events as they happen
  batchforge events --follow --jsonl`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		if err := mustBeJSONLForFollow(); err != nil {
			return err
		}

		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		repo := db.NewEventRepository(database)

		query := db.EventQuery{Limit: eventsLimit}
		if eventsType != "" {
			typ := models.EventType(eventsType)
			query.Type = &typ
		}
		if eventsEntityType != "" {
			et := models.EntityType(eventsEntityType)
			query.EntityType = &et
		}
		if eventsEntityID != "" {
			query.EntityID = &eventsEntityID
		}
		if eventsSince > 0 {
			since := time.Now().Add(-eventsSince).UTC()
			query.Since = &since
		}

		if eventsFollow {
			config := DefaultStreamConfig()
			config.Query = query
			config.IncludeExisting = eventsSince > 0
			streamer := NewEventStreamer(repo, os.Stdout, config)
			return streamer.Stream(ctx)
		}

		page, err := repo.Query(ctx, query)
		if err != nil {
			return err
		}

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, page.Events)
		}

		if len(page.Events) == 0 {
			fmt.Println("No events found.")
			return nil
		}

		headers := []string{"TIME", "TYPE", "ENTITY", "PAYLOAD"}
		rows := make([][]string, 0, len(page.Events))
		for _, event := range page.Events {
			payload := string(event.Payload)
			if len(payload) > 60 {
				payload = payload[:57] + "..."
			}
			rows = append(rows, []string{
				event.Timestamp.Local().Format("2006-01-02 15:04:05"),
				string(event.Type),
				fmt.Sprintf("%s/%s", event.EntityType, shortID(event.EntityID)),
				payload,
			})
		}
		return writeTable(os.Stdout, headers, rows)
	},
}

// mustBeJSONLForFollow rejects --follow without --jsonl. Interleaved table
// output makes no sense for a stream.
func mustBeJSONLForFollow() error {
	if eventsFollow && !IsJSONLOutput() {
		return errors.New("--follow requires --jsonl output (use --jsonl)")
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// StreamConfig controls event streaming.
type StreamConfig struct {
	// PollInterval is how often new events are fetched.
	PollInterval time.Duration

	// BatchSize is the max events fetched per poll.
	BatchSize int

	// IncludeExisting streams events recorded before the stream started.
	IncludeExisting bool

	// Query holds the filters applied to every poll.
	Query db.EventQuery
}

// DefaultStreamConfig returns sensible streaming defaults.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		PollInterval: 500 * time.Millisecond,
		BatchSize:    100,
	}
}

// EventStreamer polls the event log and writes new events as JSON lines.
type EventStreamer struct {
	repo   *db.EventRepository
	out    io.Writer
	config StreamConfig
}

// NewEventStreamer creates an EventStreamer.
func NewEventStreamer(repo *db.EventRepository, out io.Writer, config StreamConfig) *EventStreamer {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultStreamConfig().PollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultStreamConfig().BatchSize
	}
	return &EventStreamer{repo: repo, out: out, config: config}
}

// Stream writes events until the context is cancelled. Cancellation is the
// normal way to stop and returns nil.
func (s *EventStreamer) Stream(ctx context.Context) error {
	cursor := ""
	var since *time.Time
	if !s.config.IncludeExisting {
		now := time.Now().UTC()
		since = &now
	} else if s.config.Query.Since != nil {
		since = s.config.Query.Since
	}

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		events, next, err := s.poll(ctx, cursor, since)
		if err != nil {
			return err
		}
		for _, event := range events {
			if err := s.writeEvent(event); err != nil {
				return err
			}
		}
		if next != "" {
			cursor = next
			// More pages waiting; skip the tick.
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// poll fetches the next batch of events after the cursor.
func (s *EventStreamer) poll(ctx context.Context, cursor string, since *time.Time) ([]*models.Event, string, error) {
	query := s.config.Query
	query.Cursor = cursor
	query.Limit = s.config.BatchSize
	if cursor == "" && since != nil {
		query.Since = since
	}

	page, err := s.repo.Query(ctx, query)
	if err != nil {
		return nil, "", err
	}

	next := page.NextCursor
	if next == "" && len(page.Events) > 0 {
		// Remember the last event so the next poll resumes after it.
		next = page.Events[len(page.Events)-1].ID
	}
	return page.Events, next, nil
}

func (s *EventStreamer) writeEvent(event *models.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	if _, err := fmt.Fprintln(s.out, string(data)); err != nil {
		return err
	}
	return nil
}
