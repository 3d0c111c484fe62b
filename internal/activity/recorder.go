package activity

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	activityDatamodel "github.com/frahmantamala/tenant-auth/internal/core/datamodel/activity"
	"github.com/frahmantamala/tenant-auth/internal/core/events"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const TopicRecorded = "activity.recorded"

type RepositoryAPI interface {
	CreateLoginActivity(ctx context.Context, row *activityDatamodel.LoginActivity) error
	CreateActivityLog(ctx context.Context, row *activityDatamodel.ActivityLog) error
	ListLoginActivities(ctx context.Context, userID int64, limit int) ([]*activityDatamodel.LoginActivity, error)
	ListActivityLogs(ctx context.Context, userID int64, limit int) ([]*activityDatamodel.ActivityLog, error)
}

type recordedEvent struct {
	id    string
	entry Entry
}

func (e recordedEvent) EventType() string     { return TopicRecorded }
func (e recordedEvent) EventID() string       { return e.id }
func (e recordedEvent) OccurredAt() time.Time { return e.entry.OccurredAt }
func (e recordedEvent) Payload() interface{}  { return e.entry }

// BusRecorder hands entries to the event bus so persistence never sits on the request path.
type BusRecorder struct {
	bus *events.EventBus
	now func() time.Time
}

func NewBusRecorder(bus *events.EventBus) *BusRecorder {
	return &BusRecorder{bus: bus, now: time.Now}
}

func (r *BusRecorder) Record(ctx context.Context, entry Entry) error {
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = r.now()
	}
	return r.bus.Publish(ctx, recordedEvent{id: uuid.NewString(), entry: entry})
}

// Store persists recorded entries. Login events also land in login_activities.
type Store struct {
	repo   RepositoryAPI
	logger *slog.Logger
}

func NewStore(repo RepositoryAPI, logger *slog.Logger) *Store {
	return &Store{repo: repo, logger: logger}
}

// Subscribe wires the store to the bus.
func (s *Store) Subscribe(bus *events.EventBus) {
	bus.Subscribe(TopicRecorded, s.Handle)
}

func (s *Store) Handle(ctx context.Context, event events.Event) error {
	entry, ok := event.Payload().(Entry)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", event.Payload(), event.EventType())
	}
	return s.Persist(ctx, entry)
}

func (s *Store) Persist(ctx context.Context, entry Entry) error {
	if entry.EventType == EventLogin {
		row := &activityDatamodel.LoginActivity{
			UserID:    entry.UserID,
			IPAddress: stringMeta(entry.Metadata, MetaIPAddress),
			UserAgent: stringMeta(entry.Metadata, MetaUserAgent),
			CreatedAt: entry.OccurredAt,
		}
		if err := s.repo.CreateLoginActivity(ctx, row); err != nil {
			s.logger.Error("failed to persist login activity", "error", err, "user_id", entry.UserID)
			return err
		}
	}

	row := &activityDatamodel.ActivityLog{
		UserID:    entry.UserID,
		CompanyID: entry.CompanyID,
		EventType: string(entry.EventType),
		Metadata:  datatypes.JSONMap(entry.Metadata),
		CreatedAt: entry.OccurredAt,
	}
	if err := s.repo.CreateActivityLog(ctx, row); err != nil {
		s.logger.Error("failed to persist activity log", "error", err, "user_id", entry.UserID, "event_type", entry.EventType)
		return err
	}
	return nil
}

func stringMeta(meta map[string]interface{}, key string) string {
	if meta == nil {
		return ""
	}
	if v, ok := meta[key].(string); ok {
		return v
	}
	return ""
}
