package activity_test

import (
	"context"
	"testing"
	"time"

	"github.com/frahmantamala/tenant-auth/internal/activity"
	activityPostgres "github.com/frahmantamala/tenant-auth/internal/activity/postgres"
	"github.com/frahmantamala/tenant-auth/internal/core/events"
	"github.com/frahmantamala/tenant-auth/internal/testutil"
	"github.com/frahmantamala/tenant-auth/pkg/logger"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestActivity(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Activity Suite")
}

var _ = Describe("Activity recording", func() {
	var (
		ctx      context.Context
		bus      *events.EventBus
		repo     activity.RepositoryAPI
		recorder *activity.BusRecorder
	)

	BeforeEach(func() {
		ctx = context.Background()
		db, err := testutil.NewSQLiteDB()
		Expect(err).NotTo(HaveOccurred())

		bus = events.NewEventBus(logger.Discard())
		repo = activityPostgres.NewActivityRepository(db)
		activity.NewStore(repo, logger.Discard()).Subscribe(bus)
		recorder = activity.NewBusRecorder(bus)
	})

	It("stores login events in both the login and activity tables", func() {
		// Given a login entry with client metadata
		err := recorder.Record(ctx, activity.Entry{
			UserID:    7,
			EventType: activity.EventLogin,
			Metadata: map[string]interface{}{
				activity.MetaIPAddress: "203.0.113.9",
				activity.MetaUserAgent: "curl/8.0",
				"method":               "password",
			},
		})
		Expect(err).NotTo(HaveOccurred())

		// When the bus drains
		bus.Wait()

		// Then both rows exist
		logins, err := repo.ListLoginActivities(ctx, 7, 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(logins).To(HaveLen(1))
		Expect(logins[0].IPAddress).To(Equal("203.0.113.9"))
		Expect(logins[0].UserAgent).To(Equal("curl/8.0"))
		Expect(logins[0].CreatedAt).NotTo(BeZero())

		logs, err := repo.ListActivityLogs(ctx, 7, 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(logs).To(HaveLen(1))
		Expect(logs[0].EventType).To(Equal(string(activity.EventLogin)))
		Expect(logs[0].Metadata["method"]).To(Equal("password"))
	})

	It("stores non-login events only in the activity log", func() {
		companyID := int64(3)
		err := recorder.Record(ctx, activity.Entry{
			UserID:     9,
			CompanyID:  &companyID,
			EventType:  activity.EventInvitationRevoked,
			OccurredAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		})
		Expect(err).NotTo(HaveOccurred())
		bus.Wait()

		logins, err := repo.ListLoginActivities(ctx, 9, 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(logins).To(BeEmpty())

		logs, err := repo.ListActivityLogs(ctx, 9, 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(logs).To(HaveLen(1))
		Expect(*logs[0].CompanyID).To(Equal(companyID))
		Expect(logs[0].CreatedAt.UTC()).To(Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)))
	})

	It("rejects payloads it does not understand", func() {
		store := activity.NewStore(repo, logger.Discard())
		err := store.Handle(ctx, events.BaseEvent{Type: activity.TopicRecorded, Data: map[string]interface{}{}})
		Expect(err).To(HaveOccurred())
	})
})
