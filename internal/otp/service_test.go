package otp_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/frahmantamala/tenant-auth/internal"
	otpDatamodel "github.com/frahmantamala/tenant-auth/internal/core/datamodel/otp"
	"github.com/frahmantamala/tenant-auth/internal/otp"
	otpPostgres "github.com/frahmantamala/tenant-auth/internal/otp/postgres"
	"github.com/frahmantamala/tenant-auth/internal/testutil"
	"github.com/frahmantamala/tenant-auth/pkg/logger"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"
)

func TestOTP(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "OTP Suite")
}

// wrong returns a code guaranteed to differ from code.
func wrong(code string) string {
	b := []byte(code)
	if b[0] == '9' {
		b[0] = '0'
	} else {
		b[0]++
	}
	return string(b)
}

var _ = Describe("GenerateCode", func() {
	It("always yields six digits", func() {
		for i := 0; i < 200; i++ {
			code, err := otp.GenerateCode()
			Expect(err).NotTo(HaveOccurred())
			Expect(code).To(MatchRegexp(`^[0-9]{6}$`))
		}
	})
})

var _ = Describe("Service", func() {
	const phone = "+6281234567890"

	var (
		ctx     context.Context
		db      *gorm.DB
		now     time.Time
		service *otp.Service
	)

	BeforeEach(func() {
		var err error
		ctx = context.Background()
		db, err = testutil.NewSQLiteDB()
		Expect(err).NotTo(HaveOccurred())
		now = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
		service = otp.NewService(otpPostgres.NewOTPRepository(db), otp.DefaultConfig(), logger.Discard()).
			WithClock(func() time.Time { return now })
	})

	load := func() otpDatamodel.OTP {
		var rec otpDatamodel.OTP
		Expect(db.Where("phone_number = ?", phone).First(&rec).Error).To(Succeed())
		return rec
	}

	It("accepts the right code within the TTL and leaves it for the caller to consume", func() {
		rec, err := service.Create(ctx, phone, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(rec.ExpiresAt).To(BeTemporally("==", now.Add(time.Hour)))

		now = now.Add(59 * time.Minute)
		ok, reason, err := service.Verify(ctx, phone, rec.Code)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(reason).To(Equal(otp.ReasonNone))

		Expect(service.Delete(ctx, phone)).To(Succeed())
		Expect(service.Delete(ctx, phone)).To(Succeed())

		ok, reason, err = service.Verify(ctx, phone, rec.Code)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
		Expect(reason).To(Equal(otp.ReasonExpired))
	})

	It("reports expired for unknown phone numbers", func() {
		ok, reason, err := service.Verify(ctx, "+620000000000", "123456")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
		Expect(reason).To(Equal(otp.ReasonExpired))
	})

	It("expires the code at the TTL and removes it", func() {
		rec, err := service.Create(ctx, phone, 10*time.Minute)
		Expect(err).NotTo(HaveOccurred())

		now = now.Add(10 * time.Minute)
		ok, reason, err := service.Verify(ctx, phone, rec.Code)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
		Expect(reason).To(Equal(otp.ReasonExpired))

		var count int64
		Expect(db.Model(&otpDatamodel.OTP{}).Where("phone_number = ?", phone).Count(&count).Error).To(Succeed())
		Expect(count).To(BeZero())
	})

	It("blocks after three wrong codes and hides the block behind expired", func() {
		rec, err := service.Create(ctx, phone, 0)
		Expect(err).NotTo(HaveOccurred())

		for i := 0; i < 3; i++ {
			ok, reason, err := service.Verify(ctx, phone, wrong(rec.Code))
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
			Expect(reason).To(Equal(otp.ReasonIncorrect))
		}

		stored := load()
		Expect(stored.IsBlocked).To(BeTrue())
		Expect(stored.Attempts).To(Equal(3))
		Expect(*stored.BlockedUntil).To(BeTemporally("==", now.Add(15*time.Minute)))

		// even the right code is refused while blocked
		ok, reason, err := service.Verify(ctx, phone, rec.Code)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
		Expect(reason).To(Equal(otp.ReasonExpired))
	})

	It("lifts the block once it has run out", func() {
		rec, err := service.Create(ctx, phone, 0)
		Expect(err).NotTo(HaveOccurred())
		for i := 0; i < 3; i++ {
			_, _, err := service.Verify(ctx, phone, wrong(rec.Code))
			Expect(err).NotTo(HaveOccurred())
		}

		now = now.Add(15 * time.Minute)
		ok, _, err := service.Verify(ctx, phone, rec.Code)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())

		stored := load()
		Expect(stored.IsBlocked).To(BeFalse())
		Expect(stored.Attempts).To(BeZero())
		Expect(stored.BlockedUntil).To(BeNil())
	})

	It("gives a fresh counter to a reissued code", func() {
		rec, err := service.Create(ctx, phone, 0)
		Expect(err).NotTo(HaveOccurred())
		for i := 0; i < 3; i++ {
			_, _, err := service.Verify(ctx, phone, wrong(rec.Code))
			Expect(err).NotTo(HaveOccurred())
		}

		fresh, err := service.Create(ctx, phone, 0)
		Expect(err).NotTo(HaveOccurred())

		stored := load()
		Expect(stored.Code).To(Equal(fresh.Code))
		Expect(stored.IsBlocked).To(BeFalse())
		Expect(stored.Attempts).To(BeZero())

		ok, _, err := service.Verify(ctx, phone, fresh.Code)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
	})

	It("counts no more than the allowed guesses under concurrency", func() {
		rec, err := service.Create(ctx, phone, 0)
		Expect(err).NotTo(HaveOccurred())

		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			incorrect int
			expired   int
		)
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				ok, reason, err := service.Verify(ctx, phone, wrong(rec.Code))
				Expect(err).NotTo(HaveOccurred())
				Expect(ok).To(BeFalse())
				mu.Lock()
				defer mu.Unlock()
				switch reason {
				case otp.ReasonIncorrect:
					incorrect++
				case otp.ReasonExpired:
					expired++
				}
			}()
		}
		wg.Wait()

		Expect(incorrect).To(Equal(3))
		Expect(expired).To(Equal(7))
		Expect(load().Attempts).To(Equal(3))
	})

	It("cleans up only expired codes", func() {
		_, err := service.Create(ctx, phone, 5*time.Minute)
		Expect(err).NotTo(HaveOccurred())
		_, err = service.Create(ctx, "+6289999999999", 2*time.Hour)
		Expect(err).NotTo(HaveOccurred())

		now = now.Add(time.Hour)
		n, err := service.CleanupExpired(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(BeEquivalentTo(1))

		var count int64
		Expect(db.Model(&otpDatamodel.OTP{}).Count(&count).Error).To(Succeed())
		Expect(count).To(BeEquivalentTo(1))
	})

	It("maps reasons to HTTP errors", func() {
		Expect(internal.KindOf(otp.ErrorFor(otp.ReasonIncorrect))).To(Equal(internal.ErrorTypeValidation))
		Expect(internal.KindOf(otp.ErrorFor(otp.ReasonExpired))).To(Equal(internal.ErrorTypeExpired))
	})
})
