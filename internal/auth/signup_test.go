package auth_test

import (
	"context"
	"errors"

	"github.com/frahmantamala/tenant-auth/internal"
	"github.com/frahmantamala/tenant-auth/internal/activity"
	"github.com/frahmantamala/tenant-auth/internal/auth"
	otpDatamodel "github.com/frahmantamala/tenant-auth/internal/core/datamodel/otp"
	userDatamodel "github.com/frahmantamala/tenant-auth/internal/core/datamodel/user"
	"github.com/frahmantamala/tenant-auth/internal/otp"
	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
)

var _ = ginkgo.Describe("Signup", func() {
	const phone = "+6283333333333"

	var (
		f   *fixture
		ctx context.Context
	)

	ginkgo.BeforeEach(func() {
		f = newFixture()
		ctx = context.Background()
	})

	userByPhone := func() *userDatamodel.User {
		var u userDatamodel.User
		gomega.Expect(f.db.Where("phone = ?", phone).First(&u).Error).To(gomega.Succeed())
		return &u
	}

	ginkgo.It("creates the account once and texts a code each time", func() {
		first, err := f.service.StartSignup(ctx, auth.SignupDTO{Phone: phone, FullName: "Dewi Lestari"})
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(first.Created).To(gomega.BeTrue())
		gomega.Expect(first.ExpiresAt).To(gomega.BeTemporally("==", f.now.Add(otp.DefaultConfig().TTL)))

		u := userByPhone()
		gomega.Expect(u.Username).To(gomega.MatchRegexp(`^dewi_lestari[0-9]{4}$`))
		gomega.Expect(u.PhoneVerified).To(gomega.BeFalse())

		second, err := f.service.StartSignup(ctx, auth.SignupDTO{Phone: phone, FullName: "Someone Else"})
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(second.Created).To(gomega.BeFalse())
		gomega.Expect(userByPhone().FullName).To(gomega.Equal("Dewi Lestari"))

		gomega.Expect(f.notifier.sent).To(gomega.HaveLen(2))
		gomega.Expect(f.notifier.sent[1].target).To(gomega.Equal(phone))
		gomega.Expect(f.notifier.lastCode()).To(gomega.HaveLen(6))
	})

	ginkgo.It("rejects malformed phone numbers", func() {
		_, err := f.service.StartSignup(ctx, auth.SignupDTO{Phone: "12ab", FullName: "Dewi"})
		gomega.Expect(internal.KindOf(err)).To(gomega.Equal(internal.ErrorTypeValidation))
	})

	ginkgo.It("verifies the phone with the texted code and consumes it", func() {
		_, err := f.service.StartSignup(ctx, auth.SignupDTO{Phone: phone, FullName: "Dewi"})
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		code := f.notifier.lastCode()

		wrong := "000000"
		if code == wrong {
			wrong = "111111"
		}
		_, err = f.service.VerifyPhone(ctx, auth.VerifyPhoneDTO{Phone: phone, Code: wrong})
		gomega.Expect(errors.Is(err, otp.ErrIncorrect)).To(gomega.BeTrue())

		resp, err := f.service.VerifyPhone(ctx, auth.VerifyPhoneDTO{Phone: phone, Code: code})
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(resp.PhoneVerified).To(gomega.BeTrue())

		var count int64
		gomega.Expect(f.db.Model(&otpDatamodel.OTP{}).Where("phone_number = ?", phone).Count(&count).Error).To(gomega.Succeed())
		gomega.Expect(count).To(gomega.BeZero())

		_, err = f.service.VerifyPhone(ctx, auth.VerifyPhoneDTO{Phone: phone, Code: code})
		gomega.Expect(errors.Is(err, otp.ErrExpired)).To(gomega.BeTrue())
	})

	ginkgo.It("resends only to known phone numbers", func() {
		_, err := f.service.ResendOTP(ctx, auth.ResendOTPDTO{Phone: phone})
		gomega.Expect(errors.Is(err, auth.ErrUserNotFound)).To(gomega.BeTrue())

		_, err = f.service.StartSignup(ctx, auth.SignupDTO{Phone: phone, FullName: "Dewi"})
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		_, err = f.service.ResendOTP(ctx, auth.ResendOTPDTO{Phone: phone})
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(f.notifier.sent).To(gomega.HaveLen(2))
	})

	ginkgo.Describe("FinalizeSignup", func() {
		verified := func() {
			_, err := f.service.StartSignup(ctx, auth.SignupDTO{Phone: phone, FullName: "Dewi"})
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			_, err = f.service.VerifyPhone(ctx, auth.VerifyPhoneDTO{Phone: phone, Code: f.notifier.lastCode()})
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
		}

		ginkgo.It("requires a verified phone", func() {
			_, err := f.service.StartSignup(ctx, auth.SignupDTO{Phone: phone, FullName: "Dewi"})
			gomega.Expect(err).NotTo(gomega.HaveOccurred())

			_, err = f.service.FinalizeSignup(ctx, auth.FinalizeSignupDTO{Phone: phone, Email: "dewi@example.com", Password: password})
			gomega.Expect(errors.Is(err, auth.ErrPhoneNotVerified)).To(gomega.BeTrue())
		})

		ginkgo.It("sets the credentials so the account can log in", func() {
			verified()

			resp, err := f.service.FinalizeSignup(ctx, auth.FinalizeSignupDTO{Phone: phone, Email: "Dewi@Example.com", Password: password})
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(resp.Email).To(gomega.Equal("dewi@example.com"))
			gomega.Expect(f.events.ofType(activity.EventSignupCompleted)).To(gomega.HaveLen(1))

			login, err := f.service.Login(ctx, auth.LoginDTO{Identifier: "dewi@example.com", Password: password})
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(login.AccessToken).NotTo(gomega.BeEmpty())
		})

		ginkgo.It("cannot be used to overwrite an existing password", func() {
			verified()
			_, err := f.service.FinalizeSignup(ctx, auth.FinalizeSignupDTO{Phone: phone, Email: "dewi@example.com", Password: password})
			gomega.Expect(err).NotTo(gomega.HaveOccurred())

			_, err = f.service.FinalizeSignup(ctx, auth.FinalizeSignupDTO{Phone: phone, Email: "dewi@example.com", Password: "another-password"})
			gomega.Expect(errors.Is(err, auth.ErrSignupFinalized)).To(gomega.BeTrue())
		})

		ginkgo.It("refuses an email that belongs to someone else", func() {
			f.createUser("taken", "dewi@example.com", "+6284444444444")
			verified()

			_, err := f.service.FinalizeSignup(ctx, auth.FinalizeSignupDTO{Phone: phone, Email: "dewi@example.com", Password: password})
			gomega.Expect(errors.Is(err, auth.ErrEmailTaken)).To(gomega.BeTrue())
		})

		ginkgo.It("rejects short passwords", func() {
			_, err := f.service.FinalizeSignup(ctx, auth.FinalizeSignupDTO{Phone: phone, Email: "dewi@example.com", Password: "short"})
			gomega.Expect(internal.KindOf(err)).To(gomega.Equal(internal.ErrorTypeValidation))
		})
	})
})

var _ = ginkgo.Describe("GenerateUsername", func() {
	ginkgo.It("joins words with underscores and appends four digits", func() {
		name, err := auth.GenerateUsername("  Putri   Ayu ")
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(name).To(gomega.MatchRegexp(`^putri_ayu[1-9][0-9]{3}$`))
	})

	ginkgo.It("falls back when the name is blank", func() {
		name, err := auth.GenerateUsername("")
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(name).To(gomega.HavePrefix("user"))
	})
})
