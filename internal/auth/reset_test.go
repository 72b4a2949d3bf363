package auth_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studytracker/internal/auth"
	"studytracker/internal/auth/authtest"
	"studytracker/internal/i18n"
)

func TestForgotAndResetPassword(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.signUp(t, "ada", "a@x.com", "Old12345!")

	_, err := f.resets.ForgotPassword(ctx, "a@x.com", "en")
	require.NoError(t, err)

	otp, ok := f.otps.Live("a@x.com")
	require.True(t, ok)
	assert.Equal(t, "a@x.com", otp.Email)
	require.Len(t, f.mailer.Messages(), 1)
	assert.Contains(t, f.mailer.Messages()[0].Text, otp.Code)

	_, err = f.resets.ResetPassword(ctx, otp.Code, "New12345!", "New12345!", "en")
	require.NoError(t, err)

	_, _, err = f.sessions.Login(ctx, "a@x.com", "New12345!")
	assert.NoError(t, err)
	_, _, err = f.sessions.Login(ctx, "a@x.com", "Old12345!")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	// single use
	_, err = f.resets.ResetPassword(ctx, otp.Code, "Other1234", "Other1234", "en")
	assert.ErrorIs(t, err, auth.ErrInvalidOTP)
	_, ok = f.otps.Live("a@x.com")
	assert.False(t, ok)
}

func TestForgotPasswordRules(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.signUp(t, "ada", "a@x.com", "Old12345!")
	f.oauthUser(t, "gina", "g@x.com", auth.ProviderGoogle, "g-1")
	f.oauthUser(t, "hugo", "h@x.com", auth.ProviderGitHub, "h-1")

	cases := []struct {
		name  string
		email string
		want  error
	}{
		{"empty", "", auth.ErrEmailRequired},
		{"malformed", "not-an-email", auth.ErrInvalidEmail},
		{"unknown", "nobody@x.com", auth.ErrUserNotFound},
		{"google account", "g@x.com", auth.ErrOAuthAccountCannotReset},
		{"github account", "h@x.com", auth.ErrOAuthAccountCannotReset},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.resets.ForgotPassword(ctx, tc.email, "en")
			assert.ErrorIs(t, err, tc.want)
		})
	}
	assert.Empty(t, f.mailer.Messages())
}

func TestForgotPasswordOneLiveOTP(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.signUp(t, "ada", "a@x.com", "Old12345!")

	_, err := f.resets.ForgotPassword(ctx, "a@x.com", "en")
	require.NoError(t, err)
	_, err = f.resets.ForgotPassword(ctx, "a@x.com", "en")
	assert.ErrorIs(t, err, auth.ErrOTPAlreadyIssued)

	f.clock.Advance(otpTTL)
	_, err = f.resets.ForgotPassword(ctx, "a@x.com", "en")
	assert.NoError(t, err)
}

func TestForgotPasswordConcurrent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.signUp(t, "ada", "a@x.com", "Old12345!")

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.resets.ForgotPassword(ctx, "a@x.com", "en")
		}(i)
	}
	wg.Wait()

	var ok, rejected int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, auth.ErrOTPAlreadyIssued):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, callers-1, rejected)
}

func TestResetPasswordConcurrentRedemption(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.signUp(t, "ada", "a@x.com", "Old12345!")
	_, err := f.resets.ForgotPassword(ctx, "a@x.com", "en")
	require.NoError(t, err)
	otp, _ := f.otps.Live("a@x.com")

	const callers = 6
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.resets.ResetPassword(ctx, otp.Code, "New12345!", "New12345!", "en")
		}(i)
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, auth.ErrInvalidOTP)
	}
	assert.Equal(t, 1, ok)
}

func TestResetPasswordRules(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	user := f.signUp(t, "ada", "a@x.com", "Old12345!")
	_, err := f.resets.ForgotPassword(ctx, "a@x.com", "en")
	require.NoError(t, err)
	otp, _ := f.otps.Live("a@x.com")

	_, err = f.resets.ResetPassword(ctx, "", "New12345!", "New12345!", "en")
	assert.ErrorIs(t, err, auth.ErrInvalidOTP)

	wrong := "1000"
	if otp.Code == wrong {
		wrong = "1001"
	}
	_, err = f.resets.ResetPassword(ctx, wrong, "New12345!", "New12345!", "en")
	assert.ErrorIs(t, err, auth.ErrInvalidOTP)

	_, err = f.resets.ResetPassword(ctx, otp.Code, "New12345!", "New12345?", "en")
	assert.ErrorIs(t, err, auth.ErrPasswordMismatch)

	_, err = f.resets.ResetPassword(ctx, otp.Code, "weak", "weak", "en")
	assert.ErrorIs(t, err, auth.ErrWeakPassword)

	// validation failures leave the code usable
	_, ok := f.otps.Live("a@x.com")
	assert.True(t, ok)

	f.users.Delete(user.ID)
	_, err = f.resets.ResetPassword(ctx, otp.Code, "New12345!", "New12345!", "en")
	assert.ErrorIs(t, err, auth.ErrUserNotFound)
}

func TestResetPasswordExpiredCode(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.signUp(t, "ada", "a@x.com", "Old12345!")
	_, err := f.resets.ForgotPassword(ctx, "a@x.com", "en")
	require.NoError(t, err)
	otp, _ := f.otps.Live("a@x.com")

	f.clock.Advance(otpTTL + time.Second)
	_, err = f.resets.ResetPassword(ctx, otp.Code, "New12345!", "New12345!", "en")
	assert.ErrorIs(t, err, auth.ErrInvalidOTP)
}

func TestForgotPasswordMailFailureKeepsOTP(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.signUp(t, "ada", "a@x.com", "Old12345!")
	f.mailer.Err = errors.New("relay down")

	_, err := f.resets.ForgotPassword(ctx, "a@x.com", "en")
	assert.ErrorIs(t, err, auth.ErrMailDelivery)
	assert.Equal(t, auth.KindUpstream, auth.KindOf(err))

	_, ok := f.otps.Live("a@x.com")
	assert.True(t, ok)
}

func TestForgotPasswordRetriesCodeCollision(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.signUp(t, "ada", "a@x.com", "Old12345!")
	f.signUp(t, "bob", "b@x.com", "Old12345!")

	codes := []string{"4242", "4242", "5151"}
	f.resets.WithCodeGenerator(func() (string, error) {
		c := codes[0]
		codes = codes[1:]
		return c, nil
	})

	_, err := f.resets.ForgotPassword(ctx, "a@x.com", "en")
	require.NoError(t, err)
	_, err = f.resets.ForgotPassword(ctx, "b@x.com", "en")
	require.NoError(t, err)

	otp, ok := f.otps.Live("b@x.com")
	require.True(t, ok)
	assert.Equal(t, "5151", otp.Code)
}

func TestSetNewPassword(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	user := f.signUp(t, "ada", "a@x.com", "Old12345!")

	_, err := f.resets.SetNewPassword(ctx, user.ID, "New12345!", "Nope12345", "en")
	assert.ErrorIs(t, err, auth.ErrPasswordMismatch)

	_, err = f.resets.SetNewPassword(ctx, "missing", "New12345!", "New12345!", "en")
	assert.ErrorIs(t, err, auth.ErrUserNotFound)

	_, err = f.resets.SetNewPassword(ctx, user.ID, "New12345!", "New12345!", "en")
	require.NoError(t, err)
	_, _, err = f.sessions.Login(ctx, "a@x.com", "New12345!")
	assert.NoError(t, err)

	// an OAuth account can set its first password this way
	g := f.oauthUser(t, "gina", "g@x.com", auth.ProviderGoogle, "g-1")
	_, err = f.resets.SetNewPassword(ctx, g.ID, "Gina12345", "Gina12345", "en")
	require.NoError(t, err)
	_, _, err = f.sessions.Login(ctx, "g@x.com", "Gina12345")
	assert.NoError(t, err)
}

// stalledMailer never delivers; it returns once the context gives up.
type stalledMailer struct{}

func (stalledMailer) Send(ctx context.Context, _, _, _, _ string) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestForgotPasswordMailTimeout(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.signUp(t, "ada", "a@x.com", "Old12345!")
	f.resets.Mailer = stalledMailer{}
	f.resets.MailTimeout = 50 * time.Millisecond

	start := time.Now()
	_, err := f.resets.ForgotPassword(ctx, "a@x.com", "en")
	assert.ErrorIs(t, err, auth.ErrMailDelivery)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestPasswordChangedNoticeIsBounded(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	user := f.signUp(t, "ada", "a@x.com", "Old12345!")
	f.resets.Mailer = stalledMailer{}
	f.resets.MailTimeout = 50 * time.Millisecond

	_, err := f.resets.SetNewPassword(ctx, user.ID, "New12345!", "New12345!", "en")
	require.NoError(t, err)
}

func TestPasswordChangedNoticeUsesLocale(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	user := f.signUp(t, "ada", "a@x.com", "Old12345!")

	_, err := f.resets.SetNewPassword(ctx, user.ID, "New12345!", "New12345!", "de-DE")
	require.NoError(t, err)

	msgs := f.mailer.Messages()
	require.Len(t, msgs, 1)
	de := i18n.PasswordChangedEmail("de", "ada")
	assert.Equal(t, de.Subject, msgs[0].Subject)
	assert.NotEqual(t, i18n.PasswordChangedEmail("en", "ada").Subject, msgs[0].Subject)
}

func TestResetPasswordRejectsOverlongPassword(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.signUp(t, "ada", "a@x.com", "Old12345!")
	_, err := f.resets.ForgotPassword(ctx, "a@x.com", "en")
	require.NoError(t, err)
	otp, _ := f.otps.Live("a@x.com")

	long := "Aa1" + strings.Repeat("x", 80)
	_, err = f.resets.ResetPassword(ctx, otp.Code, long, long, "en")
	assert.ErrorIs(t, err, auth.ErrPasswordTooLong)
	assert.Equal(t, auth.KindValidation, auth.KindOf(err))

	_, ok := f.otps.Live("a@x.com")
	assert.True(t, ok)
}

type brokenPasswordStore struct {
	*authtest.UserStore
}

func (brokenPasswordStore) UpdatePassword(context.Context, string, string) error {
	return errors.New("connection reset")
}

func TestResetPasswordStoreFailureAllowsNewCode(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.signUp(t, "ada", "a@x.com", "Old12345!")
	resets := auth.NewPasswordResetService(brokenPasswordStore{f.users}, f.otps, f.hasher, f.mailer, otpTTL, nil).
		WithClock(f.clock.Now)

	_, err := resets.ForgotPassword(ctx, "a@x.com", "en")
	require.NoError(t, err)
	otp, _ := f.otps.Live("a@x.com")

	_, err = resets.ResetPassword(ctx, otp.Code, "New12345!", "New12345!", "en")
	require.Error(t, err)

	// old password still works and a fresh code can be requested at once
	_, _, err = f.sessions.Login(ctx, "a@x.com", "Old12345!")
	assert.NoError(t, err)
	_, err = resets.ForgotPassword(ctx, "a@x.com", "en")
	assert.NoError(t, err)
}
