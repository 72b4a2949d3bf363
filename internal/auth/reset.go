package auth

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"go.uber.org/zap"

	"studytracker/internal/i18n"
)

const (
	otpCreateAttempts = 5
	// defaultMailTimeout caps one delivery attempt whatever the transport.
	defaultMailTimeout = 20 * time.Second
)

// Mailer delivers a rendered email.
type Mailer interface {
	Send(ctx context.Context, to, subject, text, html string) error
}

// PasswordResetService issues and redeems emailed one-time passcodes and
// changes passwords for signed-in users.
type PasswordResetService struct {
	Users  UserStore
	OTPs   OTPStore
	Hasher PasswordHasher
	Mailer Mailer
	TTL    time.Duration
	Logger *zap.Logger
	// MailTimeout bounds each Mailer.Send call.
	MailTimeout time.Duration

	generate func() (string, error)
	now      func() time.Time
}

func NewPasswordResetService(users UserStore, otps OTPStore, hasher PasswordHasher, mailer Mailer, ttl time.Duration, logger *zap.Logger) *PasswordResetService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PasswordResetService{
		Users:    users,
		OTPs:     otps,
		Hasher:   hasher,
		Mailer:   mailer,
		TTL:         ttl,
		Logger:      logger,
		MailTimeout: defaultMailTimeout,
		generate:    GenerateOTP,
		now:         time.Now,
	}
}

// WithCodeGenerator replaces the passcode source. Used by tests.
func (s *PasswordResetService) WithCodeGenerator(gen func() (string, error)) *PasswordResetService {
	s.generate = gen
	return s
}

func (s *PasswordResetService) WithClock(now func() time.Time) *PasswordResetService {
	s.now = now
	return s
}

// ForgotPassword emails a passcode to a password account. A live passcode
// for the same email blocks a new one until it expires or is redeemed. If
// delivery fails the stored passcode stays valid.
func (s *PasswordResetService) ForgotPassword(ctx context.Context, email, locale string) (*User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, ErrEmailRequired
	}
	if !ValidEmail(email) {
		return nil, ErrInvalidEmail
	}

	user, err := s.Users.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	if user.IsOAuthLinked() {
		return nil, ErrOAuthAccountCannotReset
	}

	code, err := s.issue(ctx, user.Email)
	if err != nil {
		return nil, err
	}

	content := i18n.PasswordResetCodeEmail(locale, user.Username, code, int(s.TTL/time.Minute))
	if err := s.send(ctx, user.Email, content); err != nil {
		s.Logger.Error("send reset code failed", zap.String("userId", user.ID), zap.Error(err))
		return nil, ErrMailDelivery.Wrap(err)
	}
	return user, nil
}

func (s *PasswordResetService) issue(ctx context.Context, email string) (string, error) {
	for attempt := 0; attempt < otpCreateAttempts; attempt++ {
		code, err := s.generate()
		if err != nil {
			return "", err
		}
		err = s.OTPs.Create(ctx, OneTimePasscode{Email: email, Code: code, CreatedAt: s.now().UTC()})
		if errors.Is(err, ErrOTPCodeInUse) {
			continue
		}
		if err != nil {
			return "", err
		}
		return code, nil
	}
	return "", errors.New("could not allocate a free reset code")
}

// ResetPassword redeems code and stores the new password. The passcode is
// consumed before the hash is written, so only one redemption can succeed.
func (s *PasswordResetService) ResetPassword(ctx context.Context, code, password, confirm, locale string) (*User, error) {
	code = strings.TrimSpace(code)
	if !ValidOTPFormat(code) {
		return nil, ErrInvalidOTP
	}
	otp, err := s.OTPs.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if otp == nil {
		return nil, ErrInvalidOTP
	}
	if err := validateNewPassword(password, confirm); err != nil {
		return nil, err
	}

	user, err := s.Users.FindByEmail(ctx, otp.Email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	hash, err := s.Hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	consumed, err := s.OTPs.Consume(ctx, code)
	if err != nil {
		return nil, err
	}
	if !consumed {
		return nil, ErrInvalidOTP
	}

	// A failed write after Consume leaves the old password in place and
	// the email slot free, so the user can request a new code.
	if err := s.Users.UpdatePassword(ctx, user.ID, hash); err != nil {
		s.Logger.Error("store reset password failed", zap.String("userId", user.ID), zap.Error(err))
		return nil, err
	}
	s.notifyChanged(ctx, user, locale)
	return user, nil
}

// SetNewPassword changes the password of a signed-in user.
func (s *PasswordResetService) SetNewPassword(ctx context.Context, userID, password, confirm, locale string) (*User, error) {
	if err := validateNewPassword(password, confirm); err != nil {
		return nil, err
	}
	user, err := s.Users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	hash, err := s.Hasher.Hash(password)
	if err != nil {
		return nil, err
	}
	if err := s.Users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return nil, err
	}
	s.notifyChanged(ctx, user, locale)
	return user, nil
}

// notifyChanged is best effort; the password is already stored.
func (s *PasswordResetService) notifyChanged(ctx context.Context, user *User, locale string) {
	content := i18n.PasswordChangedEmail(locale, user.Username)
	if err := s.send(ctx, user.Email, content); err != nil {
		s.Logger.Warn("password changed notice failed", zap.String("userId", user.ID), zap.Error(err))
	}
}

func (s *PasswordResetService) send(ctx context.Context, to string, content i18n.EmailContent) error {
	if s.MailTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.MailTimeout)
		defer cancel()
	}
	return s.Mailer.Send(ctx, to, content.Subject, content.Text, content.HTML)
}

// ValidEmail accepts a bare address without a display name.
func ValidEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return false
	}
	return addr.Address == email && strings.Contains(email, "@")
}
