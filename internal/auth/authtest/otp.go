package authtest

import (
	"context"
	"strings"
	"sync"
	"time"

	"studytracker/internal/auth"
)

// OTPStore mirrors the Redis store: one live passcode per email and per
// code, with expiry checked against Clock.
type OTPStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	clock   *Clock
	byEmail map[string]string
	byCode  map[string]auth.OneTimePasscode
}

func NewOTPStore(ttl time.Duration, clock *Clock) *OTPStore {
	if clock == nil {
		clock = NewClock(time.Now())
	}
	return &OTPStore{
		ttl:     ttl,
		clock:   clock,
		byEmail: make(map[string]string),
		byCode:  make(map[string]auth.OneTimePasscode),
	}
}

func (s *OTPStore) Create(_ context.Context, otp auth.OneTimePasscode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked()

	otp.Email = strings.ToLower(strings.TrimSpace(otp.Email))
	if otp.CreatedAt.IsZero() {
		otp.CreatedAt = s.clock.Now()
	}
	if _, ok := s.byEmail[otp.Email]; ok {
		return auth.ErrOTPAlreadyIssued
	}
	if _, ok := s.byCode[otp.Code]; ok {
		return auth.ErrOTPCodeInUse
	}
	s.byEmail[otp.Email] = otp.Code
	s.byCode[otp.Code] = otp
	return nil
}

func (s *OTPStore) FindByCode(_ context.Context, code string) (*auth.OneTimePasscode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked()

	otp, ok := s.byCode[code]
	if !ok {
		return nil, nil
	}
	return &otp, nil
}

func (s *OTPStore) Consume(_ context.Context, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked()

	otp, ok := s.byCode[code]
	if !ok {
		return false, nil
	}
	delete(s.byCode, code)
	delete(s.byEmail, otp.Email)
	return true, nil
}

// Live returns the unexpired passcode for email, if any.
func (s *OTPStore) Live(email string) (auth.OneTimePasscode, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked()

	code, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return auth.OneTimePasscode{}, false
	}
	return s.byCode[code], true
}

func (s *OTPStore) pruneLocked() {
	now := s.clock.Now()
	for code, otp := range s.byCode {
		if otp.ExpiredAt(now, s.ttl) {
			delete(s.byCode, code)
			if s.byEmail[otp.Email] == code {
				delete(s.byEmail, otp.Email)
			}
		}
	}
}
