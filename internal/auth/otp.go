package auth

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"math/big"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	otpMin = 1000
	otpMax = 9999
)

// OneTimePasscode authorizes a single password reset for Email.
type OneTimePasscode struct {
	Email     string    `json:"email"`
	Code      string    `json:"code"`
	CreatedAt time.Time `json:"createdAt"`
}

func (o *OneTimePasscode) ExpiredAt(now time.Time, ttl time.Duration) bool {
	return !now.Before(o.CreatedAt.Add(ttl))
}

// OTPStore keeps at most one live passcode per email. Create must be a
// single atomic insert: the first caller for an email wins and later ones
// get ErrOTPAlreadyIssued until the entry expires or is consumed.
type OTPStore interface {
	Create(ctx context.Context, otp OneTimePasscode) error
	// FindByCode returns (nil, nil) for unknown or expired codes.
	FindByCode(ctx context.Context, code string) (*OneTimePasscode, error)
	// Consume deletes the code and reports whether this caller removed it.
	Consume(ctx context.Context, code string) (bool, error)
}

// GenerateOTP returns a four digit code from the system CSPRNG.
func GenerateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(otpMax-otpMin+1))
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(n.Int64()+otpMin, 10), nil
}

// ValidOTPFormat reports whether code looks like an issued passcode.
func ValidOTPFormat(code string) bool {
	n, err := strconv.Atoi(code)
	if err != nil {
		return false
	}
	return n >= otpMin && n <= otpMax && strconv.Itoa(n) == code
}

// RedisOTPStore keeps two keys per passcode, one by email and one by code,
// both written with SET NX and the passcode TTL.
type RedisOTPStore struct {
	Redis *redis.Client
	TTL   time.Duration
	now   func() time.Time
}

func NewRedisOTPStore(client *redis.Client, ttl time.Duration) *RedisOTPStore {
	return &RedisOTPStore{Redis: client, TTL: ttl, now: time.Now}
}

func otpEmailKey(email string) string { return "otp:email:" + normalizeEmail(email) }
func otpCodeKey(code string) string   { return "otp:code:" + code }

func (s *RedisOTPStore) Create(ctx context.Context, otp OneTimePasscode) error {
	otp.Email = normalizeEmail(otp.Email)
	if otp.CreatedAt.IsZero() {
		otp.CreatedAt = s.now().UTC()
	}
	data, err := json.Marshal(otp)
	if err != nil {
		return err
	}

	ok, err := s.Redis.SetNX(ctx, otpEmailKey(otp.Email), otp.Code, s.TTL).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrOTPAlreadyIssued
	}

	ok, err = s.Redis.SetNX(ctx, otpCodeKey(otp.Code), data, s.TTL).Result()
	if err != nil || !ok {
		// Release the email slot so the caller can retry with another code.
		s.Redis.Del(ctx, otpEmailKey(otp.Email))
		if err != nil {
			return err
		}
		return ErrOTPCodeInUse
	}
	return nil
}

func (s *RedisOTPStore) FindByCode(ctx context.Context, code string) (*OneTimePasscode, error) {
	raw, err := s.Redis.Get(ctx, otpCodeKey(code)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var otp OneTimePasscode
	if err := json.Unmarshal(raw, &otp); err != nil {
		return nil, err
	}
	if otp.ExpiredAt(s.now(), s.TTL) {
		return nil, nil
	}
	return &otp, nil
}

func (s *RedisOTPStore) Consume(ctx context.Context, code string) (bool, error) {
	raw, err := s.Redis.GetDel(ctx, otpCodeKey(code)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	var otp OneTimePasscode
	if err := json.Unmarshal(raw, &otp); err != nil {
		return false, err
	}
	if err := s.Redis.Del(ctx, otpEmailKey(otp.Email)).Err(); err != nil {
		return true, err
	}
	return !otp.ExpiredAt(s.now(), s.TTL), nil
}
