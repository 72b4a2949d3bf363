package auth

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter counts failed attempts per client IP in Redis.
type RateLimiter struct {
	Redis *redis.Client
}

const (
	loginMaxAttempts = 5
	loginAttemptTTL  = 10 * time.Minute
	loginBanTTL      = 1 * time.Hour
	resetMaxAttempts = 10
	resetAttemptTTL  = 15 * time.Minute
)

func NewRateLimiter(client *redis.Client) *RateLimiter {
	return &RateLimiter{Redis: client}
}

func loginAttemptKey(ip string) string { return "login_attempts:" + ip }
func loginBanKey(ip string) string     { return "login_ban:" + ip }
func resetAttemptKey(ip string) string { return "reset_attempts_ip:" + ip }

func (r *RateLimiter) IsIPBanned(ctx context.Context, ip string) bool {
	if ip == "" {
		return false
	}
	exists, _ := r.Redis.Exists(ctx, loginBanKey(ip)).Result()
	return exists == 1
}

func (r *RateLimiter) RegisterLoginFailure(ctx context.Context, ip string) error {
	if ip == "" {
		return nil
	}
	key := loginAttemptKey(ip)

	attempts, err := r.Redis.Incr(ctx, key).Result()
	if err != nil {
		return err
	}
	if attempts == 1 {
		r.Redis.Expire(ctx, key, loginAttemptTTL)
	}
	if attempts >= loginMaxAttempts {
		r.Redis.Set(ctx, loginBanKey(ip), "1", loginBanTTL)
		r.Redis.Expire(ctx, key, loginBanTTL)
	}
	return nil
}

func (r *RateLimiter) ResetLogin(ctx context.Context, ip string) {
	if ip == "" {
		return
	}
	r.Redis.Del(ctx, loginAttemptKey(ip))
}

// RegisterResetAttempt counts password-reset redemptions per IP. The four
// digit code space is small, so guesses have to be bounded.
func (r *RateLimiter) RegisterResetAttempt(ctx context.Context, ip string) (bool, time.Duration, error) {
	if ip == "" {
		return false, 0, nil
	}
	key := resetAttemptKey(ip)

	attempts, err := r.Redis.Incr(ctx, key).Result()
	if err != nil {
		return false, 0, err
	}
	if attempts == 1 {
		r.Redis.Expire(ctx, key, resetAttemptTTL)
	}
	ttl, _ := r.Redis.TTL(ctx, key).Result()
	return attempts > resetMaxAttempts, ttl, nil
}
