package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	AuditLogin                  = "login"
	AuditLoginFailed            = "login_failed"
	AuditLogout                 = "logout"
	AuditOAuthLogin             = "oauth_login"
	AuditSignup                 = "signup"
	AuditPasswordResetRequested = "password_reset_requested"
	AuditPasswordReset          = "password_reset"
	AuditPasswordSet            = "password_set"
)

const (
	defaultAuditMaxLen    = 500
	defaultAuditRetention = 90 * 24 * time.Hour
	// Events without a user (failed logins) share one list.
	anonymousAuditKey = "audit:anonymous"
)

type AuditEvent struct {
	EventType string         `json:"eventType"`
	UserID    string         `json:"userId,omitempty"`
	IP        string         `json:"ip"`
	UserAgent string         `json:"userAgent"`
	Timestamp time.Time      `json:"timestamp"`
	Meta      map[string]any `json:"meta,omitempty"`
}

// AuditLogger keeps a capped, expiring Redis list of security events per
// user, newest last.
type AuditLogger struct {
	Redis     *redis.Client
	MaxLen    int64
	Retention time.Duration
}

func NewAuditLogger(client *redis.Client) *AuditLogger {
	return &AuditLogger{Redis: client, MaxLen: defaultAuditMaxLen, Retention: defaultAuditRetention}
}

func auditKey(userID string) string {
	if userID == "" {
		return anonymousAuditKey
	}
	return "audit:" + userID
}

func (a *AuditLogger) Log(ctx context.Context, e AuditEvent) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode audit event: %w", err)
	}

	key := auditKey(e.UserID)
	_, err = a.Redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, data)
		if a.MaxLen > 0 {
			pipe.LTrim(ctx, key, -a.MaxLen, -1)
		}
		if a.Retention > 0 {
			pipe.Expire(ctx, key, a.Retention)
		}
		return nil
	})
	return err
}

// Recent returns up to limit of the user's latest events, newest first.
// Entries that no longer decode are skipped.
func (a *AuditLogger) Recent(ctx context.Context, userID string, limit int) ([]AuditEvent, error) {
	if userID == "" || limit <= 0 {
		return nil, nil
	}
	raw, err := a.Redis.LRange(ctx, auditKey(userID), int64(-limit), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read audit events: %w", err)
	}

	events := make([]AuditEvent, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var e AuditEvent
		if err := json.Unmarshal([]byte(raw[i]), &e); err != nil {
			continue
		}
		events = append(events, e)
	}
	return events, nil
}
