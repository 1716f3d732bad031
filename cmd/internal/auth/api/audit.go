package authapi

import (
	"context"
	"encoding/json"
	"net"
	"strings"
	"time"
)

func (h *Handler) auditRegister(ctx context.Context, accountID string, ip net.IP, ua string, username string) {
	h.insertAudit(ctx, "auth.register", &accountID, ip, ua, map[string]any{
		"username": username,
	})
}

func (h *Handler) auditLoginFailed(ctx context.Context, accountID *string, ip net.IP, ua string, identifier string, reason string) {
	h.insertAudit(ctx, "auth.login.failed", accountID, ip, ua, map[string]any{
		"identifier": identifier,
		"reason":     reason,
	})
}

func (h *Handler) auditLoginSuccess(ctx context.Context, accountID string, ip net.IP, ua string, identifier string) {
	h.insertAudit(ctx, "auth.login.success", &accountID, ip, ua, map[string]any{
		"identifier": identifier,
	})
}

func (h *Handler) auditLoginRateLimited(ctx context.Context, ip net.IP, ua string, identifier string, retryAfter time.Duration) {
	h.insertAudit(ctx, "auth.login.rate_limited", nil, ip, ua, map[string]any{
		"identifier":    identifier,
		"retry_after_s": int64(retryAfter.Seconds()),
	})
}

func (h *Handler) auditLogout(ctx context.Context, accountID string, ip net.IP, ua string) {
	h.insertAudit(ctx, "auth.logout", &accountID, ip, ua, nil)
}

func (h *Handler) auditRecordUpsert(ctx context.Context, accountID string, ip net.IP, ua string, key string) {
	h.insertAudit(ctx, "records.upsert", &accountID, ip, ua, map[string]any{
		"record_key": key,
	})
}

// insertAudit is best-effort: audit failures are logged, never surfaced
// to the caller. It is a no-op without a configured pool.
func (h *Handler) insertAudit(ctx context.Context, action string, accountID *string, ip net.IP, ua string, meta map[string]any) {
	if h == nil || h.pool == nil {
		return
	}

	action = strings.TrimSpace(action)
	if action == "" {
		return
	}

	var ipVal any
	if ip != nil {
		ipVal = ip.String()
	}

	var metaVal *string
	if len(meta) > 0 {
		if b, err := json.Marshal(meta); err == nil {
			s := string(b)
			metaVal = &s
		}
	}

	_, err := h.pool.Exec(ctx, `
		INSERT INTO trustbridge.audit_log (
			account_id, action, created_at, ip, user_agent, meta
		) VALUES ($1, $2, now(), $3, $4, $5::jsonb)
	`, accountID, action, ipVal, trimOrNil(ua), metaVal)
	if err != nil {
		h.log.Error("auth.audit.insert.fail", "err", err, "action", action)
	}
}

func trimOrNil(s string) any {
	v := strings.TrimSpace(s)
	if v == "" {
		return nil
	}
	return v
}
