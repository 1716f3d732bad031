package authapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"trustbridge/cmd/identity"
	"trustbridge/cmd/internal/records"
	"trustbridge/cmd/security/credential"

	"github.com/jackc/pgx/v5/pgxpool"
)

// User-facing messages, pinned by tests. Login deliberately does not
// distinguish "unknown user" from "wrong password" (enumeration resistance).
const (
	msgFieldsRequired   = "Both fields are required."
	msgUsernameFormat   = "Username must be 3-20 characters (letters, numbers, underscores only)."
	msgPasswordTooShort = "Password must be at least 6 characters."
	msgPasswordTooLong  = "Password is too long."
	msgPasswordWeak     = "Please choose a stronger password."
	msgUsernameTaken    = "Username already taken."
	msgEnterCredentials = "Please enter your credentials."
	msgBadCredentials   = "Incorrect username or password."
	msgNotLoggedIn      = "Not logged in."
	msgSessionExpired   = "Session expired. Please sign in again."
	msgTxIDRequired     = "txId required."
	msgInvalidBody      = "Invalid request body."
	msgStorageDown      = "Service temporarily unavailable."
)

// Handler wires the HTTP auth + record endpoints to the account and
// record stores.
type Handler struct {
	log *slog.Logger
	cfg Config

	accounts identity.Store
	records  records.Store

	cred credential.Config

	// pool is used only for best-effort audit inserts; nil when the
	// service runs on memory stores.
	pool *pgxpool.Pool

	ipThrottle *KeyedLimiter
	idThrottle *KeyedLimiter

	metrics *Metrics

	// dummyHash keeps login timing comparable when the username does
	// not exist.
	dummyHash string
}

// HandlerOption configures optional auth handler dependencies.
type HandlerOption func(*Handler)

// WithAuditPool enables best-effort audit logging to Postgres.
func WithAuditPool(pool *pgxpool.Pool) HandlerOption {
	return func(h *Handler) {
		if h == nil || pool == nil {
			return
		}
		h.pool = pool
	}
}

// WithCredentialConfig overrides the default credential policy/derivation parameters.
func WithCredentialConfig(cfg credential.Config) HandlerOption {
	return func(h *Handler) {
		if h == nil {
			return
		}
		h.cred = cfg
	}
}

// WithMetrics attaches Prometheus counters to the handler.
func WithMetrics(m *Metrics) HandlerOption {
	return func(h *Handler) {
		if h == nil || m == nil {
			return
		}
		h.metrics = m
	}
}

// NewHandler constructs the auth Handler over the given stores.
func NewHandler(log *slog.Logger, accounts identity.Store, recs records.Store, cfg Config, opts ...HandlerOption) (*Handler, error) {
	if log == nil {
		log = slog.Default()
	}
	if accounts == nil {
		return nil, errors.New("auth: nil account store")
	}
	if recs == nil {
		return nil, errors.New("auth: nil record store")
	}

	h := &Handler{
		log:        log,
		cfg:        cfg,
		accounts:   accounts,
		records:    recs,
		cred:       credential.DefaultConfig(),
		ipThrottle: NewKeyedLimiter(cfg.LoginIPMax, cfg.LoginIPWindow),
		idThrottle: NewKeyedLimiter(cfg.LoginIdentifierMax, cfg.LoginIdentifierWindow),
	}

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(h)
	}

	// Dummy hash for timing-resistant login checks.
	if hash, err := h.cred.Hash("dummy-password-for-timing-only"); err == nil {
		h.dummyHash = hash
	}

	return h, nil
}

// Register wires the API routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("/api/register", h.handleRegister)
	mux.HandleFunc("/api/login", h.handleLogin)
	mux.HandleFunc("/api/logout", h.handleLogout)
	mux.HandleFunc("/api/me", h.handleMe)
	mux.HandleFunc("/api/check-username", h.handleCheckUsername)
	mux.HandleFunc("/api/transactions", h.handleTransactions)
}

// ---- handlers ----

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req registerRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeErr(w, http.StatusBadRequest, msgInvalidBody)
		return
	}

	if req.Username == "" || req.Password == "" {
		h.metrics.registration("invalid_input")
		writeErr(w, http.StatusBadRequest, msgFieldsRequired)
		return
	}

	username := strings.TrimSpace(req.Username)
	if !identity.ValidUsername(username) {
		h.metrics.registration("invalid_input")
		writeErr(w, http.StatusBadRequest, msgUsernameFormat)
		return
	}

	credHash, err := h.cred.Hash(req.Password)
	if err != nil {
		h.metrics.registration("invalid_input")
		switch {
		case errors.Is(err, credential.ErrPasswordTooShort):
			writeErr(w, http.StatusBadRequest, msgPasswordTooShort)
		case errors.Is(err, credential.ErrPasswordTooLong):
			writeErr(w, http.StatusBadRequest, msgPasswordTooLong)
		case errors.Is(err, credential.ErrWeakPassword):
			writeErr(w, http.StatusBadRequest, msgPasswordWeak)
		default:
			h.log.Error("auth.register.hash.fail", "err", err)
			writeErr(w, http.StatusServiceUnavailable, msgStorageDown)
		}
		return
	}

	plainToken, err := identity.NewSessionToken(0)
	if err != nil {
		h.log.Error("auth.register.token.fail", "err", err)
		writeErr(w, http.StatusServiceUnavailable, msgStorageDown)
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()

	// Registration logs the account in: the token slot is populated in
	// the same atomic create.
	acct, err := h.accounts.Create(ctx, identity.CreateAccountInput{
		Username:         username,
		CredentialHash:   credHash,
		SessionTokenHash: identity.HashSessionTokenHex(plainToken),
		Now:              now,
	})
	if err != nil {
		switch {
		case identity.IsConflict(err):
			h.metrics.registration("taken")
			writeErr(w, http.StatusConflict, msgUsernameTaken)
		case identity.IsInvalidInput(err):
			h.metrics.registration("invalid_input")
			writeErr(w, http.StatusBadRequest, msgUsernameFormat)
		default:
			h.log.Error("auth.register.create.fail", "err", err)
			writeErr(w, http.StatusServiceUnavailable, msgStorageDown)
		}
		return
	}

	h.metrics.registration("ok")
	h.auditRegister(ctx, acct.ID, clientIP(r, h.cfg.TrustProxy), strings.TrimSpace(r.UserAgent()), acct.Username)

	writeJSON(w, http.StatusOK, sessionResponse{
		OK:    true,
		User:  userView{ID: acct.ID, Username: acct.Username},
		Token: plainToken,
	})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeErr(w, http.StatusBadRequest, msgInvalidBody)
		return
	}

	if req.Username == "" || req.Password == "" {
		h.metrics.login("invalid_input")
		writeErr(w, http.StatusBadRequest, msgEnterCredentials)
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()
	ip := clientIP(r, h.cfg.TrustProxy)
	ua := strings.TrimSpace(r.UserAgent())
	identifier := identity.NormalizeUsername(req.Username)

	if blocked, retryAfter := h.ipThrottle.Blocked(ipKey(ip), now); blocked {
		h.metrics.login("rate_limited")
		h.auditLoginRateLimited(ctx, ip, ua, identifier, retryAfter)
		writeRateLimited(w, retryAfter)
		return
	}
	if blocked, retryAfter := h.idThrottle.Blocked(identifier, now); blocked {
		h.metrics.login("rate_limited")
		h.auditLoginRateLimited(ctx, ip, ua, identifier, retryAfter)
		writeRateLimited(w, retryAfter)
		return
	}

	acct, err := h.accounts.FindByUsername(ctx, req.Username)
	if err != nil {
		if identity.IsNotFound(err) || identity.IsInvalidInput(err) {
			// Timing resistance: perform a dummy verify when the
			// account is missing.
			if h.dummyHash != "" {
				_, _ = h.cred.Verify(req.Password, h.dummyHash)
			}
			h.noteLoginFailure(ip, identifier, now)
			h.metrics.login("bad_credentials")
			h.auditLoginFailed(ctx, nil, ip, ua, identifier, "not_found")
			writeErr(w, http.StatusUnauthorized, msgBadCredentials)
			return
		}
		h.log.Error("auth.login.lookup.fail", "err", err)
		writeErr(w, http.StatusServiceUnavailable, msgStorageDown)
		return
	}

	okPw, err := h.cred.Verify(req.Password, acct.CredentialHash)
	if err != nil || !okPw {
		h.noteLoginFailure(ip, identifier, now)
		h.metrics.login("bad_credentials")
		h.auditLoginFailed(ctx, &acct.ID, ip, ua, identifier, "bad_password")
		writeErr(w, http.StatusUnauthorized, msgBadCredentials)
		return
	}

	plainToken, err := identity.NewSessionToken(0)
	if err != nil {
		h.log.Error("auth.login.token.fail", "err", err)
		writeErr(w, http.StatusServiceUnavailable, msgStorageDown)
		return
	}

	// Rotation: any prior session token for the account becomes
	// permanently unresolvable in the same step.
	if err := h.accounts.RotateToken(ctx, acct.ID, identity.HashSessionTokenHex(plainToken), now); err != nil {
		h.log.Error("auth.login.rotate.fail", "err", err)
		writeErr(w, http.StatusServiceUnavailable, msgStorageDown)
		return
	}

	h.metrics.login("ok")
	h.auditLoginSuccess(ctx, acct.ID, ip, ua, identifier)

	writeJSON(w, http.StatusOK, sessionResponse{
		OK:    true,
		User:  userView{ID: acct.ID, Username: acct.Username},
		Token: plainToken,
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	acct, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	if err := h.accounts.ClearToken(ctx, acct.ID); err != nil {
		h.log.Error("auth.logout.fail", "err", err)
		writeErr(w, http.StatusServiceUnavailable, msgStorageDown)
		return
	}

	h.auditLogout(ctx, acct.ID, clientIP(r, h.cfg.TrustProxy), strings.TrimSpace(r.UserAgent()))
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	acct, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, meResponse{
		OK:   true,
		User: userView{ID: acct.ID, Username: acct.Username},
	})
}

// handleCheckUsername is a public availability probe. It never errors:
// a blank or malformed username simply reads as unavailable.
func (h *Handler) handleCheckUsername(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	username := strings.TrimSpace(r.URL.Query().Get("username"))
	if username == "" {
		writeJSON(w, http.StatusOK, checkUsernameResponse{Available: false})
		return
	}

	_, err := h.accounts.FindByUsername(r.Context(), username)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, checkUsernameResponse{Available: false})
	case identity.IsNotFound(err):
		writeJSON(w, http.StatusOK, checkUsernameResponse{Available: true})
	default:
		if !identity.IsInvalidInput(err) {
			h.log.Error("auth.check_username.fail", "err", err)
		}
		writeJSON(w, http.StatusOK, checkUsernameResponse{Available: false})
	}
}

func (h *Handler) handleTransactions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleRecordList(w, r)
	case http.MethodPost:
		h.handleRecordUpsert(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleRecordList(w http.ResponseWriter, r *http.Request) {
	acct, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	recs, err := h.records.List(r.Context(), acct.ID)
	if err != nil {
		h.log.Error("records.list.fail", "err", err)
		writeErr(w, http.StatusServiceUnavailable, msgStorageDown)
		return
	}

	out := make([]map[string]any, 0, len(recs))
	for _, rec := range recs {
		out = append(out, renderRecord(rec))
	}

	writeJSON(w, http.StatusOK, recordListResponse{OK: true, Transactions: out})
}

func (h *Handler) handleRecordUpsert(w http.ResponseWriter, r *http.Request) {
	acct, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	var req recordUpsertRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeErr(w, http.StatusBadRequest, msgInvalidBody)
		return
	}
	if strings.TrimSpace(req.TxID) == "" {
		writeErr(w, http.StatusBadRequest, msgTxIDRequired)
		return
	}

	ctx := r.Context()
	if _, err := h.records.Upsert(ctx, records.UpsertInput{
		AccountID: acct.ID,
		Key:       req.TxID,
		Payload:   req.TxData,
		Now:       time.Now().UTC(),
	}); err != nil {
		if errors.Is(err, records.ErrInvalidKey) {
			writeErr(w, http.StatusBadRequest, msgTxIDRequired)
			return
		}
		h.log.Error("records.upsert.fail", "err", err)
		writeErr(w, http.StatusServiceUnavailable, msgStorageDown)
		return
	}

	h.metrics.upsert()
	h.auditRecordUpsert(ctx, acct.ID, clientIP(r, h.cfg.TrustProxy), strings.TrimSpace(r.UserAgent()), req.TxID)
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

// ---- helpers ----

// requireAuth resolves the bearer token to an account. A missing token
// and an unresolvable token answer with distinct messages, matching the
// client's expectations.
func (h *Handler) requireAuth(w http.ResponseWriter, r *http.Request) (identity.Account, bool) {
	token := bearerToken(r)
	if token == "" {
		writeErr(w, http.StatusUnauthorized, msgNotLoggedIn)
		return identity.Account{}, false
	}

	acct, err := h.accounts.FindByToken(r.Context(), identity.HashSessionTokenHex(token))
	if err != nil {
		if identity.IsNotFound(err) || identity.IsUnauthenticated(err) || identity.IsInvalidInput(err) {
			writeErr(w, http.StatusUnauthorized, msgSessionExpired)
			return identity.Account{}, false
		}
		h.log.Error("auth.resolve_token.fail", "err", err)
		writeErr(w, http.StatusServiceUnavailable, msgStorageDown)
		return identity.Account{}, false
	}
	return acct, true
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return ""
	}
	parts := strings.SplitN(raw, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func (h *Handler) noteLoginFailure(ip net.IP, identifier string, now time.Time) {
	h.ipThrottle.Note(ipKey(ip), now)
	h.idThrottle.Note(identifier, now)
}

func ipKey(ip net.IP) string {
	if ip == nil {
		return ""
	}
	return ip.String()
}

// renderRecord flattens a record into the wire shape: the payload's own
// fields plus id and updatedAt. A non-object payload lands under "data".
func renderRecord(rec records.Record) map[string]any {
	out := map[string]any{}

	if len(rec.Payload) > 0 {
		var fields map[string]any
		if err := json.Unmarshal(rec.Payload, &fields); err == nil {
			for k, v := range fields {
				out[k] = v
			}
		} else {
			var v any
			if err := json.Unmarshal(rec.Payload, &v); err == nil {
				out["data"] = v
			}
		}
	}

	// id and updatedAt always win over payload fields of the same name.
	out["id"] = rec.Key
	out["updatedAt"] = rec.UpdatedAt.UTC().Format(time.RFC3339)
	return out
}

func clientIP(r *http.Request, trustProxy bool) net.IP {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip
		}
	}
	return nil
}

func parseForwardedIP(raw string) net.IP {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	for _, p := range parts {
		if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
			return ip
		}
	}
	return nil
}
