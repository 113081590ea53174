package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/NordCoder/Gatekeeper/internal/domain/account"
	"github.com/NordCoder/Gatekeeper/internal/domain/audit"
	"github.com/NordCoder/Gatekeeper/internal/domain/autherr"
	"github.com/NordCoder/Gatekeeper/internal/domain/session"
	"github.com/NordCoder/Gatekeeper/internal/lockout"
	"github.com/NordCoder/Gatekeeper/internal/obs"
	"github.com/NordCoder/Gatekeeper/internal/token"
)

const (
	DefaultSessionTTL     = 24 * time.Hour
	DefaultBcryptCost     = 12
	DefaultMinPasswordLen = 8
)

// errUnchanged aborts an Update without writing when the mutator has nothing
// to change.
var errUnchanged = errors.New("account unchanged")

type Config struct {
	SessionTTL     time.Duration
	Lockout        lockout.Policy
	BcryptCost     int
	MinPasswordLen int
	Now            func() time.Time
}

type Usecase struct {
	accounts account.Store
	cache    session.Cache
	tokens   *token.Service
	audit    audit.Emitter
	log      *zap.Logger
	cfg      Config

	authn *Pipeline
}

func NewUsecase(
	accounts account.Store,
	cache session.Cache,
	tokens *token.Service,
	emitter audit.Emitter,
	log *zap.Logger,
	cfg Config,
) *Usecase {
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = DefaultBcryptCost
	}
	if cfg.MinPasswordLen <= 0 {
		cfg.MinPasswordLen = DefaultMinPasswordLen
	}
	if cfg.Lockout.MaxAttempts <= 0 || cfg.Lockout.LockDuration <= 0 {
		cfg.Lockout = lockout.DefaultPolicy()
	}
	if log == nil {
		log = zap.NewNop()
	}

	u := &Usecase{accounts: accounts, cache: cache, tokens: tokens, audit: emitter, log: log, cfg: cfg}
	u.authn = NewPipeline(
		u.requireBearer,
		u.rejectRevoked,
		u.verifyAccess,
		u.loadAccount,
		u.requireActive,
		u.requireFreshCredential,
	)
	return u
}

type RegisterInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

type Result struct {
	Tokens  TokenPair    `json:"tokens"`
	Account account.View `json:"account"`
}

func (u *Usecase) Register(ctx context.Context, in RegisterInput) (res Result, err error) {
	ctx, span := otel.Tracer("auth.usecase").Start(ctx, "auth.Register")
	defer span.End()
	defer observe("register", time.Now())

	in.Email = normalizeEmail(in.Email)
	if err := in.Validate(u.cfg.MinPasswordLen); err != nil {
		return Result{}, err
	}
	email := in.Email

	hash, err := u.hashPassword(in.Password)
	if err != nil {
		return Result{}, err
	}

	acc := &account.Account{
		Email:        email,
		Name:         in.Name,
		PasswordHash: hash,
		Role:         account.RoleStandard,
		Active:       true,
	}
	if err := u.accounts.Create(ctx, acc); err != nil {
		if errors.Is(err, account.ErrConflict) {
			return Result{}, autherr.New(autherr.KindConflict, "email is already registered")
		}
		span.RecordError(err)
		return Result{}, u.infra(ctx, err, "create account")
	}

	pair, err := u.tokens.IssuePair(acc.ID)
	if err != nil {
		return Result{}, u.infra(ctx, err, "issue tokens")
	}
	now := u.cfg.Now()
	updated, err := u.accounts.Update(ctx, acc.ID, func(a *account.Account) error {
		a.LastLoginAt = &now
		a.AddRefreshToken(refreshRecord(pair.Refresh))
		return nil
	})
	if err != nil {
		return Result{}, u.infra(ctx, err, "store refresh token")
	}

	u.putSession(ctx, updated)
	u.emit(ctx, audit.ActionRegister, updated.ID, email, nil)
	obs.WithTrace(ctx, u.log).Info("account registered", zap.String("account_id", updated.ID))

	return Result{Tokens: toPair(pair), Account: updated.View()}, nil
}

// Login verifies the credential of identifier and issues a token pair. Unknown
// accounts and wrong secrets fail alike with InvalidCredentials.
func (u *Usecase) Login(ctx context.Context, identifier, secret string) (res Result, err error) {
	ctx, span := otel.Tracer("auth.usecase").Start(ctx, "auth.Login")
	defer span.End()
	defer observe("login", time.Now())
	defer func() { loginTotal.WithLabelValues(resultLabel(err)).Inc() }()

	identifier = normalizeEmail(identifier)
	if identifier == "" || secret == "" {
		return Result{}, autherr.InvalidInput("email and password are required")
	}
	log := obs.WithTrace(ctx, u.log).With(zap.String("identifier", identifier))

	acc, err := u.accounts.FindByIdentifier(ctx, identifier)
	if errors.Is(err, account.ErrNotFound) {
		log.Info("login rejected: unknown account")
		u.emit(ctx, audit.ActionLoginFailed, "", identifier, map[string]string{"reason": "unknown_account"})
		return Result{}, autherr.ErrInvalidCredentials
	}
	if err != nil {
		return Result{}, u.infra(ctx, err, "load account")
	}
	span.SetAttributes(attribute.String("account.id", acc.ID))

	now := u.cfg.Now()
	if st := u.cfg.Lockout.Evaluate(acc.LockoutState(), now); st.Locked {
		log.Info("login rejected: account locked", zap.Time("until", st.Until))
		return Result{}, lockedError(st.Until)
	}
	if !acc.Active {
		log.Info("login rejected: account inactive")
		return Result{}, autherr.ErrAccountInactive
	}

	ok, err := passwordMatches(acc.PasswordHash, secret)
	if err != nil {
		return Result{}, u.infra(ctx, err, "compare password")
	}
	if !ok {
		return Result{}, u.recordFailure(ctx, acc, now)
	}

	pair, err := u.tokens.IssuePair(acc.ID)
	if err != nil {
		return Result{}, u.infra(ctx, err, "issue tokens")
	}

	updated, err := u.accounts.Update(ctx, acc.ID, func(a *account.Account) error {
		if st := u.cfg.Lockout.Evaluate(a.LockoutState(), now); st.Locked {
			return lockedError(st.Until)
		}
		if !a.Active {
			return autherr.ErrAccountInactive
		}
		if a.PasswordHash != acc.PasswordHash {
			return autherr.ErrInvalidCredentials
		}
		a.SetLockoutState(u.cfg.Lockout.Succeed(a.LockoutState()))
		a.LastLoginAt = &now
		a.AddRefreshToken(refreshRecord(pair.Refresh))
		return nil
	})
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return Result{}, autherr.ErrInvalidCredentials
		}
		return Result{}, u.infra(ctx, err, "record login")
	}

	u.putSession(ctx, updated)
	u.emit(ctx, audit.ActionLoginSucceeded, updated.ID, identifier, nil)
	log.Info("login succeeded", zap.String("account_id", updated.ID))

	return Result{Tokens: toPair(pair), Account: updated.View()}, nil
}

// recordFailure advances the lockout state in one atomic update and always
// answers InvalidCredentials, also for the attempt that triggers the lock.
func (u *Usecase) recordFailure(ctx context.Context, acc *account.Account, now time.Time) error {
	log := obs.WithTrace(ctx, u.log).With(zap.String("account_id", acc.ID))

	var next lockout.State
	_, err := u.accounts.Update(ctx, acc.ID, func(a *account.Account) error {
		if st := u.cfg.Lockout.Evaluate(a.LockoutState(), now); st.Locked {
			return lockedError(st.Until)
		}
		next = u.cfg.Lockout.Fail(a.LockoutState(), now)
		a.SetLockoutState(next)
		return nil
	})
	if err != nil {
		var ae *autherr.Error
		if errors.As(err, &ae) && ae.Kind == autherr.KindAccountLocked {
			return ae
		}
		if errors.Is(err, account.ErrNotFound) {
			return autherr.ErrInvalidCredentials
		}
		return u.infra(ctx, err, "record failed login")
	}

	log.Info("login rejected: wrong password", zap.Int("failed_attempts", next.Failed))
	u.emit(ctx, audit.ActionLoginFailed, acc.ID, acc.Email, map[string]string{
		"reason":          "wrong_password",
		"failed_attempts": fmt.Sprint(next.Failed),
	})
	if next.LockedUntil != nil {
		lockoutsTotal.Inc()
		log.Warn("account locked", zap.Time("until", *next.LockedUntil))
		u.emit(ctx, audit.ActionAccountLocked, acc.ID, acc.Email, map[string]string{
			"until": next.LockedUntil.UTC().Format(time.RFC3339),
		})
	}
	return autherr.ErrInvalidCredentials
}

// AuthenticateRequest runs the authentication pipeline for a protected call
// and returns the caller's view.
func (u *Usecase) AuthenticateRequest(ctx context.Context, bearer string) (account.View, error) {
	r, err := u.Authenticate(ctx, bearer)
	if err != nil {
		return account.View{}, err
	}
	return r.View(), nil
}

// Authenticate runs the authentication pipeline followed by extra stages,
// for example RequireRole.
func (u *Usecase) Authenticate(ctx context.Context, bearer string, extra ...Stage) (*Request, error) {
	ctx, span := otel.Tracer("auth.usecase").Start(ctx, "auth.Authenticate")
	defer span.End()

	p := u.authn
	if len(extra) > 0 {
		p = p.Then(extra...)
	}
	r := &Request{Bearer: bearer}
	if err := p.Run(ctx, r); err != nil {
		kind, _ := autherr.Public(err)
		pipelineRejections.WithLabelValues(string(kind)).Inc()
		if kind == autherr.KindInfrastructure {
			span.RecordError(err)
			obs.WithTrace(ctx, u.log).Error("authenticate request", zap.Error(err))
		}
		return nil, err
	}
	return r, nil
}

func (u *Usecase) requireBearer(_ context.Context, r *Request) error {
	if r.Bearer == "" {
		return autherr.ErrMissingToken
	}
	return nil
}

// rejectRevoked fails closed: an unreadable denylist is an infrastructure error.
func (u *Usecase) rejectRevoked(ctx context.Context, r *Request) error {
	revoked, err := u.cache.IsRevoked(ctx, r.Bearer)
	if err != nil {
		return autherr.Infra(err, "check revocation")
	}
	if revoked {
		return autherr.ErrBlacklistedToken
	}
	return nil
}

func (u *Usecase) verifyAccess(_ context.Context, r *Request) error {
	claims, err := u.tokens.Verify(r.Bearer, token.KindAccess)
	if err != nil {
		return err
	}
	r.Claims = claims
	return nil
}

func (u *Usecase) loadAccount(ctx context.Context, r *Request) error {
	acc, err := u.accounts.FindByID(ctx, r.Claims.AccountID)
	if errors.Is(err, account.ErrNotFound) {
		return autherr.ErrUserNotFound
	}
	if err != nil {
		return autherr.Infra(err, "load account")
	}
	r.Account = acc
	return nil
}

func (u *Usecase) requireActive(_ context.Context, r *Request) error {
	if !r.Account.Active {
		return autherr.ErrAccountInactive
	}
	return nil
}

func (u *Usecase) requireFreshCredential(_ context.Context, r *Request) error {
	if r.Account.IssuedBeforeCredentialChange(r.Claims.IssuedAt) {
		return autherr.ErrStalePasswordToken
	}
	return nil
}

// Refresh rotates a refresh token. The presented token is removed and its
// successor added in one update, so a token is accepted at most once.
func (u *Usecase) Refresh(ctx context.Context, raw string) (pair TokenPair, err error) {
	ctx, span := otel.Tracer("auth.usecase").Start(ctx, "auth.Refresh")
	defer span.End()
	defer observe("refresh", time.Now())
	defer func() { refreshTotal.WithLabelValues(resultLabel(err)).Inc() }()

	if raw == "" {
		return TokenPair{}, autherr.InvalidInput("refresh token is required")
	}
	log := obs.WithTrace(ctx, u.log)

	claims, err := u.tokens.Verify(raw, token.KindRefresh)
	if err != nil {
		log.Info("refresh rejected: token did not verify", zap.Error(err))
		return TokenPair{}, autherr.ErrInvalidRefreshToken
	}

	hash := token.Fingerprint(raw)
	acc, err := u.accounts.FindByRefreshToken(ctx, hash)
	if errors.Is(err, account.ErrNotFound) {
		log.Info("refresh rejected: unknown token", zap.String("account_id", claims.AccountID))
		return TokenPair{}, autherr.ErrInvalidRefreshToken
	}
	if err != nil {
		return TokenPair{}, u.infra(ctx, err, "find refresh token")
	}
	if acc.ID != claims.AccountID {
		log.Warn("refresh rejected: subject mismatch", zap.String("account_id", acc.ID))
		return TokenPair{}, autherr.ErrInvalidRefreshToken
	}

	next, err := u.tokens.IssuePair(acc.ID)
	if err != nil {
		return TokenPair{}, u.infra(ctx, err, "issue tokens")
	}

	_, err = u.accounts.Update(ctx, acc.ID, func(a *account.Account) error {
		if !a.RemoveRefreshToken(hash) {
			return autherr.ErrInvalidRefreshToken
		}
		if !a.Active {
			return autherr.ErrAccountInactive
		}
		a.AddRefreshToken(refreshRecord(next.Refresh))
		return nil
	})
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return TokenPair{}, autherr.ErrInvalidRefreshToken
		}
		return TokenPair{}, u.infra(ctx, err, "rotate refresh token")
	}

	u.emit(ctx, audit.ActionRefreshRotated, acc.ID, acc.Email, nil)
	return toPair(next), nil
}

// Logout revokes the access token, drops the session and forgets the refresh
// token. Failing to write the revocation entry is an error.
func (u *Usecase) Logout(ctx context.Context, bearer, refreshToken, accountID string) error {
	ctx, span := otel.Tracer("auth.usecase").Start(ctx, "auth.Logout")
	defer span.End()
	defer observe("logout", time.Now())
	log := obs.WithTrace(ctx, u.log).With(zap.String("account_id", accountID))

	if bearer == "" {
		return autherr.ErrMissingToken
	}
	claims, err := u.tokens.Verify(bearer, token.KindAccess)
	if err != nil {
		return err
	}
	if claims.AccountID != accountID {
		return autherr.ErrForbidden
	}

	if err := u.cache.Revoke(ctx, bearer, claims.ExpiresAt); err != nil {
		span.RecordError(err)
		log.Error("logout: revoke access token", zap.Error(err))
		return autherr.Infra(err, "revoke access token")
	}
	if err := u.cache.DropSession(ctx, accountID); err != nil {
		log.Warn("logout: drop session", zap.Error(err))
	}

	if refreshToken != "" {
		hash := token.Fingerprint(refreshToken)
		_, err := u.accounts.Update(ctx, accountID, func(a *account.Account) error {
			if !a.RemoveRefreshToken(hash) {
				return errUnchanged
			}
			return nil
		})
		if err != nil && !errors.Is(err, errUnchanged) && !errors.Is(err, account.ErrNotFound) {
			return u.infra(ctx, err, "remove refresh token")
		}
	}

	u.emit(ctx, audit.ActionLogout, accountID, "", nil)
	log.Info("logged out")
	return nil
}

// ChangeCredential replaces the password after verifying the current one.
// Every token issued before the change stops working.
func (u *Usecase) ChangeCredential(ctx context.Context, accountID, current, next string) (TokenPair, error) {
	ctx, span := otel.Tracer("auth.usecase").Start(ctx, "auth.ChangeCredential")
	defer span.End()
	defer observe("change_credential", time.Now())
	log := obs.WithTrace(ctx, u.log).With(zap.String("account_id", accountID))

	if current == "" {
		return TokenPair{}, autherr.InvalidInput("current password is required")
	}
	if err := u.validateNewPassword(next); err != nil {
		return TokenPair{}, err
	}

	acc, err := u.accounts.FindByID(ctx, accountID)
	if errors.Is(err, account.ErrNotFound) {
		return TokenPair{}, autherr.ErrUserNotFound
	}
	if err != nil {
		return TokenPair{}, u.infra(ctx, err, "load account")
	}

	ok, err := passwordMatches(acc.PasswordHash, current)
	if err != nil {
		return TokenPair{}, u.infra(ctx, err, "compare password")
	}
	if !ok {
		log.Info("credential change rejected: wrong current password")
		return TokenPair{}, autherr.ErrInvalidCredentials
	}

	hash, err := u.hashPassword(next)
	if err != nil {
		return TokenPair{}, err
	}

	// Token timestamps are whole milliseconds; the change instant must not be
	// later than the new pair's issued-at.
	changedAt := u.cfg.Now().Truncate(time.Millisecond)
	pair, err := u.tokens.IssuePair(accountID)
	if err != nil {
		return TokenPair{}, u.infra(ctx, err, "issue tokens")
	}

	_, err = u.accounts.Update(ctx, accountID, func(a *account.Account) error {
		if a.PasswordHash != acc.PasswordHash {
			return autherr.ErrInvalidCredentials
		}
		a.PasswordHash = hash
		a.CredentialChangedAt = &changedAt
		a.ClearRefreshTokens()
		a.AddRefreshToken(refreshRecord(pair.Refresh))
		return nil
	})
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return TokenPair{}, autherr.ErrUserNotFound
		}
		return TokenPair{}, u.infra(ctx, err, "store credential")
	}

	if err := u.cache.DropSession(ctx, accountID); err != nil {
		log.Warn("credential change: drop session", zap.Error(err))
	}
	u.emit(ctx, audit.ActionCredentialChanged, accountID, acc.Email, nil)
	log.Info("credential changed")

	return toPair(pair), nil
}

func (u *Usecase) Me(ctx context.Context, accountID string) (account.View, error) {
	acc, err := u.accounts.FindByID(ctx, accountID)
	if errors.Is(err, account.ErrNotFound) {
		return account.View{}, autherr.ErrUserNotFound
	}
	if err != nil {
		return account.View{}, u.infra(ctx, err, "load account")
	}
	return acc.View(), nil
}

// CurrentSession returns the cached session snapshot. A miss or an unreadable
// cache falls back to the store and refills the cache.
func (u *Usecase) CurrentSession(ctx context.Context, accountID string) (session.Snapshot, error) {
	snap, ok, err := u.cache.GetSession(ctx, accountID)
	if err != nil {
		obs.WithTrace(ctx, u.log).Warn("session cache read", zap.String("account_id", accountID), zap.Error(err))
	}
	if err == nil && ok {
		return snap, nil
	}

	acc, err := u.accounts.FindByID(ctx, accountID)
	if errors.Is(err, account.ErrNotFound) {
		return session.Snapshot{}, autherr.ErrUserNotFound
	}
	if err != nil {
		return session.Snapshot{}, u.infra(ctx, err, "load account")
	}
	u.putSession(ctx, acc)
	return session.SnapshotOf(acc), nil
}

func (u *Usecase) putSession(ctx context.Context, acc *account.Account) {
	if err := u.cache.PutSession(ctx, acc.ID, session.SnapshotOf(acc), u.cfg.SessionTTL); err != nil {
		obs.WithTrace(ctx, u.log).Warn("session cache write", zap.String("account_id", acc.ID), zap.Error(err))
	}
}

func (u *Usecase) emit(ctx context.Context, action audit.Action, accountID, identifier string, detail map[string]string) {
	if u.audit == nil {
		return
	}
	u.audit.Emit(ctx, audit.Event{
		ID:         uuid.NewString(),
		Action:     action,
		AccountID:  accountID,
		Identifier: identifier,
		Detail:     detail,
		At:         u.cfg.Now(),
	})
}

// infra passes typed auth errors through and wraps everything else as an
// infrastructure failure.
func (u *Usecase) infra(ctx context.Context, err error, op string) error {
	var ae *autherr.Error
	if errors.As(err, &ae) {
		return ae
	}
	obs.WithTrace(ctx, u.log).Error(op, zap.Error(err))
	return autherr.Infra(err, op)
}

func lockedError(until time.Time) error {
	return autherr.New(autherr.KindAccountLocked,
		fmt.Sprintf("account is locked until %s", until.UTC().Format(time.RFC3339)))
}

func refreshRecord(t token.Token) account.RefreshToken {
	return account.RefreshToken{
		Hash:      token.Fingerprint(t.Raw),
		IssuedAt:  t.Claims.IssuedAt,
		ExpiresAt: t.Claims.ExpiresAt,
	}
}

func toPair(p token.Pair) TokenPair {
	return TokenPair{
		AccessToken:      p.Access.Raw,
		RefreshToken:     p.Refresh.Raw,
		AccessExpiresAt:  p.Access.Claims.ExpiresAt,
		RefreshExpiresAt: p.Refresh.Claims.ExpiresAt,
	}
}

func observe(op string, start time.Time) {
	opDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
