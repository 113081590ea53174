package audit

import (
	"context"
	"time"
)

type Action string

const (
	ActionRegister           Action = "register"
	ActionLoginSucceeded     Action = "login.succeeded"
	ActionLoginFailed        Action = "login.failed"
	ActionAccountLocked      Action = "account.locked"
	ActionRefreshRotated     Action = "refresh.rotated"
	ActionLogout             Action = "logout"
	ActionCredentialChanged  Action = "credential.changed"
	ActionAccountDeactivated Action = "account.deactivated"
	ActionAccountUnlocked    Action = "account.unlocked"
	ActionAccountDeleted     Action = "account.deleted"
)

type Event struct {
	ID         string            `json:"id"`
	Action     Action            `json:"action"`
	AccountID  string            `json:"account_id,omitempty"`
	Identifier string            `json:"identifier,omitempty"`
	Detail     map[string]string `json:"detail,omitempty"`
	At         time.Time         `json:"at"`
}

// Emitter records auth events. Emission is best-effort and never fails the
// operation that produced the event.
type Emitter interface {
	Emit(ctx context.Context, ev Event)
}

type Repo interface {
	Insert(ctx context.Context, ev *Event) error
	ListByAccount(ctx context.Context, accountID string, limit int) ([]*Event, error)
}
