package main

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/tenauth/flow-idm/pkg/ciba"
	"github.com/tenauth/flow-idm/pkg/condition"
	"github.com/tenauth/flow-idm/pkg/errors"
	"github.com/tenauth/flow-idm/pkg/flowgraph"
)

// demoOTP is accepted for every mfa node. Real deployments plug in a
// TOTP or push verifier instead.
const demoOTP = "123456"

type directoryUser struct {
	Subject      string
	Username     string
	PasswordHash []byte
	Attributes   map[string]any
}

// userDirectory is an in-memory credential store backing the flow engine's
// auth nodes and CIBA login hint resolution.
type userDirectory struct {
	mu    sync.RWMutex
	users map[string]*directoryUser
}

func newUserDirectory() *userDirectory {
	return &userDirectory{
		users: make(map[string]*directoryUser),
	}
}

func (d *userDirectory) AddUser(username, password string, attributes map[string]any) {
	hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[username] = &directoryUser{
		Subject:      uuid.New().String(),
		Username:     username,
		PasswordHash: hash,
		Attributes:   attributes,
	}
}

// Verify implements flowruntime.CredentialVerifier.
func (d *userDirectory) Verify(ctx context.Context, nodeType flowgraph.NodeType, config map[string]any, rc *condition.RuntimeContext, input map[string]any) error {
	switch nodeType.Canonical() {
	case flowgraph.NodeLogin:
		username, _ := input["username"].(string)
		password, _ := input["password"].(string)
		user := d.lookup(username)
		if user == nil || bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)) != nil {
			return errors.New(errors.ErrCodeInvalidCredentials, "invalid username or password")
		}
		bindUser(rc, user)
		return nil

	case flowgraph.NodeMFA:
		code, _ := input["code"].(string)
		if code != demoOTP {
			return errors.New(errors.ErrCodeInvalidCredentials, "invalid verification code")
		}
		rc.User["mfaVerified"] = true
		return nil

	case flowgraph.NodeRegister:
		username, _ := input["username"].(string)
		password, _ := input["password"].(string)
		if username == "" || password == "" {
			return errors.InvalidInput("username/password", "required")
		}
		if d.lookup(username) != nil {
			return errors.New(errors.ErrCodeAlreadyExists, "username is taken")
		}
		d.AddUser(username, password, map[string]any{"email": username})
		bindUser(rc, d.lookup(username))
		return nil
	}
	return errors.Newf(errors.ErrCodeInvalidInput, "unsupported auth node type: %s", nodeType)
}

// ResolveHint maps a CIBA identity hint to a subject identifier. A
// login_hint is a username; the demo directory accepts hint tokens that
// carry the bare subject.
func (d *userDirectory) ResolveHint(ctx context.Context, hint ciba.UserHint) (string, error) {
	if hint.Kind == ciba.HintLogin {
		user := d.lookup(hint.Value)
		if user == nil {
			return "", errors.NotFound("user", hint.Value)
		}
		return user.Subject, nil
	}
	user := d.lookupBySubject(hint.Value)
	if user == nil {
		return "", errors.NotFound("user", hint.Value)
	}
	return user.Subject, nil
}

func (d *userDirectory) lookup(username string) *directoryUser {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.users[username]
}

func (d *userDirectory) lookupBySubject(subject string) *directoryUser {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, user := range d.users {
		if user.Subject == subject {
			return user
		}
	}
	return nil
}

func bindUser(rc *condition.RuntimeContext, user *directoryUser) {
	rc.User["id"] = user.Subject
	rc.User["username"] = user.Username
	for key, value := range user.Attributes {
		rc.User[key] = value
	}
}

// logDispatcher records side-effect node executions without performing
// them. Webhook, email and event nodes succeed immediately.
type logDispatcher struct{}

func (l *logDispatcher) Dispatch(ctx context.Context, nodeType flowgraph.NodeType, config map[string]any, rc *condition.RuntimeContext) (map[string]any, error) {
	slog.Info("Dispatching flow action", "nodeType", nodeType)
	return map[string]any{"action": string(nodeType), "status": "ok"}, nil
}
