// Package remote provides the client for the authoritative dashboard
// service.
//
// The sync engine only ever talks to the remote through the Client
// interface, so tests substitute a fake and the engine never cares
// whether the transport is HTTP or something else. Authentication is
// owned by an external collaborator; the engine only needs "is there a
// usable session" as a gate for whether remote operations are attempted.
package remote

import (
	"context"
	"errors"

	"github.com/vivek100/dashwizard/internal/schema"
)

// ErrNoSession indicates no usable session exists; remote operations
// should not be attempted until one does.
var ErrNoSession = errors.New("no usable session")

// ErrUnavailable indicates the remote service could not be reached.
// Operations failing with it stay queued and are retried.
var ErrUnavailable = errors.New("remote service unavailable")

// Client is the remote service contract consumed by the sync manager.
type Client interface {
	// FetchUserDashboards returns the complete remote dashboard
	// collection for the current session's user.
	FetchUserDashboards(ctx context.Context) ([]schema.Dashboard, error)

	// FetchTemplates returns the published template collection.
	FetchTemplates(ctx context.Context) ([]schema.Dashboard, error)

	// CreateDashboard creates a dashboard remotely.
	CreateDashboard(ctx context.Context, d schema.Dashboard) error

	// UpdateDashboard replaces a dashboard's remote state.
	UpdateDashboard(ctx context.Context, d schema.Dashboard) error

	// DeleteDashboard removes a dashboard remotely. Deleting an unknown
	// id is a no-op so replayed deletes stay idempotent.
	DeleteDashboard(ctx context.Context, id string) error

	// Ping probes connectivity. A nil error means the service is
	// reachable and the session is usable.
	Ping(ctx context.Context) error
}

// SessionProvider answers whether a usable session exists and supplies
// the bearer token for requests. The engine never inspects the token.
type SessionProvider interface {
	HasSession() bool
	Token() string
}

// StaticSession is a SessionProvider with a fixed token, used by the CLI
// and tests. An empty token means no session.
type StaticSession string

// HasSession implements SessionProvider.
func (s StaticSession) HasSession() bool { return s != "" }

// Token implements SessionProvider.
func (s StaticSession) Token() string { return string(s) }
