// Package session owns the MongoDB client and the per-request tenant
// identifier.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.opentelemetry.io/otel"

	"github.com/homelead/mcphost/internal/config"
)

var tracer = otel.Tracer("github.com/homelead/mcphost/internal/session")

// ErrNotConnected is returned by any operation attempted before Connect.
var ErrNotConnected = errors.New("session: mongo client not connected")

// ErrInvalidTenant is returned when a caller supplies a tenant id that
// isn't a 24-hex ObjectId.
var ErrInvalidTenant = errors.New("session: invalid tenant id")

// Session holds the Mongo client and the tenant currently bound to it.
// A Session is reused across requests; SetTenantID is called once per
// incoming request by the orchestrator.
type Session struct {
	cfg    *config.Config
	client *mongo.Client
	db     *mongo.Database

	tenantID primitive.ObjectID
}

// New builds an unconnected Session.
func New(cfg *config.Config) *Session {
	return &Session{cfg: cfg}
}

// NewWithDatabase builds a Session already bound to the given client and
// database, bypassing Connect. Tools and tests wiring a Session against an
// already-dialed client (e.g. a test container) use this instead of
// Connect.
func NewWithDatabase(cfg *config.Config, client *mongo.Client, db *mongo.Database) *Session {
	return &Session{cfg: cfg, client: client, db: db}
}

// Connect dials MongoDB with the configured URI and read preference and
// verifies connectivity with a ping, matching the fail-fast behavior of
// the system this host replaces.
func (s *Session) Connect(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "session.connect")
	defer span.End()

	pref := readpref.Primary()
	if strings.EqualFold(s.cfg.ReadPreference, "secondaryPreferred") {
		pref = readpref.SecondaryPreferred()
	}

	opts := options.Client().
		ApplyURI(s.cfg.MongoURI).
		SetAppName("mcp-go-host").
		SetReadPreference(pref)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return fmt.Errorf("session: could not connect to mongodb: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, pref); err != nil {
		return fmt.Errorf("session: mongodb connection established but ping failed: %w", err)
	}

	s.client = client
	s.db = client.Database(s.cfg.DBName)
	return nil
}

// Close disconnects the Mongo client.
func (s *Session) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

// SetTenantID validates and binds the tenant identifier for subsequent
// tool calls on this session.
func (s *Session) SetTenantID(raw string) error {
	id, err := primitive.ObjectIDFromHex(raw)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidTenant, raw)
	}
	s.tenantID = id
	return nil
}

// TenantID returns the currently bound tenant, or the zero ObjectId if
// none has been set.
func (s *Session) TenantID() primitive.ObjectID { return s.tenantID }

// HasTenant reports whether a tenant has been bound.
func (s *Session) HasTenant() bool { return s.tenantID != primitive.NilObjectID }

// DB returns the session's default database, or the named one when
// dbName is non-empty.
func (s *Session) DB(dbName string) (*mongo.Database, error) {
	if s.client == nil {
		return nil, ErrNotConnected
	}
	if dbName == "" {
		return s.db, nil
	}
	return s.client.Database(dbName), nil
}

// DBName returns the default database's name.
func (s *Session) DBName() string { return s.cfg.DBName }

// Collection returns a handle scoped to the session's default database.
func (s *Session) Collection(name string) (*mongo.Collection, error) {
	db, err := s.DB("")
	if err != nil {
		return nil, err
	}
	return db.Collection(name), nil
}

// Config exposes the session's configuration to tools.
func (s *Session) Config() *config.Config { return s.cfg }

// Client exposes the underlying Mongo client, for components (enrichment,
// cross-database lookups) that must address databases other than the
// session's own.
func (s *Session) Client() *mongo.Client { return s.client }
