package mongodb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/medassist/api/internal/platform/config"
)

const defaultDatabase = "medassist"

// ErrProviderClosed indicates the provider was closed before or during use.
var ErrProviderClosed = errors.New("mongodb: provider is closed")

// Provider lazily initialises a shared Mongo client and database handle.
type Provider struct {
	cfg config.MongoConfig

	stateMu sync.Mutex
	client  *mongo.Client
	db      *mongo.Database

	closed atomic.Bool
}

// NewProvider constructs a Provider using the supplied configuration.
func NewProvider(cfg config.MongoConfig) *Provider {
	return &Provider{cfg: cfg}
}

// Database returns the shared database handle, connecting on first use.
func (p *Provider) Database(ctx context.Context) (*mongo.Database, error) {
	if p == nil {
		return nil, errors.New("mongodb: provider is nil")
	}
	if p.closed.Load() {
		return nil, ErrProviderClosed
	}

	p.stateMu.Lock()
	defer p.stateMu.Unlock()

	if p.db != nil {
		return p.db, nil
	}

	opts := options.Client().
		ApplyURI(p.cfg.URI).
		SetServerSelectionTimeout(p.cfg.SelectTimeout).
		SetSocketTimeout(p.cfg.SocketTimeout)

	connectCtx, cancel := context.WithTimeout(ctx, p.cfg.SelectTimeout+time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, opts)
	if err != nil {
		return nil, fmt.Errorf("mongodb: connect: %w", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongodb: ping: %w", err)
	}

	p.client = client
	p.db = client.Database(databaseName(p.cfg.URI))
	return p.db, nil
}

// Ping verifies connectivity for readiness checks.
func (p *Provider) Ping(ctx context.Context) error {
	db, err := p.Database(ctx)
	if err != nil {
		return err
	}
	return db.Client().Ping(ctx, readpref.Primary())
}

// Close releases the underlying client. Safe to call multiple times.
func (p *Provider) Close(ctx context.Context) error {
	if p == nil || !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	p.stateMu.Lock()
	client := p.client
	p.client = nil
	p.db = nil
	p.stateMu.Unlock()

	if client == nil {
		return nil
	}
	return client.Disconnect(ctx)
}

func databaseName(uri string) string {
	trimmed := strings.TrimSpace(uri)
	if idx := strings.Index(trimmed, "://"); idx >= 0 {
		trimmed = trimmed[idx+3:]
	}
	if idx := strings.Index(trimmed, "/"); idx >= 0 {
		trimmed = trimmed[idx+1:]
		if q := strings.Index(trimmed, "?"); q >= 0 {
			trimmed = trimmed[:q]
		}
		if trimmed != "" {
			return trimmed
		}
	}
	return defaultDatabase
}
