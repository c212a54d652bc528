package firestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/food-passport/api/internal/platform/config"
)

const (
	defaultDialTimeout = 10 * time.Second
	envEmulatorHost    = "FIRESTORE_EMULATOR_HOST"
	envGoogleProjectID = "GOOGLE_CLOUD_PROJECT"
)

// ErrProviderClosed is returned by Client after Close.
var ErrProviderClosed = errors.New("firestore: provider is closed")

// dial is one in-flight client creation shared by concurrent callers.
type dial struct {
	done   chan struct{}
	client *firestore.Client
	err    error
}

// Provider lazily creates one Firestore client and hands it to every repository.
type Provider struct {
	cfg         config.FirestoreConfig
	dialTimeout time.Duration
	clientOpts  []option.ClientOption

	mu      sync.Mutex
	client  *firestore.Client
	pending *dial
	closed  bool
}

// ProviderOption customises the Provider behaviour.
type ProviderOption func(*Provider)

// WithDialTimeout overrides the timeout used when creating the client.
func WithDialTimeout(timeout time.Duration) ProviderOption {
	return func(p *Provider) {
		if timeout > 0 {
			p.dialTimeout = timeout
		}
	}
}

// WithClientOptions appends client options applied during initialisation.
func WithClientOptions(opts ...option.ClientOption) ProviderOption {
	return func(p *Provider) {
		p.clientOpts = append(p.clientOpts, opts...)
	}
}

// NewProvider constructs a Provider. No connection is made until Client is called.
func NewProvider(cfg config.FirestoreConfig, opts ...ProviderOption) *Provider {
	p := &Provider{cfg: cfg, dialTimeout: defaultDialTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Client returns the shared client, creating it on first use. Concurrent first callers wait for
// the same dial. A failed dial is not cached.
func (p *Provider) Client(ctx context.Context) (*firestore.Client, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrProviderClosed
	}
	if p.client != nil {
		client := p.client
		p.mu.Unlock()
		return client, nil
	}
	if call := p.pending; call != nil {
		p.mu.Unlock()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-call.done:
			return call.client, call.err
		}
	}
	call := &dial{done: make(chan struct{})}
	p.pending = call
	p.mu.Unlock()

	call.client, call.err = p.createClient(ctx)

	p.mu.Lock()
	p.pending = nil
	if call.err == nil {
		if p.closed {
			_ = call.client.Close()
			call.client, call.err = nil, ErrProviderClosed
		} else {
			p.client = call.client
		}
	}
	p.mu.Unlock()
	close(call.done)

	return call.client, call.err
}

func (p *Provider) createClient(ctx context.Context) (*firestore.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, p.dialTimeout)
	defer cancel()

	projectID := strings.TrimSpace(p.cfg.ProjectID)
	if projectID == "" {
		projectID = strings.TrimSpace(os.Getenv(envGoogleProjectID))
	}
	if projectID == "" {
		return nil, errors.New("firestore: project id is required")
	}

	opts := append([]option.ClientOption(nil), p.clientOpts...)
	if host := p.emulatorHost(); host != "" {
		if os.Getenv(envEmulatorHost) == "" {
			_ = os.Setenv(envEmulatorHost, host)
		}
		opts = append(opts,
			option.WithoutAuthentication(),
			option.WithEndpoint(host),
			option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
	}

	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("firestore: create client: %w", err)
	}
	return client, nil
}

func (p *Provider) emulatorHost() string {
	if host := strings.TrimSpace(p.cfg.EmulatorHost); host != "" {
		return host
	}
	return strings.TrimSpace(os.Getenv(envEmulatorHost))
}

// Ping lists one collection to confirm the backend is reachable. Used by readiness checks.
func (p *Provider) Ping(ctx context.Context) error {
	client, err := p.Client(ctx)
	if err != nil {
		return err
	}
	iter := client.Collections(ctx)
	if _, err := iter.Next(); err != nil && !errors.Is(err, iterator.Done) {
		return WrapError("ping", err)
	}
	return nil
}

// RunTransaction executes fn inside a Firestore transaction using the provider's client. The
// configured attempt and timeout budget applies unless opts override it.
func (p *Provider) RunTransaction(ctx context.Context, fn TxFunc, opts ...TxOption) error {
	client, err := p.Client(ctx)
	if err != nil {
		return err
	}
	return RunTransaction(ctx, client, fn, p.txOptions(opts...)...)
}

func (p *Provider) txOptions(overrides ...TxOption) []TxOption {
	return append([]TxOption{
		WithTxAttempts(p.cfg.TxAttempts),
		WithTxTimeout(p.cfg.TxTimeout),
	}, overrides...)
}

// Close releases the client. The Provider cannot be reused afterwards.
func (p *Provider) Close(ctx context.Context) error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	client := p.client
	p.client = nil
	p.mu.Unlock()

	if client == nil {
		return nil
	}
	done := make(chan error, 1)
	go func() { done <- client.Close() }()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}
