package sandbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/namespaces"
	"github.com/rs/zerolog/log"
)

const dialTimeout = 5 * time.Second

// Client is the containerd connection behind ContainerdBackend. It redials
// after a daemon restart and keeps the unpacked worker images.
type Client struct {
	socket    string
	namespace string

	mu     sync.Mutex
	inner  *containerd.Client
	closed bool

	pullMu sync.Mutex
	images map[string]containerd.Image
}

// NewClient connects to the containerd socket and checks the daemon answers.
func NewClient(ctx context.Context, socket, namespace string) (*Client, error) {
	c := &Client{
		socket:    socket,
		namespace: namespace,
		images:    make(map[string]containerd.Image),
	}
	inner, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	c.inner = inner

	log.Info().Str("socket", socket).Str("namespace", namespace).Msg("connected to containerd")
	return c, nil
}

func (c *Client) dial(ctx context.Context) (*containerd.Client, error) {
	inner, err := containerd.New(c.socket,
		containerd.WithDefaultNamespace(c.namespace),
		containerd.WithTimeout(dialTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to containerd at %s: %w", c.socket, err)
	}
	if _, err := inner.Version(ctx); err != nil {
		_ = inner.Close()
		return nil, fmt.Errorf("containerd not answering at %s: %w", c.socket, err)
	}
	return inner, nil
}

// conn returns a live connection, redialing once when the current one fails.
// Cached images belong to the old connection and are dropped on redial.
func (c *Client) conn(ctx context.Context) (*containerd.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, fmt.Errorf("%w: containerd client closed", ErrBackendUnavailable)
	}
	if _, err := c.inner.Version(ctx); err == nil {
		return c.inner, nil
	}

	log.Warn().Str("socket", c.socket).Msg("containerd connection lost, redialing")
	inner, err := c.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	_ = c.inner.Close()
	c.inner = inner

	c.pullMu.Lock()
	c.images = make(map[string]containerd.Image)
	c.pullMu.Unlock()
	return inner, nil
}

// withNamespace scopes ctx to the playground namespace.
func (c *Client) withNamespace(ctx context.Context) context.Context {
	return namespaces.WithNamespace(ctx, c.namespace)
}

// image returns ref unpacked and ready for snapshots. Pulls are serialized so
// concurrent first runs fetch an image once.
func (c *Client) image(ctx context.Context, ref string) (containerd.Image, error) {
	inner, err := c.conn(ctx)
	if err != nil {
		return nil, err
	}

	c.pullMu.Lock()
	defer c.pullMu.Unlock()
	if img, ok := c.images[ref]; ok {
		return img, nil
	}

	nsCtx := c.withNamespace(ctx)
	img, err := inner.GetImage(nsCtx, ref)
	if err != nil {
		log.Info().Str("ref", ref).Msg("pulling worker image")
		start := time.Now()
		img, err = inner.Pull(nsCtx, ref, containerd.WithPullUnpack)
		if err != nil {
			return nil, fmt.Errorf("%w: pulling image %s: %v", ErrBackendUnavailable, ref, err)
		}
		log.Info().Str("ref", ref).Dur("took", time.Since(start)).Msg("worker image ready")
	}
	c.images[ref] = img
	return img, nil
}

// Close releases the connection; later calls fail with ErrBackendUnavailable.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	return c.inner.Close()
}
