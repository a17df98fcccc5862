package httpflv

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/livehub/rtmp"
	"github.com/livehub/rtmp/config"
	"github.com/livehub/rtmp/flv"
	"github.com/livehub/rtmp/rand"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// How often a running pull checks whether anybody still watches the stream.
const subscriberCheckInterval = time.Second

// Puller is the HTTP-FLV pull origin of a Group: it fetches a stream from an upstream URL and feeds the
// Group with its tags, reconnecting after failures, until the Group has no subscribers left.
type Puller struct {
	logger         *zap.Logger
	id             string
	url            string
	group          *rtmp.Group
	client         *http.Client
	reconnectDelay time.Duration
	checkInterval  time.Duration
}

func NewPuller(logger *zap.Logger, url string, group *rtmp.Group, client *http.Client, reconnectDelay time.Duration) *Puller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if client == nil {
		client = http.DefaultClient
	}
	if reconnectDelay <= 0 {
		reconnectDelay = config.DefaultReconnectDelay
	}
	return &Puller{
		logger:         logger.With(zap.String("stream", group.Key()), zap.String("url", url)),
		id:             rand.SessionID(),
		url:            url,
		group:          group,
		client:         client,
		reconnectDelay: reconnectDelay,
		checkInterval:  subscriberCheckInterval,
	}
}

func (p *Puller) ID() string {
	return p.id
}

// Run registers the puller as the Group's origin and pulls until ctx is done or the Group has no
// subscribers. It fails with rtmp.ErrOriginExists when the Group already has an origin.
func (p *Puller) Run(ctx context.Context) error {
	if err := p.group.SetHttpFlvPull(p); err != nil {
		return err
	}
	defer p.group.ResetHttpFlvPull(p)

	for {
		if !p.group.HasSubscribers() {
			p.logger.Info("[httpflv] no subscribers left, stopping pull")
			return nil
		}
		if err := p.pull(ctx); err != nil && ctx.Err() == nil {
			p.logger.Warn("[httpflv] pull failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(p.reconnectDelay):
		}
	}
}

// pull runs one upstream connection to its end.
func (p *Puller) pull(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return errors.Wrap(err, "create request")
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "request upstream")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("upstream answered %s", resp.Status)
	}

	p.group.OnHttpFlvPullConnected()
	p.logger.Info("[httpflv] pull connected")

	go func() {
		ticker := time.NewTicker(p.checkInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !p.group.HasSubscribers() {
					cancel()
					return
				}
			}
		}
	}()

	body := bufio.NewReaderSize(resp.Body, config.ReadBufferSize)
	reader, err := flv.NewReader(body)
	if err != nil {
		return err
	}
	if _, _, err := reader.ReadHeader(); err != nil {
		return errors.Wrap(err, "read upstream")
	}
	// tags that arrived together reach the Group as one batch
	var batch []flv.Tag
	for {
		tag, err := reader.ReadTag()
		if cause := errors.Cause(err); cause == io.EOF || cause == io.ErrUnexpectedEOF {
			p.logger.Info("[httpflv] upstream ended")
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "read upstream")
		}
		batch = append(batch, tag)
		if body.Buffered() == 0 {
			p.group.OnHttpFlvData(flv.Pack(batch...))
			batch = batch[:0]
		}
	}
}

// PullManager starts at most one Puller per stream, from a URL template with {app} and {name}
// placeholders. It implements rtmp.OriginStarter.
type PullManager struct {
	ctx            context.Context
	logger         *zap.Logger
	registry       *rtmp.GroupRegistry
	urlTemplate    string
	reconnectDelay time.Duration
	client         *http.Client

	mu     sync.Mutex
	active map[string]struct{}
	wg     sync.WaitGroup
}

// NewPullManager creates a PullManager whose pulls end when ctx is done.
func NewPullManager(ctx context.Context, logger *zap.Logger, registry *rtmp.GroupRegistry, cfg config.PullConfig, client *http.Client) *PullManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PullManager{
		ctx:            ctx,
		logger:         logger,
		registry:       registry,
		urlTemplate:    cfg.URLTemplate,
		reconnectDelay: cfg.ReconnectDelay,
		client:         client,
		active:         make(map[string]struct{}),
	}
}

// URL returns the upstream URL of the stream key "app/name".
func (m *PullManager) URL(key string) string {
	app, name := key, ""
	if i := strings.IndexByte(key, '/'); i >= 0 {
		app, name = key[:i], key[i+1:]
	}
	return strings.NewReplacer("{app}", app, "{name}", name).Replace(m.urlTemplate)
}

// EnsureOrigin starts pulling key unless pulling is disabled or a pull for it already runs. The pull
// holds its own registry reference on the Group.
func (m *PullManager) EnsureOrigin(key string, group *rtmp.Group) {
	if m.urlTemplate == "" {
		return
	}
	m.mu.Lock()
	if _, ok := m.active[key]; ok {
		m.mu.Unlock()
		return
	}
	m.active[key] = struct{}{}
	m.mu.Unlock()

	// Same Group as long as the caller holds its own reference.
	m.registry.Acquire(key)
	puller := NewPuller(m.logger, m.URL(key), group, m.client, m.reconnectDelay)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			m.mu.Lock()
			delete(m.active, key)
			m.mu.Unlock()
		}()
		defer m.registry.Release(key)
		if err := puller.Run(m.ctx); err != nil {
			m.logger.Info("[httpflv] pull not started", zap.String("stream", key), zap.Error(err))
		}
	}()
}

// Wait blocks until every pull has ended.
func (m *PullManager) Wait() {
	m.wg.Wait()
}
