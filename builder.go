package branchauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/MrEthical07/branchauth/authstate"
	"github.com/MrEthical07/branchauth/identity"
	"github.com/MrEthical07/branchauth/internal/audit"
	"github.com/MrEthical07/branchauth/jwt"
	"github.com/MrEthical07/branchauth/pin"
	"github.com/MrEthical07/branchauth/refcache"
	"github.com/MrEthical07/branchauth/request"
	"github.com/MrEthical07/branchauth/session"
	"github.com/MrEthical07/branchauth/store"
	"go.uber.org/zap"
)

// Builder assembles an [Engine]. A Builder can be used for one successful Build only.
type Builder struct {
	config Config

	backend store.Backend
	opener  store.Opener

	httpClient    *http.Client
	transport     request.Transport
	authenticator authstate.Authenticator
	navigator     authstate.Navigator

	logger    *zap.Logger
	auditSink AuditSink

	built bool
}

// New returns a Builder holding the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithBackend uses an already open backend instead of the one named in Config.Store.
func (b *Builder) WithBackend(backend store.Backend) *Builder {
	b.backend = backend
	return b
}

// WithOpener uses opener, called lazily on first store use, instead of Config.Store.
func (b *Builder) WithOpener(opener store.Opener) *Builder {
	b.opener = opener
	return b
}

// WithHTTPClient sets the client used by the default transport and authenticator. Timeouts
// come from this client only.
func (b *Builder) WithHTTPClient(client *http.Client) *Builder {
	b.httpClient = client
	return b
}

// WithTransport replaces the transport used for business requests.
func (b *Builder) WithTransport(t request.Transport) *Builder {
	b.transport = t
	return b
}

// WithAuthenticator replaces the remote login and liveness collaborator.
func (b *Builder) WithAuthenticator(a authstate.Authenticator) *Builder {
	b.authenticator = a
	return b
}

// WithNavigator sets the callback invoked after logout.
func (b *Builder) WithNavigator(n authstate.Navigator) *Builder {
	b.navigator = n
	return b
}

// WithLogger sets the logger. Nil means no logging.
func (b *Builder) WithLogger(log *zap.Logger) *Builder {
	b.logger = log
	return b
}

// WithAuditSink sets the audit sink. Audit must also be enabled in Config.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the request latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the pipeline. The store is not opened here; it
// opens on first use.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := b.logger
	if log == nil {
		log = zap.NewNop()
	}

	// -------- STORE --------
	var st *store.Store
	switch {
	case b.backend != nil:
		st = store.NewWithBackend(b.backend)
	case b.opener != nil:
		st = store.New(b.opener)
	default:
		st = store.New(openerFor(cfg.Store))
	}

	// -------- SESSION --------
	codec, err := jwt.NewCodec(jwt.Config{
		Secret: []byte(cfg.Session.Secret),
		Method: jwt.SigningMethod(strings.ToLower(cfg.Session.SigningMethod)),
		Issuer: cfg.Session.Issuer,
	})
	if err != nil {
		return nil, err
	}
	sessions, err := session.NewManager(session.Options{
		Store:  st,
		Codec:  codec,
		TTL:    cfg.Session.TTL,
		Logger: log,
	})
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:   cloneConfig(cfg),
		log:      log,
		store:    st,
		sessions: sessions,
		resolver: identity.NewResolver(sessions, log),
		metrics:  NewMetrics(cfg.Metrics),
	}

	// -------- REMOTE --------
	client := b.httpClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Remote.Timeout}
	}
	httpTransport := request.NewHTTPTransport(client, cfg.Remote.ClientName)

	transport := b.transport
	if transport == nil {
		transport = httpTransport
	}
	engine.composer, err = request.NewComposer(request.Options{
		Resolver:  engine.resolver,
		Transport: transport,
		BaseURL:   cfg.Remote.BaseURL,
		Logger:    log,
		Observe:   engine.observeRequest,
	})
	if err != nil {
		return nil, err
	}

	auth := b.authenticator
	if auth == nil {
		loginURL, err := url.JoinPath(cfg.Remote.BaseURL, cfg.Remote.LoginPath)
		if err != nil {
			return nil, fmt.Errorf("login url: %w", err)
		}
		checkURL, err := url.JoinPath(cfg.Remote.BaseURL, cfg.Remote.CheckPath)
		if err != nil {
			return nil, fmt.Errorf("check url: %w", err)
		}
		auth, err = request.NewHTTPAuthenticator(httpTransport, loginURL, checkURL, log)
		if err != nil {
			return nil, err
		}
	}

	// -------- AUTH STATE --------
	hasher, err := pin.NewHasher(cfg.PIN.hashConfig())
	if err != nil {
		return nil, err
	}
	engine.machine, err = authstate.New(authstate.Options{
		Sessions:      sessions,
		Authenticator: auth,
		PINs:          pin.NewStore(st, hasher),
		Attempts:      pin.NewLockout(st, cfg.PIN.lockoutConfig()),
		Navigator:     b.navigator,
		Logger:        log,
		OnTransition:  engine.onTransition,
	})
	if err != nil {
		return nil, err
	}

	// -------- REFERENCE DATA --------
	engine.refs, err = refcache.New(refcache.Options{
		Store:    st,
		Fetcher:  engine.composer,
		Endpoint: cfg.RefData.Endpoint,
		Kinds:    cfg.RefData.Kinds,
		TTL:      cfg.RefData.TTL,
		Logger:   log,
	})
	if err != nil {
		return nil, err
	}

	// -------- AUDIT --------
	// Started last: the dispatcher owns a goroutine that only Close stops.
	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)

	b.built = true

	return engine, nil
}

func openerFor(cfg StoreConfig) store.Opener {
	switch cfg.Backend {
	case BackendFile:
		return store.FileOpener(cfg.FilePath)
	case BackendRedis:
		return store.RedisOpener(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisPrefix)
	case BackendPostgres:
		return store.PostgresOpener(cfg.PostgresDSN, cfg.PostgresTable)
	default:
		return func(context.Context) (store.Backend, error) {
			return store.NewMemoryBackend(), nil
		}
	}
}
