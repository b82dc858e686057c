package sessionkit

import (
	"errors"
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/nimbusmail/sessionkit/identity"
	"github.com/nimbusmail/sessionkit/keystore"
)

// Builder assembles a [Controller]. Construction is allocation-only; no I/O
// happens until the controller is used. A Builder is single-use.
type Builder struct {
	config        Config
	redis         *redis.Client
	kv            keystore.Store
	svc           identity.Service
	httpClient    *http.Client
	authenticator Authenticator
	auditSink     AuditSink

	built bool
}

// New returns a Builder with default configuration.
func New() *Builder {
	return &Builder{config: defaultConfig()}
}

// WithConfig replaces the configuration wholesale; it does not merge with
// the defaults. Start from [ConfigFromEnv] (unset variables fall back to
// defaults) and mutate that: a hand-built Config{} leaves boolean fields
// such as SignOut.RequireSecondFactor and
// Recovery.EnableLegacyCredentialReplay false, and Build cannot tell false
// from unset.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis sets the Redis client backing the durable keystore.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithKeystore sets a custom durable store, overriding WithRedis.
func (b *Builder) WithKeystore(kv keystore.Store) *Builder {
	b.kv = kv
	return b
}

// WithIdentityService sets the identity-service client. When unset, Build
// constructs an HTTP [identity.Client] from Config.API.
func (b *Builder) WithIdentityService(svc identity.Service) *Builder {
	b.svc = svc
	return b
}

// WithHTTPClient sets the http.Client used for a Build-constructed identity
// client.
func (b *Builder) WithHTTPClient(client *http.Client) *Builder {
	b.httpClient = client
	return b
}

// WithAuthenticator sets the platform WebAuthn capability. Platforms without
// one may leave it unset; the challenge flow then skips WebAuthn.
func (b *Builder) WithAuthenticator(a Authenticator) *Builder {
	b.authenticator = a
	return b
}

// WithAuditSink sets the audit event destination.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// Build validates the configuration and returns the process-wide Controller.
func (b *Builder) Build() (*Controller, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	kv := b.kv
	if kv == nil {
		if b.redis == nil {
			return nil, errors.New("builder: a keystore or redis client is required")
		}
		kv = keystore.NewRedisStore(b.redis, cfg.Storage.KeyPrefix)
	}

	svc := b.svc
	if svc == nil {
		if cfg.API.BaseURL == "" {
			return nil, errors.New("builder: an identity service or API base URL is required")
		}
		httpClient := b.httpClient
		if httpClient == nil {
			httpClient = &http.Client{Timeout: cfg.API.Timeout}
		}
		svc = identity.NewClient(cfg.API.BaseURL, httpClient, cfg.API.UserAgent)
	}

	authenticator := b.authenticator
	if authenticator == nil {
		authenticator = UnsupportedAuthenticator{}
	}

	c := &Controller{
		cfg:           cfg,
		svc:           svc,
		store:         NewAccountStore(kv),
		flags:         newRecoveryFlags(kv),
		validator:     NewTokenValidator(svc),
		authenticator: authenticator,
		audit:         newAuditDispatcher(cfg.Audit, b.auditSink),
		metrics:       newMetrics(cfg.Metrics),
		gate:          make(chan struct{}),
	}

	b.built = true
	return c, nil
}
