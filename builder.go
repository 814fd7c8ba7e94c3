package authgate

import (
	"errors"

	internalaudit "github.com/tranvh/authgate/internal/audit"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Builder assembles an [Engine]. Configure it during initialization and
// treat the built Engine as immutable.
type Builder struct {
	config Config
	redis  *redis.Client

	provider  CredentialProvider
	notifier  Notifier
	auditSink AuditSink
	logger    *zap.Logger

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis supplies the client backing the token and pending-session
// stores.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithCredentialProvider supplies the external identity system.
func (b *Builder) WithCredentialProvider(p CredentialProvider) *Builder {
	b.provider = p
	return b
}

// WithNotifier supplies the token / security-alert delivery sink. Optional;
// without it tokens are persisted but never delivered, which is only useful
// in tests.
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithAuditSink supplies the audit trail consumer. Optional; audit entries
// are discarded without one.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger supplies the operational logger. Optional; defaults to a nop
// logger.
func (b *Builder) WithLogger(log *zap.Logger) *Builder {
	b.logger = log
	return b
}

func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.provider == nil {
		return nil, errors.New("credential provider required")
	}

	log := b.logger
	if log == nil {
		log = zap.NewNop()
	}

	tokens := newMFATokenStore(b.redis, cfg.MFA.RedisPrefix)

	engine := &Engine{
		config:   cfg,
		provider: b.provider,
		notifier: b.notifier,
		tokens:   tokens,
		pending:  newPendingStore(b.redis, cfg.Pending.RedisPrefix),
		mfa:      newMFAManager(cfg.MFA, tokens, b.notifier, log),
		metrics:  NewMetrics(cfg.Metrics),
		log:      log,
	}
	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)

	b.built = true

	return engine, nil
}
