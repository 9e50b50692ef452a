package authemu

import (
	"errors"
	"time"

	"github.com/MrEthical07/authemu/internal/ident"
	"github.com/MrEthical07/authemu/internal/validate"
	"github.com/MrEthical07/authemu/notify"
	"github.com/MrEthical07/authemu/state"
	"go.uber.org/zap"
)

// Builder assembles an Engine. A Builder can be used for a single Build.
type Builder struct {
	config   Config
	logger   *zap.Logger
	notifier notify.Notifier
	ids      state.IDGenerator
	emails   EmailValidator
	phones   PhoneValidator
	clock    func() time.Time
	sink     EventSink

	built bool
}

// New returns a Builder seeded with DefaultConfig.
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

// WithLogger sets the diagnostic logger. The default discards everything.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithNotifier sets where OOB links and SMS codes are delivered. The
// default logs them through the engine logger.
func (b *Builder) WithNotifier(n notify.Notifier) *Builder {
	b.notifier = n
	return b
}

// WithIDGenerator replaces the random id source, mainly for tests.
func (b *Builder) WithIDGenerator(ids state.IDGenerator) *Builder {
	b.ids = ids
	return b
}

// WithEmailValidator replaces the email validator and canonicalizer.
func (b *Builder) WithEmailValidator(v EmailValidator) *Builder {
	b.emails = v
	return b
}

// WithPhoneValidator replaces the phone number validator.
func (b *Builder) WithPhoneValidator(v PhoneValidator) *Builder {
	b.phones = v
	return b
}

// WithClock replaces time.Now.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

// WithEventSink enables operation events and sends them to sink.
func (b *Builder) WithEventSink(sink EventSink) *Builder {
	b.sink = sink
	b.config.Events.Enabled = sink != nil
	return b
}

// WithMetricsEnabled turns operation counters on or off.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms records dispatch latency buckets.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns a ready Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if cfg.UsageMode == "" {
		cfg.UsageMode = state.UsageModeDefault
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	notifier := b.notifier
	if notifier == nil {
		notifier = notify.NewLogNotifier(logger)
	}
	ids := b.ids
	if ids == nil {
		ids = ident.Random{}
	}
	emails := b.emails
	if emails == nil {
		emails = validate.NewEmail()
	}
	phones := b.phones
	if phones == nil {
		phones = validate.Phone{}
	}
	clock := b.clock
	if clock == nil {
		clock = time.Now
	}

	metrics := NewMetrics(cfg.Metrics)
	e := &Engine{
		config:   cfg,
		logger:   logger,
		notifier: notifier,
		ids:      ids,
		emails:   emails,
		phones:   phones,
		now:      clock,
		metrics:  metrics,
		events:   newEventQueue(cfg.Events, b.sink, metrics, logger),
		projects: make(map[string]*state.AgentProjectState),
	}
	e.ops = registerOperations()

	b.built = true
	return e, nil
}
