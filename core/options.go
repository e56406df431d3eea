package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
	"github.com/google/uuid"
)

type ErrorFactory func(message string, category ...goerrors.Category) *goerrors.Error

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type runtimeBuilder struct {
	runtimeConfig   Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorFactory    ErrorFactory
	errorMapper     ErrorMapper
	configProvider  ConfigProvider
	optionsResolver OptionsResolver
	faultSender     FaultSender
	dispatchHook    DispatchHook
	idGenerator     IDGenerator
}

type Option func(*runtimeBuilder)

func WithLogger(logger Logger) Option {
	return func(b *runtimeBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *runtimeBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *runtimeBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorFactory(factory ErrorFactory) Option {
	return func(b *runtimeBuilder) {
		b.errorFactory = factory
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *runtimeBuilder) {
		b.errorMapper = mapper
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *runtimeBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *runtimeBuilder) {
		b.optionsResolver = resolver
	}
}

func WithFaultSender(sender FaultSender) Option {
	return func(b *runtimeBuilder) {
		b.faultSender = sender
	}
}

func WithDispatchHook(hook DispatchHook) Option {
	return func(b *runtimeBuilder) {
		b.dispatchHook = hook
	}
}

func WithIDGenerator(generator IDGenerator) Option {
	return func(b *runtimeBuilder) {
		b.idGenerator = generator
	}
}

// Dependencies are the collaborators every session component shares.
type Dependencies struct {
	Logger          Logger
	LoggerProvider  LoggerProvider
	MetricsRecorder MetricsRecorder
	ErrorFactory    ErrorFactory
	ErrorMapper     ErrorMapper
	ConfigProvider  ConfigProvider
	OptionsResolver OptionsResolver
	FaultSender     FaultSender
	DispatchHook    DispatchHook
	IDGenerator     IDGenerator
}

type Runtime struct {
	Config       Config
	Dependencies Dependencies
}

// ResolveRuntime applies options, loads configuration through the config
// provider and layers defaults < loaded < runtime.
func ResolveRuntime(cfg Config, options ...Option) (Runtime, error) {
	builder := defaultRuntimeBuilder(cfg)
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = DefaultConfig().ServiceName
	}
	provider, logger := glog.Resolve(name, builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger(name); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.errorMapper == nil {
		builder.errorMapper = DefaultErrorMapper
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.faultSender == nil {
		builder.faultSender = NopFaultSender{}
	}
	if builder.dispatchHook == nil {
		builder.dispatchHook = NopDispatchHook{}
	}
	if builder.idGenerator == nil {
		builder.idGenerator = uuid.NewString
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return Runtime{}, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return Runtime{}, mapBuildError(builder.errorMapper, err)
	}

	return Runtime{
		Config: finalConfig,
		Dependencies: Dependencies{
			Logger:          logger,
			LoggerProvider:  provider,
			MetricsRecorder: builder.metricsRecorder,
			ErrorFactory:    builder.errorFactory,
			ErrorMapper:     builder.errorMapper,
			ConfigProvider:  builder.configProvider,
			OptionsResolver: builder.optionsResolver,
			FaultSender:     builder.faultSender,
			DispatchHook:    builder.dispatchHook,
			IDGenerator:     builder.idGenerator,
		},
	}, nil
}

func defaultRuntimeBuilder(runtime Config) runtimeBuilder {
	return runtimeBuilder{
		runtimeConfig:   runtime,
		metricsRecorder: NopMetricsRecorder{},
		errorFactory:    goerrors.New,
		errorMapper:     DefaultErrorMapper,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
	}
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

// StaticConfigLoader serves a fixed raw map, typically decoded from a file
// by the host application.
func StaticConfigLoader(values map[string]any) RawConfigLoader {
	return staticRawConfigLoader{Values: values}
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}
	if includeZero || strings.TrimSpace(cfg.ReliableMessagingVersion) != "" {
		layer["reliable_messaging_version"] = cfg.ReliableMessagingVersion
	}
	if includeZero || strings.TrimSpace(cfg.DeliveryMode) != "" {
		layer["delivery_mode"] = cfg.DeliveryMode
	}
	if includeZero || cfg.MaxTransferWindowSize > 0 {
		layer["max_transfer_window_size"] = cfg.MaxTransferWindowSize
	}
	if includeZero || cfg.MaxSequenceRanges > 0 {
		layer["max_sequence_ranges"] = cfg.MaxSequenceRanges
	}
	if includeZero || cfg.MaxPendingChannels > 0 {
		layer["max_pending_channels"] = cfg.MaxPendingChannels
	}
	if includeZero || cfg.DisableFlowControl {
		layer["disable_flow_control"] = cfg.DisableFlowControl
	}
	if includeZero || cfg.CloseTimeout > 0 {
		layer["close_timeout"] = cfg.CloseTimeout
	}
	return layer
}
