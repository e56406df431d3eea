package gologger

import (
	"strings"

	job "github.com/goliatone/go-job"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-wsrm/core"
)

const rootName = "wsrm"

// Resolve uses deterministic precedence provider > logger > nop.
func Resolve(name string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	return glog.Resolve(name, provider, logger)
}

// ComponentName namespaces a component logger under the wsrm root, e.g.
// "wsrm.session".
func ComponentName(component string) string {
	component = strings.Trim(strings.TrimSpace(component), ".")
	if component == "" {
		return rootName
	}
	if component == rootName || strings.HasPrefix(component, rootName+".") {
		return component
	}
	return rootName + "." + component
}

// ForComponent resolves the named component logger from the runtime
// dependencies.
func ForComponent(deps core.Dependencies, component string) core.Logger {
	name := ComponentName(component)
	provider, logger := Resolve(name, deps.LoggerProvider, deps.Logger)
	if provider != nil {
		if named := provider.GetLogger(name); named != nil {
			return glog.Ensure(named)
		}
	}
	return glog.Ensure(logger)
}

// WithSequence attaches the sequence identifier to loggers that support
// structured fields and returns other loggers unchanged.
func WithSequence(logger core.Logger, sequenceID string) core.Logger {
	logger = glog.Ensure(logger)
	sequenceID = strings.TrimSpace(sequenceID)
	if sequenceID == "" {
		return logger
	}
	if fields, ok := logger.(core.FieldsLogger); ok {
		return fields.WithFields(map[string]any{"sequence_id": sequenceID})
	}
	return logger
}

// ToJobProvider maps a glog provider to the go-job logger provider contract.
func ToJobProvider(provider glog.LoggerProvider) job.LoggerProvider {
	if provider == nil {
		return nil
	}
	return job.GoLoggerProvider(provider)
}

// ToJobLogger maps a glog logger to the go-job logger contract.
func ToJobLogger(logger glog.Logger) job.Logger {
	if logger == nil {
		return nil
	}
	return job.GoLogger(logger)
}

// ResolveForJob resolves the component logger and returns the go-job bridges
// for workers consuming deliver jobs.
func ResolveForJob(deps core.Dependencies, component string) (job.LoggerProvider, job.Logger) {
	name := ComponentName(component)
	provider, _ := Resolve(name, deps.LoggerProvider, deps.Logger)
	return ToJobProvider(provider), ToJobLogger(ForComponent(deps, component))
}
