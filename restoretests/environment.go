package restoretests

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/picotests/connection-restore-tests/framework"
	"github.com/picotests/connection-restore-tests/framework/logbuf"
	"github.com/picotests/connection-restore-tests/framework/netfault"
	"github.com/picotests/connection-restore-tests/suitedef"
)

// Environment is everything the scenarios share for one harness run.
type Environment struct {
	ctx         context.Context
	config      suitedef.Config
	events      Events
	routerError logbuf.Matcher
	faults      *netfault.Injector
	canBlock    bool
	childEnv    []string
	logger      framework.Logger
}

type EnvironmentOptions struct {
	Logger framework.Logger
	// FaultBackend overrides the backend chosen by the configuration.
	FaultBackend netfault.Backend
	// LookupSanitizer finds the address sanitizer runtime when the configuration says
	// "auto". Defaults to asking gcc.
	LookupSanitizer func(ctx context.Context) string
}

// NewEnvironment prepares a run. Cancelling ctx interrupts the scenario in progress and
// skips the rest. It fails only if a configured marker is not a valid expression.
func NewEnvironment(ctx context.Context, cfg suitedef.Config, opts EnvironmentOptions) (*Environment, error) {
	logger := opts.Logger
	if logger == nil {
		logger = framework.NullLogger()
	}
	events, err := EventsFromMarkers(cfg.Markers)
	if err != nil {
		return nil, err
	}
	routerError, err := logbuf.Markers(cfg.Markers.RouterError...)
	if err != nil {
		return nil, fmt.Errorf("router error: %w", err)
	}
	e := &Environment{
		ctx:         ctx,
		config:      cfg,
		events:      events,
		routerError: routerError,
		logger:      logger,
	}

	backend := opts.FaultBackend
	e.canBlock = backend != nil || cfg.FaultBackend != suitedef.FaultBackendNone
	if backend == nil {
		switch cfg.FaultBackend {
		case suitedef.FaultBackendIptables:
			backend = netfault.Iptables{Path: cfg.IptablesPath, Sudo: cfg.Sudo}
		default:
			backend = netfault.None{}
		}
	}
	e.faults = netfault.NewInjector(backend, cfg.Port)

	e.childEnv = cfg.EnvList()
	lookup := opts.LookupSanitizer
	if lookup == nil {
		lookup = gccSanitizerRuntime
	}
	switch cfg.Sanitizer {
	case suitedef.SanitizerOff, "":
	case suitedef.SanitizerAuto:
		if lib := lookup(ctx); lib != "" {
			e.childEnv = append(e.childEnv, "LD_PRELOAD="+lib)
			logger.Printf("Preloading sanitizer runtime %s", lib)
		}
	default:
		e.childEnv = append(e.childEnv, "LD_PRELOAD="+cfg.Sanitizer)
	}
	return e, nil
}

func (e *Environment) Config() suitedef.Config { return e.config }

// Faults returns the injector shared by every scenario in the run.
func (e *Environment) Faults() *netfault.Injector { return e.faults }

// gccSanitizerRuntime asks gcc for the path of libasan. gcc echoes the bare name back
// when it has no such library.
func gccSanitizerRuntime(ctx context.Context) string {
	out, err := exec.CommandContext(ctx, "gcc", "-print-file-name=libasan.so").Output()
	if err != nil {
		return ""
	}
	path := strings.TrimSpace(string(out))
	if !strings.Contains(path, "/") {
		return ""
	}
	return path
}
