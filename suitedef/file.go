package suitedef

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk form of Config. Durations are strings such as "15s", and
// every field is optional: anything left out keeps its default.
type FileConfig struct {
	Router   RouterFileConfig   `yaml:"router" json:"router"`
	Examples ExamplesFileConfig `yaml:"examples" json:"examples"`
	Port     int                `yaml:"port" json:"port"`
	Launch   LaunchFileConfig   `yaml:"launch" json:"launch"`
	Fault    FaultFileConfig    `yaml:"fault" json:"fault"`
	Timing   TimingFileConfig   `yaml:"timing" json:"timing"`
	Outages  []string           `yaml:"outages" json:"outages"`
	// ReconnectCycles is how many block/unblock cycles a connection-drop scenario runs.
	ReconnectCycles int               `yaml:"reconnect_cycles" json:"reconnect_cycles"`
	Markers         MarkersFileConfig `yaml:"markers" json:"markers"`
}

// RouterFileConfig holds only the router's arguments. The router binary itself is always
// named on the command line.
type RouterFileConfig struct {
	Args []string `yaml:"args" json:"args"`
}

type ExamplesFileConfig struct {
	Dir                  string `yaml:"dir" json:"dir"`
	Publisher            string `yaml:"publisher" json:"publisher"`
	Subscriber           string `yaml:"subscriber" json:"subscriber"`
	LivelinessToken      string `yaml:"liveliness_token" json:"liveliness_token"`
	LivelinessSubscriber string `yaml:"liveliness_subscriber" json:"liveliness_subscriber"`
}

type LaunchFileConfig struct {
	Unbuffered *bool             `yaml:"unbuffered" json:"unbuffered"`
	Sanitizer  string            `yaml:"sanitizer" json:"sanitizer"`
	Env        map[string]string `yaml:"env" json:"env"`
}

type FaultFileConfig struct {
	Backend  string `yaml:"backend" json:"backend"`
	Iptables string `yaml:"iptables" json:"iptables"`
	Sudo     bool   `yaml:"sudo" json:"sudo"`
}

type TimingFileConfig struct {
	RouterSettle     string `yaml:"router_settle" json:"router_settle"`
	EventTimeout     string `yaml:"event_timeout" json:"event_timeout"`
	TerminateGrace   string `yaml:"terminate_grace" json:"terminate_grace"`
	LivelinessOutage string `yaml:"liveliness_outage" json:"liveliness_outage"`
}

type MarkersFileConfig struct {
	Connect             []string `yaml:"connect" json:"connect"`
	Disconnect          []string `yaml:"disconnect" json:"disconnect"`
	TokenAlive          []string `yaml:"token_alive" json:"token_alive"`
	TokenDropped        []string `yaml:"token_dropped" json:"token_dropped"`
	WriteFilterActive   []string `yaml:"write_filter_active" json:"write_filter_active"`
	WriteFilterInactive []string `yaml:"write_filter_inactive" json:"write_filter_inactive"`
	Sample              []string `yaml:"sample" json:"sample"`
	RouterError         []string `yaml:"router_error" json:"router_error"`
}

// LoadFile reads a YAML or JSON config file, chosen by extension.
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var fc FileConfig
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("failed to parse JSON: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	return &fc, nil
}

// Load returns Default overlaid with the file at path.
func Load(path string) (Config, error) {
	fc, err := LoadFile(path)
	if err != nil {
		return Config{}, err
	}
	return fc.Apply(Default())
}

// Apply overlays every field set in f onto base.
func (f *FileConfig) Apply(base Config) (Config, error) {
	c := base
	if len(f.Router.Args) != 0 {
		c.RouterArgs = f.Router.Args
	}
	setString(&c.ExamplesDir, f.Examples.Dir)
	setString(&c.Binaries.Publisher, f.Examples.Publisher)
	setString(&c.Binaries.Subscriber, f.Examples.Subscriber)
	setString(&c.Binaries.LivelinessToken, f.Examples.LivelinessToken)
	setString(&c.Binaries.LivelinessSubscriber, f.Examples.LivelinessSubscriber)
	if f.Port != 0 {
		c.Port = f.Port
	}

	if f.Launch.Unbuffered != nil {
		c.Unbuffered = *f.Launch.Unbuffered
	}
	setString(&c.Sanitizer, f.Launch.Sanitizer)
	if len(f.Launch.Env) != 0 {
		env := make(map[string]string, len(c.Env)+len(f.Launch.Env))
		for k, v := range c.Env {
			env[k] = v
		}
		for k, v := range f.Launch.Env {
			env[k] = v
		}
		c.Env = env
	}

	setString(&c.FaultBackend, f.Fault.Backend)
	setString(&c.IptablesPath, f.Fault.Iptables)
	if f.Fault.Sudo {
		c.Sudo = true
	}

	for _, d := range []struct {
		name   string
		value  string
		target *time.Duration
	}{
		{"timing.router_settle", f.Timing.RouterSettle, &c.Timing.RouterSettle},
		{"timing.event_timeout", f.Timing.EventTimeout, &c.Timing.EventTimeout},
		{"timing.terminate_grace", f.Timing.TerminateGrace, &c.Timing.TerminateGrace},
		{"timing.liveliness_outage", f.Timing.LivelinessOutage, &c.Timing.LivelinessOutage},
	} {
		if d.value == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return c, fmt.Errorf("invalid %s: %w", d.name, err)
		}
		*d.target = parsed
	}
	if len(f.Outages) != 0 {
		c.Outages = nil
		for _, s := range f.Outages {
			parsed, err := time.ParseDuration(s)
			if err != nil {
				return c, fmt.Errorf("invalid outage: %w", err)
			}
			c.Outages = append(c.Outages, parsed)
		}
	}
	if f.ReconnectCycles > 0 {
		c.ReconnectCycles = f.ReconnectCycles
	}

	setStrings(&c.Markers.Connect, f.Markers.Connect)
	setStrings(&c.Markers.Disconnect, f.Markers.Disconnect)
	setStrings(&c.Markers.TokenAlive, f.Markers.TokenAlive)
	setStrings(&c.Markers.TokenDropped, f.Markers.TokenDropped)
	setStrings(&c.Markers.WriteFilterActive, f.Markers.WriteFilterActive)
	setStrings(&c.Markers.WriteFilterInactive, f.Markers.WriteFilterInactive)
	setStrings(&c.Markers.Sample, f.Markers.Sample)
	setStrings(&c.Markers.RouterError, f.Markers.RouterError)
	return c, nil
}

func setString(target *string, value string) {
	if value != "" {
		*target = value
	}
}

func setStrings(target *[]string, value []string) {
	if len(value) != 0 {
		*target = value
	}
}
