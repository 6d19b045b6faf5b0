package main

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/alessio/shellescape"
	"github.com/spf13/pflag"

	"github.com/picotests/connection-restore-tests/framework"
	"github.com/picotests/connection-restore-tests/suitedef"
)

type commandParams struct {
	configPath      string
	filters         framework.RegexFilters
	debug           bool
	debugAll        bool
	logLevel        string
	reportPath      string
	reportURL       string
	noColor         bool
	examplesDir     string
	port            int
	faultBackend    string
	sudo            bool
	reconnectCycles int
}

func (c *commandParams) addFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "YAML or JSON file overriding the default configuration")
	fs.Var(&c.filters.MustMatch, "run", "regex pattern(s) to select tests to run")
	fs.Var(&c.filters.MustNotMatch, "skip", "regex pattern(s) to select tests not to run")
	fs.BoolVar(&c.debug, "debug", false, "show the output of the programs under test for failed tests")
	fs.BoolVar(&c.debugAll, "debug-all", false, "show the output of the programs under test for all tests")
	fs.StringVar(&c.logLevel, "log-level", "info", "harness log level (debug, info, warn, error)")
	fs.StringVar(&c.reportPath, "report", "", "write a JSON summary of the run to this file")
	fs.StringVar(&c.reportURL, "report-url", "", "POST a JSON summary of the run to this URL")
	fs.BoolVar(&c.noColor, "no-color", false, "disable colored output")
	fs.StringVar(&c.examplesDir, "examples-dir", suitedef.DefaultExamplesDir, "directory containing the client example binaries")
	fs.IntVar(&c.port, "port", suitedef.DefaultPort, "router TCP port")
	fs.StringVar(&c.faultBackend, "fault-backend", suitedef.FaultBackendIptables, "how to block the network: iptables or none")
	fs.BoolVar(&c.sudo, "sudo", false, "run iptables through sudo")
	fs.IntVar(&c.reconnectCycles, "reconnect-cycles", 2, "block/unblock cycles per connection-drop test")
}

// config builds the run configuration: defaults, then the config file, then any flags
// the user set explicitly.
func (c *commandParams) config(routerPath string, changed func(name string) bool) (suitedef.Config, error) {
	cfg := suitedef.Default()
	if c.configPath != "" {
		loaded, err := suitedef.Load(c.configPath)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	cfg.RouterPath = routerPath
	if changed("examples-dir") {
		cfg.ExamplesDir = c.examplesDir
	}
	if changed("port") {
		cfg.Port = c.port
	}
	if changed("fault-backend") {
		cfg.FaultBackend = c.faultBackend
	}
	if changed("sudo") {
		cfg.Sudo = c.sudo
	}
	if changed("reconnect-cycles") {
		cfg.ReconnectCycles = c.reconnectCycles
	}
	return cfg, nil
}

// rerunCommand returns a shell command line that runs only the tests that failed.
func (c *commandParams) rerunCommand(program, routerPath string, results framework.Results) string {
	var b commandBuilder
	b.add(program)
	if c.configPath != "" {
		b.add("--config", c.configPath)
	}
	if c.examplesDir != suitedef.DefaultExamplesDir {
		b.add("--examples-dir", c.examplesDir)
	}
	if c.port != suitedef.DefaultPort {
		b.add("--port", strconv.Itoa(c.port))
	}
	for _, f := range results.Failures {
		b.add("--run", "^"+regexp.QuoteMeta(f.TestID.String())+"$")
	}
	b.add("--debug", routerPath)
	return b.String()
}

type commandBuilder []string

func (b *commandBuilder) add(args ...string) {
	for _, a := range args {
		*b = append(*b, shellescape.Quote(a))
	}
}

func (b commandBuilder) String() string {
	return strings.Join(b, " ")
}
