package restoretests

import (
	"github.com/picotests/connection-restore-tests/framework"
)

// RunTestSuite runs every scenario for the environment's configuration.
func RunTestSuite(
	env *Environment,
	filter framework.Filter,
	testLogger framework.TestLogger,
) framework.Results {
	return RunScenarios(env, Scenarios(env.config), filter, testLogger)
}

// RunScenarios runs scenarios one after another. A failing scenario does not stop the
// ones after it, but an interrupted run skips them.
func RunScenarios(
	env *Environment,
	scenarios []Scenario,
	filter framework.Filter,
	testLogger framework.TestLogger,
) framework.Results {
	return framework.Run(filter, testLogger, func(c *framework.Context) {
		for _, s := range scenarios {
			s := s
			c.Run(s.Name, func(c *framework.Context) {
				if env.ctx.Err() != nil {
					c.SkipWithReason("interrupted")
				}
				if s.NeedsNetworkFault && !env.canBlock {
					c.SkipWithReason("network fault injection is disabled")
				}
				t := newTestScope(c, env)
				t.Debug("%s", s.Description)
				t.RunPhases(s.Phases...)
			})
		}
	})
}
