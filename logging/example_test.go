package logging_test

import (
	"github.com/sirupsen/logrus"

	"github.com/grovetools/superstate/logging"
)

func ExampleNewLogger() {
	log := logging.NewLogger("engine")

	log.WithFields(logrus.Fields{
		"space": "/projects",
		"job":   "parse_context",
	}).Debug("Job done")

	// Configuration via superstate.yml:
	//
	// logging:
	//   level: debug
	//   report_caller: true
	//   file:
	//     enabled: true
	//     path: ~/.local/state/superstate/logs/daemon.log
	//   format:
	//     preset: json
}
