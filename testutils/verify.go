// Package testutils holds helpers shared by the tests of every package.
package testutils

import (
	"go.uber.org/goleak"
)

// VerifyTestMain runs the tests of a package and fails the run if goroutines are left behind.
func VerifyTestMain(m goleak.TestingM, options ...goleak.Option) {
	goleak.VerifyTestMain(m, append([]goleak.Option{
		// lumberjack starts its log file mill on first open and keeps it for the process lifetime
		goleak.IgnoreTopFunction("gopkg.in/natefinch/lumberjack%2ev2.(*Logger).millRun"),
	}, options...)...)
}
