package burrow

import "github.com/cockroachdb/errors"

// assertf panics with an assertion-failure error when cond is false. These
// guard states the cursor code is never supposed to reach (uncoupling a
// cursor positioned on an internal node, reading through a cursor that is
// not coupled); they are programming errors, not runtime statuses.
func assertf(cond bool, format string, args ...interface{}) {
	if !cond {
		panic(errors.AssertionFailedf(format, args...))
	}
}
