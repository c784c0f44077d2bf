// Package monitoring holds the diagnostic logger shared by the acquisition
// and estimation packages.
package monitoring

import "log"

// Logf receives every diagnostic line written by the internal packages.
// It is log.Printf until SetLogger installs something else.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger installs f as Logf. A nil f discards all output.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		f = func(string, ...interface{}) {}
	}
	Logf = f
}

// Warnf logs a recoverable condition, such as a run that ended without
// enough peaks to estimate anything. Muting Logf mutes warnings too.
func Warnf(format string, v ...interface{}) {
	Logf("[warn] "+format, v...)
}
