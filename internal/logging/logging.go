// Package logging sets up the process-wide structured logger.
//
// This plays the role the teacher's log.go plays (package-level Log*
// helpers backed by a single mutex-guarded writer), but backs it with
// logrus so that handlers can attach structured fields (session id,
// remote address, channel) instead of hand-building strings, and so
// that the "level Warn" requirement on non-fatal errors is a first
// class concept rather than a naming convention.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Base is the process-wide logger. It is safe for concurrent use.
var Base = newBase()

func newBase() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// SetLevel parses a level name (e.g. "debug", "info", "warn") and
// applies it to Base. Unknown names are ignored and the previous
// level is kept.
func SetLevel(name string) {
	lvl, err := logrus.ParseLevel(name)
	if err != nil {
		return
	}
	Base.SetLevel(lvl)
}

// ForSession returns a logger entry pre-populated with the fields that
// identify a single connection, mirroring the teacher's
// LogRequest(id, ip, line) / LogDebugSession(id, ip, line) helpers.
func ForSession(id uint64, remoteAddr string) *logrus.Entry {
	return Base.WithFields(logrus.Fields{
		"session_id":  id,
		"remote_addr": remoteAddr,
	})
}
