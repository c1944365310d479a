package store

import (
	"strings"

	"github.com/canopy-network/aedpos/lib"
	"github.com/dgraph-io/badger/v4"
)

var _ badger.Logger = &badgerLogger{}

// badgerLogger routes the database's internal logging through the node logger
type badgerLogger struct {
	log lib.LoggerI
}

func newBadgerLogger(log lib.LoggerI) *badgerLogger {
	return &badgerLogger{log: log.WithModule("badger")}
}

func (b *badgerLogger) Errorf(format string, args ...interface{}) {
	b.log.Errorf(trim(format), args...)
}

func (b *badgerLogger) Warningf(format string, args ...interface{}) {
	b.log.Warnf(trim(format), args...)
}

// Infof() is demoted to debug, badger is chatty at info
func (b *badgerLogger) Infof(format string, args ...interface{}) {
	b.log.Debugf(trim(format), args...)
}

func (b *badgerLogger) Debugf(format string, args ...interface{}) {
	b.log.Debugf(trim(format), args...)
}

// trim() drops the trailing newline badger adds to its format strings
func trim(format string) string { return strings.TrimSuffix(format, "\n") }
