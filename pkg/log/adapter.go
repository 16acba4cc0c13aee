package log

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// BadgerLogrusAdapter implements badger.Logger using logrus.
// Badger's info chatter (compactions, value log replay) is demoted to debug.
type BadgerLogrusAdapter struct {
	*logrus.Entry
}

// NewBadgerLogrusAdapter creates a new adapter
func NewBadgerLogrusAdapter(entry *logrus.Entry) *BadgerLogrusAdapter {
	return &BadgerLogrusAdapter{entry}
}

func (l *BadgerLogrusAdapter) Errorf(f string, v ...interface{})   { l.Entry.Errorf(f, v...) }
func (l *BadgerLogrusAdapter) Warningf(f string, v ...interface{}) { l.Entry.Warnf(f, v...) }
func (l *BadgerLogrusAdapter) Infof(f string, v ...interface{})    { l.Entry.Debugf(f, v...) }
func (l *BadgerLogrusAdapter) Debugf(f string, v ...interface{})   { l.Entry.Tracef(f, v...) }

// CronLogrusAdapter implements cron.Logger using logrus
type CronLogrusAdapter struct {
	entry *logrus.Entry
}

// NewCronLogrusAdapter creates a new adapter
func NewCronLogrusAdapter(entry *logrus.Entry) *CronLogrusAdapter {
	return &CronLogrusAdapter{entry: entry}
}

// Info logs routine scheduler activity at debug level
func (l *CronLogrusAdapter) Info(msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(toFields(keysAndValues)).Debug(msg)
}

// Error logs scheduler errors (e.g. a panicking job)
func (l *CronLogrusAdapter) Error(err error, msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(toFields(keysAndValues)).WithError(err).Error(msg)
}

// toFields converts alternating key/value pairs into logrus fields; a dangling key gets a nil value
func toFields(keysAndValues []interface{}) logrus.Fields {
	fields := make(logrus.Fields, len(keysAndValues)/2+1)
	for i := 0; i < len(keysAndValues); i += 2 {
		key := fmt.Sprint(keysAndValues[i])
		var val interface{}
		if i+1 < len(keysAndValues) {
			val = keysAndValues[i+1]
		}
		fields[key] = val
	}
	return fields
}
