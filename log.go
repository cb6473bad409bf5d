package sharprudp

import "github.com/sirupsen/logrus"

// newLogger builds the *logrus.Entry every engine component logs through,
// matching the teacher pack's log.WithFields(log.Fields{...}) idiom rather
// than formatted strings.
func newLogger(level string) *logrus.Entry {
	l := logrus.New()
	if lvl, err := logrus.ParseLevel(level); err == nil {
		l.SetLevel(lvl)
	}
	return logrus.NewEntry(l)
}
