// Package log provides the structured logger used throughout the loader.
package log

// Modular is a log printer that allows branching new modules with static
// fields attached, mirroring the fields carried by structured log lines.
type Modular interface {
	WithFields(fields map[string]string) Modular
	With(keyValues ...any) Modular

	Errorf(format string, v ...any)
	Warnf(format string, v ...any)
	Infof(format string, v ...any)
	Debugf(format string, v ...any)

	Errorln(message string)
	Warnln(message string)
	Infoln(message string)
	Debugln(message string)
}
