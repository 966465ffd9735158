package core

// Logger is any service that can log messages.
// args are usually the original error, followed by any context values (map[string]interface{}, identities...).
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}
