package logger

// Logger is the structured logger every component receives through its Params.
type Logger interface {
	DebugW(msg string, keysAndValues ...any)
	InfoW(msg string, keysAndValues ...any)
	WarnW(msg string, keysAndValues ...any)
	ErrorW(msg string, keysAndValues ...any)
	With(keysAndValues ...any) Logger
	Sync() error
}
