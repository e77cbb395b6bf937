package sl

import "log/slog"

// Module tags log records with the emitting component.
func Module(name string) slog.Attr {
	return slog.String("module", name)
}

// Err wraps an error as a slog attribute.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "nil")
	}
	return slog.String("error", err.Error())
}

// Secret logs a sensitive value in truncated form.
func Secret(key, value string) slog.Attr {
	if len(value) > 8 {
		value = value[:4] + "..." + value[len(value)-2:]
	}
	return slog.String(key, value)
}
