package logger

import (
	"github.com/teranos/pulse/sym"
	"go.uber.org/zap"
)

// Symbol-aware logging helpers.
// These wrap an instance logger with the symbol as a structured field, not in
// the message, which keeps logs queryable by symbol.
//
// Usage:
//
//	type Daemon struct {
//	    pulseLog *zap.SugaredLogger
//	}
//	d.pulseLog = logger.AddPulseSymbol(baseLogger)

// AddPulseSymbol wraps a logger with the Pulse symbol (꩜)
func AddPulseSymbol(l *zap.SugaredLogger) *zap.SugaredLogger {
	return l.With(FieldSymbol, sym.Pulse)
}

// AddPulseOpenSymbol wraps a logger with the PulseOpen symbol (✿)
func AddPulseOpenSymbol(l *zap.SugaredLogger) *zap.SugaredLogger {
	return l.With(FieldSymbol, sym.PulseOpen)
}

// AddPulseCloseSymbol wraps a logger with the PulseClose symbol (❀)
func AddPulseCloseSymbol(l *zap.SugaredLogger) *zap.SugaredLogger {
	return l.With(FieldSymbol, sym.PulseClose)
}
