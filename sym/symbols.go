// Package sym defines canonical symbols for pulse subsystems.
// These symbols are stable across log output, CLI help, and documentation.
package sym

// Command symbols for the CLI surfaces that have one.
const (
	AM = "≡" // am: configuration and system settings
	AT = "✦" // at: temporal marker, schedules and run times
)

// System infrastructure symbols.
const (
	Pulse      = "꩜" // scheduler ticks and job execution
	PulseOpen  = "✿" // daemon startup
	PulseClose = "❀" // daemon shutdown
	DB         = "⊔" // database/storage layer
)

// SymbolToCommand maps glyph strings to their text command equivalents.
var SymbolToCommand = map[string]string{
	AM: "am",
	AT: "at",
}

// CommandToSymbol maps text commands to their canonical glyph strings.
var CommandToSymbol = map[string]string{
	"am": AM,
	"at": AT,
}

// Descriptions explains each symbol for help output.
var Descriptions = map[string]string{
	AM:         "Configuration: system settings and state",
	AT:         "Temporal: schedules and run times",
	Pulse:      "Scheduler ticks and job execution",
	PulseOpen:  "Daemon startup",
	PulseClose: "Daemon shutdown",
	DB:         "Database/storage layer",
}

// All returns every symbol in display order.
func All() []string {
	return []string{AM, AT, Pulse, PulseOpen, PulseClose, DB}
}

// Prefix renders a glyph in front of a label, as used in CLI help text.
func Prefix(glyph, label string) string {
	return glyph + " " + label
}
