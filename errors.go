// errors.go - Typed errors for the import/decoding layer

package importer

import "fmt"

// StructuralError reports a fatal parser-internal invariant failure: a bad
// index, an impossible table value, a truncated required section. It carries
// enough context to diagnose a misdetected file.
type StructuralError struct {
	Format string // Format name ("MOD", "FAR", ...)
	Offset int    // Byte offset where the violation was found
	Field  string // Field being decoded
	Reason string
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("%s: %s at offset %d: %s", e.Format, e.Field, e.Offset, e.Reason)
}

// structErrf builds a StructuralError with a formatted reason.
func structErrf(format string, offset int, field, reason string, args ...any) *StructuralError {
	return &StructuralError{
		Format: format,
		Offset: offset,
		Field:  field,
		Reason: fmt.Sprintf(reason, args...),
	}
}

// emulationFault marks a CPU interpreter failure (illegal opcode, cycle
// budget overrun, missing entry point). Parsers absorb it and degrade to a
// placeholder pattern; it never surfaces to the caller.
type emulationFault struct {
	PC     uint16
	Opcode byte
	Reason string
}

func (e *emulationFault) Error() string {
	return fmt.Sprintf("6502 fault at $%04X (opcode $%02X): %s", e.PC, e.Opcode, e.Reason)
}
