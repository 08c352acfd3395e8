// note_tables.go - Note index and period conversion shared by the parsers
//
// Canonical note numbering is 1-96 (eight octaves), 97 = note-off. Amiga
// formats store pitch as a Paula period; PC/chip formats store note indices
// or hardware divisors. Any value outside a format's mapped domain is a
// positive detection of corruption and surfaces as a StructuralError at the
// call site, never a clamp.

package importer

import "math"

// protrackerPeriods is the finetune-0 ProTracker period table, three octaves
// C-1..B-3 in Amiga terms.
var protrackerPeriods = [36]int{
	856, 808, 762, 720, 678, 640, 604, 570, 538, 508, 480, 453,
	428, 404, 381, 360, 339, 320, 302, 285, 269, 254, 240, 226,
	214, 202, 190, 180, 170, 160, 151, 143, 135, 127, 120, 113,
}

// modBaseNote places ProTracker's lowest period (856) at canonical note 25,
// two octaves above the canonical floor, matching how the playback engine
// keys its frequency tables.
const modBaseNote = 25

// periodToNote maps an Amiga period onto the canonical note range. Period 0
// means "no note". Pattern data always carries an exact finetune-0 table
// period (finetuned tables apply at playback, never in the stored cells), so
// anything off the table is rejected: its presence means the buffer is not
// pattern data.
func periodToNote(period int) (byte, bool) {
	if period == 0 {
		return NoteEmpty, true
	}
	for i, p := range protrackerPeriods {
		if period == p {
			return byte(modBaseNote + i), true
		}
	}
	return 0, false
}

// halfStepNote maps a 0-based half-step-doubled note byte (NoiseRunner pattern
// encoding: note index pre-multiplied by 2 for the player's word-indexed
// period lookup) onto the canonical range.
func halfStepNote(raw byte) (byte, bool) {
	if raw == 0 {
		return NoteEmpty, true
	}
	if raw&1 != 0 || int(raw) > 2*len(protrackerPeriods) {
		return 0, false
	}
	return byte(modBaseNote - 1 + int(raw)/2), true
}

// a4Frequency and a4MIDINote anchor the frequency mapping used by the
// register-capture formats.
const (
	a4Frequency = 440.0
	a4MIDINote  = 69
)

// midiToCanonical shifts MIDI numbering onto the canonical 1-96 range
// (MIDI 12 = C-0 = canonical 1).
const midiToCanonical = 11

// noteFromFrequency converts a chip channel frequency to a canonical note,
// rounding to the nearest semitone. Frequencies that land outside the
// canonical range report false ("no note this frame").
func noteFromFrequency(freq float64) (byte, bool) {
	if freq <= 0 {
		return NoteEmpty, false
	}
	midi := int(math.Round(12*math.Log2(freq/a4Frequency))) + a4MIDINote
	note := midi - midiToCanonical
	if note < NoteFirst || note > NoteLast {
		return NoteEmpty, false
	}
	return byte(note), true
}
