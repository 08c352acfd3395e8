// capture.go - Frame-driven note extraction for code-as-data formats
//
// NSF and SAP parsers load the player into an emulated 64 KiB image, call
// its init routine once, then call the play routine once per synthesized
// video frame while a shadow register file mirrors every write into the
// sound chip's address window. After each frame the chip-specific snapshot
// closure reads the shadow registers back as per-voice pitch/volume state;
// the collected frames collapse into one pattern.

package importer

const (
	// captureFrames bounds the whole extraction run (~15 s at 60 Hz).
	captureFrames = 900
	// captureMaxRows caps the emitted pattern length.
	captureMaxRows = 256
	// initCycleBudget bounds the one-shot init call, which may unpack data.
	initCycleBudget = 2_000_000
)

// voiceState is one channel's audible pitch after a play call. note is a
// canonical note or NoteEmpty when the voice is silent or out of range.
type voiceState struct {
	note byte
}

// shadowRegs mirrors writes into a chip's register address window. It is
// embedded in the per-format memory maps.
type shadowRegs struct {
	base uint16
	regs []byte
}

func newShadowRegs(base uint16, count int) shadowRegs {
	return shadowRegs{base: base, regs: make([]byte, count)}
}

// catchWrite records a write when addr falls inside the window.
func (s *shadowRegs) catchWrite(addr uint16, value byte) bool {
	if addr < s.base || int(addr-s.base) >= len(s.regs) {
		return false
	}
	s.regs[addr-s.base] = value
	return true
}

func (s *shadowRegs) reg(i int) byte {
	return s.regs[i]
}

// runCapture drives the play routine for up to captureFrames frames, each
// bounded by cyclesPerFrame, snapshotting voice states after every call.
// A fault mid-run keeps the frames captured so far: partial extraction is
// still a song.
func runCapture(cpu *CPU6502, playAddr uint16, cyclesPerFrame uint64, snapshot func() []voiceState) [][]voiceState {
	frames := make([][]voiceState, 0, captureFrames)
	for frame := 0; frame < captureFrames; frame++ {
		if err := cpu.Call(playAddr, 0, 0, cyclesPerFrame); err != nil {
			break
		}
		frames = append(frames, snapshot())
	}
	return frames
}

// framesToPattern collapses per-frame snapshots into a pattern of at most
// captureMaxRows rows. A cell is emitted only when a voice's pitch changes
// from the previous retained row; an audible-to-silent transition emits the
// note-off sentinel exactly once (edge-triggered). Instrument indices are
// 1-based voice numbers.
func framesToPattern(frames [][]voiceState, channels int) Pattern {
	rows := len(frames)
	step := 1
	if rows > captureMaxRows {
		step = (rows + captureMaxRows - 1) / captureMaxRows
		rows = (len(frames) + step - 1) / step
	}
	if rows == 0 {
		return newEmptyPattern(channels, captureMaxRows)
	}
	p := newEmptyPattern(channels, rows)
	prev := make([]byte, channels)
	for row := 0; row < rows; row++ {
		frame := frames[row*step]
		for ch := 0; ch < channels; ch++ {
			cur := byte(NoteEmpty)
			if ch < len(frame) {
				cur = frame[ch].note
			}
			switch {
			case cur != NoteEmpty && cur != prev[ch]:
				p.Tracks[ch].Cells[row] = Cell{Note: cur, Instrument: byte(ch + 1)}
				prev[ch] = cur
			case cur == NoteEmpty && prev[ch] != NoteEmpty:
				p.Tracks[ch].Cells[row] = Cell{Note: NoteOff}
				prev[ch] = NoteEmpty
			}
		}
	}
	return p
}

// chipVoiceInstruments builds the 1-based placeholder instrument list for a
// capture-based song: one chip voice per channel.
func chipVoiceInstruments(chip string, names []string) []Instrument {
	out := make([]Instrument, len(names))
	for i, name := range names {
		out[i] = Instrument{
			ID:   i + 1,
			Name: name,
			Kind: InstrumentChipVoice,
			Chip: chip,
		}
	}
	return out
}
