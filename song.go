// song.go - Canonical song model shared by every format parser
//
// All parsers decode into these types exactly once per call; nothing here is
// mutated after assembleSong returns. The playback engine consuming a Song
// lives outside this layer.

package importer

import "fmt"

// FormatID tags the originating format of a parsed Song. The set is closed;
// the registry in registry.go holds one handler per value.
type FormatID int

const (
	FormatUnknown FormatID = iota
	FormatMOD
	FormatNoiseRunner
	FormatFAR
	FormatTCB
	FormatTME
	FormatBenDaglish
	FormatRobHubbardST
	FormatHippel7V
	FormatNPP
	FormatPVP
	FormatNSF
	FormatSAP
)

var formatNames = map[FormatID]string{
	FormatUnknown:      "Unknown",
	FormatMOD:          "ProTracker MOD",
	FormatNoiseRunner:  "NoiseRunner",
	FormatFAR:          "Farandole Composer",
	FormatTCB:          "TCB Tracker",
	FormatTME:          "TME",
	FormatBenDaglish:   "Ben Daglish ST",
	FormatRobHubbardST: "Rob Hubbard ST",
	FormatHippel7V:     "Jochen Hippel 7V",
	FormatNPP:          "Nick Pelling Packer",
	FormatPVP:          "Peter Verswyvelen Packer",
	FormatNSF:          "NSF",
	FormatSAP:          "SAP",
}

func (f FormatID) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return fmt.Sprintf("FormatID(%d)", int(f))
}

// Canonical note numbering: 0 = empty cell, 1-96 = pitched notes (eight
// octaves of twelve), 97 = note-off sentinel.
const (
	NoteEmpty = 0
	NoteFirst = 1
	NoteLast  = 96
	NoteOff   = 97
)

// Cell is one channel's data for one row. Cells are value records; parsers
// build them once and never touch them again.
type Cell struct {
	Note         byte // 0 empty, 1-96 pitched, 97 note-off
	Instrument   byte // 0 none, else 1-based
	Volume       byte // 0 unset, else packed volume-column code
	Effect       byte
	EffectParam  byte
	Effect2      byte // Optional secondary effect slot
	Effect2Param byte
}

// Volume column codes. 0x10+v sets volume v (0-64), matching the packed
// scheme the downstream engine expects.
const (
	volColSetBase = 0x10
	volColSetMax  = 0x50
)

// Track is one channel's cells for one pattern.
type Track struct {
	Cells []Cell
}

// Pattern holds one Track per channel; all tracks have equal length.
type Pattern struct {
	Tracks []Track
}

// RowCount returns the number of rows in the pattern.
func (p *Pattern) RowCount() int {
	if len(p.Tracks) == 0 {
		return 0
	}
	return len(p.Tracks[0].Cells)
}

// newEmptyPattern builds a pattern of empty cells.
func newEmptyPattern(channels, rows int) Pattern {
	p := Pattern{Tracks: make([]Track, channels)}
	for i := range p.Tracks {
		p.Tracks[i].Cells = make([]Cell, rows)
	}
	return p
}

// InstrumentKind distinguishes PCM sampler instruments from synthesized
// chip voices (NSF/SAP channels, 68k player placeholders).
type InstrumentKind int

const (
	InstrumentSampler InstrumentKind = iota
	InstrumentChipVoice
)

// Sample is the canonical PCM payload: signed 8-bit data, byte-addressed
// loop points. The loop is inactive when LoopEnd <= LoopStart.
type Sample struct {
	Data      []int8
	Rate      int
	LoopStart int
	LoopEnd   int
	Volume    int  // 0-64
	Finetune  int8 // Semitone-cent offset, signed
}

// LoopEnabled reports whether the loop range is active.
func (s *Sample) LoopEnabled() bool {
	return s.LoopEnd > s.LoopStart
}

// Instrument is either a sampler with a PCM payload or a chip voice with a
// descriptor string (chip + channel role).
type Instrument struct {
	ID     int
	Name   string
	Kind   InstrumentKind
	Chip   string // Chip/voice descriptor for InstrumentChipVoice
	Sample Sample // Payload for InstrumentSampler
}

// Song is the canonical in-memory representation handed to the playback
// engine. Invariants: every OrderList entry indexes Patterns; ChannelCount
// equals the track count of every pattern.
type Song struct {
	Name         string
	Format       FormatID
	Patterns     []Pattern
	Instruments  []Instrument
	OrderList    []int
	RestartPos   int
	ChannelCount int
	InitialSpeed int // Ticks per row
	InitialTempo int // BPM
	LinearPitch  bool
}

// assembleSong aggregates parsed pieces into a Song and asserts the
// cross-referential invariants. A violation here is a bug in the calling
// parser, not an input condition: parsers validate every index against the
// format's documented ranges before assembly, so this fails loudly rather
// than clamping.
func assembleSong(s Song) *Song {
	if s.ChannelCount <= 0 {
		panic(fmt.Sprintf("assembleSong: %s song with channel count %d", s.Format, s.ChannelCount))
	}
	for i, p := range s.Patterns {
		if len(p.Tracks) != s.ChannelCount {
			panic(fmt.Sprintf("assembleSong: %s pattern %d has %d tracks, song has %d channels",
				s.Format, i, len(p.Tracks), s.ChannelCount))
		}
		rows := p.RowCount()
		for c, tr := range p.Tracks {
			if len(tr.Cells) != rows {
				panic(fmt.Sprintf("assembleSong: %s pattern %d track %d has %d rows, track 0 has %d",
					s.Format, i, c, len(tr.Cells), rows))
			}
		}
	}
	for i, ord := range s.OrderList {
		if ord < 0 || ord >= len(s.Patterns) {
			panic(fmt.Sprintf("assembleSong: %s order entry %d references pattern %d of %d",
				s.Format, i, ord, len(s.Patterns)))
		}
	}
	if s.RestartPos < 0 || (len(s.OrderList) > 0 && s.RestartPos >= len(s.OrderList)) {
		s.RestartPos = 0
	}
	if s.InitialSpeed <= 0 {
		s.InitialSpeed = 6
	}
	if s.InitialTempo <= 0 {
		s.InitialTempo = 125
	}
	out := s
	return &out
}

// silentSample downgrades a truncated instrument payload to silence while
// keeping the header metadata.
func silentSample(volume int, finetune int8) Sample {
	return Sample{Volume: volume, Finetune: finetune}
}
