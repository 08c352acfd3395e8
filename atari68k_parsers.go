// atari68k_parsers.go - Atari ST 68k player-executable formats
//
// TCB Tracker, TME, Ben Daglish, Rob Hubbard ST, Jochen Hippel 7V, Nick
// Pelling Packer and Peter Verswyvelen Packer files are compiled 68k
// player+data executables. Detection validates machine-code structure (BRA
// jump tables with in-bounds, non-decreasing targets; MOVEM prologues; tag
// scans); a conventional filename prefix is only ever a fast-reject, never
// proof. The parsers emit metadata-only songs: playback is delegated to an
// external chip-accurate player, so one empty pattern and placeholder chip
// voices is the whole contract.

package importer

import (
	"bytes"
	"path/filepath"
	"strings"
)

const (
	m68kBRA   = 0x6000 // BRA.W opcode word
	m68kMOVEM = 0x48E7 // MOVEM.L regs,-(SP) prologue
)

// braTable reports whether the buffer opens with at least n consecutive
// BRA.W instructions whose targets are even, forward, in-bounds and
// non-decreasing. Player binaries expose their entry points this way.
func braTable(data []byte, n int) bool {
	if len(data) < n*4 {
		return false
	}
	prev := 0
	for i := 0; i < n; i++ {
		op, _ := peekBE16(data, i*4)
		if op != m68kBRA {
			return false
		}
		disp, _ := peekBE16(data, i*4+2)
		target := i*4 + 2 + int(int16(disp))
		if target <= 0 || target&1 != 0 || target >= len(data) || target < prev {
			return false
		}
		prev = target
	}
	return true
}

// hasMOVEMPrologue scans the first limit bytes for a MOVEM.L save at an
// even offset.
func hasMOVEMPrologue(data []byte, limit int) bool {
	if limit > len(data)-1 {
		limit = len(data) - 1
	}
	for i := 0; i < limit; i += 2 {
		if op, _ := peekBE16(data, i); op == m68kMOVEM {
			return true
		}
	}
	return false
}

// hasConventionalPrefix checks the filename base for a format's prefix,
// case-insensitively.
func hasConventionalPrefix(filename, prefix string) bool {
	base := filepath.Base(filename)
	return len(base) > len(prefix) && strings.EqualFold(base[:len(prefix)], prefix)
}

// metadataOnlySong is the shared emitter for the 68k executable family.
func metadataOnlySong(format FormatID, filename, prefix, chip string, voices int) *Song {
	names := make([]string, voices)
	for i := range names {
		names[i] = chip + " voice"
	}
	return assembleSong(Song{
		Name:         displayNameFromFilename(filename, prefix),
		Format:       format,
		Patterns:     []Pattern{newEmptyPattern(voices, 64)},
		Instruments:  chipVoiceInstruments(chip, names),
		OrderList:    []int{0},
		ChannelCount: voices,
		InitialSpeed: 6,
		InitialTempo: 125,
	})
}

// TCB Tracker is the one family member with real magic: modules start with
// "AN COOL." (or "AN COOL!" for the later player).

var tcbMagics = [][]byte{[]byte("AN COOL."), []byte("AN COOL!")}

func isTCB(data []byte, _ string) bool {
	if len(data) < 16 {
		return false
	}
	for _, magic := range tcbMagics {
		if bytes.HasPrefix(data, magic) {
			return true
		}
	}
	return false
}

func parseTCB(data []byte, filename string) (*Song, error) {
	if !isTCB(data, filename) {
		return nil, structErrf("TCB", 0, "magic", "not a TCB Tracker module")
	}
	return metadataOnlySong(FormatTCB, filename, "tcb.", "YM2149", 4), nil
}

func isTME(data []byte, filename string) bool {
	if !hasConventionalPrefix(filename, "tme.") {
		return false
	}
	return braTable(data, 2) && hasMOVEMPrologue(data, 512)
}

func parseTME(data []byte, filename string) (*Song, error) {
	if !isTME(data, filename) {
		return nil, structErrf("TME", 0, "structure", "not a TME module")
	}
	return metadataOnlySong(FormatTME, filename, "tme.", "YM2149", 4), nil
}

func isBenDaglish(data []byte, filename string) bool {
	if !hasConventionalPrefix(filename, "bd.") {
		return false
	}
	return braTable(data, 3)
}

func parseBenDaglish(data []byte, filename string) (*Song, error) {
	if !isBenDaglish(data, filename) {
		return nil, structErrf("BenDaglish", 0, "structure", "not a Ben Daglish module")
	}
	return metadataOnlySong(FormatBenDaglish, filename, "bd.", "YM2149", 3), nil
}

func isRobHubbardST(data []byte, filename string) bool {
	if !hasConventionalPrefix(filename, "rh.") {
		return false
	}
	return braTable(data, 2) && hasMOVEMPrologue(data, 512)
}

func parseRobHubbardST(data []byte, filename string) (*Song, error) {
	if !isRobHubbardST(data, filename) {
		return nil, structErrf("RobHubbardST", 0, "structure", "not a Rob Hubbard ST module")
	}
	return metadataOnlySong(FormatRobHubbardST, filename, "rh.", "YM2149", 3), nil
}

// Hippel 7V players embed a "TFMX" tag near the front of the binary.
const hippelTagWindow = 2048

func isHippel7V(data []byte, _ string) bool {
	window := data
	if len(window) > hippelTagWindow {
		window = window[:hippelTagWindow]
	}
	return bytes.Contains(window, []byte("TFMX"))
}

func parseHippel7V(data []byte, filename string) (*Song, error) {
	if !isHippel7V(data, filename) {
		return nil, structErrf("Hippel7V", 0, "tag", "no TFMX tag found")
	}
	return metadataOnlySong(FormatHippel7V, filename, "", "Hippel 7V", 7), nil
}

func isNPP(data []byte, filename string) bool {
	if !hasConventionalPrefix(filename, "npp.") {
		return false
	}
	return braTable(data, 2)
}

func parseNPP(data []byte, filename string) (*Song, error) {
	if !isNPP(data, filename) {
		return nil, structErrf("NPP", 0, "structure", "not a Nick Pelling Packer module")
	}
	return metadataOnlySong(FormatNPP, filename, "npp.", "YM2149", 3), nil
}

func isPVP(data []byte, filename string) bool {
	if !hasConventionalPrefix(filename, "pvp.") {
		return false
	}
	return braTable(data, 2)
}

func parsePVP(data []byte, filename string) (*Song, error) {
	if !isPVP(data, filename) {
		return nil, structErrf("PVP", 0, "structure", "not a Peter Verswyvelen Packer module")
	}
	return metadataOnlySong(FormatPVP, filename, "pvp.", "YM2149", 3), nil
}
