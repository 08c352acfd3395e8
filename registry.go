// registry.go - format detection and dispatch
//
// Every supported format registers a detector and a parser. Detection runs
// in registration order, so formats that share magic bytes with a more
// generic sibling (NoiseRunner inside ProTracker's "M.K." space) must be
// registered first.

package importer

import (
	"path/filepath"
	"strings"
)

type formatHandler struct {
	ID     FormatID
	Name   string
	Detect func(data []byte, filename string) bool
	Parse  func(data []byte, filename string) (*Song, error)
}

var formatHandlers = []formatHandler{
	{FormatNoiseRunner, "NoiseRunner", func(d []byte, _ string) bool { return isNoiseRunner(d) }, parseNoiseRunner},
	{FormatMOD, "ProTracker", func(d []byte, _ string) bool { return isMOD(d) }, parseMOD},
	{FormatFAR, "Farandole Composer", func(d []byte, _ string) bool { return isFAR(d) }, parseFAR},
	{FormatNSF, "NES Sound Format", func(d []byte, _ string) bool { return isNSF(d) }, parseNSF},
	{FormatSAP, "Slight Atari Player", func(d []byte, _ string) bool { return isSAP(d) }, parseSAP},
	{FormatTCB, "TCB Tracker", isTCB, parseTCB},
	{FormatTME, "TME", isTME, parseTME},
	{FormatBenDaglish, "Ben Daglish", isBenDaglish, parseBenDaglish},
	{FormatRobHubbardST, "Rob Hubbard ST", isRobHubbardST, parseRobHubbardST},
	{FormatHippel7V, "Hippel 7V", isHippel7V, parseHippel7V},
	{FormatNPP, "NPP", isNPP, parseNPP},
	{FormatPVP, "PVP", isPVP, parsePVP},
}

// DetectFormat reports the first format whose detector accepts the buffer.
func DetectFormat(data []byte, filename string) (FormatID, bool) {
	if len(data) == 0 {
		return FormatUnknown, false
	}
	for _, h := range formatHandlers {
		if h.Detect(data, filename) {
			return h.ID, true
		}
	}
	return FormatUnknown, false
}

// ParseSong detects and parses in one step.
func ParseSong(data []byte, filename string) (*Song, error) {
	if len(data) == 0 {
		return nil, structErrf("importer", 0, "buffer", "empty file")
	}
	for _, h := range formatHandlers {
		if h.Detect(data, filename) {
			return h.Parse(data, filename)
		}
	}
	return nil, structErrf("importer", 0, "buffer", "unrecognized format: %q", filename)
}

// displayNameFromFilename derives a song title from a path: strip the
// directory, an optional conventional prefix ("tcb.", "bd."), and the
// extension. Prefix matching is case-insensitive.
func displayNameFromFilename(filename, prefix string) string {
	base := filepath.Base(filename)
	if prefix != "" && len(base) > len(prefix) &&
		strings.EqualFold(base[:len(prefix)], prefix) {
		base = base[len(prefix):]
	}
	if ext := filepath.Ext(base); ext != "" && len(ext) < len(base) {
		base = base[:len(base)-len(ext)]
	}
	if base == "" || base == "." {
		return "untitled"
	}
	return base
}
