// sap_parser.go - SAP (Slight Atari Player) detector and parser
//
// SAP files carry a CR/LF text header (AUTHOR/NAME/TYPE/INIT/PLAYER/...)
// followed by raw Atari binary blocks behind an $FFFF marker. TYPE B files
// are 6502 code: the init routine is called once with the subsong in A,
// then the play routine runs once per frame while POKEY register writes
// ($D200-$D20F) are captured and converted to notes.

package importer

import (
	"bytes"
	"strconv"
	"strings"
)

// POKEY register window and machine timing.
const (
	pokeyBase     = 0xD200
	pokeyRegCount = 0x10 // AUDF1-4, AUDC1-4, AUDCTL and friends
	pokeyStereo   = 0xD210

	pokeyClockPAL  = 1773447
	pokeyClockNTSC = 1789790

	sapCyclesPerScanline = 114
	sapScanlinesPAL      = 312
	sapScanlinesNTSC     = 262
)

var pokeyVoiceNames = []string{"POKEY 1", "POKEY 2", "POKEY 3", "POKEY 4"}

// sapHeader is the parsed tag section.
type sapHeader struct {
	Name      string
	Author    string
	Date      string
	Songs     int
	DefSong   int
	Stereo    bool
	NTSC      bool
	Type      byte
	FastPlay  int
	Init      uint16
	Player    uint16
	Music     uint16
	Durations []float64
}

// sapBlock is one binary block: inclusive start/end addresses, data.
type sapBlock struct {
	start uint16
	end   uint16
	data  []byte
}

// isSAP checks the text signature. SAP headers start with "SAP" and a line
// break; anything else is not ours.
func isSAP(data []byte) bool {
	return bytes.HasPrefix(data, []byte("SAP\r\n")) || bytes.HasPrefix(data, []byte("SAP\n"))
}

// parseSAPHeader walks the tag lines up to the binary marker.
func parseSAPHeader(data []byte) (sapHeader, int, error) {
	h := sapHeader{Songs: 1}
	markerAt := bytes.Index(data, []byte{0xFF, 0xFF})
	if markerAt < 0 {
		return h, 0, structErrf("SAP", len(data), "binary marker", "missing $FFFF block marker")
	}
	for _, rawLine := range bytes.Split(data[:markerAt], []byte{'\n'}) {
		line := bytes.TrimSpace(bytes.TrimSuffix(rawLine, []byte{'\r'}))
		if len(line) == 0 || bytes.Equal(line, []byte("SAP")) {
			continue
		}
		tag := line
		value := ""
		if sp := bytes.IndexByte(line, ' '); sp >= 0 {
			tag = line[:sp]
			value = string(bytes.TrimSpace(line[sp+1:]))
		}
		switch string(tag) {
		case "NAME":
			h.Name = unquoteSAP(value)
		case "AUTHOR":
			h.Author = unquoteSAP(value)
		case "DATE":
			h.Date = unquoteSAP(value)
		case "SONGS":
			if n, err := strconv.Atoi(value); err == nil && n > 0 {
				h.Songs = n
			}
		case "DEFSONG":
			if n, err := strconv.Atoi(value); err == nil && n >= 0 {
				h.DefSong = n
			}
		case "STEREO":
			h.Stereo = true
		case "NTSC":
			h.NTSC = true
		case "TYPE":
			if value != "" {
				h.Type = value[0]
			}
		case "FASTPLAY":
			if n, err := strconv.Atoi(value); err == nil && n > 0 {
				h.FastPlay = n
			}
		case "INIT":
			if a, err := strconv.ParseUint(value, 16, 16); err == nil {
				h.Init = uint16(a)
			}
		case "PLAYER":
			if a, err := strconv.ParseUint(value, 16, 16); err == nil {
				h.Player = uint16(a)
			}
		case "MUSIC":
			if a, err := strconv.ParseUint(value, 16, 16); err == nil {
				h.Music = uint16(a)
			}
		case "TIME":
			h.Durations = append(h.Durations, parseSAPTime(value))
		}
	}
	if h.FastPlay == 0 {
		if h.NTSC {
			h.FastPlay = sapScanlinesNTSC
		} else {
			h.FastPlay = sapScanlinesPAL
		}
	}
	switch h.Type {
	case 'B', 'C', 'D', 'S', 'R':
	case 0:
		return h, 0, structErrf("SAP", 0, "TYPE", "missing required TYPE tag")
	default:
		return h, 0, structErrf("SAP", 0, "TYPE", "invalid TYPE %c", h.Type)
	}
	return h, markerAt, nil
}

func unquoteSAP(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// parseSAPTime parses MM:SS.mmm, optionally suffixed with " LOOP".
func parseSAPTime(value string) float64 {
	value = strings.TrimSuffix(value, " LOOP")
	value = strings.TrimSpace(value)
	colon := strings.Index(value, ":")
	if colon <= 0 {
		return 0
	}
	minutes, _ := strconv.ParseFloat(value[:colon], 64)
	seconds, _ := strconv.ParseFloat(value[colon+1:], 64)
	return minutes*60 + seconds
}

// parseSAPBlocks reads the binary blocks after the header. A truncated
// final block is tolerated; plenty of circulating rips end short.
func parseSAPBlocks(data []byte, pos int) ([]sapBlock, error) {
	var blocks []sapBlock
	for pos < len(data) {
		for pos+1 < len(data) && data[pos] == 0xFF && data[pos+1] == 0xFF {
			pos += 2
		}
		if pos+4 > len(data) {
			break
		}
		start, _ := peekLE16(data, pos)
		end, _ := peekLE16(data, pos+2)
		pos += 4
		if end < start {
			return nil, structErrf("SAP", pos-2, "block range",
				"end $%04X below start $%04X", end, start)
		}
		length := int(end-start) + 1
		if pos+length > len(data) {
			length = len(data) - pos
		}
		blocks = append(blocks, sapBlock{start: start, end: end, data: data[pos : pos+length]})
		pos += length
	}
	return blocks, nil
}

// sapBus is the Atari memory map for capture: flat RAM, POKEY shadowed.
// The stereo POKEY window is swallowed but not converted; notes come from
// the first chip only.
type sapBus struct {
	ram    [0x10000]byte
	pokey  shadowRegs
	stereo bool
}

func newSAPBus(stereo bool) *sapBus {
	return &sapBus{pokey: newShadowRegs(pokeyBase, pokeyRegCount), stereo: stereo}
}

func (b *sapBus) Read(addr uint16) byte {
	if addr >= pokeyBase && int(addr-pokeyBase) < pokeyRegCount {
		return b.pokey.reg(int(addr - pokeyBase))
	}
	return b.ram[addr]
}

func (b *sapBus) Write(addr uint16, value byte) {
	if b.pokey.catchWrite(addr, value) {
		return
	}
	if b.stereo && addr >= pokeyStereo && addr < pokeyStereo+pokeyRegCount {
		return
	}
	b.ram[addr] = value
}

// pokeySnapshot converts AUDF/AUDC pairs to notes. AUDCTL selects the base
// clock: 64 kHz default, 15 kHz (bit 0), 1.79 MHz for channels 1/3 (bits
// 6/5), and 16-bit joins 1+2 / 3+4 (bits 4/3).
func (b *sapBus) pokeySnapshot(clock float64) []voiceState {
	voices := make([]voiceState, 4)
	audctl := b.pokey.reg(8)

	base := clock / 28 // 64 kHz clock
	if audctl&0x01 != 0 {
		base = clock / 114 // 15 kHz clock
	}

	join12 := audctl&0x10 != 0
	join34 := audctl&0x08 != 0

	for ch := 0; ch < 4; ch++ {
		audc := b.pokey.reg(ch*2 + 1)
		if audc&0x0F == 0 {
			continue // Volume nibble zero: silent
		}
		var freq float64
		switch {
		case join12 && ch == 1:
			div := int(b.pokey.reg(2))<<8 | int(b.pokey.reg(0))
			freq = pokeyJoinedFreq(clock, base, div, audctl&0x40 != 0)
		case join34 && ch == 3:
			div := int(b.pokey.reg(6))<<8 | int(b.pokey.reg(4))
			freq = pokeyJoinedFreq(clock, base, div, audctl&0x20 != 0)
		case join12 && ch == 0, join34 && ch == 2:
			continue // Low half of a joined pair makes no sound of its own
		case ch == 0 && audctl&0x40 != 0:
			freq = clock / (2 * float64(int(b.pokey.reg(0))+4))
		case ch == 2 && audctl&0x20 != 0:
			freq = clock / (2 * float64(int(b.pokey.reg(4))+4))
		default:
			freq = base / (2 * float64(int(b.pokey.reg(ch*2))+1))
		}
		if note, ok := noteFromFrequency(freq); ok {
			voices[ch].note = note
		}
	}
	return voices
}

func pokeyJoinedFreq(clock, base float64, div int, fast bool) float64 {
	if fast {
		return clock / (2 * float64(div+7))
	}
	return base / (2 * float64(div+1))
}

// parseSAP parses the header and blocks and, for TYPE B, extracts notes by
// emulation. Other types and emulation faults keep the metadata and return
// a placeholder pattern.
func parseSAP(data []byte, filename string) (*Song, error) {
	if !isSAP(data) {
		return nil, structErrf("SAP", 0, "signature", "not a SAP file")
	}
	header, markerAt, err := parseSAPHeader(data)
	if err != nil {
		return nil, err
	}
	blocks, err := parseSAPBlocks(data, markerAt)
	if err != nil {
		return nil, err
	}

	name := header.Name
	if name == "" || name == "<?>" {
		name = displayNameFromFilename(filename, "")
	}
	if header.Author != "" && header.Author != "<?>" {
		name = name + " (" + header.Author + ")"
	}

	clock := float64(pokeyClockPAL)
	frameRate := 50
	if header.NTSC {
		clock = float64(pokeyClockNTSC)
		frameRate = 60
	}

	pattern := newEmptyPattern(len(pokeyVoiceNames), captureMaxRows)
	if header.Type == 'B' && header.Init != 0 && header.Player != 0 {
		bus := newSAPBus(header.Stereo)
		for _, blk := range blocks {
			copy(bus.ram[blk.start:], blk.data)
		}
		cpu := newCPU6502(bus)
		if err := cpu.Call(header.Init, byte(header.DefSong), 0, initCycleBudget); err == nil {
			cyclesPerFrame := uint64(header.FastPlay) * sapCyclesPerScanline
			frames := runCapture(cpu, header.Player, cyclesPerFrame, func() []voiceState {
				return bus.pokeySnapshot(clock)
			})
			if len(frames) > 0 {
				pattern = framesToPattern(frames, len(pokeyVoiceNames))
			}
		}
	}

	return assembleSong(Song{
		Name:         name,
		Format:       FormatSAP,
		Patterns:     []Pattern{pattern},
		Instruments:  chipVoiceInstruments("POKEY", pokeyVoiceNames),
		OrderList:    []int{0},
		ChannelCount: len(pokeyVoiceNames),
		InitialSpeed: 1,
		InitialTempo: frameRate * 5 / 2,
		LinearPitch:  true,
	}), nil
}
