// nsf_parser.go - NSF (NES Sound Format) detector and parser
//
// NSF music is 6502 machine code programming the NES APU at run time; the
// only way to recover notes is to execute the player and watch the timer
// registers. The header is 0x80 bytes, little-endian, followed by the code
// payload loaded at the declared load address.

package importer

const (
	nsfHeaderSize = 0x80

	// Header field offsets.
	nsfOffVersion    = 0x05
	nsfOffTotalSongs = 0x06
	nsfOffStartSong  = 0x07
	nsfOffLoadAddr   = 0x08
	nsfOffInitAddr   = 0x0A
	nsfOffPlayAddr   = 0x0C
	nsfOffName       = 0x0E
	nsfOffArtist     = 0x2E
	nsfOffSpeedNTSC  = 0x6E
	nsfOffBankSetup  = 0x70
	nsfOffSpeedPAL   = 0x78
	nsfOffTVFlags    = 0x7A

	nsfMaxVersion = 2
	nsfMinLoad    = 0x6000
)

var nsfMagic = []byte{'N', 'E', 'S', 'M', 0x1A}

// NES APU register window and clocks.
const (
	apuBase     = 0x4000
	apuRegCount = 0x16 // $4000-$4015

	nesClockNTSC = 1789773
	nesClockPAL  = 1662607

	nesFrameRateNTSC = 60
	nesFrameRatePAL  = 50
)

var apuVoiceNames = []string{"Pulse 1", "Pulse 2", "Triangle", "Noise"}

// apuNoisePeriodsNTSC is the NTSC noise channel divisor table indexed by the
// low nibble of $400E.
var apuNoisePeriodsNTSC = [16]int{
	4, 8, 16, 32, 64, 96, 128, 160, 202, 254, 380, 508, 762, 1016, 2034, 4068,
}

// isNSF reports whether data carries an NSF header. The magic is reliable;
// the remaining checks catch truncated or corrupt rips.
func isNSF(data []byte) bool {
	if len(data) <= nsfHeaderSize {
		return false
	}
	for i, m := range nsfMagic {
		if data[i] != m {
			return false
		}
	}
	if data[nsfOffVersion] == 0 || data[nsfOffVersion] > nsfMaxVersion {
		return false
	}
	if data[nsfOffTotalSongs] == 0 {
		return false
	}
	load, _ := peekLE16(data, nsfOffLoadAddr)
	if load != 0 && load < nsfMinLoad {
		return false
	}
	return true
}

// nsfBus is the NSF memory map: flat RAM with the APU window shadowed.
type nsfBus struct {
	ram [0x10000]byte
	apu shadowRegs
}

func newNSFBus() *nsfBus {
	return &nsfBus{apu: newShadowRegs(apuBase, apuRegCount)}
}

func (b *nsfBus) Read(addr uint16) byte {
	if addr >= apuBase && int(addr-apuBase) < apuRegCount {
		return b.apu.reg(int(addr - apuBase))
	}
	return b.ram[addr]
}

func (b *nsfBus) Write(addr uint16, value byte) {
	if b.apu.catchWrite(addr, value) {
		return
	}
	b.ram[addr] = value
}

// apuSnapshot converts the shadowed APU registers into per-voice notes via
// the chip's clock-divisor formulas. A zero or out-of-audible-range divisor
// means no note this frame.
func (b *nsfBus) apuSnapshot(clock float64) []voiceState {
	voices := make([]voiceState, 4)

	// Pulse channels: f = clock / (16 * (timer + 1)), timers below 8 are
	// inaudible ultrasonics on hardware.
	for ch := 0; ch < 2; ch++ {
		base := ch * 4
		vol := b.apu.reg(base) & 0x0F
		timer := int(b.apu.reg(base+2)) | int(b.apu.reg(base+3)&0x07)<<8
		if vol == 0 || timer < 8 {
			continue
		}
		if note, ok := noteFromFrequency(clock / (16 * float64(timer+1))); ok {
			voices[ch].note = note
		}
	}

	// Triangle: f = clock / (32 * (timer + 1)), gated by the linear counter
	// reload value.
	linear := b.apu.reg(0x08) & 0x7F
	timer := int(b.apu.reg(0x0A)) | int(b.apu.reg(0x0B)&0x07)<<8
	if linear > 0 && timer >= 2 {
		if note, ok := noteFromFrequency(clock / (32 * float64(timer+1))); ok {
			voices[2].note = note
		}
	}

	// Noise: unpitched, but the divisor still lands near a pitch class;
	// mapping it keeps drum lines visible in the pattern.
	nVol := b.apu.reg(0x0C) & 0x0F
	nPeriod := apuNoisePeriodsNTSC[b.apu.reg(0x0E)&0x0F]
	if nVol > 0 {
		if note, ok := noteFromFrequency(clock / float64(nPeriod)); ok {
			voices[3].note = note
		}
	}

	return voices
}

// parseNSF decodes the header, loads the payload and extracts a pattern by
// emulation. Emulation failures (missing entry points, interpreter faults)
// degrade to a placeholder pattern; the metadata survives.
func parseNSF(data []byte, filename string) (*Song, error) {
	if !isNSF(data) {
		return nil, structErrf("NSF", 0, "magic", "not an NSF file")
	}
	r := newByteReader(data, "NSF")

	name, _ := r.stringAt(nsfOffName, 32, "song name")
	artist, _ := r.stringAt(nsfOffArtist, 32, "artist name")
	if name == "" || name == "<?>" {
		name = displayNameFromFilename(filename, "")
	}
	if artist != "" && artist != "<?>" {
		name = name + " (" + artist + ")"
	}

	load, _ := peekLE16(data, nsfOffLoadAddr)
	init, _ := peekLE16(data, nsfOffInitAddr)
	play, _ := peekLE16(data, nsfOffPlayAddr)
	startSong := data[nsfOffStartSong]
	if startSong > 0 {
		startSong--
	}

	pal := data[nsfOffTVFlags]&0x01 != 0
	clock := float64(nesClockNTSC)
	frameRate := nesFrameRateNTSC
	if pal {
		clock = float64(nesClockPAL)
		frameRate = nesFrameRatePAL
	}

	banked := false
	for i := 0; i < 8; i++ {
		if data[nsfOffBankSetup+i] != 0 {
			banked = true
		}
	}

	pattern := newEmptyPattern(len(apuVoiceNames), captureMaxRows)
	if load != 0 && init != 0 && play != 0 && !banked {
		bus := newNSFBus()
		payload := data[nsfHeaderSize:]
		end := int(load) + len(payload)
		if end > 0x10000 {
			payload = payload[:0x10000-int(load)]
		}
		copy(bus.ram[load:], payload)

		cpu := newCPU6502(bus)
		palFlag := byte(0)
		if pal {
			palFlag = 1
		}
		if err := cpu.Call(init, startSong, palFlag, initCycleBudget); err == nil {
			cyclesPerFrame := uint64(clock) / uint64(frameRate)
			frames := runCapture(cpu, play, cyclesPerFrame, func() []voiceState {
				return bus.apuSnapshot(clock)
			})
			if len(frames) > 0 {
				pattern = framesToPattern(frames, len(apuVoiceNames))
			}
		}
	}

	return assembleSong(Song{
		Name:         name,
		Format:       FormatNSF,
		Patterns:     []Pattern{pattern},
		Instruments:  chipVoiceInstruments("NES APU", apuVoiceNames),
		OrderList:    []int{0},
		ChannelCount: len(apuVoiceNames),
		InitialSpeed: 1,
		InitialTempo: frameRate * 5 / 2, // One row per frame: tick rate = 2*BPM/5
		LinearPitch:  true,
	}), nil
}
