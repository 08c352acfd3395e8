// mod_parser.go - ProTracker MOD parser
//
// Layout (big-endian Amiga format):
//   0x000  20-byte song title
//   0x014  31 sample headers, 30 bytes each:
//            22-byte name, length in words, finetune nibble, volume,
//            loop start in words, loop length in words
//   0x3B6  song length (1-128), restart byte, 128 order entries
//   0x438  4-byte signature: "M.K.", "M!K!", "FLT4", "xCHN" or "xxCH"
//   0x43C  patterns, 64 rows x channels x 4 bytes per cell
//   ...    sample PCM, 8-bit signed, in header order

package importer

const (
	modTitleLen        = 20
	modSampleCount     = 31
	modSampleHeaderLen = 30
	modOrderOffset     = 950
	modOrderEntries    = 128
	modMagicOffset     = 1080
	modPatternOffset   = 1084
	modRowsPerPattern  = 64
)

// modChannelCount decodes the signature word into a channel count.
// Zero means the signature is not one of ours.
func modChannelCount(magic []byte) int {
	switch string(magic) {
	case "M.K.", "M!K!", "FLT4":
		return 4
	}
	if magic[1] == 'C' && magic[2] == 'H' && magic[3] == 'N' &&
		magic[0] >= '1' && magic[0] <= '9' {
		return int(magic[0] - '0')
	}
	if magic[2] == 'C' && magic[3] == 'H' &&
		magic[0] >= '0' && magic[0] <= '9' && magic[1] >= '0' && magic[1] <= '9' {
		n := int(magic[0]-'0')*10 + int(magic[1]-'0')
		if n >= 10 && n <= 32 {
			return n
		}
	}
	return 0
}

func isMOD(data []byte) bool {
	if len(data) < modPatternOffset {
		return false
	}
	if modChannelCount(data[modMagicOffset:modMagicOffset+4]) == 0 {
		return false
	}
	songLen := int(data[modOrderOffset])
	return songLen >= 1 && songLen <= modOrderEntries
}

func parseMOD(data []byte, filename string) (*Song, error) {
	if !isMOD(data) {
		return nil, structErrf("MOD", 0, "signature", "not a ProTracker module")
	}
	channels := modChannelCount(data[modMagicOffset : modMagicOffset+4])
	r := newByteReader(data, "MOD")

	title, err := r.paddedString(modTitleLen, "title")
	if err != nil {
		return nil, err
	}
	if title == "" {
		title = displayNameFromFilename(filename, "")
	}

	// Sample headers. PCM lengths and loop fields are stored in words.
	type modSampleHeader struct {
		name     string
		length   int
		finetune int8
		volume   int
		loopS    int
		loopE    int
	}
	headers := make([]modSampleHeader, modSampleCount)
	for i := range headers {
		name, err := r.paddedString(22, "sample name")
		if err != nil {
			return nil, err
		}
		lenWords, err := r.be16("sample length")
		if err != nil {
			return nil, err
		}
		ft, err := r.u8("sample finetune")
		if err != nil {
			return nil, err
		}
		vol, err := r.u8("sample volume")
		if err != nil {
			return nil, err
		}
		loopStart, err := r.be16("loop start")
		if err != nil {
			return nil, err
		}
		loopLen, err := r.be16("loop length")
		if err != nil {
			return nil, err
		}
		h := modSampleHeader{
			name:     name,
			length:   int(lenWords) * 2,
			finetune: modFinetune(ft),
			volume:   int(vol),
		}
		if h.volume > 64 {
			h.volume = 64
		}
		h.loopS, h.loopE = normalizeLoop(int(loopStart)*2, int(loopStart)*2+int(loopLen)*2, h.length)
		headers[i] = h
	}

	songLen := int(data[modOrderOffset])
	restart := int(data[modOrderOffset+1])
	if restart >= songLen {
		restart = 0
	}
	orderList := make([]int, songLen)
	patternCount := 0
	// ProTracker scans the whole 128-entry table for the pattern count,
	// including entries past the song length.
	for i := 0; i < modOrderEntries; i++ {
		idx := int(data[modOrderOffset+2+i])
		if idx+1 > patternCount {
			patternCount = idx + 1
		}
		if i < songLen {
			orderList[i] = idx
		}
	}

	patternSize := modRowsPerPattern * channels * 4
	patterns := make([]Pattern, patternCount)
	for p := 0; p < patternCount; p++ {
		base := modPatternOffset + p*patternSize
		if err := r.seek(base, "pattern data"); err != nil {
			return nil, err
		}
		pat := newEmptyPattern(channels, modRowsPerPattern)
		for row := 0; row < modRowsPerPattern; row++ {
			for ch := 0; ch < channels; ch++ {
				raw, err := r.bytes(4, "pattern cell")
				if err != nil {
					return nil, err
				}
				cell, err := decodeMODCell(raw, base+(row*channels+ch)*4)
				if err != nil {
					return nil, err
				}
				pat.Tracks[ch].Cells[row] = cell
			}
		}
		patterns[p] = pat
	}

	// PCM payloads follow the last pattern. A truncated payload silences
	// that one instrument and parsing continues.
	instruments := make([]Instrument, modSampleCount)
	pcmAt := modPatternOffset + patternCount*patternSize
	for i, h := range headers {
		sample := Sample{
			Rate:      protrackerSampleRate,
			LoopStart: h.loopS,
			LoopEnd:   h.loopE,
			Volume:    h.volume,
			Finetune:  h.finetune,
		}
		pcm, ok := decodePCM8(data, pcmAt, h.length)
		if ok {
			sample.Data = pcm
		} else {
			sample = silentSample(h.volume, h.finetune)
		}
		pcmAt += h.length
		instruments[i] = Instrument{
			ID:     i + 1,
			Name:   h.name,
			Kind:   InstrumentSampler,
			Sample: sample,
		}
	}

	return assembleSong(Song{
		Name:         title,
		Format:       FormatMOD,
		Patterns:     patterns,
		Instruments:  instruments,
		OrderList:    orderList,
		RestartPos:   restart,
		ChannelCount: channels,
		InitialSpeed: 6,
		InitialTempo: 125,
	}), nil
}

// protrackerSampleRate is the Amiga playback rate for period 428 (C-3),
// the conventional reference rate for MOD samples.
const protrackerSampleRate = 8287

// decodeMODCell unpacks one 4-byte pattern cell:
//
//	byte 0: upper sample nibble | period high bits
//	byte 1: period low byte
//	byte 2: lower sample nibble | effect type
//	byte 3: effect parameter
//
// A period outside the tuning table is a structural error: ProTracker
// never writes one, so the region is not pattern data. The same goes for
// an instrument nibble pair above the 31-sample bank.
func decodeMODCell(raw []byte, offset int) (Cell, error) {
	period := int(raw[0]&0x0F)<<8 | int(raw[1])
	note, ok := periodToNote(period)
	if !ok {
		return Cell{}, structErrf("MOD", offset, "period", "period %d outside tuning table", period)
	}
	inst := raw[0]&0xF0 | raw[2]>>4
	if inst > modSampleCount {
		return Cell{}, structErrf("MOD", offset, "instrument", "instrument %d exceeds sample bank", inst)
	}
	return Cell{
		Note:        note,
		Instrument:  inst,
		Effect:      raw[2] & 0x0F,
		EffectParam: raw[3],
	}, nil
}
