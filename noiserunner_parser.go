// noiserunner_parser.go - NoiseRunner parser
//
// NoiseRunner reuses ProTracker's "M.K." word at offset 1080, so it has to
// be detected ahead of plain MOD by structural self-consistency rather than
// the magic. The tells: pattern note bytes are 0-based half-step indices
// pre-doubled for the player's word-indexed period table (always even,
// never above 72), sample headers carry absolute Amiga addresses instead of
// word counts, and finetune is stored as a chip fixed-point word in
// multiples of -72.
//
// Layout:
//   0x000  31 sample headers, 16 bytes each (big-endian):
//            u32 sample address, u32 loop address,
//            u16 loop length, u16 sample length (bytes),
//            i16 finetune word, u16 volume
//   0x1F0  song length (1-128), restart byte, 128 order entries
//   0x438  "M.K."
//   0x43C  patterns, 64 rows x 4 channels x 4 bytes:
//            note (doubled half-step), instrument, effect, parameter
//   ...    sample PCM, 8-bit signed, addressed by the header pointers
//          relative to the first sample's address

package importer

const (
	nrSampleCount     = 31
	nrSampleHeaderLen = 16
	nrOrderOffset     = nrSampleCount * nrSampleHeaderLen
	nrOrderEntries    = 128
	nrMagicOffset     = 1080
	nrPatternOffset   = 1084
	nrChannels        = 4
	nrRowsPerPattern  = 64
	nrMaxNoteByte     = 72
)

// isNoiseRunner accepts only buffers whose headers and first pattern pass
// every structural check; anything looser would swallow plain MODs.
func isNoiseRunner(data []byte) bool {
	minLen := nrPatternOffset + nrRowsPerPattern*nrChannels*4
	if len(data) < minLen {
		return false
	}
	if string(data[nrMagicOffset:nrMagicOffset+4]) != "M.K." {
		return false
	}
	songLen := int(data[nrOrderOffset])
	if songLen < 1 || songLen > nrOrderEntries {
		return false
	}

	sampled := false
	prevAddr := uint32(0)
	for i := 0; i < nrSampleCount; i++ {
		at := i * nrSampleHeaderLen
		sampleAddr, _ := peekBE32(data, at)
		loopAddr, _ := peekBE32(data, at+4)
		loopLen, _ := peekBE16(data, at+8)
		length, _ := peekBE16(data, at+10)
		rawFT, _ := peekBE16(data, at+12)
		volume, _ := peekBE16(data, at+14)
		if volume > 64 {
			return false
		}
		if _, ok := noiseRunnerFinetune(int16(rawFT)); !ok {
			return false
		}
		if length == 0 {
			continue
		}
		// Pointers for real samples must be present and non-decreasing.
		if sampleAddr == 0 || sampleAddr < prevAddr {
			return false
		}
		if loopLen > 0 && loopAddr < sampleAddr {
			return false
		}
		prevAddr = sampleAddr
		sampled = true
	}
	if !sampled {
		return false
	}

	// First pattern: every note byte even and in range, at least one set.
	hasNote := false
	for cell := 0; cell < nrRowsPerPattern*nrChannels; cell++ {
		note := data[nrPatternOffset+cell*4]
		if note&1 != 0 || note > nrMaxNoteByte {
			return false
		}
		if note != 0 {
			hasNote = true
		}
	}
	return hasNote
}

func parseNoiseRunner(data []byte, filename string) (*Song, error) {
	if !isNoiseRunner(data) {
		return nil, structErrf("NoiseRunner", 0, "structure", "not a NoiseRunner module")
	}
	r := newByteReader(data, "NoiseRunner")

	type nrHeader struct {
		sampleAddr uint32
		loopAddr   uint32
		loopLen    int
		length     int
		finetune   int8
		volume     int
	}
	headers := make([]nrHeader, nrSampleCount)
	for i := range headers {
		sampleAddr, err := r.be32("sample address")
		if err != nil {
			return nil, err
		}
		loopAddr, err := r.be32("loop address")
		if err != nil {
			return nil, err
		}
		loopLen, err := r.be16("loop length")
		if err != nil {
			return nil, err
		}
		length, err := r.be16("sample length")
		if err != nil {
			return nil, err
		}
		rawFT, err := r.be16("finetune")
		if err != nil {
			return nil, err
		}
		volume, err := r.be16("volume")
		if err != nil {
			return nil, err
		}
		ft, ok := noiseRunnerFinetune(int16(rawFT))
		if !ok {
			return nil, structErrf("NoiseRunner", r.offset-4, "finetune",
				"finetune word %d is not a multiple of -72 in range", int16(rawFT))
		}
		headers[i] = nrHeader{
			sampleAddr: sampleAddr,
			loopAddr:   loopAddr,
			loopLen:    int(loopLen),
			length:     int(length),
			finetune:   ft,
			volume:     int(volume),
		}
	}

	songLen := int(data[nrOrderOffset])
	restart := int(data[nrOrderOffset+1])
	if restart >= songLen {
		restart = 0
	}
	orderList := make([]int, songLen)
	patternCount := 0
	for i := 0; i < nrOrderEntries; i++ {
		idx := int(data[nrOrderOffset+2+i])
		if idx+1 > patternCount {
			patternCount = idx + 1
		}
		if i < songLen {
			orderList[i] = idx
		}
	}

	patternSize := nrRowsPerPattern * nrChannels * 4
	patterns := make([]Pattern, patternCount)
	for p := 0; p < patternCount; p++ {
		base := nrPatternOffset + p*patternSize
		if err := r.seek(base, "pattern data"); err != nil {
			return nil, err
		}
		pat := newEmptyPattern(nrChannels, nrRowsPerPattern)
		for row := 0; row < nrRowsPerPattern; row++ {
			for ch := 0; ch < nrChannels; ch++ {
				raw, err := r.bytes(4, "pattern cell")
				if err != nil {
					return nil, err
				}
				note, ok := halfStepNote(raw[0])
				if !ok {
					return nil, structErrf("NoiseRunner", base+(row*nrChannels+ch)*4,
						"note", "note byte %d not a doubled half-step", raw[0])
				}
				if raw[1] > nrSampleCount {
					return nil, structErrf("NoiseRunner", base+(row*nrChannels+ch)*4+1,
						"instrument", "instrument %d out of range", raw[1])
				}
				pat.Tracks[ch].Cells[row] = Cell{
					Note:        note,
					Instrument:  raw[1],
					Effect:      raw[2],
					EffectParam: raw[3],
				}
			}
		}
		patterns[p] = pat
	}

	// PCM region follows the patterns; header pointers are absolute Amiga
	// addresses, rebased against the first sample's address.
	pcmBase := nrPatternOffset + patternCount*patternSize
	var firstAddr uint32
	for _, h := range headers {
		if h.length > 0 {
			firstAddr = h.sampleAddr
			break
		}
	}
	instruments := make([]Instrument, nrSampleCount)
	for i, h := range headers {
		sample := Sample{
			Rate:     protrackerSampleRate,
			Volume:   h.volume,
			Finetune: h.finetune,
		}
		if h.length > 0 {
			offset := pcmBase + int(h.sampleAddr-firstAddr)
			pcm, ok := decodePCM8(data, offset, h.length)
			if ok {
				sample.Data = pcm
				sample.LoopStart, sample.LoopEnd = rebaseLoop(
					h.loopAddr, uint32(h.loopLen), h.sampleAddr, h.length)
			} else {
				sample = silentSample(h.volume, h.finetune)
			}
		}
		instruments[i] = Instrument{
			ID:     i + 1,
			Kind:   InstrumentSampler,
			Sample: sample,
		}
	}

	return assembleSong(Song{
		Name:         displayNameFromFilename(filename, ""),
		Format:       FormatNoiseRunner,
		Patterns:     patterns,
		Instruments:  instruments,
		OrderList:    orderList,
		RestartPos:   restart,
		ChannelCount: nrChannels,
		InitialSpeed: 6,
		InitialTempo: 125,
	}), nil
}
