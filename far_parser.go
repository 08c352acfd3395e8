// far_parser.go - Farandole Composer (FAR) parser
//
// A PC format, so everything multi-byte is little-endian. Layout:
//   0x00  "FAR" 0xFE
//   0x04  40-byte song name
//   0x2C  0x0D 0x0A 0x1A text-mode EOF guard
//   0x2F  u16 header length (0x62 + song text length)
//   0x31  version byte
//   0x32  16 channel on/off flags
//   0x4B  default speed
//   0x4C  16 channel volumes
//   0x60  u16 song text length, then the text
//   header length:
//         256 order entries, pattern count byte, song length byte,
//         loop-to byte, 256 u16 pattern sizes, then the patterns
//   after patterns:
//         8-byte sample-present bitmask, then per present sample a 48-byte
//         header (32-byte name, u32 length, finetune, volume, u32 loop
//         start, u32 loop end, type byte bit0 = 16-bit, loop mode) and PCM

package importer

import "math"

const (
	farMarkerOffset    = 44
	farHeaderLenOffset = 47
	farSpeedOffset     = 75
	farTextLenOffset   = 96
	farMinHeaderLen    = 98
	farChannels        = 16
	farOrderEntries    = 256
	farMaxSamples      = 64
	farSampleRate      = 8363
)

// farBaseNote lines FAR's 1-based note numbering up with the canonical
// octave grid.
const farBaseNote = 24

func isFAR(data []byte) bool {
	if len(data) < farMinHeaderLen {
		return false
	}
	if string(data[0:4]) != "FAR\xFE" {
		return false
	}
	if data[farMarkerOffset] != 0x0D || data[farMarkerOffset+1] != 0x0A ||
		data[farMarkerOffset+2] != 0x1A {
		return false
	}
	headerLen, _ := peekLE16(data, farHeaderLenOffset)
	return int(headerLen) >= farMinHeaderLen
}

// farTonePorta converts the inverse-rate portamento parameter. The
// reference player's truncation order is kept as-is.
func farTonePorta(param byte) byte {
	if param == 0 {
		return 0
	}
	return byte(math.Round(60 / float64(param)))
}

// farRetrig converts the retrigger interval the same way.
func farRetrig(param byte) byte {
	return byte(math.Round(6/float64(1+param))) + 1
}

// farCell converts one 4-byte FAR cell. The 0xA "slide to volume" combo is
// the documented one-off: it lands in the volume column and the effect slot
// stays empty.
func farCell(raw []byte, offset int) (Cell, error) {
	var c Cell
	if raw[0] != 0 {
		note := int(raw[0]) + farBaseNote
		if note < NoteFirst || note > NoteLast {
			return Cell{}, structErrf("FAR", offset, "note", "note %d out of range", raw[0])
		}
		c.Note = byte(note)
		if raw[1] >= farMaxSamples {
			return Cell{}, structErrf("FAR", offset, "instrument", "instrument %d exceeds sample bank", raw[1])
		}
		c.Instrument = raw[1] + 1
	}
	if raw[2] != 0 {
		vol := volColSetBase + int(raw[2]-1)*4
		if vol > volColSetMax {
			vol = volColSetMax
		}
		c.Volume = byte(vol)
	}
	effect := raw[3] >> 4
	param := raw[3] & 0x0F
	switch effect {
	case 0x0:
	case 0x1: // Pitch adjust up
		c.Effect, c.EffectParam = 0x1, param
	case 0x2: // Pitch adjust down
		c.Effect, c.EffectParam = 0x2, param
	case 0x3: // Portamento to note
		c.Effect, c.EffectParam = 0x3, farTonePorta(param)
	case 0x4: // Retrigger
		c.Effect, c.EffectParam = 0xE, 0x90|farRetrig(param)&0x0F
	case 0x5: // Set vibrato depth
		c.Effect, c.EffectParam = 0x4, param
	case 0x6: // Vibrato
		c.Effect, c.EffectParam = 0x4, param<<4
	case 0x7: // Volume slide up
		c.Effect, c.EffectParam = 0xA, param<<4
	case 0x8: // Volume slide down
		c.Effect, c.EffectParam = 0xA, param
	case 0x9: // Sustained vibrato
		c.Effect, c.EffectParam = 0x4, param<<4
	case 0xA: // Slide to volume: volume column only, effect suppressed
		vol := volColSetBase + int(param)*4
		if vol > volColSetMax {
			vol = volColSetMax
		}
		c.Volume = byte(vol)
	case 0xB: // Balance
		c.Effect, c.EffectParam = 0x8, param<<4|param
	case 0xD: // Fine tempo down
		c.Effect, c.EffectParam = 0xF, 0
	case 0xE: // Fine tempo up
		c.Effect, c.EffectParam = 0xF, 0
	case 0xF: // Set tempo
		c.Effect, c.EffectParam = 0xF, param
	default:
		// 0xC note offset has no canonical counterpart; dropped.
	}
	return c, nil
}

func parseFAR(data []byte, filename string) (*Song, error) {
	if !isFAR(data) {
		return nil, structErrf("FAR", 0, "signature", "not a Farandole module")
	}
	r := newByteReader(data, "FAR")

	name, err := r.stringAt(4, 40, "song name")
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = displayNameFromFilename(filename, "")
	}
	speed := int(data[farSpeedOffset])
	if speed == 0 {
		speed = 4
	}
	headerLen, _ := peekLE16(data, farHeaderLenOffset)

	if err := r.seek(int(headerLen), "order table"); err != nil {
		return nil, err
	}
	orders, err := r.bytes(farOrderEntries, "order table")
	if err != nil {
		return nil, err
	}
	if err := r.skip(1, "pattern count"); err != nil {
		return nil, err
	}
	songLen, err := r.u8("song length")
	if err != nil {
		return nil, err
	}
	loopTo, err := r.u8("loop position")
	if err != nil {
		return nil, err
	}
	if songLen == 0 {
		return nil, structErrf("FAR", r.offset-2, "song length", "zero-length order list")
	}
	patternSizes := make([]int, farOrderEntries)
	for i := range patternSizes {
		size, err := r.le16("pattern size")
		if err != nil {
			return nil, err
		}
		patternSizes[i] = int(size)
	}

	orderList := make([]int, songLen)
	patternCount := 0
	for i := 0; i < int(songLen); i++ {
		idx := int(orders[i])
		orderList[i] = idx
		if idx+1 > patternCount {
			patternCount = idx + 1
		}
	}
	restart := int(loopTo)
	if restart >= len(orderList) {
		restart = 0
	}

	// Patterns are stored back to back; entries with size zero are empty
	// but can still be referenced.
	patterns := make([]Pattern, patternCount)
	for p := 0; p < patternCount; p++ {
		size := patternSizes[p]
		if size == 0 {
			patterns[p] = newEmptyPattern(farChannels, 64)
			continue
		}
		rowBytes := farChannels * 4
		if size < 2 || (size-2)%rowBytes != 0 {
			return nil, structErrf("FAR", r.offset, "pattern size",
				"pattern %d size %d not a whole number of rows", p, size)
		}
		rows := (size - 2) / rowBytes
		if err := r.skip(2, "pattern prologue"); err != nil {
			return nil, err
		}
		pat := newEmptyPattern(farChannels, rows)
		for row := 0; row < rows; row++ {
			for ch := 0; ch < farChannels; ch++ {
				at := r.offset
				raw, err := r.bytes(4, "pattern cell")
				if err != nil {
					return nil, err
				}
				cell, err := farCell(raw, at)
				if err != nil {
					return nil, err
				}
				pat.Tracks[ch].Cells[row] = cell
			}
		}
		patterns[p] = pat
	}
	// Unreferenced pattern data still occupies the file; skip past it so
	// the sample map lines up.
	for p := patternCount; p < farOrderEntries; p++ {
		if patternSizes[p] > 0 {
			if err := r.skip(patternSizes[p], "pattern data"); err != nil {
				return nil, err
			}
		}
	}

	var instruments []Instrument
	sampleMap, err := r.bytes(farMaxSamples/8, "sample map")
	if err != nil {
		return nil, err
	}
	for i := 0; i < farMaxSamples; i++ {
		if sampleMap[i/8]&(1<<(i%8)) == 0 {
			instruments = append(instruments, Instrument{
				ID:   i + 1,
				Kind: InstrumentSampler,
			})
			continue
		}
		sName, err := r.paddedString(32, "sample name")
		if err != nil {
			return nil, err
		}
		length, err := r.le32("sample length")
		if err != nil {
			return nil, err
		}
		if err := r.skip(2, "sample finetune+volume"); err != nil {
			return nil, err
		}
		volume := int(data[r.offset-1])
		if volume > 64 {
			volume = 64
		}
		loopStart, err := r.le32("loop start")
		if err != nil {
			return nil, err
		}
		loopEnd, err := r.le32("loop end")
		if err != nil {
			return nil, err
		}
		sampleType, err := r.u8("sample type")
		if err != nil {
			return nil, err
		}
		if err := r.skip(1, "loop mode"); err != nil {
			return nil, err
		}

		is16 := sampleType&1 != 0
		sample := Sample{Rate: farSampleRate, Volume: volume}
		byteLen := int(length)
		if is16 {
			frames := byteLen / 2
			pcm, ok := decodePCM16(data, r.offset, frames, false)
			if ok {
				sample.Data = pcm
				sample.LoopStart, sample.LoopEnd = normalizeLoop(
					int(loopStart)/2, int(loopEnd)/2, frames)
			} else {
				sample = silentSample(volume, 0)
			}
		} else {
			pcm, ok := decodePCM8(data, r.offset, byteLen)
			if ok {
				sample.Data = pcm
				sample.LoopStart, sample.LoopEnd = normalizeLoop(
					int(loopStart), int(loopEnd), byteLen)
			} else {
				sample = silentSample(volume, 0)
			}
		}
		r.offset += byteLen
		if r.offset > len(data) {
			r.offset = len(data)
		}
		instruments = append(instruments, Instrument{
			ID:     i + 1,
			Name:   sName,
			Kind:   InstrumentSampler,
			Sample: sample,
		})
	}

	return assembleSong(Song{
		Name:         name,
		Format:       FormatFAR,
		Patterns:     patterns,
		Instruments:  instruments,
		OrderList:    orderList,
		RestartPos:   restart,
		ChannelCount: farChannels,
		InitialSpeed: speed,
		InitialTempo: 80,
	}), nil
}
