// sample.go - Sample/PCM extraction shared by the tracker parsers
//
// Canonical PCM is signed 8-bit. 16-bit sources keep only the high byte of
// each sample: a deliberate lossy simplification inherited from the
// reference player, not a transcription error.

package importer

// decodePCM8 extracts declaredLen bytes of signed 8-bit PCM starting at
// offset. A truncated payload returns ok=false so the caller can downgrade
// that one instrument to silence instead of failing the file.
func decodePCM8(data []byte, offset, declaredLen int) ([]int8, bool) {
	if declaredLen <= 0 {
		return nil, true
	}
	if offset < 0 || offset+declaredLen > len(data) {
		return nil, false
	}
	out := make([]int8, declaredLen)
	for i := 0; i < declaredLen; i++ {
		out[i] = int8(data[offset+i])
	}
	return out, true
}

// decodePCM16 extracts declaredLen 16-bit frames as 8-bit PCM by keeping the
// high byte of each frame (no dithering). bigEndian selects byte order.
func decodePCM16(data []byte, offset, declaredLen int, bigEndian bool) ([]int8, bool) {
	if declaredLen <= 0 {
		return nil, true
	}
	if offset < 0 || offset+declaredLen*2 > len(data) {
		return nil, false
	}
	out := make([]int8, declaredLen)
	hi := 1
	if bigEndian {
		hi = 0
	}
	for i := 0; i < declaredLen; i++ {
		out[i] = int8(data[offset+i*2+hi])
	}
	return out, true
}

// normalizeLoop applies the degenerate-loop rules: a loop of length <= 1, a
// start at or past the decoded length, or an end before the start all mean
// "no loop". The end is trimmed to the decoded length when it overshoots.
func normalizeLoop(start, end, sampleLen int) (int, int) {
	if end > sampleLen {
		end = sampleLen
	}
	if start < 0 || start >= sampleLen || end-start <= 1 {
		return 0, 0
	}
	return start, end
}

// rebaseLoop converts loop fields expressed as absolute target-machine
// addresses into byte offsets relative to the sample's own start, then
// normalizes. Addresses below the sample start mean the header is nonsense;
// the loop is dropped.
func rebaseLoop(loopAddr, loopLen uint32, sampleAddr uint32, sampleLen int) (int, int) {
	if loopAddr < sampleAddr {
		return 0, 0
	}
	start := int(loopAddr - sampleAddr)
	return normalizeLoop(start, start+int(loopLen), sampleLen)
}

// noiseRunnerFinetuneDivisor is the chip fixed-point step the player stores
// per finetune index.
const noiseRunnerFinetuneDivisor = -72

// noiseRunnerFinetune converts the chip-specific fixed-point finetune word
// to the canonical signed scale: index = raw / -72, folded into [-128, 112]
// in steps of 16. Raw values off the documented 16-step grid invalidate the
// file.
func noiseRunnerFinetune(raw int16) (int8, bool) {
	if raw > 0 || raw%noiseRunnerFinetuneDivisor != 0 {
		return 0, false
	}
	index := int(raw) / noiseRunnerFinetuneDivisor
	if index < 0 || index > 15 {
		return 0, false
	}
	ft := index * 16
	if ft > 112 {
		ft -= 256
	}
	return int8(ft), true
}

// modFinetune converts a ProTracker finetune nibble (signed, two's
// complement in 4 bits) to the canonical scale in steps of 16.
func modFinetune(nibble byte) int8 {
	v := int(nibble & 0x0F)
	if v >= 8 {
		v -= 16
	}
	return int8(v * 16)
}
