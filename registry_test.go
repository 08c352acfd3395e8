package importer

import "testing"

// Every registered detector must reject empty, all-zero and short buffers.
func TestDetectors_RejectDegenerateBuffers(t *testing.T) {
	buffers := [][]byte{
		nil,
		{},
		make([]byte, 16),
		make([]byte, 4096),
	}
	for _, h := range formatHandlers {
		for _, buf := range buffers {
			if h.Detect(buf, "file.bin") {
				t.Errorf("%s: accepted a %d-byte degenerate buffer", h.Name, len(buf))
			}
		}
	}
}

func TestDetectFormat(t *testing.T) {
	cases := []struct {
		data []byte
		name string
		want FormatID
	}{
		{minimalMOD(), "song.mod", FormatMOD},
		{minimalNoiseRunner(), "runner.mod", FormatNoiseRunner},
		{minimalFAR(), "tune.far", FormatFAR},
		{buildNSF(253, 0), "test.nsf", FormatNSF},
		{buildSAPTypeB(), "blip.sap", FormatSAP},
	}
	for _, c := range cases {
		got, ok := DetectFormat(c.data, c.name)
		if !ok || got != c.want {
			t.Errorf("%s: got %v ok=%v, want %v", c.name, got, ok, c.want)
		}
	}
}

// NoiseRunner shares ProTracker's signature word; the registry must try the
// structurally specific detector first.
func TestDetectFormat_NoiseRunnerBeforeMOD(t *testing.T) {
	got, ok := DetectFormat(minimalNoiseRunner(), "runner.mod")
	if !ok || got != FormatNoiseRunner {
		t.Fatalf("got %v ok=%v", got, ok)
	}
}

func TestDetectFormat_Unknown(t *testing.T) {
	if got, ok := DetectFormat([]byte("not a module at all"), "x.bin"); ok {
		t.Errorf("junk detected as %v", got)
	}
	if _, ok := DetectFormat(nil, "x.bin"); ok {
		t.Error("nil detected")
	}
}

func TestParseSong(t *testing.T) {
	song, err := ParseSong(minimalMOD(), "song.mod")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if song.Format != FormatMOD {
		t.Errorf("format: %v", song.Format)
	}
}

func TestParseSong_Unrecognized(t *testing.T) {
	if _, err := ParseSong([]byte("garbage"), "x.bin"); err == nil {
		t.Error("expected error for unrecognized data")
	}
	if _, err := ParseSong(nil, "x.bin"); err == nil {
		t.Error("expected error for empty buffer")
	}
}

// Detection order is part of the contract: specific before generic.
func TestRegistryOrder(t *testing.T) {
	pos := map[FormatID]int{}
	for i, h := range formatHandlers {
		pos[h.ID] = i
	}
	if pos[FormatNoiseRunner] >= pos[FormatMOD] {
		t.Error("NoiseRunner must be registered before ProTracker")
	}
}
