package importer

import "testing"

// buildNSF assembles a header plus code payload loaded at $8000. The init
// routine programs Pulse 1 with the given timer value; play is a bare RTS.
func buildNSF(timerLo, timerHi byte) []byte {
	code := []byte{
		0xA9, 0x8F, 0x8D, 0x00, 0x40, // LDA #$8F; STA $4000
		0xA9, timerLo, 0x8D, 0x02, 0x40, // LDA lo; STA $4002
		0xA9, timerHi, 0x8D, 0x03, 0x40, // LDA hi; STA $4003
		0x60,
		0x60, // play entry
	}
	data := make([]byte, nsfHeaderSize+len(code))
	copy(data, nsfMagic)
	data[nsfOffVersion] = 1
	data[nsfOffTotalSongs] = 1
	data[nsfOffStartSong] = 1
	data[nsfOffLoadAddr] = 0x00
	data[nsfOffLoadAddr+1] = 0x80
	data[nsfOffInitAddr] = 0x00
	data[nsfOffInitAddr+1] = 0x80
	data[nsfOffPlayAddr] = 0x10 // $8010, the trailing RTS
	data[nsfOffPlayAddr+1] = 0x80
	copy(data[nsfOffName:], "test nsf")
	copy(data[nsfOffArtist:], "composer")
	copy(data[nsfHeaderSize:], code)
	return data
}

func TestIsNSF(t *testing.T) {
	if !isNSF(buildNSF(253, 0)) {
		t.Fatal("valid header rejected")
	}
}

func TestIsNSF_Rejections(t *testing.T) {
	if isNSF(nil) {
		t.Error("nil accepted")
	}
	if isNSF(make([]byte, nsfHeaderSize+1)) {
		t.Error("all-zero buffer accepted")
	}
	if isNSF(buildNSF(253, 0)[:nsfHeaderSize]) {
		t.Error("header-only buffer accepted")
	}

	bad := buildNSF(253, 0)
	bad[4] = 0x00 // magic terminator
	if isNSF(bad) {
		t.Error("corrupt magic accepted")
	}

	bad = buildNSF(253, 0)
	bad[nsfOffVersion] = 0
	if isNSF(bad) {
		t.Error("version 0 accepted")
	}

	bad = buildNSF(253, 0)
	bad[nsfOffTotalSongs] = 0
	if isNSF(bad) {
		t.Error("zero song count accepted")
	}

	bad = buildNSF(253, 0)
	bad[nsfOffLoadAddr+1] = 0x01 // load below $6000
	if isNSF(bad) {
		t.Error("low load address accepted")
	}
}

// Timer 253 at the NTSC clock is 440 Hz, so the captured Pulse 1 line must
// open with A-4.
func TestParseNSF_Timer253IsA4(t *testing.T) {
	song, err := parseNSF(buildNSF(253, 0), "test.nsf")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if song.Name != "test nsf (composer)" {
		t.Errorf("name: got %q", song.Name)
	}
	if song.ChannelCount != len(apuVoiceNames) {
		t.Fatalf("channels: %d", song.ChannelCount)
	}

	pulse1 := song.Patterns[0].Tracks[0].Cells
	var first Cell
	for _, c := range pulse1 {
		if c.Note != NoteEmpty {
			first = c
			break
		}
	}
	want := byte(a4MIDINote - midiToCanonical)
	if first.Note != want {
		t.Errorf("first Pulse 1 note: got %d, want %d", first.Note, want)
	}
}

func TestParseNSF_TimerWithHighBits(t *testing.T) {
	song, err := parseNSF(buildNSF(253, 1), "test.nsf")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pulse1 := song.Patterns[0].Tracks[0].Cells
	found := false
	for _, c := range pulse1 {
		if c.Note >= NoteFirst && c.Note <= NoteLast {
			found = true
			break
		}
	}
	if !found {
		t.Error("no pitched note captured on Pulse 1")
	}
}

func TestParseNSF_ZeroPlayDegradesToPlaceholder(t *testing.T) {
	data := buildNSF(253, 0)
	data[nsfOffPlayAddr] = 0
	data[nsfOffPlayAddr+1] = 0
	song, err := parseNSF(data, "test.nsf")
	if err != nil {
		t.Fatalf("missing play address must not fail the parse: %v", err)
	}
	for _, track := range song.Patterns[0].Tracks {
		for _, c := range track.Cells {
			if c != (Cell{}) {
				t.Fatal("placeholder pattern is not empty")
			}
		}
	}
	if song.Name != "test nsf (composer)" {
		t.Error("metadata lost on degraded parse")
	}
}

func TestParseNSF_BankedSkipsEmulation(t *testing.T) {
	data := buildNSF(253, 0)
	data[nsfOffBankSetup] = 1
	song, err := parseNSF(data, "test.nsf")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, c := range song.Patterns[0].Tracks[0].Cells {
		if c != (Cell{}) {
			t.Fatal("banked module should not be emulated")
		}
	}
}

func TestParseNSF_NoteDomain(t *testing.T) {
	song, err := parseNSF(buildNSF(100, 0), "test.nsf")
	if err != nil {
		t.Fatal(err)
	}
	for _, track := range song.Patterns[0].Tracks {
		for _, c := range track.Cells {
			if c.Note != NoteEmpty && (c.Note < NoteFirst || c.Note > NoteOff) {
				t.Fatalf("note %d outside canonical domain", c.Note)
			}
		}
	}
}
