package importer

import (
	"math"
	"testing"
)

func TestIsSAP(t *testing.T) {
	if !isSAP([]byte("SAP\r\nTYPE B\r\n")) {
		t.Error("CRLF signature rejected")
	}
	if !isSAP([]byte("SAP\nTYPE B\n")) {
		t.Error("LF signature rejected")
	}
	if isSAP([]byte("ZXAYEMUL")) {
		t.Error("AY signature accepted")
	}
	if isSAP([]byte("SAP")) {
		t.Error("bare SAP accepted")
	}
	if isSAP(nil) {
		t.Error("nil accepted")
	}
}

func TestParseSAPHeader_AllTags(t *testing.T) {
	data := []byte("SAP\r\n" +
		"AUTHOR \"Composer Name\"\r\n" +
		"NAME \"Song Title\"\r\n" +
		"DATE \"1986\"\r\n" +
		"SONGS 3\r\n" +
		"DEFSONG 1\r\n" +
		"STEREO\r\n" +
		"NTSC\r\n" +
		"TYPE B\r\n" +
		"FASTPLAY 156\r\n" +
		"INIT 31C2\r\n" +
		"PLAYER 31F1\r\n" +
		"TIME 00:13.47\r\n" +
		"\xFF\xFF")
	h, _, err := parseSAPHeader(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.Author != "Composer Name" || h.Name != "Song Title" || h.Date != "1986" {
		t.Errorf("text tags: %q / %q / %q", h.Author, h.Name, h.Date)
	}
	if h.Songs != 3 || h.DefSong != 1 {
		t.Errorf("songs/defsong: %d/%d", h.Songs, h.DefSong)
	}
	if !h.Stereo || !h.NTSC || h.Type != 'B' {
		t.Errorf("flags: stereo=%v ntsc=%v type=%c", h.Stereo, h.NTSC, h.Type)
	}
	if h.FastPlay != 156 {
		t.Errorf("fastplay: %d", h.FastPlay)
	}
	if h.Init != 0x31C2 || h.Player != 0x31F1 {
		t.Errorf("init/player: $%04X/$%04X", h.Init, h.Player)
	}
	if len(h.Durations) != 1 || math.Abs(h.Durations[0]-13.47) > 0.001 {
		t.Errorf("durations: %v", h.Durations)
	}
}

func TestParseSAPHeader_FastplayDefaults(t *testing.T) {
	h, _, err := parseSAPHeader([]byte("SAP\r\nTYPE B\r\nINIT 2000\r\nPLAYER 2010\r\n\xFF\xFF"))
	if err != nil {
		t.Fatal(err)
	}
	if h.FastPlay != sapScanlinesPAL {
		t.Errorf("PAL default: %d", h.FastPlay)
	}
	h, _, err = parseSAPHeader([]byte("SAP\r\nNTSC\r\nTYPE B\r\nINIT 2000\r\nPLAYER 2010\r\n\xFF\xFF"))
	if err != nil {
		t.Fatal(err)
	}
	if h.FastPlay != sapScanlinesNTSC {
		t.Errorf("NTSC default: %d", h.FastPlay)
	}
}

func TestParseSAPHeader_MissingType(t *testing.T) {
	if _, _, err := parseSAPHeader([]byte("SAP\r\nINIT 2000\r\n\xFF\xFF")); err == nil {
		t.Error("missing TYPE accepted")
	}
	if _, _, err := parseSAPHeader([]byte("SAP\r\nTYPE Q\r\n\xFF\xFF")); err == nil {
		t.Error("invalid TYPE accepted")
	}
}

func TestParseSAPHeader_MissingMarker(t *testing.T) {
	if _, _, err := parseSAPHeader([]byte("SAP\r\nTYPE B\r\n")); err == nil {
		t.Error("missing binary marker accepted")
	}
}

func TestParseSAPTime(t *testing.T) {
	if got := parseSAPTime("01:30.50"); math.Abs(got-90.5) > 0.001 {
		t.Errorf("got %f", got)
	}
	if got := parseSAPTime("00:05 LOOP"); math.Abs(got-5) > 0.001 {
		t.Errorf("LOOP suffix: got %f", got)
	}
}

func TestParseSAPBlocks_EndBeforeStart(t *testing.T) {
	data := []byte("SAP\r\nTYPE B\r\n\xFF\xFF\x10\x20\x00\x20")
	_, pos, err := parseSAPHeader(data)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := parseSAPBlocks(data, pos); err == nil {
		t.Error("inverted block range accepted")
	}
}

func TestParseSAPBlocks_TruncatedFinalBlock(t *testing.T) {
	// Declares $2000-$20FF but carries only 4 bytes.
	data := append([]byte("SAP\r\nTYPE B\r\n\xFF\xFF"), 0x00, 0x20, 0xFF, 0x20, 1, 2, 3, 4)
	_, pos, err := parseSAPHeader(data)
	if err != nil {
		t.Fatal(err)
	}
	blocks, err := parseSAPBlocks(data, pos)
	if err != nil {
		t.Fatalf("truncated final block must be tolerated: %v", err)
	}
	if len(blocks) != 1 || len(blocks[0].data) != 4 {
		t.Errorf("blocks: %d, data %d bytes", len(blocks), len(blocks[0].data))
	}
}

// buildSAPTypeB wraps a tiny player: init programs POKEY channel 1 with
// divisor 27 at full volume, play is a bare RTS at $2010.
func buildSAPTypeB() []byte {
	code := make([]byte, 0x20)
	copy(code, []byte{
		0xA9, 0x1B, 0x8D, 0x00, 0xD2, // LDA #27; STA AUDF1
		0xA9, 0xAF, 0x8D, 0x01, 0xD2, // LDA #$AF; STA AUDC1
		0x60,
	})
	code[0x10] = 0x60
	data := []byte("SAP\r\nNAME \"Blip\"\r\nTYPE B\r\nINIT 2000\r\nPLAYER 2010\r\n\xFF\xFF")
	data = append(data, 0x00, 0x20, 0x1F, 0x20) // $2000-$201F
	return append(data, code...)
}

func TestParseSAP_TypeBCapture(t *testing.T) {
	song, err := parseSAP(buildSAPTypeB(), "blip.sap")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if song.Name != "Blip" {
		t.Errorf("name: got %q", song.Name)
	}
	if song.Format != FormatSAP || song.ChannelCount != 4 {
		t.Errorf("format/channels: %v/%d", song.Format, song.ChannelCount)
	}

	// Divisor 27 on the PAL 64 kHz clock is ~1131 Hz.
	cells := song.Patterns[0].Tracks[0].Cells
	var first Cell
	for _, c := range cells {
		if c.Note != NoteEmpty {
			first = c
			break
		}
	}
	if first.Note != 74 {
		t.Errorf("first POKEY 1 note: got %d, want 74", first.Note)
	}
}

func TestParseSAP_NonTypeBKeepsMetadata(t *testing.T) {
	data := []byte("SAP\r\nNAME \"Digi\"\r\nAUTHOR \"Someone\"\r\nTYPE D\r\nINIT 2000\r\n\xFF\xFF")
	song, err := parseSAP(data, "digi.sap")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if song.Name != "Digi (Someone)" {
		t.Errorf("name: got %q", song.Name)
	}
	for _, track := range song.Patterns[0].Tracks {
		for _, c := range track.Cells {
			if c != (Cell{}) {
				t.Fatal("non-B type should not be emulated")
			}
		}
	}
}

func TestPokeySnapshot_SilentWhenVolumeZero(t *testing.T) {
	bus := newSAPBus(false)
	bus.Write(pokeyBase, 27)     // AUDF1
	bus.Write(pokeyBase+1, 0xA0) // AUDC1, volume 0
	voices := bus.pokeySnapshot(float64(pokeyClockPAL))
	if voices[0].note != NoteEmpty {
		t.Errorf("zero volume produced note %d", voices[0].note)
	}
}

func TestPokeySnapshot_SixteenBitJoin(t *testing.T) {
	bus := newSAPBus(false)
	bus.Write(pokeyBase+8, 0x10)  // AUDCTL: join channels 1+2
	bus.Write(pokeyBase, 0x00)    // AUDF1 low
	bus.Write(pokeyBase+2, 0x01)  // AUDF2 high -> divisor 256
	bus.Write(pokeyBase+3, 0xAF)  // AUDC2 full volume
	voices := bus.pokeySnapshot(float64(pokeyClockPAL))
	if voices[1].note == NoteEmpty {
		t.Error("joined pair produced no note")
	}
	if voices[0].note != NoteEmpty {
		t.Error("low half of joined pair should stay silent")
	}
}
