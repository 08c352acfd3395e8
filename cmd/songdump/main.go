// songdump parses a music file into the canonical song model and reports
// on it: a structured dump, an SVG pitch trace, or a quick PCM preview of
// one instrument.
package main

import (
	"bytes"
	"encoding/binary"
	"log"
	"os"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/ebitengine/oto/v3"
	"github.com/spf13/pflag"
	"github.com/wcharczuk/go-chart/v2"

	importer "github.com/spotUP/DEViLBOX-sub015"
)

var logger = log.New(os.Stdout, "", 0)

func main() {
	var (
		dump      bool
		chartPath string
		playInst  int
	)
	pflag.BoolVarP(&dump, "dump", "d", false, "dump the parsed song structure")
	pflag.StringVarP(&chartPath, "chart", "c", "", "write an SVG pitch trace to this path")
	pflag.IntVarP(&playInst, "play", "p", 0, "preview this instrument's PCM (1-based)")
	pflag.Parse()

	if pflag.NArg() != 1 {
		logger.Fatal("usage: songdump [flags] <file>")
	}
	path := pflag.Arg(0)
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Fatalf("read %s: %v", path, err)
	}

	song, err := importer.ParseSong(data, path)
	if err != nil {
		logger.Fatalf("parse %s: %v", path, err)
	}
	logger.Printf("%s: %q [%s] %d channels, %d patterns, %d orders",
		path, song.Name, song.Format, song.ChannelCount,
		len(song.Patterns), len(song.OrderList))

	if dump {
		spew.Fdump(os.Stdout, song)
	}
	if chartPath != "" {
		if err := writePitchChart(chartPath, song); err != nil {
			logger.Fatalf("chart: %v", err)
		}
		logger.Printf("wrote %s", chartPath)
	}
	if playInst > 0 {
		if err := playInstrument(song, playInst); err != nil {
			logger.Fatalf("play: %v", err)
		}
	}
}

// writePitchChart plots the first pattern's notes, one series per channel.
func writePitchChart(path string, song *importer.Song) error {
	if len(song.Patterns) == 0 {
		return nil
	}
	pat := &song.Patterns[0]
	var series []chart.Series
	for _, track := range pat.Tracks {
		var xvals, yvals []float64
		for row, cell := range track.Cells {
			if cell.Note >= importer.NoteFirst && cell.Note <= importer.NoteLast {
				xvals = append(xvals, float64(row))
				yvals = append(yvals, float64(cell.Note))
			}
		}
		if len(xvals) == 0 {
			continue
		}
		series = append(series, chart.ContinuousSeries{
			Style:   chart.Style{DotWidth: 3},
			XValues: xvals,
			YValues: yvals,
		})
	}
	if len(series) == 0 {
		logger.Print("no pitched notes to chart")
		return nil
	}
	graph := chart.Chart{Series: series}
	fh, err := os.Create(path)
	if err != nil {
		return err
	}
	defer fh.Close()
	return graph.Render(chart.SVG, fh)
}

// playInstrument renders one sampler instrument's PCM as float32 mono.
func playInstrument(song *importer.Song, id int) error {
	var inst *importer.Instrument
	for i := range song.Instruments {
		if song.Instruments[i].ID == id {
			inst = &song.Instruments[i]
			break
		}
	}
	if inst == nil || inst.Kind != importer.InstrumentSampler || len(inst.Sample.Data) == 0 {
		logger.Printf("instrument %d has no PCM", id)
		return nil
	}
	rate := inst.Sample.Rate
	if rate <= 0 {
		rate = 8363
	}

	op := &oto.NewContextOptions{
		SampleRate:   rate,
		ChannelCount: 1,
		Format:       oto.FormatFloat32LE,
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return err
	}
	<-ready

	buf := new(bytes.Buffer)
	for _, s := range inst.Sample.Data {
		binary.Write(buf, binary.LittleEndian, float32(s)/128)
	}
	player := ctx.NewPlayer(buf)
	player.Play()
	for player.IsPlaying() {
		time.Sleep(10 * time.Millisecond)
	}
	return player.Close()
}
