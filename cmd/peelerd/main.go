// Command peelerd runs the peeler against a recorded or live
// electrode source and serves a live monitor over HTTP+WebSocket.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ephyslab/peeler/internal/audio"
	"github.com/ephyslab/peeler/internal/catalogue"
	"github.com/ephyslab/peeler/internal/datasource"
	"github.com/ephyslab/peeler/internal/peeler"
	"github.com/ephyslab/peeler/internal/segment"
	"github.com/ephyslab/peeler/internal/server"
)

func main() {
	addr := flag.String("addr", "0.0.0.0:8080", "monitor address")
	catPath := flag.String("catalogue", "", "catalogue JSON path (required)")
	sourceDir := flag.String("source-dir", "", "recorded-segment directory (file mode)")
	live := flag.Bool("live", false, "capture live instead of replaying source-dir")
	sampleRate := flag.Float64("sample-rate", 20000, "live capture sample rate (live mode only)")
	channels := flag.Int("channels", 1, "live capture channel count (live mode only)")
	framesPerBuf := flag.Int("frames-per-buf", audio.DefaultFramesPerBuf, "live capture frames per buffer (live mode only)")
	chunkSize := flag.Int("chunksize", peeler.DefaultChunkSize, "chunk size in samples")
	nPeelLevel := flag.Int("n-peel-level", peeler.DefaultNPeelLevel, "peel rounds per chunk")
	engine := flag.String("preprocessor", "numpy", "preprocessor engine name")
	chanGrp := flag.Int("chan-grp", 0, "channel group to process")
	listDevices := flag.Bool("list-devices", false, "list audio devices and exit")
	flag.Parse()

	if err := audio.Init(); err != nil {
		log.Fatalf("initialize PortAudio: %v", err)
	}
	defer audio.Terminate()

	if *listDevices {
		if err := audio.PrintDevices(); err != nil {
			log.Fatalf("list devices: %v", err)
		}
		return
	}

	if *catPath == "" {
		log.Fatal("-catalogue is required")
	}
	cat, err := catalogue.Load(*catPath)
	if err != nil {
		log.Fatalf("load catalogue: %v", err)
	}

	dio, err := openSource(*live, *sourceDir, *sampleRate, *channels, *framesPerBuf)
	if err != nil {
		log.Fatalf("open data source: %v", err)
	}
	defer dio.Close()

	cfg := peeler.Config{
		Catalogue:          cat,
		NPeelLevel:         *nPeelLevel,
		ChunkSize:          *chunkSize,
		PreprocessorEngine: *engine,
		SampleRate:         dio.SampleRate(),
		NBChannel:          dio.NbChannel(*chanGrp),
		SourceDType:        dio.SourceDType(),
	}
	driver, err := peeler.NewDriver(cfg)
	if err != nil {
		log.Fatalf("build driver: %v", err)
	}

	handlers := server.NewHandlers()
	srv := server.NewServer(*addr, handlers)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nShutting down...")
		audio.Terminate()
		os.Exit(0)
	}()

	go runSegments(driver, dio, *chanGrp, *chunkSize, handlers)

	if err := srv.Start(); err != nil {
		log.Fatalf("monitor server: %v", err)
	}
}

// openSource builds the DataIO backend: a replayed recording, or a
// live capture when -live is set.
func openSource(live bool, sourceDir string, sampleRate float64, channels, framesPerBuf int) (datasource.DataIO, error) {
	if live {
		return datasource.NewLiveCapture(sampleRate, channels, framesPerBuf, nil, nil)
	}
	if sourceDir == "" {
		return nil, fmt.Errorf("-source-dir is required unless -live is set")
	}
	return datasource.OpenFileSource(sourceDir)
}

// runSegments processes every segment the source exposes, in order,
// reporting progress through handlers. An error stops that segment's
// run and is logged rather than crashing the monitor server; the
// remaining segments still run.
func runSegments(driver *peeler.Driver, dio datasource.DataIO, chanGrp, chunkSize int, handlers *server.Handlers) {
	for segNum := 0; segNum < dio.NbSegment(); segNum++ {
		r := segment.NewRunner(driver, dio, segNum, chanGrp, chunkSize, handlers)
		if err := r.Run(); err != nil {
			log.Printf("segment %d: %v", segNum, err)
		}
	}
}
