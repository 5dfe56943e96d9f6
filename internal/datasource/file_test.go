package datasource

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/ephyslab/peeler/internal/labels"
	"github.com/ephyslab/peeler/internal/persist"
	"github.com/ephyslab/peeler/internal/protocol"
)

// encodeSamples interleaves a (T,C) chunk into a DATA frame payload,
// the inverse of fileChunkIterator.fill's deinterleaving.
func encodeSamples(chunk [][]float64) []byte {
	if len(chunk) == 0 {
		return nil
	}
	c := len(chunk[0])
	buf := make([]byte, 8*len(chunk)*c)
	off := 0
	for _, row := range chunk {
		for _, v := range row {
			binary.BigEndian.PutUint64(buf[off:off+8], math.Float64bits(v))
			off += 8
		}
	}
	return buf
}

func writeSegmentFile(t *testing.T, path string, h segmentHeader, rawChunks [][][]float64) {
	t.Helper()
	var buf bytes.Buffer

	hdrBytes, err := json.Marshal(h)
	if err != nil {
		t.Fatalf("marshal header: %v", err)
	}
	buf.Write(protocol.NewControlFrame(hdrBytes).Encode())

	for i, chunk := range rawChunks {
		frame := protocol.NewDataFrame(byte(i), encodeSamples(chunk))
		buf.Write(frame.Encode())
	}
	buf.Write((&protocol.Frame{Type: protocol.TypeFileEnd}).Encode())

	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatalf("write segment file: %v", err)
	}
}

func TestFileSource_IterOverChunk_RechunksAcrossFrameBoundaries(t *testing.T) {
	dir := t.TempDir()
	h := segmentHeader{SampleRate: 20000, NbChannel: 2, SourceDType: "float64", Length: 6}
	rawChunks := [][][]float64{
		{{1, 1}, {2, 2}, {3, 3}}, // raw frame 1: 3 samples
		{{4, 4}, {5, 5}, {6, 6}}, // raw frame 2: 3 samples
	}
	writeSegmentFile(t, filepath.Join(dir, "seg0.raw"), h, rawChunks)

	src, err := OpenFileSource(dir)
	if err != nil {
		t.Fatalf("OpenFileSource: %v", err)
	}
	defer src.Close()

	if src.NbSegment() != 1 {
		t.Fatalf("NbSegment = %d, want 1", src.NbSegment())
	}
	if src.SampleRate() != 20000 {
		t.Errorf("SampleRate = %v, want 20000", src.SampleRate())
	}
	if src.NbChannel(0) != 2 {
		t.Errorf("NbChannel = %d, want 2", src.NbChannel(0))
	}
	length, err := src.GetSegmentLength(0)
	if err != nil || length != 6 {
		t.Errorf("GetSegmentLength = (%d,%v), want (6,nil)", length, err)
	}

	// Ask for chunksize=4, which straddles the two underlying raw frames.
	it, err := src.IterOverChunk(0, 0, 4)
	if err != nil {
		t.Fatalf("IterOverChunk: %v", err)
	}

	pos, chunk, ok := it.Next()
	if !ok {
		t.Fatalf("Next: err=%v", it.Err())
	}
	if pos != 4 || len(chunk) != 4 {
		t.Fatalf("first chunk: pos=%d len=%d, want pos=4 len=4", pos, len(chunk))
	}
	if chunk[0][0] != 1 || chunk[3][0] != 4 {
		t.Errorf("first chunk values = %v, want samples 1..4", chunk)
	}

	pos, chunk, ok = it.Next()
	if !ok {
		t.Fatalf("Next (second): err=%v", it.Err())
	}
	if pos != 6 || len(chunk) != 2 {
		t.Fatalf("second chunk: pos=%d len=%d, want pos=6 len=2 (short final chunk)", pos, len(chunk))
	}

	if _, _, ok := it.Next(); ok {
		t.Fatal("Next after exhaustion should return ok=false")
	}
	if it.Err() != nil {
		t.Errorf("Err() after clean exhaustion = %v, want nil", it.Err())
	}
}

func TestFileSource_ProcessedSignalAndSpikeRoundTrip(t *testing.T) {
	dir := t.TempDir()
	h := segmentHeader{SampleRate: 20000, NbChannel: 1, SourceDType: "float64", Length: 2}
	writeSegmentFile(t, filepath.Join(dir, "seg0.raw"), h, [][][]float64{{{1}, {2}}})

	src, err := OpenFileSource(dir)
	if err != nil {
		t.Fatalf("OpenFileSource: %v", err)
	}
	defer src.Close()

	if err := src.SetSignalsChunk(0, 10, [][]float64{{0.5}, {1.5}}); err != nil {
		t.Fatalf("SetSignalsChunk: %v", err)
	}
	if err := src.FlushProcessedSignals(0); err != nil {
		t.Fatalf("FlushProcessedSignals: %v", err)
	}

	batch := []labels.Spike{{Index: 10, Label: 0, Jitter: 0.1}}
	if err := src.AppendSpikes(0, batch); err != nil {
		t.Fatalf("AppendSpikes: %v", err)
	}
	if err := src.FlushSpikes(0); err != nil {
		t.Fatalf("FlushSpikes: %v", err)
	}
	src.Close()

	sigFile, err := os.Open(filepath.Join(dir, "seg0.processed.bin"))
	if err != nil {
		t.Fatalf("open processed signal file: %v", err)
	}
	defer sigFile.Close()
	pos, chunk, err := persist.NewSignalReader(sigFile).ReadChunk()
	if err != nil {
		t.Fatalf("ReadChunk: %v", err)
	}
	if pos != 10 || chunk[0][0] != 0.5 || chunk[1][0] != 1.5 {
		t.Errorf("got pos=%d chunk=%v, want pos=10 chunk=[[0.5] [1.5]]", pos, chunk)
	}

	spkFile, err := os.Open(filepath.Join(dir, "seg0.spikes.bin"))
	if err != nil {
		t.Fatalf("open spike file: %v", err)
	}
	defer spkFile.Close()
	reader, err := persist.NewSpikeReader(spkFile)
	if err != nil {
		t.Fatalf("NewSpikeReader: %v", err)
	}
	got, err := reader.ReadBatch()
	if err != nil {
		t.Fatalf("ReadBatch: %v", err)
	}
	if len(got) != 1 || got[0].Index != 10 {
		t.Errorf("got %+v, want one spike at index 10", got)
	}
}
