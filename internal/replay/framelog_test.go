package replay

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"ognbase/internal/protocol"
)

type fakeSleeper struct {
	slept []time.Duration
}

func (fs *fakeSleeper) Sleep(d time.Duration) {
	fs.slept = append(fs.slept, d)
}

func TestReaderReadAll(t *testing.T) {
	in := strings.NewReader(`
# comment

START
0,legacy, 0102
10,fanet,0a 0b
`)

	recs, err := NewReader(in).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll() error: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("expected 3 records, got %d", len(recs))
	}
	if recs[0].Frame != nil {
		t.Fatalf("expected START marker (nil frame), got %v", recs[0].Frame)
	}
	if recs[1].Protocol != protocol.Legacy || !reflect.DeepEqual(recs[1].Frame, []byte{0x01, 0x02}) {
		t.Fatalf("unexpected record 1: %+v", recs[1])
	}
	if recs[2].At != 10*time.Nanosecond || recs[2].Protocol != protocol.FANET {
		t.Fatalf("unexpected record 2: %+v", recs[2])
	}
	if !reflect.DeepEqual(recs[2].Frame, []byte{0x0a, 0x0b}) {
		t.Fatalf("unexpected frame 2: %x", recs[2].Frame)
	}
}

func TestReaderReadAll_InvalidLines(t *testing.T) {
	for _, line := range []string{
		"not-a-valid-line",
		"10,0102",
		"10,zigbee,0102",
		"-5,legacy,0102",
		"5,legacy,zz",
	} {
		if _, err := NewReader(strings.NewReader(line + "\n")).ReadAll(); err == nil {
			t.Fatalf("%q: expected error", line)
		}
	}
}

func TestPlay_RespectsTimingAndStart(t *testing.T) {
	var frames [][]byte
	fs := &fakeSleeper{}

	recs := []Record{
		{At: 1 * time.Second},
		{At: 1 * time.Second, Frame: []byte{0xAA}},
		{At: 1*time.Second + 100*time.Nanosecond, Frame: []byte{0xBB}},
		{At: 2 * time.Second},
		{At: 2*time.Second + 50*time.Nanosecond, Frame: []byte{0xCC}},
	}

	err := Play(recs, 1.0, false, fs, func(rec Record) error {
		frames = append(frames, append([]byte(nil), rec.Frame...))
		return nil
	})
	if err != nil {
		t.Fatalf("Play() error: %v", err)
	}

	wantFrames := [][]byte{{0xAA}, {0xBB}, {0xCC}}
	if !reflect.DeepEqual(frames, wantFrames) {
		t.Fatalf("frames = %x, want %x", frames, wantFrames)
	}
	if !reflect.DeepEqual(fs.slept, []time.Duration{100 * time.Nanosecond}) {
		t.Fatalf("slept = %v, want [100ns]", fs.slept)
	}
}

func TestPlay_SpeedMultiplier(t *testing.T) {
	fs := &fakeSleeper{}
	recs := []Record{
		{At: 0, Frame: []byte{0x01}},
		{At: 100 * time.Nanosecond, Frame: []byte{0x02}},
	}

	if err := Play(recs, 2.0, false, fs, func(Record) error { return nil }); err != nil {
		t.Fatalf("Play() error: %v", err)
	}
	if !reflect.DeepEqual(fs.slept, []time.Duration{50 * time.Nanosecond}) {
		t.Fatalf("slept = %v, want [50ns]", fs.slept)
	}
}

func TestPlay_InvalidSpeed(t *testing.T) {
	recs := []Record{{At: 0, Frame: []byte{0x01}}}
	if err := Play(recs, 0, false, nil, func(Record) error { return nil }); err == nil {
		t.Fatalf("expected error")
	}
}

func TestWriter_WritesExpectedFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")

	w, err := CreateWriter(path)
	if err != nil {
		t.Fatalf("CreateWriter() error: %v", err)
	}
	w.start = time.Unix(0, 0)

	if err := w.WriteFrame(time.Unix(0, 20), protocol.OGNTP, []byte{0x01, 0x02}); err != nil {
		t.Fatalf("WriteFrame() error: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if err := w.WriteFrame(time.Unix(0, 30), protocol.OGNTP, []byte{0x03}); err == nil {
		t.Fatalf("write after close should fail")
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error: %v", err)
	}
	if string(b) != "START\n20,ogntp,0102\n" {
		t.Fatalf("unexpected file contents: %q", string(b))
	}
}

func TestRecordReplay_FramesDecodeAfterRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rx.log")
	w, err := CreateWriter(path)
	if err != nil {
		t.Fatalf("CreateWriter() error: %v", err)
	}

	tbl := protocol.NewTable()
	now := time.Now()
	in := []protocol.AircraftState{
		{Addr: 0xDD0001, AddrType: protocol.AddrFLARM, LatDeg: 47.1, LonDeg: 8.2, AltM: 900},
		{Addr: 0x4B1234, AddrType: protocol.AddrICAO, LatDeg: 46.9, LonDeg: 7.4, AltM: 1500},
	}
	ids := []protocol.ID{protocol.Legacy, protocol.OGNTP}
	for i, st := range in {
		buf := make([]byte, tbl.MaxFrameSize())
		n := tbl.Encode(ids[i], buf, &st)
		if n == 0 {
			t.Fatalf("encode %v failed", ids[i])
		}
		if err := w.WriteFrame(now, ids[i], buf[:n]); err != nil {
			t.Fatalf("WriteFrame() error: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	rc, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer rc.Close()
	recs, err := NewReader(rc).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll() error: %v", err)
	}

	var got []uint32
	fs := &fakeSleeper{}
	err = Play(recs, 1.0, false, fs, func(rec Record) error {
		st, err := tbl.Decode(rec.Protocol, rec.Frame)
		if err != nil {
			return err
		}
		got = append(got, st.Addr)
		return nil
	})
	if err != nil {
		t.Fatalf("Play() error: %v", err)
	}
	if len(fs.slept) != 0 {
		t.Fatalf("expected no sleeps, got %v", fs.slept)
	}
	if !reflect.DeepEqual(got, []uint32{0xDD0001, 0x4B1234}) {
		t.Fatalf("addresses = %x", got)
	}
}
