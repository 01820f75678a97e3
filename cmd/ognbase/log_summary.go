package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"ognbase/internal/protocol"
	"ognbase/internal/replay"
)

type protocolSummary struct {
	Frames  int
	Decoded int
	Rejects map[string]int
}

type logSummary struct {
	Segments    int
	Frames      int
	MaxDuration time.Duration
	Addresses   int
	ByProtocol  map[protocol.ID]*protocolSummary
}

// summarizeFrameLog decodes every frame without the plausibility filter;
// the summary is about what was on the air, not what the station accepted.
func summarizeFrameLog(records []replay.Record, table *protocol.Table) logSummary {
	s := logSummary{ByProtocol: map[protocol.ID]*protocolSummary{}}
	if len(records) == 0 {
		return s
	}
	if table == nil {
		table = protocol.NewTable()
	}

	addrs := map[uint32]struct{}{}
	origin := time.Duration(0)
	hasFrames := false
	segments := 0

	for _, r := range records {
		if r.Frame == nil {
			segments++
			origin = r.At
			continue
		}
		hasFrames = true

		s.Frames++
		at := r.At - origin
		if at > s.MaxDuration {
			s.MaxDuration = at
		}

		ps := s.ByProtocol[r.Protocol]
		if ps == nil {
			ps = &protocolSummary{Rejects: map[string]int{}}
			s.ByProtocol[r.Protocol] = ps
		}
		ps.Frames++

		st, err := table.Decode(r.Protocol, r.Frame)
		if err != nil {
			ps.Rejects[rejectName(err)]++
			continue
		}
		ps.Decoded++
		addrs[st.Addr] = struct{}{}
	}
	if segments == 0 && hasFrames {
		segments = 1
	}
	s.Segments = segments
	s.Addresses = len(addrs)
	return s
}

func rejectName(err error) string {
	switch {
	case errors.Is(err, protocol.ErrEmptyFrame):
		return "empty"
	case errors.Is(err, protocol.ErrChecksum):
		return "checksum"
	case errors.Is(err, protocol.ErrFEC):
		return "fec"
	case errors.Is(err, protocol.ErrShortFrame):
		return "short"
	case errors.Is(err, protocol.ErrPNETPadding):
		return "pnet"
	default:
		return "malformed"
	}
}

func printLogSummary(w io.Writer, path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return fmt.Errorf("path is empty")
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	recs, err := replay.NewReader(f).ReadAll()
	if err != nil {
		return err
	}

	s := summarizeFrameLog(recs, nil)

	fmt.Fprintf(w, "path: %s\n", path)
	fmt.Fprintf(w, "segments: %d\n", s.Segments)
	fmt.Fprintf(w, "frames: %d\n", s.Frames)
	fmt.Fprintf(w, "addresses: %d\n", s.Addresses)
	fmt.Fprintf(w, "max_duration: %s\n", s.MaxDuration)

	ids := make([]protocol.ID, 0, len(s.ByProtocol))
	for id := range s.ByProtocol {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fmt.Fprintf(w, "protocols:\n")
	for _, id := range ids {
		ps := s.ByProtocol[id]
		fmt.Fprintf(w, "  %s: frames=%d decoded=%d", id, ps.Frames, ps.Decoded)
		reasons := make([]string, 0, len(ps.Rejects))
		for k := range ps.Rejects {
			reasons = append(reasons, k)
		}
		sort.Strings(reasons)
		for _, k := range reasons {
			fmt.Fprintf(w, " %s=%d", k, ps.Rejects[k])
		}
		fmt.Fprintln(w)
	}
	return nil
}
