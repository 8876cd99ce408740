// Package catalog holds the immutable, process-wide ordered sequence of
// frame records (FrameCatalog) and the loader that builds it from the
// frames-list file plus optional LSC metadata, grounded on the original
// dataset-frames.cpp and on the teacher's own little-endian binary
// decoding style in utils.go.
package catalog

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/siret/somhunter-go/internal/errs"
	"github.com/siret/somhunter-go/internal/types"
)

// VideoFrame is one indexed keyframe. Metadata fields are optional because
// not every dataset carries a timestamp for every frame.
type VideoFrame struct {
	FrameID    types.FrameID
	VideoID    types.VideoID
	ShotID     types.ShotID
	FrameNum   types.FrameNum
	Weekday    types.Weekday
	Hour       types.Hour
	Year       types.Year
	ExternalID string // LSC id, empty if absent
	HasTime    bool
	Filename   string
}

// FilenameOffsets describes how to slice VideoID/ShotID/FrameNum out of a
// frames-list filename, mirroring the filename_offsets.* config block.
type FilenameOffsets struct {
	FilenameOff int
	VidIDOff    int
	VidIDLen    int
	ShotIDOff   int
	ShotIDLen   int
	FrameNumOff int
	FrameNumLen int
}

// FrameCatalog is the immutable, shared-read-only sequence of frames,
// plus the per-video frame-index ranges needed for temporal neighbor
// lookups and VideoDetail displays.
type FrameCatalog struct {
	frames      []VideoFrame
	videoRanges map[types.VideoID][2]int // [start, end) indices into frames, sorted by FrameNum
}

// Len returns the number of frames.
func (c *FrameCatalog) Len() int { return len(c.frames) }

// Frame returns the frame record at index i. Panics on out-of-range i,
// the same contract the teacher's in-memory slices carry: callers must
// range-check against Len() first, exactly as ScoreModel indices do.
func (c *FrameCatalog) Frame(i types.FrameID) VideoFrame { return c.frames[i] }

// SameVideo reports whether frames a and b belong to the same video.
func (c *FrameCatalog) SameVideo(a, b types.FrameID) bool {
	if int(a) < 0 || int(a) >= len(c.frames) || int(b) < 0 || int(b) >= len(c.frames) {
		return false
	}
	return c.frames[a].VideoID == c.frames[b].VideoID
}

// NextInVideo returns up to `span-1` frame ids following i that belong to
// the same video, stopping at the video boundary — used by temporal
// fusion's lookahead window (KW_TEMPORAL_SPAN) and by top_n_with_context.
func (c *FrameCatalog) NextInVideo(i types.FrameID, span int) []types.FrameID {
	if int(i) < 0 || int(i) >= len(c.frames) {
		return nil
	}
	vid := c.frames[i].VideoID
	out := make([]types.FrameID, 0, span-1)
	for k := 1; k < span && int(i)+k < len(c.frames); k++ {
		j := types.FrameID(int(i) + k)
		if c.frames[j].VideoID != vid {
			break
		}
		out = append(out, j)
	}
	return out
}

// PrevInVideo returns the frame immediately preceding i in the same
// video, if any — the mirror of NextInVideo(i, 2), used by
// top_n_with_context to fill a row's leading cells.
func (c *FrameCatalog) PrevInVideo(i types.FrameID) (types.FrameID, bool) {
	if int(i) <= 0 || int(i) >= len(c.frames) {
		return 0, false
	}
	j := types.FrameID(int(i) - 1)
	if c.frames[j].VideoID != c.frames[i].VideoID {
		return 0, false
	}
	return j, true
}

// VideoFrames returns all frame ids of the video containing anchor, in
// ascending frame-number order, for the VideoDetail display.
func (c *FrameCatalog) VideoFrames(anchor types.FrameID) []types.FrameID {
	if int(anchor) < 0 || int(anchor) >= len(c.frames) {
		return nil
	}
	vid := c.frames[anchor].VideoID
	rng, ok := c.videoRanges[vid]
	if !ok {
		return nil
	}
	out := make([]types.FrameID, 0, rng[1]-rng[0])
	for i := rng[0]; i < rng[1]; i++ {
		out = append(out, types.FrameID(i))
	}
	return out
}

// Load reads the one-line-per-frame filename list, parsing VideoID/ShotID/
// FrameNum out of each filename per offsets, and optionally overlays LSC
// timestamp metadata from a ';'-separated CSV
// (index,_,ISO-datetime,_,_,weekday,_,LSC_id).
func Load(framesListFile string, offsets FilenameOffsets, lscMetadataFile string, maxFilenameLen int) (*FrameCatalog, error) {
	f, err := os.Open(framesListFile)
	if err != nil {
		return nil, errs.WrapLoad("catalog.load", err)
	}
	defer f.Close()

	var frames []VideoFrame
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	idx := 0
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if maxFilenameLen > 0 && len(line) > maxFilenameLen {
			return nil, errs.WrapLoad("catalog.load", fmt.Errorf("line %d: filename %q exceeds max length %d", idx, line, maxFilenameLen))
		}
		vf, err := parseFilename(line, offsets, types.FrameID(idx))
		if err != nil {
			return nil, errs.WrapLoad("catalog.load", fmt.Errorf("line %d: %w", idx, err))
		}
		frames = append(frames, vf)
		idx++
	}
	if err := sc.Err(); err != nil {
		return nil, errs.WrapLoad("catalog.load", err)
	}
	if len(frames) == 0 {
		return nil, errs.WrapLoad("catalog.load", fmt.Errorf("frames list %q is empty", framesListFile))
	}

	if lscMetadataFile != "" {
		if err := overlayLSC(frames, lscMetadataFile); err != nil {
			return nil, err
		}
	}

	return &FrameCatalog{frames: frames, videoRanges: buildVideoRanges(frames)}, nil
}

func parseFilename(line string, off FilenameOffsets, id types.FrameID) (VideoFrame, error) {
	slice := func(o, l int) (string, error) {
		if l <= 0 {
			return "", nil
		}
		if o < 0 || o+l > len(line) {
			return "", fmt.Errorf("offset %d+%d out of bounds for %q", o, l, line)
		}
		return line[o : o+l], nil
	}

	vidStr, err := slice(off.VidIDOff, off.VidIDLen)
	if err != nil {
		return VideoFrame{}, err
	}
	shotStr, err := slice(off.ShotIDOff, off.ShotIDLen)
	if err != nil {
		return VideoFrame{}, err
	}
	numStr, err := slice(off.FrameNumOff, off.FrameNumLen)
	if err != nil {
		return VideoFrame{}, err
	}

	vid, _ := strconv.Atoi(strings.TrimLeft(vidStr, "vV_0"))
	shot, _ := strconv.Atoi(strings.TrimLeft(shotStr, "sS_0"))
	num, _ := strconv.Atoi(strings.TrimLeft(numStr, "_0"))

	filename := line
	if off.FilenameOff > 0 && off.FilenameOff <= len(line) {
		filename = line[off.FilenameOff:]
	}

	return VideoFrame{
		FrameID:  id,
		VideoID:  types.VideoID(vid),
		ShotID:   types.ShotID(shot),
		FrameNum: types.FrameNum(num),
		Filename: filename,
	}, nil
}

func overlayLSC(frames []VideoFrame, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errs.WrapLoad("catalog.lsc", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = ';'
	r.FieldsPerRecord = -1

	for {
		rec, err := r.Read()
		if err != nil {
			break
		}
		if len(rec) < 8 {
			continue
		}
		idx, err := strconv.Atoi(strings.TrimSpace(rec[0]))
		if err != nil || idx < 0 || idx >= len(frames) {
			continue
		}
		ts, err := time.Parse(time.RFC3339, strings.TrimSpace(rec[2]))
		if err != nil {
			continue
		}
		weekday, _ := strconv.Atoi(strings.TrimSpace(rec[5]))
		frames[idx].HasTime = true
		frames[idx].Hour = types.Hour(ts.Hour())
		frames[idx].Year = types.Year(ts.Year())
		frames[idx].Weekday = types.Weekday(weekday)
		frames[idx].ExternalID = strings.TrimSpace(rec[7])
	}
	return nil
}

func buildVideoRanges(frames []VideoFrame) map[types.VideoID][2]int {
	ranges := make(map[types.VideoID][2]int)
	for i, f := range frames {
		r, ok := ranges[f.VideoID]
		if !ok {
			ranges[f.VideoID] = [2]int{i, i + 1}
			continue
		}
		r[1] = i + 1
		ranges[f.VideoID] = r
	}
	return ranges
}
