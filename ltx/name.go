package ltx

import (
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	pb "go.litevfs.dev/core/protocol"
)

// Prefix is the store path prefix under which segments of a replica are kept.
const Prefix = "ltx/"

// SegmentInfo is segment metadata recoverable from a content name alone.
type SegmentInfo struct {
	TxID       pb.TxID
	CommitTime time.Time
	Codec      pb.CompressionCodec
}

// ContentName returns the content-addressed base file name of the segment.
// Names sort lexicographically in TxID order.
func (i SegmentInfo) ContentName() string {
	return fmt.Sprintf("%016x-%016x%s", uint64(i.TxID),
		uint64(i.CommitTime.UnixNano()), i.Codec.ToExtension())
}

// ContentPath returns the store path of the segment, relative to the replica root.
func (i SegmentInfo) ContentPath() string { return Prefix + i.ContentName() }

// ParseContentName parses a ContentName into a SegmentInfo, or returns an error.
func ParseContentName(name string) (SegmentInfo, error) {
	var i SegmentInfo

	var ext = path.Ext(name)
	if ext == ".sz" || ext == ".gz" {
		name = name[:len(name)-len(ext)]
	} else {
		ext = ""
	}

	if fields := strings.Split(name, "-"); len(fields) != 2 {
		return SegmentInfo{}, pb.NewValidationError("wrong segment name format: %v", name)
	} else if txid, err := strconv.ParseUint(fields[0], 16, 64); err != nil {
		return SegmentInfo{}, pb.ExtendContext(&pb.ValidationError{Err: err}, "TxID")
	} else if commit, err := strconv.ParseUint(fields[1], 16, 64); err != nil {
		return SegmentInfo{}, pb.ExtendContext(&pb.ValidationError{Err: err}, "CommitTime")
	} else if cc, err := pb.CompressionCodecFromExtension(ext); err != nil {
		return SegmentInfo{}, err
	} else if txid == 0 {
		return SegmentInfo{}, pb.NewValidationError("zero TxID in segment name: %v", name)
	} else {
		i = SegmentInfo{
			TxID:       pb.TxID(txid),
			CommitTime: time.Unix(0, int64(commit)).UTC(),
			Codec:      cc,
		}
	}
	return i, nil
}
