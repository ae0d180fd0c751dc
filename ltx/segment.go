package ltx

import (
	"encoding/binary"
	"io"
	"sort"
	"time"

	"github.com/zeebo/xxh3"
	"go.litevfs.dev/core/codecs"
	pb "go.litevfs.dev/core/protocol"
)

// Magic prefixes every marshalled segment.
const Magic = "LTXS"

// Version is the current segment framing version.
const Version uint8 = 1

// headerSize is the fixed size of the post-magic segment header:
// version(1) + txid(8) + commitTime(8) + pageSize(4) + pageCount(4) +
// numUpdates(4) + checksum(8).
const headerSize = 37

// Header describes a transaction-log segment.
type Header struct {
	// TxID is the monotonic transaction index of the segment.
	TxID pb.TxID
	// CommitTime is the wall-clock time at which the producer committed
	// the transaction.
	CommitTime time.Time
	// PageSize is the fixed database page size, in bytes.
	PageSize uint32
	// PageCount is the total database page count as of this transaction.
	// It determines the database file size at this TxID.
	PageCount uint32
	// Checksum is the xxh3 sum of the concatenated page post-images.
	Checksum uint64
}

// PageUpdate is the full post-image of one page as of the segment's TxID.
type PageUpdate struct {
	PageNo uint32
	Data   []byte
}

// Segment is one committed batch of page post-images.
type Segment struct {
	Header Header
	// Pages are the updated pages, ordered by strictly-increasing PageNo.
	Pages []PageUpdate
}

// Validate returns an error if the Segment is not well-formed.
func (s *Segment) Validate() error {
	if s.Header.TxID == 0 {
		return pb.NewValidationError("zero TxID")
	} else if s.Header.PageSize == 0 {
		return pb.NewValidationError("zero PageSize")
	} else if s.Header.PageCount == 0 {
		return pb.NewValidationError("zero PageCount")
	}
	var last uint32
	for _, p := range s.Pages {
		if p.PageNo <= last {
			return pb.NewValidationError("page numbers not strictly increasing (%d after %d)", p.PageNo, last)
		} else if p.PageNo > s.Header.PageCount {
			return pb.NewValidationError("page %d exceeds PageCount %d", p.PageNo, s.Header.PageCount)
		} else if uint32(len(p.Data)) != s.Header.PageSize {
			return pb.NewValidationError("page %d has %d bytes (expected %d)", p.PageNo, len(p.Data), s.Header.PageSize)
		}
		last = p.PageNo
	}
	return nil
}

// Page returns the post-image of |pageNo| within the Segment, if present.
func (s *Segment) Page(pageNo uint32) ([]byte, bool) {
	var ind = sort.Search(len(s.Pages), func(i int) bool {
		return s.Pages[i].PageNo >= pageNo
	})
	if ind != len(s.Pages) && s.Pages[ind].PageNo == pageNo {
		return s.Pages[ind].Data, true
	}
	return nil, false
}

// Sum computes the xxh3 checksum over the Segment's page post-images.
func (s *Segment) Sum() uint64 {
	var hasher = xxh3.New()
	for _, p := range s.Pages {
		_, _ = hasher.Write(p.Data)
	}
	return hasher.Sum64()
}

// MarshalTo frames the Segment to the Writer, compressing page payloads with
// the given codec. It stamps Header.Checksum as a side effect.
func (s *Segment) MarshalTo(w io.Writer, codec pb.CompressionCodec) error {
	if err := s.Validate(); err != nil {
		return err
	}
	s.Header.Checksum = s.Sum()

	var header [len(Magic) + headerSize]byte
	copy(header[:], Magic)
	header[4] = Version
	binary.BigEndian.PutUint64(header[5:], uint64(s.Header.TxID))
	binary.BigEndian.PutUint64(header[13:], uint64(s.Header.CommitTime.UnixNano()))
	binary.BigEndian.PutUint32(header[21:], s.Header.PageSize)
	binary.BigEndian.PutUint32(header[25:], s.Header.PageCount)
	binary.BigEndian.PutUint32(header[29:], uint32(len(s.Pages)))
	binary.BigEndian.PutUint64(header[33:], s.Header.Checksum)

	if _, err := w.Write(header[:]); err != nil {
		return err
	}

	// Page directory is uncompressed, so that it can be skimmed cheaply.
	var dir = make([]byte, 4*len(s.Pages))
	for i, p := range s.Pages {
		binary.BigEndian.PutUint32(dir[4*i:], p.PageNo)
	}
	if _, err := w.Write(dir); err != nil {
		return err
	}

	var compressor, err = codecs.NewCodecWriter(w, codec)
	if err != nil {
		return err
	}
	for _, p := range s.Pages {
		if _, err = compressor.Write(p.Data); err != nil {
			return err
		}
	}
	return compressor.Close()
}

// ReadSegment reads and verifies a framed Segment from the Reader. The codec
// is recovered from the segment's content name, not the frame (see
// ParseContentName).
func ReadSegment(r io.Reader, codec pb.CompressionCodec) (*Segment, error) {
	var header [len(Magic) + headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, pb.NewValidationError("reading segment header: %s", err)
	} else if string(header[:4]) != Magic {
		return nil, pb.NewValidationError("invalid segment magic (%x)", header[:4])
	} else if header[4] != Version {
		return nil, pb.NewValidationError("unsupported segment version (%d)", header[4])
	}

	var s = &Segment{
		Header: Header{
			TxID:       pb.TxID(binary.BigEndian.Uint64(header[5:])),
			CommitTime: time.Unix(0, int64(binary.BigEndian.Uint64(header[13:]))).UTC(),
			PageSize:   binary.BigEndian.Uint32(header[21:]),
			PageCount:  binary.BigEndian.Uint32(header[25:]),
			Checksum:   binary.BigEndian.Uint64(header[33:]),
		},
	}
	var numUpdates = binary.BigEndian.Uint32(header[29:])

	var dir = make([]byte, 4*numUpdates)
	if _, err := io.ReadFull(r, dir); err != nil {
		return nil, pb.NewValidationError("reading page directory: %s", err)
	}

	var decompressor, err = codecs.NewCodecReader(r, codec)
	if err != nil {
		return nil, err
	}
	defer decompressor.Close()

	s.Pages = make([]PageUpdate, numUpdates)
	for i := range s.Pages {
		s.Pages[i].PageNo = binary.BigEndian.Uint32(dir[4*i:])
		s.Pages[i].Data = make([]byte, s.Header.PageSize)

		if _, err = io.ReadFull(decompressor, s.Pages[i].Data); err != nil {
			return nil, pb.NewValidationError("reading page %d: %s", s.Pages[i].PageNo, err)
		}
	}

	if sum := s.Sum(); sum != s.Header.Checksum {
		return nil, pb.NewValidationError("segment checksum mismatch (computed %x, header %x)",
			sum, s.Header.Checksum)
	}
	return s, s.Validate()
}
