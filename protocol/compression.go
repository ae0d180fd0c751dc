package protocol

// CompressionCodec names a compression applied to segment page payloads.
type CompressionCodec int

const (
	// CompressionNone stores page payloads uncompressed.
	CompressionNone CompressionCodec = iota
	// CompressionSnappy applies snappy framing to page payloads.
	CompressionSnappy
	// CompressionGzip applies gzip to page payloads.
	CompressionGzip
)

// Validate returns an error if the CompressionCodec is not well-formed.
func (c CompressionCodec) Validate() error {
	switch c {
	case CompressionNone, CompressionSnappy, CompressionGzip:
		return nil
	default:
		return NewValidationError("invalid compression codec (%d)", c)
	}
}

// String returns a human-readable representation of the codec.
func (c CompressionCodec) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionSnappy:
		return "snappy"
	case CompressionGzip:
		return "gzip"
	default:
		return "invalid"
	}
}

// ToExtension returns the file extension of the codec applied to a segment.
func (c CompressionCodec) ToExtension() string {
	switch c {
	case CompressionSnappy:
		return ".sz"
	case CompressionGzip:
		return ".gz"
	default:
		return ""
	}
}

// CompressionCodecFromExtension maps a file extension to its CompressionCodec.
func CompressionCodecFromExtension(ext string) (CompressionCodec, error) {
	switch ext {
	case "":
		return CompressionNone, nil
	case ".sz":
		return CompressionSnappy, nil
	case ".gz":
		return CompressionGzip, nil
	default:
		return CompressionNone, NewValidationError("unrecognized codec extension (%s)", ext)
	}
}
