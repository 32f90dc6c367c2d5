package artifact

import (
	"encoding/binary"
	"math"

	apperrors "github.com/openmusicplayer/mediagrab/internal/errors"
)

// DefaultScale divides the nominal size to get the payload length.
const DefaultScale = 1024

// Descriptor is everything the producer needs to synthesize a file.
type Descriptor struct {
	Title    string
	Duration string
	Format   Format
	Quality  string
}

// Artifact is a synthesized placeholder file.
type Artifact struct {
	Filename string
	MIMEType string
	Data     []byte
	// Seconds is the playback length the payload declares.
	Seconds int
}

// Size returns the payload length in bytes.
func (a *Artifact) Size() int64 { return int64(len(a.Data)) }

// Producer synthesizes placeholder media payloads. It holds no mutable
// state and is safe for concurrent use.
type Producer struct {
	scale int64
}

// NewProducer returns a producer whose payloads are the nominal size divided
// by scale. Non-positive scales use DefaultScale.
func NewProducer(scale int64) *Producer {
	if scale <= 0 {
		scale = DefaultScale
	}
	return &Producer{scale: scale}
}

// Produce builds the artifact described by d.
func (p *Producer) Produce(d Descriptor) (*Artifact, error) {
	if !d.Format.Valid() {
		return nil, apperrors.ProducerError("unknown format: " + string(d.Format))
	}

	name := SanitizeFilename(d.Title)
	if name == "" {
		return nil, apperrors.ProducerError("title is empty after sanitizing")
	}

	seconds := ParseDuration(d.Duration)
	length := EstimatedSize(d.Format, d.Quality) / p.scale

	var data []byte
	switch d.Format {
	case FormatMP3:
		data, seconds = synthWAV(length, seconds)
	case FormatMP4:
		data = synthMP4(length)
	case FormatWebM:
		data = synthWebM(length)
	}

	return &Artifact{
		Filename: name + d.Format.Extension(),
		MIMEType: d.Format.MIMEType(),
		Data:     data,
		Seconds:  seconds,
	}, nil
}

const (
	wavHeaderSize = 44
	wavChannels   = 2
	wavBitDepth   = 16
	wavFrameSize  = wavChannels * wavBitDepth / 8
	toneHz        = 440.0
	toneAmplitude = 0.1
)

// synthWAV writes a 16-bit stereo PCM file of at most length bytes. The
// sample rate is picked so the data plays for exactly seconds. When that
// would need less than 1Hz the rate stays at 1Hz and the playback is
// shortened instead; the returned seconds is what the file declares.
func synthWAV(length int64, seconds int) ([]byte, int) {
	maxFrames := max((length-wavHeaderSize)/wavFrameSize, 0)
	rate := max(maxFrames/int64(seconds), 1)
	frames := min(rate*int64(seconds), maxFrames)
	dataSize := frames * wavFrameSize

	buf := make([]byte, wavHeaderSize+dataSize)
	le := binary.LittleEndian
	copy(buf[0:], "RIFF")
	le.PutUint32(buf[4:], uint32(36+dataSize))
	copy(buf[8:], "WAVE")
	copy(buf[12:], "fmt ")
	le.PutUint32(buf[16:], 16)
	le.PutUint16(buf[20:], 1) // PCM
	le.PutUint16(buf[22:], wavChannels)
	le.PutUint32(buf[24:], uint32(rate))
	le.PutUint32(buf[28:], uint32(rate*wavFrameSize))
	le.PutUint16(buf[32:], wavFrameSize)
	le.PutUint16(buf[34:], wavBitDepth)
	copy(buf[36:], "data")
	le.PutUint32(buf[40:], uint32(dataSize))

	fade := float64(rate) * 0.1
	off := wavHeaderSize
	for i := int64(0); i < frames; i++ {
		amp := toneAmplitude
		switch {
		case float64(i) < fade:
			amp *= float64(i) / fade
		case float64(i) > float64(frames)-fade:
			amp *= float64(frames-i) / fade
		}
		sample := int16(math.Sin(2*math.Pi*toneHz*float64(i)/float64(rate)) * amp * math.MaxInt16)
		for c := 0; c < wavChannels; c++ {
			le.PutUint16(buf[off:], uint16(sample))
			off += 2
		}
	}
	return buf, int(frames / rate)
}

var ftypBox = []byte{
	0x00, 0x00, 0x00, 0x1C, 'f', 't', 'y', 'p',
	'i', 's', 'o', 'm', 0x00, 0x00, 0x02, 0x00,
	'i', 's', 'o', 'm', 'i', 's', 'o', '2', 'm', 'p', '4', '1',
}

// synthMP4 writes an ftyp box followed by an mdat box filling the rest.
func synthMP4(length int64) []byte {
	minLen := int64(len(ftypBox) + 8)
	if length < minLen {
		length = minLen
	}
	buf := make([]byte, length)
	copy(buf, ftypBox)

	mdat := buf[len(ftypBox):]
	binary.BigEndian.PutUint32(mdat, uint32(len(mdat)))
	copy(mdat[4:], "mdat")
	fillPattern(mdat[8:])
	return buf
}

var ebmlHeader = []byte{
	0x1A, 0x45, 0xDF, 0xA3, 0x9F, 0x42, 0x86, 0x81,
	0x01, 0x42, 0x82, 0x84, 0x77, 0x65, 0x62, 0x6D,
}

// synthWebM writes an EBML header declaring the webm doctype, then filler.
func synthWebM(length int64) []byte {
	if length < int64(len(ebmlHeader)) {
		length = int64(len(ebmlHeader))
	}
	buf := make([]byte, length)
	copy(buf, ebmlHeader)
	fillPattern(buf[len(ebmlHeader):])
	return buf
}

func fillPattern(b []byte) {
	for i := range b {
		b[i] = byte(i % 251)
	}
}
