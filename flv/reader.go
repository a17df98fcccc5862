package flv

import (
	"io"

	oryxflv "github.com/ossrs/go-oryx-lib/flv"
	"github.com/pkg/errors"
)

var ErrTagTooLarge = errors.New("flv: tag too large")

// Tags bigger than this are treated as a corrupt stream.
const MaxTagDataSize = 8 * 1024 * 1024

// Reader reads the tags of an FLV stream.
type Reader struct {
	demuxer    oryxflv.Demuxer
	headerDone bool
}

func NewReader(r io.Reader) (*Reader, error) {
	demuxer, err := oryxflv.NewDemuxer(r)
	if err != nil {
		return nil, errors.Wrap(err, "create flv demuxer")
	}
	return &Reader{demuxer: demuxer}, nil
}

// ReadHeader reads the FLV header and the previous tag size following it.
func (r *Reader) ReadHeader() (hasAudio, hasVideo bool, err error) {
	_, hasVideo, hasAudio, err = r.demuxer.ReadHeader()
	if err != nil {
		return false, false, errors.Wrap(err, "read flv header")
	}
	r.headerDone = true
	return hasAudio, hasVideo, nil
}

// ReadTag returns the next tag, reading the FLV header first if that wasn't done. At the end of the
// stream the error's cause is io.EOF.
func (r *Reader) ReadTag() (Tag, error) {
	if !r.headerDone {
		if _, _, err := r.ReadHeader(); err != nil {
			return Tag{}, err
		}
	}
	tagType, size, timestamp, err := r.demuxer.ReadTagHeader()
	if err != nil {
		return Tag{}, errors.Wrap(err, "read flv tag header")
	}
	if size > MaxTagDataSize {
		return Tag{}, errors.Wrapf(ErrTagTooLarge, "%d bytes", size)
	}
	data, err := r.demuxer.ReadTag(size)
	if err != nil {
		return Tag{}, errors.Wrap(err, "read flv tag")
	}
	// the upper bits are reserved and the filter flag
	return Tag{Type: uint8(tagType) & 0x1F, Timestamp: timestamp, Data: data}, nil
}
