package flv

import (
	"io"

	oryxflv "github.com/ossrs/go-oryx-lib/flv"
	"github.com/pkg/errors"
)

// Writer writes an FLV stream: the file header once, then tags, each followed by its previous tag size.
type Writer struct {
	muxer oryxflv.Muxer
}

func NewWriter(w io.Writer) (*Writer, error) {
	muxer, err := oryxflv.NewMuxer(w)
	if err != nil {
		return nil, errors.Wrap(err, "create flv muxer")
	}
	return &Writer{muxer: muxer}, nil
}

// WriteHeader writes the 9-byte FLV header and the zero previous tag size after it.
func (w *Writer) WriteHeader(hasAudio, hasVideo bool) error {
	return w.muxer.WriteHeader(hasVideo, hasAudio)
}

func (w *Writer) WriteTag(tag Tag) error {
	return w.muxer.WriteTag(oryxflv.TagType(tag.Type), tag.Timestamp, tag.Data)
}
