package flv

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/pkg/errors"
)

func TestWriter_Header(t *testing.T) {
	tests := []struct {
		name     string
		hasAudio bool
		hasVideo bool
		flags    byte
	}{
		{"audioAndVideo", true, true, 0x05},
		{"audioOnly", true, false, 0x04},
		{"videoOnly", false, true, 0x01},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			w, err := NewWriter(&buf)
			if err != nil {
				t.Fatal(err)
			}
			if err := w.WriteHeader(tt.hasAudio, tt.hasVideo); err != nil {
				t.Fatal(err)
			}
			expected := []byte{'F', 'L', 'V', 1, tt.flags, 0, 0, 0, 9, 0, 0, 0, 0}
			if !bytes.Equal(buf.Bytes(), expected) {
				t.Errorf("expected header to be %v, but got %v", expected, buf.Bytes())
			}
		})
	}
}

func TestWriter_Tag(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.WriteTag(Tag{Type: TagTypeVideo, Timestamp: 0x01020304, Data: []byte{0x17, 0x00, 0xAA}}); err != nil {
		t.Fatal(err)
	}
	expected := []byte{
		9,                // type
		0x00, 0x00, 0x03, // data size
		0x02, 0x03, 0x04, // timestamp
		0x01,             // timestamp extension
		0x00, 0x00, 0x00, // stream id
		0x17, 0x00, 0xAA, // data
		0x00, 0x00, 0x00, 14, // previous tag size
	}
	if !bytes.Equal(buf.Bytes(), expected) {
		t.Errorf("expected tag to be %v, but got %v", expected, buf.Bytes())
	}
}

func testStream(t *testing.T, tags ...Tag) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := NewWriter(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.WriteHeader(true, true); err != nil {
		t.Fatal(err)
	}
	for _, tag := range tags {
		if err := w.WriteTag(tag); err != nil {
			t.Fatal(err)
		}
	}
	return buf.Bytes()
}

// oneByteReader hands out a single byte per Read.
type oneByteReader struct {
	r io.Reader
}

func (o oneByteReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	return o.r.Read(p[:1])
}

func TestReader_ReadTag(t *testing.T) {
	tags := []Tag{
		{Type: TagTypeScript, Timestamp: 0, Data: []byte{0x02, 0x00, 0x0A}},
		{Type: TagTypeVideo, Timestamp: 40, Data: bytes.Repeat([]byte{0x27}, 300)},
		{Type: TagTypeAudio, Timestamp: 0x01000010, Data: []byte{0xAF, 0x01, 0x21}},
	}
	stream := testStream(t, tags...)

	tests := []struct {
		name       string
		source     func() io.Reader
		readHeader bool
	}{
		{"whole", func() io.Reader { return bytes.NewReader(stream) }, false},
		{"byByte", func() io.Reader { return oneByteReader{bytes.NewReader(stream)} }, false},
		{"explicitHeader", func() io.Reader { return bytes.NewReader(stream) }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewReader(tt.source())
			if err != nil {
				t.Fatal(err)
			}
			if tt.readHeader {
				hasAudio, hasVideo, err := r.ReadHeader()
				if err != nil || !hasAudio || !hasVideo {
					t.Fatalf("expected an audio and video header, but got %v %v %v", hasAudio, hasVideo, err)
				}
			}
			for i, expected := range tags {
				tag, err := r.ReadTag()
				if err != nil {
					t.Fatalf("tag %d: %v", i, err)
				}
				if tag.Type != expected.Type || tag.Timestamp != expected.Timestamp || !bytes.Equal(tag.Data, expected.Data) {
					t.Errorf("tag %d: expected %v/%v, but got %v/%v", i, expected.Type, expected.Timestamp, tag.Type, tag.Timestamp)
				}
			}
			if _, err := r.ReadTag(); errors.Cause(err) != io.EOF {
				t.Errorf("expected %v at the end of the stream, but got %v", io.EOF, err)
			}
		})
	}
}

func TestReader_Errors(t *testing.T) {
	t.Run("invalidSignature", func(t *testing.T) {
		r, err := NewReader(bytes.NewReader([]byte{'F', 'L', 'X', 1, 5, 0, 0, 0, 9, 0, 0, 0, 0}))
		if err != nil {
			t.Fatal(err)
		}
		if _, err := r.ReadTag(); err == nil || errors.Cause(err) == io.EOF {
			t.Errorf("expected a bad signature to fail, but got %v", err)
		}
	})

	t.Run("tagTooLarge", func(t *testing.T) {
		stream := testStream(t)
		header := make([]byte, 11)
		header[0] = TagTypeVideo
		var size [4]byte
		binary.BigEndian.PutUint32(size[:], MaxTagDataSize+1)
		copy(header[1:4], size[1:])
		r, err := NewReader(bytes.NewReader(append(stream, header...)))
		if err != nil {
			t.Fatal(err)
		}
		if _, err := r.ReadTag(); errors.Cause(err) != ErrTagTooLarge {
			t.Errorf("expected %v, but got %v", ErrTagTooLarge, err)
		}
	})
}

func TestPack(t *testing.T) {
	buf, infos := Pack(
		Tag{Type: TagTypeScript, Data: []byte{0x02}},
		Tag{Type: TagTypeVideo, Timestamp: 40, Data: []byte{0x17, 0x01}},
		Tag{Type: TagTypeAudio, Timestamp: 41},
	)
	if !bytes.Equal(buf, []byte{0x02, 0x17, 0x01}) {
		t.Errorf("expected the data to be packed back to back, but got %v", buf)
	}
	if len(infos) != 3 {
		t.Fatalf("expected 3 infos, but got %v", len(infos))
	}
	if infos[1].Timestamp != 40 || infos[1].Type != TagTypeVideo || !bytes.Equal(infos[1].Data(buf), []byte{0x17, 0x01}) {
		t.Errorf("expected the second info to locate the video tag, but got %+v", infos[1])
	}
	if len(infos[2].Data(buf)) != 0 {
		t.Errorf("expected an empty tag to stay empty, but got %v", infos[2].Data(buf))
	}
}
