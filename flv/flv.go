// Package flv moves FLV tags between Groups and the HTTP-FLV surfaces. Muxing and demuxing go through
// go-oryx-lib's FLV package.
package flv

import (
	oryxflv "github.com/ossrs/go-oryx-lib/flv"
)

// Tag types, same values as the RTMP message types carrying the same data.
const (
	TagTypeAudio  = uint8(oryxflv.TagTypeAudio)
	TagTypeVideo  = uint8(oryxflv.TagTypeVideo)
	TagTypeScript = uint8(oryxflv.TagTypeScriptData)
)

type Tag struct {
	Type      uint8
	Timestamp uint32
	Data      []byte
}

// TagInfo locates the data of a tag inside a buffer holding several of them.
type TagInfo struct {
	Type       uint8
	Timestamp  uint32
	DataOffset int
	DataSize   int
}

// Data returns the tag data inside buf.
func (ti TagInfo) Data(buf []byte) []byte {
	return buf[ti.DataOffset : ti.DataOffset+ti.DataSize]
}

// Pack copies the data of tags into one buffer and returns it with the infos locating each tag.
func Pack(tags ...Tag) ([]byte, []TagInfo) {
	size := 0
	for _, tag := range tags {
		size += len(tag.Data)
	}
	buf := make([]byte, 0, size)
	infos := make([]TagInfo, 0, len(tags))
	for _, tag := range tags {
		infos = append(infos, TagInfo{
			Type:       tag.Type,
			Timestamp:  tag.Timestamp,
			DataOffset: len(buf),
			DataSize:   len(tag.Data),
		})
		buf = append(buf, tag.Data...)
	}
	return buf, infos
}
