package video

// Field values of the FLV file format, version 10.1: https://www.adobe.com/content/dam/acom/en/devnet/flv/video_file_format_spec_v10_1.pdf

type FrameType uint8

const (
	KeyFrame             FrameType = 1
	InterFrame           FrameType = 2
	DisposableInterFrame FrameType = 3
	GeneratedKeyFrame    FrameType = 4
	// Video info/command frame
	CommandFrame FrameType = 5
)

type Codec uint8

const (
	SorensonH263    Codec = 2
	ScreenVideo     Codec = 3
	VP6             Codec = 4
	VP6AlphaChannel Codec = 5
	ScreenVideoV2   Codec = 6
	H264            Codec = 7
)

type AVCPacketType uint8

const (
	AVCSequenceHeader AVCPacketType = 0
	AVCNALU           AVCPacketType = 1
	AVCEndOfSequence  AVCPacketType = 2
)

func Parse(header byte) (FrameType, Codec) {
	return FrameType(header >> 4), Codec(header & 0x0F)
}

// IsAVCSequenceHeader reports whether payload carries an AVCDecoderConfigurationRecord.
// The frame type nibble is not checked; some encoders do not mark it as a key frame.
func IsAVCSequenceHeader(payload []byte) bool {
	return len(payload) >= 2 && Codec(payload[0]&0x0F) == H264 && AVCPacketType(payload[1]) == AVCSequenceHeader
}
