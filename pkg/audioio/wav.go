package audioio

import (
	"encoding/binary"
	"errors"
)

// ErrNotWAV is returned by ParseWAV for data without a RIFF/WAVE header.
var ErrNotWAV = errors.New("audioio: not a WAV file")

// WAVInfo describes the PCM payload of a WAV file.
type WAVInfo struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// IsWAV reports whether data starts with a RIFF/WAVE header.
func IsWAV(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}

// ParseWAV walks the RIFF chunks and returns the data chunk payload.
func ParseWAV(data []byte) ([]byte, WAVInfo, error) {
	if !IsWAV(data) {
		return nil, WAVInfo{}, ErrNotWAV
	}
	var info WAVInfo
	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		switch id {
		case "fmt ":
			if body+16 <= len(data) {
				info.Channels = int(binary.LittleEndian.Uint16(data[body+2:]))
				info.SampleRate = int(binary.LittleEndian.Uint32(data[body+4:]))
				info.BitDepth = int(binary.LittleEndian.Uint16(data[body+14:]))
			}
		case "data":
			end := body + size
			// streamed WAVs may carry a zero or oversized length
			if size == 0 || end > len(data) {
				end = len(data)
			}
			return data[body:end], info, nil
		}
		off = body + size + size%2
	}
	return nil, info, errors.New("audioio: WAV has no data chunk")
}

// EncodeWAV wraps PCM16 samples in a canonical 44-byte WAV header.
func EncodeWAV(pcm []byte, sampleRate, channels int) []byte {
	const bitDepth = 16
	h := make([]byte, 44, 44+len(pcm))
	copy(h[0:], "RIFF")
	binary.LittleEndian.PutUint32(h[4:], uint32(36+len(pcm)))
	copy(h[8:], "WAVE")
	copy(h[12:], "fmt ")
	binary.LittleEndian.PutUint32(h[16:], 16)
	binary.LittleEndian.PutUint16(h[20:], 1) // PCM
	binary.LittleEndian.PutUint16(h[22:], uint16(channels))
	binary.LittleEndian.PutUint32(h[24:], uint32(sampleRate))
	binary.LittleEndian.PutUint32(h[28:], uint32(sampleRate*channels*bitDepth/8))
	binary.LittleEndian.PutUint16(h[32:], uint16(channels*bitDepth/8))
	binary.LittleEndian.PutUint16(h[34:], bitDepth)
	copy(h[36:], "data")
	binary.LittleEndian.PutUint32(h[40:], uint32(len(pcm)))
	return append(h, pcm...)
}
