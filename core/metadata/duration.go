package metadata

import (
	"bytes"
	"encoding/binary"
	"io"
)

// estimateDuration reads the container header for formats whose length can be
// computed without decoding. It backs up ffprobe; formats it can't read report
// 0 and the player falls back to the duration the browser discovers.
func estimateDuration(r io.ReadSeeker, ext string) float64 {
	switch ext {
	case ".mp3":
		return mp3Duration(r)
	case ".wav":
		return wavDuration(r)
	case ".flac":
		return flacDuration(r)
	default:
		return 0
	}
}

// wavDuration walks RIFF chunks for the fmt byte rate and the data size.
func wavDuration(r io.ReadSeeker) float64 {
	var hdr [12]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0
	}
	if !bytes.Equal(hdr[0:4], []byte("RIFF")) || !bytes.Equal(hdr[8:12], []byte("WAVE")) {
		return 0
	}

	var byteRate uint32
	for {
		var chunk [8]byte
		if _, err := io.ReadFull(r, chunk[:]); err != nil {
			return 0
		}
		id := string(chunk[0:4])
		size := binary.LittleEndian.Uint32(chunk[4:8])

		switch id {
		case "fmt ":
			var fmtChunk [16]byte
			if size < 16 {
				return 0
			}
			if _, err := io.ReadFull(r, fmtChunk[:]); err != nil {
				return 0
			}
			byteRate = binary.LittleEndian.Uint32(fmtChunk[8:12])
			size -= 16
		case "data":
			if byteRate == 0 {
				return 0
			}
			return float64(size) / float64(byteRate)
		}

		// Chunks are word aligned.
		skip := int64(size) + int64(size&1)
		if _, err := r.Seek(skip, io.SeekCurrent); err != nil {
			return 0
		}
	}
}

// flacDuration reads total samples and sample rate from STREAMINFO, which is
// always the first metadata block.
func flacDuration(r io.ReadSeeker) float64 {
	var hdr [4 + 4 + 34]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0
	}
	if !bytes.Equal(hdr[0:4], []byte("fLaC")) || hdr[4]&0x7f != 0 {
		return 0
	}
	info := hdr[8:]
	// Bytes 10..17 of STREAMINFO: 20 bits sample rate, 3 bits channels,
	// 5 bits bits-per-sample, 36 bits total samples.
	packed := binary.BigEndian.Uint64(info[10:18])
	sampleRate := packed >> 44
	totalSamples := packed & (1<<36 - 1)
	if sampleRate == 0 {
		return 0
	}
	return float64(totalSamples) / float64(sampleRate)
}

// MPEG audio bitrates in kbps, indexed by [version row][layer][bitrate index].
// Row 0 is MPEG-1, row 1 covers MPEG-2 and 2.5. Layer index 0 is Layer I.
var mpegBitrates = [2][3][16]int{
	{
		{0, 32, 64, 96, 128, 160, 192, 224, 256, 288, 320, 352, 384, 416, 448, 0},
		{0, 32, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 384, 0},
		{0, 32, 40, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 0},
	},
	{
		{0, 32, 48, 56, 64, 80, 96, 112, 128, 144, 160, 176, 192, 224, 256, 0},
		{0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160, 0},
		{0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160, 0},
	},
}

var mpegSampleRates = map[byte][3]int{
	3: {44100, 48000, 32000}, // MPEG-1
	2: {22050, 24000, 16000}, // MPEG-2
	0: {11025, 12000, 8000},  // MPEG-2.5
}

type mpegFrame struct {
	version    byte // 3 MPEG-1, 2 MPEG-2, 0 MPEG-2.5
	layer      int  // 1, 2 or 3
	bitrate    int  // bits per second
	sampleRate int
	mono       bool
}

func (f mpegFrame) samplesPerFrame() int {
	switch {
	case f.layer == 1:
		return 384
	case f.layer == 3 && f.version != 3:
		return 576
	default:
		return 1152
	}
}

// sideInfoLen is the Layer III side information size that precedes a
// Xing or Info header.
func (f mpegFrame) sideInfoLen() int {
	switch {
	case f.version == 3 && f.mono:
		return 17
	case f.version == 3:
		return 32
	case f.mono:
		return 9
	default:
		return 17
	}
}

func parseMPEGHeader(h []byte) (mpegFrame, bool) {
	if len(h) < 4 || h[0] != 0xff || h[1]&0xe0 != 0xe0 {
		return mpegFrame{}, false
	}
	version := h[1] >> 3 & 0x03
	layerBits := h[1] >> 1 & 0x03
	bitrateIdx := h[2] >> 4
	rateIdx := h[2] >> 2 & 0x03
	rates, ok := mpegSampleRates[version]
	if !ok || layerBits == 0 || rateIdx == 3 || bitrateIdx == 0 || bitrateIdx == 15 {
		return mpegFrame{}, false
	}

	layer := int(4 - layerBits)
	row := 1
	if version == 3 {
		row = 0
	}
	return mpegFrame{
		version:    version,
		layer:      layer,
		bitrate:    mpegBitrates[row][layer-1][bitrateIdx] * 1000,
		sampleRate: rates[rateIdx],
		mono:       h[3]>>6 == 3,
	}, true
}

const mp3SyncWindow = 64 << 10

// mp3Duration skips an ID3v2 tag, finds the first frame and uses its Xing,
// Info or VBRI frame count. Without one the stream is treated as constant
// bitrate.
func mp3Duration(r io.ReadSeeker) float64 {
	size, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return 0
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return 0
	}

	var start int64
	var id3 [10]byte
	if _, err := io.ReadFull(r, id3[:]); err == nil && bytes.Equal(id3[0:3], []byte("ID3")) {
		start = 10 + (int64(id3[6]&0x7f)<<21 | int64(id3[7]&0x7f)<<14 | int64(id3[8]&0x7f)<<7 | int64(id3[9]&0x7f))
		if id3[5]&0x10 != 0 {
			start += 10
		}
	}
	if _, err := r.Seek(start, io.SeekStart); err != nil {
		return 0
	}

	buf := make([]byte, mp3SyncWindow)
	n, _ := io.ReadFull(r, buf)
	buf = buf[:n]

	for i := 0; i+4 <= len(buf); i++ {
		frame, ok := parseMPEGHeader(buf[i:])
		if !ok {
			continue
		}
		if frames := vbrFrameCount(buf[i:], frame); frames > 0 {
			return float64(frames) * float64(frame.samplesPerFrame()) / float64(frame.sampleRate)
		}

		audio := size - start - int64(i)
		if hasID3v1(r, size) {
			audio -= 128
		}
		if audio <= 0 {
			return 0
		}
		return float64(audio) * 8 / float64(frame.bitrate)
	}
	return 0
}

// vbrFrameCount reads the frame count from a Xing, Info or VBRI header in
// the first frame, or returns 0.
func vbrFrameCount(frame []byte, f mpegFrame) uint32 {
	if f.layer == 3 {
		off := 4 + f.sideInfoLen()
		if len(frame) >= off+12 {
			id := string(frame[off : off+4])
			flags := binary.BigEndian.Uint32(frame[off+4 : off+8])
			if (id == "Xing" || id == "Info") && flags&0x01 != 0 {
				return binary.BigEndian.Uint32(frame[off+8 : off+12])
			}
		}
	}
	const vbriOffset = 4 + 32
	if len(frame) >= vbriOffset+18 && string(frame[vbriOffset:vbriOffset+4]) == "VBRI" {
		return binary.BigEndian.Uint32(frame[vbriOffset+14 : vbriOffset+18])
	}
	return 0
}

func hasID3v1(r io.ReadSeeker, size int64) bool {
	if size < 128 {
		return false
	}
	var tag [3]byte
	if _, err := r.Seek(size-128, io.SeekStart); err != nil {
		return false
	}
	if _, err := io.ReadFull(r, tag[:]); err != nil {
		return false
	}
	return string(tag[:]) == "TAG"
}
