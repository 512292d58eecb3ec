package audio

import (
	"bytes"
	"encoding/binary"
	"math"
)

// PCM16FromFloat32 converts normalized [-1, 1] float32 samples to
// little-endian signed 16-bit PCM, the wire format every HTTP-based ASR
// engine expects.
func PCM16FromFloat32(samples []float32) []byte {
	buf := new(bytes.Buffer)
	buf.Grow(len(samples) * 2)
	for _, s := range samples {
		f := float64(s)
		if f > 1 {
			f = 1
		} else if f < -1 {
			f = -1
		}
		binary.Write(buf, binary.LittleEndian, int16(math.Round(f*32767)))
	}
	return buf.Bytes()
}

// Float32FromPCM16 converts little-endian signed 16-bit PCM to
// normalized [-1, 1] float32 samples.
func Float32FromPCM16(pcm []byte) []float32 {
	n := len(pcm) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(uint16(pcm[2*i]) | uint16(pcm[2*i+1])<<8)
		out[i] = float32(v) / 32768.0
	}
	return out
}
