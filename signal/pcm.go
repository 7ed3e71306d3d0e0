package signal

import (
	"fmt"
	"io"
)

// DecodePCM16 converts little-endian signed 16-bit mono PCM into a stream
// normalized to [-1, 1).
func DecodePCM16(b []byte, sampleRate int) (Stream, error) {
	if len(b)%2 != 0 {
		return Stream{}, fmt.Errorf("pcm16: odd byte count %d", len(b))
	}
	s := Stream{SampleRate: sampleRate, Samples: make([]float64, len(b)/2)}
	if err := s.Validate(); err != nil {
		return Stream{}, err
	}
	for i := range s.Samples {
		v := int16(b[2*i]) | int16(b[2*i+1])<<8
		s.Samples[i] = float64(v) / 32768.0
	}
	return s, nil
}

// ReadPCM16 reads r to EOF and decodes it with DecodePCM16.
func ReadPCM16(r io.Reader, sampleRate int) (Stream, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return Stream{}, fmt.Errorf("pcm16 read: %w", err)
	}
	return DecodePCM16(b, sampleRate)
}

// EncodePCM16 is the inverse of DecodePCM16, clipping out-of-range samples.
func EncodePCM16(s Stream) []byte {
	out := make([]byte, 2*len(s.Samples))
	for i, x := range s.Samples {
		v := int16(x * 32768.0)
		if x >= 1.0 {
			v = 32767
		} else if x < -1.0 {
			v = -32768
		}
		out[2*i] = byte(v)
		out[2*i+1] = byte(v >> 8)
	}
	return out
}
