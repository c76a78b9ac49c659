package audio

import (
	"errors"
	"fmt"
	"io"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Decoding constraints: the fingerprint pipeline takes mono signed 16-bit
// PCM. 16-bit stereo is downmixed to mono; anything else is rejected here
// before it reaches the core.
var (
	ErrNotWAV            = errors.New("not a RIFF/WAVE file")
	ErrUnsupportedFormat = errors.New("unsupported WAV format: only 16-bit PCM, mono or stereo")
)

// decodeChunkFrames bounds how much PCM is decoded per push to a Consumer.
const decodeChunkFrames = 8192

// DecodeWAV streams a 16-bit PCM WAV from r into c as mono int16 samples.
// Stereo input is downmixed with the integer mean (L+R)/2. Returns the
// declared sample rate.
func DecodeWAV(r io.ReadSeeker, c Consumer) (int, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return 0, ErrNotWAV
	}
	d.ReadInfo()
	if d.WavAudioFormat != 1 || d.BitDepth != 16 {
		return 0, ErrUnsupportedFormat
	}
	channels := int(d.NumChans)
	if channels != 1 && channels != 2 {
		return 0, ErrUnsupportedFormat
	}
	sr := int(d.SampleRate)
	if sr <= 0 {
		return 0, ErrUnsupportedFormat
	}

	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{NumChannels: channels, SampleRate: sr},
		Data:   make([]int, decodeChunkFrames*channels),
	}
	mono := make([]int16, decodeChunkFrames)

	for {
		n, err := d.PCMBuffer(buf)
		if err != nil {
			return 0, fmt.Errorf("decoding PCM: %w", err)
		}
		if n == 0 {
			break
		}
		data := buf.Data[:n]

		var out []int16
		if channels == 1 {
			out = mono[:len(data)]
			for i, s := range data {
				out[i] = int16(s)
			}
		} else {
			frames := len(data) / 2
			out = mono[:frames]
			for i := 0; i < frames; i++ {
				out[i] = int16((data[2*i] + data[2*i+1]) / 2)
			}
		}
		c.Consume(out)
	}

	return sr, nil
}

// LoadWAV reads a whole WAV file into memory as mono PCM16.
func LoadWAV(path string) ([]int16, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	var buf Buffer
	sr, err := DecodeWAV(f, &buf)
	if err != nil {
		return nil, 0, fmt.Errorf("reading %s: %w", path, err)
	}
	return buf.Samples(), sr, nil
}
