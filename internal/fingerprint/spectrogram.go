package fingerprint

import (
	"math"

	"github.com/mjibson/go-dsp/fft"
)

// Tunables, sized for 44.1 kHz input. WindowSize gives ~46 ms frames and
// HopSize a 50% overlap.
const (
	WindowSize = 2048
	HopSize    = 1024
)

// Hann returns a Hann window of length n:
// w[i] = 0.5 * (1 - cos(2*pi*i/(n-1))).
func Hann(n int) []float64 {
	w := make([]float64, n)
	if n == 1 {
		w[0] = 0
		return w
	}
	for i := 0; i < n; i++ {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
	}
	return w
}

// Spectrogram converts mono PCM16 samples into a time-major power
// spectrogram: spectrogram[frameIdx][freqBin], with WindowSize/2 bins per
// frame. Samples are normalized to [-1, 1), Hann-windowed and transformed
// with a forward FFT; each bin holds Re²+Im² (power, not amplitude).
//
// Input shorter than one window yields an empty spectrogram. This function
// cannot fail. A nil engine selects the CPU power-spectrum path.
func Spectrogram(pcm []int16, eng SpectrumEngine) [][]float64 {
	if len(pcm) < WindowSize {
		return nil
	}
	if eng == nil {
		eng = CPUEngine{}
	}

	window := Hann(WindowSize)

	nFrames := (len(pcm)-WindowSize)/HopSize + 1
	spectra := make([][]complex128, 0, nFrames)

	frame := make([]float64, WindowSize)
	for start := 0; start+WindowSize <= len(pcm); start += HopSize {
		for i := 0; i < WindowSize; i++ {
			frame[i] = float64(pcm[start+i]) / 32768.0 * window[i]
		}
		spectra = append(spectra, fft.FFTReal(frame))
	}

	return eng.PowerSpectrum(spectra, WindowSize/2)
}
