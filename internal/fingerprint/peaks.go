package fingerprint

import "sort"

const (
	// TopPeaks is the number of strongest bins kept per frame.
	TopPeaks = 5

	// minPeakBin excludes DC leakage and sub-audible bins from selection.
	minPeakBin = 5
)

// TopBins reduces one power-spectrum frame to at most TopPeaks bin indices,
// strongest first. Bins below minPeakBin are ignored. Ties go to the lower
// bin index, so the output is deterministic for a given frame.
func TopBins(frame []float64) []int {
	if len(frame) <= minPeakBin {
		return nil
	}

	idx := make([]int, 0, len(frame)-minPeakBin)
	for k := minPeakBin; k < len(frame); k++ {
		idx = append(idx, k)
	}
	sort.Slice(idx, func(i, j int) bool {
		if frame[idx[i]] == frame[idx[j]] {
			return idx[i] < idx[j]
		}
		return frame[idx[i]] > frame[idx[j]]
	})

	if len(idx) > TopPeaks {
		idx = idx[:TopPeaks]
	}
	return idx
}

// PeaksPerFrame applies TopBins to every frame of a spectrogram.
func PeaksPerFrame(spectrogram [][]float64) [][]int {
	peaks := make([][]int, len(spectrogram))
	for t, frame := range spectrogram {
		peaks[t] = TopBins(frame)
	}
	return peaks
}
