package features

import (
	"math"
	"math/bits"
	"math/cmplx"
)

// fft transforms x in place. len(x) must be a power of two.
func fft(x []complex128) {
	n := len(x)
	if n < 2 {
		return
	}
	shift := 64 - bits.Len(uint(n-1))
	for i := range x {
		if j := int(bits.Reverse64(uint64(i)) >> shift); i < j {
			x[i], x[j] = x[j], x[i]
		}
	}

	tw := make([]complex128, n/2)
	for k := range tw {
		tw[k] = cmplx.Rect(1, -2*math.Pi*float64(k)/float64(n))
	}
	for size := 2; size <= n; size <<= 1 {
		half, step := size/2, n/size
		for lo := 0; lo < n; lo += size {
			for k := 0; k < half; k++ {
				a, b := lo+k, lo+k+half
				t := tw[k*step] * x[b]
				x[a], x[b] = x[a]+t, x[a]-t
			}
		}
	}
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// magnitudes returns |X[k]| for k in [0, n/2] of the Hann-windowed input,
// zero padded to the next power of two. The second result is the FFT size.
func magnitudes(x []float64) ([]float64, int) {
	n := nextPow2(len(x))
	buf := make([]complex128, n)
	last := float64(len(x) - 1)
	for i, v := range x {
		w := 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/last)
		buf[i] = complex(v*w, 0)
	}
	fft(buf)
	mags := make([]float64, n/2+1)
	for k := range mags {
		mags[k] = cmplx.Abs(buf[k])
	}
	return mags, n
}
