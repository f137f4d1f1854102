package tempo

// Daubechies-4 decomposition low-pass filter (8 taps).
var db4Lo = []float64{
	-0.010597401784997278,
	0.032883011666982945,
	0.030841381835986965,
	-0.18703481171888114,
	-0.02798376941698385,
	0.6308807679295904,
	0.7148465705525415,
	0.23037781330885523,
}

// quadrature mirror of db4Lo
var db4Hi = func() []float64 {
	n := len(db4Lo)
	hi := make([]float64, n)
	for k := range hi {
		v := db4Lo[n-1-k]
		if k%2 == 0 {
			v = -v
		}
		hi[k] = v
	}
	return hi
}()

// dwt runs one level of the discrete wavelet transform with symmetric
// boundary extension. Both outputs have (len(x)+7)/2 coefficients.
func dwt(x []float64) (approx, detail []float64) {
	n := len(x)
	if n == 0 {
		return nil, nil
	}
	taps := len(db4Lo)
	m := (n + taps - 1) / 2
	approx = make([]float64, m)
	detail = make([]float64, m)
	for i := 0; i < m; i++ {
		var a, d float64
		for k := 0; k < taps; k++ {
			v := x[mirror(2*i+1-k, n)]
			a += db4Lo[k] * v
			d += db4Hi[k] * v
		}
		approx[i] = a
		detail[i] = d
	}
	return approx, detail
}

func mirror(j, n int) int {
	for j < 0 || j >= n {
		if j < 0 {
			j = -j - 1
		}
		if j >= n {
			j = 2*n - j - 1
		}
	}
	return j
}
