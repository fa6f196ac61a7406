package simd

var (
	dotImpl        = dotGeneric
	squaredL2Impl  = squaredL2Generic
	sumSquaresImpl = sumSquaresGeneric
	axpyImpl       = axpyGeneric
	scaleImpl      = scaleGeneric
)

// bindKernels selects the kernel family for isa.
func bindKernels(isa ISA) {
	if isa.Kernels() == KernelsGeneric {
		dotImpl = dotGeneric
		squaredL2Impl = squaredL2Generic
		sumSquaresImpl = sumSquaresGeneric
		axpyImpl = axpyGeneric
		scaleImpl = scaleGeneric
		return
	}
	dotImpl = dotUnrolled
	squaredL2Impl = squaredL2Unrolled
	sumSquaresImpl = sumSquaresUnrolled
	axpyImpl = axpyUnrolled
	scaleImpl = scaleGeneric
}

// Dot calculates the dot product of two vectors.
//
// SAFETY: This function assumes len(a) == len(b).
// Callers MUST ensure lengths match.
func Dot(a, b []float32) float32 {
	return dotImpl(a, b)
}

// DotBatch calculates dot products of query against a batch of vectors.
// targets is a flattened array of N vectors, each of dimension dim.
// out must have length N (len(targets) / dim).
func DotBatch(query []float32, targets []float32, dim int, out []float32) {
	if dim <= 0 || len(out) == 0 || len(query) < dim {
		return
	}

	q := query[:dim]
	n := min(len(out), len(targets)/dim)
	for i := 0; i < n; i++ {
		offset := i * dim
		out[i] = dotImpl(q, targets[offset:offset+dim])
	}
}

// SquaredL2 calculates the squared L2 distance.
//
// SAFETY: This function assumes len(a) == len(b).
func SquaredL2(a, b []float32) float32 {
	return squaredL2Impl(a, b)
}

// SumSquares returns the dot product of a with itself.
func SumSquares(a []float32) float32 {
	return sumSquaresImpl(a)
}

// Axpy computes y += alpha*x.
//
// SAFETY: This function assumes len(x) == len(y).
func Axpy(alpha float32, x, y []float32) {
	axpyImpl(alpha, x, y)
}

// ScaleInPlace multiplies all elements of a by scalar.
func ScaleInPlace(a []float32, scalar float32) {
	scaleImpl(a, scalar)
}

// AddInPlace computes dst += src elementwise.
func AddInPlace(dst, src []float32) {
	src = src[:len(dst)]
	for i := range dst {
		dst[i] += src[i]
	}
}

// MaxInPlace computes dst = max(dst, src) elementwise.
// A NaN in either operand produces NaN.
func MaxInPlace(dst, src []float32) {
	src = src[:len(dst)]
	for i, v := range src {
		d := dst[i]
		if v > d || v != v {
			dst[i] = v
		}
	}
}

func dotGeneric(a, b []float32) float32 {
	var ret float32
	for i := range a {
		ret += a[i] * b[i]
	}

	return ret
}

func squaredL2Generic(a, b []float32) float32 {
	var distance float32
	for i := range a {
		distance += (a[i] - b[i]) * (a[i] - b[i])
	}

	return distance
}

func sumSquaresGeneric(a []float32) float32 {
	var ret float32
	for _, v := range a {
		ret += v * v
	}
	return ret
}

func axpyGeneric(alpha float32, x, y []float32) {
	x = x[:len(y)]
	for i := range y {
		y[i] += alpha * x[i]
	}
}

func scaleGeneric(a []float32, scalar float32) {
	for i := range a {
		a[i] *= scalar
	}
}

func dotUnrolled(a, b []float32) float32 {
	var s0, s1, s2, s3 float32
	n := len(a)
	b = b[:n]
	i := 0
	for ; i+4 <= n; i += 4 {
		s0 += a[i] * b[i]
		s1 += a[i+1] * b[i+1]
		s2 += a[i+2] * b[i+2]
		s3 += a[i+3] * b[i+3]
	}
	for ; i < n; i++ {
		s0 += a[i] * b[i]
	}
	return (s0 + s1) + (s2 + s3)
}

func squaredL2Unrolled(a, b []float32) float32 {
	var s0, s1, s2, s3 float32
	n := len(a)
	b = b[:n]
	i := 0
	for ; i+4 <= n; i += 4 {
		d0 := a[i] - b[i]
		d1 := a[i+1] - b[i+1]
		d2 := a[i+2] - b[i+2]
		d3 := a[i+3] - b[i+3]
		s0 += d0 * d0
		s1 += d1 * d1
		s2 += d2 * d2
		s3 += d3 * d3
	}
	for ; i < n; i++ {
		d := a[i] - b[i]
		s0 += d * d
	}
	return (s0 + s1) + (s2 + s3)
}

func sumSquaresUnrolled(a []float32) float32 {
	return dotUnrolled(a, a)
}

func axpyUnrolled(alpha float32, x, y []float32) {
	n := len(y)
	x = x[:n]
	i := 0
	for ; i+4 <= n; i += 4 {
		y[i] += alpha * x[i]
		y[i+1] += alpha * x[i+1]
		y[i+2] += alpha * x[i+2]
		y[i+3] += alpha * x[i+3]
	}
	for ; i < n; i++ {
		y[i] += alpha * x[i]
	}
}
