package tensor

import "fmt"

func errElementCount(n int, shape Shape) error {
	return fmt.Errorf("data has %d elements, shape %v wants %d", n, shape, shape.NumElements())
}

// MatMul computes a @ b for 2D float32 tensors.
//
// a is [m, k], b is [k, n], the result is [m, n]. The inner loop is
// ordered i-k-j so b is walked sequentially, which is the usual cache
// friendly layout for row-major matrices.
func MatMul(a, b *RawTensor) *RawTensor {
	as, bs := a.Shape(), b.Shape()
	if len(as) != 2 || len(bs) != 2 {
		panic(fmt.Sprintf("tensor: MatMul wants 2D tensors, got %v and %v", as, bs))
	}
	if as[1] != bs[0] {
		panic(fmt.Sprintf("tensor: MatMul inner dimensions differ: %v vs %v", as, bs))
	}

	m, k, n := as[0], as[1], bs[1]
	out := Zeros(Shape{m, n}, a.Device())

	ad, bd, od := a.AsFloat32(), b.AsFloat32(), out.AsFloat32()
	for i := 0; i < m; i++ {
		aRow := ad[i*k : (i+1)*k]
		oRow := od[i*n : (i+1)*n]
		for p := 0; p < k; p++ {
			av := aRow[p]
			if av == 0 {
				continue
			}
			bRow := bd[p*n : (p+1)*n]
			for j := 0; j < n; j++ {
				oRow[j] += av * bRow[j]
			}
		}
	}
	return out
}

// Transpose2D returns the transpose of a 2D float32 tensor.
func Transpose2D(a *RawTensor) *RawTensor {
	as := a.Shape()
	if len(as) != 2 {
		panic(fmt.Sprintf("tensor: Transpose2D wants a 2D tensor, got %v", as))
	}
	rows, cols := as[0], as[1]
	out := Zeros(Shape{cols, rows}, a.Device())
	ad, od := a.AsFloat32(), out.AsFloat32()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			od[j*rows+i] = ad[i*cols+j]
		}
	}
	return out
}

// Add computes a + b element-wise into a new tensor. Shapes must match.
func Add(a, b *RawTensor) *RawTensor {
	if !a.Shape().Equal(b.Shape()) {
		panic(fmt.Sprintf("tensor: Add shape mismatch: %v vs %v", a.Shape(), b.Shape()))
	}
	out := Zeros(a.Shape(), a.Device())
	ad, bd, od := a.AsFloat32(), b.AsFloat32(), out.AsFloat32()
	for i := range od {
		od[i] = ad[i] + bd[i]
	}
	return out
}

// AddRow adds a row vector [n] to every row of a [m, n] tensor in place.
func AddRow(a, row *RawTensor) {
	as := a.Shape()
	if len(as) != 2 || row.NumElements() != as[1] {
		panic(fmt.Sprintf("tensor: AddRow shape mismatch: %v vs %v", as, row.Shape()))
	}
	ad, rd := a.AsFloat32(), row.AsFloat32()
	n := as[1]
	for i := 0; i < as[0]; i++ {
		aRow := ad[i*n : (i+1)*n]
		for j := range aRow {
			aRow[j] += rd[j]
		}
	}
}

// Scale multiplies every element by s in place.
func Scale(a *RawTensor, s float32) {
	ad := a.AsFloat32()
	for i := range ad {
		ad[i] *= s
	}
}

// Conv2D computes a 2D cross-correlation over input [batch, inC, h, w]
// with weights [outC, inC, kH, kW] and bias [outC], using the given
// stride and zero padding. Returns [batch, outC, outH, outW].
//
// Direct convolution. The frozen backbone only ever runs forward, so
// there is no corresponding backward kernel.
func Conv2D(input, weight, bias *RawTensor, stride, padding int) *RawTensor {
	is, ws := input.Shape(), weight.Shape()
	if len(is) != 4 || len(ws) != 4 {
		panic(fmt.Sprintf("tensor: Conv2D wants 4D input and weight, got %v and %v", is, ws))
	}
	if is[1] != ws[1] {
		panic(fmt.Sprintf("tensor: Conv2D channel mismatch: input %v, weight %v", is, ws))
	}

	batch, inC, h, w := is[0], is[1], is[2], is[3]
	outC, kH, kW := ws[0], ws[2], ws[3]
	outH := (h+2*padding-kH)/stride + 1
	outW := (w+2*padding-kW)/stride + 1

	out := Zeros(Shape{batch, outC, outH, outW}, input.Device())
	id, wd, od := input.AsFloat32(), weight.AsFloat32(), out.AsFloat32()

	var bd []float32
	if bias != nil {
		bd = bias.AsFloat32()
	}

	for b := 0; b < batch; b++ {
		for oc := 0; oc < outC; oc++ {
			base := float32(0)
			if bd != nil {
				base = bd[oc]
			}
			for oy := 0; oy < outH; oy++ {
				for ox := 0; ox < outW; ox++ {
					sum := base
					for ic := 0; ic < inC; ic++ {
						for ky := 0; ky < kH; ky++ {
							iy := oy*stride + ky - padding
							if iy < 0 || iy >= h {
								continue
							}
							inRow := id[((b*inC+ic)*h+iy)*w:]
							wRow := wd[((oc*inC+ic)*kH+ky)*kW:]
							for kx := 0; kx < kW; kx++ {
								ix := ox*stride + kx - padding
								if ix < 0 || ix >= w {
									continue
								}
								sum += inRow[ix] * wRow[kx]
							}
						}
					}
					od[((b*outC+oc)*outH+oy)*outW+ox] = sum
				}
			}
		}
	}
	return out
}

// MaxPool2D computes 2D max pooling over input [batch, c, h, w] with a
// square kernel and stride. Returns [batch, c, outH, outW].
func MaxPool2D(input *RawTensor, kernel, stride int) *RawTensor {
	is := input.Shape()
	if len(is) != 4 {
		panic(fmt.Sprintf("tensor: MaxPool2D wants a 4D input, got %v", is))
	}

	batch, c, h, w := is[0], is[1], is[2], is[3]
	outH := (h-kernel)/stride + 1
	outW := (w-kernel)/stride + 1

	out := Zeros(Shape{batch, c, outH, outW}, input.Device())
	id, od := input.AsFloat32(), out.AsFloat32()

	for b := 0; b < batch; b++ {
		for ch := 0; ch < c; ch++ {
			plane := id[(b*c+ch)*h*w:]
			for oy := 0; oy < outH; oy++ {
				for ox := 0; ox < outW; ox++ {
					maxVal := float32(-3.4e38)
					for ky := 0; ky < kernel; ky++ {
						iy := oy*stride + ky
						for kx := 0; kx < kernel; kx++ {
							v := plane[iy*w+ox*stride+kx]
							if v > maxVal {
								maxVal = v
							}
						}
					}
					od[((b*c+ch)*outH+oy)*outW+ox] = maxVal
				}
			}
		}
	}
	return out
}

// Argmax returns the index of the maximum value in the slice.
// The first maximum wins on ties.
func Argmax(z []float32) int {
	maxIdx := 0
	maxVal := z[0]
	for i := 1; i < len(z); i++ {
		if z[i] > maxVal {
			maxVal = z[i]
			maxIdx = i
		}
	}
	return maxIdx
}
