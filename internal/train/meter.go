// Package train implements the fine-tuning loop, metric tracking and
// accuracy scoring.
package train

// Meter tracks a running weighted average of a scalar metric across
// batches, typically loss or accuracy weighted by batch size.
type Meter struct {
	Val   float64 // most recent value
	Sum   float64 // weighted sum of values
	Count float64 // total weight
	Avg   float64 // Sum / Count, 0 while Count is 0
}

// Reset zeroes all fields, normally at the start of each pass.
func (m *Meter) Reset() {
	*m = Meter{}
}

// Update records value with the given weight.
func (m *Meter) Update(value, weight float64) {
	m.Val = value
	m.Sum += value * weight
	m.Count += weight
	if m.Count > 0 {
		m.Avg = m.Sum / m.Count
	}
}
