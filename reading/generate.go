package reading

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"math/rand"
	"time"
)

// Generator produces a seeded random walk of readings at a fixed interval.
type Generator struct {
	r    *rand.Rand
	kind Kind
	next time.Time
	step time.Duration

	meas, temp, hum float64
}

// NewGenerator creates a generator of kind readings starting at start and
// spaced step apart. The same seed always yields the same sequence.
func NewGenerator(kind Kind, seed int64, start time.Time, step time.Duration) (*Generator, error) {
	if kind != KindData && kind != KindTempHum {
		return nil, fmt.Errorf("cannot generate %q readings", kind)
	}
	if step <= 0 {
		return nil, fmt.Errorf("step must be positive")
	}
	return &Generator{
		r:    rand.New(rand.NewSource(seed)),
		kind: kind,
		next: start.UTC().Truncate(time.Second),
		step: step,
		meas: 0,
		temp: 21,
		hum:  45,
	}, nil
}

func round(v float64) float64 { return math.Round(v*100) / 100 }

// Next returns the following reading.
func (g *Generator) Next() Reading {
	dt := g.next
	g.next = g.next.Add(g.step)

	if g.kind == KindData {
		g.meas = round(g.meas + g.r.NormFloat64())
		return Measurement(dt, g.meas)
	}
	g.temp = round(g.temp + g.r.NormFloat64()*0.2)
	g.hum = round(math.Min(100, math.Max(0, g.hum+g.r.NormFloat64()*0.5)))
	return TempHum(dt, g.temp, g.hum)
}

// WriteLines writes n readings as JSON lines to w. When corruptEvery is
// positive every corruptEvery-th line is replaced by a malformed one.
func (g *Generator) WriteLines(w io.Writer, n, corruptEvery int) error {
	bw := bufio.NewWriter(w)
	for i := 1; i <= n; i++ {
		var line []byte
		if corruptEvery > 0 && i%corruptEvery == 0 {
			line = []byte(`{"dt":"corrupt"`)
		} else {
			var err error
			if line, err = Encode(g.Next()); err != nil {
				return err
			}
		}
		if _, err := bw.Write(line); err != nil {
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}
