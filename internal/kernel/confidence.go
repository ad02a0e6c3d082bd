package kernel

// ConfidenceWeights blends evidence components into a 0..1 confidence.
// Engines differ only by the weights they pass.
type ConfidenceWeights struct {
	Sources     float64
	Records     float64
	Consistency float64
	Recency     float64
}

var (
	BreederConfidence = ConfidenceWeights{Sources: 0.3, Records: 0.3, Consistency: 0.2, Recency: 0.2}
	RegionConfidence  = ConfidenceWeights{Sources: 0.4, Records: 0.3, Recency: 0.3}
)

type Evidence struct {
	Sources      int
	Records      int
	MinSources   int
	MinRecords   int
	Consistency  float64
	RecencyDays  float64
	HalfLifeDays float64
}

func (w ConfidenceWeights) Score(e Evidence) float64 {
	compN := ratio(e.Sources, e.MinSources)
	compM := ratio(e.Records, e.MinRecords)
	compR := 1.0
	if e.HalfLifeDays > 0 {
		compR = Clamp(1-e.RecencyDays/(2*e.HalfLifeDays), 0, 1)
	}
	c := w.Sources*compN + w.Records*compM + w.Consistency*e.Consistency + w.Recency*compR
	return Clamp(c, 0, 1)
}

func ratio(have, need int) float64 {
	if need <= 0 {
		return 1
	}
	return Clamp(float64(have)/float64(need), 0, 1)
}
