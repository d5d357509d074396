package risk

// Benchmarks compares an industry against the book.
type Benchmarks struct {
	Industry               string  `json:"industry"`
	IndustryAverage        float64 `json:"industry_average"`
	TopQuartile            float64 `json:"top_quartile"`
	BottomQuartile         float64 `json:"bottom_quartile"`
	DataSensitivityFactor  float64 `json:"data_sensitivity_factor"`
	RegulatoryBurdenFactor float64 `json:"regulatory_burden_factor"`
	AttackFrequencyFactor  float64 `json:"attack_frequency_factor"`
}

// IndustryBenchmarks returns benchmark figures for an industry. Industries
// without a profile get the neutral defaults. The average is not capped.
func IndustryBenchmarks(industry string) Benchmarks {
	p, ok := LookupProfile(industry)
	if !ok {
		return Benchmarks{
			Industry:               industry,
			IndustryAverage:        50,
			TopQuartile:            35,
			BottomQuartile:         65,
			DataSensitivityFactor:  50,
			RegulatoryBurdenFactor: 50,
			AttackFrequencyFactor:  50,
		}
	}
	avg := p.average()
	return Benchmarks{
		Industry:               p.Name,
		IndustryAverage:        avg,
		TopQuartile:            avg - 15,
		BottomQuartile:         avg + 15,
		DataSensitivityFactor:  p.DataSensitivity * 100,
		RegulatoryBurdenFactor: p.RegulatoryBurden * 100,
		AttackFrequencyFactor:  p.AttackFrequency * 100,
	}
}
