package analysis

// Detector looks for one kind of hazard at a hook site.
type Detector interface {
	// Detect inspects the site and returns findings, extended or rewritten.
	// It can modify existing findings or add new ones.
	Detect(site *Site, findings []Finding) []Finding
}

// DetectorChain runs multiple detectors in sequence
type DetectorChain struct {
	detectors []Detector
}

// NewDetectorChain creates a new detector chain
func NewDetectorChain(detectors ...Detector) *DetectorChain {
	return &DetectorChain{
		detectors: detectors,
	}
}

// Detect runs all detectors in sequence
func (dc *DetectorChain) Detect(site *Site, findings []Finding) []Finding {
	if dc == nil {
		return findings
	}
	result := findings
	for _, detector := range dc.detectors {
		result = detector.Detect(site, result)
	}
	return result
}
