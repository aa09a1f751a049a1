// Package analysis inspects hook sites in x86 and x86_64 code.
// It includes string extraction, symbol scanning, and listing annotation.
package analysis

// Constants for analysis operations
const (
	// MaxStringLength is the maximum length for string extraction
	MaxStringLength = 256

	// MaxSiteInstructions is the default listing length for one hook site
	MaxSiteInstructions = 64

	// MaxScanBytes bounds the code read for symbols without a size
	MaxScanBytes = 4096
)
