package enums

// Symbology names the barcode format reported by the recognizer.
type Symbology string

const (
	SymbologyEAN13   Symbology = "EAN-13"
	SymbologyEAN8    Symbology = "EAN-8"
	SymbologyUPCA    Symbology = "UPC-A"
	SymbologyUPCE    Symbology = "UPC-E"
	SymbologyCode128 Symbology = "CODE-128"
	SymbologyQR      Symbology = "QR_CODE"
	SymbologyUnknown Symbology = "UNKNOWN"
)

var validSymbologies = []Symbology{
	SymbologyEAN13,
	SymbologyEAN8,
	SymbologyUPCA,
	SymbologyUPCE,
	SymbologyCode128,
	SymbologyQR,
}

// IsValid reports whether the value names a supported format. The catch-all
// SymbologyUnknown is deliberately excluded.
func (s Symbology) IsValid() bool {
	for _, candidate := range validSymbologies {
		if candidate == s {
			return true
		}
	}
	return false
}
