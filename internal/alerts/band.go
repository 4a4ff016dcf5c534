package alerts

// Band classifies the effective speed against the current limit for display.
type Band string

const (
	BandNormal   Band = "normal"
	BandElevated Band = "elevated"
	BandCritical Band = "critical"
)

// SpeedBand is critical above 120% of the limit and elevated above 110%.
// A zero limit is always normal.
func SpeedBand(effective, limit float64) Band {
	switch {
	case limit > 0 && effective > limit*1.2:
		return BandCritical
	case limit > 0 && effective > limit*1.1:
		return BandElevated
	default:
		return BandNormal
	}
}
