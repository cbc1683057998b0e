package places

import "github.com/benmeehan/heros-path/pkg/geo"

// SampleRoute picks search centres along route so that consecutive centres
// are at least spacingMeters apart. The first and last valid points are always
// included; invalid points are skipped.
func SampleRoute(route []geo.Point, spacingMeters float64) []geo.Point {
	var valid []geo.Point
	for _, p := range route {
		if p.Valid() {
			valid = append(valid, p)
		}
	}
	if len(valid) <= 1 || spacingMeters <= 0 {
		return valid
	}

	samples := []geo.Point{valid[0]}
	travelled := 0.0
	for i := 1; i < len(valid); i++ {
		travelled += geo.Distance(valid[i-1], valid[i])
		if travelled >= spacingMeters {
			samples = append(samples, valid[i])
			travelled = 0
		}
	}

	last := valid[len(valid)-1]
	if samples[len(samples)-1] != last {
		samples = append(samples, last)
	}
	return samples
}
