package score

// Badge is a named trust tier derived from the overall score.
type Badge string

const (
	Newcomer Badge = "newcomer"
	Trusted  Badge = "trusted"
	Verified Badge = "verified"
	Elite    Badge = "elite"
)

// tiers are contiguous and non-overlapping: each tier runs from Min up to
// (but excluding) the next tier's Min; elite runs through 1000 inclusive.
var tiers = []struct {
	Badge Badge
	Min   int
}{
	{Newcomer, 0},
	{Trusted, 250},
	{Verified, 500},
	{Elite, 750},
}

// Classify maps an overall score to its trust tier. Total on [0,1000];
// out-of-range inputs are clamped first.
func Classify(overall int) Badge {
	overall = clamp(overall, 0, 1000)
	for i := len(tiers) - 1; i >= 0; i-- {
		if overall >= tiers[i].Min {
			return tiers[i].Badge
		}
	}
	return Newcomer
}

// PointsToNext returns how many points separate the score from the next tier
// floor. ok is false for elite, which has no next tier.
func PointsToNext(overall int) (points int, ok bool) {
	overall = clamp(overall, 0, 1000)
	for i, t := range tiers {
		if Classify(overall) == t.Badge {
			if i == len(tiers)-1 {
				return 0, false
			}
			return tiers[i+1].Min - overall, true
		}
	}
	return 0, false
}

// Rank returns the tier's position in the ordering, newcomer lowest.
func (b Badge) Rank() int {
	for i, t := range tiers {
		if t.Badge == b {
			return i
		}
	}
	return 0
}

// Outranks reports whether b is a strictly higher tier than other.
func (b Badge) Outranks(other Badge) bool {
	return b.Rank() > other.Rank()
}
