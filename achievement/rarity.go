// Package achievement implements the achievement registry, the award pass
// that grants achievements off recomputed user stats, and the rarity cycle
// that grades every achievement by how small a share of the population has
// earned it.
package achievement

// RarityTier grades an achievement by the share of the population that has
// earned it.
type RarityTier struct {
	Name string
	// Upper bound percentage for this tier, inclusive.
	Threshold float64
}

// RarityTiers is ordered from most rare to least rare. The first tier whose
// threshold covers the earn percentage wins.
var RarityTiers = []RarityTier{
	{Name: "Mythic", Threshold: 0.1},
	{Name: "Legendary", Threshold: 1.0},
	{Name: "Diamond", Threshold: 2.0},
	{Name: "Platinum", Threshold: 5.0},
	{Name: "Gold", Threshold: 10.0},
	{Name: "Silver", Threshold: 25.0},
	{Name: "Bronze", Threshold: 100.0},
}

// TierFor maps an earn percentage to its rarity tier.
func TierFor(percentage float64) RarityTier {
	for _, tier := range RarityTiers {
		if percentage <= tier.Threshold {
			return tier
		}
	}
	return RarityTiers[len(RarityTiers)-1]
}
