package market

import "fmt"

// Badge is a cosmetic tier derived from donation history.
type Badge struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

const streakBadgeDays = 7

// BadgesFor returns at most one tier badge (highest reached) plus a streak
// badge. streak is carried for completeness; nothing increments it today.
func BadgesFor(totalDonations, streak int) []Badge {
	var badges []Badge
	switch {
	case totalDonations >= 50:
		badges = append(badges, Badge{Key: "gold", Label: "Gold Donor"})
	case totalDonations >= 20:
		badges = append(badges, Badge{Key: "silver", Label: "Silver Donor"})
	case totalDonations >= 5:
		badges = append(badges, Badge{Key: "bronze", Label: "Bronze Donor"})
	}
	if streak >= streakBadgeDays {
		badges = append(badges, Badge{Key: "streak", Label: fmt.Sprintf("%d Day Streak", streak)})
	}
	return badges
}
