package app

// Seat count bounds for a room. Two seats play 9-tile hands, three and four
// play 7-tile hands; anything outside this range cannot partition the set.
const (
	MinSeats = 2
	MaxSeats = 4
)
