package model

import "math/rand"

// UserColors is the fixed palette participants are assigned from. Two users
// sharing a color is allowed; the draw is uniform, not collision-avoiding.
var UserColors = []string{
	"#FF6B6B",
	"#4ECDC4",
	"#45B7D1",
	"#96CEB4",
	"#FFEAA7",
	"#DDA0DD",
	"#98D8C8",
}

// RandomColor picks a palette color for a newly joined user
func RandomColor() string {
	return UserColors[rand.Intn(len(UserColors))]
}
