package models

// ShardType is the closed set of shard categories tracked by the bot.
// The order of DisplayOrder matches the in-game inventory panel top to bottom.
type ShardType string

const (
	ShardMystery ShardType = "mystery"
	ShardAncient ShardType = "ancient"
	ShardVoid    ShardType = "void"
	ShardPrimal  ShardType = "primal"
	ShardSacred  ShardType = "sacred"
)

// DisplayOrder is the canonical top-to-bottom ordering of the five counters.
var DisplayOrder = [5]ShardType{ShardMystery, ShardAncient, ShardVoid, ShardPrimal, ShardSacred}

// Valid reports whether s is one of the five known shard types.
func (s ShardType) Valid() bool {
	switch s {
	case ShardMystery, ShardAncient, ShardVoid, ShardPrimal, ShardSacred:
		return true
	}
	return false
}

func (s ShardType) String() string { return string(s) }

// RarityFlags annotate a pull batch. Legendary drives the mercy reset;
// Guaranteed and Extra qualify how that reset is reported.
type RarityFlags struct {
	Legendary  bool `json:"legendary"`
	Guaranteed bool `json:"guaranteed"`
	Extra      bool `json:"extra"`
	Epic       bool `json:"epic"`
	Mythical   bool `json:"mythical"`
}
