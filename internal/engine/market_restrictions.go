package engine

// Item types that show up in order data but cannot be hauled between
// regional markets. Keep this list to hard-verified types.
const (
	plexTypeID int32 = 44992 // PLEX, traded on the global vault market
	mptcTypeID int32 = 34133 // Multiple Pilot Training Certificate
)

var marketDisabledTypeIDs = map[int32]struct{}{
	plexTypeID: {},
	mptcTypeID: {},
}

const playerStructureLocationIDMin int64 = 1_000_000_000_000

func isMarketDisabledType(typeID int32) bool {
	_, blocked := marketDisabledTypeIDs[typeID]
	return blocked
}

// isPlayerStructureLocationID reports whether a market location id belongs to an Upwell structure.
// Structure markets need docking rights, so routes never start or end there.
func isPlayerStructureLocationID(locationID int64) bool {
	return locationID > playerStructureLocationIDMin
}

// restricted reports whether a snapshot must be left out of route computation.
func restricted(locationID int64, typeID int32) bool {
	return isMarketDisabledType(typeID) || isPlayerStructureLocationID(locationID)
}
