package world

// Kind identifies one of the supported world engines
type Kind string

const (
	// KindDebate is a phased multi-agent debate
	KindDebate Kind = "debate"
	// KindGame is a turn-based card game
	KindGame Kind = "game"
	// KindSociety is a tick-driven social simulation
	KindSociety Kind = "society"
	// KindLogic is a collaborative formal derivation
	KindLogic Kind = "logic"
)

// IsValid checks if the world kind is valid
func (k Kind) IsValid() bool {
	switch k {
	case KindDebate, KindGame, KindSociety, KindLogic:
		return true
	default:
		return false
	}
}

// EntityType classifies registered entities
type EntityType string

const (
	EntityAgent    EntityType = "agent"
	EntityObject   EntityType = "object"
	EntityLocation EntityType = "location"
	EntityZone     EntityType = "zone"
)

// IsValid checks if the entity type is valid
func (t EntityType) IsValid() bool {
	switch t {
	case EntityAgent, EntityObject, EntityLocation, EntityZone:
		return true
	default:
		return false
	}
}

// EntityStatus tracks an entity's liveness in the world
type EntityStatus string

const (
	EntityActive    EntityStatus = "active"
	EntityInactive  EntityStatus = "inactive"
	EntityDestroyed EntityStatus = "destroyed"
)
