package config

import "time"

// DefaultConfig returns the complete built-in configuration. User YAML is
// merged on top of it, so every field has a working value.
func DefaultConfig() *Config {
	return &Config{
		Server:     DefaultServerConfig(),
		EventStore: DefaultEventStoreConfig(),
		Driver:     DefaultDriverConfig(),
		LLM:        DefaultLLMConfig(),
		Debate:     DefaultDebateConfig(),
		Game:       DefaultGameConfig(),
		Society:    DefaultSocietyConfig(),
		Logic:      DefaultLogicConfig(),
	}
}

// DefaultServerConfig returns the built-in server defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Host:            "0.0.0.0",
		Port:            8080,
		ShutdownTimeout: Duration(15 * time.Second),
	}
}

// DefaultEventStoreConfig returns the built-in event store defaults.
func DefaultEventStoreConfig() *EventStoreConfig {
	return &EventStoreConfig{
		Backend:       BackendMemory,
		TTL:           Duration(24 * time.Hour),
		KeepEvents:    1000,
		SweepInterval: Duration(10 * time.Minute),
	}
}

// DefaultDriverConfig returns the built-in driver defaults.
func DefaultDriverConfig() *DriverConfig {
	return &DriverConfig{
		TickInterval:   Duration(500 * time.Millisecond),
		ActionDeadline: Duration(5 * time.Second),
		CollectTimeout: Duration(30 * time.Second),
	}
}

// DefaultLLMConfig returns the built-in generation defaults.
func DefaultLLMConfig() *LLMConfig {
	return &LLMConfig{
		MaxTokens:   1024,
		Temperature: 0.7,
	}
}

// DefaultDebateConfig returns the built-in debate tunables.
func DefaultDebateConfig() *DebateConfig {
	return &DebateConfig{
		ConsecutiveSpeakLimit: 2,
		InterruptMinPriority:  3,
		InterruptOverride:     4,
		MaxSpeakRatio:         0.5,
		ColdThreshold:         2,
		InterventionLevel:     1,
		DefaultPhaseRounds:    4,
		GlobalTimeout:         Duration(30 * time.Minute),
	}
}

// DefaultGameConfig returns the built-in game tunables.
func DefaultGameConfig() *GameConfig {
	return &GameConfig{
		AttackDamage:    20,
		HealAmount:      15,
		InitialHP:       100,
		InitialHandSize: 3,
		MaxTurns:        50,
		CardSet:         []string{"attack", "heal", "draw"},
	}
}

// DefaultSocietyConfig returns the built-in society tunables.
func DefaultSocietyConfig() *SocietyConfig {
	return &SocietyConfig{
		WorkReward:               []float64{5, 10, 20},
		WorkerRoleBonus:          1.5,
		WorkDiminishingStartTick: 50,
		WorkDiminishingRate:      0.01,
		WorkMinEfficiency:        0.5,

		ConsumeCost:                     10,
		ConsumeIndulgenceThreshold:      0.5,
		ConsumeIndulgenceCostMultiplier: 1.5,
		ConsumeMoodBoost:                0.1,
		ConsumeFailMoodPenalty:          -0.15,

		TalkRelationshipBoost:   0.1,
		TalkRelationshipPenalty: 0.15,
		TalkNeutralBoost:        0.02,
		TalkMoodDelta:           0.05,
		LeaderTalkBonus:         1.5,

		HelpRelationshipBoost: 0.15,
		HelperRoleBonus:       1.2,
		HelpMoodBoost:         0.1,

		ConflictResourceLoss:          []float64{5, 10, 20},
		ConflictRelationshipPenalty:   -0.1,
		ConflictMoodPenalty:           -0.1,
		ConflictEscalationThreshold:   -0.3,
		ConflictEscalationProbability: 0.3,

		ShockInterval:    20,
		ShockAgentCount:  2,
		ShockResourceMin: 5,
		ShockResourceMax: 15,
		ShockMoodMin:     0.1,
		ShockMoodMax:     0.3,

		LowMoodThreshold:          -0.5,
		ZeroResourceExitThreshold: 3,
		LowMoodExitThreshold:      5,

		RegenerationRate:       5,
		MaxTicks:               0,
		InitialResources:       50,
		InitialMood:            0,
		InitialCommunityPool:   100,
		InitialEnvironmentPool: 1000,
	}
}

// DefaultLogicConfig returns the built-in logic tunables.
func DefaultLogicConfig() *LogicConfig {
	return &LogicConfig{MaxRounds: 20}
}
