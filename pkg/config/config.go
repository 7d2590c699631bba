// Package config loads and validates world-engine configuration. Numeric
// world semantics (rewards, penalties, thresholds, intervals) are
// centralized here so engine code never hard-codes tunables.
package config

import "time"

// EventStoreBackend selects the event log implementation
type EventStoreBackend string

const (
	// BackendMemory keeps event logs in process memory
	BackendMemory EventStoreBackend = "memory"
	// BackendRedis keeps event logs in Redis with a TTL
	BackendRedis EventStoreBackend = "redis"
)

// IsValid checks if the backend is valid
func (b EventStoreBackend) IsValid() bool {
	return b == BackendMemory || b == BackendRedis
}

// Config is the complete runtime configuration.
type Config struct {
	Server     *ServerConfig     `yaml:"server"`
	EventStore *EventStoreConfig `yaml:"event_store"`
	Driver     *DriverConfig     `yaml:"driver"`
	LLM        *LLMConfig        `yaml:"llm"`
	Debate     *DebateConfig     `yaml:"debate"`
	Game       *GameConfig       `yaml:"game"`
	Society    *SocietyConfig    `yaml:"society"`
	Logic      *LogicConfig      `yaml:"logic"`
}

// ServerConfig groups the HTTP/WS surface settings.
type ServerConfig struct {
	Host             string   `yaml:"host"`
	Port             int      `yaml:"port"`
	AllowedWSOrigins []string `yaml:"allowed_ws_origins"`
	ShutdownTimeout  Duration `yaml:"shutdown_timeout"`
}

// EventStoreConfig selects and tunes the event log backend.
type EventStoreConfig struct {
	Backend  EventStoreBackend `yaml:"backend"`
	RedisURL string            `yaml:"redis_url"`
	TTL      Duration          `yaml:"ttl"`
	// KeepEvents bounds per-session log growth; the retention sweeper
	// prunes older events beyond this count. Zero disables pruning.
	KeepEvents int `yaml:"keep_events"`
	// SweepInterval is how often the retention sweeper runs.
	SweepInterval Duration `yaml:"sweep_interval"`
}

// DriverConfig tunes the per-session tick driver.
type DriverConfig struct {
	// TickInterval paces interval-driven worlds (Society).
	TickInterval Duration `yaml:"tick_interval"`
	// ActionDeadline bounds how long event-driven worlds (Debate, Game,
	// Logic) wait for agent actions before stepping with what arrived.
	ActionDeadline Duration `yaml:"action_deadline"`
	// CollectTimeout bounds each per-agent LLM call during fan-out.
	CollectTimeout Duration `yaml:"collect_timeout"`
}

// LLMConfig carries provider-independent generation defaults. Which
// provider implementation serves them is wired at process startup.
type LLMConfig struct {
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

// DebateConfig tunes the debate world kind.
type DebateConfig struct {
	ConsecutiveSpeakLimit int     `yaml:"consecutive_speak_limit"`
	InterruptMinPriority  int     `yaml:"interrupt_min_priority"`
	InterruptOverride     int     `yaml:"interrupt_override_priority"`
	MaxSpeakRatio         float64 `yaml:"max_speak_ratio"`
	ColdThreshold         int     `yaml:"cold_threshold"`
	InterventionLevel     int     `yaml:"intervention_level"`
	// DefaultPhaseRounds sizes the built-in flow used when a session
	// supplies no phases of its own.
	DefaultPhaseRounds int      `yaml:"default_phase_rounds"`
	GlobalTimeout      Duration `yaml:"global_timeout"`
}

// GameConfig tunes the card-game world kind.
type GameConfig struct {
	AttackDamage    int      `yaml:"attack_damage"`
	HealAmount      int      `yaml:"heal_amount"`
	InitialHP       int      `yaml:"initial_hp"`
	InitialHandSize int      `yaml:"initial_hand_size"`
	MaxTurns        int      `yaml:"max_turns"`
	CardSet         []string `yaml:"card_set"`
}

// SocietyConfig tunes the social-simulation world kind.
type SocietyConfig struct {
	WorkReward               []float64 `yaml:"work_reward"`
	WorkerRoleBonus          float64   `yaml:"worker_role_bonus"`
	WorkDiminishingStartTick int64     `yaml:"work_diminishing_start_tick"`
	WorkDiminishingRate      float64   `yaml:"work_diminishing_rate"`
	WorkMinEfficiency        float64   `yaml:"work_min_efficiency"`

	ConsumeCost                     float64 `yaml:"consume_cost"`
	ConsumeIndulgenceThreshold      float64 `yaml:"consume_indulgence_threshold"`
	ConsumeIndulgenceCostMultiplier float64 `yaml:"consume_indulgence_cost_multiplier"`
	ConsumeMoodBoost                float64 `yaml:"consume_mood_boost"`
	ConsumeFailMoodPenalty          float64 `yaml:"consume_fail_mood_penalty"`

	TalkRelationshipBoost   float64 `yaml:"talk_relationship_boost"`
	TalkRelationshipPenalty float64 `yaml:"talk_relationship_penalty"`
	TalkNeutralBoost        float64 `yaml:"talk_neutral_boost"`
	TalkMoodDelta           float64 `yaml:"talk_mood_delta"`
	LeaderTalkBonus         float64 `yaml:"leader_talk_bonus"`

	HelpRelationshipBoost float64 `yaml:"help_relationship_boost"`
	HelperRoleBonus       float64 `yaml:"helper_role_bonus"`
	HelpMoodBoost         float64 `yaml:"help_mood_boost"`

	ConflictResourceLoss          []float64 `yaml:"conflict_resource_loss"`
	ConflictRelationshipPenalty   float64   `yaml:"conflict_relationship_penalty"`
	ConflictMoodPenalty           float64   `yaml:"conflict_mood_penalty"`
	ConflictEscalationThreshold   float64   `yaml:"conflict_escalation_threshold"`
	ConflictEscalationProbability float64   `yaml:"conflict_escalation_probability"`

	ShockInterval    int64   `yaml:"shock_interval"`
	ShockAgentCount  int     `yaml:"shock_agent_count"`
	ShockResourceMin float64 `yaml:"shock_resource_min"`
	ShockResourceMax float64 `yaml:"shock_resource_max"`
	ShockMoodMin     float64 `yaml:"shock_mood_min"`
	ShockMoodMax     float64 `yaml:"shock_mood_max"`

	LowMoodThreshold          float64 `yaml:"low_mood_threshold"`
	ZeroResourceExitThreshold int     `yaml:"zero_resource_exit_threshold"`
	LowMoodExitThreshold      int     `yaml:"low_mood_exit_threshold"`

	RegenerationRate       float64 `yaml:"regeneration_rate"`
	MaxTicks               int64   `yaml:"max_ticks"`
	InitialResources       float64 `yaml:"initial_resources"`
	InitialMood            float64 `yaml:"initial_mood"`
	InitialCommunityPool   float64 `yaml:"initial_community_pool"`
	InitialEnvironmentPool float64 `yaml:"initial_environment_pool"`
}

// LogicConfig tunes the formal-derivation world kind.
type LogicConfig struct {
	MaxRounds int `yaml:"max_rounds"`
}

// Duration wraps time.Duration with YAML string parsing ("500ms", "24h").
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }
