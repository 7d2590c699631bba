// Package society implements the tick-driven social simulation world
// kind: agents work, consume, talk, help, and clash while the world
// applies periodic shocks and attrition until nobody active remains.
package society

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/agentarium/worldengine/pkg/config"
	"github.com/agentarium/worldengine/pkg/engine"
	"github.com/agentarium/worldengine/pkg/world"
)

// Action types accepted by the society rule engine.
const (
	ActionWork     = "work"
	ActionConsume  = "consume"
	ActionTalk     = "talk"
	ActionHelp     = "help"
	ActionConflict = "conflict"
	ActionIdle     = "idle"
)

// Talk flavors.
const (
	TalkFriendly = "friendly"
	TalkHostile  = "hostile"
	TalkNeutral  = "neutral"
)

// Event types emitted by society worlds.
const (
	EventSocietyStart       = "SOCIETY_START"
	EventTickStart          = "TICK_START"
	EventActionAccepted     = "ACTION_ACCEPTED"
	EventActionRejected     = "ACTION_REJECTED"
	EventConflictEscalation = "CONFLICT_ESCALATION"
	EventShock              = "SHOCK_EVENT"
	EventAgentExit          = "AGENT_EXIT"
	EventTickEnd            = "TICK_END"
	EventStateDelta         = "STATE_DELTA"
	EventSocietyEnd         = "SOCIETY_END"
)

// Exit reasons carried on AGENT_EXIT events.
const (
	ExitNoResources = "ran out of resources"
	ExitLowMood     = "morale collapsed"
)

// Rules validates and applies social actions and runs the per-tick
// constraint sweep: shocks, exit attrition, and aggregate statistics.
type Rules struct {
	cfg *config.SocietyConfig
	rng *rand.Rand
	// roll decides work success and conflict escalation; split out so
	// outcome-dependent tests can pin it.
	roll func() float64
}

// NewRules builds the society rule set around a seeded source.
func NewRules(cfg *config.SocietyConfig, rng *rand.Rand) *Rules {
	return &Rules{cfg: cfg, rng: rng, roll: rng.Float64}
}

// Validate implements engine.RuleEngine.
func (r *Rules) Validate(a world.Action, s *world.State) world.Validation {
	so := s.Society
	ag, ok := so.Agents[a.AgentID]
	if !ok {
		return world.Invalid(fmt.Sprintf("agent %s is not part of the society", a.AgentID))
	}
	if !ag.IsActive {
		return world.Invalid(fmt.Sprintf("agent %s has left the society", a.AgentID))
	}

	switch a.ActionType {
	case ActionWork:
		if i := a.ParamInt("intensity", 1); i < 1 || i > 3 {
			return world.Invalid("work intensity must be 1, 2, or 3")
		}
	case ActionConsume, ActionIdle:
	case ActionTalk:
		if v := validTarget(a, so); !v.IsValid {
			return v
		}
		switch a.ParamString("talkType") {
		case "", TalkFriendly, TalkHostile, TalkNeutral:
		default:
			return world.Invalid(fmt.Sprintf("unknown talk type %q", a.ParamString("talkType")))
		}
	case ActionHelp:
		if v := validTarget(a, so); !v.IsValid {
			return v
		}
		amount := a.ParamFloat("amount", 0)
		if amount <= 0 {
			return world.Invalid("help requires a positive amount")
		}
		if ag.Resources < amount {
			return world.Invalid(fmt.Sprintf("agent %s holds %.1f resources and cannot give %.1f",
				a.AgentID, ag.Resources, amount))
		}
	case ActionConflict:
		if v := validTarget(a, so); !v.IsValid {
			return v
		}
		if i := a.ParamInt("intensity", 1); i < 1 || i > 3 {
			return world.Invalid("conflict intensity must be 1, 2, or 3")
		}
	default:
		return world.Invalid(fmt.Sprintf("unknown society action type %q", a.ActionType))
	}
	return world.Valid()
}

func validTarget(a world.Action, so *world.SocietyState) world.Validation {
	if a.Target == nil || a.Target.ID == "" {
		return world.Invalid(fmt.Sprintf("%s requires a target", a.ActionType))
	}
	if a.Target.ID == a.AgentID {
		return world.Invalid("an agent cannot target itself")
	}
	target, ok := so.Agents[a.Target.ID]
	if !ok {
		return world.Invalid(fmt.Sprintf("target %s is not part of the society", a.Target.ID))
	}
	if !target.IsActive {
		return world.Invalid(fmt.Sprintf("target %s has left the society", a.Target.ID))
	}
	return world.Valid()
}

// Apply implements engine.RuleEngine.
func (r *Rules) Apply(a world.Action, s *world.State) world.ActionResult {
	result := world.ActionResult{Action: a, Success: true}
	switch a.ActionType {
	case ActionWork:
		r.applyWork(a, s, &result)
	case ActionConsume:
		r.applyConsume(a, s, &result)
	case ActionTalk:
		r.applyTalk(a, s, &result)
	case ActionHelp:
		r.applyHelp(a, s, &result)
	case ActionConflict:
		r.applyConflict(a, s, &result)
	case ActionIdle:
		// Sitting a tick out is a legitimate choice.
	}
	return result
}

func (r *Rules) applyWork(a world.Action, s *world.State, result *world.ActionResult) {
	so := s.Society
	ag := so.Agents[a.AgentID]
	intensity := a.ParamInt("intensity", 1)

	chance := world.ClampUnit(0.7 + ag.Mood*0.3)
	if r.roll() >= chance {
		result.Events = append(result.Events, world.Event{
			EventType: EventActionAccepted,
			Source:    a.AgentID,
			Content:   fmt.Sprintf("%s works hard but has nothing to show for it", agentName(s, a.AgentID)),
			Meta: map[string]any{
				"actionType":         ActionWork,
				"intensity":          intensity,
				"reward":             0.0,
				world.MetaVisibility: world.VisibilityPublic,
			},
		})
		return
	}

	reward := math.Floor(r.cfg.WorkReward[intensity-1] * r.roleBonus(ag) * r.efficiency(so.TimeTick))
	old := ag.Resources
	ag.Resources += reward
	result.Effects = append(result.Effects, world.StateChange{
		ChangeType: world.ChangeUpdate,
		EntityType: "agent",
		EntityID:   a.AgentID,
		FieldPath:  "resources",
		OldValue:   old,
		NewValue:   ag.Resources,
	})
	result.Events = append(result.Events, world.Event{
		EventType: EventActionAccepted,
		Source:    a.AgentID,
		Content:   fmt.Sprintf("%s works and earns %.0f", agentName(s, a.AgentID), reward),
		Meta: map[string]any{
			"actionType":         ActionWork,
			"intensity":          intensity,
			"reward":             reward,
			world.MetaVisibility: world.VisibilityPublic,
		},
	})
}

func (r *Rules) roleBonus(ag *world.SocietyAgent) float64 {
	if ag.Role == world.RoleWorker {
		return r.cfg.WorkerRoleBonus
	}
	return 1
}

// efficiency decays work yield once the run outlives the diminishing
// start tick, floored at the configured minimum.
func (r *Rules) efficiency(tick int64) float64 {
	over := tick - r.cfg.WorkDiminishingStartTick
	if over <= 0 {
		return 1
	}
	return math.Max(r.cfg.WorkMinEfficiency, 1-float64(over)*r.cfg.WorkDiminishingRate)
}

func (r *Rules) applyConsume(a world.Action, s *world.State, result *world.ActionResult) {
	ag := s.Society.Agents[a.AgentID]

	cost := r.cfg.ConsumeCost
	if ag.Mood > r.cfg.ConsumeIndulgenceThreshold {
		cost *= r.cfg.ConsumeIndulgenceCostMultiplier
	}
	paid := math.Min(cost, ag.Resources)
	satisfied := paid >= cost

	oldRes, oldMood := ag.Resources, ag.Mood
	ag.Resources -= paid
	if satisfied {
		ag.Mood = world.ClampSigned(ag.Mood + r.cfg.ConsumeMoodBoost)
	} else {
		ag.Mood = world.ClampSigned(ag.Mood + r.cfg.ConsumeFailMoodPenalty)
	}

	result.Effects = append(result.Effects,
		world.StateChange{
			ChangeType: world.ChangeUpdate, EntityType: "agent", EntityID: a.AgentID,
			FieldPath: "resources", OldValue: oldRes, NewValue: ag.Resources,
		},
		world.StateChange{
			ChangeType: world.ChangeUpdate, EntityType: "agent", EntityID: a.AgentID,
			FieldPath: "mood", OldValue: oldMood, NewValue: ag.Mood,
		},
	)
	content := fmt.Sprintf("%s consumes %.1f resources", agentName(s, a.AgentID), paid)
	if !satisfied {
		content = fmt.Sprintf("%s cannot afford to consume and goes without", agentName(s, a.AgentID))
	}
	result.Events = append(result.Events, world.Event{
		EventType: EventActionAccepted,
		Source:    a.AgentID,
		Content:   content,
		Meta: map[string]any{
			"actionType":         ActionConsume,
			"consumed":           paid,
			"satisfied":          satisfied,
			world.MetaVisibility: world.VisibilityPublic,
		},
	})
}

func (r *Rules) applyTalk(a world.Action, s *world.State, result *world.ActionResult) {
	so := s.Society
	ag := so.Agents[a.AgentID]
	target := so.Agents[a.Target.ID]

	talkType := a.ParamString("talkType")
	if talkType == "" {
		talkType = TalkNeutral
	}

	// A hostile word between already-sour parties can boil over into a
	// full conflict at intensity 1.
	if talkType == TalkHostile &&
		ag.Relationships[a.Target.ID] < r.cfg.ConflictEscalationThreshold &&
		r.roll() < r.cfg.ConflictEscalationProbability {
		fromLoss, toLoss := r.applyConflictEffects(a.AgentID, a.Target.ID, 1, s, result)
		result.Events = append(result.Events, world.Event{
			EventType: EventConflictEscalation,
			Source:    a.AgentID,
			Content: fmt.Sprintf("A hostile exchange between %s and %s boils over into open conflict",
				agentName(s, a.AgentID), agentName(s, a.Target.ID)),
			Meta: map[string]any{
				"agentId":            a.AgentID,
				"targetId":           a.Target.ID,
				"initiatorLoss":      fromLoss,
				"targetLoss":         toLoss,
				world.MetaVisibility: world.VisibilityPublic,
			},
		})
		return
	}

	var rel float64
	switch talkType {
	case TalkFriendly:
		boost := r.cfg.TalkRelationshipBoost
		if ag.Role == world.RoleLeader {
			boost *= r.cfg.LeaderTalkBonus
		}
		rel = shiftRelationship(so, a.AgentID, a.Target.ID, boost)
		ag.Mood = world.ClampSigned(ag.Mood + r.cfg.TalkMoodDelta)
		target.Mood = world.ClampSigned(target.Mood + r.cfg.TalkMoodDelta)
	case TalkHostile:
		rel = shiftRelationship(so, a.AgentID, a.Target.ID, -r.cfg.TalkRelationshipPenalty)
		ag.Mood = world.ClampSigned(ag.Mood - r.cfg.TalkMoodDelta)
		target.Mood = world.ClampSigned(target.Mood - r.cfg.TalkMoodDelta)
	case TalkNeutral:
		rel = shiftRelationship(so, a.AgentID, a.Target.ID, r.cfg.TalkNeutralBoost)
	}

	result.Effects = append(result.Effects, world.StateChange{
		ChangeType: world.ChangeUpdate,
		EntityType: "relationship",
		EntityID:   a.AgentID,
		FieldPath:  "relationships." + a.Target.ID,
		NewValue:   rel,
	})
	result.Events = append(result.Events, world.Event{
		EventType: EventActionAccepted,
		Source:    a.AgentID,
		Content: fmt.Sprintf("%s has a %s word with %s",
			agentName(s, a.AgentID), talkType, agentName(s, a.Target.ID)),
		Meta: map[string]any{
			"actionType":         ActionTalk,
			"talkType":           talkType,
			"targetId":           a.Target.ID,
			"relationship":       rel,
			world.MetaVisibility: world.VisibilityPublic,
		},
	})
}

func (r *Rules) applyHelp(a world.Action, s *world.State, result *world.ActionResult) {
	so := s.Society
	helper := so.Agents[a.AgentID]
	target := so.Agents[a.Target.ID]
	amount := a.ParamFloat("amount", 0)

	oldFrom, oldTo := helper.Resources, target.Resources
	helper.Resources -= amount
	target.Resources += amount

	boost := r.cfg.HelpRelationshipBoost
	if helper.Role == world.RoleHelper {
		boost *= r.cfg.HelperRoleBonus
	}
	rel := shiftRelationship(so, a.AgentID, a.Target.ID, boost)
	helper.Mood = world.ClampSigned(helper.Mood + r.cfg.HelpMoodBoost)
	target.Mood = world.ClampSigned(target.Mood + r.cfg.HelpMoodBoost)

	result.Effects = append(result.Effects,
		world.StateChange{
			ChangeType: world.ChangeTransfer, EntityType: "agent", EntityID: a.AgentID,
			FieldPath: "resources", OldValue: oldFrom, NewValue: helper.Resources,
		},
		world.StateChange{
			ChangeType: world.ChangeTransfer, EntityType: "agent", EntityID: a.Target.ID,
			FieldPath: "resources", OldValue: oldTo, NewValue: target.Resources,
		},
	)
	result.Events = append(result.Events, world.Event{
		EventType: EventActionAccepted,
		Source:    a.AgentID,
		Content: fmt.Sprintf("%s gives %.1f resources to %s",
			agentName(s, a.AgentID), amount, agentName(s, a.Target.ID)),
		Meta: map[string]any{
			"actionType":         ActionHelp,
			"targetId":           a.Target.ID,
			"amount":             amount,
			"relationship":       rel,
			world.MetaVisibility: world.VisibilityPublic,
		},
	})
}

func (r *Rules) applyConflict(a world.Action, s *world.State, result *world.ActionResult) {
	intensity := a.ParamInt("intensity", 1)
	fromLoss, toLoss := r.applyConflictEffects(a.AgentID, a.Target.ID, intensity, s, result)
	result.Events = append(result.Events, world.Event{
		EventType: EventActionAccepted,
		Source:    a.AgentID,
		Content: fmt.Sprintf("%s picks a fight with %s",
			agentName(s, a.AgentID), agentName(s, a.Target.ID)),
		Meta: map[string]any{
			"actionType":         ActionConflict,
			"targetId":           a.Target.ID,
			"intensity":          intensity,
			"initiatorLoss":      fromLoss,
			"targetLoss":         toLoss,
			world.MetaVisibility: world.VisibilityPublic,
		},
	})
}

// applyConflictEffects burns resources on both sides, sours the
// relationship in proportion to intensity, and drops both moods.
func (r *Rules) applyConflictEffects(fromID, toID string, intensity int, s *world.State, result *world.ActionResult) (fromLoss, toLoss float64) {
	so := s.Society
	from := so.Agents[fromID]
	to := so.Agents[toID]

	loss := r.cfg.ConflictResourceLoss[intensity-1]
	fromLoss = math.Min(loss, from.Resources)
	toLoss = math.Min(loss, to.Resources)

	oldFrom, oldTo := from.Resources, to.Resources
	from.Resources -= fromLoss
	to.Resources -= toLoss
	shiftRelationship(so, fromID, toID, r.cfg.ConflictRelationshipPenalty*float64(intensity))
	from.Mood = world.ClampSigned(from.Mood + r.cfg.ConflictMoodPenalty)
	to.Mood = world.ClampSigned(to.Mood + r.cfg.ConflictMoodPenalty)

	result.Effects = append(result.Effects,
		world.StateChange{
			ChangeType: world.ChangeUpdate, EntityType: "agent", EntityID: fromID,
			FieldPath: "resources", OldValue: oldFrom, NewValue: from.Resources,
		},
		world.StateChange{
			ChangeType: world.ChangeUpdate, EntityType: "agent", EntityID: toID,
			FieldPath: "resources", OldValue: oldTo, NewValue: to.Resources,
		},
	)
	return fromLoss, toLoss
}

// shiftRelationship moves both directions of a pair's relationship by
// delta and returns the initiator's new value.
func shiftRelationship(so *world.SocietyState, from, to string, delta float64) float64 {
	a := so.Agents[from]
	b := so.Agents[to]
	a.Relationships[to] = world.ClampSigned(a.Relationships[to] + delta)
	b.Relationships[from] = world.ClampSigned(b.Relationships[from] + delta)
	return a.Relationships[to]
}

// EnforceConstraints implements engine.RuleEngine: the per-tick sweep.
// It runs before the tick counter advances, so the tick being closed is
// TimeTick+1; shocks fire when that tick hits the configured interval,
// then exit attrition is applied and aggregates are recomputed.
func (r *Rules) EnforceConstraints(s *world.State) engine.ConstraintResult {
	so := s.Society
	tick := so.TimeTick + 1
	var cr engine.ConstraintResult

	if r.cfg.ShockInterval > 0 && tick%r.cfg.ShockInterval == 0 {
		r.applyShock(s, tick, &cr)
	}
	r.sweepExits(s, tick, &cr)
	recomputeStats(so)
	return cr
}

func (r *Rules) applyShock(s *world.State, tick int64, cr *engine.ConstraintResult) {
	so := s.Society
	active := so.ActiveAgentIDs()
	if len(active) == 0 {
		return
	}
	sort.Strings(active)

	count := r.cfg.ShockAgentCount
	if count > len(active) {
		count = len(active)
	}
	perm := r.rng.Perm(len(active))

	affected := make([]map[string]any, 0, count)
	for _, idx := range perm[:count] {
		id := active[idx]
		ag := so.Agents[id]

		resourceLoss := r.cfg.ShockResourceMin + r.rng.Float64()*(r.cfg.ShockResourceMax-r.cfg.ShockResourceMin)
		moodLoss := r.cfg.ShockMoodMin + r.rng.Float64()*(r.cfg.ShockMoodMax-r.cfg.ShockMoodMin)

		oldRes, oldMood := ag.Resources, ag.Mood
		ag.Resources = math.Max(0, ag.Resources-resourceLoss)
		ag.Mood = world.ClampSigned(ag.Mood - moodLoss)

		affected = append(affected, map[string]any{
			"agentId":      id,
			"resourceLoss": resourceLoss,
			"moodLoss":     moodLoss,
		})
		cr.Changes = append(cr.Changes,
			world.StateChange{
				ChangeType: world.ChangeUpdate, EntityType: "agent", EntityID: id,
				FieldPath: "resources", OldValue: oldRes, NewValue: ag.Resources,
			},
			world.StateChange{
				ChangeType: world.ChangeUpdate, EntityType: "agent", EntityID: id,
				FieldPath: "mood", OldValue: oldMood, NewValue: ag.Mood,
			},
		)
	}

	cr.Events = append(cr.Events, world.Event{
		EventType: EventShock,
		Source:    world.SourceSystem,
		Content:   fmt.Sprintf("An external shock hits %d members of the society", len(affected)),
		Meta: map[string]any{
			"tick":               tick,
			"affected":           affected,
			world.MetaVisibility: world.VisibilityPublic,
		},
	})
}

// sweepExits advances the attrition counters and retires agents that
// crossed an exit threshold. Counters are left at their crossing values
// so the exit event records what tripped it.
func (r *Rules) sweepExits(s *world.State, tick int64, cr *engine.ConstraintResult) {
	so := s.Society
	ids := make([]string, 0, len(so.Agents))
	for id, ag := range so.Agents {
		if ag.IsActive {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	for _, id := range ids {
		ag := so.Agents[id]
		if ag.Resources <= 0 {
			ag.ZeroResourceTicks++
		} else {
			ag.ZeroResourceTicks = 0
		}
		if ag.Mood < r.cfg.LowMoodThreshold {
			ag.LowMoodTicks++
		} else {
			ag.LowMoodTicks = 0
		}

		var reason string
		switch {
		case ag.ZeroResourceTicks >= r.cfg.ZeroResourceExitThreshold:
			reason = ExitNoResources
		case ag.LowMoodTicks >= r.cfg.LowMoodExitThreshold:
			reason = ExitLowMood
		default:
			continue
		}

		ag.IsActive = false
		if ent, ok := s.Entities[id]; ok {
			ent.Status = world.EntityInactive
		}
		cr.Changes = append(cr.Changes, world.StateChange{
			ChangeType: world.ChangeUpdate, EntityType: "agent", EntityID: id,
			FieldPath: "isActive", OldValue: true, NewValue: false,
		})
		cr.Events = append(cr.Events, world.Event{
			EventType: EventAgentExit,
			Source:    world.SourceSystem,
			Content:   fmt.Sprintf("%s leaves the society: %s", agentName(s, id), reason),
			Meta: map[string]any{
				"agentId":            id,
				"reason":             reason,
				"tick":               tick,
				"zeroResourceTicks":  ag.ZeroResourceTicks,
				"lowMoodTicks":       ag.LowMoodTicks,
				world.MetaVisibility: world.VisibilityPublic,
			},
		})
	}
}

// recomputeStats refreshes the aggregates and the stability index over
// active agents.
func recomputeStats(so *world.SocietyState) {
	var (
		n         int
		moodSum   float64
		resSum    float64
		resources []float64
	)
	for _, ag := range so.Agents {
		if !ag.IsActive {
			continue
		}
		n++
		moodSum += ag.Mood
		resSum += ag.Resources
		resources = append(resources, ag.Resources)
	}
	if n == 0 {
		so.Stats = world.SocietyStats{}
		so.StabilityIndex = 0
		return
	}

	g := gini(resources)
	avgMood := moodSum / float64(n)
	so.Stats = world.SocietyStats{
		ActiveAgents:   n,
		AvgMood:        avgMood,
		AvgResources:   resSum / float64(n),
		TotalResources: resSum,
		Gini:           g,
	}
	so.StabilityIndex = math.Max(0, (avgMood+1)/2*(1-g))
}

// gini computes the Gini coefficient of the given values in [0,1].
func gini(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	sort.Float64s(values)
	var sum, weighted float64
	for i, v := range values {
		sum += v
		weighted += float64(i+1) * v
	}
	if sum == 0 {
		return 0
	}
	g := 2*weighted/(float64(n)*sum) - float64(n+1)/float64(n)
	return world.Clamp(g, 0, 1)
}

func agentName(s *world.State, id string) string {
	if ent, ok := s.Entities[id]; ok && ent.Name != "" {
		return ent.Name
	}
	return id
}
