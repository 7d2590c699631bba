// Package agent turns language-model completions into world actions. The
// session driver fans out one NextAction call per eligible agent; the actor
// renders that agent's view of the world, asks the provider for a move, and
// parses the JSON reply into a world.Action. Provider or parse failures
// leave the agent idle for the step.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/agentarium/worldengine/pkg/llm"
	"github.com/agentarium/worldengine/pkg/world"
)

const defaultMaxTokens = 1024

// outputSchema instructs the model to reply with a single JSON action
// object. The parser tolerates fences and surrounding prose but not
// multiple candidate objects.
const outputSchema = `Reply with exactly one JSON object and nothing else, for example:
{"actionType": "speak", "params": {"content": "..."}, "confidence": 0.8}
Optional fields: "target" ({"type": "agent", "id": "<agentId>"}) and "priority" (an integer).
Reply {"actionType": "idle"} to do nothing this turn.`

// kindVocabulary lists the action surface per world kind, matching what
// the rule engines accept.
var kindVocabulary = map[world.Kind]string{
	world.KindDebate: `Available actions:
- speak, respond, question: params {"content": string}; respond and question take a target agent
- interrupt: params {"content": string}; only while interruptions are allowed
- vote: params {"choice": string, "content": string}; only during a voting phase
- pass: yield this turn`,
	world.KindGame: `Available actions:
- play_card: params {"card": "attack" | "heal" | "draw"}; attack takes a target agent
- pass: end your turn without playing`,
	world.KindSociety: `Available actions:
- work: params {"intensity": 1 to 3}
- consume: spend resources to restore mood
- talk: params {"talkType": "friendly" | "hostile" | "neutral"}; takes a target agent
- help: params {"amount": positive number}; takes a target agent
- conflict: params {"intensity": 1 to 3}; takes a target agent
- idle: do nothing this tick`,
	world.KindLogic: `Available actions:
- derive: params {"conclusion": "<LaTeX>", "premises": ["<hypothesis or conclusion id>", ...], "rule": string}
- refute: params {"targetId": "<pending proposal id>", "reason": string, "type": "contradiction" | "gap"}
- extend: params {"baseId": "<accepted conclusion id>", "conclusion": "<LaTeX>", "rule": string}
- accept: params {"proposalId": "<pending proposal id>"}`,
}

// Persona is the fixed identity an agent acts from.
type Persona struct {
	ID     string
	Name   string
	Stance string
	Role   string
}

// Params configures an actor. Provider is required; everything else has
// a usable zero value.
type Params struct {
	Provider    llm.Provider
	Kind        world.Kind
	Topic       string
	Personas    []Persona
	MaxTokens   int
	Temperature float64
}

// Actor asks a completion provider for each agent's next move. Stateless
// between calls; all world knowledge comes from the snapshot the driver
// passes in. Safe for concurrent use.
type Actor struct {
	provider    llm.Provider
	kind        world.Kind
	topic       string
	personas    map[string]Persona
	maxTokens   int
	temperature float64
}

// New builds an actor for one session's agents.
func New(p Params) *Actor {
	maxTokens := p.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	personas := make(map[string]Persona, len(p.Personas))
	for _, per := range p.Personas {
		personas[per.ID] = per
	}
	return &Actor{
		provider:    p.Provider,
		kind:        p.Kind,
		topic:       p.Topic,
		personas:    personas,
		maxTokens:   maxTokens,
		temperature: p.Temperature,
	}
}

// NextAction implements the driver fan-out contract. A nil action with nil
// error means the agent chose to idle.
func (a *Actor) NextAction(ctx context.Context, agentID string, state *world.State) (*world.Action, error) {
	persona, ok := a.personas[agentID]
	if !ok {
		persona = Persona{ID: agentID, Name: agentID}
	}

	out, err := a.provider.Generate(ctx, llm.Request{
		SessionID:   state.WorldID,
		AgentID:     agentID,
		System:      a.systemPrompt(persona),
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: a.userPrompt(persona, state)}},
		MaxTokens:   a.maxTokens,
		Temperature: a.temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("generating action for %s: %w", agentID, err)
	}
	return a.parseAction(agentID, out)
}

func (a *Actor) systemPrompt(p Persona) string {
	var b strings.Builder
	name := p.Name
	if name == "" {
		name = p.ID
	}
	fmt.Fprintf(&b, "You are %s, an agent in a multi-agent %s world.", name, a.kind)
	if p.Stance != "" {
		fmt.Fprintf(&b, " Your stance: %s.", p.Stance)
	}
	if p.Role != "" {
		fmt.Fprintf(&b, " Your role: %s.", p.Role)
	}
	b.WriteString("\n\n")
	b.WriteString(kindVocabulary[a.kind])
	b.WriteString("\n\n")
	b.WriteString(outputSchema)
	return b.String()
}

func (a *Actor) userPrompt(p Persona, s *world.State) string {
	var b strings.Builder
	if a.topic != "" {
		fmt.Fprintf(&b, "Topic: %s\n", a.topic)
	}
	switch {
	case s.Debate != nil:
		renderDebate(&b, s)
	case s.Game != nil:
		renderGame(&b, p.ID, s)
	case s.Society != nil:
		renderSociety(&b, p.ID, s)
	case s.Logic != nil:
		renderLogic(&b, s)
	}
	fmt.Fprintf(&b, "\nYou act as agent id %q. Choose your next action.", p.ID)
	return b.String()
}

func renderDebate(b *strings.Builder, s *world.State) {
	d := s.Debate
	fmt.Fprintf(b, "Phase: %s (%s), round %d\n", s.CurrentPhase.PhaseID, s.CurrentPhase.PhaseType, s.CurrentTime.Round)
	if d.ActiveSpeaker != "" {
		fmt.Fprintf(b, "Current speaker: %s\n", d.ActiveSpeaker)
	}
	if d.LastSpeakerID != "" {
		fmt.Fprintf(b, "Last speaker: %s\n", d.LastSpeakerID)
	}
	fmt.Fprintf(b, "Interruptions allowed: %t\n", d.AllowInterrupt)
	if len(d.SpeakCounts) > 0 {
		b.WriteString("Speech counts: ")
		b.WriteString(renderCounts(d.SpeakCounts))
		b.WriteString("\n")
	}
}

func renderGame(b *strings.Builder, agentID string, s *world.State) {
	g := s.Game
	fmt.Fprintf(b, "Turn %d of %d; it is %s's turn.\n", g.TotalTurns+1, g.MaxTurns, g.CurrentTurnAgentID)
	if me, ok := g.Agents[agentID]; ok {
		fmt.Fprintf(b, "You have %d/%d HP and hold: %s\n", me.HP, me.MaxHP, strings.Join(me.Hand, ", "))
	}
	for _, id := range g.TurnOrder {
		if id == agentID {
			continue
		}
		other := g.Agents[id]
		if other == nil {
			continue
		}
		state := "alive"
		if !other.IsAlive {
			state = "eliminated"
		}
		fmt.Fprintf(b, "Opponent %s: %d/%d HP, %d cards, %s\n", id, other.HP, other.MaxHP, len(other.Hand), state)
	}
}

func renderSociety(b *strings.Builder, agentID string, s *world.State) {
	so := s.Society
	fmt.Fprintf(b, "Tick %d. Community pool: %.1f. Stability index: %.2f\n",
		so.TimeTick, so.Global.CommunityPool, so.StabilityIndex)
	if me, ok := so.Agents[agentID]; ok {
		fmt.Fprintf(b, "You hold %.1f resources; your mood is %.1f.\n", me.Resources, me.Mood)
	}
	ids := so.ActiveAgentIDs()
	sort.Strings(ids)
	for _, id := range ids {
		if id == agentID {
			continue
		}
		other := so.Agents[id]
		fmt.Fprintf(b, "Neighbor %s (%s): %.1f resources, mood %.1f\n", id, other.Role, other.Resources, other.Mood)
	}
}

func renderLogic(b *strings.Builder, s *world.State) {
	lo := s.Logic
	fmt.Fprintf(b, "Problem: %s\n", lo.Problem.Statement)
	fmt.Fprintf(b, "Round %d of %d\n", lo.Discussion.CurrentRound, lo.Discussion.MaxRounds)
	b.WriteString("Hypotheses:\n")
	for _, id := range sortedKeys(lo.Problem.Hypotheses) {
		fmt.Fprintf(b, "- %s: %s\n", id, lo.Problem.Hypotheses[id].LaTeX)
	}
	if len(lo.Problem.Conclusions) > 0 {
		b.WriteString("Accepted conclusions:\n")
		for _, id := range sortedKeys(lo.Problem.Conclusions) {
			fmt.Fprintf(b, "- %s: %s\n", id, lo.Problem.Conclusions[id].LaTeX)
		}
	}
	if len(lo.Problem.PendingProposals) > 0 {
		b.WriteString("Pending proposals awaiting review:\n")
		for _, id := range sortedKeys(lo.Problem.PendingProposals) {
			pr := lo.Problem.PendingProposals[id]
			fmt.Fprintf(b, "- %s (by %s): %s\n", id, pr.ProposedBy, pr.LaTeX)
		}
	}
	b.WriteString("Goals:\n")
	for _, id := range sortedKeys(lo.Problem.Goals) {
		g := lo.Problem.Goals[id]
		fmt.Fprintf(b, "- %s (%s): %s\n", id, g.Status, g.LaTeX)
	}
}

func renderCounts(counts map[string]int) string {
	parts := make([]string, 0, len(counts))
	for _, id := range sortedKeys(counts) {
		parts = append(parts, fmt.Sprintf("%s=%d", id, counts[id]))
	}
	return strings.Join(parts, ", ")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// actionEnvelope is the wire form the model is asked to produce.
type actionEnvelope struct {
	ActionType string              `json:"actionType"`
	Params     map[string]any      `json:"params"`
	Confidence *float64            `json:"confidence"`
	Target     *world.ActionTarget `json:"target"`
	Priority   int                 `json:"priority"`
}

// parseAction decodes the model reply. Kinds without a real idle action
// map {"actionType": "idle"} to a nil action.
func (a *Actor) parseAction(agentID, raw string) (*world.Action, error) {
	payload := extractJSON(raw)
	if payload == "" {
		return nil, fmt.Errorf("no JSON object in reply %q", truncate(raw, 120))
	}
	var env actionEnvelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return nil, fmt.Errorf("decoding action reply: %w", err)
	}
	env.ActionType = strings.TrimSpace(env.ActionType)
	if env.ActionType == "" {
		return nil, fmt.Errorf("action reply carries no actionType")
	}
	if env.ActionType == "idle" && a.kind != world.KindSociety {
		return nil, nil
	}

	conf := 0.5
	if env.Confidence != nil {
		conf = *env.Confidence
		if conf < 0 {
			conf = 0
		}
		if conf > 1 {
			conf = 1
		}
	}
	return &world.Action{
		AgentID:    agentID,
		ActionType: env.ActionType,
		Params:     env.Params,
		Confidence: conf,
		Target:     env.Target,
		Priority:   env.Priority,
	}, nil
}

// extractJSON returns the first balanced JSON object in s, tolerating
// markdown fences and surrounding prose.
func extractJSON(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
