package engine

// Allowed is the set of action flags precomputed for one player's view.
// Flags are hints for the client UI; submitting a disallowed action still
// yields the precise rule code.
type Allowed struct {
	Attack   bool `json:"attack"`
	Defend   bool `json:"defend"`
	Transfer bool `json:"transfer"`
	Take     bool `json:"take"`
	Pass     bool `json:"pass"`
	Beat     bool `json:"beat"`
}

// AllowedActions derives the action flags for playerID from the current
// state. Pure; the outbound view embeds the result.
func (g *GameState) AllowedActions(playerID string) Allowed {
	var a Allowed
	if g.Phase != PhasePlaying || !g.Active[playerID] {
		return a
	}

	isDefender := playerID == g.DefenderID
	if !isDefender {
		a.Attack = g.canAttack(playerID)
		a.Pass = len(g.Table) > 0 && !g.Passed[playerID]
		return a
	}

	if len(g.Table) == 0 {
		return a
	}
	a.Take = !g.TakeDeclared
	if !g.TakeDeclared {
		a.Defend = g.canDefend(playerID)
		a.Transfer = g.canTransfer(playerID)
	}
	a.Beat = g.fullyDefended() && g.allAttackersPassed()
	return a
}

func (g *GameState) canAttack(playerID string) bool {
	if g.Passed[playerID] || len(g.Table) >= g.RoundLimit {
		return false
	}
	if len(g.Table) == 0 {
		return playerID == g.AttackerID && len(g.Hands[playerID]) > 0
	}
	if !g.TakeDeclared && g.hasUndefended() {
		return false
	}
	for _, c := range g.Hands[playerID] {
		if g.rankOnTable(c.Rank) {
			return true
		}
	}
	return false
}

func (g *GameState) canDefend(playerID string) bool {
	for _, p := range g.Table {
		if p.Defended() {
			continue
		}
		for _, c := range g.Hands[playerID] {
			if c.Beats(p.Attack, g.TrumpSuit) {
				return true
			}
		}
	}
	return false
}

func (g *GameState) canTransfer(playerID string) bool {
	if g.Mode != ModePerevodnoy {
		return false
	}
	for _, p := range g.Table {
		if p.Defended() {
			return false
		}
	}
	for _, c := range g.Hands[playerID] {
		if g.rankOnAttacks(c.Rank) {
			return true
		}
	}
	return false
}
