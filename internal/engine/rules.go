package engine

// rankOnTable reports whether rank appears as any attack or defense card.
func (g *GameState) rankOnTable(rank int) bool {
	for _, p := range g.Table {
		if p.Attack.Rank == rank {
			return true
		}
		if p.Defense != nil && p.Defense.Rank == rank {
			return true
		}
	}
	return false
}

// rankOnAttacks reports whether rank appears among the attack cards only.
func (g *GameState) rankOnAttacks(rank int) bool {
	for _, p := range g.Table {
		if p.Attack.Rank == rank {
			return true
		}
	}
	return false
}

// hasUndefended reports whether any slot is still uncovered.
func (g *GameState) hasUndefended() bool {
	for _, p := range g.Table {
		if !p.Defended() {
			return true
		}
	}
	return false
}

// fullyDefended reports whether every slot is covered. An empty table is
// vacuously defended; callers reject that case first.
func (g *GameState) fullyDefended() bool {
	return !g.hasUndefended()
}

// allAttackersPassed reports whether every active non-defender has
// declared done adding.
func (g *GameState) allAttackersPassed() bool {
	for _, id := range g.Order {
		if id == g.DefenderID || !g.Active[id] {
			continue
		}
		if !g.Passed[id] {
			return false
		}
	}
	return true
}

// checkPlaying rejects events outside the playing phase.
func (g *GameState) checkPlaying(playerID string) *RuleError {
	if g.Phase == PhaseFinished {
		return ruleErr(CodeGameFinished)
	}
	if g.Phase != PhasePlaying {
		return ruleErr(CodeGameNotPlaying)
	}
	if !g.Active[playerID] {
		return ruleErr(CodeNotActive)
	}
	return nil
}

// Attack places card as a new attack slot. Any attacker may throw in once
// the table is open; the main attacker opens the round.
func (g *GameState) Attack(playerID string, card Card) error {
	if err := g.checkPlaying(playerID); err != nil {
		return err
	}
	if playerID == g.DefenderID {
		return ruleErr(CodeDefenderCannotAttack)
	}
	if g.Passed[playerID] {
		return ruleErr(CodeYouPassed)
	}
	idx := g.handIndex(playerID, card)
	if idx < 0 {
		return ruleErr(CodeCardNotInHand)
	}
	if len(g.Table) >= g.RoundLimit {
		return ruleErr(CodeRoundLimit)
	}
	if len(g.Table) == 0 {
		if playerID != g.AttackerID {
			return ruleErr(CodeOnlyMainAttacker)
		}
	} else {
		if !g.rankOnTable(card.Rank) {
			return ruleErr(CodeRankNotOnTable)
		}
		if !g.TakeDeclared && g.hasUndefended() {
			return ruleErr(CodeDefenderMustRespond)
		}
	}

	g.removeFromHand(playerID, idx)
	g.Table = append(g.Table, TablePair{Attack: card})
	return nil
}

// Defend covers the attack slot at attackIndex with card.
func (g *GameState) Defend(playerID string, attackIndex int, card Card) error {
	if err := g.checkPlaying(playerID); err != nil {
		return err
	}
	if playerID != g.DefenderID {
		return ruleErr(CodeOnlyDefenderDefend)
	}
	if g.TakeDeclared {
		return ruleErr(CodeTakeAlreadyDeclared)
	}
	if attackIndex < 0 || attackIndex >= len(g.Table) {
		return ruleErr(CodeBadAttackIndex)
	}
	if g.Table[attackIndex].Defended() {
		return ruleErr(CodeAlreadyDefended)
	}
	idx := g.handIndex(playerID, card)
	if idx < 0 {
		return ruleErr(CodeCardNotInHand)
	}
	if !card.Beats(g.Table[attackIndex].Attack, g.TrumpSuit) {
		return ruleErr(CodeDoesNotBeat)
	}

	g.removeFromHand(playerID, idx)
	c := card
	g.Table[attackIndex].Defense = &c
	return nil
}

// Transfer re-assigns the defender role by playing a card of matching
// rank (perevodnoy only). The card joins the table as a new attack slot
// and the next active player becomes the defender.
func (g *GameState) Transfer(playerID string, card Card) error {
	if err := g.checkPlaying(playerID); err != nil {
		return err
	}
	if playerID != g.DefenderID {
		return ruleErr(CodeOnlyDefenderTransfer)
	}
	if g.Mode != ModePerevodnoy {
		return ruleErr(CodeModeNotPerevodnoy)
	}
	if g.TakeDeclared {
		return ruleErr(CodeTakeAlreadyDeclared)
	}
	if len(g.Table) == 0 {
		return ruleErr(CodeNothingToTransfer)
	}
	for _, p := range g.Table {
		if p.Defended() {
			return ruleErr(CodeTransferAfterDefend)
		}
	}
	idx := g.handIndex(playerID, card)
	if idx < 0 {
		return ruleErr(CodeCardNotInHand)
	}
	if !g.rankOnAttacks(card.Rank) {
		return ruleErr(CodeRankMustMatchAttack)
	}

	g.removeFromHand(playerID, idx)
	g.Table = append(g.Table, TablePair{Attack: card})

	g.AttackerID = playerID
	g.DefenderID = g.nextActive(playerID)

	// Recompute against the new defender's hand, clamped to the table so
	// the bounded-table invariant survives transfer chains.
	limit := len(g.Hands[g.DefenderID])
	if limit > MaxTableSize {
		limit = MaxTableSize
	}
	if limit < len(g.Table) {
		limit = len(g.Table)
	}
	g.RoundLimit = limit
	return nil
}

// Take commits the defender to picking up the table. Attackers may keep
// throwing in up to the round limit; the round resolves once they all pass.
func (g *GameState) Take(playerID string) error {
	if err := g.checkPlaying(playerID); err != nil {
		return err
	}
	if playerID != g.DefenderID {
		return ruleErr(CodeOnlyDefenderTake)
	}
	if len(g.Table) == 0 {
		return ruleErr(CodeNothingOnTable)
	}
	if g.TakeDeclared {
		return ruleErr(CodeTakeAlreadyDeclared)
	}

	g.TakeDeclared = true
	if g.allAttackersPassed() {
		g.resolveTake()
	}
	return nil
}

// Pass declares the attacker done adding for this round.
func (g *GameState) Pass(playerID string) error {
	if err := g.checkPlaying(playerID); err != nil {
		return err
	}
	if playerID == g.DefenderID {
		return ruleErr(CodeDefenderCannotPass)
	}
	if len(g.Table) == 0 {
		return ruleErr(CodeNothingOnTable)
	}
	if g.Passed[playerID] {
		return ruleErr(CodeYouPassed)
	}

	g.Passed[playerID] = true
	if g.TakeDeclared && g.allAttackersPassed() {
		g.resolveTake()
	}
	return nil
}

// Beat ends the round in the defender's favour once every attack is
// covered and every attacker has passed.
func (g *GameState) Beat(playerID string) error {
	if err := g.checkPlaying(playerID); err != nil {
		return err
	}
	if playerID != g.DefenderID {
		return ruleErr(CodeOnlyDefenderBeat)
	}
	if len(g.Table) == 0 {
		return ruleErr(CodeNothingOnTable)
	}
	if !g.fullyDefended() {
		return ruleErr(CodeNotFullyDefended)
	}
	if !g.allAttackersPassed() {
		return ruleErr(CodeAttackersNotPassed)
	}

	g.resolveBeat()
	return nil
}

// resolveBeat discards the table, refills hands and rotates roles so the
// previous defender leads the next round.
func (g *GameState) resolveBeat() {
	for _, p := range g.Table {
		g.Discard = append(g.Discard, p.Attack)
		if p.Defense != nil {
			g.Discard = append(g.Discard, *p.Defense)
		}
	}
	g.Table = nil

	prevDefender := g.DefenderID
	g.refill(g.refillOrder(prevDefender, false))
	g.retireEmptyHands()
	if g.checkTerminal() {
		return
	}

	if g.Active[prevDefender] {
		g.AttackerID = prevDefender
	} else {
		g.AttackerID = g.nextActive(prevDefender)
	}
	g.DefenderID = g.nextActive(g.AttackerID)
	g.resetRound()
}

// resolveTake moves the table into the taker's hand, refills and rotates
// roles so the taker is skipped for one round.
func (g *GameState) resolveTake() {
	taker := g.DefenderID
	for _, p := range g.Table {
		g.Hands[taker] = append(g.Hands[taker], p.Attack)
		if p.Defense != nil {
			g.Hands[taker] = append(g.Hands[taker], *p.Defense)
		}
	}
	SortHand(g.Hands[taker])
	g.Table = nil

	g.refill(g.refillOrder(taker, g.TakerSkipsRefill))
	g.retireEmptyHands()
	if g.checkTerminal() {
		return
	}

	g.AttackerID = g.nextActive(taker)
	g.DefenderID = g.nextActive(g.AttackerID)
	g.resetRound()
}

// refillOrder lists the active players to refill: the main attacker
// first, then seat order, with the defender visited last. With skipLast
// the defender (the taker) is excluded entirely.
func (g *GameState) refillOrder(defender string, skipLast bool) []string {
	order := make([]string, 0, len(g.Order))
	start := g.seatOf(g.AttackerID)
	n := len(g.Order)
	for step := 0; step < n; step++ {
		id := g.Order[(start+step)%n]
		if id == defender || !g.Active[id] {
			continue
		}
		order = append(order, id)
	}
	if !skipLast && g.Active[defender] {
		order = append(order, defender)
	}
	return order
}

// refill draws each listed player back up to six cards until the stock
// runs out.
func (g *GameState) refill(order []string) {
	for _, id := range order {
		for len(g.Hands[id]) < HandSize && len(g.Deck) > 0 {
			g.Hands[id] = append(g.Hands[id], g.drawOne())
		}
		SortHand(g.Hands[id])
	}
}

// retireEmptyHands deactivates players who emptied their hand after the
// stock is exhausted.
func (g *GameState) retireEmptyHands() {
	if len(g.Deck) > 0 {
		return
	}
	for _, id := range g.Order {
		if g.Active[id] && len(g.Hands[id]) == 0 {
			g.Active[id] = false
		}
	}
}

// checkTerminal finishes the game when at most one player remains active.
// The sole remaining player is the durak; zero remaining is a draw.
func (g *GameState) checkTerminal() bool {
	if g.countActive() > 1 {
		return false
	}
	g.Phase = PhaseFinished
	g.Loser = ""
	for _, id := range g.Order {
		if g.Active[id] {
			g.Loser = id
		}
	}
	g.Table = nil
	g.TakeDeclared = false
	g.Passed = make(map[string]bool)
	return true
}
