package engine

// Code identifies one rule the candidate event violated. The set is closed;
// the room actor forwards codes to clients verbatim in ERROR frames.
type Code string

const (
	CodeGameNotPlaying        Code = "GAME_NOT_PLAYING"
	CodeGameFinished          Code = "GAME_FINISHED"
	CodeNotActive             Code = "NOT_ACTIVE"
	CodeDefenderCannotAttack  Code = "DEFENDER_CANNOT_ATTACK"
	CodeDefenderCannotPass    Code = "DEFENDER_CANNOT_PASS"
	CodeOnlyDefenderDefend    Code = "ONLY_DEFENDER_CAN_DEFEND"
	CodeOnlyDefenderTake      Code = "ONLY_DEFENDER_CAN_TAKE"
	CodeOnlyDefenderBeat      Code = "ONLY_DEFENDER_CAN_BEAT"
	CodeOnlyDefenderTransfer  Code = "ONLY_DEFENDER_CAN_TRANSFER"
	CodeYouPassed             Code = "YOU_PASSED"
	CodeCardNotInHand         Code = "CARD_NOT_IN_HAND"
	CodeRoundLimit            Code = "ROUND_LIMIT"
	CodeOnlyMainAttacker      Code = "ONLY_MAIN_ATTACKER_STARTS"
	CodeBadCard               Code = "BAD_CARD"
	CodeRankNotOnTable        Code = "RANK_NOT_ON_TABLE"
	CodeDefenderMustRespond   Code = "DEFENDER_MUST_RESPOND"
	CodeBadAttackIndex        Code = "BAD_ATTACK_INDEX"
	CodeAlreadyDefended       Code = "ALREADY_DEFENDED"
	CodeDoesNotBeat           Code = "DOES_NOT_BEAT"
	CodeModeNotPerevodnoy     Code = "MODE_NOT_PEREVODNOY"
	CodeTakeAlreadyDeclared   Code = "TAKE_ALREADY_DECLARED"
	CodeNothingToTransfer     Code = "NOTHING_TO_TRANSFER"
	CodeTransferAfterDefend   Code = "CANNOT_TRANSFER_AFTER_DEFEND"
	CodeRankMustMatchAttack   Code = "RANK_MUST_MATCH_ATTACK"
	CodeNothingOnTable        Code = "NOTHING_ON_TABLE"
	CodeNotFullyDefended      Code = "NOT_FULLY_DEFENDED"
	CodeAttackersNotPassed    Code = "ATTACKERS_NOT_PASSED"
)

// RuleError is a well-formed but illegal game event. It never indicates
// corruption; the state is unchanged when one is returned.
type RuleError struct {
	Code Code
}

func (e *RuleError) Error() string { return string(e.Code) }

func ruleErr(code Code) *RuleError { return &RuleError{Code: code} }
