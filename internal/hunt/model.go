package hunt

import (
	"errors"
)

type NodeType string

const (
	NodeStart    NodeType = "START"
	NodeStandard NodeType = "STANDARD"
	NodeInn      NodeType = "INN"
)

type NodeStatus string

const (
	StatusLocked    NodeStatus = "locked"
	StatusAvailable NodeStatus = "available"
	StatusCompleted NodeStatus = "completed"
)

// UnlockRule decides how a node's prerequisites combine. RuleAll requires every
// prerequisite to be completed; RuleAny requires at least one.
type UnlockRule string

const (
	RuleAll UnlockRule = "all"
	RuleAny UnlockRule = "any"
)

type ObjectiveType string

const (
	ObjectiveBossKC      ObjectiveType = "boss_kc"
	ObjectiveXPGain      ObjectiveType = "xp_gain"
	ObjectiveItemCollect ObjectiveType = "item_collection"
	ObjectiveMinigame    ObjectiveType = "minigame"
	ObjectiveClueScrolls ObjectiveType = "clue_scrolls"
)

type EventStatus string

const (
	EventDraft  EventStatus = "DRAFT"
	EventActive EventStatus = "ACTIVE"
	EventEnded  EventStatus = "ENDED"
)

// AnyKeyColor in an Inn key cost matches keys of every color.
const AnyKeyColor = "any"

var (
	ErrNodeLocked               = errors.New("node is locked")
	ErrAlreadyCompleted         = errors.New("node already completed")
	ErrBudgetExceeded           = errors.New("team budget exceeded")
	ErrNodeNotAvailable         = errors.New("node is not available")
	ErrBuffNotApplicable        = errors.New("buff does not apply to this objective")
	ErrBuffAlreadyAppliedToNode = errors.New("a buff is already applied to this node")
	ErrBuffExhausted            = errors.New("buff has no uses remaining")
	ErrReductionInvalid         = errors.New("buff reduction would remove the requirement entirely")
	ErrNotTeamMember            = errors.New("caller is not a member of this team")
	ErrAlreadyPurchased         = errors.New("team already traded at this inn")
	ErrInsufficientKeys         = errors.New("insufficient keys")

	ErrNodeNotFound      = errors.New("node not found")
	ErrTeamNotFound      = errors.New("team not found")
	ErrTeamExists        = errors.New("team already exists")
	ErrEventNotFound     = errors.New("event not found")
	ErrBuffNotFound      = errors.New("buff not found")
	ErrNotInn            = errors.New("node is not an inn")
	ErrInnRewardNotFound = errors.New("inn reward not found")
	ErrNotCompleted      = errors.New("node is not completed")
	ErrEventNotActive    = errors.New("event is not active")
	ErrEventLaunched     = errors.New("event already launched")
	ErrInvalidGraph      = errors.New("invalid node graph")
	ErrTxConflict        = errors.New("transaction conflict, retry")
	ErrInvalidInput      = errors.New("invalid input")
)

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrNodeLocked, "NODE_LOCKED"},
	{ErrAlreadyCompleted, "ALREADY_COMPLETED"},
	{ErrBudgetExceeded, "BUDGET_EXCEEDED"},
	{ErrNodeNotAvailable, "NODE_NOT_AVAILABLE"},
	{ErrBuffNotApplicable, "BUFF_NOT_APPLICABLE"},
	{ErrBuffAlreadyAppliedToNode, "BUFF_ALREADY_APPLIED_TO_NODE"},
	{ErrBuffExhausted, "BUFF_EXHAUSTED"},
	{ErrReductionInvalid, "REDUCTION_INVALID"},
	{ErrNotTeamMember, "NOT_TEAM_MEMBER"},
	{ErrAlreadyPurchased, "ALREADY_PURCHASED"},
	{ErrInsufficientKeys, "INSUFFICIENT_KEYS"},
	{ErrNodeNotFound, "NODE_NOT_FOUND"},
	{ErrTeamNotFound, "TEAM_NOT_FOUND"},
	{ErrTeamExists, "TEAM_EXISTS"},
	{ErrEventNotFound, "EVENT_NOT_FOUND"},
	{ErrBuffNotFound, "BUFF_NOT_FOUND"},
	{ErrNotInn, "NOT_INN"},
	{ErrInnRewardNotFound, "INN_REWARD_NOT_FOUND"},
	{ErrNotCompleted, "NOT_COMPLETED"},
	{ErrEventNotActive, "EVENT_NOT_ACTIVE"},
	{ErrEventLaunched, "EVENT_LAUNCHED"},
	{ErrInvalidGraph, "INVALID_GRAPH"},
	{ErrTxConflict, "TX_CONFLICT"},
	{ErrInvalidInput, "INVALID_INPUT"},
}

// CodeOf returns the stable machine-readable code for a domain error, or
// "UNKNOWN" when err does not wrap one of the package sentinels.
func CodeOf(err error) string {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return "UNKNOWN"
}

// IsFatal reports whether err signals a defect in the event configuration
// rather than something the caller can correct.
func IsFatal(err error) bool {
	return errors.Is(err, ErrBudgetExceeded)
}
