package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"github.com/lemonphresh/osrsbingo-sub001/internal/hunt"
)

// Hunt is the slice of the hunt service the bot drives.
type Hunt interface {
	TeamForMember(ctx context.Context, eventID, identity string) (hunt.TeamView, error)
	CompleteNode(ctx context.Context, in hunt.CompleteNodeInput) (hunt.TeamView, error)
	ApplyBuff(ctx context.Context, in hunt.ApplyBuffInput) (hunt.TeamView, error)
	PurchaseInnReward(ctx context.Context, in hunt.PurchaseInput) (hunt.TeamView, error)
}

// Message is a chat message stripped down to what command handling needs.
type Message struct {
	AuthorID    string
	ChannelID   string
	Content     string
	Attachments []string
}

type Options struct {
	EventID string
	Prefix  string
	Rate    float64
	Burst   int
}

type Bot struct {
	hunt    Hunt
	log     *slog.Logger
	eventID string
	prefix  string
	limit   rate.Limit
	burst   int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func New(h Hunt, opts Options, logger *slog.Logger) *Bot {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Prefix == "" {
		opts.Prefix = "!"
	}
	if opts.Burst < 1 {
		opts.Burst = 1
	}
	limit := rate.Limit(opts.Rate)
	if opts.Rate <= 0 {
		limit = rate.Inf
	}
	return &Bot{
		hunt:     h,
		log:      logger,
		eventID:  opts.EventID,
		prefix:   opts.Prefix,
		limit:    limit,
		burst:    opts.Burst,
		limiters: map[string]*rate.Limiter{},
	}
}

func (b *Bot) limiter(authorID string) *rate.Limiter {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.limiters[authorID]
	if !ok {
		l = rate.NewLimiter(b.limit, b.burst)
		b.limiters[authorID] = l
	}
	return l
}

// Handle runs the command in m and returns the reply, or "" when m is not
// a command.
func (b *Bot) Handle(ctx context.Context, m Message) string {
	content := strings.TrimSpace(m.Content)
	if !strings.HasPrefix(content, b.prefix) {
		return ""
	}
	fields := strings.Fields(strings.TrimPrefix(content, b.prefix))
	if len(fields) == 0 {
		return ""
	}
	if !b.limiter(m.AuthorID).Allow() {
		return "Slow down, try again in a few seconds."
	}

	cmd, args := strings.ToLower(fields[0]), fields[1:]
	switch cmd {
	case "help":
		return b.usage()
	case "status":
		return b.status(ctx, m)
	case "submit":
		return b.submit(ctx, m, args)
	case "buff":
		return b.buff(ctx, m, args)
	case "inn":
		return b.inn(ctx, m, args)
	default:
		return fmt.Sprintf("Unknown command `%s`. Try `%shelp`.", cmd, b.prefix)
	}
}

func (b *Bot) usage() string {
	p := b.prefix
	return strings.Join([]string{
		"**Treasure hunt commands**",
		"`" + p + "submit <node> [proof link]` complete a node (attach a screenshot or paste a link)",
		"`" + p + "buff <node> <buff id>` spend a buff on an available node",
		"`" + p + "inn <node> <reward id>` trade keys at an Inn",
		"`" + p + "status` show your team's pot, keys, buffs and open nodes",
	}, "\n")
}

func (b *Bot) team(ctx context.Context, m Message) (hunt.TeamView, string) {
	view, err := b.hunt.TeamForMember(ctx, b.eventID, m.AuthorID)
	if err != nil {
		return hunt.TeamView{}, b.errorReply(err, m)
	}
	return view, ""
}

func (b *Bot) status(ctx context.Context, m Message) string {
	view, reply := b.team(ctx, m)
	if reply != "" {
		return reply
	}
	return renderStatus(view)
}

func (b *Bot) submit(ctx context.Context, m Message, args []string) string {
	if len(args) == 0 {
		return fmt.Sprintf("Usage: `%ssubmit <node> [proof link]`", b.prefix)
	}
	proof := strings.Join(args[1:], " ")
	if proof == "" && len(m.Attachments) > 0 {
		proof = m.Attachments[0]
	}
	team, reply := b.team(ctx, m)
	if reply != "" {
		return reply
	}
	view, err := b.hunt.CompleteNode(ctx, hunt.CompleteNodeInput{
		EventID:     b.eventID,
		TeamID:      team.TeamID,
		NodeID:      args[0],
		Proof:       proof,
		SubmittedBy: m.AuthorID,
	})
	if err != nil {
		return b.errorReply(err, m)
	}
	return renderCompletion(args[0], view)
}

func (b *Bot) buff(ctx context.Context, m Message, args []string) string {
	if len(args) != 2 {
		return fmt.Sprintf("Usage: `%sbuff <node> <buff id>`", b.prefix)
	}
	team, reply := b.team(ctx, m)
	if reply != "" {
		return reply
	}
	view, err := b.hunt.ApplyBuff(ctx, hunt.ApplyBuffInput{
		EventID: b.eventID,
		TeamID:  team.TeamID,
		NodeID:  args[0],
		BuffID:  args[1],
		Caller:  m.AuthorID,
	})
	if err != nil {
		return b.errorReply(err, m)
	}
	return renderBuffUse(args[0], view)
}

func (b *Bot) inn(ctx context.Context, m Message, args []string) string {
	if len(args) != 2 {
		return fmt.Sprintf("Usage: `%sinn <node> <reward id>`", b.prefix)
	}
	team, reply := b.team(ctx, m)
	if reply != "" {
		return reply
	}
	view, err := b.hunt.PurchaseInnReward(ctx, hunt.PurchaseInput{
		EventID:  b.eventID,
		TeamID:   team.TeamID,
		NodeID:   args[0],
		RewardID: args[1],
		Caller:   m.AuthorID,
	})
	if err != nil {
		return b.errorReply(err, m)
	}
	return renderPurchase(args[0], view)
}

var codeMessages = map[string]string{
	"NODE_LOCKED":                  "That node is still locked. Finish its prerequisites first.",
	"ALREADY_COMPLETED":            "Your team already completed that node.",
	"BUDGET_EXCEEDED":              "That would push your team past its prize cap. An admin has been alerted.",
	"NODE_NOT_AVAILABLE":           "That node is not open for your team right now.",
	"BUFF_NOT_APPLICABLE":          "That buff does not work on this node's objective.",
	"BUFF_ALREADY_APPLIED_TO_NODE": "A buff is already active on that node.",
	"BUFF_EXHAUSTED":               "That buff has no uses left.",
	"REDUCTION_INVALID":            "That buff cannot be used here.",
	"NOT_TEAM_MEMBER":              "You are not on that team.",
	"ALREADY_PURCHASED":            "Your team already traded at that Inn.",
	"INSUFFICIENT_KEYS":            "Your team does not hold enough keys for that reward.",
	"NODE_NOT_FOUND":               "No node with that id.",
	"TEAM_NOT_FOUND":               "You are not on a team in this event.",
	"EVENT_NOT_FOUND":              "The hunt is not set up yet.",
	"BUFF_NOT_FOUND":               "Your team does not hold that buff. Check `status` for buff ids.",
	"NOT_INN":                      "That node is not an Inn.",
	"INN_REWARD_NOT_FOUND":         "That Inn has no reward with that id.",
	"EVENT_NOT_ACTIVE":             "The hunt is not running.",
	"TX_CONFLICT":                  "Someone else on your team just submitted. Try again.",
}

func (b *Bot) errorReply(err error, m Message) string {
	code := hunt.CodeOf(err)
	msg, ok := codeMessages[code]
	if !ok {
		b.log.Error("bot command failed", "author_id", m.AuthorID, "channel_id", m.ChannelID, "err", err)
		return "Something went wrong. Please ping an event admin."
	}
	if hunt.IsFatal(err) {
		b.log.Error("budget cap reached from chat", "author_id", m.AuthorID, "event_id", b.eventID, "err", err)
	}
	return msg
}
