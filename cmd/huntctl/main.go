package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/lemonphresh/osrsbingo-sub001/internal/auth"
	cl "github.com/lemonphresh/osrsbingo-sub001/internal/cli"
	"github.com/lemonphresh/osrsbingo-sub001/internal/config"
	"github.com/lemonphresh/osrsbingo-sub001/internal/hunt"
	"github.com/lemonphresh/osrsbingo-sub001/internal/mapfile"
	"github.com/lemonphresh/osrsbingo-sub001/internal/syncq"
)

type globals struct {
	apiBase   string
	eventID   string
	jwtSecret string
}

func main() {
	cfg := config.LoadCLIFromEnv()
	g := &globals{apiBase: cfg.APIBaseURL, jwtSecret: cfg.JWTSecret}

	root := &cobra.Command{
		Use:          "huntctl",
		Short:        "Treasure hunt admin and player client",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&g.apiBase, "api", g.apiBase, "hunt API base URL")
	root.PersistentFlags().StringVar(&g.eventID, "event", "", "event id (defaults to the one picked with `huntctl use`)")

	root.AddCommand(
		newLoginCmd(g),
		newLogoutCmd(),
		newTokenCmd(g),
		newUseCmd(),
		newEventCmd(g),
		newTeamCmd(g),
		newMeCmd(g),
		newSubmitCmd(g),
		newBuffCmd(g),
		newInnCmd(g),
		newAdminCmd(g),
		newQueueCmd(),
		newSyncCmd(g),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func (g *globals) client() *cl.Client {
	return cl.NewClient(strings.TrimSpace(g.apiBase))
}

func requireSession() (cl.Session, error) {
	sess, err := cl.LoadSession()
	if err != nil {
		return cl.Session{}, fmt.Errorf("login required: %w", err)
	}
	return sess, nil
}

func newLoginCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Store an access token after checking it against the API",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := promptSecret("Access token")
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			me, err := g.client().Me(ctx, token)
			if err != nil {
				return err
			}
			prev, _ := cl.LoadSession()
			sess := cl.NewSession(token, me, prev)
			if err := cl.SaveSession(sess); err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Logged in as %s (%s).", sess.MemberID, sess.Role()))
			return nil
		},
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear the local session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cl.ClearSession(); err != nil {
				return err
			}
			printSuccess("Logged out.")
			return nil
		},
	}
}

func newTokenCmd(g *globals) *cobra.Command {
	var (
		id       auth.Identity
		ttl      time.Duration
		audience string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an access token with the shared signing secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := g.jwtSecret
			if secret == "" {
				var err error
				if secret, err = promptSecret("Signing secret"); err != nil {
					return err
				}
			}
			verifier, err := auth.NewVerifier(secret, audience)
			if err != nil {
				return err
			}
			token, err := verifier.Issue(id, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&id.UserID, "user", "", "user id (token subject)")
	cmd.Flags().StringVar(&id.DiscordID, "discord", "", "linked Discord user id")
	cmd.Flags().StringVar(&id.Email, "email", "", "email claim")
	cmd.Flags().BoolVar(&id.Admin, "admin", false, "grant the admin role")
	cmd.Flags().DurationVar(&ttl, "ttl", 30*24*time.Hour, "token lifetime")
	cmd.Flags().StringVar(&audience, "audience", "authenticated", "token audience")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newUseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "use <event_id>",
		Short: "Pick the event later commands act on",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			sess, err = sess.UseEvent(args[0])
			if err != nil {
				return err
			}
			if err := cl.SaveSession(sess); err != nil {
				return err
			}
			printSuccess("Now using event " + sess.EventID + ".")
			return nil
		},
	}
}

func newEventCmd(g *globals) *cobra.Command {
	event := &cobra.Command{
		Use:   "event",
		Short: "Event lifecycle (admin)",
	}
	event.AddCommand(&cobra.Command{
		Use:   "create <map.yaml>",
		Short: "Create a draft event from a map file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			raw, err := readMap(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			ev, err := g.client().CreateEvent(ctx, sess.AccessToken, raw)
			if err != nil {
				return err
			}
			renderEvent(ev)
			printInfo("Run `huntctl use " + ev.ID + "` to make it the default event.")
			return nil
		},
	})
	event.AddCommand(&cobra.Command{
		Use:   "graph <map.yaml>",
		Short: "Replace the node graph of a draft event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEvent(cmd, g, func(ctx context.Context, c *cl.Client, sess cl.Session, eventID string) error {
				raw, err := readMap(args[0])
				if err != nil {
					return err
				}
				ev, err := c.ReplaceGraph(ctx, sess.AccessToken, eventID, raw)
				if err != nil {
					return err
				}
				renderEvent(ev)
				return nil
			})
		},
	})
	event.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the event",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEvent(cmd, g, func(ctx context.Context, c *cl.Client, sess cl.Session, eventID string) error {
				ev, err := c.Event(ctx, sess.AccessToken, eventID)
				if err != nil {
					return err
				}
				renderEvent(ev)
				return nil
			})
		},
	})
	event.AddCommand(&cobra.Command{
		Use:   "launch",
		Short: "Freeze the graph and budget and open the event",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEvent(cmd, g, func(ctx context.Context, c *cl.Client, sess cl.Session, eventID string) error {
				ev, err := c.Launch(ctx, sess.AccessToken, eventID)
				if err != nil {
					return err
				}
				renderEvent(ev)
				printSuccess("Event launched.")
				return nil
			})
		},
	})
	event.AddCommand(&cobra.Command{
		Use:   "end",
		Short: "Close the event to further submissions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEvent(cmd, g, func(ctx context.Context, c *cl.Client, sess cl.Session, eventID string) error {
				ev, err := c.End(ctx, sess.AccessToken, eventID)
				if err != nil {
					return err
				}
				renderEvent(ev)
				printSuccess("Event ended.")
				return nil
			})
		},
	})
	event.AddCommand(&cobra.Command{
		Use:   "reconcile",
		Short: "Repair drifted team state and report budget violations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEvent(cmd, g, func(ctx context.Context, c *cl.Client, sess cl.Session, eventID string) error {
				report, err := c.Reconcile(ctx, sess.AccessToken, eventID)
				if err != nil {
					return err
				}
				renderReport(report)
				return nil
			})
		},
	})
	return event
}

func newTeamCmd(g *globals) *cobra.Command {
	team := &cobra.Command{
		Use:   "team",
		Short: "Team registration and views",
	}

	var (
		teamID  string
		members []string
	)
	add := &cobra.Command{
		Use:   "add <name>",
		Short: "Register a team on a draft event (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEvent(cmd, g, func(ctx context.Context, c *cl.Client, sess cl.Session, eventID string) error {
				view, err := c.AddTeam(ctx, sess.AccessToken, eventID, teamID, args[0], members)
				if err != nil {
					return err
				}
				printSuccess(fmt.Sprintf("Team %s added as %s.", view.Name, view.TeamID))
				return nil
			})
		},
	}
	add.Flags().StringVar(&teamID, "id", "", "team id (generated when empty)")
	add.Flags().StringSliceVar(&members, "member", nil, "member identity (Discord user id), repeatable")
	team.AddCommand(add)

	team.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List teams with pot and progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEvent(cmd, g, func(ctx context.Context, c *cl.Client, sess cl.Session, eventID string) error {
				teams, err := c.Teams(ctx, sess.AccessToken, eventID)
				if err != nil {
					return err
				}
				renderTeams(teams)
				return nil
			})
		},
	})
	team.AddCommand(&cobra.Command{
		Use:   "show <team_id>",
		Short: "Show one team",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEvent(cmd, g, func(ctx context.Context, c *cl.Client, sess cl.Session, eventID string) error {
				view, err := c.Team(ctx, sess.AccessToken, eventID, args[0])
				if err != nil {
					return err
				}
				renderTeam(view)
				return nil
			})
		},
	})
	return team
}

func newMeCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "me",
		Short: "Show your team",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEvent(cmd, g, func(ctx context.Context, c *cl.Client, sess cl.Session, eventID string) error {
				view, err := c.MyTeam(ctx, sess.AccessToken, eventID)
				if err != nil {
					return err
				}
				renderTeam(view)
				return nil
			})
		},
	}
}

func newSubmitCmd(g *globals) *cobra.Command {
	var teamID string
	cmd := &cobra.Command{
		Use:   "submit <node_id> [proof]",
		Short: "Complete a node for your team",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			proof := ""
			if len(args) > 1 {
				proof = args[1]
			}
			return playerWrite(cmd, g, teamID, syncq.Submission{Kind: syncq.KindComplete, NodeID: args[0], Arg: proof})
		},
	}
	cmd.Flags().StringVar(&teamID, "team", "", "team id (defaults to the team you play for)")
	return cmd
}

func newBuffCmd(g *globals) *cobra.Command {
	var teamID string
	cmd := &cobra.Command{
		Use:   "buff <node_id> <buff_id>",
		Short: "Spend a held buff on an available node",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return playerWrite(cmd, g, teamID, syncq.Submission{Kind: syncq.KindBuff, NodeID: args[0], Arg: args[1]})
		},
	}
	cmd.Flags().StringVar(&teamID, "team", "", "team id (defaults to the team you play for)")
	return cmd
}

func newInnCmd(g *globals) *cobra.Command {
	var teamID string
	cmd := &cobra.Command{
		Use:   "inn <node_id> <reward_id>",
		Short: "Trade keys for an Inn reward",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return playerWrite(cmd, g, teamID, syncq.Submission{Kind: syncq.KindInn, NodeID: args[0], Arg: args[1]})
		},
	}
	cmd.Flags().StringVar(&teamID, "team", "", "team id (defaults to the team you play for)")
	return cmd
}

func newAdminCmd(g *globals) *cobra.Command {
	admin := &cobra.Command{
		Use:   "admin",
		Short: "Manual overrides (admin)",
	}
	var note string
	complete := &cobra.Command{
		Use:   "complete <team_id> <node_id>",
		Short: "Complete a node for a team without proof",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEvent(cmd, g, func(ctx context.Context, c *cl.Client, sess cl.Session, eventID string) error {
				view, err := c.AdminComplete(ctx, sess.AccessToken, eventID, args[0], args[1], note)
				if err != nil {
					return err
				}
				printSuccess(fmt.Sprintf("%s completed for %s.", args[1], view.Name))
				renderOutcome(view)
				return nil
			})
		},
	}
	uncomplete := &cobra.Command{
		Use:   "uncomplete <team_id> <node_id>",
		Short: "Reverse a completion and its rewards",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEvent(cmd, g, func(ctx context.Context, c *cl.Client, sess cl.Session, eventID string) error {
				view, err := c.AdminUncomplete(ctx, sess.AccessToken, eventID, args[0], args[1], note)
				if err != nil {
					return err
				}
				printWarn(fmt.Sprintf("%s un-completed for %s.", args[1], view.Name))
				renderOutcome(view)
				return nil
			})
		},
	}
	complete.Flags().StringVar(&note, "note", "", "audit note")
	uncomplete.Flags().StringVar(&note, "note", "", "audit note")
	admin.AddCommand(complete, uncomplete)
	return admin
}

func newQueueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "queue",
		Short: "List submissions waiting for `huntctl sync`",
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := syncq.Load()
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				printInfo("Sync queue is empty.")
				return nil
			}
			fmt.Printf("%-36s %-9s %-14s %-16s %-24s %s\n", "ID", "KIND", "TEAM", "NODE", "ARG", "QUEUED")
			for _, e := range entries {
				fmt.Printf("%-36s %-9s %-14s %-16s %-24s %s\n", e.ID, e.Kind, truncate(e.TeamID, 14), truncate(e.NodeID, 16),
					truncate(e.Arg, 24), e.QueuedAt.Local().Format("01-02 15:04"))
			}
			return nil
		},
	}
}

func newSyncCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay queued offline submissions",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			queue, err := syncq.Load()
			if err != nil {
				return err
			}
			if len(queue) == 0 {
				printInfo("Sync queue is empty.")
				return nil
			}
			client := g.client()
			ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
			defer cancel()

			res := syncq.Replay(ctx, queue, func(ctx context.Context, s syncq.Submission) error {
				_, err := submit(ctx, client, sess, s)
				if alreadyApplied(err) {
					return nil
				}
				return err
			}, func(err error) bool {
				return !errors.Is(err, errUnknownKind) && cl.Retryable(err)
			})
			for _, r := range res.Rejected {
				printError(fmt.Sprintf("Dropped %s %s for %s: %v", r.Entry.Kind, r.Entry.NodeID, r.Entry.TeamID, r.Err))
			}
			if err := syncq.Save(res.Remaining); err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Sync complete: replayed=%d dropped=%d remaining=%d", res.Replayed, len(res.Rejected), len(res.Remaining)))
			return nil
		},
	}
}

// alreadyApplied reports whether a replayed write had landed before the
// connection dropped.
func alreadyApplied(err error) bool {
	switch cl.ErrorCode(err) {
	case "ALREADY_COMPLETED", "ALREADY_PURCHASED", "BUFF_ALREADY_APPLIED_TO_NODE":
		return true
	}
	return false
}

func withEvent(cmd *cobra.Command, g *globals, fn func(ctx context.Context, c *cl.Client, sess cl.Session, eventID string) error) error {
	sess, err := requireSession()
	if err != nil {
		return err
	}
	eventID, err := sess.Event(g.eventID)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()
	return fn(ctx, g.client(), sess, eventID)
}

// playerWrite sends a completion, buff or Inn trade and queues it for
// `huntctl sync` when the API cannot be reached.
func playerWrite(cmd *cobra.Command, g *globals, teamID string, s syncq.Submission) error {
	return withEvent(cmd, g, func(ctx context.Context, c *cl.Client, sess cl.Session, eventID string) error {
		s.EventID = eventID
		s.TeamID = teamID
		if s.TeamID == "" {
			mine, err := c.MyTeam(ctx, sess.AccessToken, eventID)
			if err != nil {
				if cl.Retryable(err) {
					return fmt.Errorf("api unreachable and no --team given, nothing queued: %w", err)
				}
				return err
			}
			s.TeamID = mine.TeamID
		}
		view, err := submit(ctx, c, sess, s)
		if err == nil {
			printSuccess(fmt.Sprintf("%s %s ok for %s.", s.Kind, s.NodeID, view.Name))
			renderOutcome(view)
			return nil
		}
		if !cl.Retryable(err) {
			return err
		}
		queued, qerr := syncq.Push(s)
		if qerr != nil {
			return fmt.Errorf("request failed (%v) and queueing failed: %w", err, qerr)
		}
		printWarn(fmt.Sprintf("API unreachable (%v). Queued as %s; run `huntctl sync` later.", err, queued.ID))
		return nil
	})
}

var errUnknownKind = errors.New("unknown queued kind")

func submit(ctx context.Context, c *cl.Client, sess cl.Session, s syncq.Submission) (hunt.TeamView, error) {
	switch s.Kind {
	case syncq.KindComplete:
		return c.Complete(ctx, sess.AccessToken, s.EventID, s.TeamID, s.NodeID, s.Arg)
	case syncq.KindBuff:
		return c.ApplyBuff(ctx, sess.AccessToken, s.EventID, s.TeamID, s.NodeID, s.Arg)
	case syncq.KindInn:
		return c.Purchase(ctx, sess.AccessToken, s.EventID, s.TeamID, s.NodeID, s.Arg)
	default:
		return hunt.TeamView{}, fmt.Errorf("%w %q", errUnknownKind, s.Kind)
	}
}

// readMap loads a map file and validates it locally before upload.
func readMap(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	m, err := mapfile.Parse(raw)
	if err != nil {
		return "", err
	}
	printInfo(fmt.Sprintf("Map %q: %d nodes, prize pool %s gp.", m.Name, m.Graph.Len(), comma(decimal.NewFromInt(m.PrizePool))))
	return string(raw), nil
}
