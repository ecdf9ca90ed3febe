package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"playbook/internal/app"
	"playbook/internal/config"
	"playbook/internal/db"
	"playbook/internal/domain"
	"playbook/internal/engine"
	"playbook/internal/playmatch"
	"playbook/internal/repo"
	"playbook/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "pb",
	Short: "Playbook CLI",
	Long: `Playbook keeps reusable sales plays and tracks how each opportunity runs them.
- Play: a template with an ordered list of stages (objective, guidance, checklist).
- Stage scope: the stage keys a play covers; known keys come from the catalog in
  playbook.yml, unknown keys get placeholder stages.
- Opportunity: a deal. Attaching a play copies its stages into per-opportunity
  stage instances that are tracked independently from then on.
- Match: rank plays against an offering, sector, region and sales stage.
- Event log: every change is recorded, view it with 'pb log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_, err := db.EnsureWorkspace(viper.GetString("workspace"))
		return err
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("PLAYBOOK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "", "actor identifier (defaults to server.default_actor)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(playCmd())
	rootCmd.AddCommand(oppCmd())
	rootCmd.AddCommand(stageCmd())
	rootCmd.AddCommand(noteCmd())
	rootCmd.AddCommand(dictCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

// --- plays ---

func playCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "play", Short: "Manage play templates"}
	cmd.AddCommand(playCreateCmd())
	cmd.AddCommand(playListCmd())
	cmd.AddCommand(playShowCmd())
	cmd.AddCommand(playUpdateCmd())
	cmd.AddCommand(playDeleteCmd())
	cmd.AddCommand(playMatchCmd())
	cmd.AddCommand(playSearchCmd())
	return cmd
}

type playFlags struct {
	title, summary, offering, sector, geo, salesStage string
	scope, tags, technologies, owners, collections    []string
	teamMembers                                       []string
	stagesFile                                        string
}

func (f *playFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.title, "title", "", "play title")
	cmd.Flags().StringVar(&f.summary, "summary", "", "summary")
	cmd.Flags().StringVar(&f.offering, "offering", "", "offering (comma separated for several)")
	cmd.Flags().StringVar(&f.sector, "sector", "", "sector")
	cmd.Flags().StringVar(&f.geo, "geo", "", "geography")
	cmd.Flags().StringVar(&f.salesStage, "sales-stage", "", "sales stage")
	cmd.Flags().StringSliceVar(&f.scope, "scope", nil, "stage keys the play covers")
	cmd.Flags().StringVar(&f.stagesFile, "stages-file", "", "YAML or JSON file with explicit stage definitions")
	cmd.Flags().StringSliceVar(&f.tags, "tag", nil, "tags")
	cmd.Flags().StringSliceVar(&f.technologies, "technology", nil, "technologies")
	cmd.Flags().StringSliceVar(&f.owners, "owner", nil, "owners")
	cmd.Flags().StringSliceVar(&f.collections, "collection", nil, "collections")
	cmd.Flags().StringSliceVar(&f.teamMembers, "team-member", nil, "default team members")
}

func (f *playFlags) stages() ([]domain.StageDefinition, error) {
	if f.stagesFile == "" {
		return nil, nil
	}
	data, err := os.ReadFile(f.stagesFile)
	if err != nil {
		return nil, err
	}
	// YAML is a superset of JSON.
	var defs []domain.StageDefinition
	if err := yaml.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("parse %s: %w", f.stagesFile, err)
	}
	return defs, nil
}

func playCreateCmd() *cobra.Command {
	var f playFlags
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a play",
		RunE: func(cmd *cobra.Command, args []string) error {
			defs, err := f.stages()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.CreatePlay(ctx, engine.PlayCreateOptions{
					Title:              f.title,
					Summary:            f.summary,
					Offering:           f.offering,
					Sector:             f.sector,
					Geo:                f.geo,
					SalesStage:         f.salesStage,
					StageScope:         f.scope,
					Stages:             defs,
					Tags:               f.tags,
					Technologies:       f.technologies,
					Owners:             f.owners,
					Collections:        f.collections,
					DefaultTeamMembers: f.teamMembers,
					ActorID:            actorID(e),
				})
				if err != nil {
					return err
				}
				return printPlay(p)
			})
		},
	}
	f.bind(cmd)
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func playListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List plays",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				plays, err := e.ListPlays(ctx)
				if err != nil {
					return err
				}
				return printPlays(plays)
			})
		},
	}
}

func playShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <play-id>",
		Short: "Show a play with its stages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := engine.ParsePlayID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.GetPlay(ctx, id)
				if err != nil {
					return err
				}
				return printPlay(p)
			})
		},
	}
}

func playUpdateCmd() *cobra.Command {
	var f playFlags
	cmd := &cobra.Command{
		Use:   "update <play-id>",
		Short: "Update the given fields of a play",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := engine.ParsePlayID(args[0])
			if err != nil {
				return err
			}
			defs, err := f.stages()
			if err != nil {
				return err
			}
			changed := cmd.Flags().Changed
			var patch engine.PlayPatch
			setString := func(flag string, dst **string, v string) {
				if changed(flag) {
					*dst = &v
				}
			}
			setList := func(flag string, dst **[]string, v []string) {
				if changed(flag) {
					*dst = &v
				}
			}
			setString("title", &patch.Title, f.title)
			setString("summary", &patch.Summary, f.summary)
			setString("offering", &patch.Offering, f.offering)
			setString("sector", &patch.Sector, f.sector)
			setString("geo", &patch.Geo, f.geo)
			setString("sales-stage", &patch.SalesStage, f.salesStage)
			setList("scope", &patch.StageScope, f.scope)
			setList("tag", &patch.Tags, f.tags)
			setList("technology", &patch.Technologies, f.technologies)
			setList("owner", &patch.Owners, f.owners)
			setList("collection", &patch.Collections, f.collections)
			setList("team-member", &patch.DefaultTeamMembers, f.teamMembers)
			if changed("stages-file") {
				patch.Stages = &defs
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				patch.ActorID = actorID(e)
				p, err := e.PatchPlay(ctx, id, patch)
				if err != nil {
					return err
				}
				return printPlay(p)
			})
		},
	}
	f.bind(cmd)
	return cmd
}

func playDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <play-id>",
		Short: "Delete a play that no opportunity uses",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := engine.ParsePlayID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.DeletePlay(ctx, id, actorID(e)); err != nil {
					return err
				}
				return printResult(map[string]any{"deleted": id}, fmt.Sprintf("play %d deleted", id))
			})
		},
	}
}

func playMatchCmd() *cobra.Command {
	var q playmatch.Query
	cmd := &cobra.Command{
		Use:   "match",
		Short: "Rank plays against an opportunity intent",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				results, err := e.MatchPlays(ctx, q)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(results)
				}
				tw := newTable(table.Row{"Score", "ID", "Title", "Offering", "Sector", "Geo", "Sales Stage"})
				for _, r := range results {
					tw.AppendRow(table.Row{r.Score, r.Play.ID, r.Play.Title, r.Play.Offering, r.Play.Sector, r.Play.Geo, r.Play.SalesStage})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&q.Offering, "offering", nil, "offerings")
	cmd.Flags().StringVar(&q.Sector, "sector", "", "sector")
	cmd.Flags().StringVar(&q.Region, "region", "", "region")
	cmd.Flags().StringVar(&q.Stage, "stage", "", "sales stage")
	return cmd
}

func playSearchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <term>",
		Short: "Fuzzy search play titles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				plays, err := e.SearchPlays(ctx, args[0])
				if err != nil {
					return err
				}
				return printPlays(plays)
			})
		},
	}
}

// --- opportunities ---

func oppCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "opp", Short: "Manage opportunities"}
	cmd.AddCommand(oppCreateCmd())
	cmd.AddCommand(oppListCmd())
	cmd.AddCommand(oppShowCmd())
	cmd.AddCommand(oppUpdateCmd())
	cmd.AddCommand(oppDeleteCmd())
	cmd.AddCommand(oppAttachCmd())
	cmd.AddCommand(oppDetachCmd())
	return cmd
}

type oppFlags struct {
	name, account, accountID, salesStage, region, industry string
	offering, problem, status, health                      string
	tags, technologies, team, plays                        []string
}

func (f *oppFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.name, "name", "", "opportunity name")
	cmd.Flags().StringVar(&f.account, "account", "", "account name")
	cmd.Flags().StringVar(&f.accountID, "account-id", "", "account id")
	cmd.Flags().StringVar(&f.salesStage, "sales-stage", "", "sales stage")
	cmd.Flags().StringVar(&f.region, "region", "", "region")
	cmd.Flags().StringVar(&f.industry, "industry", "", "industry")
	cmd.Flags().StringVar(&f.offering, "offering", "", "offering")
	cmd.Flags().StringVar(&f.problem, "problem", "", "problem statement")
	cmd.Flags().StringVar(&f.status, "status", "", "status: "+strings.Join(domain.OpportunityStatuses, "|"))
	cmd.Flags().StringVar(&f.health, "health", "", "health: "+strings.Join(domain.OpportunityHealths, "|"))
	cmd.Flags().StringSliceVar(&f.tags, "tag", nil, "tags")
	cmd.Flags().StringSliceVar(&f.technologies, "technology", nil, "technologies")
	cmd.Flags().StringSliceVar(&f.team, "team-member", nil, "team member user ids")
	cmd.Flags().StringSliceVar(&f.plays, "play", nil, "play ids to attach")
}

func oppCreateCmd() *cobra.Command {
	var f oppFlags
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an opportunity; every --play must exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				o, err := e.CreateOpportunity(ctx, engine.OpportunityCreateOptions{
					Name:             f.name,
					AccountName:      f.account,
					AccountID:        f.accountID,
					SalesStage:       f.salesStage,
					Region:           f.region,
					Industry:         f.industry,
					Offering:         f.offering,
					ProblemStatement: f.problem,
					Status:           f.status,
					Health:           f.health,
					Tags:             f.tags,
					Technologies:     f.technologies,
					TeamMemberIDs:    f.team,
					PlayIDs:          f.plays,
					ActorID:          actorID(e),
				})
				if err != nil {
					return err
				}
				return printOpportunity(o)
			})
		},
	}
	f.bind(cmd)
	return cmd
}

func oppListCmd() *cobra.Command {
	var f repo.OpportunityFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List opportunities, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListOpportunities(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable(table.Row{"ID", "Name", "Account", "Status", "Health", "Region", "Plays"})
				for _, o := range items {
					tw.AppendRow(table.Row{o.ID, o.Name, o.AccountName, o.Status, o.Health, o.Region, len(o.OpportunityPlays)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.Region, "region", "", "region filter")
	cmd.Flags().StringVar(&f.Industry, "industry", "", "industry filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "maximum rows")
	return cmd
}

func oppShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <opportunity-id>",
		Short: "Show an opportunity with its plays and stage progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				o, err := e.GetOpportunity(ctx, args[0])
				if err != nil {
					return err
				}
				return printOpportunity(o)
			})
		},
	}
}

func oppUpdateCmd() *cobra.Command {
	var f oppFlags
	cmd := &cobra.Command{
		Use:   "update <opportunity-id>",
		Short: "Update the given fields; --play attaches additively",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			changed := cmd.Flags().Changed
			var opts engine.OpportunityUpdateOptions
			setString := func(flag string, dst **string, v string) {
				if changed(flag) {
					*dst = &v
				}
			}
			setList := func(flag string, dst **[]string, v []string) {
				if changed(flag) {
					*dst = &v
				}
			}
			setString("name", &opts.Name, f.name)
			setString("account", &opts.AccountName, f.account)
			setString("account-id", &opts.AccountID, f.accountID)
			setString("sales-stage", &opts.SalesStage, f.salesStage)
			setString("region", &opts.Region, f.region)
			setString("industry", &opts.Industry, f.industry)
			setString("offering", &opts.Offering, f.offering)
			setString("problem", &opts.ProblemStatement, f.problem)
			setString("status", &opts.Status, f.status)
			setString("health", &opts.Health, f.health)
			setList("tag", &opts.Tags, f.tags)
			setList("technology", &opts.Technologies, f.technologies)
			setList("team-member", &opts.TeamMemberIDs, f.team)
			setList("play", &opts.PlayIDs, f.plays)
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts.ActorID = actorID(e)
				o, err := e.UpdateOpportunity(ctx, args[0], opts)
				if err != nil {
					return err
				}
				return printOpportunity(o)
			})
		},
	}
	f.bind(cmd)
	return cmd
}

func oppDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <opportunity-id>",
		Short: "Delete an opportunity with its stage instances and notes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.DeleteOpportunity(ctx, args[0], actorID(e)); err != nil {
					return err
				}
				return printResult(map[string]any{"deleted": args[0]}, "opportunity "+args[0]+" deleted")
			})
		},
	}
}

func oppAttachCmd() *cobra.Command {
	var primary bool
	var alias string
	cmd := &cobra.Command{
		Use:   "attach <opportunity-id> <play-id>",
		Short: "Attach a play and create its stage instances",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			playID, err := engine.ParsePlayID(args[1])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if _, err := e.GetPlay(ctx, playID); err != nil {
					return err
				}
				ids := []string{args[1]}
				if _, err := e.UpdateOpportunity(ctx, args[0], engine.OpportunityUpdateOptions{PlayIDs: &ids, ActorID: actorID(e)}); err != nil {
					return err
				}
				patch := engine.OpportunityPlayPatch{ActorID: actorID(e)}
				if cmd.Flags().Changed("primary") {
					patch.IsPrimary = &primary
				}
				if cmd.Flags().Changed("alias") {
					patch.AliasName = &alias
				}
				if patch.IsPrimary != nil || patch.AliasName != nil {
					if _, err := e.SetOpportunityPlay(ctx, args[0], playID, patch); err != nil {
						return err
					}
				}
				o, err := e.GetOpportunity(ctx, args[0])
				if err != nil {
					return err
				}
				return printOpportunity(o)
			})
		},
	}
	cmd.Flags().BoolVar(&primary, "primary", false, "mark as the primary play")
	cmd.Flags().StringVar(&alias, "alias", "", "alias name for this attachment")
	return cmd
}

func oppDetachCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "detach <opportunity-id> <play-id>",
		Short: "Detach a play and drop its stage instances",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			playID, err := engine.ParsePlayID(args[1])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.DetachPlay(ctx, args[0], playID, actorID(e)); err != nil {
					return err
				}
				return printResult(map[string]any{"detached": playID}, fmt.Sprintf("play %d detached", playID))
			})
		},
	}
}

// --- stages and notes ---

func stageCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "stage", Short: "Track stage progress on an opportunity"}
	cmd.AddCommand(stageUpdateCmd())
	return cmd
}

func stageUpdateCmd() *cobra.Command {
	var status, start, target, completed, summary string
	var checklist map[string]string
	var risks []string
	var version int64
	cmd := &cobra.Command{
		Use:   "update <opportunity-id> <play-id> <stage-key>",
		Short: "Update a stage instance",
		Long:  "Only the given flags change. Pass an empty date or --summary \"\" to clear it. --check merges item statuses, --risk replaces the risk flags.",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			playID, err := engine.ParsePlayID(args[1])
			if err != nil {
				return err
			}
			changed := cmd.Flags().Changed
			var patch engine.StagePatch
			for flag, pair := range map[string]struct {
				dst **string
				v   string
			}{
				"status":         {&patch.Status, status},
				"start-date":     {&patch.StartDate, start},
				"target-date":    {&patch.TargetDate, target},
				"completed-date": {&patch.CompletedDate, completed},
				"summary":        {&patch.SummaryNote, summary},
			} {
				if changed(flag) {
					v := pair.v
					*pair.dst = &v
				}
			}
			if changed("check") {
				patch.ChecklistItemStatuses = checklist
			}
			if changed("risk") {
				patch.RiskFlags = risks
				if patch.RiskFlags == nil {
					patch.RiskFlags = []string{}
				}
			}
			if changed("expected-version") {
				patch.ExpectedVersion = &version
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				patch.ActorID = actorID(e)
				si, err := e.UpdateStageInstance(ctx, args[0], playID, args[2], patch)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(si)
				}
				printStageInstances([]domain.StageInstance{si})
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status: "+strings.Join(domain.StageStatuses, "|"))
	cmd.Flags().StringVar(&start, "start-date", "", "start date (YYYY-MM-DD or RFC3339)")
	cmd.Flags().StringVar(&target, "target-date", "", "target date")
	cmd.Flags().StringVar(&completed, "completed-date", "", "completed date")
	cmd.Flags().StringVar(&summary, "summary", "", "summary note")
	cmd.Flags().StringToStringVar(&checklist, "check", nil, "checklist item statuses, item=status")
	cmd.Flags().StringSliceVar(&risks, "risk", nil, "risk flags")
	cmd.Flags().Int64Var(&version, "expected-version", 0, "fail unless the stage is at this version")
	return cmd
}

func noteCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "note", Short: "Stage notes"}
	cmd.AddCommand(noteAddCmd())
	cmd.AddCommand(noteListCmd())
	return cmd
}

func noteAddCmd() *cobra.Command {
	var content string
	var private bool
	cmd := &cobra.Command{
		Use:   "add <stage-instance-id>",
		Short: "Add a note to a stage instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				n, err := e.AddStageNote(ctx, args[0], engine.NoteOptions{Content: content, IsPrivate: private, ActorID: actorID(e)})
				if err != nil {
					return err
				}
				return printResult(n, "note "+n.ID+" added")
			})
		},
	}
	cmd.Flags().StringVar(&content, "content", "", "note text")
	cmd.Flags().BoolVar(&private, "private", false, "private note")
	_ = cmd.MarkFlagRequired("content")
	return cmd
}

func noteListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <stage-instance-id>",
		Short: "List notes, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				notes, err := e.ListStageNotes(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(notes)
				}
				tw := newTable(table.Row{"ID", "Author", "Private", "Created", "Content"})
				for _, n := range notes {
					tw.AppendRow(table.Row{n.ID, n.AuthorID, n.IsPrivate, n.CreatedAt, n.Content})
				}
				tw.Render()
				return nil
			})
		},
	}
}

// --- dictionary ---

func dictCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dict",
		Short: "Taxonomy values: " + strings.Join(dictionaryKinds(), ", "),
	}
	cmd.AddCommand(dictListCmd())
	cmd.AddCommand(dictAddCmd())
	cmd.AddCommand(dictRenameCmd())
	cmd.AddCommand(dictRemoveCmd())
	cmd.AddCommand(dictMapCmd())
	return cmd
}

func dictionaryKinds() []string {
	out := make([]string, 0, len(domain.DictionaryKinds))
	for _, k := range domain.DictionaryKinds {
		out = append(out, string(k))
	}
	return out
}

func dictListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show every taxonomy list",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.Dictionary(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(d)
				}
				tw := newTable(table.Row{"Kind", "Values"})
				for _, row := range []struct {
					kind   string
					values []string
				}{
					{"offerings", d.Offerings},
					{"technologies", d.Technologies},
					{"stages", d.Stages},
					{"sectors", d.Sectors},
					{"geos", d.Geos},
					{"tags", d.Tags},
				} {
					tw.AppendRow(table.Row{row.kind, strings.Join(row.values, ", ")})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func dictAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <kind> <value>",
		Short: "Add a taxonomy value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.AddDictionaryOption(ctx, args[0], args[1], actorID(e)); err != nil {
					return err
				}
				return printResult(map[string]any{"kind": args[0], "value": args[1]}, "added")
			})
		},
	}
}

func dictRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <kind> <old> <new>",
		Short: "Rename a taxonomy value",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.RenameDictionaryOption(ctx, args[0], args[1], args[2], actorID(e)); err != nil {
					return err
				}
				return printResult(map[string]any{"kind": args[0], "value": args[1], "new_value": args[2]}, "renamed")
			})
		},
	}
}

func dictRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <kind> <value>",
		Short: "Remove a taxonomy value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.DeleteDictionaryOption(ctx, args[0], args[1], actorID(e)); err != nil {
					return err
				}
				return printResult(map[string]any{"kind": args[0], "value": args[1]}, "removed")
			})
		},
	}
}

func dictMapCmd() *cobra.Command {
	var remove bool
	cmd := &cobra.Command{
		Use:   "map <offering> <technology>",
		Short: "Link a technology to an offering",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			action := "add"
			if remove {
				action = "remove"
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.MapOfferingTechnology(ctx, args[0], args[1], action, actorID(e)); err != nil {
					return err
				}
				return printResult(map[string]any{"offering": args[0], "technology": args[1], "action": action}, "mapping updated")
			})
		},
	}
	cmd.Flags().BoolVar(&remove, "remove", false, "unlink instead of link")
	return cmd
}

// --- config ---

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect workspace config",
		Long:  "playbook.yml holds the server settings, log level, stage catalog and webhooks. Defaults apply when the file is missing.",
	}
	cmd.AddCommand(configShowCmd())
	cmd.AddCommand(configValidateCmd())
	cmd.AddCommand(configInitCmd())
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(cfg)
			}
			out, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate playbook.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := config.Load(viper.GetString("workspace"))
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default playbook.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			return printResult(map[string]any{"path": path}, "wrote "+path)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

// --- event log ---

func logCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "log", Short: "Event log"}
	cmd.AddCommand(logTailCmd())
	return cmd
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show the latest events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Repo.LatestEvents(ctx, n, 0, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := newTable(table.Row{"ID", "Time", "Type", "Entity", "Actor", "Payload"})
				for _, evt := range events {
					tw.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, evt.EntityKind + ":" + evt.EntityID, evt.ActorID, evt.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

// --- serve ---

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long:  "Serves the API with OpenAPI at <base-path>/openapi.json and Swagger UI at /docs. Set PLAYBOOK_JWT_SECRET to accept bearer tokens.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := app.Open(cmd.Context(), viper.GetString("workspace"), nil)
			if err != nil {
				return err
			}
			defer ws.Close()
			cfg := ws.Config
			if !cmd.Flags().Changed("addr") && cfg.Server.Addr != "" {
				addr = cfg.Server.Addr
			}
			if !cmd.Flags().Changed("base-path") && cfg.Server.BasePath != "" {
				basePath = cfg.Server.BasePath
			}
			authCfg := server.AuthConfig{
				JWTSecret:    os.Getenv("PLAYBOOK_JWT_SECRET"),
				DefaultActor: cfg.Server.DefaultActor,
				Logger:       ws.Logger,
			}
			if authCfg.JWTSecret == "" {
				ws.Logger.Warn("PLAYBOOK_JWT_SECRET not set; bearer tokens will be rejected")
			}
			handler, err := server.New(server.Config{Engine: ws.Engine, BasePath: basePath, Auth: authCfg, Logger: ws.Logger})
			if err != nil {
				return err
			}
			server.StartWebhookDispatcher(cmd.Context(), ws.Engine, ws.Logger)
			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			ws.Logger.Info("serving playbook api", "addr", addr, "base_path", basePath, "docs", "/docs")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address (default from config)")
	cmd.Flags().StringVar(&basePath, "base-path", "/v2", "API base path (default from config)")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	ws, err := app.Open(ctx, viper.GetString("workspace"), nil)
	if err != nil {
		return err
	}
	defer ws.Close()
	return fn(ctx, ws.Engine)
}

// actorID prefers --actor-id / PLAYBOOK_ACTOR_ID, then the configured default.
func actorID(e engine.Engine) string {
	if id := strings.TrimSpace(viper.GetString("actor-id")); id != "" {
		return id
	}
	if e.Config != nil && e.Config.Server.DefaultActor != "" {
		return e.Config.Server.DefaultActor
	}
	return "local-user"
}

func newTable(header table.Row) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(header)
	return tw
}

func printPlays(plays []domain.Play) error {
	if viper.GetBool("json") {
		return printJSON(plays)
	}
	tw := newTable(table.Row{"ID", "Title", "Offering", "Sector", "Geo", "Sales Stage", "Stages"})
	for _, p := range plays {
		tw.AppendRow(table.Row{p.ID, p.Title, p.Offering, p.Sector, p.Geo, p.SalesStage, strings.Join(p.StageKeys(), " > ")})
	}
	tw.Render()
	return nil
}

func printPlay(p domain.Play) error {
	if viper.GetBool("json") {
		return printJSON(p)
	}
	fmt.Printf("Play %d: %s\n", p.ID, p.Title)
	if p.Summary != "" {
		fmt.Println(p.Summary)
	}
	fmt.Printf("Offering: %s  Sector: %s  Geo: %s  Sales stage: %s\n", p.Offering, p.Sector, p.Geo, p.SalesStage)
	tw := newTable(table.Row{"#", "Key", "Label", "Objective", "Checklist"})
	for i, s := range p.Stages {
		tw.AppendRow(table.Row{i + 1, s.Key, s.Label, s.Objective, strings.Join(s.ChecklistItems, "; ")})
	}
	tw.Render()
	return nil
}

func printOpportunity(o domain.Opportunity) error {
	if viper.GetBool("json") {
		return printJSON(o)
	}
	fmt.Printf("Opportunity %s: %s (%s)\n", o.ID, o.Name, o.AccountName)
	fmt.Printf("Status: %s  Health: %s  Offering: %s  Region: %s\n", o.Status, o.Health, o.Offering, o.Region)
	for _, op := range o.OpportunityPlays {
		marker := ""
		if op.IsPrimary {
			marker = " [primary]"
		}
		name := fmt.Sprintf("play %d", op.PlayID)
		if op.AliasName != "" {
			name += " (" + op.AliasName + ")"
		}
		fmt.Printf("\n%s%s\n", name, marker)
		printStageInstances(op.StageInstances)
	}
	return nil
}

func printStageInstances(items []domain.StageInstance) {
	tw := newTable(table.Row{"Stage", "Status", "Target", "Completed", "Risks", "Version", "Instance ID"})
	for _, si := range items {
		tw.AppendRow(table.Row{si.PlayStageKey, si.Status, deref(si.TargetDate), deref(si.CompletedDate), strings.Join(si.RiskFlags, ", "), si.Version, si.ID})
	}
	tw.Render()
}

func printResult(v any, text string) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	fmt.Println(text)
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
