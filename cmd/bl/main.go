package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"bountyline/internal/config"
	"bountyline/internal/db"
	"bountyline/internal/domain"
	"bountyline/internal/engine"
	"bountyline/internal/migrate"
	"bountyline/internal/repo"
	"bountyline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "bl",
	Short: "Bountyline CLI",
	Long: `Bountyline runs a reputation-gated task marketplace on a local ledger.
Core concepts:
- Workspace: your .bountyline directory holding the database; config comes from bountyline.yml.
- Accounts: every actor has a reputation score; normal scores act freely, at-risk scores must stake collateral, blacklisted scores are out.
- Tasks: bounties with an escrowed reward that flow draft -> published -> active -> completed (canceled/expired are exits).
- Submissions: work handed in against a task; peers review it and an adoption strategy decides the winner.
- Rewards: on adoption the escrow splits between creator, accurate reviewers, and the platform fee pool.
- Arbitration: fee-backed appeals against reputation damage or removed submissions, resolved by an admin.
- Ledger: custody conservation is checked with 'bl ledger conservation'; the event log is the audit trail.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("BOUNTYLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(accountCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(submissionCmd())
	rootCmd.AddCommand(arbitrationCmd())
	rootCmd.AddCommand(ledgerCmd())
	rootCmd.AddCommand(registryCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(serveCmd())
}

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show marketplace status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				counts, err := e.Repo.CountTasksByStatus(ctx)
				if err != nil {
					return err
				}
				out := map[string]any{
					"marketplace_id": e.Config.Marketplace.ID,
					"paused":         e.Paused(),
					"task_counts":    counts,
				}
				if viper.GetBool("json") {
					return printJSON(out)
				}
				fmt.Printf("Marketplace: %s\n", e.Config.Marketplace.ID)
				fmt.Printf("Paused: %v\n", e.Paused())
				fmt.Println("Tasks:")
				for status, c := range counts {
					fmt.Printf("  %s: %d\n", status, c)
				}
				return nil
			})
		},
	}
	return cmd
}

func accountCmd() *cobra.Command {
	acc := &cobra.Command{
		Use:   "account",
		Short: "Manage reputation accounts",
		Long:  "Accounts carry a reputation score and optional stake. Scores at or above the normal threshold act freely; at-risk scores must stake proportional collateral first.",
	}
	acc.AddCommand(accountInitCmd())
	acc.AddCommand(accountShowCmd())
	acc.AddCommand(accountAccessCmd())
	acc.AddCommand(accountStakeCmd())
	acc.AddCommand(accountUnstakeRequestCmd())
	acc.AddCommand(accountUnstakeCmd())
	acc.AddCommand(accountWalletsCmd())
	acc.AddCommand(accountCategoryCmd())
	acc.AddCommand(accountAdjustCmd())
	return acc
}

func accountInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the acting account",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				a, err := e.InitAccount(ctx, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	return cmd
}

func accountShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <actor>",
		Short: "Show an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				a, err := e.Repo.GetAccount(ctx, args[0])
				if err != nil {
					return err
				}
				out := map[string]any{
					"account":        a,
					"required_stake": e.RequiredStake(a),
				}
				return printJSONOrTable(out)
			})
		},
	}
	return cmd
}

func accountAccessCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "access <actor>",
		Short: "Check whether an actor may use the marketplace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				ok, reason, err := e.ValidateAccess(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"allowed": ok, "reason": reason})
			})
		},
	}
	return cmd
}

func accountStakeCmd() *cobra.Command {
	var asset string
	var amount int64
	cmd := &cobra.Command{
		Use:   "stake",
		Short: "Stake collateral from the wallet",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				a, err := e.Stake(ctx, viper.GetString("actor-id"), asset, amount)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&asset, "asset", "CRD", "asset code")
	cmd.Flags().Int64Var(&amount, "amount", 0, "amount to stake")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func accountUnstakeRequestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unstake-request",
		Short: "Start the unstake lock window",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				a, err := e.RequestUnstake(ctx, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	return cmd
}

func accountUnstakeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unstake",
		Short: "Withdraw the stake after the lock window",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				a, err := e.Unstake(ctx, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	return cmd
}

func accountWalletsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wallets <actor>",
		Short: "List wallet balances",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				items, err := e.Repo.ListWallets(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Asset", "Amount"})
				for _, w := range items {
					tw.AppendRow(table.Row{w.Asset, w.Amount})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func accountCategoryCmd() *cobra.Command {
	cat := &cobra.Command{
		Use:   "category",
		Short: "Category score accrual and claims",
	}
	cat.AddCommand(accountCategoryListCmd())
	cat.AddCommand(accountCategoryClaimCmd())
	cat.AddCommand(accountCategoryGrantCmd())
	return cat
}

func accountCategoryListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <actor>",
		Short: "List category scores",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				items, err := e.Repo.ListCategoryScores(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func accountCategoryClaimCmd() *cobra.Command {
	var category string
	var amount int64
	cmd := &cobra.Command{
		Use:   "claim",
		Short: "Claim pending category score",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				cs, err := e.ClaimCategoryScore(ctx, viper.GetString("actor-id"), category, amount)
				if err != nil {
					return err
				}
				return printJSONOrTable(cs)
			})
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "category")
	cmd.Flags().Int64Var(&amount, "amount", 0, "amount to claim")
	_ = cmd.MarkFlagRequired("category")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func accountCategoryGrantCmd() *cobra.Command {
	var target, category string
	var amount int64
	cmd := &cobra.Command{
		Use:   "grant",
		Short: "Accrue pending category score (admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				return e.GrantCategoryScore(ctx, viper.GetString("actor-id"), target, category, amount)
			})
		},
	}
	cmd.Flags().StringVar(&target, "actor", "", "target actor")
	cmd.Flags().StringVar(&category, "category", "", "category")
	cmd.Flags().Int64Var(&amount, "amount", 0, "amount to accrue")
	_ = cmd.MarkFlagRequired("actor")
	_ = cmd.MarkFlagRequired("category")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func accountAdjustCmd() *cobra.Command {
	var target, reason string
	var delta int64
	cmd := &cobra.Command{
		Use:   "adjust",
		Short: "Adjust an account's score (admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				a, err := e.AdjustReputation(ctx, viper.GetString("actor-id"), target, delta, reason)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&target, "actor", "", "target actor")
	cmd.Flags().Int64Var(&delta, "delta", 0, "score delta (may be negative)")
	cmd.Flags().StringVar(&reason, "reason", "", "reason recorded in the event log")
	_ = cmd.MarkFlagRequired("actor")
	_ = cmd.MarkFlagRequired("delta")
	return cmd
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
		Long:  "Tasks are bounties. Publishing escrows the full reward; cancel refunds it (with a penalty once published); adoption of a submission pays it out.",
	}
	task.AddCommand(taskCreateCmd())
	task.AddCommand(taskListCmd())
	task.AddCommand(taskGetCmd())
	task.AddCommand(taskPublishCmd())
	task.AddCommand(taskCancelCmd())
	task.AddCommand(taskExpireCmd())
	task.AddCommand(taskRewardCmd())
	task.AddCommand(taskPoliciesCmd())
	task.AddCommand(taskSubmissionsCmd())
	return task
}

func taskCreateCmd() *cobra.Command {
	var d engine.TaskDraft
	var deadlineIn string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a draft task",
		RunE: func(cmd *cobra.Command, args []string) error {
			d.Deadline = deadlineIn
			if dur, err := time.ParseDuration(deadlineIn); err == nil {
				d.Deadline = time.Now().UTC().Add(dur).Format(time.RFC3339)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				t, err := e.CreateTask(ctx, viper.GetString("actor-id"), d)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&d.Title, "title", "", "title")
	cmd.Flags().StringVar(&d.Description, "description", "", "description")
	cmd.Flags().StringVar(&d.Category, "category", "", "category (defaults to general)")
	cmd.Flags().Int64Var(&d.RewardAmount, "reward", 0, "reward amount")
	cmd.Flags().StringVar(&d.RewardAsset, "asset", "CRD", "reward asset")
	cmd.Flags().StringVar(&deadlineIn, "deadline", "", "RFC3339 timestamp or duration like 72h")
	cmd.Flags().StringVar(&d.SubmitGuard, "submit-guard", "", "guard checked before submitting")
	cmd.Flags().StringVar(&d.ReviewGuard, "review-guard", "", "guard checked before reviewing")
	cmd.Flags().StringVar(&d.AdoptionStrategy, "adoption-strategy", "", "adoption strategy (defaults to threshold)")
	cmd.Flags().StringVar(&d.RewardStrategy, "reward-strategy", "", "reward strategy (defaults to default-split)")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("reward")
	_ = cmd.MarkFlagRequired("deadline")
	return cmd
}

func taskListCmd() *cobra.Command {
	var f repo.TaskFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				tasks, err := e.Repo.ListTasks(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Owner", "Reward", "Deadline"})
				for _, t := range tasks {
					tw.AppendRow(table.Row{t.ID, t.Title, t.Status, t.Owner, fmt.Sprintf("%d %s", t.RewardAmount, t.RewardAsset), t.Deadline})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Owner, "owner", "", "owner filter")
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.Category, "category", "", "category filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "max rows")
	return cmd
}

func taskGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Get a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				t, err := e.Repo.GetTask(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func taskPublishCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish <id>",
		Short: "Publish a draft task, escrowing the reward",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				t, err := e.PublishTask(ctx, viper.GetString("actor-id"), id)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func taskCancelCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a draft or published task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				t, err := e.CancelTask(ctx, viper.GetString("actor-id"), id, reason)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "cancellation reason")
	return cmd
}

func taskExpireCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "expire <id>",
		Short: "Settle a task whose deadline passed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				t, err := e.ExpireTask(ctx, viper.GetString("actor-id"), id)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func taskRewardCmd() *cobra.Command {
	var additional int64
	cmd := &cobra.Command{
		Use:   "reward <id>",
		Short: "Increase a task's reward",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				t, err := e.IncreaseReward(ctx, viper.GetString("actor-id"), id, additional)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().Int64Var(&additional, "add", 0, "additional reward amount")
	_ = cmd.MarkFlagRequired("add")
	return cmd
}

func taskPoliciesCmd() *cobra.Command {
	var submitGuard, reviewGuard, adoption, reward string
	cmd := &cobra.Command{
		Use:   "policies <id>",
		Short: "Update guards and strategies on a draft task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			var sg, rg, as, rs *string
			if cmd.Flags().Changed("submit-guard") {
				sg = &submitGuard
			}
			if cmd.Flags().Changed("review-guard") {
				rg = &reviewGuard
			}
			if cmd.Flags().Changed("adoption-strategy") {
				as = &adoption
			}
			if cmd.Flags().Changed("reward-strategy") {
				rs = &reward
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				t, err := e.UpdateTaskPolicies(ctx, viper.GetString("actor-id"), id, sg, rg, as, rs)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&submitGuard, "submit-guard", "", "guard name (empty clears)")
	cmd.Flags().StringVar(&reviewGuard, "review-guard", "", "guard name (empty clears)")
	cmd.Flags().StringVar(&adoption, "adoption-strategy", "", "adoption strategy name")
	cmd.Flags().StringVar(&reward, "reward-strategy", "", "reward strategy name")
	return cmd
}

func taskSubmissionsCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "submissions <id>",
		Short: "List a task's submissions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				items, err := e.Repo.ListSubmissions(ctx, repo.SubmissionFilters{TaskID: id, Status: status})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Owner", "Status", "Approvals", "Rejections", "Version"})
				for _, s := range items {
					tw.AppendRow(table.Row{s.ID, s.Owner, s.Status, s.ApproveCount, s.RejectCount, s.Version})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	return cmd
}

func submissionCmd() *cobra.Command {
	sub := &cobra.Command{
		Use:   "submission",
		Short: "Manage submissions",
		Long:  "Submissions are work handed in against a task. Peers review them and the task's adoption strategy decides adoption or removal.",
	}
	sub.AddCommand(submissionCreateCmd())
	sub.AddCommand(submissionGetCmd())
	sub.AddCommand(submissionUpdateCmd())
	sub.AddCommand(submissionVersionsCmd())
	sub.AddCommand(submissionReviewCmd())
	sub.AddCommand(submissionReviewsCmd())
	sub.AddCommand(submissionEvaluateCmd())
	sub.AddCommand(submissionRestoreCmd())
	return sub
}

func submissionCreateCmd() *cobra.Command {
	var taskID int64
	var content string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Submit work for a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				s, err := e.Submit(ctx, viper.GetString("actor-id"), taskID, content)
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().Int64Var(&taskID, "task", 0, "task id")
	cmd.Flags().StringVar(&content, "content", "", "submission content")
	_ = cmd.MarkFlagRequired("task")
	_ = cmd.MarkFlagRequired("content")
	return cmd
}

func submissionGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Get a submission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				s, err := e.Repo.GetSubmission(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	return cmd
}

func submissionUpdateCmd() *cobra.Command {
	var content string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Replace submission content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				s, err := e.UpdateSubmission(ctx, viper.GetString("actor-id"), id, content)
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().StringVar(&content, "content", "", "new content")
	_ = cmd.MarkFlagRequired("content")
	return cmd
}

func submissionVersionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "versions <id>",
		Short: "List content versions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				items, err := e.Repo.ListSubmissionVersions(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func submissionReviewCmd() *cobra.Command {
	var outcome, reason string
	cmd := &cobra.Command{
		Use:   "review <id>",
		Short: "Review a submission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				s, err := e.Review(ctx, viper.GetString("actor-id"), id, outcome, reason)
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().StringVar(&outcome, "outcome", "", "approve or reject")
	cmd.Flags().StringVar(&reason, "reason", "", "review reason")
	_ = cmd.MarkFlagRequired("outcome")
	return cmd
}

func submissionReviewsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reviews <id>",
		Short: "List reviews of a submission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				items, err := e.Repo.ListReviews(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func submissionEvaluateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate <id>",
		Short: "Re-run the adoption strategy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				s, err := e.Evaluate(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	return cmd
}

func submissionRestoreCmd() *cobra.Command {
	var status, reason string
	cmd := &cobra.Command{
		Use:   "restore <id>",
		Short: "Restore a removed submission (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				s, err := e.RestoreSubmission(ctx, viper.GetString("actor-id"), id, status, reason)
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "normal", "restored status (normal or adopted)")
	cmd.Flags().StringVar(&reason, "reason", "", "reason recorded in the event log")
	return cmd
}

func arbitrationCmd() *cobra.Command {
	arb := &cobra.Command{
		Use:   "arbitration",
		Short: "Manage arbitration cases",
		Long:  "Arbitration is the fee-backed appeal path: dispute reputation damage or a removed submission; approval refunds the fee, rejection forfeits it and costs additional score.",
	}
	arb.AddCommand(arbitrationUserCmd())
	arb.AddCommand(arbitrationSubmissionCmd())
	arb.AddCommand(arbitrationListCmd())
	arb.AddCommand(arbitrationGetCmd())
	arb.AddCommand(arbitrationResolveCmd())
	arb.AddCommand(arbitrationExecuteUserCmd())
	arb.AddCommand(arbitrationExecuteSubmissionCmd())
	arb.AddCommand(arbitrationClaimRefundCmd())
	return arb
}

func arbitrationUserCmd() *cobra.Command {
	var target, evidence string
	var fee int64
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Dispute a degraded reputation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				c, err := e.RequestUserArbitration(ctx, viper.GetString("actor-id"), target, evidence, fee)
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&target, "actor", "", "affected actor")
	cmd.Flags().StringVar(&evidence, "evidence", "", "supporting evidence")
	cmd.Flags().Int64Var(&fee, "fee", 0, "arbitration fee")
	_ = cmd.MarkFlagRequired("actor")
	_ = cmd.MarkFlagRequired("evidence")
	_ = cmd.MarkFlagRequired("fee")
	return cmd
}

func arbitrationSubmissionCmd() *cobra.Command {
	var submissionID, fee int64
	var evidence string
	cmd := &cobra.Command{
		Use:   "submission",
		Short: "Dispute a submission's status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				c, err := e.RequestSubmissionArbitration(ctx, viper.GetString("actor-id"), submissionID, evidence, fee)
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().Int64Var(&submissionID, "submission", 0, "submission id")
	cmd.Flags().StringVar(&evidence, "evidence", "", "supporting evidence")
	cmd.Flags().Int64Var(&fee, "fee", 0, "arbitration fee")
	_ = cmd.MarkFlagRequired("submission")
	_ = cmd.MarkFlagRequired("evidence")
	_ = cmd.MarkFlagRequired("fee")
	return cmd
}

func arbitrationListCmd() *cobra.Command {
	var f repo.CaseFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List arbitration cases",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				items, err := e.Repo.ListCases(ctx, f)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().StringVar(&f.Requester, "requester", "", "requester filter")
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.Type, "type", "", "type filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "max rows")
	return cmd
}

func arbitrationGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Get an arbitration case",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				c, err := e.Repo.GetCase(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	return cmd
}

func arbitrationResolveCmd() *cobra.Command {
	var decision, resolution string
	cmd := &cobra.Command{
		Use:   "resolve <id>",
		Short: "Resolve a pending case (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				c, err := e.ResolveArbitration(ctx, viper.GetString("actor-id"), id, decision, resolution)
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&decision, "decision", "", "approved or rejected")
	cmd.Flags().StringVar(&resolution, "resolution", "", "resolution notes")
	_ = cmd.MarkFlagRequired("decision")
	return cmd
}

func arbitrationExecuteUserCmd() *cobra.Command {
	var increase int64
	cmd := &cobra.Command{
		Use:   "execute-user <id>",
		Short: "Apply a reputation correction for an approved user case (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				c, err := e.ExecuteUserArbitration(ctx, viper.GetString("actor-id"), id, increase)
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().Int64Var(&increase, "increase", 0, "score increase")
	_ = cmd.MarkFlagRequired("increase")
	return cmd
}

func arbitrationExecuteSubmissionCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "execute-submission <id>",
		Short: "Restore the submission of an approved case (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				c, err := e.ExecuteSubmissionArbitration(ctx, viper.GetString("actor-id"), id, status)
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "normal", "restored status (normal or adopted)")
	return cmd
}

func arbitrationClaimRefundCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "claim-refund <id>",
		Short: "Claim the fee refund of an approved case",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				c, err := e.ClaimRefund(ctx, viper.GetString("actor-id"), id)
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	return cmd
}

func ledgerCmd() *cobra.Command {
	led := &cobra.Command{
		Use:   "ledger",
		Short: "Custody ledger operations",
		Long:  "The ledger holds escrowed value. Custody must always equal the locked total per asset; 'bl ledger conservation' verifies it.",
	}
	led.AddCommand(ledgerBalancesCmd())
	led.AddCommand(ledgerConservationCmd())
	led.AddCommand(ledgerPauseCmd())
	led.AddCommand(ledgerMintCmd())
	led.AddCommand(ledgerFeesCmd())
	led.AddCommand(ledgerEmergencyCmd())
	return led
}

func ledgerBalancesCmd() *cobra.Command {
	var f repo.BalanceFilters
	cmd := &cobra.Command{
		Use:   "balances",
		Short: "List custody balances",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				items, err := e.Repo.ListBalances(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Asset", "Purpose", "Ref", "Amount"})
				for _, b := range items {
					tw.AppendRow(table.Row{b.Asset, b.Purpose, b.Ref, b.Amount})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Asset, "asset", "", "asset filter")
	cmd.Flags().StringVar(&f.Purpose, "purpose", "", "purpose filter")
	return cmd
}

func ledgerConservationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conservation <asset>",
		Short: "Verify custody equals the locked total",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				custody, locked, err := e.VerifyConservation(ctx, args[0])
				if err != nil {
					return err
				}
				out := map[string]any{
					"asset":   args[0],
					"custody": custody,
					"locked":  locked,
					"intact":  custody == locked,
				}
				if viper.GetBool("json") {
					return printJSON(out)
				}
				if custody == locked {
					fmt.Printf("%s conservation OK (custody %d == locked %d)\n", args[0], custody, locked)
				} else {
					fmt.Printf("%s conservation BROKEN (custody %d != locked %d)\n", args[0], custody, locked)
				}
				return nil
			})
		},
	}
	return cmd
}

func ledgerPauseCmd() *cobra.Command {
	var resume bool
	cmd := &cobra.Command{
		Use:   "pause",
		Short: "Engage or release the emergency breaker (admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				if err := e.SetPaused(ctx, viper.GetString("actor-id"), !resume); err != nil {
					return err
				}
				return printJSONOrTable(map[string]bool{"paused": !resume})
			})
		},
	}
	cmd.Flags().BoolVar(&resume, "resume", false, "release the breaker instead of engaging it")
	return cmd
}

func ledgerMintCmd() *cobra.Command {
	var recipient, asset string
	var amount int64
	cmd := &cobra.Command{
		Use:   "mint",
		Short: "Mint wallet funds (admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				return e.Mint(ctx, viper.GetString("actor-id"), recipient, asset, amount)
			})
		},
	}
	cmd.Flags().StringVar(&recipient, "recipient", "", "recipient actor")
	cmd.Flags().StringVar(&asset, "asset", "CRD", "asset code")
	cmd.Flags().Int64Var(&amount, "amount", 0, "amount to mint")
	_ = cmd.MarkFlagRequired("recipient")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func ledgerFeesCmd() *cobra.Command {
	var recipient, asset string
	var amount int64
	cmd := &cobra.Command{
		Use:   "fees-withdraw",
		Short: "Withdraw platform fees (admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				return e.WithdrawPlatformFees(ctx, viper.GetString("actor-id"), asset, recipient, amount)
			})
		},
	}
	cmd.Flags().StringVar(&recipient, "recipient", "", "recipient actor")
	cmd.Flags().StringVar(&asset, "asset", "CRD", "asset code")
	cmd.Flags().Int64Var(&amount, "amount", 0, "amount to withdraw")
	_ = cmd.MarkFlagRequired("recipient")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func ledgerEmergencyCmd() *cobra.Command {
	var recipient, asset string
	var amount int64
	cmd := &cobra.Command{
		Use:   "emergency-withdraw",
		Short: "Extract custody value during an incident (admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				return e.EmergencyWithdraw(ctx, viper.GetString("actor-id"), asset, recipient, amount)
			})
		},
	}
	cmd.Flags().StringVar(&recipient, "recipient", "", "recipient actor")
	cmd.Flags().StringVar(&asset, "asset", "CRD", "asset code")
	cmd.Flags().Int64Var(&amount, "amount", 0, "amount to extract")
	_ = cmd.MarkFlagRequired("recipient")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func registryCmd() *cobra.Command {
	reg := &cobra.Command{
		Use:   "registry",
		Short: "Inspect allowed guards, strategies and assets",
	}
	reg.AddCommand(registryShowCmd())
	reg.AddCommand(registrySetCmd())
	reg.AddCommand(registryCallerCmd())
	return reg
}

func registryShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the policy registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				return printJSONOrTable(map[string]any{
					"guards":              e.Registry.ListGuards(),
					"adoption_strategies": e.Registry.ListAdoptionStrategies(),
					"reward_strategies":   e.Registry.ListRewardStrategies(),
					"assets":              e.Registry.ListAssets(),
				})
			})
		},
	}
	return cmd
}

func registrySetCmd() *cobra.Command {
	var kind, name string
	var deny bool
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Allow or deny a guard, strategy or asset (admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				if err := e.SetRegistryEntry(ctx, viper.GetString("actor-id"), kind, name, !deny); err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{
					"guards":              e.Registry.ListGuards(),
					"adoption_strategies": e.Registry.ListAdoptionStrategies(),
					"reward_strategies":   e.Registry.ListRewardStrategies(),
					"assets":              e.Registry.ListAssets(),
				})
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "entry kind (guard, adoption_strategy, reward_strategy, asset)")
	cmd.Flags().StringVar(&name, "name", "", "entry name")
	cmd.Flags().BoolVar(&deny, "deny", false, "remove the entry instead of allowing it")
	_ = cmd.MarkFlagRequired("kind")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func registryCallerCmd() *cobra.Command {
	var component, caller string
	var deny bool
	cmd := &cobra.Command{
		Use:   "set-caller",
		Short: "Rewire a component's caller allowlist (admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				if err := e.SetAuthorizedCaller(ctx, viper.GetString("actor-id"), component, engine.Caller(caller), !deny); err != nil {
					return err
				}
				return printJSONOrTable(map[string][]string{component: e.AuthorizedCallers(component)})
			})
		},
	}
	cmd.Flags().StringVar(&component, "component", "", "component (ledger, reputation, tasks, submissions)")
	cmd.Flags().StringVar(&caller, "caller", "", "caller token")
	cmd.Flags().BoolVar(&deny, "deny", false, "remove the caller instead of adding it")
	_ = cmd.MarkFlagRequired("component")
	_ = cmd.MarkFlagRequired("caller")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect workspace config",
		Long:  "Config is the rulebook (bountyline.yml): reputation thresholds and penalties, reward splits, arbitration fees, and the policy registry.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	cfg.AddCommand(configInitCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				return printJSONOrTable(e.Config)
			})
		},
	}
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate workspace config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err == nil {
				err = cfg.Validate()
			}
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
	return cmd
}

func configInitCmd() *cobra.Command {
	var marketplaceID string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default bountyline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(marketplaceID)), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&marketplaceID, "id", "bountyline", "marketplace id")
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The audit trail of everything that happened: custody moves, reputation changes, task and submission transitions, arbitration outcomes.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var f repo.EventFilters
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				events, err := e.Repo.LatestEvents(ctx, f)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&f.Limit, "n", 20, "number of events")
	cmd.Flags().StringVar(&f.Type, "type", "", "event type filter")
	cmd.Flags().StringVar(&f.EntityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&f.EntityID, "entity-id", "", "entity id")
	return cmd
}

func apikeyCmd() *cobra.Command {
	key := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys for the HTTP server",
	}
	key.AddCommand(apikeyCreateCmd())
	key.AddCommand(apikeyListCmd())
	key.AddCommand(apikeyDeleteCmd())
	return key
}

func apikeyCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key for the acting actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				raw := uuid.NewString()
				key := domain.APIKey{
					ID:      uuid.NewString(),
					ActorID: viper.GetString("actor-id"),
					Name:    name,
					KeyHash: repo.HashAPIKey(raw),
				}
				if err := r.InsertAPIKey(ctx, nil, key); err != nil {
					return err
				}
				// The raw key is shown exactly once.
				return printJSONOrTable(map[string]string{
					"id":   key.ID,
					"name": key.Name,
					"key":  raw,
				})
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys for the acting actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListAPIKeys(ctx, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				for i := range items {
					items[i].KeyHash = ""
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func apikeyDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowLegacy bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg, err := config.LoadOptional(workspace)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			authCfg := server.AuthConfig{
				JWTSecret:              os.Getenv("BOUNTYLINE_JWT_SECRET"),
				AllowLegacyActorHeader: allowLegacy,
			}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("BOUNTYLINE_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Bountyline API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&allowLegacy, "allow-legacy-actor-header", false, "accept unauthenticated X-Actor-Id (dev only)")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, *engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	return fn(ctx, e)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
