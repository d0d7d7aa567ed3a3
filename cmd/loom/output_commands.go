package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"loom/internal/api"
	"loom/internal/ipc"
)

func newCreateCommand(ctx *commandContext) *cobra.Command {
	var req api.CreateOutputRequest
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "create <title>",
		Short: "Register a new output and its stage gates",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Title = strings.TrimSpace(args[0])
			if req.Title == "" {
				return errors.New("title is required")
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.OutputCreate(req)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, resp.Output)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created output %s (%s)\n", resp.Output.ID, resp.Output.Title)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&req.Language, "language", "", "Narration language")
	cmd.Flags().StringVar(&req.VoiceID, "voice", "", "Speech synthesis voice")
	cmd.Flags().Float64Var(&req.SpeechRate, "speech-rate", 0, "Narration speed multiplier")
	cmd.Flags().StringVar(&req.VisualStyle, "visual-style", "", "Image generation style")
	cmd.Flags().StringVar(&req.ScriptStyle, "script-style", "", "Script writing style")
	cmd.Flags().Int64Var(&req.Seed, "seed", 0, "Generation seed")
	cmd.Flags().StringVar(&req.MustInclude, "include", "", "Topics the script must cover")
	cmd.Flags().StringVar(&req.MustExclude, "exclude", "", "Topics the script must avoid")
	cmd.Flags().StringVar(&req.MonetizationPlanID, "plan", "", "Monetization plan identifier")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON instead of a table")
	return cmd
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var listStatuses []string
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List outputs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.OutputList(listStatuses)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, api.OutputListResponse{Outputs: resp.Outputs})
				}
				if len(resp.Outputs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No outputs")
					return nil
				}
				table := renderTable(
					[]string{"ID", "Title", "Status", "Created"},
					buildOutputListRows(resp.Outputs),
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&listStatuses, "status", "s", nil, "Filter by output status (repeatable)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON instead of a table")
	return cmd
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	var withCosts bool
	var withLog bool

	cmd := &cobra.Command{
		Use:   "show <output-id>",
		Short: "Show one output with its gates and scenes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.OutputDescribe(id)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, api.OutputDetailResponse{Output: resp.Output})
				}

				stdout := cmd.OutOrStdout()
				renderOutputDetail(stdout, resp.Output, shouldColorize(stdout))

				if withCosts {
					costs, err := client.Costs(id)
					if err != nil {
						return err
					}
					fmt.Fprintln(stdout)
					if len(costs.Costs) == 0 {
						fmt.Fprintln(stdout, "No recorded spend")
					} else {
						table := renderTable(
							[]string{"Stage", "Provider", "USD", "Detail"},
							buildCostRows(costs.Costs),
							[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
						)
						fmt.Fprintln(stdout, table)
					}
				}

				if withLog {
					execs, err := client.Executions(id, 20)
					if err != nil {
						return err
					}
					fmt.Fprintln(stdout)
					if len(execs.Entries) == 0 {
						fmt.Fprintln(stdout, "No pipeline log entries")
					} else {
						table := renderTable(
							[]string{"Step", "Status", "Message", "At"},
							buildExecutionRows(execs.Entries),
							[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
						)
						fmt.Fprintln(stdout, table)
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON instead of a table")
	cmd.Flags().BoolVar(&withCosts, "costs", false, "Include the spend ledger")
	cmd.Flags().BoolVar(&withLog, "log", false, "Include recent pipeline log entries")
	return cmd
}

func newDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <output-id>",
		Short: "Delete an output and its pipeline state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.OutputDelete(id)
				if err != nil {
					return err
				}
				if !resp.Deleted {
					return fmt.Errorf("output %s not found", id)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted output %s\n", id)
				return nil
			})
		},
	}
}
