package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"loom/internal/ipc"
	"loom/internal/stages"
)

func newStageCommand(ctx *commandContext) *cobra.Command {
	stageCmd := &cobra.Command{
		Use:   "stage",
		Short: "Drive stage gates through the review workflow",
	}

	stageCmd.AddCommand(newStageStartCommand(ctx))
	stageCmd.AddCommand(newStageApproveCommand(ctx))
	stageCmd.AddCommand(newStageRejectCommand(ctx))
	stageCmd.AddCommand(newStageRevertCommand(ctx))

	return stageCmd
}

func newStageStartCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "start <output-id> <stage>",
		Short: "Begin generation for a stage",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.StageStart(strings.TrimSpace(args[0]), strings.TrimSpace(args[1]))
				if err != nil {
					return err
				}
				if !resp.Accepted {
					fmt.Fprintln(cmd.OutOrStdout(), "Generation already in progress for this stage")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Started %s generation\n", args[1])
				return nil
			})
		},
	}
}

func newStageApproveCommand(ctx *commandContext) *cobra.Command {
	var feedback string

	cmd := &cobra.Command{
		Use:   "approve <output-id> <stage>",
		Short: "Approve a gate awaiting review",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.StageApprove(strings.TrimSpace(args[0]), strings.TrimSpace(args[1]), feedback)
				if err != nil {
					return err
				}
				if resp.Approved {
					fmt.Fprintf(cmd.OutOrStdout(), "Approved %s\n", args[1])
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&feedback, "feedback", "m", "", "Optional reviewer note")
	return cmd
}

func newStageRejectCommand(ctx *commandContext) *cobra.Command {
	var feedback string

	cmd := &cobra.Command{
		Use:   "reject <output-id> <stage>",
		Short: "Reject a gate and regenerate with feedback",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.StageReject(strings.TrimSpace(args[0]), strings.TrimSpace(args[1]), feedback)
				if err != nil {
					return err
				}
				if resp.Restarted {
					fmt.Fprintf(cmd.OutOrStdout(), "Rejected %s, regeneration started\n", args[1])
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "Rejected %s\n", args[1])
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&feedback, "feedback", "m", "", "Reviewer feedback passed to regeneration")
	return cmd
}

func newStageRevertCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "revert <output-id> <stage>",
		Short: "Roll approvals back to a stage for rework",
		Long: "Clears approved gates from the target stage onward so those stages " +
			"can be regenerated. Reverting to " + string(stages.StoryOutline) + " resets " +
			"the whole plan. Generated artifact files are kept on disk.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.StageRevert(strings.TrimSpace(args[0]), strings.TrimSpace(args[1]))
				if err != nil {
					return err
				}
				if len(resp.Reverted) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No approved gates at or after that stage; nothing to revert")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reverted %s\n", strings.Join(resp.Reverted, ", "))
				return nil
			})
		},
	}
}

func newCancelStaleCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel-stale <output-id>",
		Short: "Cancel a generation run stuck past the stale timeout",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected exactly one output id")
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.CancelStale(strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				if len(resp.Cancelled) == 0 {
					// The run can be stuck IN_PROGRESS with every gate already
					// settled; cancellation then resets the status alone.
					fmt.Fprintln(cmd.OutOrStdout(), "Cancelled stale run")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cancelled stale run (%s)\n", strings.Join(resp.Cancelled, ", "))
				return nil
			})
		},
	}
}
