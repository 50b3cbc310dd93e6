// Command pandos boots the Nucleus and drives one of its test programs
// (internal/testprogs) to completion, printing its terminal output. The
// booted guest OS itself has no shell (spec.md Non-goals); this is the
// engineering harness around it, standing in for the physical board the
// teacher's image would otherwise be flashed onto.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"pandos/internal/config"
	"pandos/internal/nucleus"
	"pandos/internal/testprogs"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// bootFunc boots a fresh Nucleus from the command's shared flags.
type bootFunc func() (*nucleus.Nucleus, error)

func newRootCmd() *cobra.Command {
	var configPath string
	var verbose bool

	root := &cobra.Command{
		Use:           "pandos",
		Short:         "Boot the PandOS Nucleus and run one of its test programs",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "YAML boot configuration (built-in defaults if omitted)")
	root.PersistentFlags().BoolVar(&verbose, "verbose", false, "lower the log level to debug (the Nucleus logs only its boot line and deadlock errors)")

	boot := func() (*nucleus.Nucleus, error) {
		cfg := config.Default()
		if configPath != "" {
			loaded, err := config.Load(configPath)
			if err != nil {
				return nil, err
			}
			cfg = loaded
		}
		log := logrus.New()
		log.SetLevel(logrus.WarnLevel)
		if verbose {
			log.SetLevel(logrus.DebugLevel)
		}
		return nucleus.New(cfg, nucleus.NewBus(), log), nil
	}

	root.AddCommand(
		addTwoCmd(boot),
		flashCmd(boot),
		concatCmd(boot),
		sortCmd(boot),
		delayCmd(boot),
		fairnessCmd(boot),
	)
	return root
}

func addTwoCmd(boot bootFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "addtwo [a] [b]",
		Short: "Prompt for two integers over the terminal and print their sum",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := boot()
			if err != nil {
				return err
			}
			sum, transcript := testprogs.AddTwoNumbers(n, args[0]+"\n"+args[1]+"\n")
			fmt.Fprint(cmd.OutOrStdout(), transcript)
			fmt.Fprintf(cmd.OutOrStdout(), "sum = %d\n", sum)
			return nil
		},
	}
}

func flashCmd(boot bootFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "flash",
		Short: "Round-trip two messages through a flash device's DMA buffer",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := boot()
			if err != nil {
				return err
			}
			n.Bus.AttachFlash(1, nucleus.NewFlash(n.Cfg.Devices.FlashBlockCount))
			block8, block10, err := testprogs.FlashRoundTrip(n)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "block 8: %q\nblock 10: %q\n", block8, block10)
			return nil
		},
	}
}

func concatCmd(boot bootFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "concat [first] [second]",
		Short: "Read two lines over the terminal and print their concatenation",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := boot()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), testprogs.StringConcat(n, args[0], args[1]))
			return nil
		},
	}
}

func sortCmd(boot bootFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "sort [ints...]",
		Short: "Sort up to 20 whitespace-separated integers ascending",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := boot()
			if err != nil {
				return err
			}
			sorted := testprogs.SortInts(n, strings.Join(args, " "))
			fmt.Fprintln(cmd.OutOrStdout(), sorted)
			return nil
		},
	}
}

func delayCmd(boot bootFunc) *cobra.Command {
	var seconds int
	cmd := &cobra.Command{
		Use:   "delay",
		Short: "Sleep for a number of simulated seconds, then print a confirmation",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := boot()
			if err != nil {
				return err
			}
			before, after := testprogs.SleepThenPrint(n, int32(seconds))
			fmt.Fprintf(cmd.OutOrStdout(), "slept from t=%d to t=%d (simulated micros)\n", before, after)
			return nil
		},
	}
	cmd.Flags().IntVar(&seconds, "seconds", 1, "how many simulated seconds to sleep")
	return cmd
}

func fairnessCmd(boot bootFunc) *cobra.Command {
	var rounds int
	cmd := &cobra.Command{
		Use:   "fairness",
		Short: "Run two CPU-bound processes under round-robin preemption and compare charged CPU time",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := boot()
			if err != nil {
				return err
			}
			cpuA, cpuB := testprogs.PreemptionFairness(n, rounds)
			fmt.Fprintf(cmd.OutOrStdout(), "process A: %d micros, process B: %d micros\n", cpuA, cpuB)
			return nil
		},
	}
	cmd.Flags().IntVar(&rounds, "rounds", 20, "number of round-robin quantum rounds to run")
	return cmd
}
