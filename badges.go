package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"skidoodle/biolink/internal/badges"
)

func badgesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "badges <flags> [premium]",
		Short: "Decode public user flags and premium type into badge names",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid flags %q: %w", args[0], err)
			}
			premium := badges.PremiumNone
			if len(args) == 2 {
				if premium, err = strconv.Atoi(args[1]); err != nil {
					return fmt.Errorf("invalid premium type %q: %w", args[1], err)
				}
			}
			for _, name := range badges.Decode(flags, premium) {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}
