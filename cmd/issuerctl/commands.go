package main

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func clearCmd(opts *options) *cobra.Command {
	var window string
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear every pending presentment with the scheme",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			lines, err := opts.client().Clear(cmd.Context(), window)
			if err != nil {
				return err
			}
			for _, line := range lines {
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&window, "window", "w", "", "Settlement window key (generated when empty)")
	return cmd
}

func loadMoneyCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "load-money <cardholder...> <amount>",
		Short: "Load the same amount onto one or more cardholders",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cardholders, raw := args[:len(args)-1], args[len(args)-1]
			amount, err := decimal.NewFromString(raw)
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", raw, err)
			}
			if !amount.IsPositive() {
				return fmt.Errorf("amount must be positive, got %s", raw)
			}

			balances, err := opts.client().LoadMoney(cmd.Context(), amount, cardholders...)
			if err != nil {
				return err
			}
			names := make([]string, 0, len(balances))
			for name := range balances {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				b := balances[name]
				fmt.Fprintf(cmd.OutOrStdout(), "%s: available %s, ledger %s\n", name, b.Available, b.Ledger)
			}
			return nil
		},
	}
}

func balanceCmd(opts *options) *cobra.Command {
	var kind, at string
	cmd := &cobra.Command{
		Use:   "balance <card_id>",
		Short: "Show the balance of a card",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			balance, err := opts.client().Balance(cmd.Context(), args[0], kind, at)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), balance)
			return nil
		},
	}
	cmd.Flags().StringVarP(&kind, "kind", "k", "", "Balance kind: available (default) or ledger")
	cmd.Flags().StringVar(&at, "at", "", "Point in time as YYYY-MM-DDTHH:MM:SS (UTC)")
	return cmd
}
