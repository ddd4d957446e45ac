package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/congo-pay/card_issuing/internal/apiclient"
)

var Version = "dev"

type options struct {
	apiURL     string
	apiKey     string
	authHeader string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	rootCmd := &cobra.Command{
		Use:           "issuerctl",
		Short:         "Operate the card issuing ledger",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.apiURL, "api-url", envOr("ISSUER_API_URL", "http://localhost:8080/api/v1"), "Base URL of the issuing API")
	flags.StringVar(&opts.apiKey, "api-key", os.Getenv("ISSUER_API_KEY"), "API consumer key")
	flags.StringVar(&opts.authHeader, "auth-header", envOr("ISSUER_AUTH_HEADER", "X-Api-Key"), "Header carrying the API key")

	rootCmd.AddCommand(clearCmd(opts))
	rootCmd.AddCommand(loadMoneyCmd(opts))
	rootCmd.AddCommand(balanceCmd(opts))
	return rootCmd
}

func (o *options) client() *apiclient.Client {
	return apiclient.New(o.apiURL, o.authHeader, o.apiKey)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
