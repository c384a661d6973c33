package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/acme/callbridge/internal/config"
	"github.com/acme/callbridge/internal/telephony/rest"
	"github.com/acme/callbridge/pkg/calls"
)

type rootOptions struct {
	configPath string
	baseURL    string
}

type callOutput struct {
	SID      string       `json:"sid"`
	From     string       `json:"from"`
	To       string       `json:"to"`
	Status   calls.Status `json:"status"`
	Terminal bool         `json:"terminal"`
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd(os.Stdout).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "callctl:", err)
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "callctl",
		Short:         "Place and inspect outbound calls directly against the telephony provider",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", os.Getenv("CONFIG_FILE"), "path to configuration file (defaults and CALLBRIDGE_* env when empty)")
	root.PersistentFlags().StringVar(&opts.baseURL, "base-url", "", "override the provider API root")

	root.AddCommand(newCreateCmd(opts, out), newGetCmd(opts, out))
	return root
}

func newCreateCmd(opts *rootOptions, out io.Writer) *cobra.Command {
	var from, to, twimlURL, twiml string

	cmd := &cobra.Command{
		Use:     "create",
		Short:   "Place an outbound call",
		Example: "  callctl create --from +15550001111 --to +15550002222 --url https://example.com/twiml",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}

			outbound := calls.NewOutboundCall(from, to, twimlURL)
			if twiml != "" {
				outbound = calls.NewOutboundCallWithTwiML(from, to, twiml)
			}
			call, err := client.Create(cmd.Context(), outbound)
			if err != nil {
				return err
			}
			return writeCall(out, call)
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "caller number")
	cmd.Flags().StringVar(&to, "to", "", "callee number")
	cmd.Flags().StringVar(&twimlURL, "url", "", "URL the provider fetches call instructions from")
	cmd.Flags().StringVar(&twiml, "twiml", "", "inline call instructions")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	cmd.MarkFlagsMutuallyExclusive("url", "twiml")
	cmd.MarkFlagsOneRequired("url", "twiml")
	return cmd
}

func newGetCmd(opts *rootOptions, out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "get SID",
		Short: "Fetch the current state of a call",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			call, err := client.Retrieve(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeCall(out, call)
		},
	}
}

func (o *rootOptions) client() (*calls.Client, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	transport, err := rest.New(cfg.Provider, rest.WithBaseURL(o.baseURL))
	if err != nil {
		return nil, err
	}
	return calls.NewClient(transport), nil
}

func writeCall(out io.Writer, call calls.Call) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(callOutput{
		SID:      call.SID,
		From:     call.From,
		To:       call.To,
		Status:   call.Status,
		Terminal: call.Status.Terminal(),
	})
}
