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
	"go.uber.org/zap"

	"github.com/TemirB/musicnft/internal/chain"
	"github.com/TemirB/musicnft/internal/config"
	"github.com/TemirB/musicnft/internal/listingindex"
	"github.com/TemirB/musicnft/internal/metaclient"
	"github.com/TemirB/musicnft/internal/observability"
	"github.com/TemirB/musicnft/internal/orchestrator"
)

const (
	indexProbe = "probe"
	indexStore = "store"
)

type app struct {
	cfg     config.Client
	logger  *zap.Logger
	session *orchestrator.Session
	meta    *metaclient.Client
	orch    *orchestrator.Orchestrator

	index string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{}
	if err := newRootCmd(a).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:          "musicnft",
		Short:        "Mint, list and buy music NFTs",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&a.index, "index", indexProbe, "listing source: probe (chain) or store (proxy)")

	root.AddCommand(
		newUploadCmd(a),
		newMintCmd(a),
		newListCmd(a),
		newBuyCmd(a),
		newListingsCmd(a),
		newCollectionCmd(a),
		newBalanceCmd(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	a.cfg = config.LoadClient()

	logger, err := observability.NewLogger(a.cfg.LogLevel)
	if err != nil {
		return err
	}
	a.logger = logger
	a.meta = metaclient.New(a.cfg.BackendURL, logger)

	session, err := chain.Connect(a.cfg, logger)
	if err != nil {
		return err
	}
	a.session = session

	var index orchestrator.ListingIndex
	switch a.index {
	case indexProbe:
		index = listingindex.NewProbe(session.Market, a.cfg.Probe, logger)
	case indexStore:
		index = listingindex.NewStore(a.cfg.BackendURL)
	default:
		return fmt.Errorf("unknown --index %q, want %s or %s", a.index, indexProbe, indexStore)
	}

	a.orch = orchestrator.New(session, index, a.meta, logger)
	a.orch.OnProgress(progressPrinter(cmd.ErrOrStderr()))
	return nil
}

func progressPrinter(w io.Writer) orchestrator.ProgressFunc {
	return func(st orchestrator.Step) {
		if st.Skipped {
			fmt.Fprintf(w, "- %s: already done\n", st.Action)
			return
		}
		fmt.Fprintf(w, "+ %s: %s\n", st.Action, st.TxHash)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
