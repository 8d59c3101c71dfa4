package main

import (
	"fmt"
	"math/big"
	"mime"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/TemirB/musicnft/internal/application/service"
	"github.com/TemirB/musicnft/internal/orchestrator"
	"github.com/TemirB/musicnft/internal/pinning"
)

type uploadFlags struct {
	file        string
	name        string
	artist      string
	description string
}

func (f *uploadFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.file, "file", "", "audio file to upload")
	cmd.Flags().StringVar(&f.name, "name", "", "song name")
	cmd.Flags().StringVar(&f.artist, "artist", "", "artist")
	cmd.Flags().StringVar(&f.description, "description", "", "description")
	_ = cmd.MarkFlagRequired("file")
}

func (a *app) upload(cmd *cobra.Command, f uploadFlags) (service.UploadResult, error) {
	file, err := os.Open(f.file)
	if err != nil {
		return service.UploadResult{}, err
	}
	defer file.Close()

	ct := mime.TypeByExtension(filepath.Ext(f.file))
	if ct == "" {
		ct = "application/octet-stream"
	}
	return a.meta.Upload(cmd.Context(), service.UploadRequest{
		File:        &pinning.File{Name: filepath.Base(f.file), ContentType: ct, Body: file},
		SongName:    f.name,
		Artist:      f.artist,
		Description: f.description,
	})
}

func newUploadCmd(a *app) *cobra.Command {
	var f uploadFlags
	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Pin an audio file and its metadata through the proxy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := a.upload(cmd, f)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	f.register(cmd)
	return cmd
}

func newMintCmd(a *app) *cobra.Command {
	var (
		f     uploadFlags
		price string
	)
	cmd := &cobra.Command{
		Use:   "mint",
		Short: "Upload, mint and list a track",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// reject a bad price before anything is pinned
			if _, err := orchestrator.ParsePrice(price, a.session.Decimals); err != nil {
				return err
			}
			up, err := a.upload(cmd, f)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "+ upload: %s\n", up.URI)

			res, err := a.orch.MintAndList(cmd.Context(), up.URI, price)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	f.register(cmd)
	cmd.Flags().StringVar(&price, "price", "", "listing price in whole tokens, e.g. 5.50")
	_ = cmd.MarkFlagRequired("price")
	return cmd
}

func parseTokenID(s string) (*big.Int, error) {
	id, ok := new(big.Int).SetString(s, 10)
	if !ok || id.Sign() < 0 {
		return nil, fmt.Errorf("invalid token id %q", s)
	}
	return id, nil
}

func newListCmd(a *app) *cobra.Command {
	var price string
	cmd := &cobra.Command{
		Use:   "list <tokenId>",
		Short: "List an owned token for sale",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTokenID(args[0])
			if err != nil {
				return err
			}
			res, err := a.orch.ListExisting(cmd.Context(), id, price)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&price, "price", "", "listing price in whole tokens")
	_ = cmd.MarkFlagRequired("price")
	return cmd
}

func newBuyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "buy <tokenId>",
		Short: "Buy a listed token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTokenID(args[0])
			if err != nil {
				return err
			}
			res, err := a.orch.Buy(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
}

func newListingsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "listings",
		Short: "Show active marketplace listings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			entries, err := a.orch.Listings(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), entries)
		},
	}
}

func newCollectionCmd(a *app) *cobra.Command {
	var account string
	cmd := &cobra.Command{
		Use:   "collection",
		Short: "Show tokens owned or listed by an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if account == "" {
				account = a.session.Account
			}
			entries, err := a.orch.Collection(cmd.Context(), account)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), entries)
		},
	}
	cmd.Flags().StringVar(&account, "account", "", "account to inspect (default: configured account)")
	return cmd
}

func newBalanceCmd(a *app) *cobra.Command {
	var account string
	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Show the payment token balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			bal, err := a.orch.Balance(cmd.Context(), account)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), bal)
			return nil
		},
	}
	cmd.Flags().StringVar(&account, "account", "", "account to inspect (default: configured account)")
	return cmd
}
