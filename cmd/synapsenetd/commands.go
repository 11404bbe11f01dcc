package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/synapsenet/node/internal/crypto"
	"github.com/synapsenet/node/internal/ingest"
	"github.com/synapsenet/node/internal/model"
	"github.com/synapsenet/node/internal/snapshot"
)

func newInitCmd(configFile, dataDir *string, log *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize a node's data directory and signing key",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfigOrDefault(*configFile, *dataDir)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(cfg.NodeDataDir, 0700); err != nil {
				return model.New(model.KindStorage, "node.data_dir", err)
			}
			signer, err := crypto.LoadOrCreateFileKeyProvider(cfg.NodeDataDir)
			if err != nil {
				return model.New(model.KindSignature, "node.data_dir", err)
			}
			n, err := openNode(cfg, log)
			if err != nil {
				return err
			}
			defer n.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "initialized node at %s\npublic key: %x\n", cfg.NodeDataDir, signer.PublicKey())
			return nil
		},
	}
}

func newAddCmd(configFile, dataDir *string, log *slog.Logger) *cobra.Command {
	var tags []string
	var mime, lang, title, summary string

	cmd := &cobra.Command{
		Use:   "add TEXT",
		Short: "Embed, sign, and commit a grain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfigOrDefault(*configFile, *dataDir)
			if err != nil {
				return err
			}
			n, err := openNode(cfg, log)
			if err != nil {
				return err
			}
			defer n.Close()

			req := ingest.Request{
				Text:      args[0],
				AuthorPK:  n.signer.PublicKey(),
				CreatedMs: time.Now().UnixMilli(),
				Tags:      tags,
				MIME:      mime,
				Lang:      lang,
				Title:     title,
				Summary:   summary,
			}
			g, err := n.pipe(cmd.Context(), req).Unwrap()
			if err != nil {
				return err
			}
			mGrainsAdded.Inc()
			fmt.Fprintf(cmd.OutOrStdout(), "%x\n", g.ID)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&tags, "tags", nil, "comma-separated tags")
	cmd.Flags().StringVar(&mime, "mime", "text/plain", "MIME type")
	cmd.Flags().StringVar(&lang, "lang", "en", "language code")
	cmd.Flags().StringVar(&title, "title", "", "optional title")
	cmd.Flags().StringVar(&summary, "summary", "", "optional summary")
	return cmd
}

func newQueryCmd(configFile, dataDir *string, log *slog.Logger) *cobra.Command {
	var k int

	cmd := &cobra.Command{
		Use:   "query TEXT",
		Short: "Embed text and return the top-k nearest grains, local and networked",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfigOrDefault(*configFile, *dataDir)
			if err != nil {
				return err
			}
			n, err := openNode(cfg, log)
			if err != nil {
				return err
			}
			defer n.Close()

			start := time.Now()
			results, err := n.coord.Query(cmd.Context(), args[0], k)
			mQueryDuration.Since(start)
			if err != nil {
				return model.New(model.KindInvalidInput, "query", err)
			}
			mQueriesTotal.Inc()
			for _, r := range results {
				fmt.Fprintf(cmd.OutOrStdout(), "%x\t%.4f\t%s\n", r.GrainID, r.CosSim, r.Source)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&k, "k", "k", 10, "number of results to return")
	return cmd
}

func newPeersCmd(configFile, dataDir *string, log *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "peers",
		Short: "List known peers and their reputation",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfigOrDefault(*configFile, *dataDir)
			if err != nil {
				return err
			}
			n, err := openNode(cfg, log)
			if err != nil {
				return err
			}
			defer n.Close()

			peers, err := n.store.ListPeers()
			if err != nil {
				return model.New(model.KindStorage, "peers", err)
			}
			mPeersKnown.Set(int64(len(peers)))
			for _, p := range peers {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\treputation=%d\trecv=%d\tsent=%d\taddrs=%s\n",
					p.PeerID, p.Reputation, p.GrainsRecv, p.GrainsSent, strings.Join(p.Addrs, ","))
			}
			return nil
		},
	}
}

func newStatsCmd(configFile, dataDir *string, log *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print local node and ledger statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfigOrDefault(*configFile, *dataDir)
			if err != nil {
				return err
			}
			n, err := openNode(cfg, log)
			if err != nil {
				return err
			}
			defer n.Close()

			balance, err := n.store.Balance(n.signer.PublicKey())
			if err != nil {
				return model.New(model.KindStorage, "stats.balance", err)
			}
			supply, err := n.store.TotalSupply()
			if err != nil {
				return model.New(model.KindStorage, "stats.total_supply", err)
			}
			peers, err := n.store.ListPeers()
			if err != nil {
				return model.New(model.KindStorage, "stats.peers", err)
			}
			mPeersKnown.Set(int64(len(peers)))
			fmt.Fprintf(cmd.OutOrStdout(), "grains_indexed: %d\nbalance: %d\ntotal_supply: %d\npeers_known: %d\npublic_key: %x\n",
				n.idx.Len(), balance, supply, len(peers), n.signer.PublicKey())
			return nil
		},
	}
}

func newExportCmd(configFile, dataDir *string, log *slog.Logger) *cobra.Command {
	var outDir string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Stream every local grain to a snapshot file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfigOrDefault(*configFile, *dataDir)
			if err != nil {
				return err
			}
			n, err := openNode(cfg, log)
			if err != nil {
				return err
			}
			defer n.Close()

			if outDir == "" {
				return model.New(model.KindInvalidInput, "-o", fmt.Errorf("output directory required"))
			}
			if err := os.MkdirAll(outDir, 0700); err != nil {
				return model.New(model.KindStorage, "-o", err)
			}
			path := outDir + "/grains.snapshot"
			f, err := os.Create(path)
			if err != nil {
				return model.New(model.KindStorage, path, err)
			}
			defer f.Close()

			count, err := snapshot.Export(n.store, f)
			if err != nil {
				return model.New(model.KindStorage, path, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d grains to %s\n", count, path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outDir, "output", "o", "", "output directory")
	return cmd
}

func newImportCmd(configFile, dataDir *string, log *slog.Logger) *cobra.Command {
	var inDir string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Load grains from a snapshot file, rejecting invalid rows without aborting",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfigOrDefault(*configFile, *dataDir)
			if err != nil {
				return err
			}
			n, err := openNode(cfg, log)
			if err != nil {
				return err
			}
			defer n.Close()

			if inDir == "" {
				return model.New(model.KindInvalidInput, "-i", fmt.Errorf("input directory required"))
			}
			path := inDir + "/grains.snapshot"
			f, err := os.Open(path)
			if err != nil {
				return model.New(model.KindStorage, path, err)
			}
			defer f.Close()

			res, err := snapshot.Import(f, cfg.EmbeddingDim, n.store, n.mirror)
			if err != nil {
				return model.New(model.KindStorage, path, err)
			}
			if res.Rejected > 0 {
				mGrainsRejected("import").Add(int64(res.Rejected))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d grains, rejected %d\n", res.Accepted, res.Rejected)
			return nil
		},
	}
	cmd.Flags().StringVarP(&inDir, "input", "i", "", "input directory")
	return cmd
}
