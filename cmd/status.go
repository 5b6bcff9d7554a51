package cmd

import (
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/AvaProtocol/hybrid-compute/pkg/feeledger"
	"github.com/AvaProtocol/hybrid-compute/storage"
)

const maxListedSessions = 10

var (
	showEntries bool
	lookupOp    string
	pruneKeep   int

	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Display the recorded fee ledger",
		Long:  `Display the sessions and receipts the fee ledger persisted under db_path`,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, err := openLedgerDB()
			if err != nil {
				return err
			}
			defer db.Close()

			w := cmd.OutOrStdout()
			if lookupOp != "" {
				return writeOpEntry(w, db, lookupOp)
			}
			if cmd.Flags().Changed("prune") {
				if err := pruneLedger(w, db, pruneKeep); err != nil {
					return err
				}
			}
			return writeLedgerStatus(w, db, showEntries)
		},
	}
)

func writeLedgerStatus(w io.Writer, db storage.Storage, withEntries bool) error {
	fmt.Fprintf(w, "Fee ledger at %s\n\n", db.DbPath())

	receipts, err := feeledger.RecordedReceipts(db)
	if err != nil {
		return err
	}
	sessions, err := feeledger.Sessions(db)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Recorded receipts: %d\n", receipts)
	fmt.Fprintf(w, "Sessions: %d\n", len(sessions))

	// most recent first
	for i := len(sessions) - 1; i >= 0; i-- {
		shown := len(sessions) - 1 - i
		if shown >= maxListedSessions {
			fmt.Fprintf(w, "   ... and %d older sessions\n", i+1)
			break
		}

		s := sessions[i]
		fmt.Fprintf(w, "   %s  started %s  receipts %d\n", s.ID, s.StartedAt.Format("2006-01-02 15:04:05"), s.Entries)
		if !withEntries {
			continue
		}

		entries, err := feeledger.LoadEntries(db, s.ID)
		if err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Fprintf(w, "      op %s success=%t l2 %s l1 %s unused gas %s\n",
				e.OpHash.Hex(), e.Success, e.L2Fee, e.L1Fee, e.UnusedGas())
		}
	}
	return nil
}

func writeOpEntry(w io.Writer, db storage.Storage, op string) error {
	if len(common.FromHex(op)) != common.HashLength {
		return fmt.Errorf("invalid operation hash %q", op)
	}

	e, err := feeledger.LookupEntry(db, common.HexToHash(op))
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "op %s\n", e.OpHash.Hex())
	fmt.Fprintf(w, "   session %s  recorded %s\n", e.Session, e.RecordedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "   tx %s success=%t\n", e.TxHash.Hex(), e.Success)
	fmt.Fprintf(w, "   gas used %s at %s wei, unused %s\n", e.GasUsed, e.EffectiveGasPrice, e.UnusedGas())
	fmt.Fprintf(w, "   l2 %s l1 %s\n", e.L2Fee, e.L1Fee)
	return nil
}

func pruneLedger(w io.Writer, db storage.Storage, keep int) error {
	pruned, err := feeledger.Prune(db, keep)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Pruned %d sessions\n", len(pruned))
	return nil
}

func init() {
	statusCmd.Flags().BoolVar(&showEntries, "entries", false, "list the entries of every shown session")
	statusCmd.Flags().StringVar(&lookupOp, "op", "", "show the entry recorded for one user operation hash")
	statusCmd.Flags().IntVar(&pruneKeep, "prune", 0, "delete all but the newest N sessions before listing")
	rootCmd.AddCommand(statusCmd)
}
