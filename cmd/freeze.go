package main

import (
	"fmt"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/moviesync/internal/store"
)

var freezeUnfreeze bool

var freezeCmd = &cobra.Command{
	Use:   "freeze <tmdb_id>...",
	Short: "Freeze or unfreeze movies by TMDB id",
	Long:  "Marks movies frozen so refresh cycles skip them. With --unfreeze, clears the flag; this is the only way a frozen movie returns to the refresh cycle.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}

		g, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer g.Close() //nolint:errcheck

		n, err := store.SetFrozen(cmd.Context(), g, ids, !freezeUnfreeze)
		if err != nil {
			return eris.Wrap(err, "freeze")
		}

		zap.L().Info("frozen flag updated",
			zap.Bool("frozen", !freezeUnfreeze),
			zap.Int("requested", len(ids)),
			zap.Int64("updated", n),
		)
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "updated %d of %d movies\n", n, len(ids))
		return nil
	},
}

// parseIDs converts TMDB id arguments to integers.
func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, a := range args {
		id, err := strconv.ParseInt(a, 10, 64)
		if err != nil || id <= 0 {
			return nil, eris.Errorf("invalid tmdb id %q", a)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func init() {
	freezeCmd.Flags().BoolVar(&freezeUnfreeze, "unfreeze", false, "clear the frozen flag instead of setting it")
	rootCmd.AddCommand(freezeCmd)
}
