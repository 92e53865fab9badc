package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/facematch"
	"github.com/spf13/cobra"
)

var identitiesCmd = &cobra.Command{
	Use:   "identities",
	Short: "Inspect and manage enrolled identities",
}

var identitiesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List enrolled identities",
	Args:  cobra.NoArgs,
	RunE:  runIdentitiesList,
}

var identitiesDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete an identity and all of its samples",
	Args:  cobra.ExactArgs(1),
	RunE:  runIdentitiesDelete,
}

var identitiesCountCmd = &cobra.Command{
	Use:   "count",
	Short: "Show the number of identities and samples",
	Args:  cobra.NoArgs,
	RunE:  runIdentitiesCount,
}

func init() {
	rootCmd.AddCommand(identitiesCmd)
	identitiesCmd.AddCommand(identitiesListCmd, identitiesDeleteCmd, identitiesCountCmd)

	identitiesListCmd.Flags().String("query", "", "Only names containing this text (case and accent insensitive)")
	identitiesListCmd.Flags().Bool("json", false, "Output as JSON")
}

// withStore loads the configuration and store, runs fn and closes the store.
func withStore(fn func(ctx context.Context, cfg *config.Config, store storeHandle) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	ctx := context.Background()
	store, err := openStore(ctx, cfg, newLogger(false))
	if err != nil {
		return err
	}
	defer closeStore(store)
	return fn(ctx, cfg, store)
}

// storeHandle is what the identity commands need from the store.
type storeHandle interface {
	facematch.IdentityWriter
	Identities() []facematch.IdentitySummary
	Len() int
}

func runIdentitiesList(cmd *cobra.Command, args []string) error {
	query := mustGetString(cmd, "query")
	jsonOutput := mustGetBool(cmd, "json")

	return withStore(func(ctx context.Context, cfg *config.Config, store storeHandle) error {
		var identities []facematch.IdentitySummary
		for _, id := range store.Identities() {
			if query == "" || facematch.MatchesQuery(id.Name, query) {
				identities = append(identities, id)
			}
		}

		if jsonOutput {
			type entry struct {
				Name       string `json:"name"`
				Samples    int    `json:"samples"`
				EnrolledAt string `json:"enrolled_at"`
			}
			out := make([]entry, len(identities))
			for i, id := range identities {
				out[i] = entry{Name: id.Name, Samples: id.Samples, EnrolledAt: id.EnrolledAt.Format(time.RFC3339)}
			}
			return json.NewEncoder(os.Stdout).Encode(out)
		}

		if len(identities) == 0 {
			fmt.Println("No identities enrolled")
			return nil
		}
		fmt.Printf("%-30s %8s  %s\n", "NAME", "SAMPLES", "ENROLLED")
		for _, id := range identities {
			fmt.Printf("%-30s %8d  %s\n", id.Name, id.Samples, id.EnrolledAt.Local().Format("2006-01-02 15:04"))
		}
		return nil
	})
}

func runIdentitiesDelete(cmd *cobra.Command, args []string) error {
	return withStore(func(ctx context.Context, cfg *config.Config, store storeHandle) error {
		if err := facematch.NewEnroller(store, nil).Remove(ctx, args[0]); err != nil {
			return err
		}
		canonical, _ := facematch.CanonicalName(args[0])
		fmt.Printf("Deleted %s\n", canonical)
		return nil
	})
}

func runIdentitiesCount(cmd *cobra.Command, args []string) error {
	return withStore(func(ctx context.Context, cfg *config.Config, store storeHandle) error {
		fmt.Printf("Identities: %d\n", len(store.Identities()))
		fmt.Printf("Samples: %d\n", store.Len())
		fmt.Printf("Dimension: %d\n", store.Dim())
		fmt.Printf("Backend: %s\n", cfg.Store.Backend)
		return nil
	})
}
