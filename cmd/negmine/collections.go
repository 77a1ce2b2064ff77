package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	// collections command flags
	collYes bool
)

func init() {
	rootCmd.AddCommand(collectionsCmd)
	collectionsCmd.AddCommand(collectionsListCmd)
	collectionsCmd.AddCommand(collectionsInfoCmd)
	collectionsCmd.AddCommand(collectionsDropCmd)

	collectionsDropCmd.Flags().BoolVar(&collYes, "yes", false, "skip the confirmation prompt")
}

var collectionsCmd = &cobra.Command{
	Use:   "collections",
	Short: "Manage vector store collections",
	Long: `Manage the collections negmine leaves in the vector store.

Runs started with --keep-collection keep their passages indexed; these
commands inspect and clean them up.

Examples:
  # List collections
  negmine collections list

  # Show point count and dimension
  negmine collections info msmarco_dev

  # Drop a collection without prompting
  negmine collections drop msmarco_dev --yes`,
}

var collectionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List collections",
	RunE:  runCollectionsList,
}

var collectionsInfoCmd = &cobra.Command{
	Use:   "info <collection>",
	Short: "Show collection details",
	Args:  cobra.ExactArgs(1),
	RunE:  runCollectionsInfo,
}

var collectionsDropCmd = &cobra.Command{
	Use:   "drop <collection>",
	Short: "Drop a collection and all its points",
	Args:  cobra.ExactArgs(1),
	RunE:  runCollectionsDrop,
}

func runCollectionsList(cmd *cobra.Command, args []string) error {
	rt, err := initRuntime(cmd.Context())
	if err != nil {
		return err
	}
	defer rt.Close()

	index, err := rt.openIndex()
	if err != nil {
		return err
	}
	defer index.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), rt.cfg.VectorStore.Timeout.Duration())
	defer cancel()

	names, err := index.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("listing collections: %w", err)
	}
	if len(names) == 0 {
		fmt.Println("No collections found")
		return nil
	}
	sort.Strings(names)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tPOINTS\tDIMENSION")
	for _, name := range names {
		info, err := index.GetCollectionInfo(ctx, name)
		if err != nil {
			return fmt.Errorf("describing collection %q: %w", name, err)
		}
		fmt.Fprintf(w, "%s\t%d\t%d\n", info.Name, info.Points, info.Dimension)
	}
	return w.Flush()
}

func runCollectionsInfo(cmd *cobra.Command, args []string) error {
	name := args[0]

	rt, err := initRuntime(cmd.Context())
	if err != nil {
		return err
	}
	defer rt.Close()

	index, err := rt.openIndex()
	if err != nil {
		return err
	}
	defer index.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), rt.cfg.VectorStore.Timeout.Duration())
	defer cancel()

	info, err := index.GetCollectionInfo(ctx, name)
	if err != nil {
		return fmt.Errorf("describing collection %q: %w", name, err)
	}

	fmt.Printf("Name:      %s\n", info.Name)
	fmt.Printf("Points:    %d\n", info.Points)
	fmt.Printf("Dimension: %d\n", info.Dimension)

	return nil
}

func runCollectionsDrop(cmd *cobra.Command, args []string) error {
	name := args[0]

	if !collYes {
		ok, err := confirm(fmt.Sprintf("Drop collection %q and all its points?", name))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("Aborted")
			return nil
		}
	}

	rt, err := initRuntime(cmd.Context())
	if err != nil {
		return err
	}
	defer rt.Close()

	index, err := rt.openIndex()
	if err != nil {
		return err
	}
	defer index.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), rt.cfg.VectorStore.Timeout.Duration())
	defer cancel()

	if err := index.DeleteCollection(ctx, name); err != nil {
		return fmt.Errorf("dropping collection %q: %w", name, err)
	}

	fmt.Printf("Dropped collection %q\n", name)
	return nil
}

// confirm prompts on stdout and reads a y/N answer from stdin.
func confirm(prompt string) (bool, error) {
	fmt.Printf("%s [y/N]: ", prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false, fmt.Errorf("reading confirmation: %w", err)
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}
