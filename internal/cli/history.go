package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/billmal071/kobodl/internal/db"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View and manage download history",
	Long: `View and manage the download history.

Examples:
  kobodl history              List recent downloads
  kobodl history clear        Clear the download history`,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		return showDownloadHistory(limit)
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear the download history",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := db.ClearDownloads(); err != nil {
			return fmt.Errorf("failed to clear history: %w", err)
		}
		Successf("Download history cleared.")
		return nil
	},
}

func init() {
	historyCmd.Flags().IntP("limit", "n", 20, "number of entries to show")
	historyCmd.AddCommand(historyClearCmd)
}

func showDownloadHistory(limit int) error {
	downloads, err := db.ListDownloads(limit)
	if err != nil {
		return fmt.Errorf("failed to get download history: %w", err)
	}

	if len(downloads) == 0 {
		fmt.Println("No downloads yet.")
		return nil
	}

	fmt.Printf("Recent Downloads (%d):\n\n", len(downloads))
	for i, d := range downloads {
		fmt.Printf("  %d. %s", i+1, d.Title)
		if d.Author != "" {
			fmt.Printf(" by %s", d.Author)
		}
		fmt.Println()
		fmt.Printf("     File: %s\n", d.FilePath)
		fmt.Printf("     Owner: %s\n", d.OwnerEmail)
		fmt.Printf("     %s\n\n", d.CreatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}
