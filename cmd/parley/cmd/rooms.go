package cmd

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

// roomsCmd represents the rooms command
var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "List rooms you are a member of",
	Long: `List the rooms the signed-in user is a member of, most recently
active first.`,
	Args: cobra.NoArgs,
	RunE: runRooms,
}

var maxRooms int

func init() {
	rootCmd.AddCommand(roomsCmd)

	roomsCmd.Flags().IntVarP(&maxRooms, "max", "m", 50, "maximum number of rooms to list")
}

func runRooms(cmd *cobra.Command, args []string) error {
	logger, err := setupLogger()
	if err != nil {
		return fmt.Errorf("failed to setup logger: %w", err)
	}
	defer logger.Sync()

	cfg, provider, err := newAuthProvider(logger)
	if err != nil {
		return err
	}

	client, err := newAPIClient(cfg, provider, logger)
	if err != nil {
		return err
	}

	rooms, err := client.ListRooms(cmd.Context(), maxRooms)
	if err != nil {
		return err
	}

	titleStyle := lipgloss.NewStyle().Bold(true)
	typeStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	for _, room := range rooms {
		kind := room.Type
		if room.IsLocked {
			kind += ", moderated"
		}
		fmt.Printf("%s %s\n", titleStyle.Render(room.Title), typeStyle.Render("("+kind+")"))
	}

	return nil
}
