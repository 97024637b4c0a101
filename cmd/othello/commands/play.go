package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"othello/bot"
	"othello/game"
	"othello/match"
)

var (
	playBlack string
	playWhite string
	playSize  int
	playDelay time.Duration
)

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Run a bot versus bot match in the terminal",
	Long: `Play two bots against each other and render the board after every move.

Useful for trying out a bot locally before uploading it.`,
	RunE: runPlay,
}

func init() {
	playCmd.Flags().StringVar(&playBlack, "black", "random", "bot playing Black")
	playCmd.Flags().StringVar(&playWhite, "white", "greedy", "bot playing White")
	playCmd.Flags().IntVar(&playSize, "size", 8, "board size (even, 4-100)")
	playCmd.Flags().DurationVar(&playDelay, "delay", 200*time.Millisecond, "pause between rendered moves")
	rootCmd.AddCommand(playCmd)
}

func runPlay(cmd *cobra.Command, args []string) error {
	setupLogging("warn")

	dataDir, err := os.MkdirTemp("", "othello-play-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dataDir)

	catalog, err := bot.NewCatalog(dataDir)
	if err != nil {
		return err
	}

	cfg := match.Config{
		BoardSize:       playSize,
		BlackPlayerType: match.Bot,
		BlackBotName:    playBlack,
		WhitePlayerType: match.Bot,
		WhiteBotName:    playWhite,
	}
	coord, err := match.New("local", cfg, catalog)
	if err != nil {
		return err
	}
	defer coord.Close()

	updates := coord.Subscribe()
	defer coord.Unsubscribe(updates)

	st := coord.Snapshot()
	renderState(st)
	if st.GameOver {
		return nil
	}
	for st := range updates {
		time.Sleep(playDelay)
		renderState(st)
		if st.GameOver {
			return nil
		}
	}
	return nil
}

func renderState(st match.State) {
	fmt.Println()
	black := color.New(color.FgHiBlack, color.Bold)
	white := color.New(color.FgHiWhite, color.Bold)
	hint := color.New(color.FgGreen)

	valid := make(map[[2]int]bool, len(st.ValidMoves))
	for _, mv := range st.ValidMoves {
		valid[mv] = true
	}

	for r, row := range st.Board {
		for c, cell := range row {
			switch {
			case cell == game.Black:
				black.Print(" ●")
			case cell == game.White:
				white.Print(" ○")
			case valid[[2]int{r, c}]:
				hint.Print(" ·")
			default:
				fmt.Print(" .")
			}
		}
		fmt.Println()
	}
	fmt.Printf("Black %d - White %d", st.BlackCount, st.WhiteCount)
	if st.Message != "" {
		fmt.Printf("  %s", st.Message)
	}
	fmt.Println()
}
