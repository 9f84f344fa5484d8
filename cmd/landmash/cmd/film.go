package cmd

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var filmJSON bool

func init() {
	filmCmd.Flags().BoolVar(&filmJSON, "json", false, "Print the film as json.")
	rootCmd.AddCommand(filmCmd)
}

var filmCmd = &cobra.Command{
	Use:   "film <lm_id>",
	Short: "Prints a film and its reviews.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		film, err := current.films.Film(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if filmJSON {
			return writeJSON(os.Stdout, film)
		}

		fmt.Println(film.Title)
		fmt.Println(film.Href)
		fmt.Println(film.Img)

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Critic", "Rating", "Normalized", "Url"})
		for _, review := range film.Reviews {
			t.AppendRow(table.Row{
				review.Critic,
				formatRating(review.Rating),
				formatRating(review.Normalized),
				review.URL,
			})
		}
		t.SetStyle(table.StyleRounded)
		t.Render()
		return nil
	},
}
