package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lbarthel/tubewatch/internal/config"
	"github.com/lbarthel/tubewatch/internal/extract"
	"github.com/lbarthel/tubewatch/internal/fetch"
	"github.com/lbarthel/tubewatch/internal/logging"
)

var probeKeyword string

// probe does a one-shot static fetch of the first results page, without a
// browser or any pipeline state. Useful to check a keyword and the recency
// filter before running a batch.
var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Fetch one search page statically and print extracted candidates",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		log, err := logging.New(cfg.Logging.Development)
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		client := fetch.New(log, cfg.Browser.UserAgent, 30*time.Second)
		url := fetch.SearchURL(cfg.Collector.SearchBaseURL, probeKeyword, cfg.Collector.RecencyParam)

		body, err := client.Page(cmd.Context(), url)
		if err != nil {
			return err
		}
		videos, err := extract.Parse(body)
		if err != nil {
			return err
		}

		filter := extract.TitleFilter{
			Strict:     cfg.Collector.StrictTitleFilter,
			ExactMatch: cfg.Collector.ExactMatch,
		}
		matched := 0
		for _, v := range videos {
			marker := " "
			if filter.Matches(v.Title, probeKeyword) {
				marker = "*"
				matched++
			}
			fmt.Printf("%s %-12s %-8s %s\n", marker, v.ID, v.Duration, v.Title)
		}
		fmt.Printf("%d candidates, %d matching the title filter\n", len(videos), matched)
		return nil
	},
}

func init() {
	probeCmd.Flags().StringVar(&probeKeyword, "keyword", "", "keyword to probe")
	_ = probeCmd.MarkFlagRequired("keyword")
	rootCmd.AddCommand(probeCmd)
}
