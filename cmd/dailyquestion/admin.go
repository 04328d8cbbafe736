package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/dukerupert/dailyquestion/internal/catalog"
	"github.com/dukerupert/dailyquestion/internal/progress"
	"github.com/dukerupert/dailyquestion/internal/push"
	"github.com/dukerupert/dailyquestion/internal/store"
)

var seedFile string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load new questions from a YAML catalog",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		questions, err := catalog.LoadFile(seedFile)
		if err != nil {
			return err
		}

		_, logger, db, err := bootstrap()
		if err != nil {
			return err
		}
		defer func() { err = multierr.Append(err, db.Close()) }()

		inserted, err := store.NewQuestionStore(db).Seed(context.Background(), questions)
		if err != nil {
			return err
		}
		logger.Info("question catalog seeded", "file", seedFile, "questions", len(questions), "inserted", inserted)
		return nil
	},
}

var initFamilyCmd = &cobra.Command{
	Use:   "init-family <family-id>",
	Short: "Start a family on the first question",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		familyID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || familyID <= 0 {
			return fmt.Errorf("invalid family id %q", args[0])
		}

		_, logger, db, err := bootstrap()
		if err != nil {
			return err
		}
		defer func() { err = multierr.Append(err, db.Close()) }()

		tracker := progress.NewTracker(store.NewProgressStore(db), store.NewQuestionStore(db))
		p, err := tracker.Initialize(context.Background(), familyID)
		if err != nil {
			return err
		}
		logger.Info("family progress initialized", "family_id", p.FamilyID, "sequence", p.SequenceID)
		return nil
	},
}

var vapidKeysCmd = &cobra.Command{
	Use:   "vapid-keys",
	Short: "Generate a VAPID key pair for web push",
	RunE: func(cmd *cobra.Command, args []string) error {
		pub, priv, err := push.GenerateVAPIDKeys()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "DQ_VAPID_PUBLIC_KEY=%s\nDQ_VAPID_PRIVATE_KEY=%s\n", pub, priv)
		return nil
	},
}

func init() {
	seedCmd.Flags().StringVarP(&seedFile, "file", "f", "questions.yaml", "question catalog file")
}
