package main

import (
	"crypto/rand"
	"fmt"

	"repute-go/internal/app"
	"repute-go/internal/ledger"

	"github.com/spf13/cobra"
)

// caller returns the --as account, which every state-changing command needs.
func caller(cmd *cobra.Command) (string, error) {
	as, _ := cmd.Flags().GetString("as")
	if as == "" {
		return "", fmt.Errorf("no caller: pass --as or set REPUTE_ACCOUNT")
	}
	return as, nil
}

// accountArg returns args[0] if present, otherwise the caller.
func accountArg(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	return caller(cmd)
}

func printEvent(ev *ledger.Event) {
	fmt.Println(ev)
}

// account command
var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Manage local account IDs",
}

var accountNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Generate a random account ID",
	RunE: func(cmd *cobra.Command, args []string) error {
		b := make([]byte, ledger.AccountIDSize)
		if _, err := rand.Read(b); err != nil {
			return fmt.Errorf("generating account ID: %w", err)
		}
		id, err := ledger.AccountIDFromBytes(b)
		if err != nil {
			return err
		}
		fmt.Println(id)
		return nil
	},
}

// profile command
var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage reputation profiles",
}

var profileCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a profile for the caller",
	RunE: func(cmd *cobra.Command, args []string) error {
		as, err := caller(cmd)
		if err != nil {
			return err
		}

		a, err := newApp("CreateProfile")
		if err != nil {
			return err
		}
		defer a.Close()

		ev, err := a.CreateProfile(as)
		if err != nil {
			return fmt.Errorf("creating profile: %w", err)
		}
		printEvent(ev)
		return nil
	},
}

var profileDeactivateCmd = &cobra.Command{
	Use:   "deactivate",
	Short: "Stop the caller's profile from receiving ratings",
	RunE: func(cmd *cobra.Command, args []string) error {
		as, err := caller(cmd)
		if err != nil {
			return err
		}

		a, err := newApp("DeactivateProfile")
		if err != nil {
			return err
		}
		defer a.Close()

		ev, err := a.DeactivateProfile(as)
		if err != nil {
			return fmt.Errorf("deactivating profile: %w", err)
		}
		printEvent(ev)
		return nil
	},
}

var profileShowCmd = &cobra.Command{
	Use:   "show [ACCOUNT]",
	Short: "Show reputation stats (defaults to the caller)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		account, err := accountArg(cmd, args)
		if err != nil {
			return err
		}

		a, err := newApp("Stats")
		if err != nil {
			return err
		}
		defer a.Close()

		s, err := a.Stats(account)
		if err != nil {
			return err
		}

		fmt.Printf("Account:         %s\n", s.Account)
		fmt.Printf("Active:          %t\n", s.Active)
		fmt.Printf("Average Score:   %d (%.2f)\n", s.AverageScore, s.MeanScore)
		fmt.Printf("Total Reviews:   %d\n", s.TotalReviews)
		fmt.Printf("Staked:          %s\n", ledger.FormatAmount(&s.StakedAmount))
		fmt.Printf("Communication:   %d\n", s.CategoryAverages.Communication)
		fmt.Printf("Reliability:     %d\n", s.CategoryAverages.Reliability)
		fmt.Printf("Quality:         %d\n", s.CategoryAverages.Quality)
		fmt.Printf("Professionalism: %d\n", s.CategoryAverages.Professionalism)
		return nil
	},
}

// rate command
var rateCmd = &cobra.Command{
	Use:   "rate TARGET",
	Short: "Rate another account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		as, err := caller(cmd)
		if err != nil {
			return err
		}

		req := app.RatingRequest{Target: args[0]}
		req.Score, _ = cmd.Flags().GetUint8("score")
		req.Communication, _ = cmd.Flags().GetUint8("communication")
		req.Reliability, _ = cmd.Flags().GetUint8("reliability")
		req.Quality, _ = cmd.Flags().GetUint8("quality")
		req.Professionalism, _ = cmd.Flags().GetUint8("professionalism")
		req.ReviewHash, _ = cmd.Flags().GetString("review-hash")

		a, err := newApp("SubmitRating")
		if err != nil {
			return err
		}
		defer a.Close()

		ev, err := a.SubmitRating(as, req)
		if err != nil {
			return fmt.Errorf("submitting rating: %w", err)
		}
		printEvent(ev)
		return nil
	},
}

// stake command
var stakeCmd = &cobra.Command{
	Use:   "stake AMOUNT",
	Short: "Stake reputation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		as, err := caller(cmd)
		if err != nil {
			return err
		}

		a, err := newApp("StakeReputation")
		if err != nil {
			return err
		}
		defer a.Close()

		ev, err := a.StakeReputation(as, args[0])
		if err != nil {
			return fmt.Errorf("staking: %w", err)
		}
		printEvent(ev)
		return nil
	},
}

// ratings command
var ratingsCmd = &cobra.Command{
	Use:   "ratings [ACCOUNT]",
	Short: "List ratings received (defaults to the caller)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		account, err := accountArg(cmd, args)
		if err != nil {
			return err
		}

		a, err := newApp("Ratings")
		if err != nil {
			return err
		}
		defer a.Close()

		ratings, err := a.Ratings(account)
		if err != nil {
			return err
		}

		if len(ratings) == 0 {
			fmt.Println("No ratings.")
			return nil
		}

		for _, r := range ratings {
			c := r.CategoryRatings
			fmt.Printf("%s  %d  c:%d r:%d q:%d p:%d  %d  %s\n",
				r.From, r.Score,
				c.Communication, c.Reliability, c.Quality, c.Professionalism,
				r.Timestamp, r.ReviewHash,
			)
		}
		return nil
	},
}

// top command
var topCmd = &cobra.Command{
	Use:   "top",
	Short: "Show the reputation leaderboard",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp("TopProfiles")
		if err != nil {
			return err
		}
		defer a.Close()

		top, err := a.TopProfiles(limit)
		if err != nil {
			return err
		}

		if len(top) == 0 {
			fmt.Println("No rated profiles.")
			return nil
		}

		for i, s := range top {
			fmt.Printf("%3d  %-44s  %.2f  %d reviews\n", i+1, s.Account, s.MeanScore, s.TotalReviews)
		}
		return nil
	},
}

// events command
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "View the event journal, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp("Events")
		if err != nil {
			return err
		}
		defer a.Close()

		events, err := a.Events(limit)
		if err != nil {
			return err
		}

		if len(events) == 0 {
			fmt.Println("No events recorded.")
			return nil
		}

		for _, e := range events {
			fmt.Printf("#%d  %d  %s  %s\n", e.Seq, e.Timestamp, e.ID, e.Event)
		}
		return nil
	},
}

// audit command
var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Check every profile against its ratings",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Audit")
		if err != nil {
			return err
		}
		defer a.Close()

		violations, err := a.Audit()
		if err != nil {
			return err
		}

		for _, v := range violations {
			fmt.Println(v)
		}
		if len(violations) > 0 {
			return fmt.Errorf("%d violation(s) found", len(violations))
		}
		fmt.Println("Ledger is consistent.")
		return nil
	},
}
