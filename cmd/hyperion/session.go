package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/BnJam/hyperion/internal/agent"
)

var (
	sessionResumeID      string
	sessionModel         string
	sessionAllowAllTools bool
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage resumable agent sessions",
}

var sessionInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Record or refresh an agent session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		model := sessionModel
		if model == "" {
			model = agent.DefaultModel
		}
		session, err := q.UpsertAgentSession(rootCtx, sessionResumeID, model, sessionAllowAllTools)
		if err != nil {
			return err
		}
		fmt.Printf("Recorded agent session %d (resume=%s, model=%s, allow_all_tools=%t)\n",
			session.ID, session.ResumeID, session.Model, session.AllowAllTools)
		return nil
	},
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded agent sessions, most recent first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sessions, err := q.ListAgentSessions(rootCtx)
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			fmt.Println("no agent sessions recorded")
			return nil
		}
		for _, session := range sessions {
			fmt.Printf("%d resume=%s model=%s allow_all_tools=%t last_used=%d\n",
				session.ID, session.ResumeID, session.Model, session.AllowAllTools, session.LastUsed)
		}
		return nil
	},
}

func init() {
	sessionInitCmd.Flags().StringVar(&sessionResumeID, "resume-id", "", "session resume identifier")
	sessionInitCmd.Flags().StringVar(&sessionModel, "model", "", "agent model (default gpt-5-mini)")
	sessionInitCmd.Flags().BoolVar(&sessionAllowAllTools, "allow-all-tools", false, "grant the session unrestricted tool access")
	_ = sessionInitCmd.MarkFlagRequired("resume-id")
	sessionCmd.AddCommand(sessionInitCmd)
	sessionCmd.AddCommand(sessionListCmd)
	rootCmd.AddCommand(sessionCmd)
}
