package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/xhad/askdocs/pkg/orchestrator"
)

func askCMD(cfgPath *string) *cobra.Command {
	var showSources bool
	ask := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask one question, or chat interactively when no question is given",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			s := &chatSession{app: a, userID: userName(), threadID: uuid.NewString(), showSources: showSources}
			if len(args) > 0 {
				s.ask(ctx, strings.Join(args, " "))
				return nil
			}
			return s.loop(ctx)
		},
	}
	ask.Flags().BoolVar(&showSources, "sources", true, "print the sources behind each answer")
	return ask
}

type chatSession struct {
	app         *app
	userID      string
	threadID    string
	showSources bool
	// lastContextID marks later questions as follow-ups.
	lastContextID string
}

func (s *chatSession) loop(ctx context.Context) error {
	color.Cyan("\nAsk the documentation (type 'exit' to quit)")

	scanner := bufio.NewScanner(os.Stdin)
	userPrompt := color.New(color.FgGreen).PrintfFunc()

	for ctx.Err() == nil {
		userPrompt("\nYou: ")
		if !scanner.Scan() {
			break
		}

		query := strings.TrimSpace(scanner.Text())
		if strings.EqualFold(query, "exit") {
			break
		}
		if query == "" {
			continue
		}
		s.ask(ctx, query)
	}
	return scanner.Err()
}

func (s *chatSession) ask(ctx context.Context, query string) {
	qc := orchestrator.PlatformQueryContext{
		Platform:  orchestrator.PlatformCLI,
		UserID:    s.userID,
		ChannelID: "terminal",
		ThreadID:  s.threadID,
		Query:     query,
	}
	if s.lastContextID != "" {
		qc.Metadata = map[string]string{orchestrator.MetaParentContextID: s.lastContextID}
	}

	spinner := getSpinner(" Searching documentation...")
	res := s.app.orchestrator.HandleQuery(ctx, qc)
	_ = spinner.Finish()

	if res.Metadata.ErrorCode != "" {
		color.Red("\n%s\n", res.Text)
		return
	}
	s.lastContextID = res.Metadata.ContextID
	printResult(res, s.showSources)
}

func printResult(res orchestrator.Result, showSources bool) {
	assistantPrompt := color.New(color.FgCyan).PrintfFunc()
	assistantPrompt("\nAssistant: ")
	fmt.Println(res.Text)

	if res.Metadata.IsFallback {
		color.Yellow("\n(no matching documentation: %s)", res.Metadata.FallbackReason)
	}
	if showSources && len(res.Sources) > 0 {
		color.Blue("\nSources:")
		for _, src := range res.Sources {
			if src.URL == "" {
				fmt.Printf("  - %s\n", src.Title)
				continue
			}
			fmt.Printf("  - %s (%s)\n", src.Title, src.URL)
		}
	}
	color.HiBlack("\nconfidence %.2f · %s · %dms", res.Confidence, res.Intent, res.Metadata.ProcessingTimeMs)
}

func userName() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "cli"
}
