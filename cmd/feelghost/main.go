package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/FrancescoCarrabino/feelghost/internal/ai"
	"github.com/FrancescoCarrabino/feelghost/internal/config"
	"github.com/FrancescoCarrabino/feelghost/internal/parser"
	"github.com/FrancescoCarrabino/feelghost/internal/playground"
	"github.com/FrancescoCarrabino/feelghost/internal/server"
)

const usage = `usage: feelghost [command]

commands:
  serve    run the language server on stdin/stdout (default)
  play     try suggestions in a terminal editor
  models   list fine-tuned OpenAI models
`

func main() {
	cmd := "serve"
	args := os.Args[1:]
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	var err error
	switch cmd {
	case "serve":
		err = serve()
	case "play":
		err = play(args)
	case "models":
		err = models()
	case "-h", "--help", "help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}
	if err != nil {
		log.Printf("FATAL: %v", err)
		os.Exit(1)
	}
}

func serve() error {
	// stdout carries the protocol; logs go to the client's stderr log.
	log.SetOutput(os.Stderr)
	log.Println("feelghost LSP server starting...")

	srv := server.NewServer()
	if err := srv.Run(os.Stdin, os.Stdout); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}

	log.Println("feelghost LSP server stopped.")
	return nil
}

func play(args []string) error {
	fs := flag.NewFlagSet("play", flag.ExitOnError)
	evalContext := fs.String("context", "", "JSON evaluation context (overrides [feel] context)")
	logPath := fs.String("log", "feelghost-play.log", "file to write logs to")
	text := fs.String("text", "", "initial expression")
	if err := fs.Parse(args); err != nil {
		return err
	}

	f, err := tea.LogToFile(*logPath, "feelghost")
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	client, err := ai.NewClient(cfg)
	if err != nil {
		return err
	}
	cached := ai.Wrap(client, cfg)
	defer cached.Close()

	pm, err := parser.NewManager()
	if err != nil {
		log.Printf("[FG][play] Parser unavailable, using text context: %v", err)
		pm = nil
	}
	if pm != nil {
		defer pm.Close()
	}

	ctxJSON := cfg.Feel.Context
	if *evalContext != "" {
		ctxJSON = *evalContext
	}
	provider := ai.NewProvider(cached, pm, ctxJSON)

	title := fmt.Sprintf("feelghost · %s", client.Identify())
	return playground.Run(provider.FetchFor("playground.feel", "feel"), cfg.Suggest.DelayDuration, title, *text)
}

func models() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	prompt, err := ai.NewPrompt(cfg.Feel.SystemPrompt)
	if err != nil {
		return err
	}
	client, err := ai.NewOpenAIClient(cfg.Providers.OpenAI, *cfg, prompt)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.TimeoutDuration)
	defer cancel()
	names, err := client.FineTunedModels(ctx)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		fmt.Println("no fine-tuned models")
		return nil
	}
	for _, name := range names {
		fmt.Println(name)
	}
	return nil
}
