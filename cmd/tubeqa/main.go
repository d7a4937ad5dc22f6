package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/time/rate"

	"github.com/xhad/tubeqa/pkg/captions"
	"github.com/xhad/tubeqa/pkg/client"
	cfgPkg "github.com/xhad/tubeqa/pkg/config"
	"github.com/xhad/tubeqa/pkg/relay"
	"github.com/xhad/tubeqa/pkg/transcript"
)

const defaultQuestion = "What is this video about?"

type Config struct {
	VideoURL      string
	BackendURL    string
	SendVideoURL  bool
	LocalCaptions bool
	Streaming     bool
	MinTranscript int
	Question      string
	cfg           *cfgPkg.Config
}

func main() {
	config, err := parseFlags()
	if err != nil {
		log.Fatal(err)
	}

	if err := run(context.Background(), config); err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() (Config, error) {
	var config Config
	var configPath string

	flag.StringVar(&configPath, "config", "", "Path to config file")
	flag.StringVar(&config.BackendURL, "backend", "", "Backend ask endpoint (overrides config)")
	flag.StringVar(&config.Question, "question", defaultQuestion, "First question to ask")
	flag.BoolVar(&config.LocalCaptions, "local-captions", true, "Read the transcript locally and send it along")
	flag.BoolVar(&config.Streaming, "stream", false, "Stream answers as they are generated")
	flag.BoolVar(&config.SendVideoURL, "send-video-url", true, "Send the video URL so the backend can fetch captions itself")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <youtube watch url>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := cfgPkg.LoadConfig(configPath)
	if err != nil {
		return config, err
	}
	config.cfg = cfg

	if config.BackendURL == "" {
		config.BackendURL = cfg.Client.BackendURL
	}
	if !isFlagSet("send-video-url") {
		config.SendVideoURL = cfg.Client.SendVideoURL
	}
	if !isFlagSet("stream") {
		config.Streaming = cfg.UI.Streaming
	}
	config.MinTranscript = cfg.Client.MinTranscriptLength
	config.VideoURL = strings.TrimSpace(flag.Arg(0))

	return config, nil
}

func isFlagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// withSpinner runs fn while a spinner is on screen.
func withSpinner(description string, fn func()) {
	spinner := getSpinner(description)
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			spinner.Finish()
			fmt.Print("\r")
			return
		case <-ticker.C:
			spinner.Add(1)
		}
	}
}

func run(ctx context.Context, config Config) error {
	if !captions.IsWatchURL(config.VideoURL) {
		color.Yellow("Please open a YouTube video and reload.\n")
		flag.Usage()
		return nil
	}

	var text string
	if config.LocalCaptions {
		text = localTranscript(ctx, config)
		if text == "" {
			color.Yellow("No captions found locally; the backend will try on its own.\n")
		} else {
			color.Green("✓ Transcript loaded (%d characters)\n", len(text))
		}
	}

	query := client.Query{Transcript: text, SessionID: uuid.New().String()}
	if config.SendVideoURL {
		query.VideoURL = config.VideoURL
	}

	c := client.New(
		client.WithURL(config.BackendURL),
		client.WithHTTPClient(&http.Client{Timeout: config.cfg.Client.Timeout}),
	)
	userPrompt := color.New(color.FgGreen).PrintfFunc()
	assistantPrompt := color.New(color.FgCyan).PrintfFunc()

	ask := func(question string) {
		query.Question = question
		if err := client.Validate(query, config.MinTranscript); err != nil {
			color.Red("%v\n", err)
			return
		}

		if config.Streaming {
			var streamed strings.Builder
			assistantPrompt("Assistant: ")
			ans, err := c.AskStream(ctx, query, func(piece string) {
				streamed.WriteString(piece)
				assistantPrompt("%s", piece)
			})
			fmt.Print("\n")
			// fallback answers arrive whole
			if final := client.Display(ans, err); strings.TrimSpace(final) != strings.TrimSpace(streamed.String()) {
				assistantPrompt("%s\n", final)
			}
			return
		}

		var ans client.Answer
		var err error
		withSpinner("🤖 Thinking...", func() {
			ans, err = c.Ask(ctx, query)
		})
		assistantPrompt("Assistant: %s\n", client.Display(ans, err))
	}

	color.Cyan("\nAsk about %s (type 'exit' to quit)\n", config.VideoURL)
	userPrompt("\nYou: %s\n", config.Question)
	ask(config.Question)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		userPrompt("\nYou: ")
		if !scanner.Scan() {
			break
		}

		question := strings.TrimSpace(scanner.Text())
		if strings.ToLower(question) == "exit" {
			break
		}
		ask(question)
	}

	return scanner.Err()
}

func localTranscript(ctx context.Context, config Config) string {
	cfg := config.cfg
	httpClient := &http.Client{Timeout: cfg.Captions.Timeout}
	r := relay.New(
		transcript.NewFetcher(transcript.WithHTTPClient(httpClient)),
		relay.WithPolling(cfg.Captions.MaxAttempts, cfg.Captions.Interval),
	)
	source := func(req relay.Request) (captions.StateSource, error) {
		return captions.NewWatchPage(req.VideoURL,
			captions.WithWatchURL(cfg.Captions.WatchURL),
			captions.WithHTTPClient(httpClient),
			captions.WithLimiter(rate.NewLimiter(rate.Limit(cfg.Captions.RateLimit), 1)),
		)
	}

	var resp relay.Response
	withSpinner("🔍 Locating captions...", func() {
		resp = <-r.Handle(ctx, relay.Request{Action: relay.ActionGetTranscript, VideoURL: config.VideoURL}, source)
	})
	return resp.Transcript
}
