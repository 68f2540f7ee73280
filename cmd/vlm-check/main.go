// Command vlm-check probes the vision-language backend with one image and
// one question, outside the pilot. Useful for verifying the Ollama model and
// measuring its latency before a flight.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/teslashibe/go-tello/pkg/vlm"
)

func main() {
	imagePath := flag.String("image", "", "path to a JPEG frame")
	question := flag.String("q", "Describe what you see.", "question about the frame")
	baseURL := flag.String("base-url", "http://localhost:11434/v1", "OpenAI-compatible API root")
	model := flag.String("model", "llava", "vision model name")
	timeout := flag.Duration("timeout", 2*time.Minute, "query timeout")
	flag.Parse()

	if *imagePath == "" {
		fmt.Fprintln(os.Stderr, "vlm-check: -image is required")
		flag.Usage()
		os.Exit(2)
	}

	jpeg, err := os.ReadFile(*imagePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "vlm-check: %v\n", err)
		os.Exit(1)
	}

	client, err := vlm.NewClient(
		vlm.WithBaseURL(*baseURL),
		vlm.WithModel(*model),
		vlm.WithTimeout(*timeout),
		vlm.WithAPIKey(os.Getenv("VLM_API_KEY")),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "vlm-check: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := client.Health(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "vlm-check: backend unhealthy: %v\n", err)
		os.Exit(1)
	}

	answer, err := client.Ask(ctx, *question, jpeg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "vlm-check: query failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("model:   %s\nlatency: %dms\nanswer:  %s\n", answer.Model, answer.LatencyMs, answer.Text)
}
