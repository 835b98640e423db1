// Command geminicheck sends one prompt to the Gemini API and prints the
// response. Useful to verify the API key and model before starting the bot.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"onboardbot/internal/ai"
)

func main() {
	_ = godotenv.Load()

	model := flag.String("model", "gemini-1.5-flash", "model name")
	image := flag.String("image", "", "optional image path to analyze")
	flag.Parse()

	prompt := "Hello, can you confirm you are working?"
	if flag.NArg() > 0 {
		prompt = flag.Arg(0)
	}

	ctx := context.Background()
	client, err := ai.New(ctx, os.Getenv("GEMINI_API_KEY"), *model)
	if err != nil {
		log.Fatalf("gemini init: %v", err)
	}
	defer client.Close()

	if *image != "" {
		out, err := client.AnalyzeImage(ctx, *image, prompt)
		if err != nil {
			log.Fatalf("analyze: %v", err)
		}
		fmt.Println(out)
		return
	}

	fmt.Println(client.ProcessMessage(ctx, prompt))
}
