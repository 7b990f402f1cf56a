package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Fires the crawl trigger endpoint. Meant for cron and manual runs:
//
//	TRIGGER_SECRET=... go run ./cmd/tools/trigger -batch 0
func main() {
	_ = godotenv.Load()

	baseURL := flag.String("url", "http://localhost:8081", "server base URL")
	batch := flag.Int("batch", -1, "batch index to crawl, -1 for all sources")
	flag.Parse()

	secret := strings.TrimSpace(os.Getenv("TRIGGER_SECRET"))
	if secret == "" {
		fmt.Println("Missing TRIGGER_SECRET environment variable")
		os.Exit(1)
	}

	url := *baseURL + "/api/v1/crawl"
	if *batch >= 0 {
		url = fmt.Sprintf("%s?batch=%d", url, *batch)
	}

	req, err := http.NewRequest(http.MethodPost, url, nil)
	if err != nil {
		fmt.Printf("Error creating request: %v\n", err)
		os.Exit(1)
	}
	req.Header.Set("Authorization", "Bearer "+secret)

	client := &http.Client{Timeout: 10 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		fmt.Printf("Error sending request: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	fmt.Printf("Response Status: %s\n%s\n", resp.Status, body)
	if resp.StatusCode != http.StatusOK {
		os.Exit(1)
	}
}
