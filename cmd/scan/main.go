package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/wardenlabs/feishu-warden/feishu"
	"github.com/wardenlabs/feishu-warden/internal/biz/domain"
	"github.com/wardenlabs/feishu-warden/internal/biz/usecase"
	"github.com/wardenlabs/feishu-warden/internal/conf"
)

// scan runs the detection pipeline offline against the configured policy.
// Messages come from the arguments, line by line from stdin, or from the
// recent history of a live chat (-chat). Nothing is recorded; this is for
// checking what a keyword list or whitelist would do.

func main() {
	_ = godotenv.Load()

	policy, err := conf.LoadPolicyConfig(os.Getenv("POLICY_CONFIG_PATH"))
	if err != nil {
		fmt.Printf("Failed to load policy: %v\n", err)
		os.Exit(1)
	}
	global := policy.ToEffectiveConfig()
	fmt.Printf("Policy: %d keyword rules, %d whitelisted domains\n\n", len(global.Keywords), len(global.URLWhitelist))

	// No group overrides in offline mode
	detect := usecase.NewDetectUsecase(usecase.NewResolverUsecase(nil, nil, usecase.ResolverConfig{}))

	scanText := func(text string) {
		verdict := detect.EvaluateAgainst(text, global)
		switch {
		case verdict == nil:
			fmt.Printf("PASS     %s\n", text)
		case verdict.Kind == domain.TriggerKeyword:
			fmt.Printf("KEYWORD  %s  (matched %q)\n", text, verdict.MatchedContent)
		default:
			fmt.Printf("URL      %s  (matched %s)\n", text, verdict.MatchedContent)
		}
	}

	if len(os.Args) > 1 && os.Args[1] == "-chat" {
		if len(os.Args) < 3 {
			fmt.Println("Usage: scan -chat <chat_id> [count]")
			os.Exit(1)
		}
		scanChat(os.Args[2:], scanText)
		return
	}

	if len(os.Args) > 1 {
		for _, arg := range os.Args[1:] {
			scanText(arg)
		}
		return
	}

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		scanText(line)
	}
}

// scanChat pulls recent messages from a live chat and runs each one through
// the detector. Shows what the bot would have flagged, without acting.
func scanChat(args []string, scanText func(string)) {
	appID := os.Getenv("FEISHU_APP_ID")
	appSecret := os.Getenv("FEISHU_APP_SECRET")
	if appID == "" || appSecret == "" {
		fmt.Println("FEISHU_APP_ID and FEISHU_APP_SECRET must be set for -chat mode")
		os.Exit(1)
	}

	chatID := args[0]
	count := 20
	if len(args) > 1 {
		if n, err := strconv.Atoi(args[1]); err == nil {
			count = n
		}
	}

	client := feishu.NewClient(appID, appSecret)
	history, err := client.GetChatHistory(chatID, count)
	if err != nil {
		fmt.Printf("Failed to fetch chat history: %v\n", err)
		os.Exit(1)
	}

	for _, msg := range history {
		text := strings.TrimSpace(msg.Content)
		if text == "" {
			continue
		}
		scanText(text)
	}
}
