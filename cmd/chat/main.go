package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

func main() {
	server := flag.String("server", "http://localhost:8080", "Ravenmoor server URL")
	user := flag.String("user", "cli-user", "User name for chat")
	room := flag.String("room", "cli", "Room to speak in")
	flag.Parse()

	fmt.Println("Ravenmoor CLI Chat")
	fmt.Printf("Server: %s | User: %s | Room: %s\n", *server, *user, *room)
	fmt.Println("Type 'exit' or 'quit' to leave.")
	fmt.Println("Commands: /persona, /memories")
	fmt.Println("---")

	fetchPersona(*server)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("\n> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			fmt.Println("Bye!")
			return
		}
		if input == "/persona" {
			fetchPersona(*server)
			continue
		}
		if input == "/memories" {
			fetchMemories(*server, *room)
			continue
		}

		sendMessage(*server, *room, *user, input)
	}
}

func fetchPersona(server string) {
	resp, err := http.Get(server + "/api/persona")
	if err != nil {
		printError("Failed to fetch persona: %v", err)
		return
	}
	defer resp.Body.Close()

	var p struct {
		ID   string   `json:"id"`
		Name string   `json:"name"`
		Bio  []string `json:"bio"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		printError("Failed to parse persona: %v", err)
		return
	}
	fmt.Printf("Speaking with \033[36m%s\033[0m", p.Name)
	if len(p.Bio) > 0 {
		fmt.Printf(" | %s", p.Bio[0])
	}
	fmt.Println()
}

func fetchMemories(server, room string) {
	resp, err := http.Get(server + "/api/rooms/" + room + "/memories?count=10")
	if err != nil {
		printError("Failed to fetch memories: %v", err)
		return
	}
	defer resp.Body.Close()

	var records []struct {
		UserID  string `json:"user_id"`
		AgentID string `json:"agent_id"`
		Content struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		printError("Failed to parse memories: %v", err)
		return
	}
	if len(records) == 0 {
		fmt.Println("The room remembers nothing yet.")
		return
	}
	fmt.Println("Recent memories (newest first):")
	for _, r := range records {
		speaker := r.UserID
		if speaker == "" {
			speaker = r.AgentID
		}
		fmt.Printf("  [%s] %s\n", speaker, r.Content.Text)
	}
}

func sendMessage(server, room, user, content string) {
	body, _ := json.Marshal(map[string]string{
		"user_id": user,
		"message": content,
	})

	client := &http.Client{Timeout: 65 * time.Second}
	resp, err := client.Post(
		server+"/api/rooms/"+room+"/messages",
		"application/json",
		bytes.NewReader(body),
	)
	if err != nil {
		printError("Request failed: %v", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		printError("Server error (%d): %s", resp.StatusCode, string(data))
		return
	}

	var out struct {
		Responses []struct {
			Text   string `json:"text"`
			Action string `json:"action,omitempty"`
		} `json:"responses"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		printError("Failed to parse response: %v", err)
		return
	}

	for _, r := range out.Responses {
		if r.Action != "" {
			fmt.Printf("\033[36m[%s]\033[0m %s\n", r.Action, r.Text)
		} else {
			fmt.Println(r.Text)
		}
	}
}

func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "\033[31m"+format+"\033[0m\n", args...)
}
