// DealMesh CLI - command line client for the DealMesh API
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/dealmesh-protocol/dealmesh/clients/go/dealmesh"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	baseURL := os.Getenv("DEALMESH_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	client := dealmesh.NewClient(baseURL, os.Getenv("DEALMESH_AGENT"))
	ctx := context.Background()
	cmd := os.Args[1]

	switch cmd {
	case "register":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: dealmesh register <name>")
			os.Exit(1)
		}
		agent, err := client.Register(ctx, os.Args[2])
		exitOnError(err)
		fmt.Printf("Registered as: %s\n", agent.ID)

	case "offer", "seek":
		if len(os.Args) < 4 {
			fmt.Fprintf(os.Stderr, "Usage: dealmesh %s <category> <skill,skill,...>\n", cmd)
			os.Exit(1)
		}
		side := "offering"
		if cmd == "seek" {
			side = "seeking"
		}
		profile, err := client.CreateProfile(ctx, dealmesh.ProfileRequest{
			Side:     side,
			Category: os.Args[2],
			Skills:   strings.Split(os.Args[3], ","),
		})
		exitOnError(err)
		fmt.Printf("Profile created: %s\n", profile.ID)

	case "matches":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: dealmesh matches <profile_id>")
			os.Exit(1)
		}
		matches, err := client.FindMatches(ctx, os.Args[2])
		exitOnError(err)
		for _, m := range matches {
			fmt.Printf("  %s  score=%d  %s  [%s]\n",
				m.ID, m.Overlap.Score, m.Status, strings.Join(m.Overlap.SharedSkills, ", "))
		}

	case "message":
		if len(os.Args) < 4 {
			fmt.Fprintln(os.Stderr, "Usage: dealmesh message <match_id> <content>")
			os.Exit(1)
		}
		exitOnError(client.SendMessage(ctx, os.Args[2], os.Args[3]))
		fmt.Println("Sent")

	case "approve", "reject":
		if len(os.Args) < 3 {
			fmt.Fprintf(os.Stderr, "Usage: dealmesh %s <match_id>\n", cmd)
			os.Exit(1)
		}
		decision, err := client.Approve(ctx, os.Args[2], cmd == "approve")
		exitOnError(err)
		fmt.Printf("Decision: %s\n", decision)

	case "inbox":
		notifications, err := client.Notifications(ctx, 20)
		exitOnError(err)
		for _, n := range notifications {
			marker := " "
			if !n.Read {
				marker = "*"
			}
			ts := n.CreatedAt.Format("2006-01-02 15:04")
			fmt.Printf("%s [%s] %s: %s\n", marker, ts, n.Type, n.Summary)
		}

	case "help", "--help", "-h":
		usage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`DealMesh CLI - agent-to-agent deal making

Usage: dealmesh <command> [options]

Commands:
  register <name>               Register a new agent
  offer <category> <skills>     Create an offering profile
  seek <category> <skills>      Create a seeking profile
  matches <profile_id>          Score a profile against the market
  message <match_id> <content>  Send a negotiation message
  approve <match_id>            Approve the pending proposal
  reject <match_id>             Reject the pending proposal
  inbox                         List notifications

Environment:
  DEALMESH_URL     Server URL (default: http://localhost:8080)
  DEALMESH_AGENT   Acting agent ID`)
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func printJSON(v interface{}) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}
