/*

A simple CLI app to build and query a replaydb index from a JSON-lines
replay feed.

*/
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/icza/replaydb"
)

const (
	appName    = "replaydbtool"
	appVersion = "v0.1.0"
)

const (
	ExitCodeMissingArguments = 1
	ExitCodeLoadFailed       = 2
	ExitCodeSetReplayFailed  = 3
	ExitCodeSaveFailed       = 4
	ExitCodeInvalidQuery     = 5
)

// Flag variables
var (
	version = flag.Bool("version", false, "print version info and exit")

	game      = flag.String("game", "", "game name; also the .rrdb file's base name")
	cardCount = flag.Int("cards", 0, "number of distinct cards this game's decks are drawn from")

	loadFile = flag.String("load", "", "path to a JSON-lines file of replaydb.Record objects to upsert before querying")
	save     = flag.Bool("save", false, "persist the index to its .rrdb file after loading")

	query = flag.String("query", "", "query to run: 'newgames' or 'search'; empty runs no query")

	offset     = flag.Int("offset", 0, "result offset")
	numResults = flag.Int("num", 20, "maximum number of results")
	minDate    = flag.Uint64("mindate", 0, "minimum replay date, inclusive")

	ranked       = flag.Bool("ranked", true, "include ranked replays")
	unranked     = flag.Bool("unranked", true, "include unranked replays")
	fromPlayer   = flag.Bool("fromplayer", true, "search: match the queried decks against the player's side")
	fromOpponent = flag.Bool("fromopponent", true, "search: match the queried decks against the opponent's side")
	onlyWins     = flag.Bool("onlywins", false, "only include replays the player won")

	sources = flag.String("sources", "", "comma-separated source names to filter to; empty matches no replays")
	modes   = flag.String("modes", "", "comma-separated mode names to filter to; empty matches no replays")

	cards0 = flag.String("cards0", "", "search: comma-separated card indexes for deck 0")
	cards1 = flag.String("cards1", "", "search: comma-separated card indexes for deck 1")

	indent = flag.Bool("indent", true, "use indentation when formatting output")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Println(appName, "version:", appVersion)
		return
	}

	if *game == "" || *cardCount <= 0 {
		printUsage()
		os.Exit(ExitCodeMissingArguments)
	}

	// registry stands in for a long-running process's map of open
	// indexes, one per game, the way a server would keep several loaded
	// at once.
	registry := map[string]*replaydb.DB{}

	db, err := replaydb.New(*game, *cardCount)
	if err != nil {
		fmt.Printf("Failed to open index for %q: %v\n", *game, err)
		os.Exit(ExitCodeLoadFailed)
	}
	registry[*game] = db

	if *loadFile != "" {
		if err := loadRecords(db, *loadFile); err != nil {
			fmt.Printf("Failed to load records: %v\n", err)
			os.Exit(ExitCodeSetReplayFailed)
		}
	}

	if *save {
		if err := db.Save(); err != nil {
			fmt.Printf("Failed to save index: %v\n", err)
			os.Exit(ExitCodeSaveFailed)
		}
	}

	if *query == "" {
		return
	}

	filter := buildFilter()

	var result *replaydb.QueryResult
	switch *query {
	case "newgames":
		result = db.NewGames(*offset, *numResults, filter)
	case "search":
		result = db.Search(*offset, *numResults, parseIntList(*cards0), parseIntList(*cards1), filter)
	default:
		fmt.Printf("Unknown query %q; valid values are 'newgames', 'search'\n", *query)
		os.Exit(ExitCodeInvalidQuery)
	}

	encode(result)
}

func buildFilter() replaydb.Filter {
	f := replaydb.DefaultFilter()
	f.MinDate = *minDate
	f.Ranked = *ranked
	f.Unranked = *unranked
	f.FromPlayer = *fromPlayer
	f.FromOpponent = *fromOpponent
	f.OnlyWins = *onlyWins
	f.Sources = splitNonEmpty(*sources)
	f.Modes = splitNonEmpty(*modes)
	return f
}

func loadRecords(db *replaydb.DB, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		var rec replaydb.Record
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return fmt.Errorf("line %d: %v", line, err)
		}

		if err := db.SetReplay(rec); err != nil {
			return fmt.Errorf("line %d (id %q): %v", line, rec.ID, err)
		}
	}
	return scanner.Err()
}

func encode(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	if *indent {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		fmt.Printf("Failed to encode output: %v\n", err)
	}
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseIntList(s string) []int {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	return out
}

func printUsage() {
	fmt.Println("Usage:")
	fmt.Printf("\t%s -game=<name> -cards=<count> [FLAGS]\n", os.Args[0])
	fmt.Println("\tRun with '-h' to see a list of available flags.")
}
