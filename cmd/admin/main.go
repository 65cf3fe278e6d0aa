package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	persistlog "sketchcraft.ai/internal/persistence/log"
)

// logKinds maps a -kind value to its directory and file prefix.
var logKinds = map[string][2]string{
	"sessions": {"sessions", "session"},
	"events":   {"events", "events"},
}

var errLimit = errors.New("limit reached")

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "db":
			dbCmd(os.Args[2:])
			return
		case "events":
			eventsCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

// listCmd prints the compressed log files under the data directory.
func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	for _, kind := range []string{"sessions", "events"} {
		files, err := logFiles(*dataDir, kind)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read:", err)
			os.Exit(1)
		}
		for _, f := range files {
			fmt.Println(f)
		}
	}
}

// eventsCmd prints log lines, optionally only one session's.
func eventsCmd(args []string) {
	fs := flag.NewFlagSet("events", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	kind := fs.String("kind", "sessions", "log to read: sessions|events")
	session := fs.String("session", "", "session id filter (optional)")
	limit := fs.Int("limit", 0, "max lines (0 = all)")
	_ = fs.Parse(args)

	files, err := logFiles(*dataDir, *kind)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	_, err = dump(files, *session, *limit, func(line []byte) { fmt.Println(string(line)) })
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func logFiles(dataDir, kind string) ([]string, error) {
	k, ok := logKinds[kind]
	if !ok {
		return nil, fmt.Errorf("bad -kind %q (want sessions|events)", kind)
	}
	return persistlog.Files(filepath.Join(dataDir, k[0]), k[1])
}

// dump feeds out every line of files whose session matches, up to limit
// lines (0 = all). It returns how many lines it fed.
func dump(files []string, session string, limit int, out func(line []byte)) (int, error) {
	n := 0
	for _, f := range files {
		err := persistlog.ReadJSONL(f, func(line json.RawMessage) error {
			if !matchSession(line, session) {
				return nil
			}
			out(line)
			n++
			if limit > 0 && n >= limit {
				return errLimit
			}
			return nil
		})
		if errors.Is(err, errLimit) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("%s: %w", filepath.Base(f), err)
		}
	}
	return n, nil
}

func matchSession(line []byte, session string) bool {
	if session == "" {
		return true
	}
	var v struct {
		Session string `json:"session"`
	}
	if err := json.Unmarshal(line, &v); err != nil {
		return false
	}
	return v.Session == session
}
