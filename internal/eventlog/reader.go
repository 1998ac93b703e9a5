package eventlog

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fixbench/runner/internal/domain"
)

// ErrCorrupt marks a log that could not be fully parsed (truncated write,
// damaged line, missing file). Callers still receive every event that did
// parse, so a degraded result can be derived from the readable prefix.
var ErrCorrupt = errors.New("event log corrupt")

// Read parses a closed event log file. It returns all parseable events in
// order. A file that is missing, empty, or contains an unparseable line
// returns the events read so far together with an error wrapping ErrCorrupt.
func Read(path string) ([]domain.Event, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	defer file.Close()

	var events []domain.Event
	scanner := bufio.NewScanner(file)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 4*1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var ev domain.Event
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			// A half-written final line means the process died mid-append;
			// anything before it is still usable.
			return events, fmt.Errorf("%w: bad line: %v", ErrCorrupt, err)
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return events, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	if len(events) == 0 {
		return nil, fmt.Errorf("%w: empty log", ErrCorrupt)
	}

	return events, nil
}
