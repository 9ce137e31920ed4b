package parser

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/rawblock/intent-engine/pkg/models"
)

// DefaultLearnedPath is where learned intents live unless overridden.
const DefaultLearnedPath = "data/learned-intents.json"

var (
	slotNumRe  = regexp.MustCompile(`^[\d,]*\.?\d+$`)
	slotAddrRe = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)
)

type learnedEntry struct {
	Prompt     string              `json:"prompt"`
	Normalized string              `json:"normalized"`
	Result     models.ParsedIntent `json:"result"`
}

// LearnedStore remembers prompts the model fallback managed to parse, so the
// next occurrence is answered locally. Entries are keyed by a normalized
// template in which amounts become __NUM__ and addresses become __ADDR__;
// a template hit re-binds those slots from the incoming prompt.
type LearnedStore struct {
	path string

	mu      sync.RWMutex
	entries []learnedEntry
	byNorm  map[string]int
}

// NewLearnedStore loads the store at path, or starts empty when the file
// does not exist yet.
func NewLearnedStore(path string) (*LearnedStore, error) {
	if path == "" {
		path = DefaultLearnedPath
	}
	s := &LearnedStore{path: path, byNorm: make(map[string]int)}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read learned intents: %w", err)
	}
	if err := json.Unmarshal(data, &s.entries); err != nil {
		return nil, fmt.Errorf("decode learned intents: %w", err)
	}
	for i := range s.entries {
		s.byNorm[s.entries[i].Normalized] = i
	}
	return s, nil
}

func (s *LearnedStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Match looks the prompt up, first verbatim and then by template. The
// returned intent is a copy; callers may mutate its params.
func (s *LearnedStore) Match(prompt string) (*models.ParsedIntent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	trimmed := strings.TrimSpace(prompt)
	for i := range s.entries {
		if strings.EqualFold(s.entries[i].Prompt, trimmed) {
			intent := s.entries[i].Result
			intent.Params = intent.Params.Clone()
			intent.Confidence = confLearnedExact
			return &intent, true
		}
	}

	idx, ok := s.byNorm[normalizePrompt(trimmed)]
	if !ok {
		return nil, false
	}
	entry := s.entries[idx]
	intent := entry.Result
	intent.Params = rebindSlots(entry.Prompt, trimmed, entry.Result.Params)
	intent.Confidence = confLearnedTemplate
	return &intent, true
}

// Save records a prompt and its parse. Saving a prompt whose template is
// already known is a no-op.
func (s *LearnedStore) Save(prompt string, result models.ParsedIntent) error {
	trimmed := strings.TrimSpace(prompt)
	norm := normalizePrompt(trimmed)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byNorm[norm]; exists {
		return nil
	}
	result.Params = result.Params.Clone()
	s.entries = append(s.entries, learnedEntry{Prompt: trimmed, Normalized: norm, Result: result})
	s.byNorm[norm] = len(s.entries) - 1
	return s.persistLocked()
}

// persistLocked writes the whole store to a temp file and renames it into
// place, so a crash mid-write never corrupts the previous state.
func (s *LearnedStore) persistLocked() error {
	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".learned-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

// normalizePrompt lowercases a prompt and replaces amounts and addresses
// with placeholder slots, producing the template key.
func normalizePrompt(prompt string) string {
	fields := strings.Fields(prompt)
	for i, f := range fields {
		switch {
		case slotAddrRe.MatchString(f):
			fields[i] = "__ADDR__"
		case slotNumRe.MatchString(f):
			fields[i] = "__NUM__"
		default:
			fields[i] = strings.ToLower(f)
		}
	}
	return strings.Join(fields, " ")
}

// extractSlots pulls the amounts and addresses out of a prompt in order.
func extractSlots(prompt string) (nums []float64, addrs []string) {
	for _, f := range strings.Fields(prompt) {
		switch {
		case slotAddrRe.MatchString(f):
			addrs = append(addrs, f)
		case slotNumRe.MatchString(f):
			nums = append(nums, num(f))
		}
	}
	return nums, addrs
}

// rebindSlots copies the stored params, replacing every value that came from
// a slot of the stored prompt with the matching slot of the new prompt.
func rebindSlots(oldPrompt, newPrompt string, params models.Params) models.Params {
	oldNums, oldAddrs := extractSlots(oldPrompt)
	newNums, newAddrs := extractSlots(newPrompt)

	out := params.Clone()
	for key, val := range out {
		switch v := val.(type) {
		case float64:
			for i, old := range oldNums {
				if i < len(newNums) && v == old {
					out[key] = newNums[i]
					break
				}
			}
		case string:
			for i, old := range oldAddrs {
				if i < len(newAddrs) && v == old {
					out[key] = newAddrs[i]
					break
				}
			}
		}
	}
	return out
}
