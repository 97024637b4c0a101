package bot

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

//go:embed builtin/*.lua
var builtinFS embed.FS

var (
	ErrBotExists   = errors.New("bot already exists")
	ErrBotNotFound = errors.New("bot not found")
	ErrBuiltinBot  = errors.New("builtin bots cannot be modified")
)

// Catalog owns the BotDescriptor records: embedded builtin bots plus vetted
// uploads persisted under the data directory. It is safe for concurrent use
// and is read-shared by every match that references a bot.
type Catalog struct {
	mu           sync.RWMutex
	bots         map[string]Descriptor
	uploadsDir   string
	metadataPath string
	seclog       *SecurityLog
}

// NewCatalog loads upload metadata from dataDir and scans the builtin bots.
func NewCatalog(dataDir string) (*Catalog, error) {
	uploadsDir := filepath.Join(dataDir, "uploads")
	if err := os.MkdirAll(uploadsDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating uploads dir: %w", err)
	}
	seclog, err := NewSecurityLog(filepath.Join(dataDir, "quarantine"))
	if err != nil {
		return nil, err
	}

	c := &Catalog{
		bots:         make(map[string]Descriptor),
		uploadsDir:   uploadsDir,
		metadataPath: filepath.Join(uploadsDir, "bots_metadata.json"),
		seclog:       seclog,
	}
	if err := c.loadMetadata(); err != nil {
		return nil, err
	}
	if err := c.scanBuiltins(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalog) loadMetadata() error {
	data, err := os.ReadFile(c.metadataPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading bot metadata: %w", err)
	}
	var stored map[string]Descriptor
	if err := json.Unmarshal(data, &stored); err != nil {
		return fmt.Errorf("parsing bot metadata: %w", err)
	}
	for name, desc := range stored {
		c.bots[name] = desc
	}
	return nil
}

func (c *Catalog) saveMetadataLocked() error {
	uploaded := make(map[string]Descriptor)
	for name, desc := range c.bots {
		if desc.Kind == KindUploaded {
			uploaded[name] = desc
		}
	}
	data, err := json.MarshalIndent(uploaded, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(c.metadataPath, data, 0o644); err != nil {
		return fmt.Errorf("writing bot metadata: %w", err)
	}
	return nil
}

func (c *Catalog) scanBuiltins() error {
	entries, err := builtinFS.ReadDir("builtin")
	if err != nil {
		return err
	}
	for _, entry := range entries {
		name := strings.TrimSuffix(entry.Name(), ".lua")
		if _, ok := c.bots[name]; ok {
			continue
		}
		c.bots[name] = Descriptor{
			Name:   name,
			Kind:   KindBuiltin,
			Path:   "builtin/" + entry.Name(),
			Vetted: true,
		}
	}
	return nil
}

// List returns all descriptors sorted by name.
func (c *Catalog) List() []Descriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Descriptor, 0, len(c.bots))
	for _, desc := range c.bots {
		out = append(out, desc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Get looks up one descriptor.
func (c *Catalog) Get(name string) (Descriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	desc, ok := c.bots[name]
	return desc, ok
}

// Source returns the Lua source of a cataloged bot.
func (c *Catalog) Source(name string) (string, error) {
	desc, ok := c.Get(name)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrBotNotFound, name)
	}
	var data []byte
	var err error
	if desc.Kind == KindBuiltin {
		data, err = builtinFS.ReadFile(desc.Path)
	} else {
		data, err = os.ReadFile(desc.Path)
	}
	if err != nil {
		return "", fmt.Errorf("reading bot %q: %w", name, err)
	}
	return string(data), nil
}

// Upload vets raw bot source and either accepts it into the catalog or
// quarantines it. A non-empty violation list means rejection; the returned
// error is reserved for storage failures.
func (c *Catalog) Upload(filename string, content []byte, remoteAddr string) (Descriptor, []Violation, error) {
	base := filepath.Base(filename)
	if !strings.HasSuffix(base, ".lua") {
		return Descriptor{}, nil, fmt.Errorf("bot file must be a Lua file (.lua), got %q", base)
	}
	name := strings.TrimSuffix(base, ".lua")

	if _, ok := c.Get(name); ok {
		return Descriptor{}, nil, fmt.Errorf("%w: %q", ErrBotExists, name)
	}

	if violations := Vet(string(content), base); len(violations) > 0 {
		quarantinePath, err := c.seclog.Record(base, content, violations, remoteAddr)
		if err != nil {
			return Descriptor{}, violations, err
		}
		log.Warn().
			Str("bot", name).
			Str("remote_addr", remoteAddr).
			Int("violations", len(violations)).
			Str("quarantine", quarantinePath).
			Msg("rejected bot upload")
		return Descriptor{}, violations, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.bots[name]; ok {
		return Descriptor{}, nil, fmt.Errorf("%w: %q", ErrBotExists, name)
	}

	path := filepath.Join(c.uploadsDir, base)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return Descriptor{}, nil, fmt.Errorf("saving bot %q: %w", name, err)
	}

	desc := Descriptor{
		Name:       name,
		Kind:       KindUploaded,
		UploadTime: time.Now().UTC().Format(time.RFC3339),
		Path:       path,
		Vetted:     true,
	}
	c.bots[name] = desc
	if err := c.saveMetadataLocked(); err != nil {
		delete(c.bots, name)
		return Descriptor{}, nil, err
	}

	log.Info().Str("bot", name).Str("remote_addr", remoteAddr).Msg("accepted bot upload")
	return desc, nil, nil
}

// Remove deletes an uploaded bot and its source. Builtin bots are refused.
func (c *Catalog) Remove(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	desc, ok := c.bots[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrBotNotFound, name)
	}
	if desc.Kind == KindBuiltin {
		return fmt.Errorf("%w: %q", ErrBuiltinBot, name)
	}

	if err := os.Remove(desc.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing bot %q: %w", name, err)
	}
	delete(c.bots, name)
	return c.saveMetadataLocked()
}

// SecurityLog exposes the rejection log for review.
func (c *Catalog) SecurityLog() *SecurityLog {
	return c.seclog
}
