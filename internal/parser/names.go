package parser

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

// DefaultNames are the counterparties recognised when no directory file is configured.
var DefaultNames = []string{"Jane Smith", "Samuel Carter", "Alex Doe", "Robert Brown", "Linda Green"}

// NameDirectory is an ordered set of known counterparty display names.
// Names outside the directory are never recovered from message text.
type NameDirectory struct {
	names []string
}

// nameFile is the on-disk TOML shape: names = ["Jane Smith", ...]
type nameFile struct {
	Names []string `toml:"names"`
}

// DefaultNameDirectory returns a directory holding DefaultNames.
func DefaultNameDirectory() *NameDirectory {
	return NewNameDirectory(DefaultNames)
}

// NewNameDirectory builds a directory from names, dropping blanks and keeping order.
func NewNameDirectory(names []string) *NameDirectory {
	d := &NameDirectory{names: make([]string, 0, len(names))}
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		d.names = append(d.names, n)
	}
	return d
}

// LoadNameDirectory reads a TOML file with a top-level names array.
func LoadNameDirectory(path string) (*NameDirectory, error) {
	var f nameFile
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, fmt.Errorf("LoadNameDirectory: decoding %s: %w", path, err)
	}
	if len(f.Names) == 0 {
		return nil, fmt.Errorf("LoadNameDirectory: %s defines no names", path)
	}
	return NewNameDirectory(f.Names), nil
}

// Names returns a copy of the directory contents in lookup order.
func (d *NameDirectory) Names() []string {
	out := make([]string, len(d.names))
	copy(out, d.names)
	return out
}

// Match looks for "from <name>" and "to <name>" for every known name in order.
// A "from" hit sets the sender, otherwise a "to" hit sets the recipient; a later
// name overwrites an earlier one.
func (d *NameDirectory) Match(text string) (sender, recipient *string) {
	for _, name := range d.names {
		n := name
		if strings.Contains(text, "from "+n) {
			sender = &n
		} else if strings.Contains(text, "to "+n) {
			recipient = &n
		}
	}
	return sender, recipient
}
