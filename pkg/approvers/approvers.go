// Package approvers resolves the approver lists configured on approval steps
// into concrete user ids.
package approvers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const groupPrefix = "group:"

var (
	ErrUnknownGroup = errors.New("unknown approver group")
	ErrNoApprovers  = errors.New("approver list resolved to no users")
)

// Resolver expands configured approver entries into user ids.
type Resolver interface {
	Resolve(ctx context.Context, approvers []string) ([]string, error)
}

// Directory maps group names to their members. Entries of the form
// "group:<name>" expand to the members of the group; anything else is taken as
// a user id. Groups may contain other groups.
type Directory struct {
	Groups map[string][]string `yaml:"groups"`
}

// NewDirectory returns a directory with no groups, which passes user ids through.
func NewDirectory() *Directory {
	return &Directory{Groups: map[string][]string{}}
}

// LoadDirectory reads a YAML group file:
//
//	groups:
//	  finance: [u1, u2]
//	  managers: [u3, "group:finance"]
func LoadDirectory(path string) (*Directory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read approver groups: %w", err)
	}

	return ParseDirectory(data)
}

func ParseDirectory(data []byte) (*Directory, error) {
	dir := NewDirectory()

	err := yaml.Unmarshal(data, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to parse approver groups: %w", err)
	}

	if dir.Groups == nil {
		dir.Groups = map[string][]string{}
	}

	return dir, nil
}

// Resolve expands groups and removes duplicates, keeping first-seen order.
func (d *Directory) Resolve(_ context.Context, approvers []string) ([]string, error) {
	seen := make(map[string]bool)
	resolved := make([]string, 0, len(approvers))

	err := d.expand(approvers, seen, map[string]bool{}, &resolved)
	if err != nil {
		return nil, err
	}

	if len(resolved) == 0 {
		return nil, ErrNoApprovers
	}

	return resolved, nil
}

func (d *Directory) expand(entries []string, seen, visiting map[string]bool, out *[]string) error {
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		name, isGroup := strings.CutPrefix(entry, groupPrefix)
		if !isGroup {
			if !seen[entry] {
				seen[entry] = true
				*out = append(*out, entry)
			}

			continue
		}

		members, ok := d.Groups[name]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownGroup, name)
		}

		// A group reached again on its own expansion path adds nothing new.
		if visiting[name] {
			continue
		}

		visiting[name] = true

		err := d.expand(members, seen, visiting, out)
		if err != nil {
			return err
		}

		delete(visiting, name)
	}

	return nil
}
