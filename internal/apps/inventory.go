package apps

import (
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/spf13/viper"
)

// Application is one entry of the application inventory.
type Application struct {
	ID     string `mapstructure:"id" json:"id"`
	Name   string `mapstructure:"name" json:"name"`
	System bool   `mapstructure:"system" json:"system"`
}

// Inventory maps application ids to their metadata.
type Inventory struct {
	apps map[string]Application
}

// LoadInventory reads the applications list from a YAML, JSON or TOML file.
// A missing file yields an empty inventory.
func LoadInventory(path string) (*Inventory, error) {
	inv := &Inventory{apps: make(map[string]Application)}
	if path == "" {
		return inv, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return inv, nil
		}
		return nil, fmt.Errorf("failed to read application inventory: %w", err)
	}

	var list []Application
	if err := v.UnmarshalKey("applications", &list); err != nil {
		return nil, fmt.Errorf("failed to parse application inventory: %w", err)
	}

	for i, app := range list {
		app.ID = strings.TrimSpace(app.ID)
		if app.ID == "" {
			return nil, fmt.Errorf("application inventory entry %d has no id", i)
		}
		app.Name = strings.TrimSpace(app.Name)
		inv.apps[app.ID] = app
	}

	return inv, nil
}

// NewInventory builds an inventory from a list, mostly for tests.
func NewInventory(list []Application) *Inventory {
	inv := &Inventory{apps: make(map[string]Application, len(list))}
	for _, app := range list {
		inv.apps[app.ID] = app
	}
	return inv
}

// Lookup returns the application registered under id.
func (i *Inventory) Lookup(id string) (Application, bool) {
	app, ok := i.apps[id]
	return app, ok
}

// Len returns the number of applications.
func (i *Inventory) Len() int {
	return len(i.apps)
}

// List returns the user-facing applications sorted by display name.
// System applications are left out.
func (i *Inventory) List() []Application {
	list := make([]Application, 0, len(i.apps))
	for _, app := range i.apps {
		if app.System {
			continue
		}
		list = append(list, app)
	}

	sort.Slice(list, func(a, b int) bool {
		na, nb := strings.ToLower(displayName(list[a])), strings.ToLower(displayName(list[b]))
		if na != nb {
			return na < nb
		}
		return list[a].ID < list[b].ID
	})
	return list
}

func displayName(app Application) string {
	if app.Name == "" {
		return app.ID
	}
	return app.Name
}
