package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ExtensionOption is one row of the extension menu.
type ExtensionOption struct {
	Type      string
	Label     string
	Minutes   int
	Max       int
	Remaining int
}

// ExtensionOptions lists the configured extension types with today's
// remaining grants, sorted by type name.
func (e *Engine) ExtensionOptions(now time.Time) []ExtensionOption {
	names := make([]string, 0, len(e.cfg.Extensions))
	for name := range e.cfg.Extensions {
		names = append(names, name)
	}
	sort.Strings(names)

	options := make([]ExtensionOption, 0, len(names))
	for _, name := range names {
		def := e.cfg.Extensions[name]
		remaining := def.MaxPerDay - e.ext.CountToday(now, name)
		if remaining < 0 {
			remaining = 0
		}
		options = append(options, ExtensionOption{
			Type:      name,
			Label:     def.Label,
			Minutes:   def.Minutes,
			Max:       def.MaxPerDay,
			Remaining: remaining,
		})
	}
	return options
}

// ExtensionMenu renders the menu appended to block messages. When every
// type is exhausted the menu collapses to a single line.
func (e *Engine) ExtensionMenu(now time.Time) string {
	options := e.ExtensionOptions(now)
	if len(options) == 0 {
		return ""
	}

	anyLeft := false
	var b strings.Builder
	b.WriteString("Extensions:\n")
	for _, opt := range options {
		if opt.Remaining > 0 {
			anyLeft = true
			fmt.Fprintf(&b, "  %-8s %s (%d remaining)\n", opt.Type, opt.Label, opt.Remaining)
		} else {
			fmt.Fprintf(&b, "  %-8s %s (none left)\n", opt.Type, opt.Label)
		}
	}
	if !anyLeft {
		return "No extensions remaining. Take a break."
	}

	fmt.Fprintf(&b, "Run: %s extend <type>", executableName())
	return b.String()
}

func executableName() string {
	exe, err := os.Executable()
	if err != nil {
		return "balance"
	}
	return filepath.Base(exe)
}
