package compliance

import (
	"strings"
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Corporate suffixes keep their conventional capitalisation after title-casing.
var suffixes = map[string]string{
	"Inc":  "Inc",
	"Llc":  "LLC",
	"Lp":   "LP",
	"Ltd":  "Ltd",
	"Usa":  "USA",
	"Us":   "US",
	"Gmbh": "GmbH",
	"Ag":   "AG",
	"Sa":   "SA",
	"Plc":  "PLC",
	"Co":   "Co",
}

var (
	titleMu sync.Mutex
	titler  = cases.Title(language.English)
	printer = message.NewPrinter(language.English)
)

// DisplayName title-cases an upper-case firm name from FDA data ("ACME PHARMA, LLC" →
// "Acme Pharma, LLC").
func DisplayName(name string) string {
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return ""
	}
	titleMu.Lock()
	titled := titler.String(strings.ToLower(name))
	titleMu.Unlock()

	words := strings.Split(titled, " ")
	for i, w := range words {
		core := strings.TrimRight(w, ".,")
		if fixed, ok := suffixes[core]; ok {
			words[i] = fixed + w[len(core):]
		}
	}
	return strings.Join(words, " ")
}

// FormatCount renders n with thousands separators.
func FormatCount(n int) string {
	return printer.Sprintf("%d", n)
}
