// Package i18n provides localized fallback messages for client failures.
package i18n

import (
	"fmt"
	"strings"
	"sync"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Code is a machine-readable message key.
type Code = string

// BaseLocale is used when no supported locale matches.
const BaseLocale = "en-US"

var supported = []language.Tag{
	language.AmericanEnglish,
	language.Korean,
}

var matcher = language.NewMatcher(supported)

var (
	catalogsMu sync.RWMutex
	catalogs   = map[language.Tag]*Catalog{}
)

func init() {
	for tag, messages := range builtin {
		for code, text := range messages {
			if err := message.SetString(tag, code, text); err != nil {
				panic(fmt.Sprintf("register message %s/%s: %v", tag, code, err))
			}
		}
	}
}

// Catalog renders messages for one locale.
type Catalog struct {
	tag     language.Tag
	printer *message.Printer
}

// GetCatalog returns the catalog best matching locale.
// Falls back to en-US when nothing matches.
func GetCatalog(locale string) *Catalog {
	tag := resolve(locale)

	catalogsMu.RLock()
	cat, ok := catalogs[tag]
	catalogsMu.RUnlock()
	if ok {
		return cat
	}

	catalogsMu.Lock()
	defer catalogsMu.Unlock()
	if existing, ok := catalogs[tag]; ok {
		return existing
	}
	cat = &Catalog{tag: tag, printer: message.NewPrinter(tag)}
	catalogs[tag] = cat
	return cat
}

// Locale returns the BCP 47 tag of this catalog.
func (c *Catalog) Locale() string {
	if c == nil {
		return BaseLocale
	}
	return c.tag.String()
}

// Format renders the message for code. Unknown codes render as themselves.
func (c *Catalog) Format(code Code, args ...any) string {
	if c == nil {
		c = GetCatalog(BaseLocale)
	}
	return c.printer.Sprintf(code, args...)
}

func resolve(locale string) language.Tag {
	locale = strings.TrimSpace(locale)
	if locale == "" {
		return supported[0]
	}
	desired, err := language.Parse(locale)
	if err != nil {
		return supported[0]
	}
	_, idx, confidence := matcher.Match(desired)
	if confidence == language.No {
		return supported[0]
	}
	return supported[idx]
}
