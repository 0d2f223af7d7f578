package locales

import (
	"embed"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed *.json
var localeFS embed.FS

// Message IDs used for channel-facing text.
const (
	MsgFooterHeader = "FooterHeader"
	MsgCreditPrefix = "CreditPrefix"
	MsgLinkX        = "LinkX"
	MsgLinkFacebook = "LinkFacebook"
	MsgLinkWhatsApp = "LinkWhatsApp"
	MsgLinkInsta    = "LinkInstagram"
	MsgLinkTikTok   = "LinkTikTok"
)

var (
	mu              sync.RWMutex
	bundle          *i18n.Bundle
	defaultLanguage language.Tag
)

// Init loads the embedded message files. It may be called again to switch the default language.
func Init(defaultLangCode string) error {
	tag, err := language.Parse(defaultLangCode)
	if err != nil {
		log.Printf("WARN: Failed to parse default language code '%s': %v. Falling back to English.", defaultLangCode, err)
		tag = language.English
	}

	b := i18n.NewBundle(tag)
	b.RegisterUnmarshalFunc("json", json.Unmarshal)

	entries, err := localeFS.ReadDir(".")
	if err != nil {
		return fmt.Errorf("failed to read embedded locales: %w", err)
	}
	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		if _, err := b.LoadMessageFileFS(localeFS, entry.Name()); err != nil {
			log.Printf("WARN: Failed to load message file '%s': %v", entry.Name(), err)
			continue
		}
		loaded++
	}
	if loaded == 0 {
		return fmt.Errorf("no message files loaded")
	}

	mu.Lock()
	bundle, defaultLanguage = b, tag
	mu.Unlock()
	log.Printf("i18n bundle initialized with %d file(s). Default language: %s", loaded, tag)
	return nil
}

// DefaultLanguageTag returns the language passed to Init.
func DefaultLanguageTag() language.Tag {
	mu.RLock()
	defer mu.RUnlock()
	return defaultLanguage
}

// NewLocalizer creates a localizer for the given language preferences.
func NewLocalizer(langPrefs ...string) *i18n.Localizer {
	mu.RLock()
	defer mu.RUnlock()
	if bundle == nil {
		log.Panicln("Attempted to create localizer before i18n bundle initialization.")
	}
	return i18n.NewLocalizer(bundle, langPrefs...)
}

// GetMessage localizes msgID, falling back to English and then to the ID itself.
func GetMessage(localizer *i18n.Localizer, msgID string, templateData map[string]interface{}) string {
	cfg := &i18n.LocalizeConfig{MessageID: msgID, TemplateData: templateData}
	msg, err := localizer.Localize(cfg)
	if err == nil {
		return msg
	}
	log.Printf("ERROR: Failed to localize message ID '%s': %v. Falling back to English.", msgID, err)
	if fallback, ferr := NewLocalizer(language.English.String()).Localize(cfg); ferr == nil {
		return fallback
	}
	return msgID
}

// Text localizes msgID in the default language.
func Text(msgID string) string {
	return GetMessage(NewLocalizer(DefaultLanguageTag().String()), msgID, nil)
}
