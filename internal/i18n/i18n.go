package i18n

import (
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/groupwarden/gwbot/resources"
)

var state = struct {
	sync.Mutex
	translations map[string]map[string]string
	loaded       map[string]bool
}{
	translations: make(map[string]map[string]string),
	loaded:       make(map[string]bool),
}

func load(lang string) {
	raw, err := resources.FS.ReadFile(fmt.Sprintf("i18n/%s.yml", lang))
	if err != nil {
		log.WithError(err).WithField("lang", lang).Debug("cant load i18n resource")
		state.loaded[lang] = true
		return
	}
	translations := make(map[string]string)
	if err := yaml.Unmarshal(raw, &translations); err != nil {
		log.WithError(err).WithField("lang", lang).Error("cant unmarshal i18n resource")
		state.loaded[lang] = true
		return
	}
	state.translations[lang] = translations
	state.loaded[lang] = true
}

// Get returns the translation for key in lang, falling back to the key
// itself. English keys are the source language.
func Get(key, lang string) string {
	if lang == "" || lang == "en" {
		return key
	}
	state.Lock()
	defer state.Unlock()
	if !state.loaded[lang] {
		load(lang)
	}
	if res, ok := state.translations[lang][key]; ok {
		return res
	}
	return key
}
