package localization

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed languages.yaml
var languagesYAML []byte

// Language is one entry of the language switcher.
type Language struct {
	Code string `yaml:"code" json:"code"`
	Name string `yaml:"name" json:"name"`
	Flag string `yaml:"flag" json:"flag"`
}

// Languages returns the switcher entries for the supported locales, in routing order.
func (r *Routing) Languages() ([]Language, error) {
	var all []Language
	if err := yaml.Unmarshal(languagesYAML, &all); err != nil {
		return nil, fmt.Errorf("decode language table: %w", err)
	}

	byCode := make(map[string]Language, len(all))
	for _, l := range all {
		byCode[l.Code] = l
	}

	out := make([]Language, 0, len(r.locales))
	for _, code := range r.locales {
		l, ok := byCode[code]
		if !ok {
			l = Language{Code: code, Name: code}
		}
		out = append(out, l)
	}
	return out, nil
}
