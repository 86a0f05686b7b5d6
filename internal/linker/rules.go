package linker

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// CategoryRule routes a structure family to the tables under one path prefix.
type CategoryRule struct {
	Family      string `yaml:"family"`
	TablePrefix string `yaml:"table_prefix"`
}

// Rules holds the curated knowledge the linker matches with.
type Rules struct {
	// Manual maps a structure-path keyword to table path suffixes.
	Manual map[string][]string `yaml:"manual"`
	// Aliases maps a structure path to the table path it is known to use.
	Aliases map[string]string `yaml:"aliases"`
	// Prefixes are stripped from table paths before exact matching.
	Prefixes   []string       `yaml:"prefixes"`
	Stopwords  []string       `yaml:"stopwords"`
	Categories []CategoryRule `yaml:"categories"`
	// MinTokenLength is the length a token must exceed to count toward overlap.
	MinTokenLength int `yaml:"min_token_length"`
}

func villageHouses(kinds ...string) []string {
	out := make([]string, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, "village/village_"+k)
	}
	return out
}

// DefaultRules covers the vanilla structures whose chest tables do not share their name.
func DefaultRules() Rules {
	return Rules{
		Manual: map[string][]string{
			"village": villageHouses("weaponsmith", "toolsmith", "armorer", "cartographer", "mason",
				"shepherd", "butcher", "fletcher", "fisher", "tannery", "temple"),
			"village_plains":   villageHouses("plains_house"),
			"village_desert":   villageHouses("desert_house"),
			"village_savanna":  villageHouses("savanna_house"),
			"village_snowy":    villageHouses("snowy_house"),
			"village_taiga":    villageHouses("taiga_house"),
			"pillager_outpost": {"pillager_outpost"},
			"mansion":          {"woodland_mansion"},
			"fortress":         {"nether_bridge"},
			"bastion_remnant":  {"bastion_bridge", "bastion_hoglin_stable", "bastion_other", "bastion_treasure"},
			"stronghold":       {"stronghold_corridor", "stronghold_crossing", "stronghold_library"},
			"end_city":         {"end_city_treasure"},
			"shipwreck":        {"shipwreck_map", "shipwreck_supply", "shipwreck_treasure"},
			"ocean_ruin":       {"underwater_ruin_big", "underwater_ruin_small"},
			"mineshaft":        {"abandoned_mineshaft"},
			"ancient_city":     {"ancient_city", "ancient_city_ice_box"},
			"jungle_pyramid":   {"jungle_temple", "jungle_temple_dispenser"},
			"igloo":            {"igloo_chest"},
			"trial_chambers": {"trial_chambers/corridor", "trial_chambers/entrance", "trial_chambers/intersection",
				"trial_chambers/intersection_barrel", "trial_chambers/reward", "trial_chambers/supply"},
		},
		Aliases: map[string]string{
			"jungle_pyramid": "chests/jungle_temple",
			"fortress":       "chests/nether_bridge",
			"mansion":        "chests/woodland_mansion",
			"mineshaft":      "chests/abandoned_mineshaft",
		},
		Prefixes:  []string{"chests/", "archaeology/", "gameplay/"},
		Stopwords: []string{"chests", "chest", "loot", "table", "tables"},
		Categories: []CategoryRule{
			{Family: "ocean_ruin", TablePrefix: "archaeology/"},
			{Family: "trail_ruins", TablePrefix: "archaeology/"},
			{Family: "desert_pyramid", TablePrefix: "archaeology/"},
			{Family: "desert_well", TablePrefix: "archaeology/"},
		},
		MinTokenLength: 3,
	}
}

// ParseRules decodes YAML rules. Sections the document leaves out keep their defaults.
func ParseRules(data []byte) (Rules, error) {
	var doc Rules
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Rules{}, fmt.Errorf("parse link rules: %w", err)
	}
	r := DefaultRules()
	if doc.Manual != nil {
		r.Manual = doc.Manual
	}
	if doc.Aliases != nil {
		r.Aliases = doc.Aliases
	}
	if doc.Prefixes != nil {
		r.Prefixes = doc.Prefixes
	}
	if doc.Stopwords != nil {
		r.Stopwords = doc.Stopwords
	}
	if doc.Categories != nil {
		r.Categories = doc.Categories
	}
	if doc.MinTokenLength > 0 {
		r.MinTokenLength = doc.MinTokenLength
	}
	return r, r.Validate()
}

// LoadRules reads a rules file. An empty path or a missing file yields the defaults.
func LoadRules(path string) (Rules, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return DefaultRules(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultRules(), nil
		}
		return Rules{}, fmt.Errorf("read link rules: %w", err)
	}
	return ParseRules(data)
}

func (r Rules) Validate() error {
	for kw, suffixes := range r.Manual {
		if strings.TrimSpace(kw) == "" {
			return fmt.Errorf("link rules: empty manual keyword")
		}
		for _, s := range suffixes {
			if strings.TrimSpace(s) == "" {
				return fmt.Errorf("link rules: empty table suffix for %q", kw)
			}
		}
	}
	for i, c := range r.Categories {
		if strings.TrimSpace(c.Family) == "" || strings.TrimSpace(c.TablePrefix) == "" {
			return fmt.Errorf("link rules: category %d needs family and table_prefix", i)
		}
	}
	return nil
}

func (r Rules) stopwordSet() map[string]bool {
	set := make(map[string]bool, len(r.Stopwords))
	for _, w := range r.Stopwords {
		set[strings.ToLower(strings.TrimSpace(w))] = true
	}
	return set
}
