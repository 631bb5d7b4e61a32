package decorate

// SequenceRule reacts with a fixed emoji sequence when the lowercased text
// contains any of Contains.
type SequenceRule struct {
	Name     string   `json:"name" yaml:"name" validate:"required"`
	Contains []string `json:"contains" yaml:"contains" validate:"required,min=1,dive,required"`
	Emojis   []string `json:"emojis" yaml:"emojis" validate:"required,min=1,dive,required"`
}

// RandomRule reacts with Min..Max distinct entries picked from Pool. An
// entry may hold several emoji that always go together.
type RandomRule struct {
	Name     string   `json:"name" yaml:"name" validate:"required"`
	Words    []string `json:"words,omitempty" yaml:"words,omitempty"`
	Contains []string `json:"contains,omitempty" yaml:"contains,omitempty"`

	Pool [][]string `json:"pool" yaml:"pool" validate:"required,min=1,dive,min=1,dive,required"`
	Min  int        `json:"min" yaml:"min" validate:"gte=0"`
	Max  int        `json:"max" yaml:"max" validate:"gtefield=Min"`

	// ActivatedChance appends the Rules.Activated sequence. When it does
	// not fire, BonusChance appends Bonus.
	ActivatedChance float64  `json:"activated_chance" yaml:"activated_chance" validate:"gte=0,lte=1"`
	BonusChance     float64  `json:"bonus_chance" yaml:"bonus_chance" validate:"gte=0,lte=1"`
	Bonus           []string `json:"bonus,omitempty" yaml:"bonus,omitempty"`
}

type Rules struct {
	Enabled   bool           `json:"enabled" yaml:"enabled"`
	Sequences []SequenceRule `json:"sequences" yaml:"sequences" validate:"dive"`
	Random    []RandomRule   `json:"random" yaml:"random" validate:"dive"`
	// Activated names the sequence rule appended by ActivatedChance.
	Activated string `json:"activated" yaml:"activated"`
}

// DefaultRules mirror the chat's long-standing reactions. Telegram only
// accepts its own reaction set, so standard emoji stand in for the custom
// letter emoji.
func DefaultRules() Rules {
	full := []string{"🔥", "⚡", "🎉", "👏", "💯"}
	return Rules{
		Enabled: true,
		Sequences: []SequenceRule{
			{Name: "activated", Contains: []string{"activated"}, Emojis: full},
			{Name: "activate", Contains: []string{"activate"}, Emojis: full[:4]},
		},
		Random: []RandomRule{{
			Name:     "madi",
			Words:    []string{"madi"},
			Contains: []string{"madi parsons"},
			Pool: [][]string{
				{"🥰"}, {"😍"}, {"❤"}, {"🤩"},
				{"🤗"}, {"😘"}, {"🏆"}, {"👍"},
			},
			Min:             1,
			Max:             3,
			ActivatedChance: 0.10,
			BonusChance:     0.20,
			Bonus:           []string{"🔪"},
		}},
		Activated: "activated",
	}
}

func (r Rules) sequence(name string) []string {
	for _, s := range r.Sequences {
		if s.Name == name {
			return s.Emojis
		}
	}
	return nil
}
