package config

// ValidatableConfig is implemented by every config section.
type ValidatableConfig interface {
	Validate() []error
}

// Validate collects the errors of all configs.
func Validate(cfgs ...ValidatableConfig) []error {
	var out []error

	for _, cfg := range cfgs {
		out = append(out, cfg.Validate()...)
	}

	return out
}
