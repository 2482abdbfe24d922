package interview

import "fmt"

// Default persona used when a state carries no analyst.
const (
	DefaultAnalystName        = "Generic Analyst"
	DefaultAnalystRole        = "Research Analyst"
	DefaultAnalystAffiliation = "Research Organization"
	DefaultAnalystDescription = "Focused on gathering and analyzing information objectively. Interested in collecting factual data and understanding key concepts."
)

// Analyst is the persona that conducts an interview.
type Analyst struct {
	Affiliation string `json:"affiliation"`
	Name        string `json:"name"`
	Role        string `json:"role"`
	Description string `json:"description"`
}

// DefaultAnalyst returns the generic research persona.
func DefaultAnalyst() Analyst {
	return Analyst{
		Affiliation: DefaultAnalystAffiliation,
		Name:        DefaultAnalystName,
		Role:        DefaultAnalystRole,
		Description: DefaultAnalystDescription,
	}
}

// OrDefault fills empty fields from DefaultAnalyst.
func (a Analyst) OrDefault() Analyst {
	d := DefaultAnalyst()
	if a.Affiliation == "" {
		a.Affiliation = d.Affiliation
	}
	if a.Name == "" {
		a.Name = d.Name
	}
	if a.Role == "" {
		a.Role = d.Role
	}
	if a.Description == "" {
		a.Description = d.Description
	}
	return a
}

// IsZero reports whether no field is set.
func (a Analyst) IsZero() bool {
	return a == Analyst{}
}

// Persona renders the analyst for prompts.
func (a Analyst) Persona() string {
	return fmt.Sprintf("Name: %s\nRole: %s\nAffiliation: %s\nDescription: %s\n", a.Name, a.Role, a.Affiliation, a.Description)
}
