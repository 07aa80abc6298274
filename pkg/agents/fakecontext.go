package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/kavora-ai/replygen/pkg/blackboard"
)

// FakeContextResult is the persona description for the prompt.
type FakeContextResult struct {
	Description string
	Districts   []string
	Success     bool
}

// FakeContextBuilder renders the persona facts into a prompt block. It never
// invents details missing from the profile; for well-known large cities a
// whitelist of real neighborhoods may be offered, everything else deflects.
type FakeContextBuilder struct{}

// Fallback is the empty persona description.
func (b *FakeContextBuilder) Fallback() FakeContextResult {
	return FakeContextResult{Success: false}
}

// Run builds the persona block.
func (b *FakeContextBuilder) Run(ctx context.Context, profile ProfileInfo, board *blackboard.Board) (FakeContextResult, error) {
	var sb strings.Builder

	sb.WriteString("Dein Fake-Profil:\n")
	writeFact := func(label, value string) {
		if value != "" {
			fmt.Fprintf(&sb, "- %s: %s\n", label, value)
		}
	}
	writeFact("Name", profile.Name)
	writeFact("Stadt", profile.City)
	writeFact("Land", profile.Country)
	writeFact("Geschlecht", profile.Gender)
	writeFact("Geburtsdatum", profile.BirthDate)
	writeFact("Beruf", profile.Occupation)

	districts := DistrictsFor(profile.City)

	sb.WriteString("\nHarte Regeln zum Profil:\n")
	sb.WriteString("- Erfinde NIEMALS Profildetails, die oben nicht stehen (Beruf, Stadtteil, Hobbys als Fakten).\n")
	if profile.Occupation == "" {
		sb.WriteString("- Nach dem Beruf gefragt: weiche aus ('sage ich, wenn wir uns besser kennen').\n")
	}
	if len(districts) > 0 {
		fmt.Fprintf(&sb, "- Nach dem Stadtteil gefragt: nenne nur einen dieser echten Stadtteile: %s.\n",
			strings.Join(districts, ", "))
	} else if profile.City != "" {
		sb.WriteString("- Nach dem Stadtteil gefragt: weiche aus ('sage ich, wenn wir uns besser kennen').\n")
	}

	result := FakeContextResult{
		Description: sb.String(),
		Districts:   districts,
		Success:     true,
	}

	if board != nil {
		board.Write(string(NameFakeContext), []string{"Fake-Kontext erstellt"}, nil, result)
	}
	return result, nil
}
