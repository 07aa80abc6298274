package agents

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/kavora-ai/replygen/pkg/blackboard"
)

// MultiSituationResult is the combined instruction for multi-situation turns.
type MultiSituationResult struct {
	Fired       bool
	Instruction string
	Success     bool
}

// pairTemplates hold targeted instructions for common situation pairs.
var pairTemplates = map[string]string{
	pairKey(SituationContact, SituationPictures): "Der Kunde will Kontaktdaten UND Bilder. Gehe auf beides ein: lehne Kontaktdaten charmant ab, vertröste bei Bildern, und halte das Gespräch mit einer Frage offen.",
	pairKey(SituationContact, SituationMeeting):  "Der Kunde will Kontaktdaten UND ein Treffen. Beides freundlich ablenken, keine Zusagen, keine Nummern, und mit einer persönlichen Frage weiterführen.",
	pairKey(SituationPictures, SituationMeeting): "Der Kunde will Bilder UND ein Treffen. Vertröste bei Bildern, lenke beim Treffen ab, und stelle eine Gegenfrage.",
}

// tripleTemplate covers contact+pictures+meeting together.
const tripleTemplate = "Der Kunde will Kontaktdaten, Bilder UND ein Treffen. Sprich alle drei Punkte kurz an, ohne einem davon nachzugeben, und beende mit genau einer Frage."

// MultiSituationHandler fires when two or more situations are detected and
// produces one combined instruction; no detected situation may be ignored.
type MultiSituationHandler struct{}

// Fallback is the not-fired result.
func (h *MultiSituationHandler) Fallback() MultiSituationResult {
	return MultiSituationResult{Success: false}
}

// Run composes the combined instruction.
func (h *MultiSituationHandler) Run(ctx context.Context, situations []string, board *blackboard.Board) (MultiSituationResult, error) {
	if len(situations) < 2 {
		return MultiSituationResult{Success: true}, nil
	}

	instruction := h.instructionFor(situations)
	result := MultiSituationResult{Fired: true, Instruction: instruction, Success: true}

	if board != nil {
		board.AddPriority(instruction, blackboard.PriorityHigh, string(NameMultiSituation))
		board.Write(string(NameMultiSituation), []string{instruction}, nil, result)
	}
	return result, nil
}

func (h *MultiSituationHandler) instructionFor(situations []string) string {
	set := map[string]bool{}
	for _, s := range situations {
		set[s] = true
	}

	if set[SituationContact] && set[SituationPictures] && set[SituationMeeting] {
		return tripleTemplate
	}
	for i := 0; i < len(situations); i++ {
		for j := i + 1; j < len(situations); j++ {
			if tpl, ok := pairTemplates[pairKey(situations[i], situations[j])]; ok {
				return tpl
			}
		}
	}
	if set[SituationBot] {
		return fmt.Sprintf(
			"Der Kunde äußert einen Bot-Vorwurf UND folgende Anliegen: %s. Entkräfte den Vorwurf natürlich und menschlich, gehe danach auf JEDES weitere Anliegen ein.",
			strings.Join(without(situations, SituationBot), ", "))
	}
	if set[SituationMoney] {
		return fmt.Sprintf(
			"Der Kunde beklagt Kosten/Coins UND: %s. Zeige Verständnis ohne Rabatte zu versprechen, gehe danach auf jedes weitere Anliegen ein.",
			strings.Join(without(situations, SituationMoney), ", "))
	}
	return fmt.Sprintf(
		"Mehrere Anliegen erkannt: %s. Gehe auf JEDES davon erkennbar ein; keines darf ignoriert werden.",
		strings.Join(situations, ", "))
}

func pairKey(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return pair[0] + "|" + pair[1]
}

func without(situations []string, drop string) []string {
	var out []string
	for _, s := range situations {
		if s != drop {
			out = append(out, s)
		}
	}
	return out
}
