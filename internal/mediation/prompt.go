package mediation

import (
	"fmt"
	"strings"

	"github.com/nosdois/duet/internal/memory"
)

// promptTurns is how many recent turns the mediation instruction includes.
const promptTurns = 5

// BuildPrompt formats the recent turns and both partners' names into the
// fixed mediation instruction. The result is opaque instruction text for the
// generator; nothing here interprets it.
func BuildPrompt(recent []memory.Turn, partnerA, partnerB string) string {
	if len(recent) > promptTurns {
		recent = recent[len(recent)-promptTurns:]
	}

	var history strings.Builder
	for i, t := range recent {
		if i > 0 {
			history.WriteString("\n")
		}
		fmt.Fprintf(&history, "%s: %s", t.Speaker, t.Text)
	}

	return fmt.Sprintf(`Você é o NósDois.ai, um terapeuta de casal empático e não-julgador.

SITUAÇÃO ATUAL:
Você detectou sinais de conflito entre %[1]s e %[2]s.

ÚLTIMAS MENSAGENS:
%[3]s

SUA MISSÃO:
1. Identifique o gatilho emocional principal
2. Traduza o que cada pessoa REALMENTE quis dizer (sentimento por trás das palavras)
3. Sugira um exercício prático de 5 minutos para acalmar os ânimos

FORMATO DA RESPOSTA:
Comece com: "Pessoal, percebo que os ânimos exaltaram."

Depois, use menções (@%[1]s, @%[2]s) para:
- Validar os sentimentos de cada um
- Traduzir a intenção real por trás das palavras duras
- Sugerir uma pausa ou exercício (ex: "Que tal cada um escrever 3 coisas que ama no outro?")

Termine com um emoji acolhedor (🌱, 💚, 🤝).

IMPORTANTE:
- Não tome partido
- Não minimize os sentimentos
- Seja breve (máximo 4 frases)
- Use linguagem simples e acolhedora
`, partnerA, partnerB, history.String())
}
